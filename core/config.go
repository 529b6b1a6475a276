package core

import (
	"fmt"
	"strings"
	"time"
)

const (
	DefaultLoginPath          = "auth/login"
	DefaultRegisterPath       = "auth/register"
	DefaultRefreshPath        = "auth/refresh"
	DefaultLogoutPath         = "auth/logout"
	DefaultSessionKey         = "authclient.session"
	DefaultRefreshTimeout     = 30 * time.Second
	DefaultExpiringSoonWindow = 5 * time.Minute
)

type AuthRoutesConfig struct {
	LoginPath    string `koanf:"login_path" mapstructure:"login_path"`
	RegisterPath string `koanf:"register_path" mapstructure:"register_path"`
	RefreshPath  string `koanf:"refresh_path" mapstructure:"refresh_path"`
	LogoutPath   string `koanf:"logout_path" mapstructure:"logout_path"`
}

type RefreshConfig struct {
	// Timeout bounds the single in-flight refresh call. Waiters are released
	// with a refresh failure when it elapses.
	Timeout            time.Duration `koanf:"timeout" mapstructure:"timeout"`
	ExpiringSoonWindow time.Duration `koanf:"expiring_soon_window" mapstructure:"expiring_soon_window"`
}

type StorageConfig struct {
	SessionKey string `koanf:"session_key" mapstructure:"session_key"`
}

type Config struct {
	ServiceName string           `koanf:"service_name" mapstructure:"service_name"`
	BaseURL     string           `koanf:"base_url" mapstructure:"base_url"`
	Auth        AuthRoutesConfig `koanf:"auth" mapstructure:"auth"`
	Refresh     RefreshConfig    `koanf:"refresh" mapstructure:"refresh"`
	Storage     StorageConfig    `koanf:"storage" mapstructure:"storage"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName: "authclient",
		Auth: AuthRoutesConfig{
			LoginPath:    DefaultLoginPath,
			RegisterPath: DefaultRegisterPath,
			RefreshPath:  DefaultRefreshPath,
			LogoutPath:   DefaultLogoutPath,
		},
		Refresh: RefreshConfig{
			Timeout:            DefaultRefreshTimeout,
			ExpiringSoonWindow: DefaultExpiringSoonWindow,
		},
		Storage: StorageConfig{
			SessionKey: DefaultSessionKey,
		},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	for name, value := range map[string]string{
		"auth.login_path":    c.Auth.LoginPath,
		"auth.register_path": c.Auth.RegisterPath,
		"auth.refresh_path":  c.Auth.RefreshPath,
		"auth.logout_path":   c.Auth.LogoutPath,
	} {
		if strings.Trim(strings.TrimSpace(value), "/") == "" {
			return fmt.Errorf("core: %s is required", name)
		}
	}
	if c.Refresh.Timeout <= 0 {
		return fmt.Errorf("core: refresh.timeout must be positive")
	}
	if c.Refresh.ExpiringSoonWindow < 0 {
		return fmt.Errorf("core: refresh.expiring_soon_window must not be negative")
	}
	if strings.TrimSpace(c.Storage.SessionKey) == "" {
		return fmt.Errorf("core: storage.session_key is required")
	}
	return nil
}
