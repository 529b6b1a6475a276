package command

import (
	"strings"

	"github.com/goliatone/go-authclient/core"
)

const (
	TypeLogin           = "authclient.command.login"
	TypeRegister        = "authclient.command.register"
	TypeLogout          = "authclient.command.logout"
	TypeRefresh         = "authclient.command.refresh"
	TypeScheduleRefresh = "authclient.command.refresh.schedule"
	TypeRestore         = "authclient.command.session.restore"
)

type LoginMessage struct {
	Request core.LoginRequest
}

func (LoginMessage) Type() string { return TypeLogin }

func (m LoginMessage) Validate() error {
	if strings.TrimSpace(m.Request.Email) == "" {
		return commandValidationError("email", "email is required")
	}
	if m.Request.Password == "" {
		return commandValidationError("password", "password is required")
	}
	return nil
}

type RegisterMessage struct {
	Request core.RegisterRequest
}

func (RegisterMessage) Type() string { return TypeRegister }

func (m RegisterMessage) Validate() error {
	if strings.TrimSpace(m.Request.Email) == "" {
		return commandValidationError("email", "email is required")
	}
	if m.Request.Password == "" {
		return commandValidationError("password", "password is required")
	}
	if strings.TrimSpace(m.Request.Name) == "" {
		return commandValidationError("name", "name is required")
	}
	if m.Request.ConfirmPassword != "" && m.Request.ConfirmPassword != m.Request.Password {
		return commandValidationError("confirmPassword", "password confirmation does not match")
	}
	return nil
}

type LogoutMessage struct{}

func (LogoutMessage) Type() string { return TypeLogout }

func (LogoutMessage) Validate() error { return nil }

type RefreshMessage struct{}

func (RefreshMessage) Type() string { return TypeRefresh }

func (RefreshMessage) Validate() error { return nil }

type ScheduleRefreshMessage struct {
	Request core.ScheduleRefreshRequest
}

func (ScheduleRefreshMessage) Type() string { return TypeScheduleRefresh }

func (ScheduleRefreshMessage) Validate() error { return nil }

type RestoreSessionMessage struct{}

func (RestoreSessionMessage) Type() string { return TypeRestore }

func (RestoreSessionMessage) Validate() error { return nil }
