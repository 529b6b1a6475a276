package core

import glog "github.com/goliatone/go-logger/glog"

var (
	_ Signer              = BearerTokenSigner{}
	_ CredentialCodec     = JSONCredentialCodec{}
	_ SessionPersister    = (*MemorySessionPersister)(nil)
	_ CredentialRefresher = (AuthEndpoint)(nil)
	_ ConfigProvider      = (*CfgxConfigProvider)(nil)
	_ OptionsResolver     = GoOptionsResolver{}
	_ RawConfigLoader     = StaticRawConfigLoader{}
	_ SessionListener     = SessionListenerFunc(nil)

	_ Logger         = glog.Nop()
	_ LoggerProvider = glog.ProviderFromLogger(glog.Nop())
)
