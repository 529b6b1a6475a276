package command

import (
	"context"

	gocmd "github.com/goliatone/go-command"

	"github.com/goliatone/go-authclient/core"
)

type MutatingService interface {
	Login(ctx context.Context, req core.LoginRequest) (core.AuthResult, error)
	Register(ctx context.Context, req core.RegisterRequest) (core.AuthResult, error)
	Logout(ctx context.Context) error
	RefreshNow(ctx context.Context) (core.Credential, error)
	Restore(ctx context.Context) error
}

type RefreshScheduler interface {
	ScheduleRefresh(ctx context.Context, req core.ScheduleRefreshRequest) error
}

type LoginCommand struct {
	service MutatingService
}

func NewLoginCommand(service MutatingService) *LoginCommand {
	return &LoginCommand{service: service}
}

func (c *LoginCommand) Execute(ctx context.Context, msg LoginMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: login service is required")
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	out, err := c.service.Login(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type RegisterCommand struct {
	service MutatingService
}

func NewRegisterCommand(service MutatingService) *RegisterCommand {
	return &RegisterCommand{service: service}
}

func (c *RegisterCommand) Execute(ctx context.Context, msg RegisterMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: register service is required")
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	out, err := c.service.Register(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type LogoutCommand struct {
	service MutatingService
}

func NewLogoutCommand(service MutatingService) *LogoutCommand {
	return &LogoutCommand{service: service}
}

func (c *LogoutCommand) Execute(ctx context.Context, _ LogoutMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: logout service is required")
	}
	return c.service.Logout(ctx)
}

type RefreshCommand struct {
	service MutatingService
}

func NewRefreshCommand(service MutatingService) *RefreshCommand {
	return &RefreshCommand{service: service}
}

func (c *RefreshCommand) Execute(ctx context.Context, _ RefreshMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: refresh service is required")
	}
	out, err := c.service.RefreshNow(ctx)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type RestoreSessionCommand struct {
	service MutatingService
}

func NewRestoreSessionCommand(service MutatingService) *RestoreSessionCommand {
	return &RestoreSessionCommand{service: service}
}

func (c *RestoreSessionCommand) Execute(ctx context.Context, _ RestoreSessionMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: restore service is required")
	}
	return c.service.Restore(ctx)
}

type ScheduleRefreshCommand struct {
	service RefreshScheduler
}

func NewScheduleRefreshCommand(service RefreshScheduler) *ScheduleRefreshCommand {
	return &ScheduleRefreshCommand{service: service}
}

func (c *ScheduleRefreshCommand) Execute(ctx context.Context, msg ScheduleRefreshMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: refresh scheduler is required")
	}
	return c.service.ScheduleRefresh(ctx, msg.Request)
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
