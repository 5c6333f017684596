package command

import (
	"context"

	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-submissions/core"
)

type SessionService interface {
	Login(ctx context.Context, input core.LoginInput) (core.Session, error)
	Register(ctx context.Context, input core.RegisterInput) (core.Session, error)
	Resume(ctx context.Context, userID string) (core.Session, error)
	Logout(ctx context.Context) error
}

type SubmissionService interface {
	CreateSubmission(ctx context.Context, input core.CreateSubmissionInput) (core.Submission, error)
	RefreshSubmissions(ctx context.Context, options core.RefreshOptions) (core.RefreshResult, error)
}

type LoginCommand struct {
	service SessionService
}

func NewLoginCommand(service SessionService) *LoginCommand {
	return &LoginCommand{service: service}
}

func (c *LoginCommand) Execute(ctx context.Context, msg LoginMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: session service is required")
	}
	out, err := c.service.Login(ctx, msg.Input)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type RegisterCommand struct {
	service SessionService
}

func NewRegisterCommand(service SessionService) *RegisterCommand {
	return &RegisterCommand{service: service}
}

func (c *RegisterCommand) Execute(ctx context.Context, msg RegisterMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: session service is required")
	}
	out, err := c.service.Register(ctx, msg.Input)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type ResumeCommand struct {
	service SessionService
}

func NewResumeCommand(service SessionService) *ResumeCommand {
	return &ResumeCommand{service: service}
}

func (c *ResumeCommand) Execute(ctx context.Context, msg ResumeMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: session service is required")
	}
	out, err := c.service.Resume(ctx, msg.UserID)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type LogoutCommand struct {
	service SessionService
}

func NewLogoutCommand(service SessionService) *LogoutCommand {
	return &LogoutCommand{service: service}
}

func (c *LogoutCommand) Execute(ctx context.Context, _ LogoutMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: session service is required")
	}
	return c.service.Logout(ctx)
}

type CreateSubmissionCommand struct {
	service SubmissionService
}

func NewCreateSubmissionCommand(service SubmissionService) *CreateSubmissionCommand {
	return &CreateSubmissionCommand{service: service}
}

func (c *CreateSubmissionCommand) Execute(ctx context.Context, msg CreateSubmissionMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: submission service is required")
	}
	out, err := c.service.CreateSubmission(ctx, msg.Input)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type RefreshSubmissionsCommand struct {
	service SubmissionService
}

func NewRefreshSubmissionsCommand(service SubmissionService) *RefreshSubmissionsCommand {
	return &RefreshSubmissionsCommand{service: service}
}

func (c *RefreshSubmissionsCommand) Execute(ctx context.Context, msg RefreshSubmissionsMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: submission service is required")
	}
	out, err := c.service.RefreshSubmissions(ctx, msg.Options)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
