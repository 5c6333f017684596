package command

import (
	"strings"

	"github.com/goliatone/go-submissions/core"
)

const (
	TypeLogin              = "submissions.command.session.login"
	TypeRegister           = "submissions.command.session.register"
	TypeResume             = "submissions.command.session.resume"
	TypeLogout             = "submissions.command.session.logout"
	TypeCreateSubmission   = "submissions.command.submission.create"
	TypeRefreshSubmissions = "submissions.command.submission.refresh"
)

type LoginMessage struct {
	Input core.LoginInput
}

func (LoginMessage) Type() string { return TypeLogin }

func (m LoginMessage) Validate() error {
	if err := validateEmail(m.Input.Email); err != nil {
		return err
	}
	if m.Input.Password == "" {
		return commandValidationError("password", "password is required")
	}
	return nil
}

type RegisterMessage struct {
	Input core.RegisterInput
}

func (RegisterMessage) Type() string { return TypeRegister }

func (m RegisterMessage) Validate() error {
	if strings.TrimSpace(m.Input.Name) == "" {
		return commandValidationError("name", "name is required")
	}
	if err := validateEmail(m.Input.Email); err != nil {
		return err
	}
	if m.Input.Password == "" {
		return commandValidationError("password", "password is required")
	}
	return nil
}

// ResumeMessage restores a persisted credential without a login round trip.
type ResumeMessage struct {
	UserID string
}

func (ResumeMessage) Type() string { return TypeResume }

func (m ResumeMessage) Validate() error {
	if strings.TrimSpace(m.UserID) == "" {
		return commandValidationError("user_id", "user id is required")
	}
	return nil
}

type LogoutMessage struct{}

func (LogoutMessage) Type() string { return TypeLogout }

type CreateSubmissionMessage struct {
	Input core.CreateSubmissionInput
}

func (CreateSubmissionMessage) Type() string { return TypeCreateSubmission }

func (m CreateSubmissionMessage) Validate() error {
	return commandWrapValidation(m.Input.Validate(), "command: invalid create submission message")
}

type RefreshSubmissionsMessage struct {
	Options core.RefreshOptions
}

func (RefreshSubmissionsMessage) Type() string { return TypeRefreshSubmissions }

func validateEmail(email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return commandValidationError("email", "email is required")
	}
	if !strings.Contains(email, "@") {
		return commandInvalidInputError("command: email address is malformed")
	}
	return nil
}
