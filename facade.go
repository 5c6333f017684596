package submissions

import (
	"fmt"

	submissionscommand "github.com/goliatone/go-submissions/command"
	submissionsquery "github.com/goliatone/go-submissions/query"
)

type CommandQueryService interface {
	submissionscommand.SessionService
	submissionscommand.SubmissionService
	submissionsquery.SubmissionReader
	submissionsquery.SessionReader
	submissionsquery.ServerSubmissionReader
}

type Commands struct {
	Login              *submissionscommand.LoginCommand
	Register           *submissionscommand.RegisterCommand
	Resume             *submissionscommand.ResumeCommand
	Logout             *submissionscommand.LogoutCommand
	CreateSubmission   *submissionscommand.CreateSubmissionCommand
	RefreshSubmissions *submissionscommand.RefreshSubmissionsCommand
}

type Queries struct {
	ListSubmissions          *submissionsquery.ListSubmissionsQuery
	ListChallengeSubmissions *submissionsquery.ListChallengeSubmissionsQuery
	CanSubmit                *submissionsquery.CanSubmitQuery
	CurrentSession           *submissionsquery.CurrentSessionQuery
	ListServerSubmissions    *submissionsquery.ListServerSubmissionsQuery
}

type Facade struct {
	service  CommandQueryService
	commands Commands
	queries  Queries
}

func NewFacade(service CommandQueryService) (*Facade, error) {
	if service == nil {
		return nil, fmt.Errorf("submissions: command/query service is required")
	}

	facade := &Facade{service: service}
	facade.commands = Commands{
		Login:              submissionscommand.NewLoginCommand(service),
		Register:           submissionscommand.NewRegisterCommand(service),
		Resume:             submissionscommand.NewResumeCommand(service),
		Logout:             submissionscommand.NewLogoutCommand(service),
		CreateSubmission:   submissionscommand.NewCreateSubmissionCommand(service),
		RefreshSubmissions: submissionscommand.NewRefreshSubmissionsCommand(service),
	}
	facade.queries = Queries{
		ListSubmissions:          submissionsquery.NewListSubmissionsQuery(service),
		ListChallengeSubmissions: submissionsquery.NewListChallengeSubmissionsQuery(service),
		CanSubmit:                submissionsquery.NewCanSubmitQuery(service),
		CurrentSession:           submissionsquery.NewCurrentSessionQuery(service),
		ListServerSubmissions:    submissionsquery.NewListServerSubmissionsQuery(service),
	}
	return facade, nil
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}

func (f *Facade) Queries() Queries {
	if f == nil {
		return Queries{}
	}
	return f.queries
}

func (f *Facade) Service() CommandQueryService {
	if f == nil {
		return nil
	}
	return f.service
}
