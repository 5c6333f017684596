package command

import gocmd "github.com/goliatone/go-command"

var (
	_ gocmd.Commander[LoginMessage]              = (*LoginCommand)(nil)
	_ gocmd.Commander[RegisterMessage]           = (*RegisterCommand)(nil)
	_ gocmd.Commander[ResumeMessage]             = (*ResumeCommand)(nil)
	_ gocmd.Commander[LogoutMessage]             = (*LogoutCommand)(nil)
	_ gocmd.Commander[CreateSubmissionMessage]   = (*CreateSubmissionCommand)(nil)
	_ gocmd.Commander[RefreshSubmissionsMessage] = (*RefreshSubmissionsCommand)(nil)
)
