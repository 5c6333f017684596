package query

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-submissions/core"
)

var (
	_ gocmd.Querier[ListSubmissionsMessage, []core.Submission]          = (*ListSubmissionsQuery)(nil)
	_ gocmd.Querier[ListChallengeSubmissionsMessage, []core.Submission] = (*ListChallengeSubmissionsQuery)(nil)
	_ gocmd.Querier[CanSubmitMessage, core.Decision]                    = (*CanSubmitQuery)(nil)
	_ gocmd.Querier[CurrentSessionMessage, core.Session]                = (*CurrentSessionQuery)(nil)
	_ gocmd.Querier[ListServerSubmissionsMessage, []core.Submission]    = (*ListServerSubmissionsQuery)(nil)
)
