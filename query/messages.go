package query

import "strings"

const (
	TypeListSubmissions          = "submissions.query.submission.list"
	TypeListChallengeSubmissions = "submissions.query.submission.list_for_challenge"
	TypeCanSubmit                = "submissions.query.submission.can_submit"
	TypeCurrentSession           = "submissions.query.session.current"
	TypeListServerSubmissions    = "submissions.query.submission.list_server"
)

type ListSubmissionsMessage struct{}

func (ListSubmissionsMessage) Type() string { return TypeListSubmissions }

type ListChallengeSubmissionsMessage struct {
	ChallengeID string
}

func (ListChallengeSubmissionsMessage) Type() string { return TypeListChallengeSubmissions }

func (m ListChallengeSubmissionsMessage) Validate() error {
	return validateChallengeID(m.ChallengeID)
}

type CanSubmitMessage struct {
	ChallengeID string
}

func (CanSubmitMessage) Type() string { return TypeCanSubmit }

func (m CanSubmitMessage) Validate() error {
	return validateChallengeID(m.ChallengeID)
}

// ListServerSubmissionsMessage asks for the server view, served from the
// response cache while it is fresh.
type ListServerSubmissionsMessage struct{}

func (ListServerSubmissionsMessage) Type() string { return TypeListServerSubmissions }

type CurrentSessionMessage struct{}

func (CurrentSessionMessage) Type() string { return TypeCurrentSession }

func validateChallengeID(challengeID string) error {
	if strings.TrimSpace(challengeID) == "" {
		return queryValidationError("challenge_id", "challenge id is required")
	}
	return nil
}
