package query

import (
	"context"

	"github.com/goliatone/go-submissions/core"
)

type SubmissionReader interface {
	Submissions(ctx context.Context) ([]core.Submission, error)
	ListForChallenge(ctx context.Context, challengeID string) ([]core.Submission, error)
	CanSubmit(ctx context.Context, challengeID string) (core.Decision, error)
}

type ServerSubmissionReader interface {
	ServerSubmissions(ctx context.Context) ([]core.Submission, error)
}

type SessionReader interface {
	CurrentSession() (core.Session, bool)
}

type ListSubmissionsQuery struct {
	reader SubmissionReader
}

func NewListSubmissionsQuery(reader SubmissionReader) *ListSubmissionsQuery {
	return &ListSubmissionsQuery{reader: reader}
}

func (q *ListSubmissionsQuery) Query(ctx context.Context, _ ListSubmissionsMessage) ([]core.Submission, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: submission reader is required")
	}
	return q.reader.Submissions(ctx)
}

// ListChallengeSubmissionsQuery returns the user's submissions for one
// challenge, newest first.
type ListChallengeSubmissionsQuery struct {
	reader SubmissionReader
}

func NewListChallengeSubmissionsQuery(reader SubmissionReader) *ListChallengeSubmissionsQuery {
	return &ListChallengeSubmissionsQuery{reader: reader}
}

func (q *ListChallengeSubmissionsQuery) Query(
	ctx context.Context,
	msg ListChallengeSubmissionsMessage,
) ([]core.Submission, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: submission reader is required")
	}
	return q.reader.ListForChallenge(ctx, msg.ChallengeID)
}

type CanSubmitQuery struct {
	reader SubmissionReader
}

func NewCanSubmitQuery(reader SubmissionReader) *CanSubmitQuery {
	return &CanSubmitQuery{reader: reader}
}

func (q *CanSubmitQuery) Query(ctx context.Context, msg CanSubmitMessage) (core.Decision, error) {
	if q == nil || q.reader == nil {
		return core.Decision{}, queryDependencyError("query: submission reader is required")
	}
	return q.reader.CanSubmit(ctx, msg.ChallengeID)
}

type CurrentSessionQuery struct {
	reader SessionReader
}

func NewCurrentSessionQuery(reader SessionReader) *CurrentSessionQuery {
	return &CurrentSessionQuery{reader: reader}
}

func (q *CurrentSessionQuery) Query(_ context.Context, _ CurrentSessionMessage) (core.Session, error) {
	if q == nil || q.reader == nil {
		return core.Session{}, queryDependencyError("query: session reader is required")
	}
	session, ok := q.reader.CurrentSession()
	if !ok {
		return core.Session{}, core.ErrNoSession
	}
	return session, nil
}

type ListServerSubmissionsQuery struct {
	reader ServerSubmissionReader
}

func NewListServerSubmissionsQuery(reader ServerSubmissionReader) *ListServerSubmissionsQuery {
	return &ListServerSubmissionsQuery{reader: reader}
}

func (q *ListServerSubmissionsQuery) Query(ctx context.Context, _ ListServerSubmissionsMessage) ([]core.Submission, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: server submission reader is required")
	}
	return q.reader.ServerSubmissions(ctx)
}
