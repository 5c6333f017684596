package query

import (
	"context"
	"errors"
	"testing"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-submissions/core"
)

type stubSubmissionReader struct {
	submissions []core.Submission
	decision    core.Decision
	err         error
	challenges  []string
}

func (s *stubSubmissionReader) Submissions(context.Context) ([]core.Submission, error) {
	return s.submissions, s.err
}

func (s *stubSubmissionReader) ListForChallenge(_ context.Context, challengeID string) ([]core.Submission, error) {
	s.challenges = append(s.challenges, challengeID)
	return core.FilterByChallenge(s.submissions, challengeID), s.err
}

func (s *stubSubmissionReader) CanSubmit(_ context.Context, challengeID string) (core.Decision, error) {
	s.challenges = append(s.challenges, challengeID)
	return s.decision, s.err
}

type stubSessionReader struct {
	session core.Session
	ok      bool
}

func (s stubSessionReader) CurrentSession() (core.Session, bool) {
	return s.session, s.ok
}

func TestListChallengeSubmissionsQuery_QueryDelegates(t *testing.T) {
	reader := &stubSubmissionReader{submissions: []core.Submission{
		{Ref: core.ConfirmedRef("s2"), ChallengeID: "c1"},
		{Ref: core.ConfirmedRef("s1"), ChallengeID: "c2"},
	}}

	result, err := NewListChallengeSubmissionsQuery(reader).Query(context.Background(), ListChallengeSubmissionsMessage{ChallengeID: "c1"})
	if err != nil {
		t.Fatalf("query challenge submissions: %v", err)
	}
	if len(result) != 1 || result[0].ID() != "s2" {
		t.Fatalf("unexpected result %#v", result)
	}
	if len(reader.challenges) != 1 || reader.challenges[0] != "c1" {
		t.Fatalf("expected reader invocation for c1, got %v", reader.challenges)
	}
}

func TestListSubmissionsQuery_QueryDelegates(t *testing.T) {
	reader := &stubSubmissionReader{submissions: []core.Submission{{Ref: core.ConfirmedRef("s1")}}}
	result, err := NewListSubmissionsQuery(reader).Query(context.Background(), ListSubmissionsMessage{})
	if err != nil {
		t.Fatalf("query submissions: %v", err)
	}
	if len(result) != 1 {
		t.Fatalf("unexpected result %#v", result)
	}
}

func TestCanSubmitQuery_QueryDelegates(t *testing.T) {
	reader := &stubSubmissionReader{decision: core.Decision{Allowed: false, Reason: core.DecisionBlockedApproved}}
	decision, err := NewCanSubmitQuery(reader).Query(context.Background(), CanSubmitMessage{ChallengeID: "c1"})
	if err != nil {
		t.Fatalf("query can submit: %v", err)
	}
	if decision.Allowed || decision.Reason != core.DecisionBlockedApproved {
		t.Fatalf("unexpected decision %#v", decision)
	}

	reader.err = errors.New("no session")
	if _, err := NewCanSubmitQuery(reader).Query(context.Background(), CanSubmitMessage{ChallengeID: "c1"}); !errors.Is(err, reader.err) {
		t.Fatalf("expected reader error, got %v", err)
	}
}

func TestCurrentSessionQuery(t *testing.T) {
	session := core.Session{ID: "sess_1", UserID: "u1"}
	got, err := NewCurrentSessionQuery(stubSessionReader{session: session, ok: true}).Query(context.Background(), CurrentSessionMessage{})
	if err != nil || got != session {
		t.Fatalf("unexpected session %#v err=%v", got, err)
	}

	_, err = NewCurrentSessionQuery(stubSessionReader{}).Query(context.Background(), CurrentSessionMessage{})
	if !errors.Is(err, core.ErrNoSession) {
		t.Fatalf("expected ErrNoSession, got %v", err)
	}
}

func TestChallengeMessages_ValidateReturnsRichError(t *testing.T) {
	for _, msg := range []interface{ Validate() error }{
		ListChallengeSubmissionsMessage{},
		CanSubmitMessage{ChallengeID: "  "},
	} {
		err := msg.Validate()
		if err == nil {
			t.Fatalf("expected validation error for %T", msg)
		}
		var rich *goerrors.Error
		if !goerrors.As(err, &rich) {
			t.Fatalf("expected go-errors envelope, got %T", err)
		}
		if rich.Category != goerrors.CategoryValidation || rich.TextCode != core.ErrorValidation {
			t.Fatalf("unexpected envelope %q %q", rich.Category, rich.TextCode)
		}
	}
}

func TestQueries_NilReaderReturnsRichError(t *testing.T) {
	var qry *CanSubmitQuery
	_, err := qry.Query(context.Background(), CanSubmitMessage{ChallengeID: "c1"})
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		t.Fatalf("expected go-errors envelope, got %T", err)
	}
	if rich.Category != goerrors.CategoryInternal {
		t.Fatalf("expected internal category, got %q", rich.Category)
	}
}

type stubServerReader struct {
	submissions []core.Submission
	calls       int
}

func (s *stubServerReader) ServerSubmissions(context.Context) ([]core.Submission, error) {
	s.calls++
	return s.submissions, nil
}

func TestListServerSubmissionsQuery_QueryDelegates(t *testing.T) {
	reader := &stubServerReader{submissions: []core.Submission{{Ref: core.ConfirmedRef("s9"), ChallengeID: "c1"}}}

	result, err := NewListServerSubmissionsQuery(reader).Query(context.Background(), ListServerSubmissionsMessage{})
	if err != nil {
		t.Fatalf("query server submissions: %v", err)
	}
	if reader.calls != 1 || len(result) != 1 || result[0].ID() != "s9" {
		t.Fatalf("unexpected result %#v calls=%d", result, reader.calls)
	}
	if _, err := NewListServerSubmissionsQuery(nil).Query(context.Background(), ListServerSubmissionsMessage{}); err == nil {
		t.Fatalf("expected error without reader")
	}
}
