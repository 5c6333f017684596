package core

import (
	"context"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

type TransportRequest struct {
	Method      string
	URL         string
	Headers     map[string]string
	Query       map[string]string
	Body        []byte
	Metadata    map[string]any
	Timeout     time.Duration
	Idempotency string
}

type TransportResponse struct {
	StatusCode int
	Headers    map[string]string
	Body       []byte
	Metadata   map[string]any
}

type TransportAdapter interface {
	Kind() string
	Do(ctx context.Context, req TransportRequest) (TransportResponse, error)
}

type ListSubmissionsRequest struct {
	UserID string
	Type   string
}

type CreateSubmissionRequest struct {
	UserID         string
	ChallengeID    string
	Type           string
	Note           string
	Media          Media
	IdempotencyKey string
}

// SubmissionAPI is the server side of the submission store.
type SubmissionAPI interface {
	ListSubmissions(ctx context.Context, req ListSubmissionsRequest) ([]Submission, error)
	CreateSubmission(ctx context.Context, req CreateSubmissionRequest) (Submission, error)
}

type LoginInput struct {
	Email    string
	Password string
}

type RegisterInput struct {
	Name     string
	Email    string
	Password string
}

type LogoutListener func(ctx context.Context, userID string, reason string)

// Authenticator owns the credential lifecycle. Forced logouts triggered by a
// failed refresh are reported through logout listeners.
type Authenticator interface {
	Login(ctx context.Context, input LoginInput) (Credential, error)
	Register(ctx context.Context, input RegisterInput) (Credential, error)
	Restore(ctx context.Context, userID string) (Credential, error)
	Logout(ctx context.Context, reason string) error
	OnLogout(listener LogoutListener) func()
}

type CredentialStore interface {
	Save(ctx context.Context, credential Credential) error
	Load(ctx context.Context, userID string) (Credential, error)
	Delete(ctx context.Context, userID string) error
}

// MirrorStore persists the local submission mirror. Entries are kept in the
// order given to Replace and Prepend.
type MirrorStore interface {
	Load(ctx context.Context, key MirrorKey) ([]Submission, error)
	Replace(ctx context.Context, key MirrorKey, submissions []Submission) error
	Prepend(ctx context.Context, key MirrorKey, submission Submission) error
	Clear(ctx context.Context, key MirrorKey) error
}

// CachedSubmissionReader lists submissions through a read cache.
type CachedSubmissionReader interface {
	CachedListSubmissions(ctx context.Context, req ListSubmissionsRequest) ([]Submission, error)
}

// ResponseInvalidator drops cached read responses whose key contains pattern.
// An empty pattern drops everything.
type ResponseInvalidator interface {
	Clear(pattern string)
}

type SessionListener interface {
	OnSessionStart(ctx context.Context, session Session)
	OnSessionEnd(ctx context.Context, session Session, reason string)
}

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

type NopMetricsRecorder struct{}

func (NopMetricsRecorder) IncCounter(context.Context, string, int64, map[string]string) {}

func (NopMetricsRecorder) ObserveHistogram(context.Context, string, float64, map[string]string) {}

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger
