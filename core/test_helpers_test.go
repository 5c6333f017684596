package core

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"
)

type stubLogger struct{}

func (stubLogger) Trace(string, ...any) {}
func (stubLogger) Debug(string, ...any) {}
func (stubLogger) Info(string, ...any)  {}
func (stubLogger) Warn(string, ...any)  {}
func (stubLogger) Error(string, ...any) {}
func (stubLogger) Fatal(string, ...any) {}
func (s stubLogger) WithContext(context.Context) Logger {
	return s
}

type stubLoggerProvider struct {
	logger Logger
}

func (s stubLoggerProvider) GetLogger(string) Logger {
	return s.logger
}

type captureLogger struct {
	mu      sync.Mutex
	entries []string
}

func (l *captureLogger) record(level, msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, level+":"+msg)
}

func (l *captureLogger) Trace(msg string, _ ...any) { l.record("trace", msg) }
func (l *captureLogger) Debug(msg string, _ ...any) { l.record("debug", msg) }
func (l *captureLogger) Info(msg string, _ ...any)  { l.record("info", msg) }
func (l *captureLogger) Warn(msg string, _ ...any)  { l.record("warn", msg) }
func (l *captureLogger) Error(msg string, _ ...any) { l.record("error", msg) }
func (l *captureLogger) Fatal(msg string, _ ...any) { l.record("fatal", msg) }
func (l *captureLogger) WithContext(context.Context) Logger {
	return l
}

func (l *captureLogger) has(entry string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, existing := range l.entries {
		if existing == entry {
			return true
		}
	}
	return false
}

type recordingMetrics struct {
	mu       sync.Mutex
	counters map[string]int64
}

func (m *recordingMetrics) IncCounter(_ context.Context, name string, value int64, _ map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.counters == nil {
		m.counters = map[string]int64{}
	}
	m.counters[name] += value
}

func (m *recordingMetrics) ObserveHistogram(context.Context, string, float64, map[string]string) {}

func (m *recordingMetrics) count(name string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counters[name]
}

// fakeSubmissionAPI plays the server: it assigns ids, keeps history and lets
// tests change review status out of band.
type fakeSubmissionAPI struct {
	mu          sync.Mutex
	nextID      int
	submissions []Submission
	createErr   error
	listErr     error
	createCalls int
	listCalls   int
	lastCreate  CreateSubmissionRequest
	now         func() time.Time
	beforeList  func()
	createGate  chan struct{}
}

func newFakeSubmissionAPI() *fakeSubmissionAPI {
	return &fakeSubmissionAPI{nextID: 100}
}

func (f *fakeSubmissionAPI) CreateSubmission(_ context.Context, req CreateSubmissionRequest) (Submission, error) {
	if f.createGate != nil {
		<-f.createGate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCalls++
	f.lastCreate = req
	if f.createErr != nil {
		return Submission{}, f.createErr
	}
	createdAt := time.Date(2026, 1, 1, 12, 0, f.nextID, 0, time.UTC)
	if f.now != nil {
		createdAt = f.now()
	}
	created := Submission{
		Ref:         ConfirmedRef("s" + strconv.Itoa(f.nextID)),
		UserID:      req.UserID,
		ChallengeID: req.ChallengeID,
		Status:      SubmissionStatusPending,
		MediaRef:    "https://media.example/" + req.Media.Filename,
		Note:        req.Note,
		CreatedAt:   createdAt,
	}
	f.nextID++
	f.submissions = append(f.submissions, created)
	return created, nil
}

func (f *fakeSubmissionAPI) ListSubmissions(_ context.Context, req ListSubmissionsRequest) ([]Submission, error) {
	if f.beforeList != nil {
		f.beforeList()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]Submission, 0, len(f.submissions))
	for _, submission := range f.submissions {
		if submission.UserID == req.UserID {
			out = append(out, cloneSubmission(submission))
		}
	}
	return out, nil
}

func (f *fakeSubmissionAPI) review(id string, status SubmissionStatus, points int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.submissions {
		if f.submissions[i].ID() == id {
			f.submissions[i].Status = status
			if status == SubmissionStatusApproved {
				p := points
				f.submissions[i].PointsAwarded = &p
			}
		}
	}
}

func (f *fakeSubmissionAPI) seed(submission Submission) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submissions = append(f.submissions, submission)
}

type fakeAuthenticator struct {
	mu        sync.Mutex
	listeners map[int]LogoutListener
	nextID    int
	loginErr  error
	logouts   int
}

func newFakeAuthenticator() *fakeAuthenticator {
	return &fakeAuthenticator{listeners: map[int]LogoutListener{}}
}

func (a *fakeAuthenticator) Login(_ context.Context, input LoginInput) (Credential, error) {
	if a.loginErr != nil {
		return Credential{}, a.loginErr
	}
	return Credential{UserID: "user-" + input.Email, AccessToken: "token-" + input.Email}, nil
}

func (a *fakeAuthenticator) Register(_ context.Context, input RegisterInput) (Credential, error) {
	return Credential{UserID: "user-" + input.Email, AccessToken: "token-" + input.Email}, nil
}

func (a *fakeAuthenticator) Restore(_ context.Context, userID string) (Credential, error) {
	if userID == "missing" {
		return Credential{}, errors.New("credential not found")
	}
	return Credential{UserID: userID, AccessToken: "restored"}, nil
}

func (a *fakeAuthenticator) Logout(ctx context.Context, reason string) error {
	a.mu.Lock()
	a.logouts++
	a.mu.Unlock()
	a.forceLogout(ctx, "", reason)
	return nil
}

func (a *fakeAuthenticator) OnLogout(listener LogoutListener) func() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.nextID++
	id := a.nextID
	a.listeners[id] = listener
	return func() {
		a.mu.Lock()
		defer a.mu.Unlock()
		delete(a.listeners, id)
	}
}

func (a *fakeAuthenticator) forceLogout(ctx context.Context, userID, reason string) {
	a.mu.Lock()
	listeners := make([]LogoutListener, 0, len(a.listeners))
	for _, listener := range a.listeners {
		listeners = append(listeners, listener)
	}
	a.mu.Unlock()
	for _, listener := range listeners {
		listener(ctx, userID, reason)
	}
}

type recordingInvalidator struct {
	mu       sync.Mutex
	patterns []string
}

func (r *recordingInvalidator) Clear(pattern string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.patterns = append(r.patterns, pattern)
}

type recordingSessionListener struct {
	mu     sync.Mutex
	starts []Session
	ends   []string
}

func (l *recordingSessionListener) OnSessionStart(_ context.Context, session Session) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.starts = append(l.starts, session)
}

func (l *recordingSessionListener) OnSessionEnd(_ context.Context, session Session, reason string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ends = append(l.ends, session.UserID+":"+reason)
}

type sequenceIDs struct {
	mu   sync.Mutex
	next int
}

func (s *sequenceIDs) NewID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	return fmt.Sprintf("id-%d", s.next)
}

func newTestService(t interface {
	Helper()
	Fatalf(string, ...any)
}, api SubmissionAPI, auth Authenticator, opts ...Option) *Service {
	t.Helper()
	ids := &sequenceIDs{}
	base := []Option{
		WithLogger(stubLogger{}),
		WithSubmissionAPI(api),
		WithAuthenticator(auth),
		WithIdempotencyKeyGenerator(ids.NewID),
	}
	svc, err := NewService(Config{}, append(base, opts...)...)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func testMedia() Media {
	return Media{Filename: "proof.jpg", ContentType: "image/jpeg", Data: []byte{0xff, 0xd8}}
}
