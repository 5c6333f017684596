package submissions

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-submissions/core"
	submissionsquery "github.com/goliatone/go-submissions/query"
	reconcile "github.com/goliatone/go-submissions/sync"
)

// fakeBackend serves the auth and submissions endpoints in memory.
type fakeBackend struct {
	mu           sync.Mutex
	validToken   string
	issued       int
	nextID       int
	submissions  []map[string]any
	listRequests int
	refreshes    int
	failRefresh  bool
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{nextID: 100}
}

func (b *fakeBackend) issueToken() string {
	b.issued++
	b.validToken = "token-" + strconv.Itoa(b.issued)
	return b.validToken
}

func (b *fakeBackend) expireToken() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.validToken = "rotated-out"
}

func (b *fakeBackend) review(id string, status string, points int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, submission := range b.submissions {
		if submission["id"] == id {
			submission["status"] = status
			submission["pointsAwarded"] = points
		}
	}
}

func (b *fakeBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")

	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/auth/login":
		writeJSON(w, http.StatusOK, map[string]any{
			"accessToken":  b.issueToken(),
			"refreshToken": "refresh-1",
			"user":         map[string]any{"id": "u1"},
		})
		return
	case r.Method == http.MethodPost && r.URL.Path == "/auth/refresh":
		b.refreshes++
		if b.failRefresh {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"message": "refresh token revoked"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"accessToken": b.issueToken()})
		return
	}

	if r.Header.Get("Authorization") != "Bearer "+b.validToken {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"message": "token expired"})
		return
	}

	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/submissions":
		b.listRequests++
		userID := r.URL.Query().Get("userId")
		out := []map[string]any{}
		for _, submission := range b.submissions {
			if submission["userId"] == userID {
				out = append(out, submission)
			}
		}
		writeJSON(w, http.StatusOK, map[string]any{"submissions": out})
	case r.Method == http.MethodPost && r.URL.Path == "/submissions":
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"message": err.Error()})
			return
		}
		created := map[string]any{
			"id":          "s" + strconv.Itoa(b.nextID),
			"userId":      "u1",
			"challengeId": r.FormValue("challengeId"),
			"status":      "pending",
			"mediaUrl":    "https://media.example/proof.jpg",
			"createdAt":   time.Date(2026, 3, 1, 9, 0, b.nextID%60, 0, time.UTC).Format(time.RFC3339),
		}
		b.nextID++
		b.submissions = append(b.submissions, created)
		writeJSON(w, http.StatusCreated, map[string]any{"submission": created})
	default:
		writeJSON(w, http.StatusNotFound, map[string]any{"message": "not found"})
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

type eventRecorder struct {
	mu     sync.Mutex
	events []core.Event
}

func (r *eventRecorder) handle(_ context.Context, event core.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *eventRecorder) snapshot() []core.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]core.Event(nil), r.events...)
}

func newTestModule(t *testing.T, backend *fakeBackend, recorder *eventRecorder) *Module {
	t.Helper()
	server := httptest.NewServer(backend)
	t.Cleanup(server.Close)

	manual := make(chan time.Time)
	module, err := New(context.Background(), Config{BaseURL: server.URL},
		WithHTTPClient(server.Client()),
		WithEventHandler(recorder.handle, core.EventStatusChanged),
		WithEngineOptions(reconcile.WithTicker(func(time.Duration) (<-chan time.Time, func()) {
			return manual, func() {}
		})),
	)
	if err != nil {
		t.Fatalf("new module: %v", err)
	}
	t.Cleanup(module.Close)
	return module
}

func testMedia() core.Media {
	return core.Media{Filename: "proof.jpg", ContentType: "image/jpeg", Data: []byte{0xff, 0xd8}}
}

func TestModule_ApprovalReconciledOnceAndBlocksResubmission(t *testing.T) {
	ctx := context.Background()
	backend := newFakeBackend()
	recorder := &eventRecorder{}
	module := newTestModule(t, backend, recorder)
	service := module.Service()

	if _, err := service.Login(ctx, core.LoginInput{Email: "ana@example.com", Password: "pw"}); err != nil {
		t.Fatalf("login: %v", err)
	}
	if module.Engine() == nil || !module.Engine().Running() {
		t.Fatalf("expected reconciliation to start with the session")
	}

	created, err := service.CreateSubmission(ctx, core.CreateSubmissionInput{ChallengeID: "c1", Media: testMedia()})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.ID() != "s100" || created.Status != core.SubmissionStatusPending || !created.Ref.IsConfirmed() {
		t.Fatalf("unexpected created submission %+v", created)
	}
	decision, err := service.CanSubmit(ctx, "c1")
	if err != nil || decision.Reason != core.DecisionBlockedPending {
		t.Fatalf("expected blocked-pending, got %+v err=%v", decision, err)
	}

	if _, err := module.Engine().Poll(ctx); err != nil {
		t.Fatalf("first poll: %v", err)
	}
	if got := len(recorder.snapshot()); got != 0 {
		t.Fatalf("expected no events before review, got %d", got)
	}

	backend.review("s100", "approved", 20)
	for i := 0; i < 2; i++ {
		if _, err := module.Engine().Poll(ctx); err != nil {
			t.Fatalf("poll %d: %v", i, err)
		}
	}

	events := recorder.snapshot()
	if len(events) != 1 {
		t.Fatalf("expected exactly one status change, got %d", len(events))
	}
	event := events[0]
	if event.Submission == nil || event.Submission.ID() != "s100" || event.PreviousStatus != core.SubmissionStatusPending {
		t.Fatalf("unexpected event %+v", event)
	}
	if event.Submission.PointsAwarded == nil || *event.Submission.PointsAwarded != 20 {
		t.Fatalf("expected points awarded on event")
	}

	decision, err = service.CanSubmit(ctx, "c1")
	if err != nil || decision.Allowed || decision.Reason != core.DecisionBlockedApproved {
		t.Fatalf("expected blocked-approved, got %+v err=%v", decision, err)
	}
}

func TestModule_ExpiredTokenRefreshesAndReplays(t *testing.T) {
	ctx := context.Background()
	backend := newFakeBackend()
	module := newTestModule(t, backend, &eventRecorder{})

	if _, err := module.Service().Login(ctx, core.LoginInput{Email: "ana@example.com", Password: "pw"}); err != nil {
		t.Fatalf("login: %v", err)
	}
	backend.expireToken()

	if _, err := module.Service().RefreshSubmissions(ctx, core.RefreshOptions{}); err != nil {
		t.Fatalf("refresh after token expiry: %v", err)
	}
	backend.mu.Lock()
	refreshes := backend.refreshes
	backend.mu.Unlock()
	if refreshes != 1 {
		t.Fatalf("expected one credential refresh, got %d", refreshes)
	}
	credential, ok := module.Credentials().Current()
	if !ok || credential.AccessToken != "token-2" {
		t.Fatalf("expected rotated credential, got %+v", credential)
	}
	if _, ok := module.Service().CurrentSession(); !ok {
		t.Fatalf("expected session to survive a successful refresh")
	}
}

func TestModule_FailedRefreshForcesLogout(t *testing.T) {
	ctx := context.Background()
	backend := newFakeBackend()
	module := newTestModule(t, backend, &eventRecorder{})

	if _, err := module.Service().Login(ctx, core.LoginInput{Email: "ana@example.com", Password: "pw"}); err != nil {
		t.Fatalf("login: %v", err)
	}
	backend.expireToken()
	backend.mu.Lock()
	backend.failRefresh = true
	backend.mu.Unlock()

	if _, err := module.Service().RefreshSubmissions(ctx, core.RefreshOptions{}); err == nil {
		t.Fatalf("expected refresh failure")
	}
	if _, ok := module.Service().CurrentSession(); ok {
		t.Fatalf("expected forced logout to end the session")
	}
	if _, ok := module.Credentials().Current(); ok {
		t.Fatalf("expected credential cleared")
	}
	if module.Engine().Running() {
		t.Fatalf("expected reconciliation to stop with the session")
	}
}

func TestNew_RequiresBaseURL(t *testing.T) {
	if _, err := New(context.Background(), Config{}); err == nil {
		t.Fatalf("expected error without base url")
	}
}

func TestNew_DisabledReconcileSkipsEngine(t *testing.T) {
	loader := core.StaticConfigLoader{Values: map[string]any{
		"base_url":  "https://api.example",
		"reconcile": map[string]any{"enabled": false},
	}}
	module, err := New(context.Background(), Config{}, WithConfigProvider(core.NewCfgxConfigProvider(loader)))
	if err != nil {
		t.Fatalf("new module: %v", err)
	}
	defer module.Close()
	if module.Engine() != nil {
		t.Fatalf("expected no engine when reconcile is disabled")
	}
	if module.Config().BaseURL != "https://api.example" {
		t.Fatalf("expected loaded base url, got %q", module.Config().BaseURL)
	}
}

func TestModule_ServerSubmissionsServedFromResponseCache(t *testing.T) {
	ctx := context.Background()
	backend := newFakeBackend()
	module := newTestModule(t, backend, &eventRecorder{})
	service := module.Service()

	if _, err := service.Login(ctx, core.LoginInput{Email: "ana@example.com", Password: "pw"}); err != nil {
		t.Fatalf("login: %v", err)
	}
	if _, err := service.CreateSubmission(ctx, core.CreateSubmissionInput{ChallengeID: "c1", Media: testMedia()}); err != nil {
		t.Fatalf("create: %v", err)
	}

	backend.mu.Lock()
	before := backend.listRequests
	backend.mu.Unlock()
	for i := 0; i < 2; i++ {
		listed, err := module.Facade().Queries().ListServerSubmissions.Query(ctx, submissionsquery.ListServerSubmissionsMessage{})
		if err != nil {
			t.Fatalf("server submissions %d: %v", i, err)
		}
		if len(listed) != 1 || listed[0].ID() != "s100" {
			t.Fatalf("unexpected server submissions %+v", listed)
		}
	}
	backend.mu.Lock()
	fetched := backend.listRequests - before
	backend.mu.Unlock()
	if fetched != 1 {
		t.Fatalf("expected the second read to be served from cache, got %d fetches", fetched)
	}
	if module.Transport().Cache().Len() == 0 {
		t.Fatalf("expected the server list to be cached")
	}

	if err := service.Logout(ctx); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if module.Transport().Cache().Len() != 0 {
		t.Fatalf("expected logout to clear the response cache")
	}
}
