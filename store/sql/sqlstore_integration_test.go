package sqlstore_test

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"testing"
	"time"

	persistence "github.com/goliatone/go-persistence-bun"
	"github.com/goliatone/go-submissions/core"
	submissionmigrations "github.com/goliatone/go-submissions/migrations"
	sqlstore "github.com/goliatone/go-submissions/store/sql"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun/dialect/sqlitedialect"
)

type testPersistenceConfig struct {
	driver string
	server string
}

func (c testPersistenceConfig) GetDebug() bool {
	return false
}

func (c testPersistenceConfig) GetDriver() string {
	return c.driver
}

func (c testPersistenceConfig) GetServer() string {
	return c.server
}

func (c testPersistenceConfig) GetPingTimeout() time.Duration {
	return time.Second
}

func (c testPersistenceConfig) GetOtelIdentifier() string {
	return "go-submissions-tests"
}

func TestMigrationSmokeApplySQLite(t *testing.T) {
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	for _, table := range []string{"submission_mirror_entries", "session_credentials"} {
		var tableName string
		if err := client.DB().NewRaw(
			"SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?",
			table,
		).Scan(context.Background(), &tableName); err != nil {
			t.Fatalf("query sqlite master: %v", err)
		}
		if tableName != table {
			t.Fatalf("expected %s table, got %q", table, tableName)
		}
	}
}

func TestMirrorStore_ReplacePrependAndNamespaces(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client)
	if err != nil {
		t.Fatalf("new repository factory: %v", err)
	}
	store := factory.MirrorStore()
	key := core.SubmissionsKey("u1")

	points := 20
	initial := []core.Submission{
		submission("s2", "c2", core.SubmissionStatusApproved, 2),
		submission("s1", "c1", core.SubmissionStatusRejected, 1),
	}
	initial[0].PointsAwarded = &points
	if err := store.Replace(ctx, key, initial); err != nil {
		t.Fatalf("replace: %v", err)
	}
	if err := store.Prepend(ctx, key, submission("s3", "c1", core.SubmissionStatusPending, 3)); err != nil {
		t.Fatalf("prepend: %v", err)
	}
	// prepending a known id moves it to the head instead of duplicating it
	if err := store.Prepend(ctx, key, submission("s1", "c1", core.SubmissionStatusRejected, 1)); err != nil {
		t.Fatalf("prepend existing: %v", err)
	}

	loaded, err := store.Load(ctx, key)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := ids(loaded); got != "s1,s3,s2" {
		t.Fatalf("unexpected order %s", got)
	}
	if loaded[2].PointsAwarded == nil || *loaded[2].PointsAwarded != 20 {
		t.Fatalf("expected points to round trip, got %+v", loaded[2])
	}
	if !loaded[1].Ref.IsConfirmed() || loaded[1].Status != core.SubmissionStatusPending {
		t.Fatalf("unexpected entry %+v", loaded[1])
	}

	snapshot, err := store.Load(ctx, core.SnapshotKey("u1"))
	if err != nil || len(snapshot) != 0 {
		t.Fatalf("expected empty snapshot namespace, got %v err=%v", snapshot, err)
	}
	other, err := store.Load(ctx, core.SubmissionsKey("u2"))
	if err != nil || len(other) != 0 {
		t.Fatalf("expected other user isolated, got %v err=%v", other, err)
	}

	if err := store.Replace(ctx, key, initial); err != nil {
		t.Fatalf("second replace: %v", err)
	}
	if err := store.Replace(ctx, key, initial); err != nil {
		t.Fatalf("idempotent replace: %v", err)
	}
	loaded, _ = store.Load(ctx, key)
	if got := ids(loaded); got != "s2,s1" {
		t.Fatalf("expected full replace, got %s", got)
	}

	if err := store.Clear(ctx, key); err != nil {
		t.Fatalf("clear: %v", err)
	}
	loaded, _ = store.Load(ctx, key)
	if len(loaded) != 0 {
		t.Fatalf("expected cleared mirror, got %d", len(loaded))
	}
}

func TestMirrorStore_RejectsInvalidKey(t *testing.T) {
	client, cleanup := newSQLiteClient(t)
	defer cleanup()
	store, err := sqlstore.NewMirrorStore(client.DB())
	if err != nil {
		t.Fatalf("new mirror store: %v", err)
	}
	if _, err := store.Load(context.Background(), core.MirrorKey{Namespace: core.NamespaceSubmissions}); err == nil {
		t.Fatalf("expected error for key without user")
	}
}

func TestCredentialStore_SaveReplacesAndDeletes(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	factory, err := sqlstore.NewRepositoryFactoryFromDB(client.DB())
	if err != nil {
		t.Fatalf("new repository factory: %v", err)
	}
	store := factory.CredentialStore()

	expiresAt := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	if err := store.Save(ctx, core.Credential{UserID: "u1", AccessToken: "a1", RefreshToken: "r1", ExpiresAt: &expiresAt}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := store.Save(ctx, core.Credential{UserID: "u1", AccessToken: "a2", RefreshToken: "r1"}); err != nil {
		t.Fatalf("save rotated: %v", err)
	}

	loaded, err := store.Load(ctx, "u1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.AccessToken != "a2" || loaded.ExpiresAt != nil {
		t.Fatalf("expected rotated credential, got %+v", loaded)
	}
	var rows int
	if err := client.DB().NewRaw("SELECT COUNT(*) FROM session_credentials WHERE user_id = ?", "u1").Scan(ctx, &rows); err != nil {
		t.Fatalf("count credentials: %v", err)
	}
	if rows != 1 {
		t.Fatalf("expected one credential row per user, got %d", rows)
	}

	if err := store.Delete(ctx, "u1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.Load(ctx, "u1"); err == nil {
		t.Fatalf("expected missing credential after delete")
	}
	if err := store.Save(ctx, core.Credential{UserID: "u1"}); err == nil {
		t.Fatalf("expected validation error for credential without token")
	}
}

func TestService_PersistsMirrorThroughSQLStore(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client)
	if err != nil {
		t.Fatalf("new repository factory: %v", err)
	}
	api := &stubSubmissionAPI{}
	service, err := core.NewService(core.Config{},
		core.WithSubmissionAPI(api),
		core.WithAuthenticator(&stubAuthenticator{}),
		core.WithMirrorStore(factory.MirrorStore()),
	)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	defer service.Close()

	if _, err := service.Login(ctx, core.LoginInput{Email: "u1"}); err != nil {
		t.Fatalf("login: %v", err)
	}
	created, err := service.CreateSubmission(ctx, core.CreateSubmissionInput{
		ChallengeID: "c1",
		Media:       core.Media{Filename: "proof.jpg", ContentType: "image/jpeg", Data: []byte{0xff}},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	persisted, err := factory.MirrorStore().Load(ctx, core.SubmissionsKey("u1"))
	if err != nil {
		t.Fatalf("load mirror: %v", err)
	}
	if len(persisted) != 1 || persisted[0].ID() != created.ID() {
		t.Fatalf("expected created submission persisted, got %+v", persisted)
	}

	if err := service.Logout(ctx); err != nil {
		t.Fatalf("logout: %v", err)
	}
	persisted, _ = factory.MirrorStore().Load(ctx, core.SubmissionsKey("u1"))
	if len(persisted) != 0 {
		t.Fatalf("expected logout to clear the persisted mirror")
	}
}

type stubSubmissionAPI struct {
	mu          sync.Mutex
	submissions []core.Submission
}

func (s *stubSubmissionAPI) ListSubmissions(_ context.Context, req core.ListSubmissionsRequest) ([]core.Submission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Submission
	for _, submission := range s.submissions {
		if submission.UserID == req.UserID {
			out = append(out, submission)
		}
	}
	return out, nil
}

func (s *stubSubmissionAPI) CreateSubmission(_ context.Context, req core.CreateSubmissionRequest) (core.Submission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	created := core.Submission{
		Ref:         core.ConfirmedRef(fmt.Sprintf("s%d", 100+len(s.submissions))),
		UserID:      req.UserID,
		ChallengeID: req.ChallengeID,
		Status:      core.SubmissionStatusPending,
		CreatedAt:   time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	s.submissions = append(s.submissions, created)
	return created, nil
}

type stubAuthenticator struct{}

func (stubAuthenticator) Login(_ context.Context, input core.LoginInput) (core.Credential, error) {
	return core.Credential{UserID: input.Email, AccessToken: "token"}, nil
}

func (stubAuthenticator) Register(_ context.Context, input core.RegisterInput) (core.Credential, error) {
	return core.Credential{UserID: input.Email, AccessToken: "token"}, nil
}

func (stubAuthenticator) Restore(_ context.Context, userID string) (core.Credential, error) {
	return core.Credential{UserID: userID, AccessToken: "token"}, nil
}

func (stubAuthenticator) Logout(context.Context, string) error { return nil }

func (stubAuthenticator) OnLogout(core.LogoutListener) func() { return func() {} }

func submission(id string, challengeID string, status core.SubmissionStatus, minute int) core.Submission {
	return core.Submission{
		Ref:         core.ConfirmedRef(id),
		UserID:      "u1",
		ChallengeID: challengeID,
		Status:      status,
		MediaRef:    "https://media.example/" + id,
		CreatedAt:   time.Date(2026, 1, 1, 12, minute, 0, 0, time.UTC),
	}
}

func ids(submissions []core.Submission) string {
	out := ""
	for i, submission := range submissions {
		if i > 0 {
			out += ","
		}
		out += submission.ID()
	}
	return out
}

func newSQLiteClient(t *testing.T) (*persistence.Client, func()) {
	t.Helper()

	dsn := fmt.Sprintf(
		"file:submissions-test-%d?mode=memory&cache=shared&_foreign_keys=on",
		time.Now().UnixNano(),
	)
	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		t.Fatalf("open sqlite db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	cfg := testPersistenceConfig{
		driver: "sqlite3",
		server: dsn,
	}
	client, err := persistence.New(cfg, sqlDB, sqlitedialect.New())
	if err != nil {
		_ = sqlDB.Close()
		t.Fatalf("new persistence client: %v", err)
	}

	if err := submissionmigrations.Apply(context.Background(), client, submissionmigrations.DialectSQLite); err != nil {
		_ = client.Close()
		t.Fatalf("migrate: %v", err)
	}

	return client, func() {
		_ = client.Close()
	}
}
