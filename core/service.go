package core

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
)

type Service struct {
	config            Config
	logger            Logger
	loggerProvider    LoggerProvider
	metricsRecorder   MetricsRecorder
	errorFactory      ErrorFactory
	errorMapper       ErrorMapper
	configProvider    ConfigProvider
	optionsResolver   OptionsResolver
	api               SubmissionAPI
	auth              Authenticator
	mirror            MirrorStore
	events            *EventBus
	invalidator       ResponseInvalidator
	cachedReader      CachedSubmissionReader
	now               func() time.Time
	idempotencyKeyGen func() string
	unsubscribeLogout func()

	// mu guards the session and the in-memory overlays below.
	mu               sync.Mutex
	session          *sessionState
	sessionListeners []SessionListener
	placeholders     []Submission
	recentCreates    []recentCreate
	tempSeq          uint64
	createSeq        uint64

	// storeMu serializes policy evaluation with mirror mutations.
	storeMu   sync.Mutex
	refreshMu sync.Mutex
}

type recentCreate struct {
	seq        uint64
	submission Submission
}

type ServiceDependencies struct {
	Logger          Logger
	LoggerProvider  LoggerProvider
	MetricsRecorder MetricsRecorder
	ErrorFactory    ErrorFactory
	ErrorMapper     ErrorMapper
	ConfigProvider  ConfigProvider
	OptionsResolver OptionsResolver
	SubmissionAPI   SubmissionAPI
	Authenticator   Authenticator
	MirrorStore     MirrorStore
	Events          *EventBus
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	builder := defaultServiceBuilder(cfg)
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&builder)
	}

	provider, logger := glog.Resolve(defaultServiceName, builder.loggerProvider, builder.logger)
	logger = glog.Ensure(logger)
	if provider != nil {
		if named := provider.GetLogger(defaultServiceName); named != nil {
			logger = glog.Ensure(named)
		}
	}

	if builder.errorFactory == nil {
		builder.errorFactory = goerrors.New
	}
	if builder.metricsRecorder == nil {
		builder.metricsRecorder = NopMetricsRecorder{}
	}
	if builder.errorMapper == nil {
		builder.errorMapper = defaultErrorMapper
	}
	if builder.configProvider == nil {
		builder.configProvider = NewCfgxConfigProvider(nil)
	}
	if builder.optionsResolver == nil {
		builder.optionsResolver = GoOptionsResolver{}
	}
	if builder.mirrorStore == nil {
		builder.mirrorStore = NewMemoryMirrorStore()
	}
	if builder.events == nil {
		builder.events = NewEventBus()
	}
	if builder.now == nil {
		builder.now = func() time.Time { return time.Now().UTC() }
	}
	if builder.idempotencyKeyGen == nil {
		return nil, fmt.Errorf("core: idempotency key generator is required")
	}

	defaults := DefaultConfig()
	loaded, err := builder.configProvider.Load(context.Background(), defaults)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}
	finalConfig, err := builder.optionsResolver.Resolve(defaults, loaded, builder.runtimeConfig)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}

	svc := &Service{
		config:            finalConfig,
		logger:            logger,
		loggerProvider:    provider,
		metricsRecorder:   builder.metricsRecorder,
		errorFactory:      builder.errorFactory,
		errorMapper:       builder.errorMapper,
		configProvider:    builder.configProvider,
		optionsResolver:   builder.optionsResolver,
		api:               builder.submissionAPI,
		auth:              builder.authenticator,
		mirror:            builder.mirrorStore,
		events:            builder.events,
		invalidator:       builder.invalidator,
		cachedReader:      builder.cachedReader,
		now:               builder.now,
		idempotencyKeyGen: builder.idempotencyKeyGen,
		sessionListeners:  append([]SessionListener(nil), builder.sessionListeners...),
	}
	if svc.auth != nil {
		svc.unsubscribeLogout = svc.auth.OnLogout(svc.handleForcedLogout)
	}
	return svc, nil
}

func mapBuildError(mapper ErrorMapper, err error) error {
	if err == nil {
		return nil
	}
	if mapper == nil {
		return err
	}
	mapped := mapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}

func (s *Service) Config() Config {
	if s == nil {
		return Config{}
	}
	return s.config
}

func (s *Service) Dependencies() ServiceDependencies {
	if s == nil {
		return ServiceDependencies{}
	}
	return ServiceDependencies{
		Logger:          s.logger,
		LoggerProvider:  s.loggerProvider,
		MetricsRecorder: s.metricsRecorder,
		ErrorFactory:    s.errorFactory,
		ErrorMapper:     s.errorMapper,
		ConfigProvider:  s.configProvider,
		OptionsResolver: s.optionsResolver,
		SubmissionAPI:   s.api,
		Authenticator:   s.auth,
		MirrorStore:     s.mirror,
		Events:          s.events,
	}
}

func (s *Service) Events() *EventBus {
	if s == nil {
		return nil
	}
	return s.events
}

// Subscribe registers handler for events published by the service and by the
// reconciliation engine sharing its bus.
func (s *Service) Subscribe(handler EventHandler, types ...EventType) func() {
	if s == nil {
		return func() {}
	}
	return s.events.Subscribe(handler, types...)
}

func (s *Service) Login(ctx context.Context, input LoginInput) (session Session, err error) {
	startedAt := time.Now()
	fields := map[string]any{"email": strings.TrimSpace(input.Email)}
	defer func() {
		s.observeOperation(ctx, startedAt, "login", err, fields)
	}()
	if s.auth == nil {
		return Session{}, s.mapError(fmt.Errorf("core: authenticator is required"))
	}
	// Tear down the previous session before the new credential exists, so
	// nothing from the previous user survives into the new one.
	s.endSession(ctx, "login")
	credential, err := s.auth.Login(ctx, input)
	if err != nil {
		return Session{}, s.mapError(err)
	}
	fields["user_id"] = credential.UserID
	return s.startSession(ctx, credential.UserID), nil
}

func (s *Service) Register(ctx context.Context, input RegisterInput) (session Session, err error) {
	startedAt := time.Now()
	fields := map[string]any{"email": strings.TrimSpace(input.Email)}
	defer func() {
		s.observeOperation(ctx, startedAt, "register", err, fields)
	}()
	if s.auth == nil {
		return Session{}, s.mapError(fmt.Errorf("core: authenticator is required"))
	}
	s.endSession(ctx, "register")
	credential, err := s.auth.Register(ctx, input)
	if err != nil {
		return Session{}, s.mapError(err)
	}
	fields["user_id"] = credential.UserID
	return s.startSession(ctx, credential.UserID), nil
}

// Resume restores a persisted credential for userID and starts a session
// without a login round trip.
func (s *Service) Resume(ctx context.Context, userID string) (session Session, err error) {
	startedAt := time.Now()
	fields := map[string]any{"user_id": userID}
	defer func() {
		s.observeOperation(ctx, startedAt, "resume", err, fields)
	}()
	if s.auth == nil {
		return Session{}, s.mapError(fmt.Errorf("core: authenticator is required"))
	}
	if strings.TrimSpace(userID) == "" {
		return Session{}, s.mapError(fmt.Errorf("core: user id is required"))
	}
	s.endSession(ctx, "resume")
	credential, err := s.auth.Restore(ctx, userID)
	if err != nil {
		return Session{}, s.mapError(err)
	}
	return s.startSession(ctx, credential.UserID), nil
}

func (s *Service) Logout(ctx context.Context) (err error) {
	startedAt := time.Now()
	fields := map[string]any{}
	defer func() {
		s.observeOperation(ctx, startedAt, "logout", err, fields)
	}()
	if current, ok := s.CurrentSession(); ok {
		fields["user_id"] = current.UserID
	}
	s.endSession(ctx, "logout")
	if s.auth == nil {
		return nil
	}
	if err := s.auth.Logout(ctx, "logout"); err != nil {
		return s.mapError(err)
	}
	return nil
}

func (s *Service) handleForcedLogout(ctx context.Context, userID string, reason string) {
	current, ok := s.CurrentSession()
	if !ok {
		return
	}
	if userID != "" && current.UserID != userID {
		return
	}
	s.logInfo(ctx, "session ended by credential coordinator", map[string]any{
		"user_id": current.UserID,
		"reason":  reason,
	})
	s.endSession(ctx, reason)
}

// Close detaches the service from the authenticator.
func (s *Service) Close() {
	if s == nil || s.unsubscribeLogout == nil {
		return
	}
	s.unsubscribeLogout()
}

func (s *Service) mapError(err error) error {
	if err == nil {
		return nil
	}
	if s == nil || s.errorMapper == nil {
		return err
	}
	mapped := s.errorMapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}
