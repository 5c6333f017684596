package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-config/cfgx"
	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
	opts "github.com/goliatone/go-options"
	"github.com/google/uuid"
)

type ErrorFactory func(message string, category ...goerrors.Category) *goerrors.Error

type ErrorMapper func(err error) *goerrors.Error

type ConfigProvider interface {
	Load(ctx context.Context, defaults Config) (Config, error)
}

type RawConfigLoader interface {
	LoadRaw(ctx context.Context) (map[string]any, error)
}

type OptionsResolver interface {
	Resolve(defaults Config, loaded Config, runtime Config) (Config, error)
}

type serviceBuilder struct {
	runtimeConfig     Config
	logger            Logger
	loggerProvider    LoggerProvider
	metricsRecorder   MetricsRecorder
	errorFactory      ErrorFactory
	errorMapper       ErrorMapper
	configProvider    ConfigProvider
	optionsResolver   OptionsResolver
	submissionAPI     SubmissionAPI
	authenticator     Authenticator
	mirrorStore       MirrorStore
	events            *EventBus
	invalidator       ResponseInvalidator
	cachedReader      CachedSubmissionReader
	sessionListeners  []SessionListener
	now               func() time.Time
	idempotencyKeyGen func() string
}

type Option func(*serviceBuilder)

func WithLogger(logger Logger) Option {
	return func(b *serviceBuilder) {
		b.logger = logger
	}
}

func WithLoggerProvider(provider LoggerProvider) Option {
	return func(b *serviceBuilder) {
		b.loggerProvider = provider
	}
}

func WithMetricsRecorder(recorder MetricsRecorder) Option {
	return func(b *serviceBuilder) {
		b.metricsRecorder = recorder
	}
}

func WithErrorFactory(factory ErrorFactory) Option {
	return func(b *serviceBuilder) {
		b.errorFactory = factory
	}
}

func WithErrorMapper(mapper ErrorMapper) Option {
	return func(b *serviceBuilder) {
		b.errorMapper = mapper
	}
}

func WithConfigProvider(provider ConfigProvider) Option {
	return func(b *serviceBuilder) {
		b.configProvider = provider
	}
}

func WithOptionsResolver(resolver OptionsResolver) Option {
	return func(b *serviceBuilder) {
		b.optionsResolver = resolver
	}
}

func WithSubmissionAPI(api SubmissionAPI) Option {
	return func(b *serviceBuilder) {
		b.submissionAPI = api
	}
}

func WithAuthenticator(authenticator Authenticator) Option {
	return func(b *serviceBuilder) {
		b.authenticator = authenticator
	}
}

func WithMirrorStore(store MirrorStore) Option {
	return func(b *serviceBuilder) {
		b.mirrorStore = store
	}
}

func WithEventBus(bus *EventBus) Option {
	return func(b *serviceBuilder) {
		b.events = bus
	}
}

// WithResponseInvalidator sets the read cache cleared after successful writes.
func WithResponseInvalidator(invalidator ResponseInvalidator) Option {
	return func(b *serviceBuilder) {
		b.invalidator = invalidator
	}
}

// WithCachedSubmissionReader sets the reader behind ServerSubmissions.
func WithCachedSubmissionReader(reader CachedSubmissionReader) Option {
	return func(b *serviceBuilder) {
		b.cachedReader = reader
	}
}

func WithSessionListener(listener SessionListener) Option {
	return func(b *serviceBuilder) {
		if listener != nil {
			b.sessionListeners = append(b.sessionListeners, listener)
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(b *serviceBuilder) {
		b.now = now
	}
}

func WithIdempotencyKeyGenerator(gen func() string) Option {
	return func(b *serviceBuilder) {
		b.idempotencyKeyGen = gen
	}
}

func defaultServiceBuilder(runtime Config) serviceBuilder {
	loggerProvider, logger := glog.Resolve(defaultServiceName, nil, nil)
	return serviceBuilder{
		runtimeConfig:     runtime,
		loggerProvider:    loggerProvider,
		logger:            logger,
		metricsRecorder:   NopMetricsRecorder{},
		errorFactory:      goerrors.New,
		errorMapper:       defaultErrorMapper,
		configProvider:    NewCfgxConfigProvider(nil),
		optionsResolver:   GoOptionsResolver{},
		mirrorStore:       NewMemoryMirrorStore(),
		events:            NewEventBus(),
		now:               func() time.Time { return time.Now().UTC() },
		idempotencyKeyGen: uuid.NewString,
	}
}

func defaultErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}
	return serviceErrorMapper(err)
}

// StaticConfigLoader serves a fixed raw config map, typically decoded from a
// file or environment by the host application.
type StaticConfigLoader struct {
	Values map[string]any
}

func (l StaticConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.Values) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(l.Values))
	for key, value := range l.Values {
		out[key] = value
	}
	return out, nil
}

type CfgxConfigProvider struct {
	Loader RawConfigLoader
}

func NewCfgxConfigProvider(loader RawConfigLoader) *CfgxConfigProvider {
	return &CfgxConfigProvider{Loader: loader}
}

func (p *CfgxConfigProvider) Load(ctx context.Context, defaults Config) (Config, error) {
	if p == nil {
		return defaults, nil
	}
	loader := p.Loader
	if loader == nil {
		loader = StaticConfigLoader{}
	}
	raw, err := loader.LoadRaw(ctx)
	if err != nil {
		return Config{}, err
	}
	return cfgx.Build[Config](raw,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
}

// GoOptionsResolver merges defaults < loaded config < runtime overrides.
type GoOptionsResolver struct{}

func (GoOptionsResolver) Resolve(defaults Config, loaded Config, runtime Config) (Config, error) {
	stack, err := opts.NewStack(
		opts.NewLayer(
			opts.NewScope("defaults", 0),
			configToLayerMap(defaults, true, true),
			opts.WithSnapshotID[map[string]any]("defaults"),
		),
		opts.NewLayer(
			opts.NewScope("config", 10),
			configToLayerMap(loaded, false, true),
			opts.WithSnapshotID[map[string]any]("config"),
		),
		opts.NewLayer(
			opts.NewScope("runtime", 20),
			configToLayerMap(runtime, false, false),
			opts.WithSnapshotID[map[string]any]("runtime"),
		),
	)
	if err != nil {
		return Config{}, fmt.Errorf("core: options stack build failed: %w", err)
	}
	merged, err := stack.Merge()
	if err != nil {
		return Config{}, fmt.Errorf("core: options merge failed: %w", err)
	}
	resolved, err := cfgx.Build[Config](merged.Value,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	return resolved, nil
}

// configToLayerMap flattens cfg into an options layer. Zero values are only
// emitted for the defaults layer so they never mask lower layers. Loaded config
// is built on top of the defaults, so its booleans are emitted as-is.
func configToLayerMap(cfg Config, includeZero bool, includeBools bool) map[string]any {
	layer := map[string]any{}
	setString := func(target map[string]any, key, value string) {
		if includeZero || strings.TrimSpace(value) != "" {
			target[key] = value
		}
	}
	setInt := func(target map[string]any, key string, value int64) {
		if includeZero || value != 0 {
			target[key] = value
		}
	}

	setString(layer, "service_name", cfg.ServiceName)
	setString(layer, "base_url", cfg.BaseURL)
	setString(layer, "submission_type", cfg.SubmissionType)

	transport := map[string]any{}
	setInt(transport, "timeout_seconds", int64(cfg.Transport.TimeoutSeconds))
	setInt(transport, "max_response_body_bytes", cfg.Transport.MaxResponseBodyBytes)
	if len(transport) > 0 {
		layer["transport"] = transport
	}

	cache := map[string]any{}
	setInt(cache, "default_ttl_seconds", int64(cfg.Cache.DefaultTTLSeconds))
	setInt(cache, "list_ttl_seconds", int64(cfg.Cache.ListTTLSeconds))
	if len(cache) > 0 {
		layer["cache"] = cache
	}

	reconcile := map[string]any{}
	if includeZero || includeBools || cfg.Reconcile.Enabled {
		reconcile["enabled"] = cfg.Reconcile.Enabled
	}
	setInt(reconcile, "interval_seconds", int64(cfg.Reconcile.IntervalSeconds))
	if len(reconcile) > 0 {
		layer["reconcile"] = reconcile
	}
	return layer
}
