package submissions

import (
	"context"
	"fmt"
	"strings"

	glog "github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-submissions/auth"
	"github.com/goliatone/go-submissions/core"
	reconcile "github.com/goliatone/go-submissions/sync"
	"github.com/goliatone/go-submissions/transport"
)

type Config = core.Config

type Service = core.Service

type Session = core.Session

type Submission = core.Submission

type Decision = core.Decision

type Event = core.Event

type EventHandler = core.EventHandler

func DefaultConfig() Config {
	return core.DefaultConfig()
}

// Module is a fully wired submissions client: transport with its response
// cache, the credential coordinator, the submission store and, when enabled,
// the reconciliation engine.
type Module struct {
	config      Config
	service     *core.Service
	transport   *transport.Client
	credentials *auth.Coordinator
	api         *transport.SubmissionsClient
	engine      *reconcile.Engine
	facade      *Facade
	unsubscribe []func()
}

type SetupOption func(*setupOptions)

type setupOptions struct {
	logger          core.Logger
	loggerProvider  core.LoggerProvider
	configProvider  core.ConfigProvider
	httpClient      transport.HTTPDoer
	credentialStore core.CredentialStore
	mirrorStore     core.MirrorStore
	serviceOptions  []core.Option
	engineOptions   []reconcile.Option
	handlers        []eventSubscription
}

type eventSubscription struct {
	handler core.EventHandler
	types   []core.EventType
}

func WithLogger(logger core.Logger) SetupOption {
	return func(o *setupOptions) {
		o.logger = logger
	}
}

func WithLoggerProvider(provider core.LoggerProvider) SetupOption {
	return func(o *setupOptions) {
		o.loggerProvider = provider
	}
}

func WithConfigProvider(provider core.ConfigProvider) SetupOption {
	return func(o *setupOptions) {
		o.configProvider = provider
	}
}

func WithHTTPClient(client transport.HTTPDoer) SetupOption {
	return func(o *setupOptions) {
		o.httpClient = client
	}
}

// WithCredentialStore persists credentials across restarts; the default keeps
// them in memory.
func WithCredentialStore(store core.CredentialStore) SetupOption {
	return func(o *setupOptions) {
		o.credentialStore = store
	}
}

func WithMirrorStore(store core.MirrorStore) SetupOption {
	return func(o *setupOptions) {
		o.mirrorStore = store
	}
}

func WithServiceOptions(opts ...core.Option) SetupOption {
	return func(o *setupOptions) {
		o.serviceOptions = append(o.serviceOptions, opts...)
	}
}

func WithEngineOptions(opts ...reconcile.Option) SetupOption {
	return func(o *setupOptions) {
		o.engineOptions = append(o.engineOptions, opts...)
	}
}

// WithEventHandler subscribes handler to the module's event bus.
func WithEventHandler(handler core.EventHandler, types ...core.EventType) SetupOption {
	return func(o *setupOptions) {
		if handler != nil {
			o.handlers = append(o.handlers, eventSubscription{handler: handler, types: types})
		}
	}
}

func New(ctx context.Context, cfg Config, opts ...SetupOption) (*Module, error) {
	options := setupOptions{}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}
	if options.configProvider == nil {
		options.configProvider = core.NewCfgxConfigProvider(nil)
	}
	if options.mirrorStore == nil {
		options.mirrorStore = core.NewMemoryMirrorStore()
	}

	defaults := core.DefaultConfig()
	loaded, err := options.configProvider.Load(ctx, defaults)
	if err != nil {
		return nil, err
	}
	resolved, err := core.GoOptionsResolver{}.Resolve(defaults, loaded, cfg)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(resolved.BaseURL) == "" {
		return nil, fmt.Errorf("submissions: base_url is required")
	}

	provider, logger := glog.Resolve("submissions", options.loggerProvider, options.logger)
	logger = glog.Ensure(logger)
	named := func(name string) core.Logger {
		if provider == nil {
			return logger
		}
		return glog.Ensure(provider.GetLogger(name))
	}

	cache := transport.NewResponseCache(resolved.Cache.DefaultTTL())
	adapter := transport.NewRESTAdapter(options.httpClient)
	if resolved.Transport.MaxResponseBodyBytes > 0 {
		adapter.MaxResponseBodyBytes = resolved.Transport.MaxResponseBodyBytes
	}
	client := transport.NewClient(resolved.BaseURL,
		transport.WithAdapter(adapter),
		transport.WithResponseCache(cache),
		transport.WithTimeout(resolved.Transport.Timeout()),
		transport.WithLogger(named("submissions.transport")),
	)
	coordinator := auth.NewCoordinator(transport.NewAuthClient(client),
		auth.WithCredentialStore(options.credentialStore),
		auth.WithResponseCache(cache),
		auth.WithLogger(named("submissions.auth")),
	)
	client.SetCredentials(coordinator)
	api := transport.NewSubmissionsClient(client, resolved.Cache.ListTTL())

	serviceOptions := []core.Option{
		core.WithLogger(logger),
		core.WithLoggerProvider(provider),
		core.WithConfigProvider(options.configProvider),
		core.WithSubmissionAPI(api),
		core.WithAuthenticator(coordinator),
		core.WithMirrorStore(options.mirrorStore),
		core.WithResponseInvalidator(cache),
		core.WithCachedSubmissionReader(api),
	}
	service, err := core.NewService(resolved, append(serviceOptions, options.serviceOptions...)...)
	if err != nil {
		return nil, err
	}

	module := &Module{
		config:      service.Config(),
		service:     service,
		transport:   client,
		credentials: coordinator,
		api:         api,
	}
	for _, subscription := range options.handlers {
		module.unsubscribe = append(module.unsubscribe, service.Subscribe(subscription.handler, subscription.types...))
	}

	if module.config.Reconcile.Enabled {
		engineOptions := []reconcile.Option{
			reconcile.WithInterval(module.config.Reconcile.Interval()),
			reconcile.WithLogger(named("submissions.reconcile")),
		}
		module.engine = reconcile.NewEngine(service, options.mirrorStore, service.Events(),
			append(engineOptions, options.engineOptions...)...,
		)
		service.AddSessionListener(ctx, module.engine)
	}

	facade, err := NewFacade(service)
	if err != nil {
		module.Close()
		return nil, err
	}
	module.facade = facade
	return module, nil
}

func (m *Module) Config() Config {
	if m == nil {
		return Config{}
	}
	return m.config
}

func (m *Module) Service() *core.Service {
	if m == nil {
		return nil
	}
	return m.service
}

func (m *Module) Transport() *transport.Client {
	if m == nil {
		return nil
	}
	return m.transport
}

func (m *Module) Credentials() *auth.Coordinator {
	if m == nil {
		return nil
	}
	return m.credentials
}

func (m *Module) SubmissionsAPI() *transport.SubmissionsClient {
	if m == nil {
		return nil
	}
	return m.api
}

// Engine returns nil when reconciliation is disabled.
func (m *Module) Engine() *reconcile.Engine {
	if m == nil {
		return nil
	}
	return m.engine
}

func (m *Module) Facade() *Facade {
	if m == nil {
		return nil
	}
	return m.facade
}

// Close stops reconciliation and detaches every subscription. The credential
// and mirror stay persisted.
func (m *Module) Close() {
	if m == nil {
		return
	}
	if m.engine != nil {
		m.engine.Close()
	}
	for _, unsubscribe := range m.unsubscribe {
		unsubscribe()
	}
	m.unsubscribe = nil
	if m.service != nil {
		m.service.Close()
	}
}
