package gocommand

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-command"
	commanddispatcher "github.com/goliatone/go-command/dispatcher"
	"github.com/goliatone/go-command/runner"
	jobqueuecommand "github.com/goliatone/go-job/queue/command"
	submissions "github.com/goliatone/go-submissions"
	submissionscommand "github.com/goliatone/go-submissions/command"
	"github.com/goliatone/go-submissions/core"
	submissionsquery "github.com/goliatone/go-submissions/query"
)

// Bus exposes the submissions facade through the go-command dispatcher.
type Bus struct {
	registry      *command.Registry
	subscriptions []commanddispatcher.Subscription
	runnerOpts    []runner.Option
}

type BusOption func(*Bus)

func WithRegistry(registry *command.Registry) BusOption {
	return func(b *Bus) {
		if registry != nil {
			b.registry = registry
		}
	}
}

func WithRunnerOptions(opts ...runner.Option) BusOption {
	return func(b *Bus) {
		b.runnerOpts = append(b.runnerOpts, opts...)
	}
}

// Bind registers and subscribes every facade command and query. On failure
// the subscriptions made so far are released.
func Bind(facade *submissions.Facade, opts ...BusOption) (*Bus, error) {
	if facade == nil {
		return nil, fmt.Errorf("gocommand: facade is required")
	}
	bus := &Bus{registry: command.NewRegistry()}
	for _, opt := range opts {
		if opt != nil {
			opt(bus)
		}
	}

	commands := facade.Commands()
	queries := facade.Queries()
	steps := []func() (commanddispatcher.Subscription, error){
		func() (commanddispatcher.Subscription, error) { return registerCommand(bus, commands.Login) },
		func() (commanddispatcher.Subscription, error) { return registerCommand(bus, commands.Register) },
		func() (commanddispatcher.Subscription, error) { return registerCommand(bus, commands.Resume) },
		func() (commanddispatcher.Subscription, error) { return registerCommand(bus, commands.Logout) },
		func() (commanddispatcher.Subscription, error) { return registerCommand(bus, commands.CreateSubmission) },
		func() (commanddispatcher.Subscription, error) { return registerCommand(bus, commands.RefreshSubmissions) },
		func() (commanddispatcher.Subscription, error) { return registerQuery(bus, queries.ListSubmissions) },
		func() (commanddispatcher.Subscription, error) { return registerQuery(bus, queries.ListChallengeSubmissions) },
		func() (commanddispatcher.Subscription, error) { return registerQuery(bus, queries.CanSubmit) },
		func() (commanddispatcher.Subscription, error) { return registerQuery(bus, queries.CurrentSession) },
		func() (commanddispatcher.Subscription, error) { return registerQuery(bus, queries.ListServerSubmissions) },
	}
	for _, step := range steps {
		subscription, err := step()
		if err != nil {
			bus.Close()
			return nil, err
		}
		bus.subscriptions = append(bus.subscriptions, subscription)
	}
	return bus, nil
}

func (b *Bus) Registry() *command.Registry {
	if b == nil {
		return nil
	}
	return b.registry
}

// AddQueueResolver mirrors registered commands into a go-job queue registry.
func (b *Bus) AddQueueResolver(key string, queueRegistry *jobqueuecommand.Registry) error {
	if b == nil || b.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	if queueRegistry == nil {
		return fmt.Errorf("gocommand: queue registry is required")
	}
	return b.registry.AddResolver(strings.TrimSpace(key), jobqueuecommand.QueueResolver(queueRegistry))
}

func (b *Bus) Initialize() error {
	if b == nil || b.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	return b.registry.Initialize()
}

// Close unsubscribes all handlers. It is safe to call more than once.
func (b *Bus) Close() {
	if b == nil {
		return
	}
	for _, subscription := range b.subscriptions {
		if subscription != nil {
			subscription.Unsubscribe()
		}
	}
	b.subscriptions = nil
}

func Login(ctx context.Context, input core.LoginInput) error {
	return commanddispatcher.Dispatch(ctx, submissionscommand.LoginMessage{Input: input})
}

func Logout(ctx context.Context) error {
	return commanddispatcher.Dispatch(ctx, submissionscommand.LogoutMessage{})
}

// CreateSubmission dispatches the create command and returns the stored server record.
func CreateSubmission(ctx context.Context, input core.CreateSubmissionInput) (core.Submission, error) {
	result := command.NewResult[core.Submission]()
	ctx = command.ContextWithResult(ctx, result)
	if err := commanddispatcher.Dispatch(ctx, submissionscommand.CreateSubmissionMessage{Input: input}); err != nil {
		return core.Submission{}, err
	}
	created, _ := result.Load()
	return created, nil
}

func RefreshSubmissions(ctx context.Context, opts core.RefreshOptions) error {
	return commanddispatcher.Dispatch(ctx, submissionscommand.RefreshSubmissionsMessage{Options: opts})
}

func ListSubmissions(ctx context.Context) ([]core.Submission, error) {
	return commanddispatcher.Query[submissionsquery.ListSubmissionsMessage, []core.Submission](ctx, submissionsquery.ListSubmissionsMessage{})
}

// ListServerSubmissions reads the server view through the response cache.
func ListServerSubmissions(ctx context.Context) ([]core.Submission, error) {
	return commanddispatcher.Query[submissionsquery.ListServerSubmissionsMessage, []core.Submission](ctx, submissionsquery.ListServerSubmissionsMessage{})
}

func CanSubmit(ctx context.Context, challengeID string) (core.Decision, error) {
	return commanddispatcher.Query[submissionsquery.CanSubmitMessage, core.Decision](ctx, submissionsquery.CanSubmitMessage{ChallengeID: challengeID})
}

func CurrentSession(ctx context.Context) (core.Session, error) {
	return commanddispatcher.Query[submissionsquery.CurrentSessionMessage, core.Session](ctx, submissionsquery.CurrentSessionMessage{})
}

func registerCommand[T any](bus *Bus, cmd command.Commander[T]) (commanddispatcher.Subscription, error) {
	if cmd == nil {
		return nil, fmt.Errorf("gocommand: command is required")
	}
	subscription := commanddispatcher.SubscribeCommand(cmd, bus.runnerOpts...)
	if err := bus.registry.RegisterCommand(cmd); err != nil {
		if subscription != nil {
			subscription.Unsubscribe()
		}
		return nil, err
	}
	return subscription, nil
}

func registerQuery[T any, R any](bus *Bus, qry command.Querier[T, R]) (commanddispatcher.Subscription, error) {
	if qry == nil {
		return nil, fmt.Errorf("gocommand: query is required")
	}
	subscription := commanddispatcher.SubscribeQuery(qry, bus.runnerOpts...)
	if err := bus.registry.RegisterCommand(qry); err != nil {
		if subscription != nil {
			subscription.Unsubscribe()
		}
		return nil, err
	}
	return subscription, nil
}
