package goredis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	glog "github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-submissions/core"
	"github.com/redis/go-redis/v9"
)

const DefaultChannelPrefix = "submissions:events:"

// Publisher is the subset of the redis client used to fan out events.
type Publisher interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

// EventPayload is the JSON document published per event.
type EventPayload struct {
	Type           string    `json:"type"`
	UserID         string    `json:"user_id"`
	SubmissionID   string    `json:"submission_id,omitempty"`
	ChallengeID    string    `json:"challenge_id,omitempty"`
	Status         string    `json:"status,omitempty"`
	PreviousStatus string    `json:"previous_status,omitempty"`
	PointsAwarded  *int      `json:"points_awarded,omitempty"`
	Reason         string    `json:"reason,omitempty"`
	OccurredAt     time.Time `json:"occurred_at"`
}

type EventPublisher struct {
	client Publisher
	prefix string
	logger core.Logger
}

type Option func(*EventPublisher)

func WithChannelPrefix(prefix string) Option {
	return func(p *EventPublisher) {
		if strings.TrimSpace(prefix) != "" {
			p.prefix = prefix
		}
	}
}

func WithLogger(logger core.Logger) Option {
	return func(p *EventPublisher) {
		p.logger = logger
	}
}

func NewEventPublisher(client Publisher, opts ...Option) (*EventPublisher, error) {
	if client == nil {
		return nil, fmt.Errorf("goredis: publisher client is required")
	}
	p := &EventPublisher{client: client, prefix: DefaultChannelPrefix}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	p.logger = glog.Ensure(p.logger)
	return p, nil
}

// NewClient connects to redis and verifies the connection.
func NewClient(ctx context.Context, opts *redis.Options) (*redis.Client, error) {
	if opts == nil || strings.TrimSpace(opts.Addr) == "" {
		return nil, fmt.Errorf("goredis: redis address is required")
	}
	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("goredis: ping: %w", err)
	}
	return client, nil
}

func (p *EventPublisher) Channel(userID string) string {
	return p.prefix + userID
}

// Publish sends event to the channel of its user. Events without a user are
// ignored.
func (p *EventPublisher) Publish(ctx context.Context, event core.Event) error {
	if strings.TrimSpace(event.UserID) == "" {
		return nil
	}
	data, err := json.Marshal(payloadFromEvent(event))
	if err != nil {
		return fmt.Errorf("goredis: marshal event: %w", err)
	}
	if err := p.client.Publish(ctx, p.Channel(event.UserID), data).Err(); err != nil {
		return fmt.Errorf("goredis: publish %s: %w", event.Type, err)
	}
	return nil
}

// Handler adapts the publisher to an event bus subscription. Publish errors
// are logged since bus handlers cannot fail.
func (p *EventPublisher) Handler() core.EventHandler {
	return func(ctx context.Context, event core.Event) {
		if err := p.Publish(ctx, event); err != nil {
			p.logger.Warn("event publish failed", "user_id", event.UserID, "event_type", string(event.Type), "error", err)
		}
	}
}

func payloadFromEvent(event core.Event) EventPayload {
	payload := EventPayload{
		Type:           string(event.Type),
		UserID:         event.UserID,
		PreviousStatus: string(event.PreviousStatus),
		Reason:         event.Reason,
		OccurredAt:     event.OccurredAt,
	}
	if payload.OccurredAt.IsZero() {
		payload.OccurredAt = time.Now().UTC()
	}
	if event.Submission != nil {
		payload.SubmissionID = event.Submission.ID()
		payload.ChallengeID = event.Submission.ChallengeID
		payload.Status = string(event.Submission.Status)
		payload.PointsAwarded = event.Submission.PointsAwarded
	}
	return payload
}

var _ Publisher = (*redis.Client)(nil)
