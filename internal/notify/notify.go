// Package notify wires realtime repository change notifications over
// Redis pub/sub. Change events re-derive the tracked/analyzed counts;
// they never touch the aggregated open-issues total, so both update
// sources merge into the shared view state without interference.
package notify

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/NikkuNoShori/RepoMonitor/internal/domain"
	"github.com/NikkuNoShori/RepoMonitor/internal/logging"
)

// Channel is the pub/sub channel carrying repository change events.
const Channel = "repomonitor:repositories"

// Action identifies the kind of change on the tracked repository list.
type Action string

const (
	ActionInsert Action = "insert"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Event is one repository change notification.
type Event struct {
	Action Action          `json:"action"`
	Repo   domain.WorkItem `json:"repo"`
}

// Publisher emits repository change events.
type Publisher struct {
	rdb    *redis.Client
	logger zerolog.Logger
}

// NewPublisher creates a publisher. A nil Redis client disables publishing.
func NewPublisher(rdb *redis.Client) *Publisher {
	return &Publisher{
		rdb:    rdb,
		logger: logging.NewLogger("notify"),
	}
}

// Publish emits one event. Publishing failures are logged, not fatal:
// the dashboard re-derives counts on the next refresh anyway.
func (p *Publisher) Publish(ctx context.Context, event Event) {
	if p.rdb == nil {
		return
	}

	payload, err := json.Marshal(event)
	if err != nil {
		p.logger.Warn().Err(err).Msg("failed to encode repository event")
		return
	}

	if err := p.rdb.Publish(ctx, Channel, payload).Err(); err != nil {
		p.logger.Warn().Err(err).Msg("failed to publish repository event")
	}
}

// CountSyncer re-derives dashboard counts after a change event.
type CountSyncer interface {
	SyncCounts(ctx context.Context)
}

// Subscriber consumes repository change events and triggers count
// re-derivation.
type Subscriber struct {
	rdb    *redis.Client
	syncer CountSyncer
	logger zerolog.Logger
}

// NewSubscriber creates a subscriber. A nil Redis client disables it.
func NewSubscriber(rdb *redis.Client, syncer CountSyncer) *Subscriber {
	return &Subscriber{
		rdb:    rdb,
		syncer: syncer,
		logger: logging.NewLogger("notify"),
	}
}

// Run consumes events until the context is cancelled.
func (s *Subscriber) Run(ctx context.Context) {
	if s.rdb == nil {
		return
	}

	pubsub := s.rdb.Subscribe(ctx, Channel)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}

			var event Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				s.logger.Warn().Err(err).Msg("dropping malformed repository event")
				continue
			}

			s.logger.Debug().
				Str("action", string(event.Action)).
				Str("repo", event.Repo.FullName()).
				Msg("repository change event")

			s.syncer.SyncCounts(ctx)
		}
	}
}

// Connect opens a Redis client from a URL. An empty URL returns nil,
// which disables realtime notifications.
func Connect(url string) (*redis.Client, error) {
	if url == "" {
		return nil, nil
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return redis.NewClient(opts), nil
}
