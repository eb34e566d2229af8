package notify

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/NikkuNoShori/RepoMonitor/internal/domain"
)

func redisTestClient(t *testing.T) *redis.Client {
	t.Helper()
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		t.Skipf("redis not available: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

type countingSyncer struct {
	calls  atomic.Int64
	synced chan struct{}
}

func (s *countingSyncer) SyncCounts(ctx context.Context) {
	s.calls.Add(1)
	select {
	case s.synced <- struct{}{}:
	default:
	}
}

func TestPublisher_NilClientIsNoop(t *testing.T) {
	p := NewPublisher(nil)
	// Must not panic or block.
	p.Publish(context.Background(), Event{
		Action: ActionInsert,
		Repo:   domain.WorkItem{Owner: "a", Name: "r1"},
	})
}

func TestSubscriber_NilClientReturns(t *testing.T) {
	s := NewSubscriber(nil, &countingSyncer{synced: make(chan struct{}, 1)})

	done := make(chan struct{})
	go func() {
		s.Run(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run() with nil client did not return")
	}
}

func TestPublishTriggersCountSync(t *testing.T) {
	client := redisTestClient(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	syncer := &countingSyncer{synced: make(chan struct{}, 1)}
	sub := NewSubscriber(client, syncer)
	go sub.Run(ctx)

	// Give the subscription a moment to establish.
	time.Sleep(100 * time.Millisecond)

	pub := NewPublisher(client)
	pub.Publish(ctx, Event{
		Action: ActionInsert,
		Repo:   domain.WorkItem{Owner: "a", Name: "r1"},
	})

	select {
	case <-syncer.synced:
	case <-time.After(3 * time.Second):
		t.Fatal("count sync not triggered by published event")
	}

	if got := syncer.calls.Load(); got < 1 {
		t.Errorf("sync calls = %d, want >= 1", got)
	}
}
