// Package watch is the change-notification hub behind the live source and
// thread views. Writers publish a topic-keyed event through Redis pub/sub;
// subscribers get a tick per change and re-run their ordered query, so every
// delivery is a full-result snapshot rather than a diff. A subscription must
// be closed before a new one is opened for a different scope, which keeps
// stale-scope updates from landing after a switch.
package watch

import (
	"context"
	"fmt"

	redisv9 "github.com/redis/go-redis/v9"

	"knowchat/internal/scope"
)

type Hub struct {
	client *redisv9.Client
}

func NewHub(client *redisv9.Client) *Hub {
	return &Hub{client: client}
}

// SourceTopic keys change events for a scope's source collection. Personal
// collections are global per member; team collections are per thread.
func SourceTopic(memberID uint, sc scope.Scope, threadID uint) string {
	if sc.IsTeam() {
		return fmt.Sprintf("watch:sources:team:%d:thread:%d", sc.TeamID, threadID)
	}
	return fmt.Sprintf("watch:sources:personal:%d", memberID)
}

// ThreadTopic keys change events for a member's thread list in a scope.
func ThreadTopic(memberID uint, sc scope.Scope) string {
	if sc.IsTeam() {
		return fmt.Sprintf("watch:threads:team:%d", sc.TeamID)
	}
	return fmt.Sprintf("watch:threads:personal:%d", memberID)
}

// MessageTopic keys change events for one thread's message list.
func MessageTopic(threadID uint) string {
	return fmt.Sprintf("watch:messages:%d", threadID)
}

// Notify publishes a change event. Failures are the caller's to log; a lost
// notification only delays the next snapshot, it never corrupts state.
func (h *Hub) Notify(ctx context.Context, topic string) error {
	if err := h.client.Publish(ctx, topic, "1").Err(); err != nil {
		return fmt.Errorf("publish change event failed: %w", err)
	}
	return nil
}

// Subscription delivers one tick per underlying change until closed.
type Subscription struct {
	pubsub *redisv9.PubSub
	events chan struct{}
	done   chan struct{}
}

// Subscribe opens a subscription on a topic. Events() yields after every
// published change; Close unsubscribes and drains the goroutine.
func (h *Hub) Subscribe(ctx context.Context, topic string) (*Subscription, error) {
	pubsub := h.client.Subscribe(ctx, topic)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe %s failed: %w", topic, err)
	}

	sub := &Subscription{
		pubsub: pubsub,
		events: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}

	go func() {
		defer close(sub.events)
		ch := pubsub.Channel()
		for {
			select {
			case <-sub.done:
				return
			case _, ok := <-ch:
				if !ok {
					return
				}
				// Coalesce bursts: one pending tick is enough, the
				// subscriber re-queries the full result set anyway.
				select {
				case sub.events <- struct{}{}:
				default:
				}
			}
		}
	}()

	return sub, nil
}

func (s *Subscription) Events() <-chan struct{} {
	return s.events
}

func (s *Subscription) Close() error {
	close(s.done)
	return s.pubsub.Close()
}
