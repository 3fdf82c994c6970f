// Package changefeed wraps per-table row change streams delivered over Redis
// pub/sub channels.
package changefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/redis/go-redis/v9"
)

// EventType filters which row changes a subscription observes.
type EventType string

const (
	EventInsert EventType = "insert"
	EventUpdate EventType = "update"
	EventDelete EventType = "delete"
	EventAny    EventType = "*"
)

// ChangeEvent is one row-level change notification.
type ChangeEvent struct {
	Table string          `json:"table"`
	Type  EventType       `json:"event_type"`
	New   json.RawMessage `json:"new,omitempty"`
	Old   json.RawMessage `json:"old,omitempty"`
}

// Handler receives change events in transport delivery order. Duplicate
// delivery is possible and consumers must tolerate it.
type Handler func(ChangeEvent)

// Feed opens change subscriptions against a Redis transport.
type Feed struct {
	client      *redis.Client
	logger      *slog.Logger
	onMalformed func(table string)
}

func NewFeed(client *redis.Client, logger *slog.Logger) *Feed {
	if logger == nil {
		logger = slog.Default()
	}
	return &Feed{client: client, logger: logger}
}

// SetMalformedHook installs a counter callback invoked when a payload is
// dropped. It applies to subscriptions opened afterwards.
func (f *Feed) SetMalformedHook(fn func(table string)) {
	f.onMalformed = fn
}

// Channel returns the transport channel name for a (table, owner) pair.
func Channel(table, ownerID string) string {
	return fmt.Sprintf("changes:%s:%s", table, ownerID)
}

// Subscription is one open channel on the change stream. Active reflects the
// explicit lifecycle only: it flips false on Unsubscribe, not on transport
// errors.
type Subscription struct {
	table   string
	ownerID string
	filter  EventType
	handler Handler
	logger  *slog.Logger

	pubsub    *redis.PubSub
	active    atomic.Bool
	closeOnce sync.Once
	done      chan struct{}

	onMalformed func(table string)
}

// Subscribe opens exactly one transport channel for the (table, ownerID)
// pair and invokes the handler once per observed change event. The call
// returns after the transport confirms the subscription.
func (f *Feed) Subscribe(ctx context.Context, table, ownerID string, filter EventType, handler Handler) (*Subscription, error) {
	if handler == nil {
		return nil, fmt.Errorf("change handler is required")
	}
	if filter == "" {
		filter = EventAny
	}

	pubsub := f.client.Subscribe(ctx, Channel(table, ownerID))
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", Channel(table, ownerID), err)
	}

	sub := &Subscription{
		table:       table,
		ownerID:     ownerID,
		filter:      filter,
		handler:     handler,
		logger:      f.logger,
		pubsub:      pubsub,
		done:        make(chan struct{}),
		onMalformed: f.onMalformed,
	}
	sub.active.Store(true)

	go sub.pump()
	return sub, nil
}

// pump delivers messages in order on a single goroutine so the handler never
// observes reordering within one subscription.
func (s *Subscription) pump() {
	defer close(s.done)
	for msg := range s.pubsub.Channel() {
		var ev ChangeEvent
		if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
			s.logger.Warn("dropping malformed change payload",
				"table", s.table, "error", err)
			if s.onMalformed != nil {
				s.onMalformed(s.table)
			}
			continue
		}
		if ev.Table == "" {
			ev.Table = s.table
		}
		if ev.Type == "" {
			s.logger.Warn("dropping change event without event_type", "table", s.table)
			if s.onMalformed != nil {
				s.onMalformed(s.table)
			}
			continue
		}
		if s.filter != EventAny && ev.Type != s.filter {
			continue
		}
		s.handler(ev)
	}
}

// Table returns the watched table name.
func (s *Subscription) Table() string { return s.table }

// Active reports whether the subscription has been confirmed and not yet
// unsubscribed. A silently dropped transport connection does not clear it;
// the coordinator's heartbeat covers that gap.
func (s *Subscription) Active() bool { return s.active.Load() }

// Ping probes the underlying transport connection.
func (s *Subscription) Ping(ctx context.Context) error {
	return s.pubsub.Ping(ctx)
}

// Unsubscribe releases the transport channel deterministically. It is safe
// to call more than once and safe to call while events are being delivered.
func (s *Subscription) Unsubscribe() {
	s.closeOnce.Do(func() {
		s.active.Store(false)
		_ = s.pubsub.Close()
		<-s.done
	})
}
