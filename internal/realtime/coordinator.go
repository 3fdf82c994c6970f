// Package realtime coordinates change subscriptions over the watched tables
// and turns bursts of row changes into debounced refresh signals.
package realtime

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/orchestr8/dashboard/internal/config"
	"github.com/orchestr8/dashboard/internal/observability"
	"github.com/orchestr8/dashboard/internal/realtime/changefeed"
)

// Watched table names.
const (
	TableInvocations    = "invocations"
	TableUsageLogs      = "usage_logs"
	TableBilling        = "billing"
	TableOrchestrations = "orchestrations"
)

// WatchedTables lists every table the coordinator subscribes to.
var WatchedTables = []string{TableInvocations, TableUsageLogs, TableBilling, TableOrchestrations}

// State is the coordinator lifecycle.
type State int32

const (
	StateIdle State = iota
	StateStarting
	StateLive
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StateLive:
		return "live"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

var ErrAlreadyStarted = errors.New("realtime coordinator already started")

// InvalidationHandler is invoked at most once per debounce interval after any
// watched table changed. The context is canceled when the coordinator stops,
// so a refresh still in flight at teardown is abandoned, never applied.
type InvalidationHandler func(ctx context.Context)

// Coordinator owns one change subscription per watched table, coalesces
// their signals, and drives the invalidation handler. The poll ticker feeds
// the same debounce path as push events.
type Coordinator struct {
	feed   *changefeed.Feed
	cfg    config.RealtimeConfig
	logger *slog.Logger
	obs    *observability.Provider

	state   atomic.Int32
	healthy atomic.Bool
	trigger chan struct{}

	mu      sync.Mutex
	subs    map[string]*changefeed.Subscription
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	ownerID string
	handler InvalidationHandler
}

func NewCoordinator(feed *changefeed.Feed, cfg config.RealtimeConfig, obs *observability.Provider, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		feed:    feed,
		cfg:     cfg,
		logger:  logger,
		obs:     obs,
		trigger: make(chan struct{}, 1),
		subs:    make(map[string]*changefeed.Subscription),
	}
}

// State returns the current lifecycle state.
func (c *Coordinator) State() State {
	return State(c.state.Load())
}

// IsLive reports true only when every subscription is confirmed open and the
// last heartbeat succeeded.
func (c *Coordinator) IsLive() bool {
	if c.State() != StateLive || !c.healthy.Load() {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.subs) < len(WatchedTables) {
		return false
	}
	for _, sub := range c.subs {
		if !sub.Active() {
			return false
		}
	}
	return true
}

// Start opens all subscriptions for the owner and begins coalescing their
// signals into handler invocations. It fails if any subscription cannot be
// confirmed, releasing whatever it had opened.
func (c *Coordinator) Start(ctx context.Context, ownerID string, handler InvalidationHandler) error {
	if handler == nil {
		return errors.New("invalidation handler is required")
	}
	if !c.state.CompareAndSwap(int32(StateIdle), int32(StateStarting)) {
		return ErrAlreadyStarted
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	c.mu.Lock()
	c.ownerID = ownerID
	c.handler = handler
	c.cancel = cancel
	c.mu.Unlock()

	for _, table := range WatchedTables {
		sub, err := c.feed.Subscribe(ctx, table, ownerID, changefeed.EventAny, c.onChange)
		if err != nil {
			c.teardownSubs()
			c.state.Store(int32(StateIdle))
			return err
		}
		c.mu.Lock()
		c.subs[table] = sub
		c.mu.Unlock()
	}

	c.healthy.Store(true)
	c.state.Store(int32(StateLive))
	c.logger.Info("realtime coordinator live", "owner", ownerID, "tables", len(WatchedTables))

	c.wg.Add(1)
	go c.run(runCtx)
	return nil
}

// Stop unsubscribes everything and halts the debounce loop. It is idempotent
// and safe to call while a refresh is in flight.
func (c *Coordinator) Stop() {
	prev := State(c.state.Swap(int32(StateStopped)))
	if prev == StateStopped {
		return
	}

	c.mu.Lock()
	cancel := c.cancel
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	c.teardownSubs()
	c.wg.Wait()
	c.logger.Info("realtime coordinator stopped")
}

func (c *Coordinator) teardownSubs() {
	c.mu.Lock()
	subs := c.subs
	c.subs = make(map[string]*changefeed.Subscription)
	c.mu.Unlock()
	for _, sub := range subs {
		sub.Unsubscribe()
	}
}

// onChange runs on a subscription pump goroutine. It must stay cheap: count,
// translate, and nudge the debounce loop without blocking.
func (c *Coordinator) onChange(ev changefeed.ChangeEvent) {
	c.obs.RecordChangeEvent(ev.Table)

	if domainEv, ok := Translate(ev); ok {
		switch e := domainEv.(type) {
		case OrchestrationStarted:
			c.logger.Debug("orchestration started", "invocation", e.InvocationID)
		case OrchestrationSucceeded:
			c.logger.Debug("orchestration succeeded", "invocation", e.InvocationID)
		case OrchestrationFailed:
			c.logger.Info("orchestration failed", "invocation", e.InvocationID, "reason", e.Reason)
		}
	}

	select {
	case c.trigger <- struct{}{}:
	default:
	}
}

func (c *Coordinator) run(ctx context.Context) {
	defer c.wg.Done()

	var debounce *time.Timer
	var debounceC <-chan time.Time

	var pollC <-chan time.Time
	if c.cfg.PollInterval > 0 {
		poll := time.NewTicker(c.cfg.PollInterval)
		defer poll.Stop()
		pollC = poll.C
	}

	var heartbeatC <-chan time.Time
	if c.cfg.HeartbeatEnabled && c.cfg.HeartbeatInterval > 0 {
		heartbeat := time.NewTicker(c.cfg.HeartbeatInterval)
		defer heartbeat.Stop()
		heartbeatC = heartbeat.C
	}

	for {
		select {
		case <-ctx.Done():
			if debounce != nil {
				debounce.Stop()
			}
			return
		case <-c.trigger:
			if debounceC == nil {
				debounce = time.NewTimer(c.cfg.Debounce)
				debounceC = debounce.C
			}
		case <-debounceC:
			debounceC = nil
			c.fire(ctx)
		case <-pollC:
			// Polling and push feed the same debounce path.
			select {
			case c.trigger <- struct{}{}:
			default:
			}
		case <-heartbeatC:
			c.checkSubscriptions(ctx)
		}
	}
}

func (c *Coordinator) fire(ctx context.Context) {
	if c.State() != StateLive {
		return
	}
	c.obs.RecordInvalidation()

	start := time.Now()
	c.handler(ctx)
	c.obs.RecordRefresh(time.Since(start))
}

// checkSubscriptions pings every open channel and reopens the ones whose
// transport connection died silently.
func (c *Coordinator) checkSubscriptions(ctx context.Context) {
	c.mu.Lock()
	ownerID := c.ownerID
	subs := make(map[string]*changefeed.Subscription, len(c.subs))
	for table, sub := range c.subs {
		subs[table] = sub
	}
	c.mu.Unlock()

	healthy := true
	for table, sub := range subs {
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		err := sub.Ping(pingCtx)
		cancel()
		if err == nil {
			continue
		}

		c.logger.Warn("subscription heartbeat failed, resubscribing", "table", table, "error", err)
		replacement, subErr := c.feed.Subscribe(ctx, table, ownerID, changefeed.EventAny, c.onChange)
		if subErr != nil {
			c.logger.Warn("resubscribe failed", "table", table, "error", subErr)
			healthy = false
			continue
		}
		sub.Unsubscribe()
		c.mu.Lock()
		c.subs[table] = replacement
		c.mu.Unlock()

		// Rows may have changed while the channel was dead.
		select {
		case c.trigger <- struct{}{}:
		default:
		}
	}
	c.healthy.Store(healthy)
}
