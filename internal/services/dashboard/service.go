// Package dashboard assembles presentation-ready metric views from the
// aggregation layer, caching the latest computation per owner.
package dashboard

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/orchestr8/dashboard/internal/config"
	"github.com/orchestr8/dashboard/internal/configstore"
	"github.com/orchestr8/dashboard/internal/db"
	"github.com/orchestr8/dashboard/internal/metrics"
	"github.com/orchestr8/dashboard/internal/timeutil"
)

// Store is the slice of the query layer this service needs.
type Store interface {
	metrics.Store
	ListUsageSince(ctx context.Context, userID string, since time.Time, limit int32) ([]db.APIUsageRow, error)
}

// View is one complete dashboard computation. Views are rebuilt from the
// store's current state on every invalidation; last computation wins.
type View struct {
	Snapshot    metrics.Snapshot         `json:"snapshot"`
	Realtime    metrics.RealtimeMetrics  `json:"realtime"`
	Series      []metrics.TimeBucket     `json:"series"`
	Providers   []metrics.BreakdownEntry `json:"providers"`
	Models      []metrics.BreakdownEntry `json:"models"`
	RefreshedAt time.Time                `json:"refreshed_at"`
}

type Service struct {
	store      Store
	aggregator *metrics.Aggregator
	configs    configstore.Store
	cfg        config.MetricsConfig
	logger     *slog.Logger
	now        func() time.Time
	rate       decimal.Decimal

	mu     sync.RWMutex
	latest map[string]*View
}

func NewService(store Store, aggregator *metrics.Aggregator, configs configstore.Store, cfg config.MetricsConfig, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:      store,
		aggregator: aggregator,
		configs:    configs,
		cfg:        cfg,
		logger:     logger,
		now:        time.Now,
		rate:       decimal.NewFromFloat(cfg.CostPerTokenUSD),
		latest:     make(map[string]*View),
	}
}

// usage rows fetched per refresh; enough for a full bucket window at high call volume
const refreshFetchLimit = 10_000

// dashboardPrefs overrides the chart window per owner.
type dashboardPrefs struct {
	BucketWidthSeconds int `json:"bucket_width_seconds"`
	BucketCount        int `json:"bucket_count"`
}

// Refresh recomputes the full view from the store's current state. The chart
// window is re-anchored to "now" on every call, so bucket boundaries never go
// stale between refresh cycles.
func (s *Service) Refresh(ctx context.Context, ownerID string) View {
	snap := s.aggregator.GetMetrics(ctx, ownerID)

	now := s.now().UTC()
	width, count := s.resolveWindow(ctx, ownerID)
	bucketer := metrics.NewBucketer(width, count, now, s.rate)

	rtWindow := timeutil.RollingWindow(now, s.cfg.RealtimeWindowSize)
	fetchSince := bucketer.WindowStart()
	if rtWindow.Start.Before(fetchSince) {
		fetchSince = rtWindow.Start
	}

	view := View{Snapshot: snap, RefreshedAt: now}

	rows, err := s.store.ListUsageSince(ctx, ownerID, fetchSince, refreshFetchLimit)
	if err != nil {
		// Serve the headline snapshot even when the event fetch fails; the
		// dashboard must always render something.
		s.logger.Warn("usage fetch failed, serving snapshot-only view", "owner", ownerID, "error", err)
		view.Series = bucketer.Snapshot()
		s.storeView(ctx, ownerID, &view)
		return view
	}

	var recent []metrics.UsageEvent
	for _, row := range rows {
		ev := metrics.EventFromUsageRow(row)
		bucketer.Ingest(ev)
		if rtWindow.Contains(ev.Timestamp) {
			recent = append(recent, ev)
		}
	}

	view.Series = bucketer.Snapshot()
	view.Realtime = metrics.ComputeRealtime(recent, s.cfg.RealtimeWindowSize, s.rate)
	view.Providers = metrics.Reduce(recent, metrics.ByProvider, s.rate)
	view.Models = metrics.Reduce(recent, metrics.ByModel, s.rate)

	s.storeView(ctx, ownerID, &view)
	return view
}

// Overview returns the cached view, computing one if no refresh has run yet.
func (s *Service) Overview(ctx context.Context, ownerID string) View {
	s.mu.RLock()
	cached := s.latest[ownerID]
	s.mu.RUnlock()
	if cached != nil {
		return *cached
	}
	return s.Refresh(ctx, ownerID)
}

// GetMetrics resolves the headline snapshot directly, bypassing the cache.
func (s *Service) GetMetrics(ctx context.Context, ownerID string) metrics.Snapshot {
	return s.aggregator.GetMetrics(ctx, ownerID)
}

// RecentActivity returns the newest call-log entries inside the last day.
func (s *Service) RecentActivity(ctx context.Context, ownerID string, limit int) ([]metrics.CallLogEntry, error) {
	max := s.cfg.RecentActivityMax
	if max <= 0 {
		max = 20
	}
	if limit <= 0 || limit > max {
		limit = max
	}

	since := s.now().UTC().Add(-24 * time.Hour)
	rows, err := s.store.ListUsageSince(ctx, ownerID, since, int32(limit))
	if err != nil {
		return nil, err
	}

	out := make([]metrics.CallLogEntry, 0, len(rows))
	for _, row := range rows {
		out = append(out, metrics.CallLogFromUsageRow(row, s.rate))
	}
	return out, nil
}

// storeView caches the computation unless its context was canceled mid-way.
// A canceled context means the coordinator stopped or the caller went away,
// and a view computed against a torn-down context must not replace a good
// cached one.
func (s *Service) storeView(ctx context.Context, ownerID string, view *View) {
	if ctx.Err() != nil {
		s.logger.Debug("discarding refresh computed on canceled context", "owner", ownerID)
		return
	}
	s.mu.Lock()
	s.latest[ownerID] = view
	s.mu.Unlock()
}

func (s *Service) resolveWindow(ctx context.Context, ownerID string) (time.Duration, int) {
	width := s.cfg.BucketWidth
	count := s.cfg.BucketCount

	if s.configs == nil {
		return width, count
	}
	stored, ok, err := s.configs.Get(ctx, ownerID, "dashboard")
	if err != nil {
		s.logger.Warn("dashboard prefs lookup failed", "owner", ownerID, "error", err)
		return width, count
	}
	if !ok {
		return width, count
	}

	var prefs dashboardPrefs
	if err := json.Unmarshal(stored.Value, &prefs); err != nil {
		s.logger.Warn("dashboard prefs malformed", "owner", ownerID, "error", err)
		return width, count
	}
	if prefs.BucketWidthSeconds > 0 {
		width = time.Duration(prefs.BucketWidthSeconds) * time.Second
	}
	if prefs.BucketCount > 0 && prefs.BucketCount <= 240 {
		count = prefs.BucketCount
	}
	return width, count
}
