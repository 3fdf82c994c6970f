package metrics

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/orchestr8/dashboard/internal/config"
	"github.com/orchestr8/dashboard/internal/db"
	"github.com/orchestr8/dashboard/internal/timeutil"
)

// Store is the slice of the query layer the aggregator depends on.
type Store interface {
	GetDashboardMetrics(ctx context.Context, userID string) (db.DashboardMetricsRow, error)
	CountInvocationsSince(ctx context.Context, userID string, since time.Time) (db.InvocationCounts, error)
	CountActiveOrchestrations(ctx context.Context, userID string) (int64, error)
	GetBilling(ctx context.Context, userID string) (db.BillingRow, error)
}

// Aggregator resolves the dashboard snapshot with a three-tier fallback:
// precomputed row, manual aggregation, then a fixed zero state. It never
// returns an error; the dashboard must always render something.
type Aggregator struct {
	store  Store
	cfg    config.MetricsConfig
	logger *slog.Logger
	now    func() time.Time
}

func NewAggregator(store Store, cfg config.MetricsConfig, logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{store: store, cfg: cfg, logger: logger, now: time.Now}
}

// GetMetrics returns the current snapshot for the owner. Calling it twice
// with no intervening data change yields identical results.
func (a *Aggregator) GetMetrics(ctx context.Context, ownerID string) Snapshot {
	if a.cfg.FetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.cfg.FetchTimeout)
		defer cancel()
	}

	row, err := a.store.GetDashboardMetrics(ctx, ownerID)
	switch {
	case err == nil:
		if snap, ok := snapshotFromRow(row); ok {
			return snap
		}
		a.logger.Warn("precomputed snapshot malformed, recomputing", "owner", ownerID)
	case errors.Is(err, pgx.ErrNoRows):
		// No materialized row yet; derive one.
	default:
		a.logger.Warn("precomputed snapshot fetch failed", "owner", ownerID, "error", err)
	}

	snap, err := a.aggregate(ctx, ownerID)
	if err != nil {
		a.logger.Warn("manual aggregation failed, serving zero state", "owner", ownerID, "error", err)
		return a.zeroState()
	}
	return snap
}

// aggregate derives the snapshot directly from billing, invocation, and
// orchestration rows.
func (a *Aggregator) aggregate(ctx context.Context, ownerID string) (Snapshot, error) {
	monthStart := timeutil.StartOfMonth(a.now().UTC())

	counts, err := a.store.CountInvocationsSince(ctx, ownerID, monthStart)
	if err != nil {
		return Snapshot{}, err
	}
	active, err := a.store.CountActiveOrchestrations(ctx, ownerID)
	if err != nil {
		return Snapshot{}, err
	}

	snap := Snapshot{
		TotalInvocationsMonth: counts.Total,
		SuccessRate:           successRate(counts.Succeeded, counts.Total),
		ActiveOrchestrations:  active,
		CurrentPlan:           a.cfg.DefaultPlan,
		CreditsAllowed:        a.cfg.DefaultCredits,
	}

	billing, err := a.store.GetBilling(ctx, ownerID)
	switch {
	case err == nil:
		snap.CurrentPlan = billing.Plan
		snap.CreditsUsed = billing.CreditsUsed
		snap.CreditsAllowed = billing.CreditsAllowed
	case errors.Is(err, pgx.ErrNoRows):
		// Owner has never been billed; defaults stand.
	default:
		return Snapshot{}, err
	}

	return snap, nil
}

func (a *Aggregator) zeroState() Snapshot {
	plan := a.cfg.DefaultPlan
	if plan == "" {
		plan = "free"
	}
	credits := a.cfg.DefaultCredits
	if credits <= 0 {
		credits = 1000
	}
	return Snapshot{
		SuccessRate:    100,
		CurrentPlan:    plan,
		CreditsAllowed: credits,
	}
}

func snapshotFromRow(row db.DashboardMetricsRow) (Snapshot, bool) {
	if row.CurrentPlan == "" {
		return Snapshot{}, false
	}
	if row.SuccessRate < 0 || row.SuccessRate > 100 {
		return Snapshot{}, false
	}
	if row.TotalInvocationsMonth < 0 || row.ActiveOrchestrations < 0 || row.CreditsAllowed < 0 {
		return Snapshot{}, false
	}
	return Snapshot{
		TotalInvocationsMonth: row.TotalInvocationsMonth,
		SuccessRate:           row.SuccessRate,
		ActiveOrchestrations:  row.ActiveOrchestrations,
		CurrentPlan:           row.CurrentPlan,
		CreditsUsed:           row.CreditsUsed,
		CreditsAllowed:        row.CreditsAllowed,
	}, true
}

// successRate computes succeeded/total as a percentage clamped to [0,100],
// defaulting to 100 when there were no invocations at all.
func successRate(succeeded, total int64) float64 {
	if total <= 0 {
		return 100
	}
	rate := float64(succeeded) / float64(total) * 100
	if rate < 0 {
		return 0
	}
	if rate > 100 {
		return 100
	}
	return rate
}
