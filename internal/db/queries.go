package db

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const getDashboardMetrics = `
SELECT user_id, total_invocations_month, success_rate, active_orchestrations,
       current_plan, credits_used, credits_allowed, updated_at
FROM dashboard_metrics
WHERE user_id = $1
`

// GetDashboardMetrics returns the precomputed snapshot for an owner.
// Returns pgx.ErrNoRows when the materialized row is absent.
func (q *Queries) GetDashboardMetrics(ctx context.Context, userID string) (DashboardMetricsRow, error) {
	row := q.db.QueryRow(ctx, getDashboardMetrics, userID)
	var m DashboardMetricsRow
	err := row.Scan(
		&m.UserID,
		&m.TotalInvocationsMonth,
		&m.SuccessRate,
		&m.ActiveOrchestrations,
		&m.CurrentPlan,
		&m.CreditsUsed,
		&m.CreditsAllowed,
		&m.UpdatedAt,
	)
	return m, err
}

const countInvocations = `
SELECT count(*) AS total,
       count(*) FILTER (WHERE status = 'succeeded') AS succeeded
FROM invocations
WHERE user_id = $1 AND created_at >= $2
`

// InvocationCounts holds totals for the fallback aggregation path.
type InvocationCounts struct {
	Total     int64
	Succeeded int64
}

func (q *Queries) CountInvocationsSince(ctx context.Context, userID string, since time.Time) (InvocationCounts, error) {
	row := q.db.QueryRow(ctx, countInvocations, userID, since)
	var c InvocationCounts
	err := row.Scan(&c.Total, &c.Succeeded)
	return c, err
}

const countActiveOrchestrations = `
SELECT count(*) FROM orchestrations WHERE user_id = $1 AND status = 'active'
`

func (q *Queries) CountActiveOrchestrations(ctx context.Context, userID string) (int64, error) {
	var n int64
	err := q.db.QueryRow(ctx, countActiveOrchestrations, userID).Scan(&n)
	return n, err
}

const getBilling = `
SELECT user_id, plan, credits_used, credits_allowed, updated_at
FROM billing
WHERE user_id = $1
`

func (q *Queries) GetBilling(ctx context.Context, userID string) (BillingRow, error) {
	row := q.db.QueryRow(ctx, getBilling, userID)
	var b BillingRow
	err := row.Scan(&b.UserID, &b.Plan, &b.CreditsUsed, &b.CreditsAllowed, &b.UpdatedAt)
	return b, err
}

const listUsageSince = `
SELECT id, user_id, provider, model, endpoint,
       tokens_input, tokens_output, calls_attempted, calls_succeeded, calls_failed,
       response_time_ms, status_code, COALESCE(error_message, ''), created_at
FROM api_usage
WHERE user_id = $1 AND created_at >= $2
ORDER BY created_at DESC
LIMIT $3
`

// ListUsageSince returns the newest usage rows for an owner inside the window.
func (q *Queries) ListUsageSince(ctx context.Context, userID string, since time.Time, limit int32) ([]APIUsageRow, error) {
	rows, err := q.db.Query(ctx, listUsageSince, userID, since, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []APIUsageRow
	for rows.Next() {
		var u APIUsageRow
		if err := rows.Scan(
			&u.ID,
			&u.UserID,
			&u.Provider,
			&u.Model,
			&u.Endpoint,
			&u.TokensInput,
			&u.TokensOutput,
			&u.CallsAttempted,
			&u.CallsSucceeded,
			&u.CallsFailed,
			&u.ResponseTimeMs,
			&u.StatusCode,
			&u.ErrorMessage,
			&u.CreatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

const insertAPIKey = `
INSERT INTO api_keys (id, user_id, name, service, key_preview, secret_ref, created_at)
VALUES ($1, $2, $3, $4, $5, $6, now())
RETURNING id
`

// InsertAPIKeyParams carries the redacted credential record; the raw key never reaches this layer.
type InsertAPIKeyParams struct {
	UserID     string
	Name       string
	Service    string
	KeyPreview string
	SecretRef  string
}

func (q *Queries) InsertAPIKey(ctx context.Context, arg InsertAPIKeyParams) (uuid.UUID, error) {
	id := uuid.New()
	err := q.db.QueryRow(ctx, insertAPIKey,
		id, arg.UserID, arg.Name, arg.Service, arg.KeyPreview, arg.SecretRef,
	).Scan(&id)
	return id, err
}

const getUserSetting = `
SELECT user_id, kind, value, updated_at
FROM user_settings
WHERE user_id = $1 AND kind = $2
`

func (q *Queries) GetUserSetting(ctx context.Context, userID string, kind string) (UserSettingRow, error) {
	row := q.db.QueryRow(ctx, getUserSetting, userID, kind)
	var s UserSettingRow
	err := row.Scan(&s.UserID, &s.Kind, &s.Value, &s.UpdatedAt)
	return s, err
}
