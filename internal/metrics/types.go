// Package metrics derives dashboard aggregates from usage events and
// precomputed snapshot rows.
package metrics

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/orchestr8/dashboard/internal/db"
)

// UsageEvent is one recorded provider call, read-only to this package.
type UsageEvent struct {
	Timestamp      time.Time `json:"timestamp"`
	Provider       string    `json:"provider"`
	Model          string    `json:"model,omitempty"`
	Endpoint       string    `json:"endpoint,omitempty"`
	TokensInput    int64     `json:"tokens_input"`
	TokensOutput   int64     `json:"tokens_output"`
	CallsAttempted int64     `json:"calls_attempted"`
	CallsSucceeded int64     `json:"calls_succeeded"`
	CallsFailed    int64     `json:"calls_failed"`
	ResponseTimeMs int32     `json:"response_time_ms"`
	StatusCode     int32     `json:"status_code"`
	ErrorMessage   string    `json:"error_message,omitempty"`
}

// TotalTokens returns input plus output tokens for the event.
func (e UsageEvent) TotalTokens() int64 {
	return e.TokensInput + e.TokensOutput
}

// Calls returns the attempted call count, treating legacy rows without
// counters as a single call.
func (e UsageEvent) Calls() int64 {
	if e.CallsAttempted > 0 {
		return e.CallsAttempted
	}
	return 1
}

// Succeeded reports whether the event represents a successful call.
func (e UsageEvent) Succeeded() bool {
	if e.CallsFailed > 0 {
		return false
	}
	if e.CallsSucceeded > 0 {
		return true
	}
	return e.StatusCode >= 200 && e.StatusCode < 400
}

// CallLogEntry is the presentation form of a usage event. It is derived on
// each fetch and never persisted.
type CallLogEntry struct {
	ID             string    `json:"id"`
	ProviderID     string    `json:"provider_id"`
	Endpoint       string    `json:"endpoint"`
	Model          string    `json:"model"`
	TokensInput    int64     `json:"tokens_input"`
	TokensOutput   int64     `json:"tokens_output"`
	TotalTokens    int64     `json:"total_tokens"`
	CostUSD        float64   `json:"cost_usd"`
	ResponseTimeMs int32     `json:"response_time_ms"`
	StatusCode     int32     `json:"status_code"`
	Success        bool      `json:"success"`
	ErrorMessage   string    `json:"error_message,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// Snapshot is the dashboard headline metrics row, either read precomputed or
// derived on demand.
type Snapshot struct {
	TotalInvocationsMonth int64   `json:"total_invocations_month"`
	SuccessRate           float64 `json:"success_rate"`
	ActiveOrchestrations  int64   `json:"active_orchestrations"`
	CurrentPlan           string  `json:"current_plan"`
	CreditsUsed           int64   `json:"credits_used"`
	CreditsAllowed        int64   `json:"credits_allowed"`
}

// EventFromUsageRow converts a stored usage row into the in-memory event form.
func EventFromUsageRow(row db.APIUsageRow) UsageEvent {
	return UsageEvent{
		Timestamp:      row.CreatedAt,
		Provider:       row.Provider,
		Model:          row.Model,
		Endpoint:       row.Endpoint,
		TokensInput:    row.TokensInput,
		TokensOutput:   row.TokensOutput,
		CallsAttempted: row.CallsAttempted,
		CallsSucceeded: row.CallsSucceeded,
		CallsFailed:    row.CallsFailed,
		ResponseTimeMs: row.ResponseTimeMs,
		StatusCode:     row.StatusCode,
		ErrorMessage:   row.ErrorMessage,
	}
}

// CallLogFromUsageRow derives the presentation entry for a usage row using a
// flat per-token rate.
func CallLogFromUsageRow(row db.APIUsageRow, perTokenUSD decimal.Decimal) CallLogEntry {
	total := row.TokensInput + row.TokensOutput
	cost := perTokenUSD.Mul(decimal.NewFromInt(total))
	return CallLogEntry{
		ID:             row.ID.String(),
		ProviderID:     row.Provider,
		Endpoint:       row.Endpoint,
		Model:          row.Model,
		TokensInput:    row.TokensInput,
		TokensOutput:   row.TokensOutput,
		TotalTokens:    total,
		CostUSD:        cost.InexactFloat64(),
		ResponseTimeMs: row.ResponseTimeMs,
		StatusCode:     row.StatusCode,
		Success:        row.CallsFailed == 0 && row.StatusCode < 400,
		ErrorMessage:   row.ErrorMessage,
		CreatedAt:      row.CreatedAt,
	}
}

// EventCost returns the event cost at the given per-token rate.
func EventCost(e UsageEvent, perTokenUSD decimal.Decimal) decimal.Decimal {
	return perTokenUSD.Mul(decimal.NewFromInt(e.TotalTokens()))
}
