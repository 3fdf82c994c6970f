package metrics

import (
	"time"

	"github.com/shopspring/decimal"
)

// RealtimeMetrics is a pure aggregation over a recent window of usage events.
// It is recomputed whenever the underlying event set changes and never
// persisted.
type RealtimeMetrics struct {
	TotalCalls        int64   `json:"total_calls"`
	SuccessfulCalls   int64   `json:"successful_calls"`
	FailedCalls       int64   `json:"failed_calls"`
	AvgResponseTimeMs float64 `json:"avg_response_time_ms"`
	ActiveProviders   int     `json:"active_providers"`
	TotalTokens       int64   `json:"total_tokens"`
	TotalCostUSD      float64 `json:"total_cost_usd"`
	CallsPerMinute    float64 `json:"calls_per_minute"`
	SuccessRate       float64 `json:"success_rate"`
	CostPerHourUSD    float64 `json:"cost_per_hour_usd"`
}

// ComputeRealtime rolls the events up into aggregate counters. The window
// length is used only to normalize the per-minute and per-hour rates.
func ComputeRealtime(events []UsageEvent, window time.Duration, perTokenUSD decimal.Decimal) RealtimeMetrics {
	var m RealtimeMetrics
	providers := make(map[string]struct{})
	cost := decimal.Zero
	var respSumMs, respCount int64

	for _, ev := range events {
		m.TotalCalls += ev.Calls()
		if ev.Succeeded() {
			m.SuccessfulCalls += ev.Calls()
		} else {
			m.FailedCalls += ev.Calls()
		}
		m.TotalTokens += ev.TotalTokens()
		cost = cost.Add(EventCost(ev, perTokenUSD))
		if ev.ResponseTimeMs > 0 {
			respSumMs += int64(ev.ResponseTimeMs)
			respCount++
		}
		if ev.Provider != "" {
			providers[ev.Provider] = struct{}{}
		}
	}

	m.ActiveProviders = len(providers)
	m.TotalCostUSD = cost.InexactFloat64()
	m.SuccessRate = successRate(m.SuccessfulCalls, m.TotalCalls)
	if respCount > 0 {
		m.AvgResponseTimeMs = float64(respSumMs) / float64(respCount)
	}
	if window > 0 {
		m.CallsPerMinute = float64(m.TotalCalls) / window.Minutes()
		m.CostPerHourUSD = cost.InexactFloat64() / window.Hours()
	}
	return m
}
