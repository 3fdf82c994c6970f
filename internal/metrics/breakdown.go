package metrics

import (
	"math"
	"sort"

	"github.com/shopspring/decimal"
)

// BreakdownEntry is the per-group rollup for one dimension value.
type BreakdownEntry struct {
	Key               string  `json:"key"`
	CallCount         int64   `json:"call_count"`
	TokenCount        int64   `json:"token_count"`
	CostUSD           float64 `json:"cost_usd"`
	AvgResponseTimeMs float64 `json:"avg_response_time_ms"`
	SharePercent      int     `json:"share_percent"`
}

// GroupKeyFunc extracts the grouping dimension from an event.
type GroupKeyFunc func(UsageEvent) string

// ByProvider groups events by provider id.
func ByProvider(e UsageEvent) string {
	if e.Provider == "" {
		return "unknown"
	}
	return e.Provider
}

// ByModel groups events by model id.
func ByModel(e UsageEvent) string {
	if e.Model == "" {
		return "unknown"
	}
	return e.Model
}

// Reduce groups events by the key function and produces per-group totals with
// token share percentages. Groups are ordered by token count descending, ties
// broken by key so output is deterministic.
func Reduce(events []UsageEvent, key GroupKeyFunc, perTokenUSD decimal.Decimal) []BreakdownEntry {
	type accum struct {
		calls     int64
		tokens    int64
		cost      decimal.Decimal
		respSumMs int64
		respCount int64
	}

	groups := make(map[string]*accum)
	var totalTokens int64
	for _, ev := range events {
		k := key(ev)
		acc := groups[k]
		if acc == nil {
			acc = &accum{}
			groups[k] = acc
		}
		acc.calls += ev.Calls()
		acc.tokens += ev.TotalTokens()
		acc.cost = acc.cost.Add(EventCost(ev, perTokenUSD))
		if ev.ResponseTimeMs > 0 {
			acc.respSumMs += int64(ev.ResponseTimeMs)
			acc.respCount++
		}
		totalTokens += ev.TotalTokens()
	}

	// Floor the divisor at 1 so a token-free event set yields 0% shares
	// instead of a division error.
	divisor := totalTokens
	if divisor < 1 {
		divisor = 1
	}

	out := make([]BreakdownEntry, 0, len(groups))
	for k, acc := range groups {
		entry := BreakdownEntry{
			Key:          k,
			CallCount:    acc.calls,
			TokenCount:   acc.tokens,
			CostUSD:      acc.cost.InexactFloat64(),
			SharePercent: int(math.Round(float64(acc.tokens) / float64(divisor) * 100)),
		}
		if acc.respCount > 0 {
			entry.AvgResponseTimeMs = float64(acc.respSumMs) / float64(acc.respCount)
		}
		out = append(out, entry)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].TokenCount != out[j].TokenCount {
			return out[i].TokenCount > out[j].TokenCount
		}
		return out[i].Key < out[j].Key
	})
	return out
}
