package metrics

import (
	"time"

	"github.com/shopspring/decimal"
)

// TimeBucket is one fixed-width slot of the rolling window.
type TimeBucket struct {
	Start             time.Time `json:"bucket_start"`
	Label             string    `json:"label"`
	CallCount         int64     `json:"call_count"`
	TokenCount        int64     `json:"token_count"`
	CostUSD           float64   `json:"cost_usd"`
	AvgResponseTimeMs float64   `json:"avg_response_time_ms"`
}

type bucketAccum struct {
	calls     int64
	tokens    int64
	cost      decimal.Decimal
	respSumMs int64
	respCount int64
}

// Bucketer maintains a fixed-size rolling window of fixed-width time buckets
// anchored at construction time. It does not advance on its own; callers
// rebuild it on every refresh cycle so the window stays anchored to "now".
type Bucketer struct {
	width       time.Duration
	start       time.Time
	perTokenUSD decimal.Decimal
	buckets     []bucketAccum
}

// NewBucketer pre-populates count empty buckets spanning [now-count*width, now).
func NewBucketer(width time.Duration, count int, now time.Time, perTokenUSD decimal.Decimal) *Bucketer {
	if count < 1 {
		count = 1
	}
	if width <= 0 {
		width = time.Minute
	}
	return &Bucketer{
		width:       width,
		start:       now.Add(-time.Duration(count) * width),
		perTokenUSD: perTokenUSD,
		buckets:     make([]bucketAccum, count),
	}
}

// Ingest accumulates the event into its bucket. Events outside the current
// window are silently dropped; the return value reports whether the event
// landed.
func (b *Bucketer) Ingest(ev UsageEvent) bool {
	offset := ev.Timestamp.Sub(b.start)
	if offset < 0 {
		return false
	}
	idx := int(offset / b.width)
	if idx >= len(b.buckets) {
		return false
	}

	acc := &b.buckets[idx]
	acc.calls += ev.Calls()
	acc.tokens += ev.TotalTokens()
	acc.cost = acc.cost.Add(EventCost(ev, b.perTokenUSD))
	if ev.ResponseTimeMs > 0 {
		acc.respSumMs += int64(ev.ResponseTimeMs)
		acc.respCount++
	}
	return true
}

// Snapshot returns the buckets oldest first. It does not mutate state.
func (b *Bucketer) Snapshot() []TimeBucket {
	out := make([]TimeBucket, len(b.buckets))
	for i, acc := range b.buckets {
		start := b.start.Add(time.Duration(i) * b.width)
		bucket := TimeBucket{
			Start:      start,
			Label:      start.Format("15:04"),
			CallCount:  acc.calls,
			TokenCount: acc.tokens,
			CostUSD:    acc.cost.InexactFloat64(),
		}
		if acc.respCount > 0 {
			bucket.AvgResponseTimeMs = float64(acc.respSumMs) / float64(acc.respCount)
		}
		out[i] = bucket
	}
	return out
}

// WindowStart returns the inclusive start of the rolling window.
func (b *Bucketer) WindowStart() time.Time { return b.start }

// WindowEnd returns the exclusive end of the rolling window.
func (b *Bucketer) WindowEnd() time.Time {
	return b.start.Add(time.Duration(len(b.buckets)) * b.width)
}
