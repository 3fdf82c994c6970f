package realtime

import (
	"encoding/json"

	"github.com/orchestr8/dashboard/internal/realtime/changefeed"
)

// DomainEvent is the business-level reading of a raw change notification,
// decoupling consumers from table schemas and status strings.
type DomainEvent interface {
	domainEvent()
}

// OrchestrationStarted signals that an invocation began running.
type OrchestrationStarted struct {
	InvocationID string
}

// OrchestrationSucceeded signals that an invocation completed successfully.
type OrchestrationSucceeded struct {
	InvocationID string
}

// OrchestrationFailed signals that an invocation failed.
type OrchestrationFailed struct {
	InvocationID string
	Reason       string
}

func (OrchestrationStarted) domainEvent()   {}
func (OrchestrationSucceeded) domainEvent() {}
func (OrchestrationFailed) domainEvent()    {}

type invocationPayload struct {
	ID           string `json:"id"`
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message"`
}

// Translate maps a raw change event to its domain meaning. Events that carry
// no domain significance (non-invocation tables, unknown statuses, deletes)
// return ok=false.
func Translate(ev changefeed.ChangeEvent) (DomainEvent, bool) {
	if ev.Table != TableInvocations || ev.Type == changefeed.EventDelete {
		return nil, false
	}

	var payload invocationPayload
	if err := json.Unmarshal(ev.New, &payload); err != nil || payload.ID == "" {
		return nil, false
	}

	switch payload.Status {
	case "running":
		return OrchestrationStarted{InvocationID: payload.ID}, true
	case "succeeded":
		return OrchestrationSucceeded{InvocationID: payload.ID}, true
	case "failed":
		return OrchestrationFailed{InvocationID: payload.ID, Reason: payload.ErrorMessage}, true
	default:
		return nil, false
	}
}
