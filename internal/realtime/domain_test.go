package realtime

import (
	"encoding/json"
	"testing"

	"github.com/orchestr8/dashboard/internal/realtime/changefeed"
)

func invocationChange(t *testing.T, typ changefeed.EventType, payload string) changefeed.ChangeEvent {
	t.Helper()
	return changefeed.ChangeEvent{
		Table: TableInvocations,
		Type:  typ,
		New:   json.RawMessage(payload),
	}
}

func TestTranslateInvocationStatuses(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    DomainEvent
	}{
		{"running", `{"id":"inv-1","status":"running"}`, OrchestrationStarted{InvocationID: "inv-1"}},
		{"succeeded", `{"id":"inv-2","status":"succeeded"}`, OrchestrationSucceeded{InvocationID: "inv-2"}},
		{"failed", `{"id":"inv-3","status":"failed","error_message":"rate limited"}`, OrchestrationFailed{InvocationID: "inv-3", Reason: "rate limited"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Translate(invocationChange(t, changefeed.EventUpdate, tt.payload))
			if !ok {
				t.Fatal("expected a domain event")
			}
			if got != tt.want {
				t.Fatalf("want %+v, got %+v", tt.want, got)
			}
		})
	}
}

func TestTranslateIgnoresNonDomainChanges(t *testing.T) {
	tests := []struct {
		name string
		ev   changefeed.ChangeEvent
	}{
		{"other table", changefeed.ChangeEvent{Table: TableBilling, Type: changefeed.EventUpdate, New: json.RawMessage(`{"id":"x","status":"running"}`)}},
		{"delete", invocationChange(t, changefeed.EventDelete, `{"id":"x","status":"running"}`)},
		{"unknown status", invocationChange(t, changefeed.EventUpdate, `{"id":"x","status":"queued"}`)},
		{"missing id", invocationChange(t, changefeed.EventUpdate, `{"status":"running"}`)},
		{"garbage payload", invocationChange(t, changefeed.EventUpdate, `nope`)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if ev, ok := Translate(tt.ev); ok {
				t.Fatalf("expected no domain event, got %+v", ev)
			}
		})
	}
}
