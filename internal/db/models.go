package db

import (
	"time"

	"github.com/google/uuid"
)

// DashboardMetricsRow is the precomputed snapshot materialized by the store.
type DashboardMetricsRow struct {
	UserID                string
	TotalInvocationsMonth int64
	SuccessRate           float64
	ActiveOrchestrations  int64
	CurrentPlan           string
	CreditsUsed           int64
	CreditsAllowed        int64
	UpdatedAt             time.Time
}

// APIUsageRow is one recorded provider call.
type APIUsageRow struct {
	ID             uuid.UUID
	UserID         string
	Provider       string
	Model          string
	Endpoint       string
	TokensInput    int64
	TokensOutput   int64
	CallsAttempted int64
	CallsSucceeded int64
	CallsFailed    int64
	ResponseTimeMs int32
	StatusCode     int32
	ErrorMessage   string
	CreatedAt      time.Time
}

// InvocationRow tracks one orchestration invocation.
type InvocationRow struct {
	ID        uuid.UUID
	UserID    string
	Status    string
	CreatedAt time.Time
}

// BillingRow carries the plan and credit balances for an owner.
type BillingRow struct {
	UserID         string
	Plan           string
	CreditsUsed    int64
	CreditsAllowed int64
	UpdatedAt      time.Time
}

// OrchestrationRow is a configured orchestration pipeline.
type OrchestrationRow struct {
	ID        uuid.UUID
	UserID    string
	Name      string
	Status    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// APIKeyRow stores the redacted preview of a provider credential, never the raw key.
type APIKeyRow struct {
	ID         uuid.UUID
	UserID     string
	Name       string
	Service    string
	KeyPreview string
	SecretRef  string
	CreatedAt  time.Time
}

// UserSettingRow is one typed configuration blob for an owner.
type UserSettingRow struct {
	UserID    string
	Kind      string
	Value     []byte
	UpdatedAt time.Time
}
