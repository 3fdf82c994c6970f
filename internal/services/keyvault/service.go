// Package keyvault stores redacted previews of provider API keys. The raw
// key is forwarded to the external secret manager by reference and never
// persisted here.
package keyvault

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/orchestr8/dashboard/internal/db"
)

var ErrMissingField = errors.New("name, service, api_key, and user_id are required")

// Store is the slice of the query layer this service needs.
type Store interface {
	InsertAPIKey(ctx context.Context, arg db.InsertAPIKeyParams) (uuid.UUID, error)
}

type Service struct {
	store  Store
	logger *slog.Logger
}

func NewService(store Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, logger: logger}
}

// StoreKeyParams carries the raw submission; only the redacted form leaves
// this package.
type StoreKeyParams struct {
	Name    string
	Service string
	APIKey  string
	UserID  string
}

// StoreKey validates the submission and records the redacted preview plus a
// generated secret reference name.
func (s *Service) StoreKey(ctx context.Context, params StoreKeyParams) (uuid.UUID, error) {
	params.Name = strings.TrimSpace(params.Name)
	params.Service = strings.TrimSpace(params.Service)
	params.UserID = strings.TrimSpace(params.UserID)
	if params.Name == "" || params.Service == "" || params.APIKey == "" || params.UserID == "" {
		return uuid.Nil, ErrMissingField
	}

	id, err := s.store.InsertAPIKey(ctx, db.InsertAPIKeyParams{
		UserID:     params.UserID,
		Name:       params.Name,
		Service:    params.Service,
		KeyPreview: RedactKey(params.APIKey),
		SecretRef:  secretRef(params.Service),
	})
	if err != nil {
		return uuid.Nil, fmt.Errorf("store api key: %w", err)
	}

	s.logger.Info("api key stored", "owner", params.UserID, "service", params.Service, "id", id)
	return id, nil
}

// RedactKey keeps the first 8 and last 4 characters of the key. Keys too
// short to redact safely are masked entirely.
func RedactKey(raw string) string {
	if len(raw) < 12 {
		return strings.Repeat("*", len(raw))
	}
	return raw[:8] + "..." + raw[len(raw)-4:]
}

// secretRef names the slot in the external secret manager where the raw key
// lives.
func secretRef(service string) string {
	return fmt.Sprintf("%s_key_%s", service, uuid.NewString())
}
