// Package configstore exposes typed per-owner configuration, replacing ad hoc
// string-keyed client storage.
package configstore

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/orchestr8/dashboard/internal/db"
)

// Config is one typed configuration blob for an owner.
type Config struct {
	Kind      string
	Value     json.RawMessage
	UpdatedAt time.Time
}

// Store resolves per-owner configuration by kind. The second return value is
// false when the owner has no stored value for that kind.
type Store interface {
	Get(ctx context.Context, ownerID, kind string) (Config, bool, error)
}

// DBStore reads configuration from the user_settings table.
type DBStore struct {
	queries *db.Queries
}

func NewDBStore(queries *db.Queries) *DBStore {
	return &DBStore{queries: queries}
}

func (s *DBStore) Get(ctx context.Context, ownerID, kind string) (Config, bool, error) {
	row, err := s.queries.GetUserSetting(ctx, ownerID, kind)
	if errors.Is(err, pgx.ErrNoRows) {
		return Config{}, false, nil
	}
	if err != nil {
		return Config{}, false, err
	}
	return Config{Kind: row.Kind, Value: row.Value, UpdatedAt: row.UpdatedAt}, true, nil
}
