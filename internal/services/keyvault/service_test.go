package keyvault

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/orchestr8/dashboard/internal/db"
)

type stubStore struct {
	inserted []db.InsertAPIKeyParams
	id       uuid.UUID
	err      error
}

func (s *stubStore) InsertAPIKey(_ context.Context, arg db.InsertAPIKeyParams) (uuid.UUID, error) {
	s.inserted = append(s.inserted, arg)
	return s.id, s.err
}

func TestStoreKeyNeverPersistsRawKey(t *testing.T) {
	store := &stubStore{id: uuid.New()}
	svc := NewService(store, nil)

	raw := "sk-ABCDEFGHIJKLMNOP1234"
	id, err := svc.StoreKey(context.Background(), StoreKeyParams{
		Name:    "prod openai",
		Service: "openai",
		APIKey:  raw,
		UserID:  "u1",
	})
	if err != nil {
		t.Fatalf("store key: %v", err)
	}
	if id != store.id {
		t.Fatalf("want id %s, got %s", store.id, id)
	}

	if len(store.inserted) != 1 {
		t.Fatalf("want 1 insert, got %d", len(store.inserted))
	}
	arg := store.inserted[0]
	if strings.Contains(arg.KeyPreview, raw) || arg.KeyPreview == raw {
		t.Fatalf("raw key leaked into preview: %q", arg.KeyPreview)
	}
	if arg.KeyPreview != "sk-ABCDE...1234" {
		t.Fatalf("unexpected preview %q", arg.KeyPreview)
	}
	if !strings.HasPrefix(arg.SecretRef, "openai_key_") {
		t.Fatalf("unexpected secret ref %q", arg.SecretRef)
	}
	if _, err := uuid.Parse(strings.TrimPrefix(arg.SecretRef, "openai_key_")); err != nil {
		t.Fatalf("secret ref suffix is not a uuid: %q", arg.SecretRef)
	}
}

func TestStoreKeyValidatesBeforeTouchingStore(t *testing.T) {
	tests := []struct {
		name   string
		params StoreKeyParams
	}{
		{"missing name", StoreKeyParams{Service: "openai", APIKey: "k", UserID: "u1"}},
		{"missing service", StoreKeyParams{Name: "n", APIKey: "k", UserID: "u1"}},
		{"missing key", StoreKeyParams{Name: "n", Service: "openai", UserID: "u1"}},
		{"missing user", StoreKeyParams{Name: "n", Service: "openai", APIKey: "k"}},
		{"whitespace name", StoreKeyParams{Name: "  ", Service: "openai", APIKey: "k", UserID: "u1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &stubStore{}
			svc := NewService(store, nil)
			_, err := svc.StoreKey(context.Background(), tt.params)
			if !errors.Is(err, ErrMissingField) {
				t.Fatalf("want ErrMissingField, got %v", err)
			}
			if len(store.inserted) != 0 {
				t.Fatal("validation failure must not reach the store")
			}
		})
	}
}

func TestStoreKeyWrapsStoreErrors(t *testing.T) {
	store := &stubStore{err: errors.New("unique violation")}
	svc := NewService(store, nil)

	_, err := svc.StoreKey(context.Background(), StoreKeyParams{
		Name: "n", Service: "openai", APIKey: "sk-whatever-long-key", UserID: "u1",
	})
	if err == nil || !strings.Contains(err.Error(), "unique violation") {
		t.Fatalf("store error not surfaced: %v", err)
	}
}

func TestRedactKey(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"sk-ABCDEFGHIJKL1234", "sk-ABCDE...1234"},
		{"exactly12chr", "exactly1...2chr"},
		{"short", "*****"},
		{"", ""},
		{"elevenchars", "***********"},
	}
	for _, tt := range tests {
		if got := RedactKey(tt.raw); got != tt.want {
			t.Errorf("RedactKey(%q) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}
