package functions

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/orchestr8/dashboard/internal/config"
	"github.com/orchestr8/dashboard/internal/db"
	"github.com/orchestr8/dashboard/internal/metrics"
	"github.com/orchestr8/dashboard/internal/services/dashboard"
	"github.com/orchestr8/dashboard/internal/services/keyvault"
)

var testSecret = []byte("test-secret")

type dashStore struct {
	snapshot db.DashboardMetricsRow
	usage    []db.APIUsageRow
	usageErr error
}

func (s *dashStore) GetDashboardMetrics(context.Context, string) (db.DashboardMetricsRow, error) {
	return s.snapshot, nil
}

func (s *dashStore) CountInvocationsSince(context.Context, string, time.Time) (db.InvocationCounts, error) {
	return db.InvocationCounts{}, nil
}

func (s *dashStore) CountActiveOrchestrations(context.Context, string) (int64, error) {
	return 0, nil
}

func (s *dashStore) GetBilling(context.Context, string) (db.BillingRow, error) {
	return db.BillingRow{}, pgx.ErrNoRows
}

func (s *dashStore) ListUsageSince(context.Context, string, time.Time, int32) ([]db.APIUsageRow, error) {
	return s.usage, s.usageErr
}

type keyStore struct {
	inserted []db.InsertAPIKeyParams
	err      error
}

func (s *keyStore) InsertAPIKey(_ context.Context, arg db.InsertAPIKeyParams) (uuid.UUID, error) {
	s.inserted = append(s.inserted, arg)
	return uuid.New(), s.err
}

func newTestApp(t *testing.T, ds *dashStore, ks *keyStore) *fiber.App {
	t.Helper()
	cfg := config.MetricsConfig{
		DefaultPlan:        "free",
		DefaultCredits:     1000,
		BucketWidth:        time.Minute,
		BucketCount:        10,
		CostPerTokenUSD:    0.000002,
		RecentActivityMax:  20,
		RealtimeWindowSize: time.Hour,
	}
	agg := metrics.NewAggregator(ds, cfg, nil)
	dashSvc := dashboard.NewService(ds, agg, nil, cfg, nil)
	keySvc := keyvault.NewService(ks, nil)

	app := fiber.New()
	NewHandler(dashSvc, keySvc, testSecret, nil).Register(app)
	return app
}

func signToken(t *testing.T, owner string, secret []byte) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": owner,
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString(secret)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func postJSON(t *testing.T, app *fiber.App, path, bearer, body string) (int, map[string]json.RawMessage) {
	t.Helper()
	req := httptest.NewRequest(fiber.MethodPost, path, strings.NewReader(body))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	if bearer != "" {
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+bearer)
	}
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	var decoded map[string]json.RawMessage
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &decoded); err != nil {
			t.Fatalf("decode body %q: %v", raw, err)
		}
	}
	return resp.StatusCode, decoded
}

func TestDashboardRequiresBearerToken(t *testing.T) {
	app := newTestApp(t, &dashStore{}, &keyStore{})

	status, body := postJSON(t, app, "/functions/v1/dashboard", "", `{"operation":"getDashboardMetrics"}`)
	if status != fiber.StatusUnauthorized {
		t.Fatalf("want 401 without token, got %d", status)
	}
	if _, ok := body["error"]; !ok {
		t.Fatal("error body missing")
	}
}

func TestDashboardRejectsForgedToken(t *testing.T) {
	app := newTestApp(t, &dashStore{}, &keyStore{})

	forged := signToken(t, "u1", []byte("wrong-secret"))
	status, _ := postJSON(t, app, "/functions/v1/dashboard", forged, `{"operation":"getDashboardMetrics"}`)
	if status != fiber.StatusUnauthorized {
		t.Fatalf("want 401 for forged token, got %d", status)
	}

	status, _ = postJSON(t, app, "/functions/v1/dashboard", "not-a-jwt", `{"operation":"getDashboardMetrics"}`)
	if status != fiber.StatusUnauthorized {
		t.Fatalf("want 401 for garbage token, got %d", status)
	}
}

func TestDashboardGetMetrics(t *testing.T) {
	ds := &dashStore{
		snapshot: db.DashboardMetricsRow{
			UserID:                "u1",
			TotalInvocationsMonth: 7,
			SuccessRate:           88,
			CurrentPlan:           "pro",
			CreditsUsed:           10,
			CreditsAllowed:        500,
		},
	}
	app := newTestApp(t, ds, &keyStore{})

	status, body := postJSON(t, app, "/functions/v1/dashboard",
		signToken(t, "u1", testSecret), `{"operation":"getDashboardMetrics"}`)
	if status != fiber.StatusOK {
		t.Fatalf("want 200, got %d", status)
	}

	var snap metrics.Snapshot
	raw, _ := json.Marshal(body)
	if err := json.Unmarshal(raw, &snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if snap.TotalInvocationsMonth != 7 || snap.CurrentPlan != "pro" {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
}

func TestDashboardOperationValidation(t *testing.T) {
	app := newTestApp(t, &dashStore{}, &keyStore{})
	bearer := signToken(t, "u1", testSecret)

	status, body := postJSON(t, app, "/functions/v1/dashboard", bearer, `{}`)
	if status != fiber.StatusBadRequest {
		t.Fatalf("want 400 for missing operation, got %d", status)
	}
	if msg := string(body["error"]); !strings.Contains(msg, "operation is required") {
		t.Fatalf("unexpected error message %s", msg)
	}

	status, _ = postJSON(t, app, "/functions/v1/dashboard", bearer, `{"operation":"dropTables"}`)
	if status != fiber.StatusBadRequest {
		t.Fatalf("want 400 for unknown operation, got %d", status)
	}

	status, _ = postJSON(t, app, "/functions/v1/dashboard", bearer, `{nope`)
	if status != fiber.StatusBadRequest {
		t.Fatalf("want 400 for malformed body, got %d", status)
	}
}

func TestDashboardRecentActivity(t *testing.T) {
	now := time.Now().UTC()
	ds := &dashStore{
		usage: []db.APIUsageRow{
			{ID: uuid.New(), Provider: "openai", TokensInput: 100, StatusCode: 200, CreatedAt: now.Add(-time.Minute)},
		},
	}
	app := newTestApp(t, ds, &keyStore{})

	status, body := postJSON(t, app, "/functions/v1/dashboard",
		signToken(t, "u1", testSecret), `{"operation":"getRecentActivity","limit":5}`)
	if status != fiber.StatusOK {
		t.Fatalf("want 200, got %d", status)
	}

	var entries []metrics.CallLogEntry
	if err := json.Unmarshal(body["activity"], &entries); err != nil {
		t.Fatalf("decode activity: %v", err)
	}
	if len(entries) != 1 || entries[0].ProviderID != "openai" {
		t.Fatalf("unexpected activity: %+v", entries)
	}
}

func TestDashboardRecentActivityStoreFailure(t *testing.T) {
	ds := &dashStore{usageErr: errors.New("connection refused")}
	app := newTestApp(t, ds, &keyStore{})

	status, _ := postJSON(t, app, "/functions/v1/dashboard",
		signToken(t, "u1", testSecret), `{"operation":"getRecentActivity"}`)
	if status != fiber.StatusInternalServerError {
		t.Fatalf("want 500 when the store fails, got %d", status)
	}
}

func TestStoreKeyRedactsBeforePersisting(t *testing.T) {
	ks := &keyStore{}
	app := newTestApp(t, &dashStore{}, ks)

	raw := "sk-SECRETSECRETSECRET9999"
	status, body := postJSON(t, app, "/functions/v1/keys", "",
		`{"name":"prod","service":"openai","api_key":"`+raw+`","user_id":"u1"}`)
	if status != fiber.StatusOK {
		t.Fatalf("want 200, got %d", status)
	}
	if msg := string(body["message"]); !strings.Contains(msg, "stored successfully") {
		t.Fatalf("unexpected message %s", msg)
	}
	if _, ok := body["id"]; !ok {
		t.Fatal("response missing id")
	}

	if len(ks.inserted) != 1 {
		t.Fatalf("want 1 insert, got %d", len(ks.inserted))
	}
	arg := ks.inserted[0]
	if strings.Contains(arg.KeyPreview, raw) {
		t.Fatalf("raw key persisted: %q", arg.KeyPreview)
	}
	if strings.Contains(arg.SecretRef, raw) {
		t.Fatalf("raw key leaked into secret ref: %q", arg.SecretRef)
	}
}

func TestStoreKeyValidation(t *testing.T) {
	app := newTestApp(t, &dashStore{}, &keyStore{})

	status, body := postJSON(t, app, "/functions/v1/keys", "",
		`{"name":"prod","service":"openai"}`)
	if status != fiber.StatusBadRequest {
		t.Fatalf("want 400 for missing fields, got %d", status)
	}
	if msg := string(body["error"]); !strings.Contains(msg, "required") {
		t.Fatalf("unexpected error message %s", msg)
	}
}

func TestStoreKeyStoreFailure(t *testing.T) {
	ks := &keyStore{err: errors.New("insert failed")}
	app := newTestApp(t, &dashStore{}, ks)

	status, _ := postJSON(t, app, "/functions/v1/keys", "",
		`{"name":"prod","service":"openai","api_key":"sk-AAAABBBBCCCCDDDD","user_id":"u1"}`)
	if status != fiber.StatusInternalServerError {
		t.Fatalf("want 500 when the store fails, got %d", status)
	}
}
