package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/sebasrosalesr/credit-intelligence-center/internal/domain"
)

func testStore(t *testing.T) domain.RecordStore {
	t.Helper()

	s, err := New(domain.StoreConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "test.db"),
	})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func seed(t *testing.T, s domain.RecordStore, path, id string, doc map[string]any) {
	t.Helper()
	if err := s.Update(context.Background(), path, map[string]any{id: doc}); err != nil {
		t.Fatalf("failed to seed %s/%s: %v", path, id, err)
	}
}

func TestNewUnsupportedDriver(t *testing.T) {
	if _, err := New(domain.StoreConfig{Driver: "mongodb"}); err == nil {
		t.Error("expected an error for an unsupported driver")
	}
}

func TestGetAllEmptyPath(t *testing.T) {
	s := testStore(t)

	out, err := s.GetAll(context.Background(), "credit_requests")
	if err != nil {
		t.Fatalf("GetAll failed: %v", err)
	}
	if len(out) != 0 {
		t.Errorf("expected an empty map, got %d records", len(out))
	}
}

func TestGetAllRequiresPath(t *testing.T) {
	s := testStore(t)

	if _, err := s.GetAll(context.Background(), ""); err == nil {
		t.Error("expected an error for an empty path")
	}
}

func TestWholeDocumentRoundTrip(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	seed(t, s, "credit_requests", "rec-1", map[string]any{
		"Credit Request Total": 12500.0,
		"Invoice Number":       "INV-1001",
		"RTN_CR_No":            "",
	})
	seed(t, s, "credit_requests", "rec-2", map[string]any{
		"Credit Request Total": 300.0,
	})

	out, err := s.GetAll(ctx, "credit_requests")
	if err != nil {
		t.Fatalf("GetAll failed: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 records, got %d", len(out))
	}

	doc, ok := out["rec-1"].(map[string]any)
	if !ok {
		t.Fatalf("expected rec-1 to decode as an object, got %T", out["rec-1"])
	}
	if doc["Credit Request Total"] != 12500.0 {
		t.Errorf("unexpected amount: %v", doc["Credit Request Total"])
	}
	if doc["Invoice Number"] != "INV-1001" {
		t.Errorf("unexpected invoice: %v", doc["Invoice Number"])
	}
}

func TestLeafPatchPreservesSiblings(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	seed(t, s, "credit_requests", "rec-1", map[string]any{
		"Credit Request Total": 12500.0,
		"Invoice Number":       "INV-1001",
	})

	patch := map[string]any{
		"rec-1/alert_score": 72,
		"rec-1/alert_label": "High",
		"rec-1/alert_flags": []string{"high_amount_tier2_10k"},
	}
	if err := s.Update(ctx, "credit_requests", patch); err != nil {
		t.Fatalf("leaf patch failed: %v", err)
	}

	out, _ := s.GetAll(ctx, "credit_requests")
	doc := out["rec-1"].(map[string]any)

	if doc["Credit Request Total"] != 12500.0 {
		t.Errorf("sibling field clobbered: %v", doc["Credit Request Total"])
	}
	if doc["alert_score"] != 72.0 {
		t.Errorf("alert_score = %v, want 72", doc["alert_score"])
	}
	if doc["alert_label"] != "High" {
		t.Errorf("alert_label = %v, want High", doc["alert_label"])
	}
	flags, ok := doc["alert_flags"].([]any)
	if !ok || len(flags) != 1 || flags[0] != "high_amount_tier2_10k" {
		t.Errorf("unexpected alert_flags: %v", doc["alert_flags"])
	}
}

func TestNestedLeafPatch(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	seed(t, s, "credit_requests", "rec-1", map[string]any{"Invoice Number": "INV-1"})

	patch := map[string]any{
		"rec-1/alert_factors/aging":       10.0,
		"rec-1/alert_factors/high_amount": 48.0,
	}
	if err := s.Update(ctx, "credit_requests", patch); err != nil {
		t.Fatalf("nested patch failed: %v", err)
	}

	out, _ := s.GetAll(ctx, "credit_requests")
	doc := out["rec-1"].(map[string]any)

	factors, ok := doc["alert_factors"].(map[string]any)
	if !ok {
		t.Fatalf("expected alert_factors object, got %T", doc["alert_factors"])
	}
	if factors["aging"] != 10.0 || factors["high_amount"] != 48.0 {
		t.Errorf("unexpected factors: %v", factors)
	}
	if doc["Invoice Number"] != "INV-1" {
		t.Errorf("sibling field clobbered: %v", doc["Invoice Number"])
	}
}

func TestLeafPatchCreatesMissingRecord(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	patch := map[string]any{"rec-new/alert_score": 5}
	if err := s.Update(ctx, "credit_requests", patch); err != nil {
		t.Fatalf("patch failed: %v", err)
	}

	out, _ := s.GetAll(ctx, "credit_requests")
	doc, ok := out["rec-new"].(map[string]any)
	if !ok {
		t.Fatal("expected the record to be created")
	}
	if doc["alert_score"] != 5.0 {
		t.Errorf("alert_score = %v, want 5", doc["alert_score"])
	}
}

func TestUpdateValidation(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	if err := s.Update(ctx, "", map[string]any{"a": 1}); err == nil {
		t.Error("expected an error for an empty path")
	}

	// Whole-document replace with a non-object value.
	if err := s.Update(ctx, "credit_requests", map[string]any{"rec-1": "scalar"}); err == nil {
		t.Error("expected an error for a scalar document replace")
	}

	// Empty patch is a no-op.
	if err := s.Update(ctx, "credit_requests", map[string]any{}); err != nil {
		t.Errorf("empty patch should succeed, got %v", err)
	}
}

func TestPathsAreIsolated(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	seed(t, s, "credit_requests", "rec-1", map[string]any{"x": 1.0})
	seed(t, s, "archive", "rec-1", map[string]any{"x": 2.0})

	reqs, _ := s.GetAll(ctx, "credit_requests")
	arch, _ := s.GetAll(ctx, "archive")

	if reqs["rec-1"].(map[string]any)["x"] != 1.0 {
		t.Errorf("unexpected credit_requests doc: %v", reqs["rec-1"])
	}
	if arch["rec-1"].(map[string]any)["x"] != 2.0 {
		t.Errorf("unexpected archive doc: %v", arch["rec-1"])
	}
}

func TestPing(t *testing.T) {
	s := testStore(t)
	if err := s.Ping(context.Background()); err != nil {
		t.Errorf("ping failed: %v", err)
	}
}

func TestRebind(t *testing.T) {
	sq := &SQLStore{driver: "sqlite"}
	pg := &SQLStore{driver: "postgres"}

	q := `SELECT doc FROM records WHERE path = ? AND id = ?`

	if got := sq.rebind(q); got != q {
		t.Errorf("sqlite rebind changed the query: %s", got)
	}
	want := `SELECT doc FROM records WHERE path = $1 AND id = $2`
	if got := pg.rebind(q); got != want {
		t.Errorf("postgres rebind = %s, want %s", got, want)
	}
}
