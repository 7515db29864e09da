package aggregate

import (
	"testing"
	"time"

	"github.com/sebasrosalesr/credit-intelligence-center/internal/domain"
)

var today = time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func rec(id string, amount float64, invoice, item, customer, rep string, date time.Time) *domain.CreditRequest {
	return &domain.CreditRequest{
		ID:             id,
		Amount:         amount,
		InvoiceNumber:  invoice,
		ItemNumber:     item,
		CustomerNumber: customer,
		SalesRep:       rep,
		Date:           date,
		HasDate:        true,
	}
}

func TestBuildCounts(t *testing.T) {
	records := map[string]*domain.CreditRequest{
		"a": rec("a", 100, "INV-1", "SKU-1", "C-1", "Rep A", day(2025, 8, 1)),
		"b": rec("b", 200, "INV-1", "SKU-1", "C-1", "Rep A", day(2025, 8, 10)),
		"c": rec("c", 300, "INV-2", "SKU-2", "C-2", "Rep B", day(2025, 8, 20)),
		// Out of window.
		"d": rec("d", 400, "INV-1", "SKU-1", "C-1", "Rep A", day(2025, 1, 1)),
	}

	counts := BuildCounts(records, 120, today)

	if got := counts.Pairs[PairKey{"INV-1", "SKU-1"}]; got != 2 {
		t.Errorf("expected pair count 2, got %d", got)
	}
	if got := counts.Pairs[PairKey{"INV-2", "SKU-2"}]; got != 1 {
		t.Errorf("expected pair count 1, got %d", got)
	}
	if got := counts.Customers["C-1"]; got != 2 {
		t.Errorf("expected customer count 2, got %d", got)
	}
}

func TestBuildCountsExclusions(t *testing.T) {
	undated := rec("u", 100, "INV-9", "SKU-9", "C-9", "Rep", time.Time{})
	undated.HasDate = false

	records := map[string]*domain.CreditRequest{
		// Missing invoice: no pair, still counts for the customer.
		"a": rec("a", 100, "", "SKU-1", "C-1", "Rep", day(2025, 8, 1)),
		// Missing item: same.
		"b": rec("b", 100, "INV-1", "", "C-1", "Rep", day(2025, 8, 1)),
		// Missing customer: pair only.
		"c": rec("c", 100, "INV-2", "SKU-2", "", "Rep", day(2025, 8, 1)),
		// No date at all: excluded entirely.
		"u": undated,
	}

	counts := BuildCounts(records, 120, today)

	if len(counts.Pairs) != 1 {
		t.Errorf("expected 1 pair, got %d: %v", len(counts.Pairs), counts.Pairs)
	}
	if got := counts.Customers["C-1"]; got != 2 {
		t.Errorf("expected customer count 2, got %d", got)
	}
	if _, ok := counts.Customers[""]; ok {
		t.Error("empty customer must not be counted")
	}
}

func TestBuildCountsWindowBoundary(t *testing.T) {
	records := map[string]*domain.CreditRequest{
		// Exactly at the cutoff: included.
		"edge": rec("edge", 100, "INV-E", "SKU-E", "C-E", "Rep", today.AddDate(0, 0, -120)),
		// One day older: excluded.
		"out": rec("out", 100, "INV-O", "SKU-O", "C-O", "Rep", today.AddDate(0, 0, -121)),
	}

	counts := BuildCounts(records, 120, today)

	if got := counts.Pairs[PairKey{"INV-E", "SKU-E"}]; got != 1 {
		t.Errorf("expected the cutoff-day record to count, got %d", got)
	}
	if got := counts.Pairs[PairKey{"INV-O", "SKU-O"}]; got != 0 {
		t.Errorf("expected the older record to be excluded, got %d", got)
	}
}

func TestBuildStats(t *testing.T) {
	records := map[string]*domain.CreditRequest{
		"a": rec("a", 1000, "I1", "SKU-1", "C", "Rep A", day(2025, 8, 1)),
		"b": rec("b", 3000, "I2", "SKU-1", "C", "Rep A", day(2025, 8, 5)),
		"c": rec("c", 6000, "I3", "SKU-2", "C", "Rep B", day(2025, 8, 10)),
		// Non-positive amounts never enter totals.
		"z": rec("z", 0, "I4", "SKU-1", "C", "Rep A", day(2025, 8, 10)),
		"n": rec("n", -500, "I5", "SKU-1", "C", "Rep A", day(2025, 8, 10)),
	}

	stats := BuildStats(records, 120, today)

	if stats.GlobalTotal != 10000 {
		t.Errorf("expected global total 10000, got %v", stats.GlobalTotal)
	}
	if stats.RepTotals["Rep A"] != 4000 {
		t.Errorf("expected Rep A total 4000, got %v", stats.RepTotals["Rep A"])
	}
	if stats.ItemTotals["SKU-2"] != 6000 {
		t.Errorf("expected SKU-2 total 6000, got %v", stats.ItemTotals["SKU-2"])
	}
}

func TestBuildStatsUnknownBuckets(t *testing.T) {
	records := map[string]*domain.CreditRequest{
		"a": rec("a", 2500, "I1", "", "C", "", day(2025, 8, 1)),
	}

	stats := BuildStats(records, 120, today)

	if stats.RepTotals[domain.UnknownBucket] != 2500 {
		t.Errorf("expected Unknown rep bucket, got %v", stats.RepTotals)
	}
	if stats.ItemTotals[domain.UnknownBucket] != 2500 {
		t.Errorf("expected Unknown item bucket, got %v", stats.ItemTotals)
	}
}

func TestPendingTrendPct(t *testing.T) {
	pending := func(id string, date time.Time) *domain.CreditRequest {
		return rec(id, 100, "I", "S", "C", "R", date)
	}

	t.Run("RisingVolume", func(t *testing.T) {
		records := map[string]*domain.CreditRequest{
			// Current window (last 14 days): 3 pending.
			"c1": pending("c1", day(2025, 8, 25)),
			"c2": pending("c2", day(2025, 8, 28)),
			"c3": pending("c3", day(2025, 8, 30)),
			// Previous window: 2 pending.
			"p1": pending("p1", day(2025, 8, 10)),
			"p2": pending("p2", day(2025, 8, 12)),
		}

		got := PendingTrendPct(records, 14, today)
		if got != 50.0 {
			t.Errorf("expected +50%%, got %v", got)
		}
	})

	t.Run("EmptyPreviousWindow", func(t *testing.T) {
		records := map[string]*domain.CreditRequest{
			"c1": pending("c1", day(2025, 8, 25)),
		}
		if got := PendingTrendPct(records, 14, today); got != 100.0 {
			t.Errorf("expected +100 for new activity, got %v", got)
		}
	})

	t.Run("BothWindowsEmpty", func(t *testing.T) {
		records := map[string]*domain.CreditRequest{
			"old": pending("old", day(2025, 1, 1)),
		}
		if got := PendingTrendPct(records, 14, today); got != 0.0 {
			t.Errorf("expected 0 for no recent activity, got %v", got)
		}
	})

	t.Run("FallingVolume", func(t *testing.T) {
		records := map[string]*domain.CreditRequest{
			"c1": pending("c1", day(2025, 8, 25)),
			"p1": pending("p1", day(2025, 8, 10)),
			"p2": pending("p2", day(2025, 8, 12)),
		}
		if got := PendingTrendPct(records, 14, today); got != -50.0 {
			t.Errorf("expected -50%%, got %v", got)
		}
	})

	t.Run("ResolvedRecordsIgnored", func(t *testing.T) {
		resolved := pending("r1", day(2025, 8, 25))
		resolved.Resolution = "CR-100"

		records := map[string]*domain.CreditRequest{"r1": resolved}
		if got := PendingTrendPct(records, 14, today); got != 0.0 {
			t.Errorf("expected resolved records to be ignored, got %v", got)
		}
	})

	t.Run("CreatedAtPreferred", func(t *testing.T) {
		// Record date is ancient but the creation timestamp is current.
		r := pending("c1", day(2024, 1, 1))
		r.CreatedAt = day(2025, 8, 28)
		r.HasCreate = true

		records := map[string]*domain.CreditRequest{"c1": r}
		if got := PendingTrendPct(records, 14, today); got != 100.0 {
			t.Errorf("expected created-at to drive the trend window, got %v", got)
		}
	})
}

func TestBuildComposesAll(t *testing.T) {
	records := map[string]*domain.CreditRequest{
		"a": rec("a", 1000, "INV-1", "SKU-1", "C-1", "Rep A", day(2025, 8, 25)),
	}

	snap := Build(records, domain.WindowConfig{
		DuplicatesDays:    120,
		ConcentrationDays: 120,
		TrendDays:         14,
	}, today)

	if snap.Counts.Pairs[PairKey{"INV-1", "SKU-1"}] != 1 {
		t.Error("expected pair counts in the snapshot")
	}
	if snap.Stats.GlobalTotal != 1000 {
		t.Errorf("expected stats in the snapshot, got %v", snap.Stats.GlobalTotal)
	}
	if snap.TrendPct != 100.0 {
		t.Errorf("expected trend in the snapshot, got %v", snap.TrendPct)
	}
}
