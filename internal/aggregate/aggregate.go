// Package aggregate builds the windowed context shared by every scoring
// call in a run: duplicate/frequency counts, concentration totals, and the
// pending-trend percentage. Each builder is a single pass over the records;
// records with unparsable or out-of-window dates are excluded silently.
package aggregate

import (
	"time"

	"github.com/sebasrosalesr/credit-intelligence-center/internal/domain"
)

// PairKey identifies an invoice/item combination for duplicate detection.
type PairKey struct {
	Invoice string
	Item    string
}

// Counts holds rolling occurrence counts within the duplicates window.
type Counts struct {
	// Pairs counts invoice+item occurrences. A record only counts when
	// both members are non-empty.
	Pairs map[PairKey]int

	// Customers counts records per customer number.
	Customers map[string]int
}

// Stats holds windowed monetary totals for concentration shares.
// Records with amount <= 0 are excluded; missing rep/item identifiers
// bucket under "Unknown".
type Stats struct {
	GlobalTotal float64
	RepTotals   map[string]float64
	ItemTotals  map[string]float64
}

// Snapshot is the complete aggregation context for one run. Built once,
// then treated as read-only by every scoring call.
type Snapshot struct {
	Counts   Counts
	Stats    Stats
	TrendPct float64
}

// Build composes the three aggregations using the configured window lengths.
func Build(records map[string]*domain.CreditRequest, w domain.WindowConfig, today time.Time) *Snapshot {
	return &Snapshot{
		Counts:   BuildCounts(records, w.DuplicatesDays, today),
		Stats:    BuildStats(records, w.ConcentrationDays, today),
		TrendPct: PendingTrendPct(records, w.TrendDays, today),
	}
}

// BuildCounts computes duplicate-pair and customer-frequency counts over a
// trailing window of days ending today.
func BuildCounts(records map[string]*domain.CreditRequest, days int, today time.Time) Counts {
	cutoff := today.AddDate(0, 0, -days)

	counts := Counts{
		Pairs:     make(map[PairKey]int),
		Customers: make(map[string]int),
	}

	for _, rec := range records {
		if !rec.HasDate || rec.Date.Before(cutoff) {
			continue
		}

		if rec.InvoiceNumber != "" && rec.ItemNumber != "" {
			key := PairKey{Invoice: rec.InvoiceNumber, Item: rec.ItemNumber}
			counts.Pairs[key]++
		}

		if rec.CustomerNumber != "" {
			counts.Customers[rec.CustomerNumber]++
		}
	}

	return counts
}

// BuildStats computes the global, per-rep and per-item monetary totals over
// a trailing window of days ending today.
func BuildStats(records map[string]*domain.CreditRequest, days int, today time.Time) Stats {
	cutoff := today.AddDate(0, 0, -days)

	stats := Stats{
		RepTotals:  make(map[string]float64),
		ItemTotals: make(map[string]float64),
	}

	for _, rec := range records {
		if !rec.HasDate || rec.Date.Before(cutoff) {
			continue
		}
		if rec.Amount <= 0 {
			continue
		}

		rep := rec.SalesRep
		if rep == "" {
			rep = domain.UnknownBucket
		}
		item := rec.ItemNumber
		if item == "" {
			item = domain.UnknownBucket
		}

		stats.GlobalTotal += rec.Amount
		stats.RepTotals[rep] += rec.Amount
		stats.ItemTotals[item] += rec.Amount
	}

	return stats
}

// PendingTrendPct returns the percent change in the count of pending records
// created in the most recent trailing window versus the window immediately
// before it. A previous count of zero with current activity reads as +100;
// two empty windows read as 0.
func PendingTrendPct(records map[string]*domain.CreditRequest, days int, today time.Time) float64 {
	currentStart := today.AddDate(0, 0, -days)
	prevStart := currentStart.AddDate(0, 0, -days)

	var current, previous int

	for _, rec := range records {
		if !rec.Pending() {
			continue
		}
		d, ok := rec.EffectiveDate()
		if !ok {
			continue
		}
		switch {
		case !d.Before(currentStart):
			current++
		case !d.Before(prevStart):
			previous++
		}
	}

	if previous > 0 {
		return (float64(current-previous) / float64(previous)) * 100.0
	}
	if current > 0 {
		return 100.0
	}
	return 0.0
}
