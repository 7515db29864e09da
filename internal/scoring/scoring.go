// Package scoring implements the deterministic multi-factor rule set that
// turns one credit-request record plus the run's aggregate snapshot into a
// score, label, flags and an explainable factor breakdown.
package scoring

import (
	"math"
	"time"

	"github.com/sebasrosalesr/credit-intelligence-center/internal/aggregate"
	"github.com/sebasrosalesr/credit-intelligence-center/internal/domain"
)

// Concentration breakpoints: a rep or item holding at least this share of
// the windowed global total contributes the paired score.
var concentrationBands = []struct {
	share float64
	score float64
}{
	{0.30, 15},
	{0.15, 10},
	{0.05, 5},
}

var repFlags = [...]string{"heavy_rep_90d", "mid_rep_90d", "light_rep_90d"}
var itemFlags = [...]string{"heavy_item_90d", "mid_item_90d", "light_item_90d"}

// Apply evaluates every rule family against one record. Pure and
// side-effect-free: the snapshot is read-only shared context, today anchors
// the aging windows, and identical inputs always produce identical output.
func Apply(rec *domain.CreditRequest, snap *aggregate.Snapshot, cfg *domain.ScoringConfig, today time.Time) domain.ScoreResult {
	var flags []string
	factors := map[string]float64{
		domain.FactorHighAmount:    0,
		domain.FactorAging:         0,
		domain.FactorAgingDollars:  0,
		domain.FactorConcentration: 0,
		domain.FactorDuplicates:    0,
		domain.FactorCustomerFreq:  0,
		domain.FactorTrend:         0,
	}

	amt := rec.Amount
	age, hasAge := rec.AgeDays(today)
	pending := rec.Pending()

	pairCount := snap.Counts.Pairs[aggregate.PairKey{Invoice: rec.InvoiceNumber, Item: rec.ItemNumber}]
	custCount := snap.Counts.Customers[rec.CustomerNumber]

	// High amount: tiers are ordered highest minimum first and only the
	// first match fires, so a record never stacks tiers.
	for _, tier := range cfg.Tiers {
		if amt >= tier.Min {
			flags = append(flags, tier.Flag)
			factors[domain.FactorHighAmount] += tier.Score
			break
		}
	}

	// Concentration: rep and item shares of the windowed global total,
	// summed then capped so one dimension can't dominate the score.
	if snap.Stats.GlobalTotal > 0 {
		rep := rec.SalesRep
		if rep == "" {
			rep = domain.UnknownBucket
		}
		item := rec.ItemNumber
		if item == "" {
			item = domain.UnknownBucket
		}

		repShare := snap.Stats.RepTotals[rep] / snap.Stats.GlobalTotal
		itemShare := snap.Stats.ItemTotals[item] / snap.Stats.GlobalTotal

		for i, band := range concentrationBands {
			if repShare >= band.share {
				flags = append(flags, repFlags[i])
				factors[domain.FactorConcentration] += band.score
				break
			}
		}
		for i, band := range concentrationBands {
			if itemShare >= band.share {
				flags = append(flags, itemFlags[i])
				factors[domain.FactorConcentration] += band.score
				break
			}
		}

		factors[domain.FactorConcentration] = math.Min(
			factors[domain.FactorConcentration], cfg.ConcentrationCap)
	}

	// Aging on pending records, with a dollar-scaled severity bonus.
	switch {
	case pending && hasAge && age >= 60:
		flags = append(flags, "pending_60d_plus")
		factors[domain.FactorAging] += cfg.Aging.Pending60d
		factors[domain.FactorAgingDollars] += math.Min(
			cfg.Aging.Dollars60dCap,
			amt/5000*cfg.Aging.Dollars60dScale,
		)
	case pending && hasAge && age >= 30:
		flags = append(flags, "pending_30_59d")
		factors[domain.FactorAging] += cfg.Aging.Pending3059d
		factors[domain.FactorAgingDollars] += math.Min(
			cfg.Aging.Dollars30dCap,
			amt/5000*cfg.Aging.Dollars30dScale,
		)
		// Reward "aging AND already large": tier-2 amounts stuck in the
		// 30-59 day band get a small extra bump.
		if len(cfg.Tiers) > 1 && amt >= cfg.Tiers[1].Min {
			factors[domain.FactorAgingDollars] += cfg.Aging.Bump3059d10k
		}
	}

	// Duplicate invoice+item within the window.
	if pairCount > 1 {
		flags = append(flags, "repeat_invoice_item_window")
		factors[domain.FactorDuplicates] += math.Min(
			cfg.DuplicatesCap,
			cfg.DuplicatesBase+float64(pairCount-1)*cfg.DuplicatesStep,
		)
	}

	// Frequent customer credits within the window.
	if custCount >= 5 {
		flags = append(flags, "frequent_customer_credits_window")
		factors[domain.FactorCustomerFreq] += math.Min(
			cfg.CustomerFreqCap,
			cfg.CustomerFreqBase+float64(custCount-4),
		)
	}

	// Pending trend: rising pending volume raises risk, falling lowers it
	// slightly. The only factor that can go negative.
	if snap.TrendPct > 0 {
		factors[domain.FactorTrend] += math.Min(cfg.TrendUpCap, snap.TrendPct/5)
	} else if snap.TrendPct < 0 {
		factors[domain.FactorTrend] -= math.Min(cfg.TrendDownCap, math.Abs(snap.TrendPct)/10)
	}

	var raw float64
	for _, v := range factors {
		raw += v
	}
	score := clamp(int(math.Round(raw)), 0, 100)

	for k, v := range factors {
		factors[k] = round2(v)
	}

	return domain.ScoreResult{
		Flags:   flags,
		Factors: factors,
		Score:   score,
		Label:   Label(score, cfg.Thresholds),
	}
}

// Label maps a score to High/Medium/Low using the configured thresholds.
func Label(score int, t domain.ThresholdConfig) string {
	switch {
	case score >= t.High:
		return domain.LabelHigh
	case score >= t.Medium:
		return domain.LabelMedium
	default:
		return domain.LabelLow
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
