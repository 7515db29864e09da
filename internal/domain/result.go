package domain

// Score labels, derived from the configured thresholds.
const (
	LabelHigh   = "High"
	LabelMedium = "Medium"
	LabelLow    = "Low"
)

// The seven factor names. Factors are reported separately so a reviewer can
// see what drove a score.
const (
	FactorHighAmount    = "high_amount"
	FactorAging         = "aging"
	FactorAgingDollars  = "aging_dollars"
	FactorConcentration = "concentration"
	FactorDuplicates    = "duplicates"
	FactorCustomerFreq  = "customer_frequency"
	FactorTrend         = "trend"
)

// FactorNames lists all factor keys in a fixed order.
var FactorNames = []string{
	FactorHighAmount,
	FactorAging,
	FactorAgingDollars,
	FactorConcentration,
	FactorDuplicates,
	FactorCustomerFreq,
	FactorTrend,
}

// ScoreResult is the per-record output of the scoring rules.
type ScoreResult struct {
	// Flags preserve emission order; duplicates only occur across
	// different rule families.
	Flags []string `json:"flags"`

	// Factors maps each of the seven factor names to its contribution,
	// rounded to 2 decimals. Only trend can be negative.
	Factors map[string]float64 `json:"factors"`

	// Score is clamp(round(sum(factors)), 0, 100).
	Score int `json:"score"`

	// Label is High/Medium/Low per the configured thresholds.
	Label string `json:"label"`
}

// Sample is a summary row for the highest and lowest scoring records.
type Sample struct {
	ID      string   `json:"id"`
	Score   int      `json:"score"`
	Label   string   `json:"label"`
	Flags   []string `json:"flags"`
	Amount  float64  `json:"amount"`
	Invoice string   `json:"invoice"`
	Item    string   `json:"item"`
}

// RunSummary is the machine-readable result of one scoring run.
// MaxScore is -1 and MinScore is 101 when no records were processed, so
// consumers can tell "no records" apart from a real observation.
type RunSummary struct {
	RunID         string   `json:"run_id"`
	Processed     int      `json:"processed"`
	Highs         int      `json:"highs"`
	Mediums       int      `json:"mediums"`
	Lows          int      `json:"lows"`
	MaxScore      int      `json:"max_score"`
	MinScore      int      `json:"min_score"`
	DryRun        bool     `json:"dry_run"`
	Target        string   `json:"target"`
	BatchSize     int      `json:"batch_size"`
	TopSamples    []Sample `json:"top_samples"`
	BottomSamples []Sample `json:"bottom_samples"`
}
