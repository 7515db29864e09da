package domain

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
)

// Config holds the complete engine configuration: scoring tunables plus the
// infrastructure collaborators (store, cache, bus, server).
type Config struct {
	Scoring ScoringConfig
	Run     RunConfig
	Store   StoreConfig
	Cache   CacheConfig
	Bus     EventBusConfig
	Server  ServerConfig
}

// ScoringConfig holds every numeric tunable of the rule set. Each field is
// independently overridable from the environment (ALERT_* variables).
type ScoringConfig struct {
	Windows    WindowConfig
	Thresholds ThresholdConfig

	// Tiers are evaluated highest minimum first; only the first matching
	// tier fires.
	Tiers []AmountTier

	Aging            AgingConfig
	ConcentrationCap float64

	DuplicatesBase float64
	DuplicatesStep float64
	DuplicatesCap  float64

	CustomerFreqBase float64
	CustomerFreqCap  float64

	TrendUpCap   float64
	TrendDownCap float64
}

// WindowConfig holds the trailing window lengths in days.
type WindowConfig struct {
	DuplicatesDays    int
	ConcentrationDays int
	TrendDays         int
}

// ThresholdConfig maps scores to labels: High when score >= High,
// Medium when score >= Medium, else Low.
type ThresholdConfig struct {
	High   int
	Medium int
}

// AmountTier is one dollar tier of the high-amount rule.
type AmountTier struct {
	Min   float64
	Score float64
	Flag  string
}

// AgingConfig holds the pending-age weights and the dollar-scaled bonuses.
// Scales are per $5,000 of record amount.
type AgingConfig struct {
	Pending60d   float64
	Pending3059d float64

	Dollars60dCap   float64
	Dollars30dCap   float64
	Dollars60dScale float64
	Dollars30dScale float64

	// Bump3059d10k is an extra bonus for records that are both aging
	// 30-59 days and already at the second amount tier.
	Bump3059d10k float64
}

// RunConfig holds the batch-job defaults. Flags override these per run.
type RunConfig struct {
	TargetPath string
	BatchSize  int
	DryRun     bool
}

// ServerConfig holds HTTP server settings for serve mode.
type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  int // seconds
	WriteTimeout int // seconds
}

// DefaultConfig returns the engine defaults before environment overrides.
func DefaultConfig() *Config {
	return &Config{
		Scoring: ScoringConfig{
			Windows: WindowConfig{
				DuplicatesDays:    120,
				ConcentrationDays: 120,
				TrendDays:         14,
			},
			Thresholds: ThresholdConfig{High: 70, Medium: 50},
			Tiers: []AmountTier{
				{Min: 20000, Score: 65, Flag: "high_amount_tier3_20k"},
				{Min: 10000, Score: 48, Flag: "high_amount_tier2_10k"},
				{Min: 2500, Score: 15, Flag: "high_amount_tier1_2_5k"},
			},
			Aging: AgingConfig{
				Pending60d:      18,
				Pending3059d:    10,
				Dollars60dCap:   25,
				Dollars30dCap:   16,
				Dollars60dScale: 6,
				Dollars30dScale: 4,
				Bump3059d10k:    4,
			},
			ConcentrationCap: 20,
			DuplicatesBase:   5,
			DuplicatesStep:   3,
			DuplicatesCap:    15,
			CustomerFreqBase: 4,
			CustomerFreqCap:  12,
			TrendUpCap:       10,
			TrendDownCap:     5,
		},
		Run: RunConfig{
			TargetPath: "credit_requests",
			BatchSize:  300,
			DryRun:     true,
		},
		Store: StoreConfig{
			Driver:     "sqlite",
			SQLitePath: "./cic.db",
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 1000,
		},
		Bus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30,
			WriteTimeout: 30,
		},
	}
}

// LoadConfig builds the configuration from defaults plus environment
// overrides and validates it.
func LoadConfig() (*Config, error) {
	cfg := DefaultConfig()
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	s := &c.Scoring

	s.Windows.DuplicatesDays = envInt("ALERT_WINDOW_DUPLICATES_DAYS", s.Windows.DuplicatesDays)
	s.Windows.ConcentrationDays = envInt("ALERT_WINDOW_CONCENTRATION_DAYS", s.Windows.ConcentrationDays)
	s.Windows.TrendDays = envInt("ALERT_WINDOW_TREND_DAYS", s.Windows.TrendDays)

	s.Thresholds.High = envInt("ALERT_THRESHOLD_HIGH", s.Thresholds.High)
	s.Thresholds.Medium = envInt("ALERT_THRESHOLD_MEDIUM", s.Thresholds.Medium)

	s.Tiers[0].Min = envFloat("ALERT_TIER3_MIN", s.Tiers[0].Min)
	s.Tiers[0].Score = envFloat("ALERT_TIER3_SCORE", s.Tiers[0].Score)
	s.Tiers[1].Min = envFloat("ALERT_TIER2_MIN", s.Tiers[1].Min)
	s.Tiers[1].Score = envFloat("ALERT_TIER2_SCORE", s.Tiers[1].Score)
	s.Tiers[2].Min = envFloat("ALERT_TIER1_MIN", s.Tiers[2].Min)
	s.Tiers[2].Score = envFloat("ALERT_TIER1_SCORE", s.Tiers[2].Score)

	s.Aging.Pending60d = envFloat("ALERT_AGING_PENDING_60D", s.Aging.Pending60d)
	s.Aging.Pending3059d = envFloat("ALERT_AGING_PENDING_30_59D", s.Aging.Pending3059d)
	s.Aging.Dollars60dCap = envFloat("ALERT_AGING_60D_CAP", s.Aging.Dollars60dCap)
	s.Aging.Dollars30dCap = envFloat("ALERT_AGING_30D_CAP", s.Aging.Dollars30dCap)
	s.Aging.Dollars60dScale = envFloat("ALERT_AGING_60D_SCALE", s.Aging.Dollars60dScale)
	s.Aging.Dollars30dScale = envFloat("ALERT_AGING_30D_SCALE", s.Aging.Dollars30dScale)
	s.Aging.Bump3059d10k = envFloat("ALERT_AGING_30_59D_10K_BUMP", s.Aging.Bump3059d10k)

	s.ConcentrationCap = envFloat("ALERT_CONCENTRATION_CAP", s.ConcentrationCap)
	s.DuplicatesBase = envFloat("ALERT_DUPLICATES_BASE", s.DuplicatesBase)
	s.DuplicatesStep = envFloat("ALERT_DUPLICATES_STEP", s.DuplicatesStep)
	s.DuplicatesCap = envFloat("ALERT_DUPLICATES_CAP", s.DuplicatesCap)
	s.CustomerFreqBase = envFloat("ALERT_CUSTOMER_FREQ_BASE", s.CustomerFreqBase)
	s.CustomerFreqCap = envFloat("ALERT_CUSTOMER_FREQ_CAP", s.CustomerFreqCap)
	s.TrendUpCap = envFloat("ALERT_TREND_UP_CAP", s.TrendUpCap)
	s.TrendDownCap = envFloat("ALERT_TREND_DOWN_CAP", s.TrendDownCap)

	c.Run.TargetPath = envStr("ALERT_TARGET_PATH", c.Run.TargetPath)
	c.Run.BatchSize = envInt("ALERT_BATCH_SIZE", c.Run.BatchSize)
	c.Run.DryRun = envBool("ALERT_DRY_RUN", c.Run.DryRun)

	c.Store.Driver = envStr("CIC_STORE_DRIVER", c.Store.Driver)
	c.Store.RTDBBaseURL = envStr("CIC_RTDB_URL", c.Store.RTDBBaseURL)
	c.Store.RTDBAuthToken = envStr("CIC_RTDB_AUTH", c.Store.RTDBAuthToken)
	c.Store.SQLitePath = envStr("CIC_SQLITE_PATH", c.Store.SQLitePath)
	c.Store.PostgresHost = envStr("CIC_POSTGRES_HOST", c.Store.PostgresHost)
	c.Store.PostgresPort = envInt("CIC_POSTGRES_PORT", c.Store.PostgresPort)
	c.Store.PostgresUser = envStr("CIC_POSTGRES_USER", c.Store.PostgresUser)
	c.Store.PostgresPassword = envStr("CIC_POSTGRES_PASSWORD", c.Store.PostgresPassword)
	c.Store.PostgresDB = envStr("CIC_POSTGRES_DB", c.Store.PostgresDB)
	c.Store.PostgresSSLMode = envStr("CIC_POSTGRES_SSLMODE", c.Store.PostgresSSLMode)

	c.Cache.Type = envStr("CIC_CACHE_TYPE", c.Cache.Type)
	c.Cache.LocalMaxSize = envInt("CIC_CACHE_MAX_SIZE", c.Cache.LocalMaxSize)
	c.Cache.RedisAddr = envStr("CIC_REDIS_ADDR", c.Cache.RedisAddr)
	c.Cache.RedisPassword = envStr("CIC_REDIS_PASSWORD", c.Cache.RedisPassword)
	c.Cache.RedisDB = envInt("CIC_REDIS_DB", c.Cache.RedisDB)

	c.Bus.Type = envStr("CIC_BUS_TYPE", c.Bus.Type)
	c.Bus.ChannelBufferSize = envInt("CIC_BUS_BUFFER", c.Bus.ChannelBufferSize)
	c.Bus.NATSUrl = envStr("CIC_NATS_URL", c.Bus.NATSUrl)
	c.Bus.NATSToken = envStr("CIC_NATS_TOKEN", c.Bus.NATSToken)

	c.Server.Host = envStr("CIC_HTTP_HOST", c.Server.Host)
	c.Server.Port = envInt("CIC_HTTP_PORT", c.Server.Port)
}

// Validate enforces cross-field invariants. Scoring code assumes these hold
// and does not re-check them per record.
func (c *Config) Validate() error {
	if c.Scoring.Thresholds.High < c.Scoring.Thresholds.Medium {
		return fmt.Errorf("threshold high (%d) must be >= medium (%d)",
			c.Scoring.Thresholds.High, c.Scoring.Thresholds.Medium)
	}
	if len(c.Scoring.Tiers) == 0 {
		return fmt.Errorf("at least one amount tier is required")
	}
	if c.Run.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive, got %d", c.Run.BatchSize)
	}

	// Keep tiers ordered highest minimum first; overrides may reorder them.
	sort.Slice(c.Scoring.Tiers, func(i, j int) bool {
		return c.Scoring.Tiers[i].Min > c.Scoring.Tiers[j].Min
	})
	return nil
}

func envInt(name string, def int) int {
	v := os.Getenv(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envFloat(name string, def float64) float64 {
	v := os.Getenv(name)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func envBool(name string, def bool) bool {
	v := os.Getenv(name)
	if v == "" {
		return def
	}
	switch strings.ToLower(v) {
	case "1", "true", "yes", "y":
		return true
	default:
		return false
	}
}

func envStr(name, def string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return def
}
