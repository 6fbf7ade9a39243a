// Package config loads immutable settings once at startup and threads
// them through constructors. There is no process-wide mutable
// configuration value — every package that needs a setting receives it
// (or a narrow sub-struct of it) explicitly.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// Environment gates production-like enforcement (auth, strong secrets,
// pooled DB) per spec.md §6.
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvStaging     Environment = "staging"
	EnvProduction  Environment = "production"
)

// IsProductionLike matches spec.md's "staging|production" bucket.
func (e Environment) IsProductionLike() bool {
	return e == EnvStaging || e == EnvProduction
}

// Settings is the fully resolved, validated configuration snapshot.
// Callers never mutate it after Load returns.
type Settings struct {
	Env Environment

	DatabaseURL string
	RedisURL    string

	Server ServerSettings
	LLM    LLMSettings
	Dedup  DedupSettings
	Vector VectorSettings
	Trend  TrendSettings
	Queue  QueueSettings
	Calibration CalibrationSettings

	TrendDefinitionsPath string
	SourceDefinitionsPath string
}

type ServerSettings struct {
	Addr            string
	GracefulTimeout time.Duration
	LogLevel        string
}

// LLMSettings covers the two-tier policy layer's budget caps, pricing
// file, and retry/failover tuning — spec.md §4.4.
type LLMSettings struct {
	Tier1MaxDailyCalls  int
	Tier1MaxDailyTokens int64
	Tier2MaxDailyCalls  int
	Tier2MaxDailyTokens int64
	MaxDailyCostUSD     float64

	Tier1RelevanceThreshold int

	PricingFilePath string

	PrimaryProvider   string
	PrimaryModel      string
	SecondaryProvider string
	SecondaryModel    string

	RequestTimeout    time.Duration
	MaxRetries        int
	RetryBaseInterval time.Duration
	RetryMaxInterval  time.Duration

	MaxInputTokens int
}

type DedupSettings struct {
	RecencyWindow           time.Duration
	EmbeddingSimilarityMin  float64
	TrackingParams          []string
	StrictQueryPreservation bool
}

type VectorSettings struct {
	Dimensions        int
	IVFFlatLists      int
	IVFFlatThreshold   int // row-count threshold for IVFFlat over exact; loaded but not read by any caller
	ClusterSimilarityMin float64
	ClusterWindow        time.Duration
}

type TrendSettings struct {
	MinProbability    float64
	MaxProbability    float64
	MaxDeltaPerEvent   float64
	DefaultHalfLifeDays float64
	NoveltyFloor       float64
	NoveltyCeiling     float64
	NoveltyHalfLife    float64
}

type QueueSettings struct {
	DefaultRoute    string
	IngestionRoute  string
	ProcessingRoute string
	StaleItemTimeout time.Duration
}

// CalibrationSettings covers the drift-alert thresholds and webhook
// delivery tuning for spec.md §4.7.
type CalibrationSettings struct {
	BucketCount int

	BrierWarnThreshold     float64
	BrierCriticalThreshold float64
	BucketErrorWarnThreshold     float64
	BucketErrorCriticalThreshold float64
	MinSampleSize          int

	WebhookURL        string
	WebhookMaxRetries int
	WebhookBaseInterval time.Duration
	WebhookMaxInterval  time.Duration
}

// Load resolves settings from (in increasing priority): struct defaults,
// an optional YAML file, then environment variables prefixed
// SENTINEL_. Any SENTINEL_* value may instead be supplied as
// SENTINEL_*_FILE pointing at a file (secret-file convention from
// spec.md §6); file contents win over the plain env var when both are
// set.
func Load(configPath string) (*Settings, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaults(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("config: load defaults: %w", err)
	}

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("config: load file %s: %w", configPath, err)
			}
		}
	}

	if err := k.Load(env.ProviderWithValue("SENTINEL_", ".", resolveEnv), nil); err != nil {
		return nil, fmt.Errorf("config: load env: %w", err)
	}

	var s rawSettings
	if err := k.UnmarshalWithConf("", &s, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	out := s.resolve()
	if err := out.validate(); err != nil {
		return nil, err
	}
	return out, nil
}

// resolveEnv implements the `<VAR>_FILE` secret-mount convention: if
// SENTINEL_FOO_FILE is set, its file contents are used as the value of
// SENTINEL_FOO instead of (or in place of) a plain SENTINEL_FOO env var.
func resolveEnv(key, value string) (string, interface{}) {
	k := strings.ToLower(strings.TrimPrefix(key, "SENTINEL_"))
	k = strings.ReplaceAll(k, "_", ".")

	if strings.HasSuffix(key, "_FILE") {
		base := strings.TrimSuffix(key, "_FILE")
		baseKey := strings.ToLower(strings.TrimPrefix(base, "SENTINEL_"))
		baseKey = strings.ReplaceAll(baseKey, "_", ".")
		data, err := os.ReadFile(value)
		if err != nil {
			return baseKey, nil
		}
		return baseKey, strings.TrimSpace(string(data))
	}
	if path := os.Getenv(key + "_FILE"); path != "" {
		if data, err := os.ReadFile(path); err == nil {
			return k, strings.TrimSpace(string(data))
		}
	}
	return k, value
}

func (s *Settings) validate() error {
	if s.Env == "" {
		return fmt.Errorf("config: ENV must be set")
	}
	if s.Env.IsProductionLike() {
		if s.DatabaseURL == "" {
			return fmt.Errorf("config: DATABASE_URL required in %s", s.Env)
		}
		if s.LLM.PricingFilePath == "" {
			return fmt.Errorf("config: pricing file required in %s", s.Env)
		}
	}
	if s.Trend.MinProbability <= 0 || s.Trend.MaxProbability >= 1 {
		return fmt.Errorf("config: trend probability bounds out of range")
	}
	return nil
}
