package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"os"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/archwatch/sentinel/internal/storage/models"
)

// DefinitionLoader reads trend hypothesis definitions from YAML on disk
// and reconciles them against the trends table, recording a new
// trend_definition_versions row only when the canonicalized definition
// actually changed (spec.md §3 Trend: "definition_hash: canonical hash
// of the definition, used to detect drift between the running config
// and the row that produced a given evidence entry").
type DefinitionLoader struct {
	db     *DB
	trends *TrendRepo
	log    zerolog.Logger
}

func NewDefinitionLoader(db *DB, trends *TrendRepo, log zerolog.Logger) *DefinitionLoader {
	return &DefinitionLoader{db: db, trends: trends, log: log.With().Str("component", "definitions").Logger()}
}

// trendDefinitionsFile is the on-disk shape: a flat list under "trends".
type trendDefinitionsFile struct {
	Trends []models.TrendDefinition `yaml:"trends"`
}

// CanonicalHash produces a stable hash of a TrendDefinition, order
// independent of map iteration (json.Marshal sorts map keys) and
// independent of YAML formatting.
func CanonicalHash(def models.TrendDefinition) (string, error) {
	b, err := json.Marshal(def)
	if err != nil {
		return "", fmt.Errorf("definitions: canonicalize: %w", err)
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

// LoadAndSync reads the YAML file at path, upserts every definition as
// a Trend row (by name), and appends a trend_definition_versions row
// whenever the computed hash differs from the latest recorded one.
func (l *DefinitionLoader) LoadAndSync(ctx context.Context, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("definitions: read %s: %w", path, err)
	}

	var file trendDefinitionsFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return fmt.Errorf("definitions: parse %s: %w", path, err)
	}

	for _, def := range file.Trends {
		if err := l.syncOne(ctx, def); err != nil {
			return fmt.Errorf("definitions: sync %q: %w", def.ID, err)
		}
	}
	return nil
}

func (l *DefinitionLoader) syncOne(ctx context.Context, def models.TrendDefinition) error {
	hash, err := CanonicalHash(def)
	if err != nil {
		return err
	}

	existing, err := l.trends.GetByName(ctx, def.Name)
	trend := models.Trend{
		Name:              def.Name,
		Description:       def.Description,
		Definition:        def,
		DecayHalfLifeDays: def.DecayHalfLifeDays,
		Active:            true,
		DefinitionHash:    hash,
	}
	if err == nil {
		trend.ID = existing.ID
		trend.BaselineLogOdds = existing.BaselineLogOdds
		trend.CurrentLogOdds = existing.CurrentLogOdds
	} else if err == ErrNotFound {
		lo := logOdds(def.BaselineProbability)
		trend.BaselineLogOdds = lo
		trend.CurrentLogOdds = lo
	} else {
		return err
	}

	inserted, err := l.trends.Upsert(ctx, &trend)
	if err != nil {
		return err
	}

	if inserted {
		l.log.Info().Str("trend", trend.Name).Str("hash", hash).Msg("trend definition inserted")
		return l.trends.InsertDefinitionVersion(ctx, l.db.Pool, &models.TrendDefinitionVersion{
			TrendID:    trend.ID,
			Hash:       hash,
			Definition: def,
			Actor:      "config-loader",
			Context:    "initial load",
		})
	}

	latestHash, err := l.trends.LatestDefinitionHash(ctx, trend.ID)
	if err != nil {
		return err
	}
	if latestHash == hash {
		return nil
	}

	l.log.Info().Str("trend", trend.Name).Str("old_hash", latestHash).Str("new_hash", hash).
		Msg("trend definition changed, recording new version")
	return l.trends.InsertDefinitionVersion(ctx, l.db.Pool, &models.TrendDefinitionVersion{
		TrendID:    trend.ID,
		Hash:       hash,
		Definition: def,
		Actor:      "config-loader",
		Context:    "definition reload",
	})
}

// SourceDefinitionLoader syncs the sources table from a YAML roster on
// disk, the config counterpart to DefinitionLoader for trends.
type SourceDefinitionLoader struct {
	sources *SourceRepo
	log     zerolog.Logger
}

func NewSourceDefinitionLoader(sources *SourceRepo, log zerolog.Logger) *SourceDefinitionLoader {
	return &SourceDefinitionLoader{sources: sources, log: log.With().Str("component", "source_definitions").Logger()}
}

type sourceDefinitionsFile struct {
	Sources []models.Source `yaml:"sources"`
}

func (l *SourceDefinitionLoader) LoadAndSync(ctx context.Context, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("source_definitions: read %s: %w", path, err)
	}

	var file sourceDefinitionsFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return fmt.Errorf("source_definitions: parse %s: %w", path, err)
	}

	for i := range file.Sources {
		s := file.Sources[i]
		inserted, err := l.sources.UpsertByName(ctx, &s)
		if err != nil {
			return fmt.Errorf("source_definitions: sync %q: %w", s.Name, err)
		}
		if inserted {
			l.log.Info().Str("source", s.Name).Msg("source registered")
		}
	}
	return nil
}

// logOdds converts a probability in (0,1) to its log-odds
// representation, ln(p/(1-p)) — the same transform the trend engine
// uses everywhere (spec.md §4.5).
func logOdds(p float64) float64 {
	if p <= 0 {
		p = 0.0001
	}
	if p >= 1 {
		p = 0.9999
	}
	return math.Log(p / (1 - p))
}
