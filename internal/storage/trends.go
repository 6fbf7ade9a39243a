package storage

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/archwatch/sentinel/internal/storage/models"
)

// execer is satisfied by both *pgxpool.Pool and pgx.Tx, letting
// InsertDefinitionVersion run standalone (config loader, outside any
// transaction) or as part of a larger transactional operation.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// TrendRepo reads and writes the trends and trend_definition_versions
// tables.
type TrendRepo struct{ db *DB }

func NewTrendRepo(db *DB) *TrendRepo { return &TrendRepo{db: db} }

const trendSelectSQL = `
	SELECT id, name, description, definition, baseline_log_odds, current_log_odds,
	       decay_half_life_days, active, definition_hash, created_at, updated_at
	FROM trends`

func scanTrend(row rowScanner) (models.Trend, error) {
	var t models.Trend
	var defJSON []byte
	err := row.Scan(&t.ID, &t.Name, &t.Description, &defJSON, &t.BaselineLogOdds,
		&t.CurrentLogOdds, &t.DecayHalfLifeDays, &t.Active, &t.DefinitionHash,
		&t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Trend{}, ErrNotFound
	}
	if err != nil {
		return models.Trend{}, err
	}
	if err := json.Unmarshal(defJSON, &t.Definition); err != nil {
		return models.Trend{}, err
	}
	return t, nil
}

func (r *TrendRepo) Get(ctx context.Context, id uuid.UUID) (models.Trend, error) {
	return scanTrend(r.db.Pool.QueryRow(ctx, trendSelectSQL+` WHERE id = $1`, id))
}

func (r *TrendRepo) GetByName(ctx context.Context, name string) (models.Trend, error) {
	return scanTrend(r.db.Pool.QueryRow(ctx, trendSelectSQL+` WHERE name = $1`, name))
}

func (r *TrendRepo) ListActive(ctx context.Context) ([]models.Trend, error) {
	rows, err := r.db.Pool.Query(ctx, trendSelectSQL+` WHERE active ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Trend
	for rows.Next() {
		t, err := scanTrend(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// Upsert inserts a trend when no row with t.ID exists, and otherwise
// updates description, definition, decay half-life, active flag and
// definition hash in place on that row (callers resolve the ID by name
// first). baseline_log_odds and current_log_odds are only set on first
// insert — re-upserting a definition never resets
// accumulated evidence (spec.md §3 Trend: "current_log_odds: the live,
// continuously updated score").
func (r *TrendRepo) Upsert(ctx context.Context, t *models.Trend) (inserted bool, err error) {
	defJSON, err := json.Marshal(t.Definition)
	if err != nil {
		return false, err
	}
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	tag, err := r.db.Pool.Exec(ctx, `
		INSERT INTO trends
			(id, name, description, definition, baseline_log_odds, current_log_odds,
			 decay_half_life_days, active, definition_hash)
		VALUES ($1,$2,$3,$4,$5,$5,$6,$7,$8)
		ON CONFLICT (id) DO NOTHING`,
		t.ID, t.Name, t.Description, defJSON, t.BaselineLogOdds,
		t.DecayHalfLifeDays, t.Active, t.DefinitionHash)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}
	_, err = r.db.Pool.Exec(ctx, `
		UPDATE trends SET
			description = $2, definition = $3, decay_half_life_days = $4,
			active = $5, definition_hash = $6, updated_at = now()
		WHERE id = $1`, t.ID, t.Description, defJSON, t.DecayHalfLifeDays, t.Active, t.DefinitionHash)
	return false, err
}

// ApplyLogOddsDelta atomically increments current_log_odds, returning
// the new value. Running the update as a single SQL statement avoids a
// read-modify-write race between concurrent evidence applications on
// the same trend (spec.md §4.5 "atomic increment, never a
// read-modify-write in application code").
func (r *TrendRepo) ApplyLogOddsDelta(ctx context.Context, tx pgx.Tx, id uuid.UUID, delta, clampMin, clampMax float64) (newLogOdds float64, err error) {
	err = tx.QueryRow(ctx, `
		UPDATE trends
		SET current_log_odds = GREATEST($2, LEAST($3, current_log_odds + $4)),
		    updated_at = now()
		WHERE id = $1
		RETURNING current_log_odds`,
		id, clampMin, clampMax, delta).Scan(&newLogOdds)
	return newLogOdds, err
}

// SetLogOdds is used by the decay worker, which computes the new value
// from a row it already holds under FOR UPDATE (see LockForDecay).
func (r *TrendRepo) SetLogOdds(ctx context.Context, tx pgx.Tx, id uuid.UUID, logOdds float64) error {
	_, err := tx.Exec(ctx, `UPDATE trends SET current_log_odds = $2, updated_at = now() WHERE id = $1`, id, logOdds)
	return err
}

// LockForDecay row-locks a trend for the duration of the decay
// worker's read-compute-write cycle, serializing decay against
// concurrent evidence application on the same row (spec.md §4.5's
// decay worker: "acquires a row lock... to avoid racing the atomic
// evidence increment").
func (r *TrendRepo) LockForDecay(ctx context.Context, tx pgx.Tx, id uuid.UUID) (models.Trend, error) {
	return scanTrend(tx.QueryRow(ctx, trendSelectSQL+` WHERE id = $1 FOR UPDATE`, id))
}

func (r *TrendRepo) InsertDefinitionVersion(ctx context.Context, tx execer, v *models.TrendDefinitionVersion) error {
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	defJSON, err := json.Marshal(v.Definition)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO trend_definition_versions (id, trend_id, hash, definition, actor, context)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		v.ID, v.TrendID, v.Hash, defJSON, v.Actor, v.Context)
	return err
}

func (r *TrendRepo) ListDefinitionVersions(ctx context.Context, trendID uuid.UUID) ([]models.TrendDefinitionVersion, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT id, trend_id, hash, definition, actor, context, created_at
		FROM trend_definition_versions WHERE trend_id = $1 ORDER BY created_at ASC`, trendID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.TrendDefinitionVersion
	for rows.Next() {
		var v models.TrendDefinitionVersion
		var defJSON []byte
		if err := rows.Scan(&v.ID, &v.TrendID, &v.Hash, &defJSON, &v.Actor, &v.Context, &v.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(defJSON, &v.Definition); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// LatestDefinitionHash returns the hash recorded for the most recent
// version, used to decide whether a reloaded definition needs a new
// version row.
func (r *TrendRepo) LatestDefinitionHash(ctx context.Context, trendID uuid.UUID) (string, error) {
	var hash string
	err := r.db.Pool.QueryRow(ctx, `
		SELECT hash FROM trend_definition_versions
		WHERE trend_id = $1 ORDER BY created_at DESC LIMIT 1`, trendID).Scan(&hash)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	return hash, err
}
