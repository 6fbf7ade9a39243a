package vectorindex

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// IVFFlat queries a Postgres table with a pgvector ivfflat index using
// the `<=>` cosine-distance operator, for use once a table grows past
// the row-count threshold where Exact's O(n) scan stops being cheap
// (spec.md §4.1/§4.3: "above ~50k rows, prefer the database's ANN
// index over an in-process scan").
type IVFFlat struct {
	pool      *pgxpool.Pool
	table     string // "raw_items" or "events"
	idColumn  string
	vecColumn string
	where     string // optional extra predicate, e.g. "status != 'noise'"
}

func NewIVFFlat(pool *pgxpool.Pool, table, idColumn, vecColumn, where string) *IVFFlat {
	return &IVFFlat{pool: pool, table: table, idColumn: idColumn, vecColumn: vecColumn, where: where}
}

func (x *IVFFlat) Query(ctx context.Context, embedding []float32, limit int, minSimilarity float64) ([]Neighbor, error) {
	vec := pgvector.NewVector(embedding)

	query := fmt.Sprintf(`
		SELECT %s::text, 1 - (%s <=> $1) AS similarity
		FROM %s
		WHERE %s IS NOT NULL`, x.idColumn, x.vecColumn, x.table, x.vecColumn)
	if x.where != "" {
		query += " AND " + x.where
	}
	query += fmt.Sprintf(" ORDER BY %s <=> $1 LIMIT $2", x.vecColumn)

	rows, err := x.pool.Query(ctx, query, vec, limit)
	if err != nil {
		return nil, fmt.Errorf("vectorindex: ivfflat query: %w", err)
	}
	defer rows.Close()

	var out []Neighbor
	for rows.Next() {
		var n Neighbor
		if err := rows.Scan(&n.ID, &n.Similarity); err != nil {
			return nil, err
		}
		if n.Similarity >= minSimilarity {
			out = append(out, n)
		}
	}
	return out, rows.Err()
}

// Threshold selects between an Exact scan and the IVFFlat-backed index
// based on the candidate table's current row count, per the same
// spec.md rule IVFFlat documents.
func Threshold(rowCount, threshold int) bool {
	return rowCount >= threshold
}
