package prize

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresTable keeps the prize wheel in the prize_entries table.
type PostgresTable struct {
	db *pgxpool.Pool
}

// NewPostgresTable builds a Postgres prize table.
func NewPostgresTable(db *pgxpool.Pool) *PostgresTable {
	return &PostgresTable{db: db}
}

func (t *PostgresTable) List(ctx context.Context) ([]Entry, error) {
	rows, err := t.db.Query(ctx, `SELECT id, name, kind, value, weight, position, image_url, color, updated_at
        FROM prize_entries ORDER BY position, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e    Entry
			kind string
		)
		if err := rows.Scan(&e.ID, &e.Name, &kind, &e.Value, &e.Weight, &e.Position, &e.ImageURL, &e.Color, &e.UpdatedAt); err != nil {
			return nil, err
		}
		e.Kind = Kind(kind)
		e.UpdatedAt = e.UpdatedAt.UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}

func (t *PostgresTable) Upsert(ctx context.Context, e Entry) (Entry, error) {
	_, err := t.db.Exec(ctx, `INSERT INTO prize_entries (id, name, kind, value, weight, position, image_url, color, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
        ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, kind = EXCLUDED.kind, value = EXCLUDED.value,
            weight = EXCLUDED.weight, position = EXCLUDED.position, image_url = EXCLUDED.image_url,
            color = EXCLUDED.color, updated_at = EXCLUDED.updated_at`,
		e.ID, e.Name, string(e.Kind), e.Value, e.Weight, e.Position, e.ImageURL, e.Color, e.UpdatedAt)
	if err != nil {
		return Entry{}, err
	}
	return e, nil
}

func (t *PostgresTable) Delete(ctx context.Context, id string) error {
	tag, err := t.db.Exec(ctx, `DELETE FROM prize_entries WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrPrizeNotFound
	}
	return nil
}
