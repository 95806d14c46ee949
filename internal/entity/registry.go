package entity

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/nerrad567/habsync/internal/classify"
)

// RegistryEntry is one row of the entity registry.
type RegistryEntry struct {
	UniqueID  string            `json:"unique_id"`
	ItemID    string            `json:"item_id"`
	Category  classify.Category `json:"category"`
	Name      string            `json:"name"`
	FirstSeen time.Time         `json:"first_seen"`
	LastSeen  time.Time         `json:"last_seen"`
	Present   bool              `json:"present"`
	LastState string            `json:"last_state,omitempty"`
}

// Registry records every entity ever surfaced.
type Registry interface {
	// Sync upserts entities as present at time at and marks every other
	// known entity absent.
	Sync(ctx context.Context, entities []Entity, at time.Time) error

	// SaveState stores the last published state payload of an entity.
	SaveState(ctx context.Context, uniqueID string, payload []byte) error

	// LastStates returns the stored payloads keyed by unique ID.
	LastStates(ctx context.Context) (map[string]string, error)

	// List returns registry entries, optionally limited to one category.
	List(ctx context.Context, cat classify.Category) ([]RegistryEntry, error)
}

// SQLiteRegistry implements Registry using SQLite.
type SQLiteRegistry struct {
	db *sql.DB
}

// NewSQLiteRegistry creates a registry over an open, migrated database.
func NewSQLiteRegistry(db *sql.DB) *SQLiteRegistry {
	return &SQLiteRegistry{db: db}
}

// Sync upserts entities and flips present for the rest, in one transaction.
func (r *SQLiteRegistry) Sync(ctx context.Context, entities []Entity, at time.Time) error {
	ts := at.UTC().Format(time.RFC3339)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning registry sync: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.ExecContext(ctx, `UPDATE entities SET present = 0`); err != nil {
		return fmt.Errorf("clearing present flags: %w", err)
	}

	const upsert = `INSERT INTO entities (unique_id, item_id, category, name, first_seen, last_seen, present)
		VALUES (?, ?, ?, ?, ?, ?, 1)
		ON CONFLICT (unique_id) DO UPDATE SET
			item_id = excluded.item_id,
			category = excluded.category,
			name = excluded.name,
			last_seen = excluded.last_seen,
			present = 1`
	stmt, err := tx.PrepareContext(ctx, upsert)
	if err != nil {
		return fmt.Errorf("preparing registry upsert: %w", err)
	}
	defer stmt.Close()

	for _, e := range entities {
		if _, err := stmt.ExecContext(ctx, e.UniqueID, e.ItemID, string(e.Category), e.Name, ts, ts); err != nil {
			return fmt.Errorf("upserting entity %s: %w", e.UniqueID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing registry sync: %w", err)
	}
	return nil
}

// SaveState stores the last published payload of an entity.
func (r *SQLiteRegistry) SaveState(ctx context.Context, uniqueID string, payload []byte) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE entities SET last_state = ? WHERE unique_id = ?`, string(payload), uniqueID)
	if err != nil {
		return fmt.Errorf("saving state for %s: %w", uniqueID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// LastStates returns stored payloads for present entities.
func (r *SQLiteRegistry) LastStates(ctx context.Context) (map[string]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT unique_id, last_state FROM entities WHERE present = 1 AND last_state IS NOT NULL`)
	if err != nil {
		return nil, fmt.Errorf("querying last states: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var id, state string
		if err := rows.Scan(&id, &state); err != nil {
			return nil, fmt.Errorf("scanning last state: %w", err)
		}
		out[id] = state
	}
	return out, rows.Err()
}

// List returns entries ordered by category then item ID. An empty cat
// returns every entry.
func (r *SQLiteRegistry) List(ctx context.Context, cat classify.Category) ([]RegistryEntry, error) {
	query := `SELECT unique_id, item_id, category, name, first_seen, last_seen, present, last_state
		FROM entities`
	var args []any
	if cat != "" {
		query += ` WHERE category = ?`
		args = append(args, string(cat))
	}
	query += ` ORDER BY category, item_id`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying registry: %w", err)
	}
	defer rows.Close()

	var out []RegistryEntry
	for rows.Next() {
		var (
			e               RegistryEntry
			category, first string
			last            string
			present         int
			lastState       sql.NullString
		)
		if err := rows.Scan(&e.UniqueID, &e.ItemID, &category, &e.Name, &first, &last, &present, &lastState); err != nil {
			return nil, fmt.Errorf("scanning registry entry: %w", err)
		}
		e.Category = classify.Category(category)
		e.FirstSeen, _ = time.Parse(time.RFC3339, first) //nolint:errcheck // written by Sync
		e.LastSeen, _ = time.Parse(time.RFC3339, last)   //nolint:errcheck // written by Sync
		e.Present = present == 1
		e.LastState = lastState.String
		out = append(out, e)
	}
	return out, rows.Err()
}
