// Package store provides the SQL-backed registry repository: the durable
// barcode assignment table the engine loads at startup, and the pending
// removal commands the operator surface writes for the service to pick up.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/prtline/sortation/core/model"
	"github.com/prtline/sortation/core/registry"
)

// Postgres implements registry.Repository over a Postgres database.
type Postgres struct {
	db *sql.DB
}

// Open connects to the database and ensures the schema exists.
func Open(databaseURL string) (*Postgres, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open postgres database: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("verify postgres connection: %w", err)
	}
	p := &Postgres{db: db}
	if err := p.ensureSchema(); err != nil {
		if cerr := db.Close(); cerr != nil {
			return nil, fmt.Errorf("close db: %v (schema err: %w)", cerr, err)
		}
		return nil, err
	}
	return p, nil
}

func (p *Postgres) ensureSchema() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS carts (
			barcode TEXT PRIMARY KEY,
			destination INTEGER NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS removal_commands (
			id BIGSERIAL PRIMARY KEY,
			barcode TEXT NOT NULL,
			area INTEGER NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
	}
	for _, s := range stmts {
		if _, err := p.db.Exec(s); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// LoadAssignments returns the full barcode to destination table.
func (p *Postgres) LoadAssignments(ctx context.Context) (map[string]model.Destination, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT barcode, destination FROM carts`)
	if err != nil {
		return nil, fmt.Errorf("load assignments: %w", err)
	}
	defer func() { _ = rows.Close() }()
	res := make(map[string]model.Destination)
	for rows.Next() {
		var barcode string
		var dest int
		if err := rows.Scan(&barcode, &dest); err != nil {
			return nil, fmt.Errorf("load assignments: scan row: %w", err)
		}
		res[barcode] = model.Destination(dest)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load assignments: row iteration: %w", err)
	}
	return res, nil
}

// SaveAssignment upserts the destination for a barcode.
func (p *Postgres) SaveAssignment(ctx context.Context, barcode string, dest model.Destination) error {
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO carts (barcode, destination, updated_at) VALUES ($1, $2, now())
		 ON CONFLICT (barcode) DO UPDATE SET destination = EXCLUDED.destination, updated_at = now()`,
		barcode, int(dest))
	if err != nil {
		return fmt.Errorf("save assignment: %w", err)
	}
	return nil
}

// SaveRemoval queues a removal command for the service to process.
func (p *Postgres) SaveRemoval(ctx context.Context, barcode string, area int) error {
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO removal_commands (barcode, area) VALUES ($1, $2)`, barcode, area)
	if err != nil {
		return fmt.Errorf("save removal: %w", err)
	}
	return nil
}

// PendingRemovals returns queued removal commands oldest first.
func (p *Postgres) PendingRemovals(ctx context.Context) ([]registry.Removal, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT id, barcode, area, created_at FROM removal_commands ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("pending removals: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var res []registry.Removal
	for rows.Next() {
		var r registry.Removal
		if err := rows.Scan(&r.ID, &r.Barcode, &r.Area, &r.At); err != nil {
			return nil, fmt.Errorf("pending removals: scan row: %w", err)
		}
		res = append(res, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pending removals: row iteration: %w", err)
	}
	return res, nil
}

// DeleteRemoval drops a processed removal command.
func (p *Postgres) DeleteRemoval(ctx context.Context, id int64) error {
	_, err := p.db.ExecContext(ctx, `DELETE FROM removal_commands WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete removal: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (p *Postgres) Close() error { return p.db.Close() }
