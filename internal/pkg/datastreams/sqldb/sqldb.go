// Package sqldb records snapshot properties to a SQL database. SQLite,
// MySQL and PostgreSQL are supported.
package sqldb

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/ohowland/interconnect/internal/pkg/report"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Config selects the driver and data source.
type Config struct {
	Driver string `json:"Driver"` // sqlite, mysql or postgres
	DSN    string `json:"DSN"`
}

// Recorder implements datastreams.Recorder.
type Recorder struct {
	db     *sql.DB
	driver string
	insert string
}

// New opens the database and creates the tables.
func New(ctx context.Context, cfg Config) (*Recorder, error) {
	switch cfg.Driver {
	case "sqlite", "mysql", "postgres":
	default:
		return nil, fmt.Errorf("sqldb: driver %q is not sqlite, mysql or postgres", cfg.Driver)
	}
	db, err := sql.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("sqldb: open: %w", err)
	}
	if cfg.Driver == "sqlite" {
		db.SetMaxOpenConns(1)
	}
	if err := initDBTables(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqldb: init: %w", err)
	}
	return &Recorder{db: db, driver: cfg.Driver, insert: insertStatement(cfg.Driver)}, nil
}

// DB returns the underlying database handle.
func (r *Recorder) DB() *sql.DB { return r.db }

const createSnapshots = `CREATE TABLE IF NOT EXISTS snapshots (
	time BIGINT NOT NULL,
	pid VARCHAR(36) NOT NULL,
	kind VARCHAR(32) NOT NULL,
	name VARCHAR(128) NOT NULL,
	property VARCHAR(64) NOT NULL,
	value DOUBLE PRECISION NOT NULL,
	unit VARCHAR(16) NOT NULL,
	text VARCHAR(64) NOT NULL
)`

func initDBTables(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, createSnapshots)
	return err
}

func insertStatement(driver string) string {
	const columns = 8
	marks := make([]string, columns)
	for i := range marks {
		if driver == "postgres" {
			marks[i] = fmt.Sprintf("$%d", i+1)
		} else {
			marks[i] = "?"
		}
	}
	return `INSERT INTO snapshots (time, pid, kind, name, property, value, unit, text) VALUES (` +
		strings.Join(marks, ", ") + `)`
}

// Record writes one row per property in a single transaction.
func (r *Recorder) Record(ctx context.Context, f report.Frame) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, r.insert)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, s := range f.Snapshots {
		for _, p := range s.Properties {
			_, err := stmt.ExecContext(ctx, int64(s.Time), s.PID.String(), s.Kind, s.Name, p.Name, p.Value, p.Unit, p.Text)
			if err != nil {
				return fmt.Errorf("sqldb: insert %s %s %s: %w", s.Kind, s.Name, p.Name, err)
			}
		}
	}
	return tx.Commit()
}

// Close closes the database.
func (r *Recorder) Close() error {
	return r.db.Close()
}
