package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite" // SQLite driver

	"nameday/internal/nameday"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS nameday_dates (
	date TEXT PRIMARY KEY
);
CREATE TABLE IF NOT EXISTS nameday_names (
	date     TEXT    NOT NULL REFERENCES nameday_dates(date) ON DELETE CASCADE,
	position INTEGER NOT NULL,
	name     TEXT    NOT NULL,
	PRIMARY KEY (date, position)
);
CREATE INDEX IF NOT EXISTS idx_nameday_names_name ON nameday_names(name);
`

// SQLiteStore keeps the calendar in a SQLite database. Dates without names
// are stored too, so a round trip preserves them.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", fmt.Sprintf(
		"file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)",
		path,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite only supports one writer
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Name() string { return "sqlite" }

// Close releases the database.
func (s *SQLiteStore) Close() error { return s.db.Close() }

// Load reads every date with its names in stored order.
func (s *SQLiteStore) Load(ctx context.Context) (nameday.Calendar, error) {
	cal := nameday.Calendar{}

	rows, err := s.db.QueryContext(ctx, `SELECT date FROM nameday_dates`)
	if err != nil {
		return nil, fmt.Errorf("query dates: %w", err)
	}
	for rows.Next() {
		var date string
		if err := rows.Scan(&date); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan date: %w", err)
		}
		cal[date] = []string{}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	rows, err = s.db.QueryContext(ctx, `SELECT date, name FROM nameday_names ORDER BY date, position`)
	if err != nil {
		return nil, fmt.Errorf("query names: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var date, name string
		if err := rows.Scan(&date, &name); err != nil {
			return nil, fmt.Errorf("scan name: %w", err)
		}
		cal[date] = append(cal[date], name)
	}
	return cal, rows.Err()
}

// Save replaces the stored calendar in one transaction.
func (s *SQLiteStore) Save(ctx context.Context, cal nameday.Calendar) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM nameday_names`); err != nil {
		return fmt.Errorf("clear names: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM nameday_dates`); err != nil {
		return fmt.Errorf("clear dates: %w", err)
	}

	insertDate, err := tx.PrepareContext(ctx, `INSERT INTO nameday_dates (date) VALUES (?)`)
	if err != nil {
		return err
	}
	defer insertDate.Close()
	insertName, err := tx.PrepareContext(ctx, `INSERT INTO nameday_names (date, position, name) VALUES (?, ?, ?)`)
	if err != nil {
		return err
	}
	defer insertName.Close()

	for _, date := range cal.Keys() {
		if _, err := insertDate.ExecContext(ctx, date); err != nil {
			return fmt.Errorf("insert %s: %w", date, err)
		}
		for i, name := range cal[date] {
			if _, err := insertName.ExecContext(ctx, date, i, name); err != nil {
				return fmt.Errorf("insert %s/%s: %w", date, name, err)
			}
		}
	}
	return tx.Commit()
}
