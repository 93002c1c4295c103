package database

import (
	"database/sql"
	"fmt"
	stdlog "log"

	"github.com/username/commissions/src/logger"
	_ "modernc.org/sqlite"
)

var DB *sql.DB

const createTableStatement = `
	CREATE TABLE IF NOT EXISTS partner_rates (
		partner_id TEXT PRIMARY KEY,
		rate REAL NOT NULL CHECK (rate >= 0 AND rate <= 1),
		label TEXT NOT NULL DEFAULT '',
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);
	`

// InitDB opens the database at databasePath into DB, exiting on failure.
func InitDB(databasePath string) {
	db, err := Open(databasePath)
	if err != nil {
		stdlog.Fatalf("failed to open database at %s: %v", databasePath, err)
	}
	DB = db
}

// Open opens a sqlite database and brings its schema up to date.
func Open(databasePath string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", databasePath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// sqlite allows one writer; serialise through a single connection.
	db.SetMaxOpenConns(1)

	logger.L.Info("Checking database migrations", "databasePath", databasePath)
	if err := migratePartnerRates(db); err != nil {
		db.Close()
		return nil, err
	}

	if _, err := db.Exec(createTableStatement); err != nil {
		logger.L.Error("failed to create tables", "error", err)
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}
	logger.L.Info("Database tables ensured/created.")
	return db, nil
}

// migratePartnerRates adds columns introduced after the first release to an
// existing partner_rates table.
func migratePartnerRates(db *sql.DB) error {
	var tableName string
	err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name='partner_rates'").Scan(&tableName)
	if err == sql.ErrNoRows {
		logger.L.Info("partner_rates table does not exist, no migration needed as table will be created.")
		return nil
	}
	if err != nil {
		logger.L.Error("Error checking for partner_rates table", "error", err)
		return fmt.Errorf("check partner_rates table: %w", err)
	}

	rows, err := db.Query("PRAGMA table_info(partner_rates)")
	if err != nil {
		logger.L.Error("Error querying table schema for partner_rates", "error", err)
		return fmt.Errorf("query partner_rates schema: %w", err)
	}
	defer rows.Close()

	columnExists := make(map[string]bool)
	for rows.Next() {
		var cid, pk int
		var name, dataType string
		var notnullVal int
		var dfltValue interface{}

		if err := rows.Scan(&cid, &name, &dataType, &notnullVal, &dfltValue, &pk); err != nil {
			logger.L.Error("Error scanning column info for partner_rates", "error", err)
			return fmt.Errorf("scan partner_rates schema: %w", err)
		}
		columnExists[name] = true
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate partner_rates schema: %w", err)
	}
	rows.Close()

	migrations := []struct {
		column string
		ddl    string
	}{
		{"label", "ALTER TABLE partner_rates ADD COLUMN label TEXT NOT NULL DEFAULT ''"},
		{"updated_at", "ALTER TABLE partner_rates ADD COLUMN updated_at TIMESTAMP"},
	}
	for _, m := range migrations {
		if columnExists[m.column] {
			continue
		}
		if _, err := db.Exec(m.ddl); err != nil {
			logger.L.Error("Error adding column to partner_rates", "column", m.column, "error", err)
			return fmt.Errorf("add column %s: %w", m.column, err)
		}
		logger.L.Info("Added column to partner_rates table", "column", m.column)
	}
	return nil
}
