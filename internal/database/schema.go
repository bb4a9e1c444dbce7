// internal/database/schema.go
// Database schema and migration logic for wiresum
package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const Schema = `
-- Entries table
CREATE TABLE IF NOT EXISTS entries (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    external_id TEXT UNIQUE NOT NULL,
    feed_name TEXT,
    title TEXT,
    url TEXT,
    content TEXT,
    author TEXT,
    published_at TEXT,
    fetched_at TEXT NOT NULL,
    enriched_at TEXT,
    processed_at TEXT,
    interest TEXT,
    is_signal INTEGER,
    reasoning TEXT,
    read_at TEXT
);

-- Config table
CREATE TABLE IF NOT EXISTS config (
    key TEXT PRIMARY KEY,
    value TEXT
);

-- Interests table
CREATE TABLE IF NOT EXISTS interests (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    key TEXT UNIQUE NOT NULL,
    label TEXT NOT NULL,
    description TEXT
);`

const Indexes = `
CREATE INDEX IF NOT EXISTS idx_entries_processed ON entries(processed_at);
CREATE INDEX IF NOT EXISTS idx_entries_interest ON entries(interest);
CREATE INDEX IF NOT EXISTS idx_entries_signal ON entries(is_signal);
CREATE INDEX IF NOT EXISTS idx_entries_published ON entries(published_at DESC);
CREATE INDEX IF NOT EXISTS idx_entries_fetched ON entries(fetched_at, id);`

// DefaultModel is the classification model seeded on first initialization.
const DefaultModel = "llama-3.3-70b-versatile"

// DB represents our database connection and operations
type DB struct {
	*sql.DB
	now func() time.Time
}

// Configuration for the database
type Config struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// DefaultConfig returns the default database configuration
func DefaultConfig() Config {
	return Config{
		MaxOpenConns:    25,
		MaxIdleConns:    10,
		ConnMaxLifetime: time.Hour,
		ConnMaxIdleTime: 5 * time.Minute,
	}
}

// Interest seeds inserted when the interests table is created empty.
var defaultInterests = []Interest{
	{Key: "ai", Label: "AI", Description: strPtr("New AI models, research, techniques, and tools. How companies are applying AI. LLM developments.")},
	{Key: "dev", Label: "Dev", Description: strPtr("Developer tools, programming languages, workflows, and engineering practices.")},
	{Key: "startups", Label: "Startups", Description: strPtr("Startup funding, launches, founder stories, and market dynamics.")},
	{Key: "cx", Label: "CX Tech", Description: strPtr("Customer support and experience technology. Relevant to Ada's domain.")},
	{Key: "apple", Label: "Apple", Description: strPtr("Apple product rumors and announcements. The indie developer ecosystem around iOS/macOS. Updates to Apple's first-party apps and their new features. Not general Apple commentary or stock news.")},
	{Key: "apps", Label: "Apps", Description: strPtr("Productivity apps and tools that improve workflows. Not OS-level, not dev tools.")},
}

// NewDB creates a new database connection with optimized settings
func NewDB(dbPath string, cfg Config) (*DB, error) {
	dsn := fmt.Sprintf("%s?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=ON&_synchronous=NORMAL",
		dbPath)

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	// Every pooled connection to :memory: is a separate database.
	if dbPath == ":memory:" {
		cfg.MaxOpenConns = 1
		cfg.MaxIdleConns = 1
		cfg.ConnMaxLifetime = 0
		cfg.ConnMaxIdleTime = 0
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("error connecting to database: %w", err)
	}

	d := &DB{DB: db, now: time.Now}
	if err := d.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("error creating schema: %w", err)
	}

	return d, nil
}

// SetClock replaces the time source used for stored timestamps.
func (db *DB) SetClock(now func() time.Time) {
	db.now = now
}

func (db *DB) timestamp() string {
	return formatTime(db.now())
}

func (db *DB) createSchema() error {
	if _, err := db.Exec(`
        PRAGMA journal_mode=WAL;
        PRAGMA synchronous=NORMAL;
        PRAGMA cache_size=10000;
        PRAGMA temp_store=MEMORY;
    `); err != nil {
		return fmt.Errorf("error setting pragmas: %w", err)
	}

	// Legacy layouts are renamed before CREATE TABLE IF NOT EXISTS runs,
	// otherwise a fresh interests table would shadow the old topics table.
	if err := db.renameLegacyTables(); err != nil {
		return fmt.Errorf("error migrating legacy tables: %w", err)
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("error starting transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(Schema); err != nil {
		return fmt.Errorf("error executing schema: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("error committing schema: %w", err)
	}

	if err := db.performMigrations(); err != nil {
		return fmt.Errorf("error performing migrations: %w", err)
	}

	if _, err := db.Exec(Indexes); err != nil {
		return fmt.Errorf("error creating indexes: %w", err)
	}

	if err := db.insertDefaults(); err != nil {
		return fmt.Errorf("error inserting defaults: %w", err)
	}

	return nil
}

func (db *DB) renameLegacyTables() error {
	hasTopics, err := tableExists(db.DB, "topics")
	if err != nil {
		return err
	}
	hasInterests, err := tableExists(db.DB, "interests")
	if err != nil {
		return err
	}
	if hasTopics && !hasInterests {
		if _, err := db.Exec("ALTER TABLE topics RENAME TO interests"); err != nil {
			return fmt.Errorf("error renaming topics table: %w", err)
		}
	}
	return nil
}

func (db *DB) performMigrations() error {
	renames := []struct {
		table, from, to string
	}{
		{"entries", "topic", "interest"},
		{"entries", "feedbin_id", "external_id"},
		{"interests", "name", "label"},
	}

	for _, r := range renames {
		hasOld, err := columnExists(db.DB, r.table, r.from)
		if err != nil {
			return fmt.Errorf("error checking column %s.%s: %w", r.table, r.from, err)
		}
		if !hasOld {
			continue
		}
		hasNew, err := columnExists(db.DB, r.table, r.to)
		if err != nil {
			return fmt.Errorf("error checking column %s.%s: %w", r.table, r.to, err)
		}
		if hasNew {
			continue
		}
		if _, err := db.Exec(fmt.Sprintf("ALTER TABLE %s RENAME COLUMN %s TO %s", r.table, r.from, r.to)); err != nil {
			return fmt.Errorf("error renaming column %s.%s: %w", r.table, r.from, err)
		}
	}

	columnUpdates := []struct {
		table, column, definition string
	}{
		{"entries", "read_at", "TEXT"},
		{"entries", "enriched_at", "TEXT"},
		{"interests", "description", "TEXT"},
	}

	for _, col := range columnUpdates {
		exists, err := columnExists(db.DB, col.table, col.column)
		if err != nil {
			return fmt.Errorf("error checking column %s.%s: %w", col.table, col.column, err)
		}
		if !exists {
			_, err := db.Exec(fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s",
				col.table, col.column, col.definition))
			if err != nil {
				return fmt.Errorf("error adding column %s.%s: %w", col.table, col.column, err)
			}
		}
	}

	return nil
}

func tableExists(db *sql.DB, name string) (bool, error) {
	var count int
	err := db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?", name).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func columnExists(db *sql.DB, tableName, columnName string) (bool, error) {
	query := fmt.Sprintf("PRAGMA table_info(%s);", tableName)
	rows, err := db.Query(query)
	if err != nil {
		return false, err
	}
	defer rows.Close()

	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull int
		var dfltValue sql.NullString
		var pk int

		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dfltValue, &pk); err != nil {
			return false, err
		}
		if name == columnName {
			return true, nil
		}
	}

	return false, rows.Err()
}

func (db *DB) insertDefaults() error {
	now := db.now()
	defaultConfig := map[string]string{
		"user_context":  "",
		"model":         DefaultModel,
		"sync_interval": "15",
		"process_after": formatTime(now.Add(-24 * time.Hour)),
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("error starting transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`INSERT INTO config (key, value)
        SELECT ?, ? WHERE NOT EXISTS (SELECT 1 FROM config WHERE key = ?)`)
	if err != nil {
		return fmt.Errorf("error preparing config statement: %w", err)
	}
	defer stmt.Close()

	for key, value := range defaultConfig {
		if _, err := stmt.Exec(key, value, key); err != nil {
			return fmt.Errorf("error inserting default config %s: %w", key, err)
		}
	}

	// Interests are only seeded into an empty taxonomy so user deletions stick.
	var count int
	if err := tx.QueryRow("SELECT COUNT(*) FROM interests").Scan(&count); err != nil {
		return fmt.Errorf("error checking interests count: %w", err)
	}
	if count == 0 {
		for _, in := range defaultInterests {
			if _, err := tx.Exec("INSERT INTO interests (key, label, description) VALUES (?, ?, ?)",
				in.Key, in.Label, in.Description); err != nil {
				return fmt.Errorf("error inserting default interest %s: %w", in.Key, err)
			}
		}
	}

	return tx.Commit()
}
