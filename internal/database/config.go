package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DefaultSyncInterval is used when sync_interval is missing or invalid.
const DefaultSyncInterval = 15 * time.Minute

// WritableConfigKeys are the settings accepted by SetConfig.
var WritableConfigKeys = []string{"classification_prompt", "model", "sync_interval", "process_after"}

// GetConfig returns the stored value for key.
func (db *DB) GetConfig(ctx context.Context, key string) (string, error) {
	var value sql.NullString
	err := db.QueryRowContext(ctx, "SELECT value FROM config WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("error getting config %s: %w", key, err)
	}
	return value.String, nil
}

// ConfigValue returns the stored value or fallback when key is absent or empty.
func (db *DB) ConfigValue(ctx context.Context, key, fallback string) (string, error) {
	v, err := db.GetConfig(ctx, key)
	if errors.Is(err, ErrNotFound) || (err == nil && v == "") {
		return fallback, nil
	}
	return v, err
}

// AllConfig returns every stored setting.
func (db *DB) AllConfig(ctx context.Context) (map[string]string, error) {
	rows, err := db.QueryContext(ctx, "SELECT key, value FROM config")
	if err != nil {
		return nil, fmt.Errorf("error querying config: %w", err)
	}
	defer rows.Close()

	cfg := make(map[string]string)
	for rows.Next() {
		var key string
		var value sql.NullString
		if err := rows.Scan(&key, &value); err != nil {
			return nil, err
		}
		cfg[key] = value.String
	}
	return cfg, rows.Err()
}

// SetConfig validates and stores a writable setting, returning the value as
// stored. Keys outside WritableConfigKeys are rejected with ErrInvalidInput.
func (db *DB) SetConfig(ctx context.Context, key, value string) (string, error) {
	normalized, err := normalizeConfigValue(key, value)
	if err != nil {
		return "", err
	}
	if err := db.putConfig(ctx, key, normalized); err != nil {
		return "", err
	}
	return normalized, nil
}

func (db *DB) putConfig(ctx context.Context, key, value string) error {
	_, err := db.ExecContext(ctx,
		"INSERT INTO config (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		key, value)
	if err != nil {
		return fmt.Errorf("error setting config %s: %w", key, err)
	}
	return nil
}

func normalizeConfigValue(key, value string) (string, error) {
	switch key {
	case "classification_prompt":
		return value, nil
	case "model":
		v := strings.TrimSpace(value)
		if v == "" {
			return "", fmt.Errorf("%w: model cannot be empty", ErrInvalidInput)
		}
		return v, nil
	case "sync_interval":
		n, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil || n <= 0 {
			return "", fmt.Errorf("%w: sync_interval must be a positive number of minutes", ErrInvalidInput)
		}
		return strconv.Itoa(n), nil
	case "process_after":
		v := strings.TrimSpace(value)
		if v == "" {
			return "", nil
		}
		t, err := ParseTime(v)
		if err != nil {
			return "", fmt.Errorf("%w: process_after must be a timestamp", ErrInvalidInput)
		}
		return formatTime(t), nil
	default:
		return "", fmt.Errorf("%w: unknown config key %q (valid keys: %s)",
			ErrInvalidInput, key, strings.Join(WritableConfigKeys, ", "))
	}
}

// SyncInterval returns the configured ingestion cadence.
func (db *DB) SyncInterval(ctx context.Context) (time.Duration, error) {
	v, err := db.GetConfig(ctx, "sync_interval")
	if errors.Is(err, ErrNotFound) {
		return DefaultSyncInterval, nil
	}
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || n <= 0 {
		return DefaultSyncInterval, nil
	}
	return time.Duration(n) * time.Minute, nil
}

// ProcessAfter returns the cutoff watermark. The zero time means no cutoff.
func (db *DB) ProcessAfter(ctx context.Context) (time.Time, error) {
	v, err := db.GetConfig(ctx, "process_after")
	if errors.Is(err, ErrNotFound) || (err == nil && v == "") {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	t, err := ParseTime(v)
	if err != nil {
		return time.Time{}, err
	}
	return t, nil
}
