package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	sqlite3 "github.com/mattn/go-sqlite3"
)

// Interest is one taxonomy category used as a classification target.
type Interest struct {
	ID          int64   `json:"id"`
	Key         string  `json:"key"`
	Label       string  `json:"label"`
	Description *string `json:"description"`
}

// Interests returns the taxonomy ordered by label.
func (db *DB) Interests(ctx context.Context) ([]Interest, error) {
	rows, err := db.QueryContext(ctx, "SELECT id, key, label, description FROM interests ORDER BY label")
	if err != nil {
		return nil, fmt.Errorf("error querying interests: %w", err)
	}
	defer rows.Close()

	interests := []Interest{}
	for rows.Next() {
		var in Interest
		var desc sql.NullString
		if err := rows.Scan(&in.ID, &in.Key, &in.Label, &desc); err != nil {
			return nil, fmt.Errorf("error scanning interest: %w", err)
		}
		in.Description = nullString(desc)
		interests = append(interests, in)
	}
	return interests, rows.Err()
}

// Interest returns one interest by key.
func (db *DB) Interest(ctx context.Context, key string) (*Interest, error) {
	var in Interest
	var desc sql.NullString
	err := db.QueryRowContext(ctx,
		"SELECT id, key, label, description FROM interests WHERE key = ?", key,
	).Scan(&in.ID, &in.Key, &in.Label, &desc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error getting interest %s: %w", key, err)
	}
	in.Description = nullString(desc)
	return &in, nil
}

// CreateInterest adds a taxonomy entry. A duplicate key yields ErrConflict.
func (db *DB) CreateInterest(ctx context.Context, key, label string, description *string) (*Interest, error) {
	key = strings.TrimSpace(key)
	if key == "" || strings.TrimSpace(label) == "" {
		return nil, fmt.Errorf("%w: key and label are required", ErrInvalidInput)
	}

	var id int64
	err := db.QueryRowContext(ctx,
		"INSERT INTO interests (key, label, description) VALUES (?, ?, ?) RETURNING id",
		key, label, description,
	).Scan(&id)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return nil, fmt.Errorf("%w: interest %q", ErrConflict, key)
		}
		return nil, fmt.Errorf("error creating interest %s: %w", key, err)
	}
	return &Interest{ID: id, Key: key, Label: label, Description: description}, nil
}

// UpdateInterest changes label and/or description. Nil arguments keep the
// stored value.
func (db *DB) UpdateInterest(ctx context.Context, key string, label, description *string) (*Interest, error) {
	if label != nil && strings.TrimSpace(*label) == "" {
		return nil, fmt.Errorf("%w: label cannot be empty", ErrInvalidInput)
	}
	res, err := db.ExecContext(ctx, `
		UPDATE interests
		SET label = COALESCE(?, label), description = COALESCE(?, description)
		WHERE key = ?`, label, description, key)
	if err != nil {
		return nil, fmt.Errorf("error updating interest %s: %w", key, err)
	}
	if err := requireRow(res); err != nil {
		return nil, err
	}
	return db.Interest(ctx, key)
}

// DeleteInterest removes a taxonomy entry. Entries referencing it keep the
// key and are grouped as unmatched.
func (db *DB) DeleteInterest(ctx context.Context, key string) error {
	res, err := db.ExecContext(ctx, "DELETE FROM interests WHERE key = ?", key)
	if err != nil {
		return fmt.Errorf("error deleting interest %s: %w", key, err)
	}
	return requireRow(res)
}
