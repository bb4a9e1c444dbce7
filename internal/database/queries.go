// internal/database/queries.go
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
)

// Error definitions
var (
	ErrNotFound     = errors.New("record not found")
	ErrConflict     = errors.New("record already exists")
	ErrInvalidInput = errors.New("invalid input")
)

// TimeLayout is the storage format for every timestamp column. Fixed width
// keeps lexical order equal to chronological order.
const TimeLayout = "2006-01-02 15:04:05.000"

// Entry is one ingested feed item with its classification state.
type Entry struct {
	ID          int64      `json:"id"`
	ExternalID  string     `json:"external_id"`
	FeedName    *string    `json:"feed_name"`
	Title       *string    `json:"title"`
	URL         *string    `json:"url"`
	Author      *string    `json:"author"`
	Content     *string    `json:"content"`
	PublishedAt *time.Time `json:"published_at"`
	FetchedAt   time.Time  `json:"fetched_at"`
	EnrichedAt  *time.Time `json:"enriched_at"`
	ProcessedAt *time.Time `json:"processed_at"`
	Interest    *string    `json:"interest"`
	IsSignal    *bool      `json:"is_signal"`
	Reasoning   *string    `json:"reasoning"`
	ReadAt      *time.Time `json:"read_at"`
}

// EntryFilter narrows QueryEntries. Nil fields are not applied.
type EntryFilter struct {
	Processed  *bool
	Interest   *string
	Unmatched  bool // interest is null or not a known interest key
	IsSignal   *bool
	SinceHours *int
	Date       *string // YYYY-MM-DD, takes precedence over SinceHours
	Limit      int
	Offset     int
}

// Stats summarizes the store.
type Stats struct {
	TotalEntries int            `json:"total_entries"`
	Unprocessed  int            `json:"unprocessed"`
	Signal       int            `json:"signal"`
	ByInterest   map[string]int `json:"by_interest"`
}

const defaultQueryLimit = 100

var entryColumns = []string{
	"id", "external_id", "feed_name", "title", "url", "author", "content",
	"published_at", "fetched_at", "enriched_at", "processed_at",
	"interest", "is_signal", "reasoning", "read_at",
}

var entrySelect = "SELECT " + strings.Join(entryColumns, ", ") + " FROM entries"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (*Entry, error) {
	var e Entry
	var feedName, title, url, author, content sql.NullString
	var published, fetched, enriched, processed, read sql.NullString
	var interest, reasoning sql.NullString
	var isSignal sql.NullInt64
	if err := row.Scan(&e.ID, &e.ExternalID, &feedName, &title, &url, &author, &content,
		&published, &fetched, &enriched, &processed, &interest, &isSignal, &reasoning, &read); err != nil {
		return nil, err
	}

	e.FeedName = nullString(feedName)
	e.Title = nullString(title)
	e.URL = nullString(url)
	e.Author = nullString(author)
	e.Content = nullString(content)
	e.Interest = nullString(interest)
	e.Reasoning = nullString(reasoning)
	e.PublishedAt = nullTime(published)
	e.EnrichedAt = nullTime(enriched)
	e.ProcessedAt = nullTime(processed)
	e.ReadAt = nullTime(read)
	if t := nullTime(fetched); t != nil {
		e.FetchedAt = *t
	}
	if isSignal.Valid {
		v := isSignal.Int64 != 0
		e.IsSignal = &v
	}
	return &e, nil
}

func scanEntries(rows *sql.Rows) ([]Entry, error) {
	defer rows.Close()
	entries := []Entry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning entry: %w", err)
		}
		entries = append(entries, *e)
	}
	return entries, rows.Err()
}

// UpsertEntry inserts an entry or merges it into the row with the same
// external id. Only non-null incoming fields overwrite stored values, and
// content is never replaced once the entry has been enriched. An entry
// without a publish date is dated by its first fetch.
func (db *DB) UpsertEntry(ctx context.Context, e Entry) (int64, error) {
	if strings.TrimSpace(e.ExternalID) == "" {
		return 0, fmt.Errorf("%w: external id is required", ErrInvalidInput)
	}

	var id int64
	err := db.QueryRowContext(ctx, `
		INSERT INTO entries (external_id, feed_name, title, url, author, content, published_at, fetched_at)
		VALUES (?1, ?2, ?3, ?4, ?5, ?6, COALESCE(?7, ?8), ?8)
		ON CONFLICT(external_id) DO UPDATE SET
			feed_name = COALESCE(excluded.feed_name, entries.feed_name),
			title = COALESCE(excluded.title, entries.title),
			url = COALESCE(excluded.url, entries.url),
			author = COALESCE(excluded.author, entries.author),
			content = CASE WHEN entries.enriched_at IS NOT NULL THEN entries.content
				ELSE COALESCE(excluded.content, entries.content) END,
			published_at = COALESCE(?7, entries.published_at)
		RETURNING id`,
		e.ExternalID, e.FeedName, e.Title, e.URL, e.Author, e.Content,
		timeArg(e.PublishedAt), db.timestamp(),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("error upserting entry %s: %w", e.ExternalID, err)
	}
	return id, nil
}

// GetEntry returns the entry with the given internal id.
func (db *DB) GetEntry(ctx context.Context, id int64) (*Entry, error) {
	e, err := scanEntry(db.QueryRowContext(ctx, entrySelect+" WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error getting entry %d: %w", id, err)
	}
	return e, nil
}

// QueryEntries lists entries matching f, newest published first.
func (db *DB) QueryEntries(ctx context.Context, f EntryFilter) ([]Entry, error) {
	q := sq.Select(entryColumns...).From("entries")

	if f.Processed != nil {
		if *f.Processed {
			q = q.Where(sq.NotEq{"processed_at": nil})
		} else {
			q = q.Where(sq.Eq{"processed_at": nil})
		}
	}
	if f.Interest != nil {
		q = q.Where(sq.Eq{"interest": *f.Interest})
	}
	if f.Unmatched {
		q = q.Where(sq.Or{
			sq.Eq{"interest": nil},
			sq.Expr("interest NOT IN (SELECT key FROM interests)"),
		})
	}
	if f.IsSignal != nil {
		q = q.Where(sq.Eq{"is_signal": boolInt(*f.IsSignal)})
	}
	if f.Date != nil {
		if _, err := time.Parse("2006-01-02", *f.Date); err != nil {
			return nil, fmt.Errorf("%w: date must be YYYY-MM-DD", ErrInvalidInput)
		}
		q = q.Where(sq.Expr("date(published_at) = ?", *f.Date))
	} else if f.SinceHours != nil {
		q = q.Where(sq.GtOrEq{"published_at": db.hoursAgo(*f.SinceHours)})
	}

	limit := f.Limit
	if limit <= 0 {
		limit = defaultQueryLimit
	}
	q = q.OrderBy("published_at DESC", "id DESC").Limit(uint64(limit))
	if f.Offset > 0 {
		q = q.Offset(uint64(f.Offset))
	}

	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("error building entries query: %w", err)
	}
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error querying entries: %w", err)
	}
	return scanEntries(rows)
}

// UnprocessedEntries returns up to limit entries awaiting classification,
// oldest fetched first. Entries published before process_after are skipped.
func (db *DB) UnprocessedEntries(ctx context.Context, limit int) ([]Entry, error) {
	cutoff, err := db.GetConfig(ctx, "process_after")
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	cutoff = normalizeStoredTime(cutoff)

	rows, err := db.QueryContext(ctx, entrySelect+`
		WHERE processed_at IS NULL AND (? = '' OR published_at >= ?)
		ORDER BY fetched_at ASC, id ASC
		LIMIT ?`, cutoff, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("error querying unprocessed entries: %w", err)
	}
	return scanEntries(rows)
}

// SetClassification stores a classification outcome and stamps processed_at.
func (db *DB) SetClassification(ctx context.Context, id int64, interest *string, isSignal bool, reasoning string) error {
	res, err := db.ExecContext(ctx, `
		UPDATE entries
		SET interest = ?, is_signal = ?, reasoning = ?, processed_at = ?
		WHERE id = ?`,
		interest, boolInt(isSignal), reasoning, db.timestamp(), id)
	if err != nil {
		return fmt.Errorf("error setting classification for entry %d: %w", id, err)
	}
	return requireRow(res)
}

// ClearClassification resets one entry to unclassified.
func (db *DB) ClearClassification(ctx context.Context, id int64) error {
	res, err := db.ExecContext(ctx, `
		UPDATE entries
		SET interest = NULL, is_signal = NULL, reasoning = NULL, processed_at = NULL
		WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("error clearing classification for entry %d: %w", id, err)
	}
	return requireRow(res)
}

// RequeueEntries clears classification for entries published within the
// last sinceHours hours and returns how many rows changed.
func (db *DB) RequeueEntries(ctx context.Context, sinceHours int) (int, error) {
	if sinceHours <= 0 {
		return 0, fmt.Errorf("%w: since_hours must be positive", ErrInvalidInput)
	}
	res, err := db.ExecContext(ctx, `
		UPDATE entries
		SET interest = NULL, is_signal = NULL, reasoning = NULL, processed_at = NULL
		WHERE published_at >= ?`, db.hoursAgo(sinceHours))
	if err != nil {
		return 0, fmt.Errorf("error requeueing entries: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// UpdateEntryContent replaces content with enriched text and marks the entry
// as enriched.
func (db *DB) UpdateEntryContent(ctx context.Context, id int64, content string) error {
	res, err := db.ExecContext(ctx,
		"UPDATE entries SET content = ?, enriched_at = ? WHERE id = ?",
		content, db.timestamp(), id)
	if err != nil {
		return fmt.Errorf("error updating content for entry %d: %w", id, err)
	}
	return requireRow(res)
}

// MarkEntryRead sets read_at once. Already-read entries are left alone.
func (db *DB) MarkEntryRead(ctx context.Context, id int64) error {
	if _, err := db.GetEntry(ctx, id); err != nil {
		return err
	}
	_, err := db.ExecContext(ctx,
		"UPDATE entries SET read_at = ? WHERE id = ? AND read_at IS NULL",
		db.timestamp(), id)
	if err != nil {
		return fmt.Errorf("error marking entry %d read: %w", id, err)
	}
	return nil
}

// CountSignalByInterest counts classified signal entries per interest key.
// Unmatched signal entries are counted under the empty key.
func (db *DB) CountSignalByInterest(ctx context.Context) (map[string]int, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT COALESCE(interest, ''), COUNT(*)
		FROM entries
		WHERE is_signal = 1 AND processed_at IS NOT NULL
		GROUP BY interest`)
	if err != nil {
		return nil, fmt.Errorf("error counting entries by interest: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var key string
		var n int
		if err := rows.Scan(&key, &n); err != nil {
			return nil, err
		}
		counts[key] = n
	}
	return counts, rows.Err()
}

// Stats reports totals. The unprocessed count respects process_after; the
// signal count is limited to the window when sinceHours is set.
func (db *DB) Stats(ctx context.Context, sinceHours *int) (*Stats, error) {
	var s Stats
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM entries").Scan(&s.TotalEntries); err != nil {
		return nil, fmt.Errorf("error counting entries: %w", err)
	}

	cutoff, err := db.GetConfig(ctx, "process_after")
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	cutoff = normalizeStoredTime(cutoff)
	if err := db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM entries WHERE processed_at IS NULL AND (? = '' OR published_at >= ?)",
		cutoff, cutoff).Scan(&s.Unprocessed); err != nil {
		return nil, fmt.Errorf("error counting unprocessed entries: %w", err)
	}

	signalQuery := sq.Select("COUNT(*)").From("entries").Where(sq.Eq{"is_signal": 1})
	if sinceHours != nil && *sinceHours > 0 {
		signalQuery = signalQuery.Where(sq.GtOrEq{"published_at": db.hoursAgo(*sinceHours)})
	}
	query, args, err := signalQuery.ToSql()
	if err != nil {
		return nil, fmt.Errorf("error building signal query: %w", err)
	}
	if err := db.QueryRowContext(ctx, query, args...).Scan(&s.Signal); err != nil {
		return nil, fmt.Errorf("error counting signal entries: %w", err)
	}

	s.ByInterest, err = db.CountSignalByInterest(ctx)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (db *DB) hoursAgo(hours int) string {
	return formatTime(db.now().Add(-time.Duration(hours) * time.Hour))
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

var parseLayouts = []string{
	TimeLayout,
	"2006-01-02 15:04:05",
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// ParseTime accepts the storage layout as well as the formats earlier
// versions and users write.
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range parseLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: unrecognized time %q", ErrInvalidInput, s)
}

// normalizeStoredTime rewrites legacy timestamps into TimeLayout so they
// compare correctly against stored columns. Unparseable values pass through.
func normalizeStoredTime(s string) string {
	if s == "" {
		return ""
	}
	t, err := ParseTime(s)
	if err != nil {
		return s
	}
	return formatTime(t)
}

func timeArg(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func nullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func nullTime(ns sql.NullString) *time.Time {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	t, err := ParseTime(ns.String)
	if err != nil {
		return nil
	}
	return &t
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func strPtr(s string) *string {
	return &s
}
