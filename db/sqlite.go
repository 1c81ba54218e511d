// Package db is the durable store behind the engine: a database/sql
// implementation for local SQLite files and remote libSQL (Turso) databases,
// and an in-memory implementation for development and tests.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"shortlink/links"
)

const schema = `
CREATE TABLE IF NOT EXISTS links (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	code       TEXT NOT NULL UNIQUE,
	url        TEXT NOT NULL,
	url_hash   TEXT NOT NULL UNIQUE,
	owner      TEXT,
	clicks     INTEGER NOT NULL DEFAULT 0,
	created_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS daily_clicks (
	code   TEXT NOT NULL,
	day    TEXT NOT NULL,
	clicks INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (code, day)
);
`

const dayLayout = "2006-01-02"

// SQLStore implements links.Store, links.BatchIncrementer and
// links.StatsStore on top of database/sql.
type SQLStore struct {
	db  *sql.DB
	log *zap.Logger
	now func() time.Time
}

// Open connects to libSQL when databaseURL is set, otherwise to the SQLite
// file at databasePath, and bootstraps the schema.
func Open(ctx context.Context, databaseURL, databasePath string, log *zap.Logger) (*sql.DB, error) {
	var (
		conn *sql.DB
		err  error
	)
	if databaseURL != "" {
		log.Info("using libsql (Turso) DB", zap.String("url", databaseURL))
		conn, err = sql.Open("libsql", databaseURL)
		if err != nil {
			return nil, errors.Wrap(err, "open libsql")
		}
	} else {
		log.Info("using local sqlite file", zap.String("path", databasePath))
		conn, err = sql.Open("sqlite3", databasePath)
		if err != nil {
			return nil, errors.Wrap(err, "open sqlite")
		}
		_, _ = conn.ExecContext(ctx, "PRAGMA journal_mode=WAL;")
		_, _ = conn.ExecContext(ctx, "PRAGMA synchronous=NORMAL;")
	}

	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)

	if err := Migrate(ctx, conn); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return conn, nil
}

// Migrate creates the tables if they do not exist yet.
func Migrate(ctx context.Context, conn *sql.DB) error {
	for _, stmt := range strings.Split(schema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := conn.ExecContext(ctx, stmt); err != nil {
			return errors.Wrap(err, "bootstrap schema")
		}
	}
	return nil
}

func NewSQLStore(conn *sql.DB, log *zap.Logger) *SQLStore {
	return &SQLStore{db: conn, log: log, now: time.Now}
}

const selectLink = `SELECT code, url, url_hash, COALESCE(owner, ''), clicks, created_at FROM links`

func (s *SQLStore) FindByOriginalURL(ctx context.Context, url string) (links.Record, error) {
	row := s.db.QueryRowContext(ctx, selectLink+` WHERE url_hash = ?`, links.HashURL(url))
	return s.scan(row)
}

func (s *SQLStore) FindByCode(ctx context.Context, code string) (links.Record, error) {
	row := s.db.QueryRowContext(ctx, selectLink+` WHERE code = ?`, code)
	return s.scan(row)
}

func (s *SQLStore) scan(row *sql.Row) (links.Record, error) {
	var (
		rec     links.Record
		created string
	)
	if err := row.Scan(&rec.Code, &rec.OriginalURL, &rec.URLHash, &rec.OwnerID, &rec.ClickCount, &created); err != nil {
		return links.Record{}, classify(err)
	}
	t, err := time.Parse(time.RFC3339Nano, created)
	if err != nil {
		return links.Record{}, errors.Wrapf(err, "parse created_at %q", created)
	}
	rec.CreatedAt = t
	return rec, nil
}

func (s *SQLStore) InsertUnique(ctx context.Context, rec links.Record) error {
	if rec.URLHash == "" {
		rec.URLHash = links.HashURL(rec.OriginalURL)
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.now().UTC()
	}
	owner := sql.NullString{String: rec.OwnerID, Valid: rec.OwnerID != ""}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO links (code, url, url_hash, owner, clicks, created_at) VALUES (?, ?, ?, ?, 0, ?)`,
		rec.Code, rec.OriginalURL, rec.URLHash, owner, rec.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	return classify(err)
}

func (s *SQLStore) IncrementClicks(ctx context.Context, code string, delta int64) error {
	return s.IncrementClicksBatch(ctx, map[string]int64{code: delta})
}

// IncrementClicksBatch applies every delta and the matching daily totals in a
// single transaction, so a failed flush leaves no partial increments behind.
func (s *SQLStore) IncrementClicksBatch(ctx context.Context, deltas map[string]int64) error {
	rows := make(map[string]int64, len(deltas))
	for code, n := range deltas {
		if n > 0 {
			rows[code] = n
		}
	}
	if len(rows) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return classify(err)
	}
	for code, n := range rows {
		if _, err := tx.ExecContext(ctx, `UPDATE links SET clicks = clicks + ? WHERE code = ?`, n, code); err != nil {
			_ = tx.Rollback()
			return classify(err)
		}
	}
	dailyQ, dailyArgs := buildUpsertDaily(rows, s.now().UTC().Format(dayLayout))
	if _, err := tx.ExecContext(ctx, dailyQ, dailyArgs...); err != nil {
		_ = tx.Rollback()
		return classify(err)
	}
	if err := tx.Commit(); err != nil {
		_ = tx.Rollback()
		return classify(err)
	}
	return nil
}

// buildUpsertDaily builds a multi-row upsert for daily_clicks.
func buildUpsertDaily(rows map[string]int64, day string) (string, []interface{}) {
	v := make([]string, 0, len(rows))
	args := make([]interface{}, 0, len(rows)*3)
	for code, cnt := range rows {
		v = append(v, "(?, ?, ?)")
		args = append(args, code, day, cnt)
	}
	q := fmt.Sprintf(
		"INSERT INTO daily_clicks (code, day, clicks) VALUES %s ON CONFLICT(code, day) DO UPDATE SET clicks = clicks + excluded.clicks;",
		strings.Join(v, ","),
	)
	return q, args
}

func (s *SQLStore) DailyClicks(ctx context.Context, code string) ([]links.DailyClicks, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT day, clicks FROM daily_clicks WHERE code = ? ORDER BY day`, code)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var out []links.DailyClicks
	for rows.Next() {
		var (
			day    string
			clicks int64
		)
		if err := rows.Scan(&day, &clicks); err != nil {
			return nil, classify(err)
		}
		d, err := time.Parse(dayLayout, day)
		if err != nil {
			s.log.Warn("skipping malformed daily_clicks row", zap.String("code", code), zap.String("day", day))
			continue
		}
		out = append(out, links.DailyClicks{Day: d, Clicks: clicks})
	}
	return out, classify(rows.Err())
}
