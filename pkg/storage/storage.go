package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// timestamps are stored as fixed-width UTC text so that ORDER BY on the
// column sorts chronologically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

type DB struct {
	sql *sql.DB
	now func() time.Time
}

var _ Store = (*DB)(nil)

func Open(path string) (*DB, error) {
	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	// Ensure schema exists for convenience.
	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS movies (
  external_id    INTEGER PRIMARY KEY,
  title          TEXT NOT NULL,
  year           TEXT NOT NULL,
  actors         TEXT NOT NULL,
  director       TEXT NOT NULL,
  overview       TEXT NOT NULL,
  poster_url     TEXT,
  rating         REAL,
  where_to_watch TEXT NOT NULL,
  created_at     TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_movies_created ON movies(created_at);
CREATE TABLE IF NOT EXISTS activity_logs (
  id        INTEGER PRIMARY KEY AUTOINCREMENT,
  action    TEXT NOT NULL,
  details   TEXT NOT NULL DEFAULT '{}',
  timestamp TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_activity_time ON activity_logs(timestamp);
CREATE TABLE IF NOT EXISTS users (
  id         INTEGER PRIMARY KEY,
  username   TEXT,
  first_name TEXT,
  created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%S.000000000Z', 'now'))
);
    `); err != nil {
		db.Close()
		return nil, err
	}
	return &DB{sql: db, now: time.Now}, nil
}

func (d *DB) Close() error {
	if d == nil || d.sql == nil {
		return nil
	}
	return d.sql.Close()
}

func (d *DB) Exists(ctx context.Context, externalID int64) (bool, error) {
	var one int
	err := d.sql.QueryRowContext(ctx, "SELECT 1 FROM movies WHERE external_id = ?", externalID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// InsertMovie stores m and sets m.CreatedAt. The primary key on external_id
// closes the window between Exists and InsertMovie: a second insert for the
// same id affects no rows and returns ErrConflict.
func (d *DB) InsertMovie(ctx context.Context, m *Movie) error {
	createdAt := d.now().UTC()
	res, err := d.sql.ExecContext(ctx, `INSERT INTO movies(external_id, title, year, actors, director, overview, poster_url, rating, where_to_watch, created_at) VALUES(?,?,?,?,?,?,?,?,?,?) ON CONFLICT(external_id) DO NOTHING`,
		m.ExternalID, m.Title, m.Year, m.Actors, m.Director, m.Overview, nullIfEmpty(m.PosterURL), m.Rating.ptr(), m.WhereToWatch, createdAt.Format(timeLayout))
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("%w: %d", ErrConflict, m.ExternalID)
	}
	m.CreatedAt = createdAt
	return nil
}

const movieColumns = "external_id, title, year, actors, director, overview, poster_url, rating, where_to_watch, created_at"

func (d *DB) GetMovie(ctx context.Context, externalID int64) (*Movie, error) {
	row := d.sql.QueryRowContext(ctx, "SELECT "+movieColumns+" FROM movies WHERE external_id = ?", externalID)
	m, err := scanMovie(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %d", ErrNotFound, externalID)
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

// ListMovies returns the most recently stored movies first.
func (d *DB) ListMovies(ctx context.Context, limit int) ([]Movie, error) {
	limit = normalizeLimit(limit, 50)
	return d.queryMovies(ctx, "SELECT "+movieColumns+" FROM movies ORDER BY created_at DESC, external_id DESC LIMIT ?", limit)
}

// RandomSample returns up to n movies chosen uniformly. An empty table yields
// an empty slice.
func (d *DB) RandomSample(ctx context.Context, n int) ([]Movie, error) {
	if n <= 0 {
		return []Movie{}, nil
	}
	return d.queryMovies(ctx, "SELECT "+movieColumns+" FROM movies ORDER BY RANDOM() LIMIT ?", n)
}

func (d *DB) queryMovies(ctx context.Context, q string, args ...interface{}) ([]Movie, error) {
	rows, err := d.sql.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	movies := []Movie{}
	for rows.Next() {
		m, err := scanMovie(rows)
		if err != nil {
			return nil, err
		}
		movies = append(movies, *m)
	}
	return movies, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanMovie(r rowScanner) (*Movie, error) {
	var (
		m         Movie
		poster    sql.NullString
		rating    sql.NullFloat64
		createdAt string
	)
	if err := r.Scan(&m.ExternalID, &m.Title, &m.Year, &m.Actors, &m.Director, &m.Overview, &poster, &rating, &m.WhereToWatch, &createdAt); err != nil {
		return nil, err
	}
	m.PosterURL = poster.String
	if rating.Valid {
		m.Rating = NewScore(rating.Float64)
	}
	m.CreatedAt = parseTime(createdAt)
	return &m, nil
}

func (d *DB) LogActivity(ctx context.Context, action string, details map[string]any) error {
	if details == nil {
		details = map[string]any{}
	}
	raw, err := json.Marshal(details)
	if err != nil {
		return fmt.Errorf("encode activity details: %w", err)
	}
	_, err = d.sql.ExecContext(ctx, "INSERT INTO activity_logs(action, details, timestamp) VALUES(?,?,?)", action, string(raw), d.now().UTC().Format(timeLayout))
	return err
}

// RecentActivities returns the newest entries first. Entries sharing a
// timestamp come back in reverse insertion order.
func (d *DB) RecentActivities(ctx context.Context, limit int) ([]Activity, error) {
	limit = normalizeLimit(limit, DefaultActivityLimit)
	rows, err := d.sql.QueryContext(ctx, "SELECT action, details, timestamp FROM activity_logs ORDER BY timestamp DESC, id DESC LIMIT ?", limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	activities := []Activity{}
	for rows.Next() {
		var (
			a       Activity
			details string
			ts      string
		)
		if err := rows.Scan(&a.Action, &details, &ts); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(details), &a.Details); err != nil {
			a.Details = map[string]any{"raw": details}
		}
		a.Timestamp = parseTime(ts)
		activities = append(activities, a)
	}
	return activities, rows.Err()
}

func (d *DB) ListUsers(ctx context.Context, limit int) ([]User, error) {
	limit = normalizeLimit(limit, DefaultUserLimit)
	rows, err := d.sql.QueryContext(ctx, "SELECT id, username, first_name, created_at FROM users ORDER BY id LIMIT ?", limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := []User{}
	for rows.Next() {
		var (
			u               User
			username, first sql.NullString
			createdAt       string
		)
		if err := rows.Scan(&u.ID, &username, &first, &createdAt); err != nil {
			return nil, err
		}
		u.Username = username.String
		u.FirstName = first.String
		u.CreatedAt = parseTime(createdAt)
		users = append(users, u)
	}
	return users, rows.Err()
}

func (d *DB) Stats(ctx context.Context) (Stats, error) {
	var s Stats
	err := d.sql.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM movies),
			(SELECT COUNT(*) FROM activity_logs),
			(SELECT COUNT(*) FROM users)
	`).Scan(&s.Movies, &s.Activities, &s.Users)
	return s, err
}

// parseTime accepts our own layout plus the formats SQLite's CURRENT_TIMESTAMP
// and external tools tend to write.
func parseTime(s string) time.Time {
	for _, layout := range []string{timeLayout, time.RFC3339Nano, "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
