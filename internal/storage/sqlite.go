package storage

import (
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store wraps a SQLite database holding the daemon's local state: settings,
// recent activity, share history, error logs, and the webhook registry.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) a SQLite database in dataDir and runs pending
// migrations. Pass ":memory:" as dataDir for an in-memory database (tests).
func Open(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "groupclip.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// Limit to single connection to avoid "database is locked" errors.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the raw handle for tests.
func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		var version int
		if _, err := fmt.Sscanf(entry.Name(), "%d_", &version); err != nil {
			return fmt.Errorf("parsing migration version from %q: %w", entry.Name(), err)
		}

		var exists int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&exists); err != nil {
			return fmt.Errorf("checking migration %d: %w", version, err)
		}
		if exists > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning transaction for migration %d: %w", version, err)
		}
		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", version, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", version, err)
		}
	}
	return nil
}

// --- Settings ---

// GetSetting returns the value for key, or ErrNotFound.
func (s *Store) GetSetting(key string) (string, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return value, nil
}

// SetSetting writes key=value, replacing any previous value.
func (s *Store) SetSetting(key, value string) error {
	_, err := s.db.Exec(`INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	return err
}

// GetSettingDefault returns the value for key, or def when unset.
func (s *Store) GetSettingDefault(key, def string) string {
	v, err := s.GetSetting(key)
	if err != nil {
		return def
	}
	return v
}

// --- Activities (bounded at MaxActivities, newest first) ---

// AppendActivity inserts an activity and evicts the oldest rows past the cap.
// Insert and trim run in one transaction so concurrent appends cannot leave
// the list over its bound.
func (s *Store) AppendActivity(a Activity) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	if a.CreatedAt == 0 {
		a.CreatedAt = time.Now().UnixMilli()
	}
	return s.appendBounded(
		`INSERT INTO activities (id, address, chain, shared_by, created_at) VALUES (?, ?, ?, ?, ?)`,
		[]any{a.ID, a.Address, a.Chain, a.SharedBy, a.CreatedAt},
		"activities", MaxActivities,
	)
}

// RecentActivities returns up to limit activities, newest first.
func (s *Store) RecentActivities(limit int) ([]Activity, error) {
	if limit <= 0 || limit > MaxActivities {
		limit = MaxActivities
	}
	rows, err := s.db.Query(`SELECT id, address, chain, shared_by, created_at
		FROM activities ORDER BY seq DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Activity
	for rows.Next() {
		var a Activity
		if err := rows.Scan(&a.ID, &a.Address, &a.Chain, &a.SharedBy, &a.CreatedAt); err != nil {
			return nil, err
		}
		results = append(results, a)
	}
	return results, rows.Err()
}

// --- History (bounded at MaxHistory, newest first) ---

// AppendHistory inserts a share history entry, evicting past the cap.
func (s *Store) AppendHistory(h HistoryEntry) error {
	if h.ID == "" {
		h.ID = uuid.New().String()
	}
	if h.Kind == "" {
		h.Kind = "clipboard"
	}
	if h.CreatedAt == 0 {
		h.CreatedAt = time.Now().UnixMilli()
	}
	return s.appendBounded(
		`INSERT INTO history (id, content, kind, created_at) VALUES (?, ?, ?, ?)`,
		[]any{h.ID, h.Content, h.Kind, h.CreatedAt},
		"history", MaxHistory,
	)
}

// History returns up to limit entries, newest first.
func (s *Store) History(limit int) ([]HistoryEntry, error) {
	if limit <= 0 || limit > MaxHistory {
		limit = MaxHistory
	}
	rows, err := s.db.Query(`SELECT id, content, kind, created_at
		FROM history ORDER BY seq DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []HistoryEntry
	for rows.Next() {
		var h HistoryEntry
		if err := rows.Scan(&h.ID, &h.Content, &h.Kind, &h.CreatedAt); err != nil {
			return nil, err
		}
		results = append(results, h)
	}
	return results, rows.Err()
}

// --- Error logs (bounded at MaxErrorLogs, newest first) ---

// AppendErrorLog records a diagnostic entry, evicting past the cap.
func (s *Store) AppendErrorLog(e ErrorLog) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.CreatedAt == 0 {
		e.CreatedAt = time.Now().UnixMilli()
	}
	return s.appendBounded(
		`INSERT INTO error_logs (id, source, message, details, created_at) VALUES (?, ?, ?, ?, ?)`,
		[]any{e.ID, e.Source, e.Message, e.Details, e.CreatedAt},
		"error_logs", MaxErrorLogs,
	)
}

// ErrorLogs returns up to limit entries, newest first.
func (s *Store) ErrorLogs(limit int) ([]ErrorLog, error) {
	if limit <= 0 || limit > MaxErrorLogs {
		limit = MaxErrorLogs
	}
	rows, err := s.db.Query(`SELECT id, source, message, COALESCE(details, ''), created_at
		FROM error_logs ORDER BY seq DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []ErrorLog
	for rows.Next() {
		var e ErrorLog
		if err := rows.Scan(&e.ID, &e.Source, &e.Message, &e.Details, &e.CreatedAt); err != nil {
			return nil, err
		}
		results = append(results, e)
	}
	return results, rows.Err()
}

// appendBounded inserts a row and trims the table to cap rows by seq, in a
// single transaction.
func (s *Store) appendBounded(insertSQL string, args []any, table string, cap int) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	if _, err := tx.Exec(insertSQL, args...); err != nil {
		tx.Rollback()
		return err
	}
	trimSQL := fmt.Sprintf(`DELETE FROM %s WHERE seq NOT IN (
		SELECT seq FROM %s ORDER BY seq DESC LIMIT ?)`, table, table)
	if _, err := tx.Exec(trimSQL, cap); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// --- Webhooks ---

// AddWebhook registers an outbound webhook. A duplicate URL is an error.
func (s *Store) AddWebhook(w Webhook) (Webhook, error) {
	if w.ID == "" {
		w.ID = uuid.New().String()
	}
	if w.CreatedAt == 0 {
		w.CreatedAt = time.Now().UnixMilli()
	}
	_, err := s.db.Exec(`INSERT INTO webhooks (id, name, url, created_at) VALUES (?, ?, ?, ?)`,
		w.ID, w.Name, w.URL, w.CreatedAt)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			return Webhook{}, fmt.Errorf("webhook with url %s already exists", w.URL)
		}
		return Webhook{}, err
	}
	return w, nil
}

// ListWebhooks returns all registered webhooks, oldest first.
func (s *Store) ListWebhooks() ([]Webhook, error) {
	rows, err := s.db.Query(`SELECT id, name, url, created_at FROM webhooks ORDER BY created_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Webhook
	for rows.Next() {
		var w Webhook
		if err := rows.Scan(&w.ID, &w.Name, &w.URL, &w.CreatedAt); err != nil {
			return nil, err
		}
		results = append(results, w)
	}
	return results, rows.Err()
}

// DeleteWebhook removes a webhook by id.
func (s *Store) DeleteWebhook(id string) error {
	res, err := s.db.Exec(`DELETE FROM webhooks WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
