// Package storage provides SQLite-backed persistence for subscribers, scan
// snapshots, and the alert journal.
package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rewired-gh/gapwatch/internal/models"
	_ "modernc.org/sqlite"
)

// Storage wraps a SQLite database for all persistence operations.
type Storage struct {
	db        *sql.DB
	maxAlerts int
}

// New opens or creates the SQLite database at dbPath.
// An empty dbPath defaults to $TMPDIR/gapwatch/data.db.
func New(maxAlerts int, dbPath string) (*Storage, error) {
	if dbPath == "" {
		dbPath = filepath.Join(os.TempDir(), "gapwatch", "data.db")
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1) // single writer; WAL allows concurrent readers
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}
	s := &Storage{db: db, maxAlerts: maxAlerts}
	if err := s.createTables(); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) createTables() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS subscribers (
			chat_id    INTEGER PRIMARY KEY,
			created_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS candidates (
			symbol     TEXT PRIMARY KEY,
			score      INTEGER NOT NULL,
			tier       TEXT NOT NULL,
			data       TEXT NOT NULL,
			scanned_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS alerts (
			id         TEXT PRIMARY KEY,
			symbol     TEXT NOT NULL,
			kind       TEXT NOT NULL,
			text       TEXT NOT NULL,
			delivered  INTEGER NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_created_at ON alerts(created_at DESC)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// AddSubscriber registers a chat. added is false if it was already subscribed.
func (s *Storage) AddSubscriber(chatID int64) (added bool, err error) {
	res, err := s.db.Exec(`INSERT OR IGNORE INTO subscribers (chat_id, created_at) VALUES (?, ?)`,
		chatID, time.Now().UnixNano())
	if err != nil {
		return false, fmt.Errorf("failed to add subscriber: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// RemoveSubscriber unregisters a chat. removed is false if it was not subscribed.
func (s *Storage) RemoveSubscriber(chatID int64) (removed bool, err error) {
	res, err := s.db.Exec(`DELETE FROM subscribers WHERE chat_id = ?`, chatID)
	if err != nil {
		return false, fmt.Errorf("failed to remove subscriber: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (s *Storage) Subscribers() ([]int64, error) {
	rows, err := s.db.Query(`SELECT chat_id FROM subscribers ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to query subscribers: %w", err)
	}
	defer rows.Close()

	ids := []int64{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan subscriber: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// SaveCandidates replaces the persisted scan snapshot.
func (s *Storage) SaveCandidates(candidates []models.Candidate) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.Exec(`DELETE FROM candidates`); err != nil {
		return fmt.Errorf("failed to clear candidates: %w", err)
	}
	for i := range candidates {
		c := &candidates[i]
		if err := c.Validate(); err != nil {
			return fmt.Errorf("invalid candidate %s: %w", c.Symbol, err)
		}
		data, err := json.Marshal(c)
		if err != nil {
			return fmt.Errorf("failed to marshal candidate %s: %w", c.Symbol, err)
		}
		if _, err := tx.Exec(`
			INSERT INTO candidates (symbol, score, tier, data, scanned_at)
			VALUES (?,?,?,?,?)`,
			c.Symbol, c.Score, string(c.Tier), string(data), c.ScannedAt.UnixNano(),
		); err != nil {
			return fmt.Errorf("failed to insert candidate %s: %w", c.Symbol, err)
		}
	}
	return tx.Commit()
}

// LoadCandidates returns the persisted snapshot ordered by score, highest first.
func (s *Storage) LoadCandidates() ([]models.Candidate, error) {
	rows, err := s.db.Query(`SELECT data FROM candidates ORDER BY score DESC, symbol`)
	if err != nil {
		return nil, fmt.Errorf("failed to query candidates: %w", err)
	}
	defer rows.Close()

	candidates := []models.Candidate{}
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("failed to scan candidate: %w", err)
		}
		var c models.Candidate
		if err := json.Unmarshal([]byte(data), &c); err != nil {
			return nil, fmt.Errorf("failed to unmarshal candidate: %w", err)
		}
		candidates = append(candidates, c)
	}
	return candidates, rows.Err()
}

// AddAlert journals an alert and keeps only the newest maxAlerts entries.
func (s *Storage) AddAlert(rec models.AlertRecord) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.Exec(`
		INSERT INTO alerts (id, symbol, kind, text, delivered, created_at)
		VALUES (?,?,?,?,?,?)`,
		rec.ID, rec.Symbol, rec.Kind, rec.Text, boolToInt(rec.Delivered), rec.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert alert: %w", err)
	}

	if _, err := tx.Exec(rotateAlertsSQL, s.maxAlerts); err != nil {
		return fmt.Errorf("failed to enforce alert cap: %w", err)
	}
	return tx.Commit()
}

// RecentAlerts returns up to k journaled alerts, newest first.
func (s *Storage) RecentAlerts(k int) ([]models.AlertRecord, error) {
	rows, err := s.db.Query(`
		SELECT id, symbol, kind, text, delivered, created_at
		FROM alerts ORDER BY created_at DESC LIMIT ?`, k)
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts: %w", err)
	}
	defer rows.Close()

	alerts := []models.AlertRecord{}
	for rows.Next() {
		var a models.AlertRecord
		var createdAtNano int64
		var delivered int
		if err := rows.Scan(&a.ID, &a.Symbol, &a.Kind, &a.Text, &delivered, &createdAtNano); err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		a.Delivered = delivered != 0
		a.CreatedAt = time.Unix(0, createdAtNano)
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

const rotateAlertsSQL = `
	DELETE FROM alerts WHERE id NOT IN (
		SELECT id FROM alerts ORDER BY created_at DESC LIMIT ?
	)`

// RotateAlerts keeps at most maxAlerts newest alerts by created_at.
func (s *Storage) RotateAlerts() error {
	if _, err := s.db.Exec(rotateAlertsSQL, s.maxAlerts); err != nil {
		return fmt.Errorf("failed to rotate alerts: %w", err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
