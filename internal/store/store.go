// Package store handles SQLite persistence.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/verte-zerg/typerace/internal/model"

	_ "modernc.org/sqlite" // SQLite driver.
)

// Store wraps SQLite access for session data.
type Store struct {
	db *sql.DB
}

// Open opens or creates the SQLite database and applies migrations.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		if cerr := db.Close(); cerr != nil {
			// Best-effort close on migration failure.
			_ = cerr
		}
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			id INTEGER PRIMARY KEY,
			user_id TEXT NOT NULL,
			started_at TEXT NOT NULL,
			ended_at TEXT NOT NULL,
			lang TEXT NOT NULL,
			mode TEXT NOT NULL,
			room_id TEXT NOT NULL,
			target_text TEXT NOT NULL,
			correct INTEGER NOT NULL,
			incorrect INTEGER NOT NULL,
			raw_wpm REAL NOT NULL,
			net_wpm REAL NOT NULL,
			accuracy INTEGER NOT NULL,
			duration_ms INTEGER NOT NULL,
			accepted INTEGER NOT NULL,
			suspicion_score INTEGER NOT NULL,
			flags TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS keystrokes (
			session_id INTEGER NOT NULL,
			seq INTEGER NOT NULL,
			char TEXT NOT NULL,
			at_ns INTEGER NOT NULL,
			PRIMARY KEY (session_id, seq)
		);`,
		`CREATE TABLE IF NOT EXISTS ratings (
			user_id TEXT PRIMARY KEY,
			mmr INTEGER NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_ended_at ON sessions(ended_at);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// InsertSession stores a submitted session, its verdict and its keystroke log.
func (s *Store) InsertSession(ctx context.Context, stats model.SessionStats, log []model.Keystroke) (id int64, err error) {
	flags := stats.Flags
	if flags == nil {
		flags = []string{}
	}
	flagsJSON, err := json.Marshal(flags)
	if err != nil {
		return 0, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() {
		if err != nil {
			if rerr := tx.Rollback(); rerr != nil {
				// Best-effort rollback.
				_ = rerr
			}
		}
	}()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO sessions (user_id, started_at, ended_at, lang, mode, room_id, target_text, correct, incorrect, raw_wpm, net_wpm, accuracy, duration_ms, accepted, suspicion_score, flags)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		stats.UserID,
		stats.StartedAt.Format(time.RFC3339Nano),
		stats.EndedAt.Format(time.RFC3339Nano),
		stats.Lang,
		stats.Mode,
		stats.RoomID,
		stats.TargetText,
		stats.Correct,
		stats.Incorrect,
		stats.RawWPM,
		stats.NetWPM,
		stats.Accuracy,
		stats.DurationMs,
		stats.Accepted,
		stats.SuspicionScore,
		string(flagsJSON),
	)
	if err != nil {
		return 0, err
	}
	id, err = res.LastInsertId()
	if err != nil {
		return 0, err
	}

	if len(log) > 0 {
		var stmt *sql.Stmt
		stmt, err = tx.PrepareContext(ctx,
			`INSERT INTO keystrokes (session_id, seq, char, at_ns) VALUES (?, ?, ?, ?)`)
		if err != nil {
			return 0, err
		}
		defer func() {
			if cerr := stmt.Close(); cerr != nil {
				// Best-effort statement close.
				_ = cerr
			}
		}()
		for i, k := range log {
			if _, err = stmt.ExecContext(ctx, id, i, string(k.Char), k.At.UnixNano()); err != nil {
				return 0, err
			}
		}
	}

	if err = tx.Commit(); err != nil {
		return 0, err
	}
	return id, nil
}

// ListSessions returns session aggregates filtered by stats config, oldest
// first.
func (s *Store) ListSessions(ctx context.Context, cfg model.StatsConfig) ([]model.SessionAggregate, error) {
	clauses := []string{"1=1"}
	args := []any{}
	if cfg.Lang != "" {
		clauses = append(clauses, "lang = ?")
		args = append(args, cfg.Lang)
	}
	if cfg.Since != nil {
		clauses = append(clauses, "ended_at >= ?")
		args = append(args, cfg.Since.Format(time.RFC3339Nano))
	}
	if cfg.AcceptedOnly {
		clauses = append(clauses, "accepted = 1")
	}
	limit := -1
	if cfg.Last > 0 {
		limit = cfg.Last
	}
	args = append(args, limit)
	query := fmt.Sprintf(`SELECT id, ended_at, net_wpm, raw_wpm, accuracy, duration_ms, accepted, suspicion_score
		FROM (
			SELECT * FROM sessions
			WHERE %s
			ORDER BY ended_at DESC, id DESC
			LIMIT ?
		)
		ORDER BY ended_at ASC, id ASC`, strings.Join(clauses, " AND "))
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			// Best-effort rows close.
			_ = cerr
		}
	}()

	var sessions []model.SessionAggregate
	for rows.Next() {
		var agg model.SessionAggregate
		var endedAt string
		if err := rows.Scan(&agg.SessionID, &endedAt, &agg.NetWPM, &agg.RawWPM, &agg.Accuracy, &agg.DurationMs, &agg.Accepted, &agg.SuspicionScore); err != nil {
			return nil, err
		}
		parsed, err := time.Parse(time.RFC3339Nano, endedAt)
		if err != nil {
			return nil, err
		}
		agg.EndedAt = parsed
		sessions = append(sessions, agg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sessions, nil
}

// ListKeystrokes returns the stored keystroke log of one session.
func (s *Store) ListKeystrokes(ctx context.Context, sessionID int64) ([]model.Keystroke, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT char, at_ns FROM keystrokes WHERE session_id = ? ORDER BY seq ASC`, sessionID)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			// Best-effort rows close.
			_ = cerr
		}
	}()

	var log []model.Keystroke
	for rows.Next() {
		var char string
		var atNs int64
		if err := rows.Scan(&char, &atNs); err != nil {
			return nil, err
		}
		r := []rune(char)
		if len(r) == 0 {
			continue
		}
		log = append(log, model.Keystroke{Char: r[0], At: time.Unix(0, atNs).UTC()})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return log, nil
}

// GetRating returns the stored MMR of a player and whether one exists.
func (s *Store) GetRating(ctx context.Context, userID string) (int, bool, error) {
	var mmr int
	err := s.db.QueryRowContext(ctx, `SELECT mmr FROM ratings WHERE user_id = ?`, userID).Scan(&mmr)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return mmr, true, nil
}

// SetRating stores the MMR of a player.
func (s *Store) SetRating(ctx context.Context, userID string, mmr int) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO ratings (user_id, mmr, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET mmr = excluded.mmr, updated_at = excluded.updated_at`,
		userID, mmr, time.Now().UTC().Format(time.RFC3339Nano))
	return err
}
