package store

import (
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/ibeckermayer/uibot/internal/types"
)

// Store handles all database operations
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the SQLite database at dbPath.
func Open(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0700); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	// single writer
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		started_at DATETIME NOT NULL,
		finished_at DATETIME,
		success BOOLEAN NOT NULL,
		payload TEXT
	);

	CREATE TABLE IF NOT EXISTS matches (
		chat_id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		age INTEGER,
		bio TEXT,
		passions TEXT,
		image_urls TEXT,
		work TEXT,
		study TEXT,
		home TEXT,
		gender TEXT,
		distance_km INTEGER,
		scraped_at DATETIME NOT NULL,
		first_seen_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_runs_kind_started ON runs(kind, started_at);
	CREATE INDEX IF NOT EXISTS idx_matches_scraped_at ON matches(scraped_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// NewRunID returns a fresh run identifier.
func NewRunID() string { return uuid.NewString() }

// SaveRun inserts or replaces a run. An empty ID is filled in.
func (s *Store) SaveRun(r *Run) error {
	if r.ID == "" {
		r.ID = NewRunID()
	}
	var payload any
	if len(r.Payload) > 0 {
		payload = string(r.Payload)
	}

	_, err := s.db.Exec(`
		INSERT INTO runs (id, kind, started_at, finished_at, success, payload)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			finished_at = excluded.finished_at,
			success = excluded.success,
			payload = excluded.payload
	`, r.ID, r.Kind, r.StartedAt, r.FinishedAt, r.Success, payload)

	return err
}

// ListRuns returns the newest runs first. An empty kind lists all kinds.
func (s *Store) ListRuns(kind string, limit int) ([]Run, error) {
	rows, err := s.db.Query(`
		SELECT id, kind, started_at, finished_at, success, payload
		FROM runs
		WHERE ? = '' OR kind = ?
		ORDER BY started_at DESC
		LIMIT ?
	`, kind, kind, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var payload sql.NullString
		if err := rows.Scan(&r.ID, &r.Kind, &r.StartedAt, &r.FinishedAt, &r.Success, &payload); err != nil {
			return nil, err
		}
		if payload.Valid && payload.String != "" {
			r.Payload = json.RawMessage(payload.String)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// SaveMatch inserts or updates a scraped match. first_seen_at is kept from
// the first insert.
func (s *Store) SaveMatch(m types.RemoteMatch) error {
	passionsJSON, _ := json.Marshal(m.Passions)
	imagesJSON, _ := json.Marshal(m.ImageURLs)

	_, err := s.db.Exec(`
		INSERT INTO matches (chat_id, name, age, bio, passions, image_urls,
			work, study, home, gender, distance_km, scraped_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(chat_id) DO UPDATE SET
			name = excluded.name,
			age = excluded.age,
			bio = excluded.bio,
			passions = excluded.passions,
			image_urls = excluded.image_urls,
			work = excluded.work,
			study = excluded.study,
			home = excluded.home,
			gender = excluded.gender,
			distance_km = excluded.distance_km,
			scraped_at = excluded.scraped_at
	`, m.ChatID, m.Name, nullInt(m.Age), m.Bio, string(passionsJSON), string(imagesJSON),
		m.Work, m.Study, m.Home, m.Gender, nullInt(m.Distance), m.ScrapedAt)

	return err
}

// MatchExists checks if a chat ID was stored before.
func (s *Store) MatchExists(chatID string) (bool, error) {
	var exists bool
	err := s.db.QueryRow(`SELECT EXISTS(SELECT 1 FROM matches WHERE chat_id = ?)`, chatID).Scan(&exists)
	return exists, err
}

// ListMatches returns the most recently scraped matches first.
func (s *Store) ListMatches(limit int) ([]types.RemoteMatch, error) {
	rows, err := s.db.Query(`
		SELECT chat_id, name, age, bio, passions, image_urls,
			work, study, home, gender, distance_km, scraped_at
		FROM matches
		ORDER BY scraped_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var matches []types.RemoteMatch
	for rows.Next() {
		var m types.RemoteMatch
		var age, distance sql.NullInt64
		var passionsJSON, imagesJSON string

		err := rows.Scan(
			&m.ChatID, &m.Name, &age, &m.Bio, &passionsJSON, &imagesJSON,
			&m.Work, &m.Study, &m.Home, &m.Gender, &distance, &m.ScrapedAt,
		)
		if err != nil {
			return nil, err
		}

		json.Unmarshal([]byte(passionsJSON), &m.Passions)
		json.Unmarshal([]byte(imagesJSON), &m.ImageURLs)
		if age.Valid {
			m.Age = types.IntPtr(int(age.Int64))
		}
		if distance.Valid {
			m.Distance = types.IntPtr(int(distance.Int64))
		}
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

// FilterNew returns the matches whose chat IDs are not stored yet.
func (s *Store) FilterNew(matches []types.RemoteMatch) ([]types.RemoteMatch, error) {
	var fresh []types.RemoteMatch
	for _, m := range matches {
		ok, err := s.MatchExists(m.ChatID)
		if err != nil {
			return nil, err
		}
		if !ok {
			fresh = append(fresh, m)
		}
	}
	return fresh, nil
}

func nullInt(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}
