package db

import (
	"database/sql"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/voice-scribe/backend/internal/auth"
	"github.com/voice-scribe/backend/internal/db/models"
)

type Database struct {
	db *sql.DB
}

func NewSQLite(path string) (*Database, error) {
	sqlDB, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}
	d := &Database{db: sqlDB}
	if err := d.migrate(); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Database) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT UNIQUE NOT NULL,
		password TEXT NOT NULL,
		role TEXT NOT NULL DEFAULT 'viewer',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS jobs (
		id TEXT PRIMARY KEY,
		type TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		params TEXT NOT NULL,
		progress REAL DEFAULT 0,
		result TEXT,
		error TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		started_at DATETIME,
		completed_at DATETIME
	);

	CREATE TABLE IF NOT EXISTS transcripts (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		text TEXT NOT NULL,
		corrected_text TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		corrected_at DATETIME
	);
	`
	_, err := d.db.Exec(schema)
	return err
}

func (d *Database) EnsureAdmin(username, password string) error {
	var count int
	err := d.db.QueryRow("SELECT COUNT(*) FROM users WHERE role = 'admin'").Scan(&count)
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}
	_, err = d.db.Exec(
		"INSERT INTO users (username, password, role) VALUES (?, ?, 'admin')",
		username, hash,
	)
	return err
}

func (d *Database) GetUserByUsername(username string) (*models.User, error) {
	u := &models.User{}
	err := d.db.QueryRow(
		"SELECT id, username, password, role, created_at, updated_at FROM users WHERE username = ?",
		username,
	).Scan(&u.ID, &u.Username, &u.Password, &u.Role, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return u, nil
}

func (d *Database) GetUserByID(id int64) (*models.User, error) {
	u := &models.User{}
	err := d.db.QueryRow(
		"SELECT id, username, password, role, created_at, updated_at FROM users WHERE id = ?",
		id,
	).Scan(&u.ID, &u.Username, &u.Password, &u.Role, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return u, nil
}

// GetSetting returns a setting value by key, or defaultVal if not found
func (d *Database) GetSetting(key, defaultVal string) string {
	var val string
	err := d.db.QueryRow("SELECT value FROM settings WHERE key = ?", key).Scan(&val)
	if err != nil {
		return defaultVal
	}
	return val
}

// SetSetting upserts a setting
func (d *Database) SetSetting(key, value string) error {
	_, err := d.db.Exec(`
		INSERT INTO settings (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET value = ?, updated_at = CURRENT_TIMESTAMP`,
		key, value, value,
	)
	return err
}

// GetAllSettings returns all settings as a map
func (d *Database) GetAllSettings() (map[string]string, error) {
	rows, err := d.db.Query("SELECT key, value FROM settings")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		result[k] = v
	}
	return result, nil
}

// CreateTranscript stores a new transcript and returns it.
func (d *Database) CreateTranscript(id, name, text string) (*models.Transcript, error) {
	now := time.Now()
	_, err := d.db.Exec(
		"INSERT INTO transcripts (id, name, text, created_at) VALUES (?, ?, ?, ?)",
		id, name, text, now,
	)
	if err != nil {
		return nil, err
	}
	return &models.Transcript{ID: id, Name: name, Text: text, CreatedAt: now}, nil
}

// GetTranscript returns a transcript by ID.
func (d *Database) GetTranscript(id string) (*models.Transcript, error) {
	t := &models.Transcript{}
	var corrected sql.NullString
	var correctedAt sql.NullTime
	err := d.db.QueryRow(
		"SELECT id, name, text, corrected_text, created_at, corrected_at FROM transcripts WHERE id = ?",
		id,
	).Scan(&t.ID, &t.Name, &t.Text, &corrected, &t.CreatedAt, &correctedAt)
	if err != nil {
		return nil, err
	}
	if corrected.Valid {
		t.CorrectedText = corrected.String
	}
	if correctedAt.Valid {
		t.CorrectedAt = &correctedAt.Time
	}
	return t, nil
}

// SaveCorrectedText stores the corrected form of a transcript.
func (d *Database) SaveCorrectedText(id, corrected string) error {
	_, err := d.db.Exec(
		"UPDATE transcripts SET corrected_text = ?, corrected_at = ? WHERE id = ?",
		corrected, time.Now(), id,
	)
	return err
}

// ListTranscripts returns all transcripts, newest first, without text
// bodies.
func (d *Database) ListTranscripts() ([]*models.Transcript, error) {
	rows, err := d.db.Query(
		"SELECT id, name, created_at, corrected_at FROM transcripts ORDER BY created_at DESC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.Transcript
	for rows.Next() {
		t := &models.Transcript{}
		var correctedAt sql.NullTime
		if err := rows.Scan(&t.ID, &t.Name, &t.CreatedAt, &correctedAt); err != nil {
			return nil, err
		}
		if correctedAt.Valid {
			t.CorrectedAt = &correctedAt.Time
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (d *Database) Close() error {
	return d.db.Close()
}

// DB returns the underlying sql.DB for use by other packages (e.g., job queue)
func (d *Database) DB() *sql.DB {
	return d.db
}
