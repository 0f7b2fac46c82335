package storage

import (
	"database/sql"
	"fmt"
	"time"
)

// runMigrations applies all schema migrations in order.
func (d *Database) runMigrations() error {
	return d.withLock(func() error {
		tx, err := d.db.Begin()
		if err != nil {
			return err
		}
		defer func() {
			if err != nil {
				tx.Rollback()
			}
		}()

		if _, err = tx.Exec(`CREATE TABLE IF NOT EXISTS db_meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`); err != nil {
			return fmt.Errorf("creating db_meta: %w", err)
		}

		if _, err = tx.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at TEXT NOT NULL,
			note TEXT
		)`); err != nil {
			return fmt.Errorf("creating schema_migrations: %w", err)
		}

		version := d.getSchemaVersion(tx)

		migrations := []struct {
			version int
			note    string
			fn      func(*sql.Tx) error
		}{
			{1, "thread message log", migrateV1},
			{2, "thread sessions and keyed state", migrateV2},
			{3, "web authentication", migrateV3},
		}

		for _, m := range migrations {
			if version >= m.version {
				continue
			}
			if err = m.fn(tx); err != nil {
				return fmt.Errorf("migration v%d (%s): %w", m.version, m.note, err)
			}
			now := time.Now().UTC().Format(time.RFC3339)
			if _, err = tx.Exec(
				`INSERT OR REPLACE INTO schema_migrations (version, applied_at, note) VALUES (?, ?, ?)`,
				m.version, now, m.note,
			); err != nil {
				return fmt.Errorf("recording migration v%d: %w", m.version, err)
			}
			if _, err = tx.Exec(
				`INSERT OR REPLACE INTO db_meta (key, value) VALUES ('schema_version', ?)`,
				fmt.Sprintf("%d", m.version),
			); err != nil {
				return fmt.Errorf("updating schema_version: %w", err)
			}
		}

		return tx.Commit()
	})
}

func (d *Database) getSchemaVersion(tx *sql.Tx) int {
	var val string
	err := tx.QueryRow(`SELECT value FROM db_meta WHERE key = 'schema_version'`).Scan(&val)
	if err != nil {
		return 0
	}
	var v int
	fmt.Sscanf(val, "%d", &v)
	return v
}

func migrateV1(tx *sql.Tx) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS messages (
			id TEXT NOT NULL,
			thread_id TEXT NOT NULL,
			author_id TEXT NOT NULL,
			is_from_bot INTEGER NOT NULL DEFAULT 0,
			content TEXT NOT NULL,
			timestamp TEXT NOT NULL,
			PRIMARY KEY (id, thread_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_thread_timestamp ON messages(thread_id, timestamp)`,

		`CREATE TABLE IF NOT EXISTS attachments (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			message_id TEXT NOT NULL,
			thread_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			mime_type TEXT,
			name TEXT,
			url TEXT,
			file_ref TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_attachments_message ON attachments(message_id, thread_id)`,
	}
	for _, s := range stmts {
		if _, err := tx.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func migrateV2(tx *sql.Tx) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS thread_sessions (
			thread_id TEXT PRIMARY KEY,
			agent_session_id TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS kv_state (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			expires_at TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_kv_state_expires ON kv_state(expires_at)`,
	}
	for _, s := range stmts {
		if _, err := tx.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func migrateV3(tx *sql.Tx) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS auth_passwords (
			id INTEGER PRIMARY KEY CHECK(id = 1),
			password_hash TEXT NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS auth_sessions (
			session_id TEXT PRIMARY KEY,
			created_at TEXT NOT NULL,
			expires_at TEXT NOT NULL,
			last_seen_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_auth_sessions_expires ON auth_sessions(expires_at)`,
	}
	for _, s := range stmts {
		if _, err := tx.Exec(s); err != nil {
			return err
		}
	}
	return nil
}
