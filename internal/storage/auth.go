package storage

import "database/sql"

// UpsertAuthPasswordHash sets the web UI master password hash.
func (d *Database) UpsertAuthPasswordHash(hash string) error {
	now := nowRFC3339()
	_, err := d.exec(
		`INSERT INTO auth_passwords (id, password_hash, created_at, updated_at)
		 VALUES (1, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET password_hash = excluded.password_hash, updated_at = excluded.updated_at`,
		hash, now, now,
	)
	return err
}

// GetAuthPasswordHash returns the web UI master password hash.
func (d *Database) GetAuthPasswordHash() (string, bool, error) {
	var hash string
	err := d.queryRow(`SELECT password_hash FROM auth_passwords WHERE id = 1`).Scan(&hash)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return hash, true, nil
}

// CreateAuthSession creates a new web session.
func (d *Database) CreateAuthSession(sessionID, expiresAt string) error {
	now := nowRFC3339()
	_, err := d.exec(
		`INSERT INTO auth_sessions (session_id, created_at, expires_at, last_seen_at)
		 VALUES (?, ?, ?, ?)`,
		sessionID, now, expiresAt, now,
	)
	return err
}

// ValidateAuthSession checks if a session is valid and updates last_seen_at.
func (d *Database) ValidateAuthSession(sessionID string) (bool, error) {
	now := nowRFC3339()
	var expiresAt string
	err := d.queryRow(
		`SELECT expires_at FROM auth_sessions WHERE session_id = ?`, sessionID,
	).Scan(&expiresAt)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if expiresAt <= now {
		return false, nil
	}
	d.exec(`UPDATE auth_sessions SET last_seen_at = ? WHERE session_id = ?`, now, sessionID)
	return true, nil
}

// DeleteAuthSession removes a web session.
func (d *Database) DeleteAuthSession(sessionID string) error {
	_, err := d.exec(`DELETE FROM auth_sessions WHERE session_id = ?`, sessionID)
	return err
}
