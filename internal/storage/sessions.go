package storage

import "database/sql"

// GetThreadSession returns the stored agent session id for a thread, empty
// if none is stored.
func (d *Database) GetThreadSession(threadID string) (string, error) {
	var id string
	err := d.queryRow(
		`SELECT agent_session_id FROM thread_sessions WHERE thread_id = ?`, threadID,
	).Scan(&id)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return id, nil
}

// SetThreadSession upserts the agent session id for a thread.
func (d *Database) SetThreadSession(threadID, sessionID string) error {
	_, err := d.exec(
		`INSERT OR REPLACE INTO thread_sessions (thread_id, agent_session_id, updated_at)
		 VALUES (?, ?, ?)`,
		threadID, sessionID, nowRFC3339(),
	)
	return err
}

// ClearThreadSession removes the stored session, forcing the next turn to
// start fresh.
func (d *Database) ClearThreadSession(threadID string) error {
	_, err := d.exec(`DELETE FROM thread_sessions WHERE thread_id = ?`, threadID)
	return err
}
