package storage

import (
	"database/sql"
	"time"
)

// SetState stores a keyed value. A ttl of zero means no expiry.
func (d *Database) SetState(key, value string, ttl time.Duration) error {
	var expires any
	if ttl != 0 {
		expires = time.Now().UTC().Add(ttl).Format(time.RFC3339)
	}
	_, err := d.exec(
		`INSERT OR REPLACE INTO kv_state (key, value, expires_at) VALUES (?, ?, ?)`,
		key, value, expires,
	)
	return err
}

// GetState returns the value for key, reporting found=false for missing or
// expired entries. Expired entries are removed on read.
func (d *Database) GetState(key string) (value string, found bool, err error) {
	var expires sql.NullString
	err = d.queryRow(
		`SELECT value, expires_at FROM kv_state WHERE key = ?`, key,
	).Scan(&value, &expires)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}

	if expires.Valid {
		exp, perr := time.Parse(time.RFC3339, expires.String)
		if perr == nil && time.Now().UTC().After(exp) {
			d.exec(`DELETE FROM kv_state WHERE key = ?`, key)
			return "", false, nil
		}
	}
	return value, true, nil
}

// DeleteState removes a keyed value.
func (d *Database) DeleteState(key string) error {
	_, err := d.exec(`DELETE FROM kv_state WHERE key = ?`, key)
	return err
}
