package storage

import "database/sql"

// StoredMessage is a persisted thread message.
type StoredMessage struct {
	ID          string
	ThreadID    string
	AuthorID    string
	IsFromBot   bool
	Content     string
	Timestamp   string // RFC 3339
	Attachments []StoredAttachment
}

// StoredAttachment is attachment metadata persisted alongside a message. The
// payload itself stays on the platform (url) or on disk (file_ref).
type StoredAttachment struct {
	Kind     string // "image" or "file"
	MimeType string
	Name     string
	URL      string
	FileRef  string
}

// StoreMessage inserts or replaces a message and its attachment metadata.
func (d *Database) StoreMessage(msg StoredMessage) error {
	return d.execTx(func(tx *sql.Tx) error {
		if _, err := tx.Exec(
			`INSERT OR REPLACE INTO messages (id, thread_id, author_id, is_from_bot, content, timestamp)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			msg.ID, msg.ThreadID, msg.AuthorID, boolToInt(msg.IsFromBot), msg.Content, msg.Timestamp,
		); err != nil {
			return err
		}
		if _, err := tx.Exec(
			`DELETE FROM attachments WHERE message_id = ? AND thread_id = ?`,
			msg.ID, msg.ThreadID,
		); err != nil {
			return err
		}
		for _, a := range msg.Attachments {
			if _, err := tx.Exec(
				`INSERT INTO attachments (message_id, thread_id, kind, mime_type, name, url, file_ref)
				 VALUES (?, ?, ?, ?, ?, ?, ?)`,
				msg.ID, msg.ThreadID, a.Kind, a.MimeType, a.Name, a.URL, a.FileRef,
			); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetThreadMessages fetches the most recent limit messages of a thread in
// chronological order, attachments included.
func (d *Database) GetThreadMessages(threadID string, limit int) ([]StoredMessage, error) {
	// rowid breaks ties between same-second timestamps, keeping rapid
	// exchanges in insertion order.
	rows, err := d.query(
		`SELECT id, thread_id, author_id, is_from_bot, content, timestamp
		 FROM messages WHERE thread_id = ? ORDER BY timestamp DESC, rowid DESC LIMIT ?`,
		threadID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []StoredMessage
	for rows.Next() {
		var m StoredMessage
		var bot int
		if err := rows.Scan(&m.ID, &m.ThreadID, &m.AuthorID, &bot, &m.Content, &m.Timestamp); err != nil {
			return nil, err
		}
		m.IsFromBot = bot != 0
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Reverse to chronological order.
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}

	for i := range msgs {
		atts, err := d.getAttachments(msgs[i].ID, threadID)
		if err != nil {
			return nil, err
		}
		msgs[i].Attachments = atts
	}
	return msgs, nil
}

func (d *Database) getAttachments(messageID, threadID string) ([]StoredAttachment, error) {
	rows, err := d.query(
		`SELECT kind, mime_type, name, url, file_ref
		 FROM attachments WHERE message_id = ? AND thread_id = ? ORDER BY id`,
		messageID, threadID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var atts []StoredAttachment
	for rows.Next() {
		var a StoredAttachment
		var mime, name, url, ref sql.NullString
		if err := rows.Scan(&a.Kind, &mime, &name, &url, &ref); err != nil {
			return nil, err
		}
		a.MimeType = mime.String
		a.Name = name.String
		a.URL = url.String
		a.FileRef = ref.String
		atts = append(atts, a)
	}
	return atts, rows.Err()
}
