package store

import (
	"database/sql"
	"time"
)

// CreateScheduledMessage inserts a new pending message and returns its id.
func (db *DB) CreateScheduledMessage(m *ScheduledMessage) (int64, error) {
	now := time.Now().UnixMilli()
	res, err := db.Exec(`
		INSERT INTO scheduled_messages (contact_jid, contact_name, body, scheduled_at, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		m.ContactJID, m.ContactName, m.Body, m.ScheduledAt, StatusPending, now)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// DueScheduledMessages returns all pending messages whose trigger time has
// passed, earliest first.
func (db *DB) DueScheduledMessages(now time.Time) ([]ScheduledMessage, error) {
	rows, err := db.Query(`
		SELECT id, contact_jid, contact_name, body, scheduled_at, status, sent_at, error_message, created_at
		FROM scheduled_messages
		WHERE status = ? AND scheduled_at <= ?
		ORDER BY scheduled_at ASC`,
		StatusPending, now.UnixMilli())
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return scanMessages(rows)
}

// ListScheduledMessages returns messages, optionally filtered by status.
// Filtered lists come back earliest-scheduled first, the unfiltered list
// newest-scheduled first (matching what the UI shows).
func (db *DB) ListScheduledMessages(statusFilter string) ([]ScheduledMessage, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if statusFilter != "" {
		rows, err = db.Query(`
			SELECT id, contact_jid, contact_name, body, scheduled_at, status, sent_at, error_message, created_at
			FROM scheduled_messages WHERE status = ? ORDER BY scheduled_at ASC`, statusFilter)
	} else {
		rows, err = db.Query(`
			SELECT id, contact_jid, contact_name, body, scheduled_at, status, sent_at, error_message, created_at
			FROM scheduled_messages ORDER BY scheduled_at DESC`)
	}
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return scanMessages(rows)
}

// UpdateMessageStatus records a delivery outcome in a single atomic update.
// sentAt is only stored for sent, errMsg only for failed. Updating an id
// that no longer exists is a no-op, not an error.
func (db *DB) UpdateMessageStatus(id int64, msgStatus string, sentAt time.Time, errMsg string) error {
	var sent any
	if msgStatus == StatusSent {
		sent = sentAt.UnixMilli()
	}
	if msgStatus != StatusFailed {
		errMsg = ""
	}
	_, err := db.Exec(`
		UPDATE scheduled_messages SET status = ?, sent_at = ?, error_message = ?
		WHERE id = ?`,
		msgStatus, sent, errMsg, id)
	return err
}

// DeleteScheduledMessage removes a message by id.
func (db *DB) DeleteScheduledMessage(id int64) error {
	_, err := db.Exec(`DELETE FROM scheduled_messages WHERE id = ?`, id)
	return err
}

func scanMessages(rows *sql.Rows) ([]ScheduledMessage, error) {
	var msgs []ScheduledMessage
	for rows.Next() {
		var (
			m      ScheduledMessage
			sentAt sql.NullInt64
		)
		if err := rows.Scan(&m.ID, &m.ContactJID, &m.ContactName, &m.Body, &m.ScheduledAt,
			&m.Status, &sentAt, &m.ErrorMessage, &m.CreatedAt); err != nil {
			return nil, err
		}
		if sentAt.Valid {
			m.SentAt = sentAt.Int64
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}
