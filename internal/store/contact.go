package store

import (
	"fmt"
	"time"
)

// UpsertContact inserts or updates a single contact, keyed by JID.
func (db *DB) UpsertContact(c *Contact) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO contacts (jid, name, push_name, img_url, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(jid) DO UPDATE SET
			name = CASE WHEN excluded.name != '' THEN excluded.name ELSE contacts.name END,
			push_name = CASE WHEN excluded.push_name != '' THEN excluded.push_name ELSE contacts.push_name END,
			img_url = CASE WHEN excluded.img_url != '' THEN excluded.img_url ELSE contacts.img_url END,
			updated_at = excluded.updated_at`,
		c.JID, c.Name, c.PushName, c.ImgURL, now)
	return err
}

// BulkUpsertContacts inserts or updates multiple contacts in one transaction.
// Idempotent: re-applying the same batch leaves the table unchanged apart
// from updated_at.
func (db *DB) BulkUpsertContacts(contacts []Contact) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UnixMilli()
	for _, c := range contacts {
		if _, err := tx.Exec(`
			INSERT INTO contacts (jid, name, push_name, img_url, updated_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(jid) DO UPDATE SET
				name = CASE WHEN excluded.name != '' THEN excluded.name ELSE contacts.name END,
				push_name = CASE WHEN excluded.push_name != '' THEN excluded.push_name ELSE contacts.push_name END,
				img_url = CASE WHEN excluded.img_url != '' THEN excluded.img_url ELSE contacts.img_url END,
				updated_at = excluded.updated_at`,
			c.JID, c.Name, c.PushName, c.ImgURL, now); err != nil {
			return fmt.Errorf("upsert contact %q: %w", c.JID, err)
		}
	}
	return tx.Commit()
}

// ListContacts returns all cached contacts ordered by name.
func (db *DB) ListContacts() ([]Contact, error) {
	rows, err := db.Query(`
		SELECT jid, name, push_name, img_url, updated_at
		FROM contacts ORDER BY name ASC`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var contacts []Contact
	for rows.Next() {
		var c Contact
		if err := rows.Scan(&c.JID, &c.Name, &c.PushName, &c.ImgURL, &c.UpdatedAt); err != nil {
			return nil, err
		}
		contacts = append(contacts, c)
	}
	return contacts, rows.Err()
}

// DeleteContact removes a contact by JID.
func (db *DB) DeleteContact(jid string) error {
	_, err := db.Exec(`DELETE FROM contacts WHERE jid = ?`, jid)
	return err
}

// ClearContacts wipes the contact cache. Used on terminal logout, when the
// session the cache belongs to is gone.
func (db *DB) ClearContacts() error {
	_, err := db.Exec(`DELETE FROM contacts`)
	return err
}
