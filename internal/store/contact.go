package store

import (
	"database/sql"
	"fmt"
	"time"
)

// ReplaceContacts refreshes the contact mirror wholesale in one
// transaction. Contacts are not incrementally diffed.
func (db *DB) ReplaceContacts(contacts []Contact) error {
	return db.withWrite(func(tx *sql.Tx) error {
		now := time.Now().UnixMilli()
		for _, c := range contacts {
			if _, err := tx.Exec(`
				INSERT INTO contacts (user_id, username, first_name, last_name, phone, updated_at)
				VALUES (?, ?, ?, ?, ?, ?)
				ON CONFLICT(user_id) DO UPDATE SET
					username = CASE WHEN excluded.username != '' THEN excluded.username ELSE contacts.username END,
					first_name = CASE WHEN excluded.first_name != '' THEN excluded.first_name ELSE contacts.first_name END,
					last_name = CASE WHEN excluded.last_name != '' THEN excluded.last_name ELSE contacts.last_name END,
					phone = CASE WHEN excluded.phone != '' THEN excluded.phone ELSE contacts.phone END,
					updated_at = excluded.updated_at`,
				c.UserID, c.Username, c.FirstName, c.LastName, c.Phone, now); err != nil {
				return fmt.Errorf("upsert contact %d: %w", c.UserID, err)
			}
		}
		return nil
	})
}

// UpsertContact inserts or updates a single contact.
func (db *DB) UpsertContact(c *Contact) error {
	return db.ReplaceContacts([]Contact{*c})
}

// GetContact returns a contact by user id.
func (db *DB) GetContact(userID int64) (*Contact, error) {
	var c Contact
	err := db.QueryRow(`
		SELECT user_id, username, first_name, last_name, phone
		FROM contacts WHERE user_id = ?`, userID).
		Scan(&c.UserID, &c.Username, &c.FirstName, &c.LastName, &c.Phone)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// SearchContacts matches contacts by name, username or phone substring.
func (db *DB) SearchContacts(query string, limit int) ([]Contact, error) {
	if limit <= 0 {
		limit = 50
	}
	pattern := "%" + query + "%"
	rows, err := db.Query(`
		SELECT user_id, username, first_name, last_name, phone
		FROM contacts
		WHERE first_name LIKE ? OR last_name LIKE ? OR username LIKE ? OR phone LIKE ?
		ORDER BY first_name LIMIT ?`,
		pattern, pattern, pattern, pattern, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var contacts []Contact
	for rows.Next() {
		var c Contact
		if err := rows.Scan(&c.UserID, &c.Username, &c.FirstName, &c.LastName, &c.Phone); err != nil {
			return nil, err
		}
		contacts = append(contacts, c)
	}
	return contacts, rows.Err()
}
