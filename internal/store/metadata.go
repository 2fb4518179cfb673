package store

import (
	"database/sql"
	"fmt"

	"planbook/internal/model"
)

// MetadataStore manages the seen/notified linkage records. Records are
// created lazily on the first flag write; reads of absent records return
// nil. Metadata writes do not signal live event queries, which observe the
// events table only.
type MetadataStore struct {
	db *sql.DB
}

func NewMetadataStore(db *sql.DB) *MetadataStore {
	return &MetadataStore{db: db}
}

func (s *MetadataStore) Get(profileID int64, thingType model.ThingType, thingID int64) (*model.Metadata, error) {
	var (
		m        model.Metadata
		seen     int
		notified int
	)
	err := s.db.QueryRow(
		`SELECT profile_id, thing_type, thing_id, seen, notified
		 FROM metadata WHERE profile_id = ? AND thing_type = ? AND thing_id = ?`,
		profileID, int(thingType), thingID,
	).Scan(&m.ProfileID, &m.ThingType, &m.ThingID, &seen, &notified)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get metadata: %w", err)
	}
	m.Seen = seen != 0
	m.Notified = notified != 0
	return &m, nil
}

// SetSeen upserts the seen flag, creating the record if needed.
func (s *MetadataStore) SetSeen(profileID int64, thingType model.ThingType, thingID int64, seen bool) error {
	return s.upsertFlag("seen", profileID, thingType, thingID, seen)
}

// SetNotified upserts the notified flag, creating the record if needed.
func (s *MetadataStore) SetNotified(profileID int64, thingType model.ThingType, thingID int64, notified bool) error {
	return s.upsertFlag("notified", profileID, thingType, thingID, notified)
}

func (s *MetadataStore) upsertFlag(column string, profileID int64, thingType model.ThingType, thingID int64, value bool) error {
	// column is one of the two fixed flag names, never caller input
	query := `INSERT INTO metadata (profile_id, thing_type, thing_id, ` + column + `)
	          VALUES (?, ?, ?, ?)
	          ON CONFLICT (profile_id, thing_type, thing_id)
	          DO UPDATE SET ` + column + ` = excluded.` + column
	if _, err := s.db.Exec(query, profileID, int(thingType), thingID, boolInt(value)); err != nil {
		return fmt.Errorf("set %s: %w", column, err)
	}
	return nil
}

// Delete removes a metadata record. Deleting an absent record is a no-op.
func (s *MetadataStore) Delete(profileID int64, thingType model.ThingType, thingID int64) error {
	if _, err := s.db.Exec(
		`DELETE FROM metadata WHERE profile_id = ? AND thing_type = ? AND thing_id = ?`,
		profileID, int(thingType), thingID,
	); err != nil {
		return fmt.Errorf("delete metadata: %w", err)
	}
	return nil
}
