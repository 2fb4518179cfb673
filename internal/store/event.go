package store

import (
	"database/sql"
	"fmt"
	"time"

	"planbook/internal/filter"
	"planbook/internal/model"
)

// EventStore is the query and mutation engine for events. All reads go
// through one fixed joined select; the caller only varies the filter. All
// writes broadcast on the notifier after commit so live queries re-emit.
type EventStore struct {
	db       *sql.DB
	notifier *Notifier
}

func NewEventStore(db *sql.DB, notifier *Notifier) *EventStore {
	return &EventStore{db: db, notifier: notifier}
}

const eventCols = `events.profile_id, events.event_id, events.kind, events.event_date, events.start_time,
       events.topic, events.color, events.added_date, events.added_manually, events.blacklisted,
       events.team_id, events.subject_id, events.teacher_id, events.event_type_id`

// The metadata join is restricted to the event and homework thing-types;
// lesson-change metadata is only reachable through the bulk seen update.
const selectFull = `SELECT ` + eventCols + `,
       teachers.first_name || ' ' || teachers.last_name AS teacher_full_name,
       event_types.name AS type_name,
       event_types.color AS type_color,
       metadata.seen,
       metadata.notified
FROM events
LEFT JOIN subjects ON subjects.profile_id = events.profile_id AND subjects.subject_id = events.subject_id
LEFT JOIN teachers ON teachers.profile_id = events.profile_id AND teachers.teacher_id = events.teacher_id
LEFT JOIN teams ON teams.profile_id = events.profile_id AND teams.team_id = events.team_id
LEFT JOIN event_types ON event_types.profile_id = events.profile_id AND event_types.type_id = events.event_type_id
LEFT JOIN metadata ON metadata.profile_id = events.profile_id AND metadata.thing_id = events.event_id
       AND metadata.thing_type IN (?, ?)
WHERE events.profile_id = ? AND events.blacklisted = 0 AND `

// Display timelines want date-first ordering; notification scans want
// time-then-insertion. Callers depend on both, separately.
const (
	orderLive     = ` ORDER BY events.event_date ASC, events.start_time ASC`
	orderSnapshot = ` ORDER BY events.start_time ASC, events.added_date ASC`
)

func scanEventFull(scanner interface{ Scan(...any) error }) (*model.EventFull, error) {
	var (
		e             model.EventFull
		kind          int
		dateStr       string
		startTime     sql.NullString
		color         sql.NullInt64
		addedManually int
		blacklisted   int
		teamID        sql.NullInt64
		subjectID     sql.NullInt64
		teacherID     sql.NullInt64
		eventTypeID   sql.NullInt64
		teacherName   sql.NullString
		typeName      sql.NullString
		typeColor     sql.NullInt64
		seen          sql.NullInt64
		notified      sql.NullInt64
	)

	err := scanner.Scan(
		&e.ProfileID, &e.ID, &kind, &dateStr, &startTime,
		&e.Topic, &color, &e.AddedDate, &addedManually, &blacklisted,
		&teamID, &subjectID, &teacherID, &eventTypeID,
		&teacherName, &typeName, &typeColor, &seen, &notified,
	)
	if err != nil {
		return nil, err
	}

	e.Kind = model.EventKind(kind)
	date, err := model.ParseDate(dateStr)
	if err != nil {
		return nil, fmt.Errorf("stored date: %w", err)
	}
	e.Date = date
	if startTime.Valid {
		t, err := model.ParseClockTime(startTime.String)
		if err != nil {
			return nil, fmt.Errorf("stored start time: %w", err)
		}
		e.StartTime = &t
	}
	if color.Valid {
		e.Color = &color.Int64
	}
	e.AddedManually = addedManually != 0
	e.Blacklisted = blacklisted != 0
	if teamID.Valid {
		e.TeamID = &teamID.Int64
	}
	if subjectID.Valid {
		e.SubjectID = &subjectID.Int64
	}
	if teacherID.Valid {
		e.TeacherID = &teacherID.Int64
	}
	if eventTypeID.Valid {
		e.EventTypeID = &eventTypeID.Int64
	}
	if teacherName.Valid {
		e.TeacherFullName = &teacherName.String
	}
	if typeName.Valid {
		e.TypeName = &typeName.String
	}
	if typeColor.Valid {
		e.TypeColor = &typeColor.Int64
	}
	// Absent metadata reads as not seen, not notified
	e.Seen = seen.Valid && seen.Int64 != 0
	e.Notified = notified.Valid && notified.Int64 != 0

	return &e, nil
}

func (s *EventStore) queryFull(profileID int64, f filter.Filter, order string) ([]model.EventFull, error) {
	args := []any{int(model.ThingEvent), int(model.ThingHomework), profileID}
	args = append(args, f.Args()...)

	rows, err := s.db.Query(selectFull+f.Clause()+order, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []model.EventFull
	for rows.Next() {
		e, err := scanEventFull(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, *e)
	}
	return events, rows.Err()
}

// --- Snapshot reads ---

func (s *EventStore) GetAllNow(profileID int64) ([]model.EventFull, error) {
	return s.GetAllWhereNow(profileID, filter.All())
}

func (s *EventStore) GetAllWhereNow(profileID int64, f filter.Filter) ([]model.EventFull, error) {
	return s.queryFull(profileID, f, orderSnapshot)
}

func (s *EventStore) GetAllByKindNow(profileID int64, kind model.EventKind, f filter.Filter) ([]model.EventFull, error) {
	return s.GetAllWhereNow(profileID, filter.ByKind(kind).And(f))
}

func (s *EventStore) GetAllByDateNow(profileID int64, date model.Date) ([]model.EventFull, error) {
	return s.GetAllWhereNow(profileID, filter.ByDate(date))
}

func (s *EventStore) GetAllByDateTimeNow(profileID int64, date model.Date, t *model.ClockTime) ([]model.EventFull, error) {
	return s.GetAllWhereNow(profileID, filter.ByDateTime(date, t))
}

func (s *EventStore) GetNotNotifiedNow(profileID int64) ([]model.EventFull, error) {
	return s.GetAllWhereNow(profileID, filter.NotNotified())
}

// KindByID reads an event's kind directly, blacklisted rows included.
// Deletion paths need it: the metadata cascade must map the kind of hidden
// rows too, and the filtered queries never return those.
func (s *EventStore) KindByID(profileID, eventID int64) (model.EventKind, bool, error) {
	var kind int
	err := s.db.QueryRow(
		`SELECT kind FROM events WHERE profile_id = ? AND event_id = ?`,
		profileID, eventID,
	).Scan(&kind)
	if err == sql.ErrNoRows {
		return model.KindEvent, false, nil
	}
	if err != nil {
		return model.KindEvent, false, fmt.Errorf("event kind: %w", err)
	}
	return model.EventKind(kind), true, nil
}

// GetByIDNow returns the event with the given id, or nil when it does not
// exist (or is blacklisted). Uniqueness is only guaranteed through the
// insert path; if several rows match, the first one wins.
func (s *EventStore) GetByIDNow(profileID, eventID int64) (*model.EventFull, error) {
	events, err := s.GetAllWhereNow(profileID, filter.ByID(eventID))
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, nil
	}
	return &events[0], nil
}

// --- Mutations ---

func insertArgs(e *model.Event, id int64, added time.Time) []any {
	var startTime sql.NullString
	if e.StartTime != nil {
		startTime = sql.NullString{String: e.StartTime.String(), Valid: true}
	}
	return []any{
		e.ProfileID, id, int(e.Kind), e.Date.String(), startTime,
		e.Topic, nullInt64(e.Color), added.UTC(), boolInt(e.AddedManually), boolInt(e.Blacklisted),
		nullInt64(e.TeamID), nullInt64(e.SubjectID), nullInt64(e.TeacherID), nullInt64(e.EventTypeID),
	}
}

const insertEvent = `INSERT OR REPLACE INTO events
    (profile_id, event_id, kind, event_date, start_time,
     topic, color, added_date, added_manually, blacklisted,
     team_id, subject_id, teacher_id, event_type_id)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

// Add upserts one event. A zero ID is assigned the next free id within the
// profile; a duplicate (profile, id) key is overwritten, last write wins.
// The assigned id and added date are written back into e and returned.
func (s *EventStore) Add(e *model.Event) (int64, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	id, added, err := addInTx(tx, e)
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}

	e.ID = id
	e.AddedDate = added
	s.notifier.Broadcast()
	return id, nil
}

// AddAll upserts a batch of events in one transaction.
func (s *EventStore) AddAll(events []*model.Event) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, e := range events {
		id, added, err := addInTx(tx, e)
		if err != nil {
			return err
		}
		e.ID = id
		e.AddedDate = added
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	s.notifier.Broadcast()
	return nil
}

func addInTx(tx *sql.Tx, e *model.Event) (int64, time.Time, error) {
	id := e.ID
	if id == 0 {
		err := tx.QueryRow(
			`SELECT IFNULL(MAX(event_id), 0) + 1 FROM events WHERE profile_id = ?`,
			e.ProfileID,
		).Scan(&id)
		if err != nil {
			return 0, time.Time{}, fmt.Errorf("next event id: %w", err)
		}
	}

	added := e.AddedDate
	if added.IsZero() {
		added = time.Now().UTC()
	}

	if _, err := tx.Exec(insertEvent, insertArgs(e, id, added)...); err != nil {
		return 0, time.Time{}, fmt.Errorf("insert event: %w", err)
	}
	return id, added, nil
}

// Clear deletes every event for a profile. Metadata is left alone: this is
// a full-resync maintenance step and the caller owns metadata cleanup.
func (s *EventStore) Clear(profileID int64) error {
	return s.exec("clear events", `DELETE FROM events WHERE profile_id = ?`, profileID)
}

// Remove deletes one event by primary key without touching metadata.
func (s *EventStore) Remove(profileID, eventID int64) error {
	return s.exec("remove event", `DELETE FROM events WHERE profile_id = ? AND event_id = ?`, profileID, eventID)
}

// RemoveWithMetadata deletes an event and its metadata record in one
// transaction. The metadata key follows the kind's thing-type mapping, so
// homework rows drop their homework-tagged metadata and everything else
// drops the event-tagged record. Partial deletion never survives: both
// statements commit or both roll back.
func (s *EventStore) RemoveWithMetadata(profileID int64, kind model.EventKind, eventID int64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		`DELETE FROM events WHERE profile_id = ? AND event_id = ?`,
		profileID, eventID,
	); err != nil {
		return fmt.Errorf("remove event: %w", err)
	}

	if _, err := tx.Exec(
		`DELETE FROM metadata WHERE profile_id = ? AND thing_type = ? AND thing_id = ?`,
		profileID, int(kind.ThingType()), eventID,
	); err != nil {
		return fmt.Errorf("remove metadata: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	s.notifier.Broadcast()
	return nil
}

// RemoveByTeam deletes an event by its team-scoped key. Unlike the
// id-scoped removal this intentionally does not cascade into metadata.
func (s *EventStore) RemoveByTeam(teamID, eventID int64) error {
	return s.exec("remove by team", `DELETE FROM events WHERE team_id = ? AND event_id = ?`, teamID, eventID)
}

// ConvertOlderToManual marks every event dated strictly before cutoff as
// manually added, freezing it against later non-manual purges.
func (s *EventStore) ConvertOlderToManual(profileID int64, cutoff model.Date) error {
	return s.exec("convert older to manual",
		`UPDATE events SET added_manually = 1 WHERE profile_id = ? AND event_date < ?`,
		profileID, cutoff.String())
}

// RemoveNotManual deletes every synced (non-manual) event for a profile.
func (s *EventStore) RemoveNotManual(profileID int64) error {
	return s.exec("remove not manual",
		`DELETE FROM events WHERE profile_id = ? AND added_manually = 0`, profileID)
}

// RemoveFuture deletes non-manual events dated on or after today, clearing
// stale synced data ahead of a resync while keeping user-added entries.
func (s *EventStore) RemoveFuture(profileID int64, today model.Date) error {
	return s.exec("remove future",
		`DELETE FROM events WHERE profile_id = ? AND added_manually = 0 AND event_date >= ?`,
		profileID, today.String())
}

// SetBlacklisted toggles an event's visibility without deleting it.
func (s *EventStore) SetBlacklisted(profileID, eventID int64, blacklisted bool) error {
	return s.exec("set blacklisted",
		`UPDATE events SET blacklisted = ? WHERE profile_id = ? AND event_id = ?`,
		boolInt(blacklisted), profileID, eventID)
}

// SetSeenByDate bulk-updates the seen flag for all metadata whose thing is
// an event dated date, across the event, lesson-change and homework
// thing-types. Single statement, so it is atomic on its own. It writes the
// metadata table only, which live queries do not observe.
func (s *EventStore) SetSeenByDate(profileID int64, date model.Date, seen bool) error {
	_, err := s.db.Exec(
		`UPDATE metadata SET seen = ?
		 WHERE profile_id = ? AND thing_type IN (?, ?, ?)
		   AND thing_id IN (SELECT event_id FROM events WHERE profile_id = ? AND event_date = ?)`,
		boolInt(seen), profileID,
		int(model.ThingEvent), int(model.ThingLessonChange), int(model.ThingHomework),
		profileID, date.String(),
	)
	if err != nil {
		return fmt.Errorf("set seen by date: %w", err)
	}
	return nil
}

// ProfileIDs lists the distinct profiles that currently have events. Used by
// the maintenance scheduler.
func (s *EventStore) ProfileIDs() ([]int64, error) {
	rows, err := s.db.Query(`SELECT DISTINCT profile_id FROM events ORDER BY profile_id`)
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan profile id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *EventStore) exec(op, query string, args ...any) error {
	if _, err := s.db.Exec(query, args...); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	s.notifier.Broadcast()
	return nil
}

func nullInt64(p *int64) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *p, Valid: true}
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
