package store

import (
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"planbook/internal/database"
	"planbook/internal/filter"
	"planbook/internal/model"
)

func setupTestDB(t *testing.T) (*EventStore, *MetadataStore) {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewEventStore(db, NewNotifier(logger)), NewMetadataStore(db)
}

func seedLookups(t *testing.T, s *EventStore) {
	t.Helper()
	stmts := []struct {
		query string
		args  []any
	}{
		{`INSERT INTO subjects (profile_id, subject_id, long_name, short_name) VALUES (?, ?, ?, ?)`,
			[]any{1, 10, "Mathematics", "Math"}},
		{`INSERT INTO teachers (profile_id, teacher_id, first_name, last_name) VALUES (?, ?, ?, ?)`,
			[]any{1, 7, "Jan", "Kowalski"}},
		{`INSERT INTO teams (profile_id, team_id, name, code) VALUES (?, ?, ?, ?)`,
			[]any{1, 3, "Class 3A", "3a"}},
		{`INSERT INTO event_types (profile_id, type_id, name, color) VALUES (?, ?, ?, ?)`,
			[]any{1, 2, "Exam", 0xFF0000}},
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt.query, stmt.args...); err != nil {
			t.Fatalf("seed lookup: %v", err)
		}
	}
}

func i64(v int64) *int64 { return &v }

func testEvent(profileID, id int64, date model.Date) *model.Event {
	return &model.Event{
		ProfileID: profileID,
		ID:        id,
		Kind:      model.KindEvent,
		Date:      date,
		Topic:     "test event",
	}
}

func mustAdd(t *testing.T, s *EventStore, e *model.Event) int64 {
	t.Helper()
	id, err := s.Add(e)
	if err != nil {
		t.Fatalf("add event: %v", err)
	}
	return id
}

func TestAddGeneratesIDs(t *testing.T) {
	s, _ := setupTestDB(t)
	date := model.NewDate(2026, time.March, 2)

	first := mustAdd(t, s, testEvent(1, 0, date))
	second := mustAdd(t, s, testEvent(1, 0, date))
	if first == 0 || second == 0 {
		t.Fatalf("generated ids = %d, %d, want non-zero", first, second)
	}
	if first == second {
		t.Fatalf("generated ids collide: %d", first)
	}

	// Ids are scoped per profile
	other := mustAdd(t, s, testEvent(2, 0, date))
	if other != 1 {
		t.Errorf("first id in fresh profile = %d, want 1", other)
	}
}

func TestUpsertIdempotence(t *testing.T) {
	s, _ := setupTestDB(t)
	date := model.NewDate(2026, time.March, 2)

	e := testEvent(1, 42, date)
	e.Topic = "first version"
	mustAdd(t, s, e)

	replacement := testEvent(1, 42, date)
	replacement.Topic = "second version"
	replacement.AddedManually = true
	mustAdd(t, s, replacement)

	events, err := s.GetAllNow(1)
	if err != nil {
		t.Fatalf("get all: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("got %d events after double insert, want 1", len(events))
	}
	if events[0].Topic != "second version" {
		t.Errorf("topic = %q, want the replacing write", events[0].Topic)
	}
	if !events[0].AddedManually {
		t.Error("added_manually not taken from the replacing write")
	}
}

func TestAddAllBatch(t *testing.T) {
	s, _ := setupTestDB(t)
	date := model.NewDate(2026, time.March, 2)

	batch := []*model.Event{
		testEvent(1, 0, date),
		testEvent(1, 0, date),
		testEvent(1, 100, date),
	}
	if err := s.AddAll(batch); err != nil {
		t.Fatalf("add all: %v", err)
	}

	if batch[0].ID == 0 || batch[1].ID == 0 {
		t.Errorf("batch ids = %d, %d, want generated", batch[0].ID, batch[1].ID)
	}
	if batch[0].ID == batch[1].ID {
		t.Errorf("batch ids collide: %d", batch[0].ID)
	}
	if batch[2].ID != 100 {
		t.Errorf("explicit id = %d, want 100", batch[2].ID)
	}

	events, err := s.GetAllNow(1)
	if err != nil {
		t.Fatalf("get all: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("got %d events, want 3", len(events))
	}
}

func TestConcurrentAdds(t *testing.T) {
	// File-backed on purpose: :memory: is pinned to one connection, and the
	// point here is concurrent write transactions queueing on the lock.
	db, err := database.Open(filepath.Join(t.TempDir(), "events.db"))
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s := NewEventStore(db, NewNotifier(logger))

	const writers = 8
	date := model.NewDate(2026, time.March, 2)

	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.Add(testEvent(1, 0, date)); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("concurrent add: %v", err)
	}

	events, err := s.GetAllNow(1)
	if err != nil {
		t.Fatalf("get all: %v", err)
	}
	if len(events) != writers {
		t.Fatalf("got %d events, want %d", len(events), writers)
	}
	seen := map[int64]bool{}
	for _, e := range events {
		if seen[e.ID] {
			t.Errorf("generated id %d assigned twice", e.ID)
		}
		seen[e.ID] = true
	}
}

func TestGetByIDNotFound(t *testing.T) {
	s, _ := setupTestDB(t)

	got, err := s.GetByIDNow(1, 999)
	if err != nil {
		t.Fatalf("get by id: %v", err)
	}
	if got != nil {
		t.Error("expected nil for nonexistent event")
	}
}

func TestJoinedColumns(t *testing.T) {
	s, m := setupTestDB(t)
	seedLookups(t, s)
	date := model.NewDate(2026, time.March, 2)

	e := testEvent(1, 5, date)
	e.SubjectID = i64(10)
	e.TeacherID = i64(7)
	e.TeamID = i64(3)
	e.EventTypeID = i64(2)
	mustAdd(t, s, e)

	got, err := s.GetByIDNow(1, 5)
	if err != nil {
		t.Fatalf("get by id: %v", err)
	}
	if got == nil {
		t.Fatal("event not found")
	}
	if got.TeacherFullName == nil || *got.TeacherFullName != "Jan Kowalski" {
		t.Errorf("teacher full name = %v, want Jan Kowalski", got.TeacherFullName)
	}
	if got.TypeName == nil || *got.TypeName != "Exam" {
		t.Errorf("type name = %v, want Exam", got.TypeName)
	}
	if got.TypeColor == nil || *got.TypeColor != 0xFF0000 {
		t.Errorf("type color = %v, want %d", got.TypeColor, 0xFF0000)
	}

	// No metadata yet: flags read as false
	if got.Seen || got.Notified {
		t.Error("absent metadata should read as not seen, not notified")
	}

	if err := m.SetSeen(1, model.ThingEvent, 5, true); err != nil {
		t.Fatalf("set seen: %v", err)
	}
	got, err = s.GetByIDNow(1, 5)
	if err != nil {
		t.Fatalf("get by id: %v", err)
	}
	if !got.Seen {
		t.Error("seen flag not joined in")
	}
	if got.Notified {
		t.Error("notified should still be false")
	}
}

func TestRemoveWithMetadataCascade(t *testing.T) {
	s, m := setupTestDB(t)
	date := model.NewDate(2026, time.March, 2)

	hw := testEvent(1, 11, date)
	hw.Kind = model.KindHomework
	mustAdd(t, s, hw)
	if err := m.SetNotified(1, model.ThingHomework, 11, true); err != nil {
		t.Fatalf("set notified: %v", err)
	}

	if err := s.RemoveWithMetadata(1, model.KindHomework, 11); err != nil {
		t.Fatalf("remove with metadata: %v", err)
	}

	if got, _ := s.GetByIDNow(1, 11); got != nil {
		t.Error("event row survived the cascade")
	}
	record, err := m.Get(1, model.ThingHomework, 11)
	if err != nil {
		t.Fatalf("get metadata: %v", err)
	}
	if record != nil {
		t.Error("homework metadata row survived the cascade")
	}
}

func TestRemoveWithMetadataMapsKinds(t *testing.T) {
	s, m := setupTestDB(t)
	date := model.NewDate(2026, time.March, 2)

	plain := testEvent(1, 20, date)
	mustAdd(t, s, plain)
	if err := m.SetSeen(1, model.ThingEvent, 20, true); err != nil {
		t.Fatalf("set seen: %v", err)
	}
	// A homework-tagged record under the same id must not be touched by a
	// plain-event removal.
	if err := m.SetSeen(1, model.ThingHomework, 20, true); err != nil {
		t.Fatalf("set seen: %v", err)
	}

	if err := s.RemoveWithMetadata(1, model.KindEvent, 20); err != nil {
		t.Fatalf("remove with metadata: %v", err)
	}

	if record, _ := m.Get(1, model.ThingEvent, 20); record != nil {
		t.Error("event-tagged metadata survived")
	}
	if record, _ := m.Get(1, model.ThingHomework, 20); record == nil {
		t.Error("homework-tagged metadata was deleted by a plain-event removal")
	}
}

func TestRemoveWithMetadataRollsBack(t *testing.T) {
	s, m := setupTestDB(t)
	date := model.NewDate(2026, time.March, 2)

	hw := testEvent(1, 11, date)
	hw.Kind = model.KindHomework
	mustAdd(t, s, hw)
	if err := m.SetSeen(1, model.ThingHomework, 11, true); err != nil {
		t.Fatalf("set seen: %v", err)
	}

	// Make the second statement of the cascade fail
	if _, err := s.db.Exec(
		`CREATE TRIGGER metadata_delete_fails BEFORE DELETE ON metadata
		 BEGIN SELECT RAISE(ABORT, 'metadata delete rejected'); END`,
	); err != nil {
		t.Fatalf("create trigger: %v", err)
	}

	if err := s.RemoveWithMetadata(1, model.KindHomework, 11); err == nil {
		t.Fatal("expected the cascade to fail")
	}

	// Neither half may have taken effect
	got, err := s.GetByIDNow(1, 11)
	if err != nil {
		t.Fatalf("get by id: %v", err)
	}
	if got == nil {
		t.Error("event row deleted despite the rolled-back cascade")
	}
	record, err := m.Get(1, model.ThingHomework, 11)
	if err != nil {
		t.Fatalf("get metadata: %v", err)
	}
	if record == nil {
		t.Error("metadata row deleted despite the rolled-back cascade")
	}
}

func TestKindByIDIgnoresBlacklist(t *testing.T) {
	s, _ := setupTestDB(t)
	date := model.NewDate(2026, time.March, 2)

	hw := testEvent(1, 11, date)
	hw.Kind = model.KindHomework
	mustAdd(t, s, hw)
	if err := s.SetBlacklisted(1, 11, true); err != nil {
		t.Fatalf("set blacklisted: %v", err)
	}

	kind, found, err := s.KindByID(1, 11)
	if err != nil {
		t.Fatalf("kind by id: %v", err)
	}
	if !found {
		t.Fatal("blacklisted row not found by kind lookup")
	}
	if kind != model.KindHomework {
		t.Errorf("kind = %v, want homework", kind)
	}

	_, found, err = s.KindByID(1, 999)
	if err != nil {
		t.Fatalf("kind by id: %v", err)
	}
	if found {
		t.Error("nonexistent row reported as found")
	}
}

func TestRemoveByTeamSkipsMetadata(t *testing.T) {
	s, m := setupTestDB(t)
	date := model.NewDate(2026, time.March, 2)

	e := testEvent(1, 30, date)
	e.TeamID = i64(3)
	mustAdd(t, s, e)
	if err := m.SetSeen(1, model.ThingEvent, 30, true); err != nil {
		t.Fatalf("set seen: %v", err)
	}

	if err := s.RemoveByTeam(3, 30); err != nil {
		t.Fatalf("remove by team: %v", err)
	}

	if got, _ := s.GetByIDNow(1, 30); got != nil {
		t.Error("event survived team-scoped delete")
	}
	record, err := m.Get(1, model.ThingEvent, 30)
	if err != nil {
		t.Fatalf("get metadata: %v", err)
	}
	if record == nil {
		t.Error("team-scoped delete must not cascade into metadata")
	}
}

func TestBlacklistedHiddenEverywhere(t *testing.T) {
	s, _ := setupTestDB(t)
	date := model.NewDate(2026, time.March, 2)

	mustAdd(t, s, testEvent(1, 40, date))
	if err := s.SetBlacklisted(1, 40, true); err != nil {
		t.Fatalf("set blacklisted: %v", err)
	}

	if events, _ := s.GetAllNow(1); len(events) != 0 {
		t.Errorf("blacklisted event visible in full list (%d rows)", len(events))
	}
	if events, _ := s.GetAllByDateNow(1, date); len(events) != 0 {
		t.Error("blacklisted event visible in date query")
	}
	if got, _ := s.GetByIDNow(1, 40); got != nil {
		t.Error("blacklisted event visible by id")
	}

	if err := s.SetBlacklisted(1, 40, false); err != nil {
		t.Fatalf("unset blacklisted: %v", err)
	}
	if got, _ := s.GetByIDNow(1, 40); got == nil {
		t.Error("event still hidden after un-blacklisting")
	}
}

func TestConvertOlderToManualThenPurge(t *testing.T) {
	s, _ := setupTestDB(t)
	cutoff := model.NewDate(2026, time.March, 10)

	past := testEvent(1, 0, model.NewDate(2026, time.March, 5))
	onCutoff := testEvent(1, 0, cutoff)
	future := testEvent(1, 0, model.NewDate(2026, time.March, 20))
	manualFuture := testEvent(1, 0, model.NewDate(2026, time.March, 21))
	manualFuture.AddedManually = true
	for _, e := range []*model.Event{past, onCutoff, future, manualFuture} {
		mustAdd(t, s, e)
	}

	if err := s.ConvertOlderToManual(1, cutoff); err != nil {
		t.Fatalf("convert older to manual: %v", err)
	}
	if err := s.RemoveNotManual(1); err != nil {
		t.Fatalf("remove not manual: %v", err)
	}

	events, err := s.GetAllNow(1)
	if err != nil {
		t.Fatalf("get all: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2 (frozen past + manual future)", len(events))
	}
	for _, e := range events {
		if e.ID == onCutoff.ID || e.ID == future.ID {
			t.Errorf("non-manual event %d dated on/after cutoff survived the purge", e.ID)
		}
	}
}

func TestRemoveFuture(t *testing.T) {
	s, _ := setupTestDB(t)
	today := model.NewDate(2026, time.March, 10)

	past := testEvent(1, 0, model.NewDate(2026, time.March, 9))
	todayEvent := testEvent(1, 0, today)
	future := testEvent(1, 0, model.NewDate(2026, time.April, 1))
	manualFuture := testEvent(1, 0, model.NewDate(2026, time.April, 2))
	manualFuture.AddedManually = true
	for _, e := range []*model.Event{past, todayEvent, future, manualFuture} {
		mustAdd(t, s, e)
	}

	if err := s.RemoveFuture(1, today); err != nil {
		t.Fatalf("remove future: %v", err)
	}

	events, err := s.GetAllNow(1)
	if err != nil {
		t.Fatalf("get all: %v", err)
	}
	surviving := map[int64]bool{}
	for _, e := range events {
		surviving[e.ID] = true
	}
	if !surviving[past.ID] {
		t.Error("past event removed by future purge")
	}
	if surviving[todayEvent.ID] || surviving[future.ID] {
		t.Error("non-manual event dated on/after today survived")
	}
	if !surviving[manualFuture.ID] {
		t.Error("manually-added future event removed")
	}
}

func TestClearIsProfileScoped(t *testing.T) {
	s, _ := setupTestDB(t)
	date := model.NewDate(2026, time.March, 2)

	mustAdd(t, s, testEvent(1, 0, date))
	mustAdd(t, s, testEvent(2, 0, date))

	if err := s.Clear(1); err != nil {
		t.Fatalf("clear: %v", err)
	}

	if events, _ := s.GetAllNow(1); len(events) != 0 {
		t.Error("profile 1 still has events after clear")
	}
	if events, _ := s.GetAllNow(2); len(events) != 1 {
		t.Error("clear leaked into another profile")
	}
}

func TestSnapshotOrdering(t *testing.T) {
	s, _ := setupTestDB(t)
	date := model.NewDate(2026, time.March, 2)

	t1 := time.Date(2026, time.March, 1, 10, 0, 0, 0, time.UTC)
	t2 := time.Date(2026, time.March, 1, 11, 0, 0, 0, time.UTC)
	t3 := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)

	nine := model.NewClockTime(9, 0, 0)
	eight := model.NewClockTime(8, 0, 0)

	a := testEvent(1, 1, date)
	a.StartTime = &nine
	a.AddedDate = t2
	b := testEvent(1, 2, date)
	b.StartTime = &eight
	b.AddedDate = t1
	c := testEvent(1, 3, date)
	c.StartTime = &eight
	c.AddedDate = t3
	for _, e := range []*model.Event{a, b, c} {
		mustAdd(t, s, e)
	}

	events, err := s.GetAllNow(1)
	if err != nil {
		t.Fatalf("get all: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("got %d events, want 3", len(events))
	}
	// (startTime, addedDate) ascending: 08:00/t1, 08:00/t3, 09:00/t2
	want := []int64{2, 3, 1}
	for i, id := range want {
		if events[i].ID != id {
			t.Errorf("snapshot position %d = event %d, want %d", i, events[i].ID, id)
		}
	}
}

func TestSetSeenByDate(t *testing.T) {
	s, m := setupTestDB(t)
	target := model.NewDate(2026, time.March, 2)
	other := model.NewDate(2026, time.March, 3)

	plain := testEvent(1, 1, target)
	hw := testEvent(1, 2, target)
	hw.Kind = model.KindHomework
	change := testEvent(1, 3, target)
	change.Kind = model.KindLessonChange
	offDate := testEvent(1, 4, other)
	for _, e := range []*model.Event{plain, hw, change, offDate} {
		mustAdd(t, s, e)
	}

	seedFlags := []struct {
		thingType model.ThingType
		thingID   int64
	}{
		{model.ThingEvent, 1},
		{model.ThingHomework, 2},
		{model.ThingLessonChange, 3},
		{model.ThingEvent, 4},
	}
	for _, f := range seedFlags {
		if err := m.SetNotified(1, f.thingType, f.thingID, true); err != nil {
			t.Fatalf("seed metadata: %v", err)
		}
	}

	if err := s.SetSeenByDate(1, target, true); err != nil {
		t.Fatalf("set seen by date: %v", err)
	}

	for _, f := range seedFlags[:3] {
		record, err := m.Get(1, f.thingType, f.thingID)
		if err != nil {
			t.Fatalf("get metadata: %v", err)
		}
		if record == nil || !record.Seen {
			t.Errorf("thing (%d, %d) not marked seen", f.thingType, f.thingID)
		}
	}

	record, err := m.Get(1, model.ThingEvent, 4)
	if err != nil {
		t.Fatalf("get metadata: %v", err)
	}
	if record == nil || record.Seen {
		t.Error("metadata for another date was touched")
	}
}

func TestNotNotifiedFilter(t *testing.T) {
	s, m := setupTestDB(t)
	date := model.NewDate(2026, time.March, 2)

	mustAdd(t, s, testEvent(1, 1, date))
	mustAdd(t, s, testEvent(1, 2, date))
	if err := m.SetNotified(1, model.ThingEvent, 1, true); err != nil {
		t.Fatalf("set notified: %v", err)
	}
	if err := m.SetNotified(1, model.ThingEvent, 2, false); err != nil {
		t.Fatalf("set notified: %v", err)
	}

	events, err := s.GetNotNotifiedNow(1)
	if err != nil {
		t.Fatalf("get not notified: %v", err)
	}
	if len(events) != 1 || events[0].ID != 2 {
		t.Fatalf("not-notified result = %v, want only event 2", events)
	}
}

func TestGetAllByDateTime(t *testing.T) {
	s, _ := setupTestDB(t)
	date := model.NewDate(2026, time.March, 2)

	eight := model.NewClockTime(8, 0, 0)
	nine := model.NewClockTime(9, 0, 0)
	a := testEvent(1, 1, date)
	a.StartTime = &eight
	b := testEvent(1, 2, date)
	b.StartTime = &nine
	mustAdd(t, s, a)
	mustAdd(t, s, b)

	events, err := s.GetAllByDateTimeNow(1, date, &eight)
	if err != nil {
		t.Fatalf("get by date-time: %v", err)
	}
	if len(events) != 1 || events[0].ID != 1 {
		t.Fatalf("date-time result = %v, want only event 1", events)
	}

	// Nil time falls back to the whole date
	events, err = s.GetAllByDateTimeNow(1, date, nil)
	if err != nil {
		t.Fatalf("get by date-time: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("got %d events for nil time, want 2", len(events))
	}
}

func TestGetAllByKind(t *testing.T) {
	s, _ := setupTestDB(t)
	date := model.NewDate(2026, time.March, 2)

	plain := testEvent(1, 1, date)
	hw := testEvent(1, 2, date)
	hw.Kind = model.KindHomework
	hwOtherDate := testEvent(1, 3, model.NewDate(2026, time.March, 5))
	hwOtherDate.Kind = model.KindHomework
	for _, e := range []*model.Event{plain, hw, hwOtherDate} {
		mustAdd(t, s, e)
	}

	events, err := s.GetAllByKindNow(1, model.KindHomework, filter.ByDate(date))
	if err != nil {
		t.Fatalf("get by kind: %v", err)
	}
	if len(events) != 1 || events[0].ID != 2 {
		t.Fatalf("by-kind result = %v, want only event 2", events)
	}
}

func TestProfileIDs(t *testing.T) {
	s, _ := setupTestDB(t)
	date := model.NewDate(2026, time.March, 2)

	mustAdd(t, s, testEvent(3, 0, date))
	mustAdd(t, s, testEvent(1, 0, date))
	mustAdd(t, s, testEvent(1, 0, date))

	ids, err := s.ProfileIDs()
	if err != nil {
		t.Fatalf("profile ids: %v", err)
	}
	if len(ids) != 2 || ids[0] != 1 || ids[1] != 3 {
		t.Fatalf("profile ids = %v, want [1 3]", ids)
	}
}
