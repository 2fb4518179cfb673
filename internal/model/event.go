package model

import (
	"fmt"
	"time"
)

// EventKind classifies an event row. Homework and lesson changes live in the
// same table as plain events but are tagged differently in metadata.
type EventKind int

const (
	KindEvent EventKind = iota
	KindHomework
	KindLessonChange
)

var kindNames = map[EventKind]string{
	KindEvent:        "event",
	KindHomework:     "homework",
	KindLessonChange: "lesson_change",
}

func (k EventKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "event"
}

// ParseEventKind maps a kind name back to its EventKind. Unknown names
// report ok=false.
func ParseEventKind(s string) (EventKind, bool) {
	for k, name := range kindNames {
		if name == s {
			return k, true
		}
	}
	return KindEvent, false
}

func (k EventKind) MarshalJSON() ([]byte, error) {
	return []byte(`"` + k.String() + `"`), nil
}

func (k *EventKind) UnmarshalJSON(data []byte) error {
	if len(data) < 2 || data[0] != '"' || data[len(data)-1] != '"' {
		return fmt.Errorf("invalid event kind: %s", data)
	}
	kind, ok := ParseEventKind(string(data[1 : len(data)-1]))
	if !ok {
		return fmt.Errorf("unknown event kind %q", data[1:len(data)-1])
	}
	*k = kind
	return nil
}

// ThingType returns the metadata thing-type a row of this kind is tagged
// with. Homework gets its own tag; every other kind, lesson changes
// included, is tagged as a plain event.
func (k EventKind) ThingType() ThingType {
	if k == KindHomework {
		return ThingHomework
	}
	return ThingEvent
}

// Event is one calendar entry scoped to a profile. Identity is
// (ProfileID, ID); ID is generated on insert when zero.
type Event struct {
	ProfileID     int64      `json:"profile_id"`
	ID            int64      `json:"id"`
	Kind          EventKind  `json:"kind"`
	Date          Date       `json:"date"`
	StartTime     *ClockTime `json:"start_time"`
	Topic         string     `json:"topic"`
	Color         *int64     `json:"color"`
	AddedDate     time.Time  `json:"added_date"`
	AddedManually bool       `json:"added_manually"`
	Blacklisted   bool       `json:"blacklisted"`
	TeamID        *int64     `json:"team_id"`
	SubjectID     *int64     `json:"subject_id"`
	TeacherID     *int64     `json:"teacher_id"`
	EventTypeID   *int64     `json:"event_type_id"`
}

// EventFull is an Event plus the columns joined in by the query layer:
// lookup-table display fields and the seen/notified metadata flags. Rows
// without a metadata record read as not seen, not notified.
type EventFull struct {
	Event
	TeacherFullName *string `json:"teacher_full_name"`
	TypeName        *string `json:"type_name"`
	TypeColor       *int64  `json:"type_color"`
	Seen            bool    `json:"seen"`
	Notified        bool    `json:"notified"`
}
