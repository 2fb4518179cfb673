package model

// ThingType tags which logical category a metadata record describes. All
// three categories physically live in the events table.
type ThingType int

const (
	ThingEvent        ThingType = 1
	ThingLessonChange ThingType = 2
	ThingHomework     ThingType = 3
)

// Metadata records per-profile seen/notified state for one thing. It weakly
// references an event by (ProfileID, ThingID); no foreign key is enforced,
// because some deletion paths intentionally leave metadata alone.
type Metadata struct {
	ProfileID int64     `json:"profile_id"`
	ThingType ThingType `json:"thing_type"`
	ThingID   int64     `json:"thing_id"`
	Seen      bool      `json:"seen"`
	Notified  bool      `json:"notified"`
}
