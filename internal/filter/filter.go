// Package filter builds the predicate fragments the query engine appends to
// its fixed base query. The set of intents is closed and fragments compose
// by conjunction only; every literal is passed as a bind parameter, never
// spliced into SQL text, so caller input cannot change the query shape.
package filter

import (
	"fmt"
	"strings"

	"planbook/internal/model"
)

// Filter is one composed predicate. The zero value is not valid; start from
// All or one of the intent constructors.
type Filter struct {
	clause string
	args   []any
}

// All matches every row.
func All() Filter {
	return Filter{clause: "1"}
}

// ByID matches a single event id.
func ByID(id int64) Filter {
	return Filter{clause: "events.event_id = ?", args: []any{id}}
}

// ByKind matches one event sub-kind.
func ByKind(kind model.EventKind) Filter {
	return Filter{clause: "events.kind = ?", args: []any{int(kind)}}
}

// ByDate matches events on one calendar date.
func ByDate(date model.Date) Filter {
	return Filter{clause: "events.event_date = ?", args: []any{date.String()}}
}

// ByDateTime matches events on a date at a specific start time. A nil time
// falls back to the date-only filter.
func ByDateTime(date model.Date, t *model.ClockTime) Filter {
	if t == nil {
		return ByDate(date)
	}
	return Filter{
		clause: "events.event_date = ? AND events.start_time = ?",
		args:   []any{date.String(), t.String()},
	}
}

// NotNotified matches events whose metadata says no notification has been
// shown yet.
func NotNotified() Filter {
	return Filter{clause: "metadata.notified = 0"}
}

// And conjoins two filters. Conjunction is the only composition offered.
func (f Filter) And(other Filter) Filter {
	return Filter{
		clause: f.clause + " AND " + other.clause,
		args:   append(append([]any{}, f.args...), other.args...),
	}
}

// Clause returns the SQL fragment with ? placeholders.
func (f Filter) Clause() string {
	if f.clause == "" {
		return "1"
	}
	return f.clause
}

// Args returns the bind values for Clause, in order.
func (f Filter) Args() []any {
	return f.args
}

// Params carries caller-supplied filter intent in string form, as it arrives
// from query parameters. Empty fields are ignored.
type Params struct {
	Date        string
	Time        string
	Kind        string
	NotNotified bool
}

// FromParams validates the string inputs and composes the matching filter.
// Parse failures surface the model validation errors (ErrInvalidDate,
// ErrInvalidTime) so callers can distinguish them from storage errors.
func FromParams(p Params) (Filter, error) {
	f := All()

	if p.Date != "" {
		date, err := model.ParseDate(p.Date)
		if err != nil {
			return Filter{}, err
		}
		if p.Time != "" {
			t, err := model.ParseClockTime(p.Time)
			if err != nil {
				return Filter{}, err
			}
			f = f.And(ByDateTime(date, &t))
		} else {
			f = f.And(ByDate(date))
		}
	} else if p.Time != "" {
		return Filter{}, fmt.Errorf("%w: time filter requires a date", model.ErrInvalidTime)
	}

	if p.Kind != "" {
		kind, ok := model.ParseEventKind(strings.TrimSpace(p.Kind))
		if !ok {
			return Filter{}, fmt.Errorf("unknown event kind %q", p.Kind)
		}
		f = f.And(ByKind(kind))
	}

	if p.NotNotified {
		f = f.And(NotNotified())
	}

	return f, nil
}
