package model

import (
	"errors"
	"testing"
	"time"
)

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2026-03-02")
	if err != nil {
		t.Fatalf("parse date: %v", err)
	}
	if d.Year != 2026 || d.Month != time.March || d.Day != 2 {
		t.Errorf("parsed %v", d)
	}
	if d.String() != "2026-03-02" {
		t.Errorf("round trip = %q", d.String())
	}
}

func TestParseDateRejectsMalformed(t *testing.T) {
	for _, bad := range []string{"", "02.03.2026", "2026-3-2", "2026-13-01", "tomorrow"} {
		if _, err := ParseDate(bad); !errors.Is(err, ErrInvalidDate) {
			t.Errorf("ParseDate(%q) err = %v, want ErrInvalidDate", bad, err)
		}
	}
}

func TestDateOrdering(t *testing.T) {
	early := NewDate(2026, time.March, 2)
	late := NewDate(2026, time.March, 10)
	if !early.Before(late) || late.Before(early) {
		t.Error("Before is inconsistent")
	}
	// Canonical form orders lexically, which is what the store relies on
	if early.String() >= late.String() {
		t.Error("canonical strings do not order chronologically")
	}
}

func TestAddDays(t *testing.T) {
	d := NewDate(2026, time.February, 28).AddDays(1)
	if d.String() != "2026-03-01" {
		t.Errorf("month rollover = %s", d)
	}
}

func TestParseClockTime(t *testing.T) {
	ct, err := ParseClockTime("08:15:30")
	if err != nil {
		t.Fatalf("parse time: %v", err)
	}
	if ct.String() != "08:15:30" {
		t.Errorf("round trip = %q", ct.String())
	}

	// Minutes-only form is allowed
	ct, err = ParseClockTime("08:15")
	if err != nil {
		t.Fatalf("parse short time: %v", err)
	}
	if ct.String() != "08:15:00" {
		t.Errorf("short form = %q", ct.String())
	}

	if _, err := ParseClockTime("25:00"); !errors.Is(err, ErrInvalidTime) {
		t.Errorf("out-of-range hour accepted")
	}
}

func TestDateJSON(t *testing.T) {
	var d Date
	if err := d.UnmarshalJSON([]byte(`"2026-03-02"`)); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	data, err := d.MarshalJSON()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `"2026-03-02"` {
		t.Errorf("json round trip = %s", data)
	}

	if err := d.UnmarshalJSON([]byte(`"03/02/2026"`)); !errors.Is(err, ErrInvalidDate) {
		t.Errorf("bad json date accepted: %v", err)
	}
}
