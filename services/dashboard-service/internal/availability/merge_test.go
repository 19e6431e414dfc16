package availability

import (
	"testing"
	"time"

	"github.com/md-rashed-zaman/clinicsync/services/dashboard-service/internal/model"
)

func nominal(times ...string) []model.SlotDescriptor {
	out := make([]model.SlotDescriptor, 0, len(times))
	for _, t := range times {
		out = append(out, model.SlotDescriptor{Time: t})
	}
	return out
}

func TestMerge_ExactMatch(t *testing.T) {
	date := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	appts := []model.Appointment{
		{ID: "a1", PatientName: "John Doe", StartTime: time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC), DurationMinutes: 30},
	}

	available, booked := Merge(date, nominal("09:00", "09:30", "10:00"), appts, MergeOptions{})
	if len(available) != 2 || available[0].Time != "09:00" || available[1].Time != "10:00" {
		t.Fatalf("unexpected available: %#v", available)
	}
	if len(booked) != 1 || booked[0].Time != "09:30" || booked[0].AppointmentID != "a1" || booked[0].PatientName != "John Doe" {
		t.Fatalf("unexpected booked: %#v", booked)
	}
}

func TestMerge_ClockInClinicLocation(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	date := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	// 14:30 UTC is 10:30 EDT on this date
	appts := []model.Appointment{{ID: "a1", StartTime: time.Date(2026, 3, 10, 14, 30, 0, 0, time.UTC)}}

	available, booked := Merge(date, nominal("10:30", "14:30"), appts, MergeOptions{Location: ny})
	if len(booked) != 1 || booked[0].Time != "10:30" {
		t.Fatalf("expected 10:30 booked, got %#v", booked)
	}
	if len(available) != 1 || available[0].Time != "14:30" {
		t.Fatalf("expected 14:30 available, got %#v", available)
	}
}

func TestMerge_FirstMatchWinsAndCancelledIgnored(t *testing.T) {
	date := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	at := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	appts := []model.Appointment{
		{ID: "gone", PatientName: "Cancelled Patient", StartTime: at, Status: model.StatusCancelled},
		{ID: "first", PatientName: "First", StartTime: at},
		{ID: "second", PatientName: "Second", StartTime: at},
	}

	_, booked := Merge(date, nominal("09:00"), appts, MergeOptions{})
	if len(booked) != 1 || booked[0].AppointmentID != "first" {
		t.Fatalf("expected first active appointment to win, got %#v", booked)
	}
}

func TestMerge_Disjoint(t *testing.T) {
	date := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	slots := []model.SlotDescriptor{
		{Time: "9:00"},
		{Time: "09:00"},
		{Time: "09:30:00"},
		{Time: "10:00", PatientName: "Walk In"},
		{Time: "10:00"},
	}
	appts := []model.Appointment{{ID: "a1", StartTime: time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC)}}

	available, booked := Merge(date, slots, appts, MergeOptions{})
	seen := map[string]bool{}
	for _, s := range available {
		seen[s.Time] = true
	}
	for _, b := range booked {
		if seen[b.Time] {
			t.Fatalf("time %s is both available and booked", b.Time)
		}
	}
	if len(available) != 1 || available[0].Time != "09:00" {
		t.Fatalf("unexpected available: %#v", available)
	}
	if len(booked) != 2 || booked[0].Time != "09:30" || booked[1].Time != "10:00" || booked[1].PatientName != "Walk In" {
		t.Fatalf("unexpected booked: %#v", booked)
	}
}

func TestMerge_OverlapMode(t *testing.T) {
	date := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	appts := []model.Appointment{
		{ID: "long", StartTime: time.Date(2026, 3, 10, 9, 15, 0, 0, time.UTC), DurationMinutes: 30},
	}

	exactAvail, exactBooked := Merge(date, nominal("09:00", "09:30", "10:00"), appts, MergeOptions{})
	if len(exactBooked) != 0 || len(exactAvail) != 3 {
		t.Fatalf("exact mode should not book off-grid appointment: %#v", exactBooked)
	}

	available, booked := Merge(date, nominal("09:00", "09:30", "10:00"), appts, MergeOptions{Mode: MatchOverlap, Step: 30 * time.Minute})
	if len(booked) != 2 || booked[0].Time != "09:00" || booked[1].Time != "09:30" {
		t.Fatalf("unexpected booked: %#v", booked)
	}
	if len(available) != 1 || available[0].Time != "10:00" {
		t.Fatalf("unexpected available: %#v", available)
	}
}

func TestOverlapsAny_HalfOpen(t *testing.T) {
	day := time.Date(2026, 1, 28, 0, 0, 0, 0, time.UTC)
	busy := []Interval{{Start: day.Add(9 * time.Hour), End: day.Add(9*time.Hour + 30*time.Minute)}}

	if overlapsAny(day.Add(9*time.Hour+30*time.Minute), day.Add(10*time.Hour), busy) {
		t.Fatalf("touching intervals must not overlap")
	}
	if !overlapsAny(day.Add(9*time.Hour+29*time.Minute), day.Add(10*time.Hour), busy) {
		t.Fatalf("expected overlap")
	}
}

func TestParseMatchMode(t *testing.T) {
	for _, tc := range []struct {
		in   string
		want MatchMode
		ok   bool
	}{
		{"", MatchExact, true},
		{"Exact", MatchExact, true},
		{"overlap", MatchOverlap, true},
		{"fuzzy", MatchExact, false},
	} {
		got, err := ParseMatchMode(tc.in)
		if (err == nil) != tc.ok || got != tc.want {
			t.Fatalf("ParseMatchMode(%q) = %v, %v", tc.in, got, err)
		}
	}
}
