package availability

import (
	"fmt"
	"strings"
	"time"

	"github.com/md-rashed-zaman/clinicsync/libs/calendar"
	"github.com/md-rashed-zaman/clinicsync/services/dashboard-service/internal/model"
)

// MatchMode decides when an appointment books a nominal slot.
type MatchMode int

const (
	// MatchExact books a slot when the appointment starts at the slot's
	// HH:MM in the clinic location.
	MatchExact MatchMode = iota
	// MatchOverlap books a slot when [slot, slot+step) intersects the
	// appointment's [start, start+duration).
	MatchOverlap
)

func ParseMatchMode(s string) (MatchMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "exact":
		return MatchExact, nil
	case "overlap":
		return MatchOverlap, nil
	default:
		return MatchExact, fmt.Errorf("unknown slot match mode %q", s)
	}
}

func (m MatchMode) String() string {
	if m == MatchOverlap {
		return "overlap"
	}
	return "exact"
}

type Interval struct {
	Start time.Time
	End   time.Time
}

type MergeOptions struct {
	Location *time.Location
	Mode     MatchMode
	// Step is the slot length used by MatchOverlap.
	Step time.Duration
}

// Merge partitions the nominal grid of one date into available and booked
// slots. Slot times are normalized to HH:MM and deduplicated, so no time is
// ever in both lists. The first matching appointment wins a slot; cancelled
// appointments never match.
func Merge(date time.Time, slots []model.SlotDescriptor, appts []model.Appointment, opts MergeOptions) ([]model.SlotDescriptor, []model.BookedSlot) {
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}
	step := opts.Step
	if step <= 0 {
		step = 30 * time.Minute
	}

	active := make([]model.Appointment, 0, len(appts))
	for _, a := range appts {
		if !a.Cancelled() {
			active = append(active, a)
		}
	}

	available := make([]model.SlotDescriptor, 0, len(slots))
	booked := make([]model.BookedSlot, 0)
	seen := make(map[string]struct{}, len(slots))

	for _, s := range slots {
		clock, ok := calendar.NormalizeClock(s.Time)
		if !ok {
			clock = strings.TrimSpace(s.Time)
		}
		if clock == "" {
			continue
		}
		if _, dup := seen[clock]; dup {
			continue
		}
		seen[clock] = struct{}{}

		var match *model.Appointment
		switch opts.Mode {
		case MatchOverlap:
			if start, ok := slotStart(date, clock, loc); ok {
				match = firstOverlap(Interval{Start: start, End: start.Add(step)}, active)
			}
		default:
			match = firstExact(clock, active, loc)
		}

		switch {
		case match != nil:
			patient := match.PatientName
			if patient == "" {
				patient = s.PatientName
			}
			booked = append(booked, model.BookedSlot{
				Time:          clock,
				PatientName:   patient,
				AppointmentID: match.ID,
				Status:        model.StatusScheduled,
			})
		case s.Booked():
			booked = append(booked, model.BookedSlot{
				Time:        clock,
				PatientName: s.PatientName,
				Status:      model.StatusScheduled,
			})
		default:
			available = append(available, model.SlotDescriptor{Time: clock})
		}
	}
	return available, booked
}

func firstExact(clock string, appts []model.Appointment, loc *time.Location) *model.Appointment {
	for i := range appts {
		if calendar.Clock(appts[i].StartTime, loc) == clock {
			return &appts[i]
		}
	}
	return nil
}

func firstOverlap(slot Interval, appts []model.Appointment) *model.Appointment {
	for i := range appts {
		busy := Interval{Start: appts[i].StartTime, End: appts[i].StartTime.Add(appts[i].Duration())}
		if overlapsAny(slot.Start, slot.End, []Interval{busy}) {
			return &appts[i]
		}
	}
	return nil
}

func overlapsAny(start, end time.Time, busy []Interval) bool {
	for _, b := range busy {
		// Half-open intervals: [start,end) overlaps [b.Start,b.End) iff start < b.End && b.Start < end.
		if start.Before(b.End) && b.Start.Before(end) {
			return true
		}
	}
	return false
}

// slotStart places an HH:MM clock on date's civil day in loc.
func slotStart(date time.Time, clock string, loc *time.Location) (time.Time, bool) {
	mins, ok := calendar.ClockMinutes(clock)
	if !ok {
		return time.Time{}, false
	}
	y, m, d := date.Date()
	return time.Date(y, m, d, mins/60, mins%60, 0, 0, loc), true
}
