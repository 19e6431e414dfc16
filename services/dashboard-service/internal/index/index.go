// Package index groups appointments for calendar views. Everything here is
// pure and cheap enough to rebuild on every refresh.
package index

import (
	"sort"
	"strings"
	"time"

	"github.com/md-rashed-zaman/clinicsync/libs/calendar"
	"github.com/md-rashed-zaman/clinicsync/services/dashboard-service/internal/model"
)

// Index maps a cleaned practitioner name to date keys to appointments.
type Index map[string]map[string][]model.Appointment

var honorifics = map[string]bool{
	"dr":        true,
	"dr.":       true,
	"doctor":    true,
	"prof":      true,
	"prof.":     true,
	"professor": true,
}

// CleanPractitionerName strips one leading honorific and collapses
// whitespace. Case is preserved.
func CleanPractitionerName(name string) string {
	fields := strings.Fields(name)
	if len(fields) > 1 && honorifics[strings.ToLower(fields[0])] {
		fields = fields[1:]
	}
	return strings.Join(fields, " ")
}

// SamePractitioner compares two names after cleaning, ignoring case.
func SamePractitioner(a, b string) bool {
	return strings.EqualFold(CleanPractitionerName(a), CleanPractitionerName(b))
}

// ByPractitionerAndDate buckets appointments by cleaned practitioner name
// and date key in loc. Names differing only in case share one bucket, keyed
// by the first spelling seen. Buckets keep source order.
func ByPractitionerAndDate(appts []model.Appointment, loc *time.Location) Index {
	idx := Index{}
	folded := map[string]string{}
	for _, a := range appts {
		name := CleanPractitionerName(a.PractitionerName)
		if name == "" {
			continue
		}
		fold := strings.ToLower(name)
		if first, ok := folded[fold]; ok {
			name = first
		} else {
			folded[fold] = name
		}
		byDate, ok := idx[name]
		if !ok {
			byDate = map[string][]model.Appointment{}
			idx[name] = byDate
		}
		key := calendar.DateKeyIn(a.StartTime, loc)
		byDate[key] = append(byDate[key], a)
	}
	return idx
}

// Lookup finds the bucket for a practitioner, accepting names with or
// without an honorific and in any case. Buckets whose keys differ only in
// case, as in a hand-built Index, are merged by date.
func (idx Index) Lookup(practitionerName string) (map[string][]model.Appointment, bool) {
	clean := CleanPractitionerName(practitionerName)
	var others []string
	for name := range idx {
		if name != clean && strings.EqualFold(name, clean) {
			others = append(others, name)
		}
	}
	exact, ok := idx[clean]
	switch {
	case len(others) == 0:
		return exact, ok
	case !ok && len(others) == 1:
		return idx[others[0]], true
	}

	sort.Strings(others)
	merged := map[string][]model.Appointment{}
	for key, appts := range exact {
		merged[key] = append(merged[key], appts...)
	}
	for _, name := range others {
		for key, appts := range idx[name] {
			merged[key] = append(merged[key], appts...)
		}
	}
	return merged, true
}

// DatesWithAppointments returns the sorted date keys within month that have
// at least one non-cancelled appointment for the practitioner.
func (idx Index) DatesWithAppointments(practitionerName string, month time.Time) []string {
	byDate, ok := idx.Lookup(practitionerName)
	if !ok {
		return []string{}
	}
	prefix := calendar.MonthKey(month) + "-"
	out := make([]string, 0, len(byDate))
	for key, appts := range byDate {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		for _, a := range appts {
			if !a.Cancelled() {
				out = append(out, key)
				break
			}
		}
	}
	sort.Strings(out)
	return out
}

// SortByStart returns a copy of appts ordered by start time. Equal starts
// keep their relative order.
func SortByStart(appts []model.Appointment) []model.Appointment {
	out := make([]model.Appointment, len(appts))
	copy(out, appts)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].StartTime.Before(out[j].StartTime)
	})
	return out
}
