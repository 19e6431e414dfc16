package view

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/md-rashed-zaman/clinicsync/libs/calendar"
	"github.com/md-rashed-zaman/clinicsync/services/dashboard-service/internal/availability"
	"github.com/md-rashed-zaman/clinicsync/services/dashboard-service/internal/index"
	"github.com/md-rashed-zaman/clinicsync/services/dashboard-service/internal/model"
	"github.com/md-rashed-zaman/clinicsync/services/dashboard-service/internal/navigator"
	"github.com/md-rashed-zaman/clinicsync/services/dashboard-service/internal/upstream"
)

const sectionPrefix = "doctor:"

// Data is the directory and appointment feed a calendar is built from.
type Data interface {
	ListPractitioners(ctx context.Context) ([]model.Practitioner, error)
	ListAppointments(ctx context.Context, f upstream.AppointmentFilter) ([]model.Appointment, error)
}

// Prefetcher resolves a practitioner's month of availability.
type Prefetcher interface {
	PrefetchMonth(ctx context.Context, practitionerID string, month time.Time, onUpdate func(availability.Progress)) (availability.Progress, error)
}

// CalendarBuilder renders a calendar section. publish may be called several
// times as more days resolve; each call replaces the previous rendering.
type CalendarBuilder interface {
	Build(ctx context.Context, section, month string, publish func(navigator.RenderedCalendar)) error
}

// Builder marks a day as having bookings when either the appointment index
// or the resolved availability says so.
type Builder struct {
	Data       Data
	Prefetcher Prefetcher
	Location   *time.Location
}

func (b *Builder) Build(ctx context.Context, section, month string, publish func(navigator.RenderedCalendar)) error {
	name, ok := strings.CutPrefix(section, sectionPrefix)
	if !ok || strings.TrimSpace(name) == "" {
		return fmt.Errorf("not a practitioner section: %q", section)
	}
	first, err := calendar.ParseMonth(month)
	if err != nil {
		return err
	}
	loc := b.Location
	if loc == nil {
		loc = time.UTC
	}

	appts, err := b.Data.ListAppointments(ctx, upstream.AppointmentFilter{})
	if err != nil {
		return fmt.Errorf("load appointments: %w", err)
	}
	dots := index.ByPractitionerAndDate(appts, loc).DatesWithAppointments(name, first)

	render := func(resolved []string) navigator.RenderedCalendar {
		has := make(map[string]bool, len(dots)+len(resolved))
		for _, d := range dots {
			has[d] = true
		}
		for _, d := range resolved {
			has[d] = true
		}
		cal := navigator.RenderedCalendar{Section: section, Month: month}
		for _, day := range calendar.MonthDays(first) {
			key := calendar.DateKey(day)
			cal.Cells = append(cal.Cells, navigator.Cell{Day: day.Day(), Date: key, HasBookings: has[key]})
		}
		return cal
	}

	id := b.practitionerID(ctx, name)
	if id == "" || b.Prefetcher == nil {
		publish(render(nil))
		return nil
	}
	_, err = b.Prefetcher.PrefetchMonth(ctx, id, first, func(p availability.Progress) {
		publish(render(p.Dates))
	})
	return err
}

func (b *Builder) practitionerID(ctx context.Context, name string) string {
	docs, err := b.Data.ListPractitioners(ctx)
	if err != nil {
		return ""
	}
	for _, d := range docs {
		if index.SamePractitioner(d.Name, name) {
			return d.ID
		}
	}
	return ""
}
