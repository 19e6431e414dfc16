package invalidation

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/md-rashed-zaman/clinicsync/libs/calendar"
	"github.com/segmentio/kafka-go"
)

type FetchCache interface {
	InvalidateAppointments(ctx context.Context, practitionerID string) int
}

type DayCache interface {
	Invalidate(practitionerID, dateKey string) int
}

// Invalidator drops cached appointment data when a booking changes upstream.
type Invalidator struct {
	Fetch    FetchCache
	Days     DayCache
	Location *time.Location
	Logger   *slog.Logger
}

type bookingEvent struct {
	AppointmentID  string `json:"appointment_id"`
	StaffID        string `json:"staff_id"`
	PractitionerID string `json:"practitioner_id"`
	StartTime      string `json:"start_time"`
}

// Handle is a Handler. Malformed payloads are logged and dropped.
func (inv *Invalidator) Handle(ctx context.Context, msg kafka.Message) error {
	var ev bookingEvent
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		inv.Logger.Error("invalid event payload", "err", err, "topic", msg.Topic)
		return nil
	}

	practitionerID := strings.TrimSpace(ev.PractitionerID)
	if practitionerID == "" {
		practitionerID = strings.TrimSpace(ev.StaffID)
	}
	dateKey := ""
	if ev.StartTime != "" {
		start, err := time.Parse(time.RFC3339, ev.StartTime)
		if err != nil {
			inv.Logger.Warn("event start_time unreadable; dropping every date", "start_time", ev.StartTime, "topic", msg.Topic)
		} else {
			dateKey = calendar.DateKeyIn(start, inv.Location)
		}
	}

	fetched := inv.Fetch.InvalidateAppointments(ctx, practitionerID)
	// an event without a practitioner drops the date for everyone
	days := inv.Days.Invalidate(practitionerID, dateKey)
	inv.Logger.Info("booking change invalidated caches",
		"topic", msg.Topic,
		"appointment_id", ev.AppointmentID,
		"practitioner_id", practitionerID,
		"date", dateKey,
		"fetch_entries", fetched,
		"resolved_days", days,
	)
	return nil
}
