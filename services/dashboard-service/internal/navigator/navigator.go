package navigator

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/md-rashed-zaman/clinicsync/libs/calendar"
	otelx "github.com/md-rashed-zaman/clinicsync/libs/otel"
	"github.com/md-rashed-zaman/clinicsync/services/dashboard-service/internal/index"
	"github.com/md-rashed-zaman/clinicsync/services/dashboard-service/internal/model"
	"github.com/md-rashed-zaman/clinicsync/services/dashboard-service/internal/search"
	"github.com/md-rashed-zaman/clinicsync/services/dashboard-service/internal/upstream"
	"go.opentelemetry.io/otel/attribute"
)

var errNavigationTimeout = errors.New("calendar section did not render in time")

// Data is the appointment feed used to cross-reference a hit.
type Data interface {
	ListAppointments(ctx context.Context, f upstream.AppointmentFilter) ([]model.Appointment, error)
}

type Options struct {
	PollInterval time.Duration
	PollAttempts int
	// SettleDelay bounds the wait for a list view to mount before its text
	// filter is applied.
	SettleDelay time.Duration
	Location    *time.Location
	Logger      *slog.Logger
}

// Navigator turns a search hit into an expanded, highlighted view state.
type Navigator struct {
	data     Data
	interval time.Duration
	attempts int
	settle   time.Duration
	loc      *time.Location
	logger   *slog.Logger
}

func New(data Data, opts Options) *Navigator {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 300 * time.Millisecond
	}
	if opts.PollAttempts <= 0 {
		opts.PollAttempts = 10
	}
	if opts.SettleDelay <= 0 {
		opts.SettleDelay = 50 * time.Millisecond
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Navigator{
		data:     data,
		interval: opts.PollInterval,
		attempts: opts.PollAttempts,
		settle:   opts.SettleDelay,
		loc:      opts.Location,
		logger:   opts.Logger,
	}
}

// Activate drives p to the view described by hit. It never fails: anything
// that goes wrong leaves the user on the furthest state reached.
func (n *Navigator) Activate(ctx context.Context, p Presenter, hit search.Hit) {
	ctx, span := otelx.Start(ctx, "navigator.activate", attribute.String("hit.type", string(hit.Type)))
	var err error
	defer func() { otelx.End(span, err) }()

	switch hit.Type {
	case search.HitPatient:
		err = n.applyListFilter(ctx, p, ViewPatients, hit.Correlation.PatientName, hit.Title)
	case search.HitPractitioner:
		err = n.applyListFilter(ctx, p, ViewPractitioners, hit.Correlation.PractitionerName, hit.Title)
	case search.HitAppointment:
		err = n.openAppointment(ctx, p, hit)
	default:
		n.logger.Warn("unknown search hit type", "type", string(hit.Type))
		return
	}

	switch {
	case err == nil:
	case errors.Is(err, errNavigationTimeout):
		n.logger.Debug("navigation gave up waiting for calendar", "err", err)
	default:
		n.logger.Info("navigation stopped early", "type", string(hit.Type), "err", err)
	}
}

func (n *Navigator) applyListFilter(ctx context.Context, p Presenter, v View, text, fallback string) error {
	if text == "" {
		text = fallback
	}
	state := p.State()
	state.View = v
	state.ExpandedSection = ""
	state.Filter = Filter{}
	p.Commit(state)

	if err := n.waitSettled(ctx, p, ViewSection(v)); err != nil {
		return err
	}

	state = p.State()
	state.Filter.Text = text
	p.Commit(state)
	return nil
}

// waitSettled returns once section reports mounted or the settle delay
// passes, whichever is first.
func (n *Navigator) waitSettled(ctx context.Context, p Presenter, section string) error {
	var mounted <-chan struct{}
	if mn, ok := p.(MountNotifier); ok {
		mounted = mn.Mounted(section)
	}
	t := time.NewTimer(n.settle)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-mounted:
	case <-t.C:
	}
	return nil
}

func (n *Navigator) openAppointment(ctx context.Context, p Presenter, hit search.Hit) error {
	corr := hit.Correlation

	state := p.State()
	state.View = ViewAppointments
	state.Filter = Filter{}
	p.Commit(state)

	appts, err := n.data.ListAppointments(ctx, upstream.AppointmentFilter{})
	if err != nil {
		// carry on with what the hit knows
		n.logger.Warn("navigator could not load appointments", "err", err)
		appts = nil
	}

	target := findTarget(appts, corr)
	practitioner := corr.PractitionerName
	if practitioner == "" {
		practitioner = target.PractitionerName
	}
	if index.CleanPractitionerName(practitioner) == "" {
		return errors.New("hit has no practitioner")
	}

	state = p.State()
	state.Filter.Department = owningDepartment(appts, target, practitioner, corr.Department)
	p.Commit(state)

	section := PractitionerSection(practitioner)
	month := calendar.MonthKey(target.StartTime.In(n.loc))
	state = p.State()
	state.ExpandedSection = section
	state.FocusMonth = month
	p.Commit(state)

	cal, err := n.waitForCalendar(ctx, p, section, month)
	if err != nil {
		return err
	}

	related := relatedDates(appts, target, n.loc)
	cell, ok := pickCell(cal, calendar.DateKeyIn(target.StartTime, n.loc), related)
	if !ok {
		n.logger.Debug("calendar has no populated day", "section", section, "month", month)
		return nil
	}

	detail := n.buildDetail(appts, practitioner, cell.Date, target.ID)
	state = p.State()
	state.ActiveDay = cell.Date
	state.Detail = &detail
	p.Commit(state)
	return nil
}

// waitForCalendar checks for the section up to the poll budget, waking early
// when the presenter signals the mount.
func (n *Navigator) waitForCalendar(ctx context.Context, p Presenter, section, month string) (RenderedCalendar, error) {
	var mounted <-chan struct{}
	if mn, ok := p.(MountNotifier); ok {
		mounted = mn.Mounted(section)
	}
	ticker := time.NewTicker(n.interval)
	defer ticker.Stop()

	for attempt := 1; ; attempt++ {
		if cal, ok := p.Calendar(section); ok && cal.Month == month {
			return cal, nil
		}
		if attempt >= n.attempts {
			return RenderedCalendar{}, errNavigationTimeout
		}
		select {
		case <-ctx.Done():
			return RenderedCalendar{}, ctx.Err()
		case <-mounted:
			// only wake once per signal
			mounted = nil
		case <-ticker.C:
		}
	}
}

// findTarget locates the hit's appointment in the fresh list, by id first
// and by correlation fields otherwise. Without a match the hit itself
// describes the target.
func findTarget(appts []model.Appointment, corr search.Correlation) model.Appointment {
	if corr.AppointmentID != "" {
		for _, a := range appts {
			if a.ID == corr.AppointmentID {
				return a
			}
		}
	}
	for _, a := range appts {
		if a.PatientName == corr.PatientName &&
			index.SamePractitioner(a.PractitionerName, corr.PractitionerName) &&
			a.StartTime.Equal(corr.StartTime) {
			return a
		}
	}
	return model.Appointment{
		ID:               corr.AppointmentID,
		PatientID:        corr.PatientID,
		PatientName:      corr.PatientName,
		PractitionerID:   corr.PractitionerID,
		PractitionerName: corr.PractitionerName,
		Department:       corr.Department,
		StartTime:        corr.StartTime,
	}
}

// owningDepartment prefers the department recorded on another appointment
// of the same practitioner, since the hit's own copy may be stale.
func owningDepartment(appts []model.Appointment, target model.Appointment, practitioner, fallback string) string {
	for _, a := range appts {
		if (a.ID == target.ID && target.ID != "") || a.Cancelled() {
			continue
		}
		if a.Department != "" && index.SamePractitioner(a.PractitionerName, practitioner) {
			return a.Department
		}
	}
	if fallback != "" {
		return fallback
	}
	return target.Department
}

// relatedDates lists, by start time, the dates of the other appointments
// between the target's patient and practitioner.
func relatedDates(appts []model.Appointment, target model.Appointment, loc *time.Location) []string {
	var out []string
	seen := map[string]bool{}
	for _, a := range index.SortByStart(appts) {
		if a.ID == target.ID && target.ID != "" {
			continue
		}
		if a.Cancelled() || a.PatientName != target.PatientName ||
			!index.SamePractitioner(a.PractitionerName, target.PractitionerName) {
			continue
		}
		key := calendar.DateKeyIn(a.StartTime, loc)
		if !seen[key] {
			seen[key] = true
			out = append(out, key)
		}
	}
	return out
}

// pickCell chooses the day to open: the target's own day when it shows
// bookings, then any day of a related appointment that does, then the first
// populated day.
func pickCell(cal RenderedCalendar, targetDate string, related []string) (Cell, bool) {
	byDate := make(map[string]Cell, len(cal.Cells))
	for _, c := range cal.Cells {
		byDate[c.Date] = c
	}
	if c, ok := byDate[targetDate]; ok && c.HasBookings {
		return c, true
	}
	for _, d := range related {
		if c, ok := byDate[d]; ok && c.HasBookings {
			return c, true
		}
	}
	for _, c := range cal.Cells {
		if c.HasBookings {
			return c, true
		}
	}
	return Cell{}, false
}

func (n *Navigator) buildDetail(appts []model.Appointment, practitioner, date, targetID string) Detail {
	entries := make([]model.Appointment, 0)
	for _, a := range appts {
		if index.SamePractitioner(a.PractitionerName, practitioner) && calendar.DateKeyIn(a.StartTime, n.loc) == date {
			entries = append(entries, a)
		}
	}
	entries = index.SortByStart(entries)

	d := Detail{Date: date, Practitioner: index.CleanPractitionerName(practitioner), Entries: entries}
	for _, e := range entries {
		if targetID != "" && e.ID == targetID {
			d.HighlightedID = targetID
			break
		}
	}
	return d
}
