package availability

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/md-rashed-zaman/clinicsync/libs/calendar"
	otelx "github.com/md-rashed-zaman/clinicsync/libs/otel"
	"github.com/md-rashed-zaman/clinicsync/services/dashboard-service/internal/model"
	"github.com/md-rashed-zaman/clinicsync/services/dashboard-service/internal/upstream"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

const DefaultCacheSize = 31

// Source is the upstream data the resolver merges.
type Source interface {
	PractitionerSlots(ctx context.Context, practitionerID, dateKey string) ([]model.SlotDescriptor, error)
	ListAppointments(ctx context.Context, f upstream.AppointmentFilter) ([]model.Appointment, error)
}

// Day is the resolved availability of one practitioner on one date.
type Day struct {
	PractitionerID string                 `json:"practitionerId"`
	Date           string                 `json:"date"`
	Available      []model.SlotDescriptor `json:"available"`
	Booked         []model.BookedSlot     `json:"booked"`
	// Appointments counts the non-cancelled appointments on the date,
	// including any that fall outside the slot grid.
	Appointments int  `json:"appointments"`
	Past         bool `json:"past"`
}

func (d Day) HasAppointments() bool {
	return d.Appointments > 0 || len(d.Booked) > 0
}

func (d Day) clone() Day {
	out := d
	out.Available = append(make([]model.SlotDescriptor, 0, len(d.Available)), d.Available...)
	out.Booked = append(make([]model.BookedSlot, 0, len(d.Booked)), d.Booked...)
	return out
}

// ResolutionError reports a day that could not be resolved because one of
// its underlying requests failed.
type ResolutionError struct {
	PractitionerID string
	Date           string
	Err            error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("resolve availability for %s on %s: %v", e.PractitionerID, e.Date, e.Err)
}

func (e *ResolutionError) Unwrap() error { return e.Err }

type Options struct {
	Location  *time.Location
	Now       func() time.Time
	CacheSize int
	Mode      MatchMode
	SlotStep  time.Duration
	// EagerDays are resolved first on month prefetch; the rest of the month
	// follows in batches of BatchSize.
	EagerDays int
	BatchSize int
	Logger    *slog.Logger
}

type dayKey struct {
	practitionerID string
	date           string
}

// Resolver merges nominal slot grids with booked appointments and keeps a
// small FIFO cache of resolved days.
type Resolver struct {
	src    Source
	loc    *time.Location
	now    func() time.Time
	size   int
	merge  MergeOptions
	eager  int
	batch  int
	logger *slog.Logger

	mu    sync.Mutex
	days  map[dayKey]Day
	order []dayKey

	inflight singleflight.Group
}

func NewResolver(src Source, opts Options) *Resolver {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = DefaultCacheSize
	}
	if opts.EagerDays <= 0 {
		opts.EagerDays = 7
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 5
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Resolver{
		src:    src,
		loc:    opts.Location,
		now:    opts.Now,
		size:   opts.CacheSize,
		merge:  MergeOptions{Location: opts.Location, Mode: opts.Mode, Step: opts.SlotStep},
		eager:  opts.EagerDays,
		batch:  opts.BatchSize,
		logger: opts.Logger,
		days:   map[dayKey]Day{},
	}
}

func (r *Resolver) Location() *time.Location { return r.loc }

// Resolve returns the availability of practitionerID on the civil date of
// date (as seen in date's own location).
func (r *Resolver) Resolve(ctx context.Context, practitionerID string, date time.Time) (Day, error) {
	practitionerID = strings.TrimSpace(practitionerID)
	key := dayKey{practitionerID: practitionerID, date: calendar.DateKey(date)}
	if practitionerID == "" {
		return Day{}, &ResolutionError{Date: key.date, Err: fmt.Errorf("practitioner id is required")}
	}

	if d, ok := r.cached(key); ok {
		return r.applyPast(d), nil
	}

	ch := r.inflight.DoChan(key.practitionerID+"|"+key.date, func() (any, error) {
		return r.resolve(context.WithoutCancel(ctx), key)
	})
	select {
	case <-ctx.Done():
		return Day{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return Day{}, res.Err
		}
		return r.applyPast(res.Val.(Day)), nil
	}
}

func (r *Resolver) resolve(ctx context.Context, key dayKey) (day Day, err error) {
	ctx, span := otelx.Start(ctx, "availability.resolve",
		attribute.String("practitioner.id", key.practitionerID),
		attribute.String("date", key.date),
	)
	defer func() { otelx.End(span, err) }()

	if d, ok := r.cached(key); ok {
		return d, nil
	}

	var (
		slots []model.SlotDescriptor
		appts []model.Appointment
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		slots, err = r.src.PractitionerSlots(gctx, key.practitionerID, key.date)
		return err
	})
	g.Go(func() error {
		var err error
		appts, err = r.src.ListAppointments(gctx, upstream.AppointmentFilter{PractitionerID: key.practitionerID, Date: key.date})
		return err
	})
	if err := g.Wait(); err != nil {
		return Day{}, &ResolutionError{PractitionerID: key.practitionerID, Date: key.date, Err: err}
	}

	date, err := calendar.ParseDateKey(key.date)
	if err != nil {
		return Day{}, &ResolutionError{PractitionerID: key.practitionerID, Date: key.date, Err: err}
	}
	appts = r.sameDay(appts, key)
	available, booked := Merge(date, slots, appts, r.merge)
	day = Day{
		PractitionerID: key.practitionerID,
		Date:           key.date,
		Available:      available,
		Booked:         booked,
		Appointments:   len(appts),
	}
	r.store(key, day)
	return day.clone(), nil
}

// sameDay drops appointments the upstream returned for another practitioner
// or date, and cancelled ones.
func (r *Resolver) sameDay(appts []model.Appointment, key dayKey) []model.Appointment {
	out := make([]model.Appointment, 0, len(appts))
	for _, a := range appts {
		if a.Cancelled() {
			continue
		}
		if a.PractitionerID != "" && a.PractitionerID != key.practitionerID {
			continue
		}
		if calendar.DateKeyIn(a.StartTime, r.loc) != key.date {
			continue
		}
		out = append(out, a)
	}
	return out
}

// applyPast hides availability for dates before today and marks their
// bookings completed. It runs on every read so cached days age correctly.
func (r *Resolver) applyPast(d Day) Day {
	date, err := calendar.ParseDateKey(d.Date)
	if err != nil || !calendar.Before(date, r.now().In(r.loc)) {
		return d
	}
	d.Past = true
	d.Available = []model.SlotDescriptor{}
	booked := make([]model.BookedSlot, len(d.Booked))
	for i, b := range d.Booked {
		b.Status = model.StatusCompleted
		booked[i] = b
	}
	d.Booked = booked
	return d
}

func (r *Resolver) cached(key dayKey) (Day, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.days[key]
	if !ok {
		return Day{}, false
	}
	return d.clone(), true
}

func (r *Resolver) store(key dayKey, d Day) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.days[key]; ok {
		return
	}
	r.days[key] = d
	r.order = append(r.order, key)
	for len(r.order) > r.size {
		oldest := r.order[0]
		r.order = r.order[1:]
		delete(r.days, oldest)
	}
}

// Invalidate drops cached days for practitionerID. An empty dateKey drops
// every date; an empty practitionerID drops everything.
func (r *Resolver) Invalidate(practitionerID, dateKey string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	kept := r.order[:0]
	n := 0
	for _, k := range r.order {
		match := (practitionerID == "" || k.practitionerID == practitionerID) &&
			(dateKey == "" || k.date == dateKey)
		if match {
			delete(r.days, k)
			n++
			continue
		}
		kept = append(kept, k)
	}
	r.order = kept
	return n
}

// Len reports the number of cached days.
func (r *Resolver) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.days)
}
