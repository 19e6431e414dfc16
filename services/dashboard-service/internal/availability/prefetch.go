package availability

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/md-rashed-zaman/clinicsync/libs/calendar"
	otelx "github.com/md-rashed-zaman/clinicsync/libs/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
)

// Progress is published after every prefetch step. Dates is the cumulative,
// sorted set of dates that have appointments.
type Progress struct {
	PractitionerID string   `json:"practitionerId"`
	Month          string   `json:"month"`
	Dates          []string `json:"dates"`
	Resolved       int      `json:"resolved"`
	Failed         int      `json:"failed"`
	Total          int      `json:"total"`
	Done           bool     `json:"done"`
}

// PrefetchMonth resolves every day of month: the eager days first, then the
// remaining days in batches. Days inside a step run concurrently; steps run
// in order. A failed day is logged and skipped. onUpdate may be nil.
func (r *Resolver) PrefetchMonth(ctx context.Context, practitionerID string, month time.Time, onUpdate func(Progress)) (prog Progress, err error) {
	practitionerID = strings.TrimSpace(practitionerID)
	days := calendar.MonthDays(month)

	ctx, span := otelx.Start(ctx, "availability.prefetch_month",
		attribute.String("practitioner.id", practitionerID),
		attribute.String("month", calendar.MonthKey(month)),
	)
	defer func() { otelx.End(span, err) }()

	var (
		mu    sync.Mutex
		dates = map[string]struct{}{}
	)
	prog = Progress{PractitionerID: practitionerID, Month: calendar.MonthKey(month), Total: len(days)}

	publish := func(done bool) {
		mu.Lock()
		prog.Dates = sortedKeys(dates)
		prog.Done = done
		snapshot := prog
		mu.Unlock()
		if onUpdate != nil {
			onUpdate(snapshot)
		}
	}

	for _, step := range r.steps(days) {
		if err := ctx.Err(); err != nil {
			return prog, err
		}
		g, gctx := errgroup.WithContext(ctx)
		for _, day := range step {
			g.Go(func() error {
				d, err := r.Resolve(gctx, practitionerID, day)
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					prog.Failed++
					r.logger.Warn("prefetch day failed",
						"practitioner_id", practitionerID,
						"date", calendar.DateKey(day),
						"err", err,
					)
					return nil
				}
				prog.Resolved++
				if d.HasAppointments() {
					dates[d.Date] = struct{}{}
				}
				return nil
			})
		}
		_ = g.Wait()
		publish(false)
	}
	publish(true)

	mu.Lock()
	defer mu.Unlock()
	return prog, nil
}

// steps splits days into the eager step followed by fixed-size batches.
func (r *Resolver) steps(days []time.Time) [][]time.Time {
	var out [][]time.Time
	eager := min(r.eager, len(days))
	if eager > 0 {
		out = append(out, days[:eager])
	}
	for i := eager; i < len(days); i += r.batch {
		out = append(out, days[i:min(i+r.batch, len(days))])
	}
	return out
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
