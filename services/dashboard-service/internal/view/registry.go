package view

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/clinicsync/services/dashboard-service/internal/navigator"
)

type RegistryOptions struct {
	Builder CalendarBuilder
	// RenderTimeout bounds one background calendar render.
	RenderTimeout time.Duration
	// IdleTTL evicts sessions that have not been touched for this long.
	IdleTTL time.Duration
	Logger  *slog.Logger
	Now     func() time.Time
}

// Registry holds the live sessions of this instance.
type Registry struct {
	base    context.Context
	stop    context.CancelFunc
	builder CalendarBuilder
	timeout time.Duration
	idle    time.Duration
	logger  *slog.Logger
	now     func() time.Time

	mu        sync.Mutex
	sessions  map[string]*Session
	lastSweep time.Time
}

func NewRegistry(opts RegistryOptions) *Registry {
	if opts.RenderTimeout <= 0 {
		opts.RenderTimeout = 30 * time.Second
	}
	if opts.IdleTTL <= 0 {
		opts.IdleTTL = 30 * time.Minute
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	base, stop := context.WithCancel(context.Background())
	return &Registry{
		base:     base,
		stop:     stop,
		builder:  opts.Builder,
		timeout:  opts.RenderTimeout,
		idle:     opts.IdleTTL,
		logger:   opts.Logger,
		now:      opts.Now,
		sessions: map[string]*Session{},
	}
}

// Get returns the session with id.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sweepLocked()
	s, ok := r.sessions[strings.TrimSpace(id)]
	return s, ok
}

// GetOrCreate returns the session with id, or a new one when id is blank or
// unknown.
func (r *Registry) GetOrCreate(id string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sweepLocked()
	if s, ok := r.sessions[strings.TrimSpace(id)]; ok {
		return s
	}
	s := &Session{
		ID:        uuid.NewString(),
		base:      r.base,
		builder:   r.builder,
		timeout:   r.timeout,
		logger:    r.logger,
		now:       r.now,
		state:     navigator.ViewState{View: navigator.ViewAppointments},
		calendars: map[string]navigator.RenderedCalendar{},
		mounts:    map[string]chan struct{}{},
		touched:   r.now(),
	}
	r.sessions[s.ID] = s
	return s
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Close stops every background render.
func (r *Registry) Close() {
	r.stop()
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, s := range r.sessions {
		s.Close()
		delete(r.sessions, id)
	}
}

func (r *Registry) sweepLocked() {
	now := r.now()
	if now.Sub(r.lastSweep) < time.Minute {
		return
	}
	r.lastSweep = now
	for id, s := range r.sessions {
		if now.Sub(s.lastTouched()) > r.idle {
			s.Close()
			delete(r.sessions, id)
		}
	}
}
