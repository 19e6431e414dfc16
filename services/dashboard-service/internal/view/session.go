package view

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/md-rashed-zaman/clinicsync/services/dashboard-service/internal/navigator"
)

// Session is one dashboard's server-side view state. It renders calendar
// sections in the background after the expanded section changes, the way a
// browser would mount them some time after the state update.
type Session struct {
	ID string

	base    context.Context
	builder CalendarBuilder
	timeout time.Duration
	logger  *slog.Logger
	now     func() time.Time

	mu        sync.Mutex
	state     navigator.ViewState
	calendars map[string]navigator.RenderedCalendar
	mounts    map[string]chan struct{}
	cancel    context.CancelFunc
	gen       uint64
	touched   time.Time
}

type Snapshot struct {
	ID        string                      `json:"session_id"`
	State     navigator.ViewState         `json:"state"`
	Calendar  *navigator.RenderedCalendar `json:"calendar,omitempty"`
	UpdatedAt time.Time                   `json:"updated_at"`
}

func (s *Session) State() navigator.ViewState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Commit(next navigator.ViewState) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.state
	s.state = next
	s.touched = s.now()

	if next.View != "" && next.View != prev.View {
		s.markMountedLocked(navigator.ViewSection(next.View))
	}
	if next.ExpandedSection == prev.ExpandedSection && next.FocusMonth == prev.FocusMonth {
		return
	}

	// the old rendering is gone until the new one mounts
	s.gen++
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	if prev.ExpandedSection != "" {
		s.unmountLocked(prev.ExpandedSection)
	}
	if next.ExpandedSection == "" || next.FocusMonth == "" || s.builder == nil {
		return
	}
	s.unmountLocked(next.ExpandedSection)

	ctx, cancel := context.WithTimeout(s.base, s.timeout)
	s.cancel = cancel
	go s.render(ctx, cancel, s.gen, next.ExpandedSection, next.FocusMonth)
}

func (s *Session) render(ctx context.Context, cancel context.CancelFunc, gen uint64, section, month string) {
	defer cancel()
	err := s.builder.Build(ctx, section, month, func(cal navigator.RenderedCalendar) {
		s.mu.Lock()
		defer s.mu.Unlock()
		if gen != s.gen {
			return
		}
		s.calendars[section] = cal
		s.markMountedLocked(section)
	})
	if err != nil && ctx.Err() == nil {
		s.logger.Warn("calendar render failed", "session_id", s.ID, "section", section, "month", month, "err", err)
	}
}

func (s *Session) Calendar(section string) (navigator.RenderedCalendar, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cal, ok := s.calendars[section]
	return cal, ok
}

func (s *Session) Mounted(section string) <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mountLocked(section)
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{ID: s.ID, State: s.state, UpdatedAt: s.touched}
	if cal, ok := s.calendars[s.state.ExpandedSection]; ok {
		snap.Calendar = &cal
	}
	return snap
}

// Close stops any background rendering.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

func (s *Session) mountLocked(section string) chan struct{} {
	ch, ok := s.mounts[section]
	if !ok {
		ch = make(chan struct{})
		s.mounts[section] = ch
	}
	return ch
}

func (s *Session) markMountedLocked(section string) {
	ch := s.mountLocked(section)
	select {
	case <-ch:
	default:
		close(ch)
	}
}

func (s *Session) unmountLocked(section string) {
	delete(s.calendars, section)
	if ch, ok := s.mounts[section]; ok {
		select {
		case <-ch:
			delete(s.mounts, section)
		default:
		}
	}
}

func (s *Session) lastTouched() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.touched
}
