package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/md-rashed-zaman/clinicsync/libs/calendar"
	"github.com/md-rashed-zaman/clinicsync/libs/httpx"
	"github.com/md-rashed-zaman/clinicsync/services/dashboard-service/internal/availability"
	"github.com/md-rashed-zaman/clinicsync/services/dashboard-service/internal/fetch"
	"github.com/md-rashed-zaman/clinicsync/services/dashboard-service/internal/index"
	"github.com/md-rashed-zaman/clinicsync/services/dashboard-service/internal/model"
	"github.com/md-rashed-zaman/clinicsync/services/dashboard-service/internal/navigator"
	"github.com/md-rashed-zaman/clinicsync/services/dashboard-service/internal/search"
	"github.com/md-rashed-zaman/clinicsync/services/dashboard-service/internal/upstream"
	"github.com/md-rashed-zaman/clinicsync/services/dashboard-service/internal/view"
	"golang.org/x/sync/errgroup"
)

// NotAvailable is shown in place of secondary data that failed to load.
const NotAvailable = "not available"

type Directory interface {
	ListPractitioners(ctx context.Context) ([]model.Practitioner, error)
	ListPatients(ctx context.Context) ([]model.Patient, error)
	ListAppointments(ctx context.Context, f upstream.AppointmentFilter) ([]model.Appointment, error)
	WorkingHours(ctx context.Context, practitionerID, dateKey string) (model.WorkingHours, error)
	InvalidateAll(ctx context.Context) int
}

type Resolver interface {
	Resolve(ctx context.Context, practitionerID string, date time.Time) (availability.Day, error)
	Invalidate(practitionerID, dateKey string) int
}

type Navigator interface {
	Activate(ctx context.Context, p navigator.Presenter, hit search.Hit)
}

type DashboardHandler struct {
	dir      Directory
	resolver Resolver
	nav      Navigator
	sessions *view.Registry
	loc      *time.Location
	logger   *slog.Logger
}

func NewDashboardHandler(dir Directory, resolver Resolver, nav Navigator, sessions *view.Registry, loc *time.Location, logger *slog.Logger) *DashboardHandler {
	if loc == nil {
		loc = time.UTC
	}
	return &DashboardHandler{dir: dir, resolver: resolver, nav: nav, sessions: sessions, loc: loc, logger: logger}
}

// Register mounts the dashboard API on mux.
func (h *DashboardHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/v1/availability", h.Availability)
	mux.HandleFunc("/api/v1/calendar", h.Calendar)
	mux.HandleFunc("/api/v1/practitioners/working-hours", h.WorkingHours)
	mux.HandleFunc("/api/v1/search", h.Search)
	mux.HandleFunc("/api/v1/navigate", h.Navigate)
	mux.HandleFunc("/api/v1/session", h.Session)
	mux.HandleFunc("/api/v1/refresh", h.Refresh)
}

func (h *DashboardHandler) Availability(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httpx.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	practitionerID := strings.TrimSpace(r.URL.Query().Get("practitioner_id"))
	dateStr := strings.TrimSpace(r.URL.Query().Get("date"))
	if practitionerID == "" || dateStr == "" {
		httpx.WriteError(w, http.StatusBadRequest, "practitioner_id and date are required")
		return
	}
	date, err := calendar.ParseDateKey(dateStr)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid date")
		return
	}

	day, err := h.resolver.Resolve(r.Context(), practitionerID, date)
	if err != nil {
		h.upstreamFailure(w, r, "failed to load availability", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, day)
}

type calendarResponse struct {
	Practitioner string   `json:"practitioner"`
	Month        string   `json:"month"`
	Dates        []string `json:"dates"`
}

func (h *DashboardHandler) Calendar(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httpx.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	name := strings.TrimSpace(r.URL.Query().Get("practitioner"))
	monthStr := strings.TrimSpace(r.URL.Query().Get("month"))
	if name == "" || monthStr == "" {
		httpx.WriteError(w, http.StatusBadRequest, "practitioner and month are required")
		return
	}
	month, err := calendar.ParseMonth(monthStr)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid month")
		return
	}

	appts, err := h.dir.ListAppointments(r.Context(), upstream.AppointmentFilter{})
	if err != nil {
		h.upstreamFailure(w, r, "failed to load appointments", err)
		return
	}
	idx := index.ByPractitionerAndDate(appts, h.loc)
	httpx.WriteJSON(w, http.StatusOK, calendarResponse{
		Practitioner: index.CleanPractitionerName(name),
		Month:        calendar.MonthKey(month),
		Dates:        idx.DatesWithAppointments(name, month),
	})
}

type workingHoursResponse struct {
	PractitionerID string `json:"practitioner_id"`
	Date           string `json:"date"`
	Start          string `json:"start"`
	End            string `json:"end"`
	Available      bool   `json:"available"`
}

// WorkingHours is secondary profile data: an upstream failure degrades to a
// placeholder instead of an error.
func (h *DashboardHandler) WorkingHours(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httpx.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	practitionerID := strings.TrimSpace(r.URL.Query().Get("practitioner_id"))
	if practitionerID == "" {
		httpx.WriteError(w, http.StatusBadRequest, "practitioner_id is required")
		return
	}
	dateKey := calendar.DateKeyIn(time.Now(), h.loc)
	if raw := strings.TrimSpace(r.URL.Query().Get("date")); raw != "" {
		d, err := calendar.ParseDateKey(raw)
		if err != nil {
			httpx.WriteError(w, http.StatusBadRequest, "invalid date")
			return
		}
		dateKey = calendar.DateKey(d)
	}

	resp := workingHoursResponse{PractitionerID: practitionerID, Date: dateKey, Start: NotAvailable, End: NotAvailable}
	wh, err := h.dir.WorkingHours(r.Context(), practitionerID, dateKey)
	if err != nil {
		h.logger.Warn("working hours unavailable", "practitioner_id", practitionerID, "date", dateKey, "err", err)
		httpx.WriteJSON(w, http.StatusOK, resp)
		return
	}
	start, okStart := calendar.NormalizeClock(wh.Start)
	end, okEnd := calendar.NormalizeClock(wh.End)
	if okStart && okEnd {
		resp.Start, resp.End, resp.Available = start, end, true
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

func (h *DashboardHandler) Search(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httpx.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	q := r.URL.Query().Get("q")
	if strings.TrimSpace(q) == "" {
		httpx.WriteJSON(w, http.StatusOK, search.Search("", search.Corpus{}))
		return
	}

	corpus := search.Corpus{Location: h.loc}
	g, ctx := errgroup.WithContext(r.Context())
	g.Go(func() error {
		var err error
		corpus.Patients, err = h.dir.ListPatients(ctx)
		return err
	})
	g.Go(func() error {
		var err error
		corpus.Practitioners, err = h.dir.ListPractitioners(ctx)
		return err
	})
	g.Go(func() error {
		var err error
		corpus.Appointments, err = h.dir.ListAppointments(ctx, upstream.AppointmentFilter{})
		return err
	})
	if err := g.Wait(); err != nil {
		h.upstreamFailure(w, r, "failed to load search data", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, search.Search(q, corpus))
}

type navigateRequest struct {
	SessionID string     `json:"session_id"`
	Hit       search.Hit `json:"hit"`
}

func (h *DashboardHandler) Navigate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httpx.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req navigateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if !req.Hit.Type.Valid() {
		httpx.WriteError(w, http.StatusBadRequest, "hit.type must be patient, practitioner or appointment")
		return
	}

	session := h.sessions.GetOrCreate(req.SessionID)
	h.nav.Activate(r.Context(), session, req.Hit)
	httpx.WriteJSON(w, http.StatusOK, session.Snapshot())
}

func (h *DashboardHandler) Session(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httpx.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	id := strings.TrimSpace(r.URL.Query().Get("session_id"))
	if id == "" {
		httpx.WriteError(w, http.StatusBadRequest, "session_id is required")
		return
	}
	session, ok := h.sessions.Get(id)
	if !ok {
		httpx.WriteError(w, http.StatusNotFound, "session not found")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, session.Snapshot())
}

type refreshResponse struct {
	FetchEntries int `json:"fetch_entries"`
	ResolvedDays int `json:"resolved_days"`
}

// Refresh drops every cached payload and resolved day so the next read goes
// to the upstream.
func (h *DashboardHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httpx.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	resp := refreshResponse{
		FetchEntries: h.dir.InvalidateAll(r.Context()),
		ResolvedDays: h.resolver.Invalidate("", ""),
	}
	h.logger.Info("dashboard caches refreshed", "fetch_entries", resp.FetchEntries, "resolved_days", resp.ResolvedDays)
	httpx.WriteJSON(w, http.StatusOK, resp)
}

func (h *DashboardHandler) upstreamFailure(w http.ResponseWriter, r *http.Request, msg string, err error) {
	if errors.Is(err, context.Canceled) {
		return
	}
	status := http.StatusBadGateway
	if errors.Is(err, fetch.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
		status = http.StatusGatewayTimeout
	}
	h.logger.Warn(msg, "path", r.URL.Path, "err", err)
	httpx.WriteError(w, status, msg)
}
