package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/md-rashed-zaman/clinicsync/services/dashboard-service/internal/availability"
	"github.com/md-rashed-zaman/clinicsync/services/dashboard-service/internal/fetch"
	"github.com/md-rashed-zaman/clinicsync/services/dashboard-service/internal/model"
	"github.com/md-rashed-zaman/clinicsync/services/dashboard-service/internal/navigator"
	"github.com/md-rashed-zaman/clinicsync/services/dashboard-service/internal/upstream"
	"github.com/md-rashed-zaman/clinicsync/services/dashboard-service/internal/view"
)

type fakeDirectory struct {
	mu          sync.Mutex
	docs        []model.Practitioner
	patients    []model.Patient
	appts       []model.Appointment
	hours       model.WorkingHours
	hoursErr    error
	apptErr     error
	invalidated int
}

func (d *fakeDirectory) ListPractitioners(context.Context) ([]model.Practitioner, error) {
	return d.docs, nil
}

func (d *fakeDirectory) ListPatients(context.Context) ([]model.Patient, error) {
	return d.patients, nil
}

func (d *fakeDirectory) ListAppointments(_ context.Context, f upstream.AppointmentFilter) ([]model.Appointment, error) {
	if d.apptErr != nil {
		return nil, d.apptErr
	}
	if f.PractitionerID == "" {
		return d.appts, nil
	}
	var out []model.Appointment
	for _, a := range d.appts {
		if a.PractitionerID == f.PractitionerID && a.StartTime.Format("2006-01-02") == f.Date {
			out = append(out, a)
		}
	}
	return out, nil
}

func (d *fakeDirectory) PractitionerSlots(context.Context, string, string) ([]model.SlotDescriptor, error) {
	return []model.SlotDescriptor{{Time: "09:00"}, {Time: "09:30"}, {Time: "10:00"}}, nil
}

func (d *fakeDirectory) WorkingHours(context.Context, string, string) (model.WorkingHours, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.hours, d.hoursErr
}

func (d *fakeDirectory) InvalidateAll(context.Context) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.invalidated++
	return 4
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(t *testing.T, dir *fakeDirectory) (*httptest.Server, *availability.Resolver) {
	t.Helper()
	resolver := availability.NewResolver(dir, availability.Options{
		Now: func() time.Time { return time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC) },
	})
	sessions := view.NewRegistry(view.RegistryOptions{Builder: &view.Builder{Data: dir, Prefetcher: resolver}})
	t.Cleanup(sessions.Close)
	nav := navigator.New(dir, navigator.Options{PollInterval: 10 * time.Millisecond})

	h := NewDashboardHandler(dir, resolver, nav, sessions, time.UTC, discardLogger())
	mux := http.NewServeMux()
	h.Register(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, resolver
}

func sampleDirectory() *fakeDirectory {
	return &fakeDirectory{
		docs:     []model.Practitioner{{ID: "d1", Name: "Dr. Ana Ruiz", Department: "Cardiology"}},
		patients: []model.Patient{{ID: "p1", FirstName: "John", LastName: "Doe"}},
		appts: []model.Appointment{
			{ID: "a1", PatientName: "John Doe", PractitionerID: "d1", PractitionerName: "Dr. Ana Ruiz", Department: "Cardiology", StartTime: time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC), Status: "scheduled"},
		},
		hours: model.WorkingHours{Start: "9:00", End: "17:00"},
	}
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("get %s: %v", url, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode: %v", err)
		}
	}
	return resp.StatusCode
}

func TestAvailability(t *testing.T) {
	srv, _ := newTestServer(t, sampleDirectory())

	var day availability.Day
	if status := getJSON(t, srv.URL+"/api/v1/availability?practitioner_id=d1&date=2026-03-10", &day); status != http.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
	if len(day.Available) != 2 || len(day.Booked) != 1 || day.Booked[0].Time != "09:30" {
		t.Fatalf("unexpected day: %#v", day)
	}

	var body map[string]string
	if status := getJSON(t, srv.URL+"/api/v1/availability?practitioner_id=d1&date=10/03/2026", &body); status != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", status)
	}
	if body["error"] == "" {
		t.Fatalf("expected inline error body")
	}
}

func TestAvailability_UpstreamFailure(t *testing.T) {
	dir := sampleDirectory()
	dir.apptErr = &fetch.RequestError{Cause: fetch.CauseExhausted, Attempts: 3, Err: &fetch.RequestError{Cause: fetch.CauseTimeout, Err: context.DeadlineExceeded}}
	srv, _ := newTestServer(t, dir)

	var body map[string]string
	status := getJSON(t, srv.URL+"/api/v1/availability?practitioner_id=d1&date=2026-03-10", &body)
	if status != http.StatusGatewayTimeout {
		t.Fatalf("expected 504, got %d", status)
	}
	if body["error"] != "failed to load availability" {
		t.Fatalf("unexpected error body: %#v", body)
	}
}

func TestCalendarDots(t *testing.T) {
	srv, _ := newTestServer(t, sampleDirectory())

	var resp calendarResponse
	if status := getJSON(t, srv.URL+"/api/v1/calendar?practitioner=Ana%20Ruiz&month=2026-03", &resp); status != http.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
	if len(resp.Dates) != 1 || resp.Dates[0] != "2026-03-10" || resp.Practitioner != "Ana Ruiz" {
		t.Fatalf("unexpected calendar: %#v", resp)
	}
}

func TestWorkingHours_DegradesToPlaceholder(t *testing.T) {
	dir := sampleDirectory()
	srv, _ := newTestServer(t, dir)

	var ok workingHoursResponse
	getJSON(t, srv.URL+"/api/v1/practitioners/working-hours?practitioner_id=d1&date=2026-03-10", &ok)
	if !ok.Available || ok.Start != "09:00" || ok.End != "17:00" {
		t.Fatalf("unexpected hours: %#v", ok)
	}

	dir.mu.Lock()
	dir.hoursErr = errors.New("upstream down")
	dir.mu.Unlock()
	var degraded workingHoursResponse
	status := getJSON(t, srv.URL+"/api/v1/practitioners/working-hours?practitioner_id=d1&date=2026-03-11", &degraded)
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
	if degraded.Available || degraded.Start != NotAvailable || degraded.End != NotAvailable {
		t.Fatalf("expected placeholder, got %#v", degraded)
	}
}

func TestSearch(t *testing.T) {
	srv, _ := newTestServer(t, sampleDirectory())

	var res struct {
		Patients      []json.RawMessage `json:"patients"`
		Practitioners []json.RawMessage `json:"practitioners"`
		Appointments  []json.RawMessage `json:"appointments"`
	}
	getJSON(t, srv.URL+"/api/v1/search?q=john", &res)
	if len(res.Patients) != 1 || len(res.Appointments) != 1 || len(res.Practitioners) != 0 {
		t.Fatalf("unexpected results: %d/%d/%d", len(res.Patients), len(res.Practitioners), len(res.Appointments))
	}
}

func TestNavigateAndSession(t *testing.T) {
	srv, _ := newTestServer(t, sampleDirectory())

	body := []byte(`{"hit":{"type":"appointment","title":"John Doe","correlation":{"patientName":"John Doe","practitionerName":"Dr. Ana Ruiz","startTime":"2026-03-10T09:30:00Z","appointmentId":"a1"}}}`)
	resp, err := http.Post(srv.URL+"/api/v1/navigate", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var snap view.Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if snap.ID == "" || snap.State.ActiveDay != "2026-03-10" || snap.State.Detail == nil || snap.State.Detail.HighlightedID != "a1" {
		t.Fatalf("unexpected snapshot: %#v", snap)
	}
	if snap.State.Filter.Department != "Cardiology" {
		t.Fatalf("unexpected department filter %q", snap.State.Filter.Department)
	}

	var again view.Snapshot
	if status := getJSON(t, srv.URL+"/api/v1/session?session_id="+snap.ID, &again); status != http.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
	if again.ID != snap.ID || again.State.ActiveDay != "2026-03-10" {
		t.Fatalf("unexpected session: %#v", again)
	}
	if status := getJSON(t, srv.URL+"/api/v1/session?session_id=nope", nil); status != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", status)
	}
}

func TestNavigate_RejectsBadHit(t *testing.T) {
	srv, _ := newTestServer(t, sampleDirectory())

	resp, err := http.Post(srv.URL+"/api/v1/navigate", "application/json", bytes.NewReader([]byte(`{"hit":{"type":"invoice"}}`)))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}

	get, err := http.Get(srv.URL + "/api/v1/navigate")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	get.Body.Close()
	if get.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", get.StatusCode)
	}
}

func TestRefresh(t *testing.T) {
	dir := sampleDirectory()
	srv, resolver := newTestServer(t, dir)

	getJSON(t, srv.URL+"/api/v1/availability?practitioner_id=d1&date=2026-03-10", nil)
	if resolver.Len() != 1 {
		t.Fatalf("expected a resolved day")
	}

	resp, err := http.Post(srv.URL+"/api/v1/refresh", "application/json", nil)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	var out refreshResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	dir.mu.Lock()
	invalidated := dir.invalidated
	dir.mu.Unlock()
	if out.FetchEntries != 4 || out.ResolvedDays != 1 || invalidated != 1 || resolver.Len() != 0 {
		t.Fatalf("unexpected refresh result: %#v", out)
	}
}
