package upstream

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/md-rashed-zaman/clinicsync/services/dashboard-service/internal/fetch"
	"github.com/md-rashed-zaman/clinicsync/services/dashboard-service/internal/model"
)

// Client maps the clinic API endpoints onto typed calls. Every call reads
// through the fetch layer and so shares its cache and retry budget.
type Client struct {
	fetch *fetch.Client
	base  string
}

func NewClient(f *fetch.Client, baseURL string) *Client {
	return &Client{fetch: f, base: strings.TrimRight(strings.TrimSpace(baseURL), "/")}
}

type AppointmentFilter struct {
	PractitionerID string
	// Date is a YYYY-MM-DD key; empty means every date.
	Date string
}

func (c *Client) ListPractitioners(ctx context.Context) ([]model.Practitioner, error) {
	var out struct {
		Doctors []model.Practitioner `json:"doctors"`
	}
	if err := c.fetch.GetJSON(ctx, c.resource("/doctors", nil), &out); err != nil {
		return nil, err
	}
	return out.Doctors, nil
}

func (c *Client) ListPatients(ctx context.Context) ([]model.Patient, error) {
	var out struct {
		Patients []model.Patient `json:"patients"`
	}
	if err := c.fetch.GetJSON(ctx, c.resource("/patients", nil), &out); err != nil {
		return nil, err
	}
	return out.Patients, nil
}

func (c *Client) ListAppointments(ctx context.Context, f AppointmentFilter) ([]model.Appointment, error) {
	q := url.Values{}
	q.Set("doctorId", strings.TrimSpace(f.PractitionerID))
	q.Set("date", strings.TrimSpace(f.Date))

	var out struct {
		Appointments []model.Appointment `json:"appointments"`
	}
	if err := c.fetch.GetJSON(ctx, c.resource("/appointments", q), &out); err != nil {
		return nil, err
	}
	return out.Appointments, nil
}

func (c *Client) ListDepartments(ctx context.Context) ([]model.Department, error) {
	var out struct {
		Categories []model.Department `json:"categories"`
	}
	if err := c.fetch.GetJSON(ctx, c.resource("/categories", nil), &out); err != nil {
		return nil, err
	}
	return out.Categories, nil
}

func (c *Client) PractitionerSlots(ctx context.Context, practitionerID, dateKey string) ([]model.SlotDescriptor, error) {
	if strings.TrimSpace(practitionerID) == "" {
		return nil, fmt.Errorf("practitioner id is required")
	}
	q := url.Values{}
	q.Set("date", dateKey)

	var out struct {
		Slots []model.SlotDescriptor `json:"slots"`
	}
	if err := c.fetch.GetJSON(ctx, c.resource(c.slotsPath(practitionerID), q), &out); err != nil {
		return nil, err
	}
	return out.Slots, nil
}

func (c *Client) WorkingHours(ctx context.Context, practitionerID, dateKey string) (model.WorkingHours, error) {
	q := url.Values{}
	q.Set("date", dateKey)

	var out struct {
		WorkingHours model.WorkingHours `json:"workingHours"`
	}
	path := "/doctors/" + url.PathEscape(practitionerID) + "/working-hours"
	if err := c.fetch.GetJSON(ctx, c.resource(path, q), &out); err != nil {
		return model.WorkingHours{}, err
	}
	return out.WorkingHours, nil
}

// InvalidateAppointments drops cached appointment listings and, when
// practitionerID is set, that practitioner's slot grids.
func (c *Client) InvalidateAppointments(ctx context.Context, practitionerID string) int {
	n := c.fetch.Invalidate(ctx, c.resource("/appointments", nil).Key())
	if id := strings.TrimSpace(practitionerID); id != "" {
		n += c.fetch.Invalidate(ctx, c.resource(c.slotsPath(id), nil).Key())
	}
	return n
}

// InvalidateAll drops every cached payload of this upstream.
func (c *Client) InvalidateAll(ctx context.Context) int {
	return c.fetch.Invalidate(ctx, c.base+"/")
}

func (c *Client) slotsPath(practitionerID string) string {
	return "/doctors/" + url.PathEscape(practitionerID) + "/slots"
}

func (c *Client) resource(path string, q url.Values) fetch.Resource {
	return fetch.NewResource(c.base, path, q)
}
