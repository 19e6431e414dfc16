package model

import (
	"strings"
	"time"
)

const (
	StatusScheduled = "scheduled"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
)

type Appointment struct {
	ID               string    `json:"id"`
	PatientID        string    `json:"patientId"`
	PatientName      string    `json:"patientName"`
	PractitionerID   string    `json:"doctorId,omitempty"`
	PractitionerName string    `json:"doctorName"`
	Department       string    `json:"department"`
	StartTime        time.Time `json:"startTime"`
	DurationMinutes  int       `json:"duration"`
	Status           string    `json:"status"`
}

// Cancelled appointments never occupy a slot.
func (a Appointment) Cancelled() bool {
	s := strings.ToLower(strings.TrimSpace(a.Status))
	return s == StatusCancelled || s == "canceled"
}

// Duration falls back to 30 minutes when the upstream omits it.
func (a Appointment) Duration() time.Duration {
	if a.DurationMinutes <= 0 {
		return 30 * time.Minute
	}
	return time.Duration(a.DurationMinutes) * time.Minute
}

type Practitioner struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Department string `json:"department"`
}

type Patient struct {
	ID        string `json:"id"`
	Name      string `json:"name,omitempty"`
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
	Email     string `json:"email,omitempty"`
	Phone     string `json:"phone,omitempty"`
}

func (p Patient) FullName() string {
	if n := strings.TrimSpace(p.Name); n != "" {
		return n
	}
	return strings.TrimSpace(strings.TrimSpace(p.FirstName) + " " + strings.TrimSpace(p.LastName))
}

type Department struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// WorkingHours is the practitioner's shift for one day, as HH:MM strings.
type WorkingHours struct {
	Start string `json:"start"`
	End   string `json:"end"`
}
