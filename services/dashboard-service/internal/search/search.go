package search

import (
	"strings"
	"time"

	"github.com/md-rashed-zaman/clinicsync/services/dashboard-service/internal/index"
	"github.com/md-rashed-zaman/clinicsync/services/dashboard-service/internal/model"
)

// GroupLimit caps every result group.
const GroupLimit = 3

type HitType string

const (
	HitPatient      HitType = "patient"
	HitPractitioner HitType = "practitioner"
	HitAppointment  HitType = "appointment"
)

func (t HitType) Valid() bool {
	switch t {
	case HitPatient, HitPractitioner, HitAppointment:
		return true
	}
	return false
}

// Correlation re-identifies the record behind a hit after the lists it came
// from have been refetched.
type Correlation struct {
	PatientName      string    `json:"patientName,omitempty"`
	PractitionerName string    `json:"practitionerName,omitempty"`
	StartTime        time.Time `json:"startTime,omitempty"`
	AppointmentID    string    `json:"appointmentId,omitempty"`
	PatientID        string    `json:"patientId,omitempty"`
	PractitionerID   string    `json:"practitionerId,omitempty"`
	Department       string    `json:"department,omitempty"`
}

type Hit struct {
	Type        HitType     `json:"type"`
	Title       string      `json:"title"`
	Subtitle    string      `json:"subtitle,omitempty"`
	Correlation Correlation `json:"correlation"`
}

type Results struct {
	Patients      []Hit `json:"patients"`
	Practitioners []Hit `json:"practitioners"`
	Appointments  []Hit `json:"appointments"`
}

func (r Results) Empty() bool {
	return len(r.Patients) == 0 && len(r.Practitioners) == 0 && len(r.Appointments) == 0
}

// Corpus is the data a query runs against, in display order.
type Corpus struct {
	Patients      []model.Patient
	Practitioners []model.Practitioner
	Appointments  []model.Appointment
	// Location formats appointment subtitles.
	Location *time.Location
}

// Search matches query case-insensitively as a substring. Each group keeps
// source order and holds at most GroupLimit hits. A blank query matches
// nothing.
func Search(query string, c Corpus) Results {
	res := Results{Patients: []Hit{}, Practitioners: []Hit{}, Appointments: []Hit{}}
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return res
	}
	loc := c.Location
	if loc == nil {
		loc = time.UTC
	}

	for _, p := range c.Patients {
		if len(res.Patients) == GroupLimit {
			break
		}
		name := p.FullName()
		if !contains(name, q) {
			continue
		}
		res.Patients = append(res.Patients, Hit{
			Type:        HitPatient,
			Title:       name,
			Subtitle:    firstNonEmpty(p.Email, p.Phone),
			Correlation: Correlation{PatientName: name, PatientID: p.ID},
		})
	}

	for _, d := range c.Practitioners {
		if len(res.Practitioners) == GroupLimit {
			break
		}
		if !contains(d.Name, q) {
			continue
		}
		res.Practitioners = append(res.Practitioners, Hit{
			Type:     HitPractitioner,
			Title:    d.Name,
			Subtitle: d.Department,
			Correlation: Correlation{
				PractitionerName: d.Name,
				PractitionerID:   d.ID,
				Department:       d.Department,
			},
		})
	}

	for _, a := range c.Appointments {
		if len(res.Appointments) == GroupLimit {
			break
		}
		if !contains(a.PatientName, q) && !contains(a.PractitionerName, q) {
			continue
		}
		res.Appointments = append(res.Appointments, Hit{
			Type:     HitAppointment,
			Title:    a.PatientName,
			Subtitle: appointmentSubtitle(a, loc),
			Correlation: Correlation{
				PatientName:      a.PatientName,
				PractitionerName: a.PractitionerName,
				StartTime:        a.StartTime,
				AppointmentID:    a.ID,
				PatientID:        a.PatientID,
				PractitionerID:   a.PractitionerID,
				Department:       a.Department,
			},
		})
	}
	return res
}

func appointmentSubtitle(a model.Appointment, loc *time.Location) string {
	when := a.StartTime.In(loc).Format("Jan 2, 2006 15:04")
	name := index.CleanPractitionerName(a.PractitionerName)
	if name == "" {
		return when
	}
	return "Dr. " + name + " · " + when
}

func contains(s, lowerQuery string) bool {
	return strings.Contains(strings.ToLower(s), lowerQuery)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
