package navigator

import (
	"github.com/md-rashed-zaman/clinicsync/services/dashboard-service/internal/index"
	"github.com/md-rashed-zaman/clinicsync/services/dashboard-service/internal/model"
)

type View string

const (
	ViewPatients      View = "patients"
	ViewPractitioners View = "doctors"
	ViewAppointments  View = "appointments"
)

type Filter struct {
	Department string `json:"department"`
	Text       string `json:"text"`
}

// Detail is the open day panel of an expanded calendar.
type Detail struct {
	Date          string              `json:"date"`
	Practitioner  string              `json:"practitioner"`
	Entries       []model.Appointment `json:"entries"`
	HighlightedID string              `json:"highlightedId,omitempty"`
}

// ViewState is everything the presentation layer needs to render the
// dashboard. It is a value; presenters store whatever was last committed.
type ViewState struct {
	View            View    `json:"view"`
	Filter          Filter  `json:"filter"`
	ExpandedSection string  `json:"expandedSection,omitempty"`
	FocusMonth      string  `json:"focusMonth,omitempty"`
	ActiveDay       string  `json:"activeDay,omitempty"`
	Detail          *Detail `json:"detail,omitempty"`
}

// Cell is one rendered day of a calendar section.
type Cell struct {
	Day         int    `json:"day"`
	Date        string `json:"date"`
	HasBookings bool   `json:"hasBookings"`
}

type RenderedCalendar struct {
	Section string `json:"section"`
	Month   string `json:"month"`
	Cells   []Cell `json:"cells"`
}

// Presenter owns a rendered dashboard. Calendar reports whether the section
// has been rendered yet; rendering may lag behind Commit.
type Presenter interface {
	State() ViewState
	Commit(ViewState)
	Calendar(section string) (RenderedCalendar, bool)
}

// MountNotifier is implemented by presenters that can signal when a section
// has been rendered. The channel is closed once it is.
type MountNotifier interface {
	Mounted(section string) <-chan struct{}
}

// PractitionerSection names the calendar section of a practitioner.
func PractitionerSection(name string) string {
	return "doctor:" + index.CleanPractitionerName(name)
}

// ViewSection names the mount signal of a top-level view.
func ViewSection(v View) string {
	return "view:" + string(v)
}
