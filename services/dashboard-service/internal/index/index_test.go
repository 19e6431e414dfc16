package index

import (
	"testing"
	"time"

	"github.com/md-rashed-zaman/clinicsync/services/dashboard-service/internal/model"
)

func TestCleanPractitionerName(t *testing.T) {
	cases := map[string]string{
		"Dr. Ana Ruiz":       "Ana Ruiz",
		"dr ana  ruiz":       "ana ruiz",
		"DOCTOR Ana Ruiz":    "Ana Ruiz",
		"Prof. Lee":          "Lee",
		"Professor  Kim Ong": "Kim Ong",
		"Drake Bell":         "Drake Bell",
		"Dr.":                "Dr.",
		"  Ana   Ruiz ":      "Ana Ruiz",
	}
	for in, want := range cases {
		if got := CleanPractitionerName(in); got != want {
			t.Fatalf("CleanPractitionerName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestByPractitionerAndDate_CollapsesPrefixes(t *testing.T) {
	appts := []model.Appointment{
		{ID: "a1", PractitionerName: "Dr. Ana Ruiz", StartTime: time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)},
		{ID: "a2", PractitionerName: "Ana Ruiz", StartTime: time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)},
		{ID: "a3", PractitionerName: "dr ana ruiz", StartTime: time.Date(2026, 3, 11, 9, 0, 0, 0, time.UTC)},
		{ID: "a4", PractitionerName: "", StartTime: time.Date(2026, 3, 11, 9, 0, 0, 0, time.UTC)},
	}
	idx := ByPractitionerAndDate(appts, time.UTC)

	bucket := idx["Ana Ruiz"]["2026-03-10"]
	if len(bucket) != 2 || bucket[0].ID != "a1" || bucket[1].ID != "a2" {
		t.Fatalf("expected source order a1,a2 got %#v", bucket)
	}
	byDate, ok := idx.Lookup("DR. ANA RUIZ")
	if !ok {
		t.Fatalf("expected case-insensitive lookup")
	}
	if _, ok := byDate["2026-03-10"]; !ok {
		t.Fatalf("lookup returned wrong bucket")
	}
	if len(idx) != 1 {
		t.Fatalf("expected one name bucket, got %d", len(idx))
	}
	if got := idx["Ana Ruiz"]["2026-03-11"]; len(got) != 1 || got[0].ID != "a3" {
		t.Fatalf("expected lower-case spelling merged into the first bucket, got %#v", got)
	}

	sorted := SortByStart(bucket)
	if sorted[0].ID != "a2" || bucket[0].ID != "a1" {
		t.Fatalf("SortByStart must sort a copy")
	}
}

func TestByPractitionerAndDate_UsesClinicLocation(t *testing.T) {
	tokyo, err := time.LoadLocation("Asia/Tokyo")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	appts := []model.Appointment{
		{ID: "late", PractitionerName: "Ana Ruiz", StartTime: time.Date(2026, 3, 10, 20, 0, 0, 0, time.UTC)},
	}
	idx := ByPractitionerAndDate(appts, tokyo)
	if _, ok := idx["Ana Ruiz"]["2026-03-11"]; !ok {
		t.Fatalf("expected appointment on the Tokyo date, got %#v", idx)
	}
}

func TestDatesWithAppointments(t *testing.T) {
	appts := []model.Appointment{
		{ID: "a1", PractitionerName: "Ana Ruiz", StartTime: time.Date(2026, 3, 20, 9, 0, 0, 0, time.UTC)},
		{ID: "a2", PractitionerName: "Ana Ruiz", StartTime: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)},
		{ID: "a3", PractitionerName: "Ana Ruiz", StartTime: time.Date(2026, 3, 5, 9, 0, 0, 0, time.UTC), Status: model.StatusCancelled},
		{ID: "a4", PractitionerName: "Ana Ruiz", StartTime: time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)},
	}
	idx := ByPractitionerAndDate(appts, time.UTC)

	got := idx.DatesWithAppointments("Dr. Ana Ruiz", time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	if len(got) != 2 || got[0] != "2026-03-02" || got[1] != "2026-03-20" {
		t.Fatalf("unexpected dates: %v", got)
	}
	if got := idx.DatesWithAppointments("Nobody", time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)); len(got) != 0 {
		t.Fatalf("expected no dates, got %v", got)
	}
}

func TestDatesWithAppointments_MergesCaseVariants(t *testing.T) {
	day := func(d int) time.Time { return time.Date(2026, 3, d, 9, 0, 0, 0, time.UTC) }
	built := ByPractitionerAndDate([]model.Appointment{
		{ID: "a1", PractitionerName: "Dr. Ana Ruiz", StartTime: day(3)},
		{ID: "a2", PractitionerName: "DR ana ruiz", StartTime: day(9)},
	}, time.UTC)
	month := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 20; i++ {
		if got := built.DatesWithAppointments("ana ruiz", month); len(got) != 2 {
			t.Fatalf("expected both dates, got %v", got)
		}
	}

	manual := Index{
		"Ana Ruiz": {"2026-03-03": {{ID: "a1", StartTime: day(3)}}},
		"ana ruiz": {"2026-03-03": {{ID: "a2", StartTime: day(3)}}, "2026-03-09": {{ID: "a3", StartTime: day(9)}}},
	}
	for i := 0; i < 20; i++ {
		got := manual.DatesWithAppointments("Ana Ruiz", month)
		if len(got) != 2 || got[0] != "2026-03-03" || got[1] != "2026-03-09" {
			t.Fatalf("expected merged dates, got %v", got)
		}
	}
	byDate, _ := manual.Lookup("Ana Ruiz")
	if b := byDate["2026-03-03"]; len(b) != 2 || b[0].ID != "a1" || b[1].ID != "a2" {
		t.Fatalf("expected exact spelling first, got %#v", b)
	}
}
