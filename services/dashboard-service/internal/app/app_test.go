package app

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/md-rashed-zaman/clinicsync/services/dashboard-service/internal/availability"
)

func newFakeClinic(t *testing.T, slotCalls *atomic.Int32) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /categories", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"categories":[{"id":"c1","name":"Cardiology"}]}`))
	})
	mux.HandleFunc("GET /appointments", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"appointments":[{"id":"a1","patientId":"p1","patientName":"John Doe","doctorId":"d1","doctorName":"Dr. Ana Ruiz","startTime":"2099-03-10T09:30:00Z","duration":30,"status":"scheduled"}]}`))
	})
	mux.HandleFunc("GET /doctors/{id}/slots", func(w http.ResponseWriter, r *http.Request) {
		slotCalls.Add(1)
		_, _ = w.Write([]byte(`{"slots":["09:00","09:30","10:00"]}`))
	})
	return httptest.NewServer(mux)
}

func testConfig(upstreamURL string) Config {
	return Config{
		Service:           "dashboard-service",
		Port:              "0",
		UpstreamURL:       upstreamURL,
		Location:          time.UTC,
		FetchTimeout:      time.Second,
		FetchMaxAttempts:  1,
		FetchCacheTTL:     time.Minute,
		ResolverCacheSize: availability.DefaultCacheSize,
		SlotMatchMode:     availability.MatchExact,
		SlotStep:          30 * time.Minute,
		RequestTimeout:    5 * time.Second,
	}
}

func TestNew_ServesAvailability(t *testing.T) {
	var slotCalls atomic.Int32
	clinic := newFakeClinic(t, &slotCalls)
	defer clinic.Close()

	a, err := New(testConfig(clinic.URL), slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer a.Close()
	if a.Consumer != nil {
		t.Fatalf("expected no consumer without kafka")
	}

	for i := 0; i < 2; i++ {
		rr := httptest.NewRecorder()
		a.Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/availability?practitioner_id=d1&date=2099-03-10", nil))
		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
		}
		var day availability.Day
		if err := json.Unmarshal(rr.Body.Bytes(), &day); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if len(day.Available) != 2 || len(day.Booked) != 1 || day.Booked[0].Time != "09:30" {
			t.Fatalf("unexpected day: %+v", day)
		}
		if rr.Header().Get("X-Request-Id") == "" {
			t.Fatalf("expected request id header")
		}
	}
	if n := slotCalls.Load(); n != 1 {
		t.Fatalf("expected one upstream slots call, got %d", n)
	}
}

func TestNew_Readyz(t *testing.T) {
	var slotCalls atomic.Int32
	clinic := newFakeClinic(t, &slotCalls)

	a, err := New(testConfig(clinic.URL), slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer a.Close()

	rr := httptest.NewRecorder()
	a.Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected ready, got %d: %s", rr.Code, rr.Body.String())
	}

	clinic.Close()
	a.Upstream.InvalidateAll(t.Context())
	rr = httptest.NewRecorder()
	a.Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 with upstream down, got %d", rr.Code)
	}
}
