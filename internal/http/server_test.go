// README: Ops API handler tests.
package http

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"

	"ridelink/internal/schema"
	"ridelink/internal/store"
)

func newTestServer(t *testing.T) (*Server, *store.Memory, *store.Memory) {
	t.Helper()
	log := logrus.New()
	log.SetOutput(io.Discard)
	passengers := store.NewMemory()
	drivers := store.NewMemory()
	return NewServer(ServerDeps{
		Passengers: passengers,
		Drivers:    drivers,
		Log:        log,
	}), passengers, drivers
}

func TestHealthz(t *testing.T) {
	srv, _, _ := newTestServer(t)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	srv.Router().ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
}

func TestGetRequest(t *testing.T) {
	srv, passengers, _ := newTestServer(t)
	if err := passengers.Put(context.Background(), schema.RequestsCollection, "req-1", map[string]any{
		"status": schema.RequestPending,
	}); err != nil {
		t.Fatal(err)
	}
	router := srv.Router()

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/requests/req-1", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var body struct {
		ID   string         `json:"id"`
		Data map[string]any `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.ID != "req-1" || body.Data["status"] != schema.RequestPending {
		t.Fatalf("unexpected body: %+v", body)
	}

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/requests/missing", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("missing doc status = %d, want 404", w.Code)
	}
}

func TestNearbyDrivers(t *testing.T) {
	srv, _, _ := newTestServer(t)
	router := srv.Router()

	// No geo index configured.
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/drivers/nearby?lat=1.3&lng=103.8", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503 without geo index", w.Code)
	}

	// Bad coordinates are rejected before the index is consulted.
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/drivers/nearby?lat=abc", nil))
	if w.Code != http.StatusServiceUnavailable && w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want a client or unavailable error", w.Code)
	}
}
