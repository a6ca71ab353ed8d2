package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bissquit/incident-radar/internal/domain"
	"github.com/bissquit/incident-radar/internal/snapshot"
	"github.com/bissquit/incident-radar/internal/subscribers"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSnapshots struct {
	snap *domain.Snapshot
	err  error
}

func (s *stubSnapshots) Get(_ context.Context) (*domain.Snapshot, error) { return s.snap, s.err }
func (s *stubSnapshots) Current() *domain.Snapshot                       { return s.snap }

type stubPinger struct{ err error }

func (p stubPinger) Ping(_ context.Context) error { return p.err }

func sampleSnapshot() *domain.Snapshot {
	return &domain.Snapshot{
		UpdatedAt: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		Providers: []domain.ProviderIncidents{
			{Provider: "AWS", Incidents: []domain.Incident{{ID: "a1", Provider: "AWS", Title: "Outage"}}},
			{Provider: "Azure", Incidents: []domain.Incident{{ID: "z1", Provider: "Azure", Title: "Degraded"}}},
		},
		Errors: []domain.SourceError{{Provider: "Azure", Source: "Main", Message: "timeout"}},
	}
}

func newRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	h.RegisterProbeRoutes(r)
	r.Route("/api/v1", h.RegisterRoutes)
	return r
}

func do(t *testing.T, router http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestGetStatus(t *testing.T) {
	router := newRouter(NewHandler(&stubSnapshots{snap: sampleSnapshot()}, subscribers.NewStore(nil), nil))

	rec := do(t, router, http.MethodGet, "/api/v1/status", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data domain.Snapshot `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Data.Providers, 2)
	assert.Len(t, resp.Data.Errors, 1)
}

func TestGetStatus_ProviderFilterDoesNotMutateCache(t *testing.T) {
	snap := sampleSnapshot()
	router := newRouter(NewHandler(&stubSnapshots{snap: snap}, subscribers.NewStore(nil), nil))

	rec := do(t, router, http.MethodGet, "/api/v1/status?provider=azure", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data domain.Snapshot `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Data.Providers, 1)
	assert.Equal(t, "Azure", resp.Data.Providers[0].Provider)
	assert.Len(t, resp.Data.Errors, 1)

	assert.Len(t, snap.Providers, 2)
}

func TestGetStatus_NoSnapshotYet(t *testing.T) {
	err := fmt.Errorf("%w: %w", snapshot.ErrNoSnapshot, errors.New("all feeds down"))
	router := newRouter(NewHandler(&stubSnapshots{err: err}, subscribers.NewStore(nil), nil))

	rec := do(t, router, http.MethodGet, "/api/v1/status", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "status not available yet")
}

func TestSubscribers(t *testing.T) {
	store := subscribers.NewStore(nil)
	router := newRouter(NewHandler(&stubSnapshots{}, store, nil))

	rec := do(t, router, http.MethodPost, "/api/v1/subscribers", `{"email":"A@B.com"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.JSONEq(t, `{"data":{"email":"a@b.com"}}`, rec.Body.String())

	rec = do(t, router, http.MethodPost, "/api/v1/subscribers", `{"email":"a@b.com"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)

	rec = do(t, router, http.MethodGet, "/api/v1/subscribers/count", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"data":{"count":1}}`, rec.Body.String())

	rec = do(t, router, http.MethodDelete, "/api/v1/subscribers", `{"email":"missing@x.com"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)

	rec = do(t, router, http.MethodDelete, "/api/v1/subscribers", `{"email":"a@b.com"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Zero(t, store.Count())
}

func TestSubscribe_Rejections(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"invalid email", `{"email":"not-an-email"}`},
		{"missing email", `{}`},
		{"unknown field", `{"email":"a@b.com","name":"x"}`},
		{"malformed json", `{"email":`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := subscribers.NewStore(nil)
			router := newRouter(NewHandler(&stubSnapshots{}, store, nil))

			rec := do(t, router, http.MethodPost, "/api/v1/subscribers", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Zero(t, store.Count())
		})
	}
}

func TestHealthz(t *testing.T) {
	t.Run("before first snapshot", func(t *testing.T) {
		router := newRouter(NewHandler(&stubSnapshots{}, subscribers.NewStore(nil), nil))
		rec := do(t, router, http.MethodGet, "/healthz", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"status":"ok","updated_at":null}`, rec.Body.String())
	})

	t.Run("with snapshot", func(t *testing.T) {
		router := newRouter(NewHandler(&stubSnapshots{snap: sampleSnapshot()}, subscribers.NewStore(nil), nil))
		rec := do(t, router, http.MethodGet, "/healthz", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"status":"ok","updated_at":"2024-03-01T12:00:00Z"}`, rec.Body.String())
	})
}

func TestReadyz(t *testing.T) {
	tests := []struct {
		name   string
		db     Pinger
		status int
	}{
		{"no database", nil, http.StatusOK},
		{"database up", stubPinger{}, http.StatusOK},
		{"database down", stubPinger{err: errors.New("refused")}, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newRouter(NewHandler(&stubSnapshots{}, subscribers.NewStore(nil), tt.db))
			rec := do(t, router, http.MethodGet, "/readyz", "")
			assert.Equal(t, tt.status, rec.Code)
		})
	}
}

func TestVersion(t *testing.T) {
	router := newRouter(NewHandler(&stubSnapshots{}, subscribers.NewStore(nil), nil))
	rec := do(t, router, http.MethodGet, "/version", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"version"`)
}
