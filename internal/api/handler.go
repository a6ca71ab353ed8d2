// Package api exposes the snapshot and subscriber operations over HTTP.
package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/bissquit/incident-radar/internal/domain"
	"github.com/bissquit/incident-radar/internal/pkg/ctxlog"
	"github.com/bissquit/incident-radar/internal/pkg/httputil"
	"github.com/bissquit/incident-radar/internal/snapshot"
	"github.com/bissquit/incident-radar/internal/subscribers"
	"github.com/bissquit/incident-radar/internal/version"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

// SnapshotReader serves the current snapshot, refreshing it when stale.
type SnapshotReader interface {
	Get(ctx context.Context) (*domain.Snapshot, error)
	Current() *domain.Snapshot
}

// SubscriberStore mutates and counts email subscribers.
type SubscriberStore interface {
	Add(ctx context.Context, email string) (string, error)
	Remove(ctx context.Context, email string) (string, error)
	Count() int
}

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler handles HTTP requests for the public surface.
type Handler struct {
	snapshots   SnapshotReader
	subscribers SubscriberStore
	db          Pinger
	validator   *validator.Validate
}

// NewHandler creates a new handler. db may be nil when persistence is disabled.
func NewHandler(snapshots SnapshotReader, subscribers SubscriberStore, db Pinger) *Handler {
	return &Handler{
		snapshots:   snapshots,
		subscribers: subscribers,
		db:          db,
		validator:   validator.New(),
	}
}

var errorMappings = []httputil.ErrorMapping{
	{Error: subscribers.ErrInvalidEmail, Status: http.StatusBadRequest},
	{Error: snapshot.ErrNoSnapshot, Status: http.StatusServiceUnavailable, Message: "status not available yet"},
}

// RegisterProbeRoutes registers health, readiness and version endpoints.
func (h *Handler) RegisterProbeRoutes(r chi.Router) {
	r.Get("/healthz", h.Healthz)
	r.Get("/readyz", h.Readyz)
	r.Get("/version", h.Version)
}

// RegisterRoutes registers the /api/v1 routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/status", h.GetStatus)
	r.Post("/subscribers", h.Subscribe)
	r.Delete("/subscribers", h.Unsubscribe)
	r.Get("/subscribers/count", h.CountSubscribers)
}

// GetStatus handles GET /status.
func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	snap, err := h.snapshots.Get(r.Context())
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	if provider := strings.TrimSpace(r.URL.Query().Get("provider")); provider != "" {
		snap = filterProvider(snap, provider)
	}

	httputil.Success(w, http.StatusOK, snap)
}

// filterProvider returns a copy of snap holding only the named provider,
// matched case-insensitively, and its errors.
func filterProvider(snap *domain.Snapshot, provider string) *domain.Snapshot {
	filtered := &domain.Snapshot{
		UpdatedAt: snap.UpdatedAt,
		Providers: make([]domain.ProviderIncidents, 0, 1),
		Errors:    make([]domain.SourceError, 0),
	}
	for _, p := range snap.Providers {
		if strings.EqualFold(p.Provider, provider) {
			filtered.Providers = append(filtered.Providers, p)
		}
	}
	for _, e := range snap.Errors {
		if strings.EqualFold(e.Provider, provider) {
			filtered.Errors = append(filtered.Errors, e)
		}
	}
	return filtered
}

// SubscriptionRequest is the body of subscribe and unsubscribe requests.
type SubscriptionRequest struct {
	Email string `json:"email" validate:"required,max=254"`
}

// SubscriptionResponse echoes the normalized address.
type SubscriptionResponse struct {
	Email string `json:"email"`
}

// Subscribe handles POST /subscribers.
func (h *Handler) Subscribe(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeSubscription(w, r)
	if !ok {
		return
	}

	email, err := h.subscribers.Add(r.Context(), req.Email)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	ctxlog.FromContext(r.Context()).Info("subscriber added", "count", h.subscribers.Count())
	httputil.Success(w, http.StatusAccepted, SubscriptionResponse{Email: email})
}

// Unsubscribe handles DELETE /subscribers.
func (h *Handler) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeSubscription(w, r)
	if !ok {
		return
	}

	email, err := h.subscribers.Remove(r.Context(), req.Email)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	ctxlog.FromContext(r.Context()).Info("subscriber removed", "count", h.subscribers.Count())
	httputil.Success(w, http.StatusAccepted, SubscriptionResponse{Email: email})
}

func (h *Handler) decodeSubscription(w http.ResponseWriter, r *http.Request) (SubscriptionRequest, bool) {
	var req SubscriptionRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, http.StatusBadRequest, err.Error())
		return req, false
	}

	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return req, false
	}
	return req, true
}

// CountResponse is the subscriber count payload.
type CountResponse struct {
	Count int `json:"count"`
}

// CountSubscribers handles GET /subscribers/count.
func (h *Handler) CountSubscribers(w http.ResponseWriter, _ *http.Request) {
	httputil.Success(w, http.StatusOK, CountResponse{Count: h.subscribers.Count()})
}

// HealthResponse reports liveness and the time of the last published snapshot.
type HealthResponse struct {
	Status    string     `json:"status"`
	UpdatedAt *time.Time `json:"updated_at"`
}

// Healthz handles GET /healthz. It never triggers a refresh.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	resp := HealthResponse{Status: "ok"}
	if snap := h.snapshots.Current(); snap != nil {
		updatedAt := snap.UpdatedAt
		resp.UpdatedAt = &updatedAt
	}
	httputil.JSON(w, http.StatusOK, resp)
}

// Readyz handles GET /readyz.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	if h.db == nil {
		httputil.Text(w, http.StatusOK, "OK")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.db.Ping(ctx); err != nil {
		ctxlog.FromContext(r.Context()).Error("readiness check failed", "error", err)
		httputil.Text(w, http.StatusServiceUnavailable, "Database unavailable")
		return
	}

	httputil.Text(w, http.StatusOK, "OK")
}

// Version handles GET /version.
func (h *Handler) Version(w http.ResponseWriter, _ *http.Request) {
	httputil.JSON(w, http.StatusOK, map[string]string{
		"version":    version.Version,
		"commit":     version.GitCommit,
		"build_date": version.BuildDate,
	})
}
