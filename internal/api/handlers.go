// Package api exposes HTTP handlers for the directory service.
package api

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"example.com/directory/internal/auth"
	"example.com/directory/internal/domain"
	"example.com/directory/internal/geo"
	"example.com/directory/internal/persistence"
)

const defaultRadiusKm = 1.0

// Options carries handler settings that come from configuration.
type Options struct {
	Auth     auth.Config
	APIKey   string
	TokenTTL time.Duration
	Limits   persistence.PageLimits
	Logger   zerolog.Logger
	Now      func() time.Time
}

// Handler coordinates HTTP requests with the domain service.
type Handler struct {
	service *domain.Service
	opts    Options
}

// NewHandler builds a Handler.
func NewHandler(service *domain.Service, opts Options) *Handler {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.TokenTTL <= 0 {
		opts.TokenTTL = 20 * time.Minute
	}
	return &Handler{service: service, opts: opts}
}

// RegisterRoutes wires endpoints to the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/organizations", h.readScope(h.organizationsByActivity))
	mux.HandleFunc("GET /api/v1/organizations/search", h.readScope(h.searchOrganizations))
	mux.HandleFunc("GET /api/v1/organizations/{id}", h.readScope(h.organizationDetail))
	mux.HandleFunc("GET /api/v1/buildings/{id}/organizations", h.readScope(h.buildingOrganizations))
	mux.HandleFunc("GET /api/v1/area/radius", h.readScope(h.organizationsInRadius))
	mux.HandleFunc("GET /api/v1/area/bbox", h.readScope(h.organizationsInBBox))
	mux.HandleFunc("POST /api/v1/activities", h.createActivity)
	mux.HandleFunc("POST /api/v1/auth/token", h.issueToken)
	mux.HandleFunc("GET /healthz", healthz)
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) readScope(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := auth.FromContext(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
			return
		}
		if !claims.HasAnyScope(auth.ScopeDirectoryRead, auth.ScopeDirectoryWrite) {
			writeError(w, http.StatusForbidden, "forbidden", "scope "+auth.ScopeDirectoryRead+" required")
			return
		}
		next(w, r)
	}
}

func (h *Handler) organizationsByActivity(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, err := persistence.ParsePage(q.Get("limit"), q.Get("offset"), h.opts.Limits)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	ref := domain.ActivityRef{Name: q.Get("activity_name")}
	if raw := strings.TrimSpace(q.Get("activity_id")); raw != "" {
		id, err := parseID(raw, "activity_id")
		if err != nil {
			h.writeDomainError(w, r, err)
			return
		}
		ref.ID = &id
	}

	orgs, err := h.service.OrganizationsByActivity(r.Context(), ref, page)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrganizationViews(orgs))
}

func (h *Handler) searchOrganizations(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, err := persistence.ParsePage(q.Get("limit"), "", h.opts.Limits)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	details, err := h.service.SearchOrganizations(r.Context(), q.Get("name"), page.Limit)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	out := make([]OrganizationDetailView, 0, len(details))
	for _, d := range details {
		out = append(out, toOrganizationDetailView(d))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) organizationDetail(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r.PathValue("id"), "id")
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	detail, err := h.service.OrganizationDetail(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrganizationDetailView(*detail))
}

func (h *Handler) buildingOrganizations(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r.PathValue("id"), "id")
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	q := r.URL.Query()
	page, err := persistence.ParsePage(q.Get("limit"), q.Get("offset"), h.opts.Limits)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	result, err := h.service.BuildingWithOrganizations(r.Context(), id, page)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toBuildingOrganizationsView(*result))
}

func (h *Handler) organizationsInRadius(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, err := persistence.ParsePage(q.Get("limit"), q.Get("offset"), h.opts.Limits)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	lat, err := parseFloat(q.Get("lat"), "lat", nil)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	lon, err := parseFloat(q.Get("lon"), "lon", nil)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	radius := defaultRadiusKm
	radiusKm, err := parseFloat(q.Get("radius_km"), "radius_km", &radius)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	groups, err := h.service.OrganizationsInRadius(r.Context(), geo.Point{Lat: lat, Lon: lon}, radiusKm, page)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toBuildingOrganizationsViews(groups))
}

func (h *Handler) organizationsInBBox(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, err := persistence.ParsePage(q.Get("limit"), q.Get("offset"), h.opts.Limits)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	var box geo.BBox
	for _, field := range []struct {
		name string
		dst  *float64
	}{
		{"min_lat", &box.MinLat},
		{"max_lat", &box.MaxLat},
		{"min_lon", &box.MinLon},
		{"max_lon", &box.MaxLon},
	} {
		v, err := parseFloat(q.Get(field.name), field.name, nil)
		if err != nil {
			h.writeDomainError(w, r, err)
			return
		}
		*field.dst = v
	}

	groups, err := h.service.OrganizationsInBBox(r.Context(), box, page)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toBuildingOrganizationsViews(groups))
}

func (h *Handler) createActivity(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return
	}
	if !claims.HasScope(auth.ScopeDirectoryWrite) {
		writeError(w, http.StatusForbidden, "forbidden", "scope "+auth.ScopeDirectoryWrite+" required")
		return
	}

	var req CreateActivityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}

	creation, err := h.service.CreateActivity(r.Context(), req.Name, req.ParentID)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, CreateActivityResponse{
		ID:             creation.Activity.ID,
		Name:           creation.Activity.Name,
		ParentID:       creation.ParentID,
		TruncatedLinks: creation.Truncated,
	})
}

func (h *Handler) issueToken(w http.ResponseWriter, r *http.Request) {
	if h.opts.APIKey != "" {
		presented := auth.BearerToken(r)
		if subtle.ConstantTimeCompare([]byte(presented), []byte(h.opts.APIKey)) != 1 {
			writeError(w, http.StatusUnauthorized, "unauthorized", "invalid api key")
			return
		}
	}

	var req TokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}
	subject := strings.TrimSpace(req.Subject)
	if subject == "" {
		subject = "directory-client"
	}

	now := h.opts.Now()
	token, expires, err := auth.Issue(h.opts.Auth, subject, auth.DefaultScopes, h.opts.TokenTTL, now)
	if err != nil {
		h.writeDomainError(w, r, &domain.InternalError{Op: "issue token", Err: err})
		return
	}
	writeJSON(w, http.StatusOK, TokenResponse{
		AccessToken: token,
		TokenType:   "bearer",
		ExpiresIn:   int64(math.Round(expires.Sub(now).Seconds())),
	})
}

func (h *Handler) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var validation *domain.ValidationError
	switch {
	case errors.As(err, &validation):
		writeError(w, http.StatusUnprocessableEntity, "validation_failed", validation.Error())
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	default:
		logger := zerolog.Ctx(r.Context())
		if logger.GetLevel() == zerolog.Disabled {
			logger = &h.opts.Logger
		}
		logger.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		writeError(w, http.StatusInternalServerError, "server_error", "internal server error")
	}
}

func parseID(raw, field string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id < 1 {
		return 0, &domain.ValidationError{Field: field, Reason: "must be a positive integer"}
	}
	return id, nil
}

// parseFloat reads a finite number; an empty value yields fallback or a required-field error.
func parseFloat(raw, field string, fallback *float64) (float64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		if fallback != nil {
			return *fallback, nil
		}
		return 0, &domain.ValidationError{Field: field, Reason: "is required"}
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, &domain.ValidationError{Field: field, Reason: "must be a number"}
	}
	return v, nil
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	payload := map[string]string{
		"type":   code,
		"detail": detail,
	}
	writeJSON(w, status, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
