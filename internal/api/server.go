package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/go-chi/jwtauth/v5"
	"github.com/google/uuid"

	"rulegate/internal/audit"
	"rulegate/internal/auth"
	"rulegate/internal/backup"
	"rulegate/internal/config"
	"rulegate/internal/discovery"
	"rulegate/internal/ledger"
	"rulegate/internal/models"
	"rulegate/internal/orchestrator"
	"rulegate/internal/provider"
	"rulegate/internal/resolver"
	"rulegate/internal/stateindex"
	"rulegate/internal/store"
)

// Server holds routing dependencies.
type Server struct {
	Config       *config.Config
	Store        *store.Store
	Auth         *auth.Service
	Ledger       *ledger.Ledger
	Index        *stateindex.Index
	Orchestrator *orchestrator.Service
	Importer     *discovery.Importer
	Provider     provider.API
	Audit        *audit.Log
	Backup       *backup.Service
}

// Routes constructs the HTTP router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://*", "https://*"},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	if s.Config != nil && s.Config.APIRatePerMinute > 0 {
		r.Use(rateLimiter(s.Config.APIRatePerMinute, s.Config.APIRateBurst))
	}
	if s.Config != nil && s.Config.MaxRequestBodyBytes > 0 {
		limit := s.Config.MaxRequestBodyBytes
		r.Use(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				r.Body = http.MaxBytesReader(w, r.Body, limit)
				next.ServeHTTP(w, r)
			})
		})
	}

	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)

	r.Group(func(r chi.Router) {
		if s.Config != nil && s.Config.LoginRatePerMinute > 0 {
			r.Use(rateLimiter(s.Config.LoginRatePerMinute, s.Config.LoginRateBurst))
		}
		r.Post("/auth/login", s.handleLogin)
	})

	tokenAuth := s.Auth.TokenAuth()

	r.Group(func(r chi.Router) {
		r.Use(jwtauth.Verifier(tokenAuth))
		r.Use(jwtauth.Authenticator)

		r.Route("/api/v1", func(r chi.Router) {
			r.Get("/templates", s.authorize(s.handleListTemplates))
			r.Post("/templates", s.requireAdmin(s.handleCreateTemplate))
			r.Get("/templates/{id}", s.authorize(s.handleGetTemplate))
			r.Put("/templates/{id}", s.requireAdmin(s.handleUpdateTemplate))
			r.Delete("/templates/{id}", s.requireAdmin(s.handleDeleteTemplate))
			r.Get("/templates/{id}/affected-domains", s.authorize(s.handleAffectedDomains))
			r.Post("/templates/{id}/apply", s.requireAdmin(s.handleApplyTemplate))
			r.Post("/templates/{id}/resync", s.requireAdmin(s.handleResyncTemplate))

			r.Get("/zones", s.authorize(s.handleListZones))
			r.Get("/zones/{zoneID}", s.authorize(s.handleGetZone))
			r.Post("/zones/refresh", s.requireAdmin(s.handleRefreshZones))

			r.Post("/discovery/run", s.requireAdmin(s.handleDiscoveryRun))

			r.Get("/log", s.authorize(s.handleApplicationLog))

			r.Get("/preferences", s.authorize(s.handleGetPreferences))
			r.Put("/preferences", s.requireAdmin(s.handlePutPreferences))

			r.Route("/admin", func(r chi.Router) {
				r.Get("/backups", s.requireAdmin(s.handleListBackups))
				r.Post("/backups", s.requireAdmin(s.handleCreateBackup))
				r.Get("/users", s.requireAdmin(s.handleListUsers))
				r.Post("/users", s.requireAdmin(s.handleCreateUser))
				r.Put("/users/{id}", s.requireAdmin(s.handleUpdateUser))
				r.Delete("/users/{id}", s.requireAdmin(s.handleDeleteUser))
			})
		})
	})

	return r
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if _, err := s.Store.GetTemplateCollection(); err != nil {
		writeError(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string          `json:"token"`
	User  models.User     `json:"user"`
	Role  models.UserRole `json:"role"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	user, err := s.Store.FindUserByEmail(strings.ToLower(req.Email))
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if err := auth.CheckPassword(user.Password, req.Password); err != nil {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	token, err := s.Auth.IssueToken(*user)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to issue token")
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{
		Token: token,
		User:  user.Sanitize(),
		Role:  user.Role,
	})
}

func (s *Server) authorize(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		_, claims, err := jwtauth.FromContext(ctx)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		sub := auth.SubjectFromClaims(claims)
		if sub == "" {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		ctx = withUserContext(ctx, sub, auth.RoleFromClaims(claims))
		next.ServeHTTP(w, r.WithContext(ctx))
	}
}

func (s *Server) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return s.authorize(func(w http.ResponseWriter, r *http.Request) {
		if userFromContext(r.Context()).Role != models.RoleAdmin {
			writeError(w, http.StatusForbidden, "admin required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	templates, err := s.Ledger.List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, templates)
}

func (s *Server) handleCreateTemplate(w http.ResponseWriter, r *http.Request) {
	var req models.RuleTemplate
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	created, err := s.Ledger.Create(req)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleGetTemplate(w http.ResponseWriter, r *http.Request) {
	tmpl, err := s.Ledger.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tmpl)
}

type updateTemplateRequest struct {
	Name             *string                `json:"name,omitempty"`
	Description      *string                `json:"description,omitempty"`
	Expression       *string                `json:"expression,omitempty"`
	Action           *models.RuleAction     `json:"action,omitempty"`
	ActionParameters map[string]interface{} `json:"action_parameters,omitempty"`
	Tags             []string               `json:"tags,omitempty"`
	ApplicableTags   []string               `json:"applicable_tags,omitempty"`
	ExcludedDomains  []string               `json:"excluded_domains,omitempty"`
	Enabled          *bool                  `json:"enabled,omitempty"`
	Priority         *int                   `json:"priority,omitempty"`
}

type updateTemplateResponse struct {
	Template       models.RuleTemplate `json:"template"`
	VersionChanged bool                `json:"version_changed"`
}

func (s *Server) handleUpdateTemplate(w http.ResponseWriter, r *http.Request) {
	var req updateTemplateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	tmpl, versionChanged, err := s.Ledger.Update(chi.URLParam(r, "id"), ledger.UpdateFields{
		Name:             req.Name,
		Description:      req.Description,
		Expression:       req.Expression,
		Action:           req.Action,
		ActionParameters: req.ActionParameters,
		Tags:             req.Tags,
		ApplicableTags:   req.ApplicableTags,
		ExcludedDomains:  req.ExcludedDomains,
		Enabled:          req.Enabled,
		Priority:         req.Priority,
	})
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updateTemplateResponse{Template: tmpl, VersionChanged: versionChanged})
}

func (s *Server) handleDeleteTemplate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	tmpl, err := s.Ledger.Get(id)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	snapshots, err := s.snapshotSlice()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if used := resolver.InUse(*tmpl, snapshots); len(used) > 0 {
		zones := make([]string, 0, len(used))
		for _, snap := range used {
			zones = append(zones, snap.DomainName)
		}
		writeJSON(w, http.StatusConflict, map[string]interface{}{
			"error": "template is applied to zones; remove it from them first",
			"zones": zones,
		})
		return
	}
	deleted, err := s.Ledger.Delete(id)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, deleted)
}

func (s *Server) handleAffectedDomains(w http.ResponseWriter, r *http.Request) {
	tmpl, err := s.Ledger.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	snapshots, err := s.snapshotSlice()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	affected := resolver.FindOutdated(*tmpl, snapshots)
	writeJSON(w, http.StatusOK, affected)
}

type applyRequest struct {
	ZoneIDs    []string                  `json:"zone_ids,omitempty"`
	Resolution models.ConflictResolution `json:"resolution,omitempty"`
	Preview    *bool                     `json:"preview,omitempty"`
}

func (s *Server) handleApplyTemplate(w http.ResponseWriter, r *http.Request) {
	tmpl, err := s.Ledger.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	var req applyRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid payload")
			return
		}
	}
	prefs, err := s.Store.GetPreferences()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	resolution := req.Resolution
	if resolution == "" {
		resolution = prefs.DefaultResolution
	}
	if resolution == "" {
		resolution = models.ResolutionSkip
	}
	preview := prefs.DefaultPreview
	if req.Preview != nil {
		preview = *req.Preview
	}
	targets, err := s.resolveTargets(r.Context(), req.ZoneIDs)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !preview && s.Backup != nil {
		if _, err := s.Backup.Create("pre-apply " + tmpl.FriendlyID); err != nil && !errors.Is(err, backup.ErrSnapshotInProgress) {
			log.Printf("api: pre-apply snapshot failed: %v", err)
		}
	}
	report, err := s.Orchestrator.Apply(r.Context(), *tmpl, targets, resolution, preview)
	if err != nil {
		if errors.As(err, new(models.ErrValidation)) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !preview {
		go s.refreshAsync(targets)
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleResyncTemplate(w http.ResponseWriter, r *http.Request) {
	tmpl, err := s.Ledger.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	var req applyRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid payload")
			return
		}
	}
	targets, err := s.resolveTargets(r.Context(), req.ZoneIDs)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	successful, failures := s.Orchestrator.Resync(r.Context(), *tmpl, targets, nil)
	go s.refreshAsync(targets)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"successful": successful,
		"failures":   failures,
	})
}

func (s *Server) handleListZones(w http.ResponseWriter, r *http.Request) {
	state, err := s.Index.Snapshots()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (s *Server) handleGetZone(w http.ResponseWriter, r *http.Request) {
	zoneID := chi.URLParam(r, "zoneID")
	snap, ok, err := s.Index.Snapshot(zoneID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "zone not analyzed")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleRefreshZones(w http.ResponseWriter, r *http.Request) {
	zones, err := provider.ListAllZones(r.Context(), s.Provider, 0)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	refreshed, err := s.Index.RefreshAll(r.Context(), zones)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, refreshed)
}

type discoveryRequest struct {
	ZoneIDs []string `json:"zone_ids,omitempty"`
}

func (s *Server) handleDiscoveryRun(w http.ResponseWriter, r *http.Request) {
	var req discoveryRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid payload")
			return
		}
	}
	zones, err := provider.ListAllZones(r.Context(), s.Provider, 0)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	if len(req.ZoneIDs) > 0 {
		zones, err = filterZones(zones, req.ZoneIDs)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	result, err := s.Importer.Run(r.Context(), zones)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleApplicationLog(w http.ResponseWriter, r *http.Request) {
	entries, err := s.Audit.List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleGetPreferences(w http.ResponseWriter, r *http.Request) {
	prefs, err := s.Store.GetPreferences()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, prefs)
}

func (s *Server) handlePutPreferences(w http.ResponseWriter, r *http.Request) {
	var prefs models.Preferences
	if err := json.NewDecoder(r.Body).Decode(&prefs); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if prefs.DefaultResolution != "" && !prefs.DefaultResolution.Valid() {
		writeError(w, http.StatusBadRequest, "invalid default_resolution")
		return
	}
	prefs.UpdatedAt = time.Now().UTC()
	if err := s.Store.SavePreferences(prefs); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, prefs)
}

func (s *Server) handleListBackups(w http.ResponseWriter, r *http.Request) {
	snapshots, err := s.Backup.List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, snapshots)
}

func (s *Server) handleCreateBackup(w http.ResponseWriter, r *http.Request) {
	desc, err := s.Backup.Create("manual")
	if err != nil {
		if errors.Is(err, backup.ErrSnapshotInProgress) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, desc)
}

type userRequest struct {
	Email    string          `json:"email"`
	Password string          `json:"password"`
	Role     models.UserRole `json:"role"`
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.Store.GetUsers()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	sanitized := make([]models.User, 0, len(users))
	for _, u := range users {
		sanitized = append(sanitized, u.Sanitize())
	}
	writeJSON(w, http.StatusOK, sanitized)
}

func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req userRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "email and password required")
		return
	}
	if req.Role == "" {
		req.Role = models.RoleViewer
	}
	if req.Role != models.RoleAdmin && req.Role != models.RoleViewer {
		writeError(w, http.StatusBadRequest, "invalid role")
		return
	}
	if existing, _ := s.Store.FindUserByEmail(req.Email); existing != nil {
		writeError(w, http.StatusConflict, "email already registered")
		return
	}
	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to hash password")
		return
	}
	now := time.Now().UTC()
	user := models.User{
		ID:        uuid.NewString(),
		Email:     req.Email,
		Role:      req.Role,
		Password:  hash,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.Store.UpsertUser(user); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, user.Sanitize())
}

func (s *Server) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	user, err := s.Store.GetUserByID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "user not found")
		return
	}
	var req userRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if req.Email != "" {
		user.Email = strings.ToLower(strings.TrimSpace(req.Email))
	}
	if req.Role != "" {
		if req.Role != models.RoleAdmin && req.Role != models.RoleViewer {
			writeError(w, http.StatusBadRequest, "invalid role")
			return
		}
		user.Role = req.Role
	}
	if req.Password != "" {
		hash, err := auth.HashPassword(req.Password)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to hash password")
			return
		}
		user.Password = hash
	}
	user.UpdatedAt = time.Now().UTC()
	if err := s.Store.UpsertUser(*user); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, user.Sanitize())
}

func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == userFromContext(r.Context()).ID {
		writeError(w, http.StatusBadRequest, "cannot delete own account")
		return
	}
	if err := s.Store.DeleteUser(id); err != nil {
		writeError(w, http.StatusNotFound, "user not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// snapshotSlice flattens the persisted per-zone state into a slice.
func (s *Server) snapshotSlice() ([]models.DomainRuleStatus, error) {
	state, err := s.Index.Snapshots()
	if err != nil {
		return nil, err
	}
	out := make([]models.DomainRuleStatus, 0, len(state.Zones))
	for _, snap := range state.Zones {
		out = append(out, snap)
	}
	return out, nil
}

// resolveTargets lists the provider's zones and narrows them to the
// requested ids. An unknown id is a caller error, not a silent skip.
func (s *Server) resolveTargets(ctx context.Context, zoneIDs []string) ([]orchestrator.TargetZone, error) {
	zones, err := provider.ListAllZones(ctx, s.Provider, 0)
	if err != nil {
		return nil, err
	}
	if len(zoneIDs) > 0 {
		zones, err = filterZones(zones, zoneIDs)
		if err != nil {
			return nil, err
		}
	}
	targets := make([]orchestrator.TargetZone, 0, len(zones))
	for _, zone := range zones {
		targets = append(targets, orchestrator.TargetZone{ZoneID: zone.ID, DomainName: zone.Name})
	}
	return targets, nil
}

func filterZones(zones []provider.Zone, ids []string) ([]provider.Zone, error) {
	byID := make(map[string]provider.Zone, len(zones))
	for _, z := range zones {
		byID[z.ID] = z
	}
	out := make([]provider.Zone, 0, len(ids))
	for _, id := range ids {
		zone, ok := byID[id]
		if !ok {
			return nil, errors.New("unknown zone id: " + id)
		}
		out = append(out, zone)
	}
	return out, nil
}

// refreshAsync re-analyzes the touched zones after a mutation so the
// snapshots catch up without blocking the response.
func (s *Server) refreshAsync(targets []orchestrator.TargetZone) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	zones := make([]provider.Zone, 0, len(targets))
	for _, t := range targets {
		zones = append(zones, provider.Zone{ID: t.ZoneID, Name: t.DomainName})
	}
	_, _ = s.Index.RefreshAll(ctx, zones)
}

func writeLedgerError(w http.ResponseWriter, err error) {
	switch {
	case errors.As(err, new(models.ErrValidation)):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, new(models.ErrNotFound)):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// rateLimiter adapts the configured per-minute ceiling to httprate's
// per-second token bucket. An enabled limit is never rounded down to zero,
// and the burst is floored at the refill rate so a single request can
// always pass.
func rateLimiter(perMinute, burst int) func(http.Handler) http.Handler {
	rps := perMinute / 60
	if rps < 1 {
		rps = 1
	}
	if burst < rps {
		burst = rps
	}
	return httprate.LimitByIP(rps, burst)
}

type userContextKey struct{}

type userContext struct {
	ID   string
	Role models.UserRole
}

func withUserContext(ctx context.Context, id string, role models.UserRole) context.Context {
	return context.WithValue(ctx, userContextKey{}, userContext{ID: id, Role: role})
}

func userFromContext(ctx context.Context) userContext {
	val := ctx.Value(userContextKey{})
	if u, ok := val.(userContext); ok {
		return u
	}
	return userContext{}
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
