package httptransport

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"brokergate/internal/audit"
	"brokergate/internal/lifecycle"
	"brokergate/internal/platform/middleware"
	"brokergate/internal/records"
	dErrors "brokergate/pkg/domain-errors"
)

// kindRoutes maps URL segments to registered entity kinds.
var kindRoutes = map[string]string{
	"claims":   "claim",
	"policies": "policy",
}

// RecordsHandler exposes the lifecycle engine over HTTP: create records in
// their initial state, read them, submit edits, and list audit trails.
type RecordsHandler struct {
	logger       *slog.Logger
	registry     *lifecycle.Registry
	engine       *lifecycle.Engine
	store        records.Store
	audits       *audit.Publisher
	jwtValidator middleware.JWTValidator
	adminToken   string
}

func NewRecordsHandler(
	logger *slog.Logger,
	registry *lifecycle.Registry,
	engine *lifecycle.Engine,
	store records.Store,
	audits *audit.Publisher,
	jwtValidator middleware.JWTValidator,
	adminToken string,
) *RecordsHandler {
	return &RecordsHandler{
		logger:       logger,
		registry:     registry,
		engine:       engine,
		store:        store,
		audits:       audits,
		jwtValidator: jwtValidator,
		adminToken:   adminToken,
	}
}

// Register mounts the record routes. Every route requires an authenticated
// actor; the audit trail additionally requires the admin token.
func (h *RecordsHandler) Register(r chi.Router) {
	for segment, kind := range kindRoutes {
		segment, kind := segment, kind
		r.Route("/"+segment, func(r chi.Router) {
			r.Use(middleware.RequireAuth(h.jwtValidator, h.logger))
			r.Post("/", h.handleCreate(kind))
			r.Get("/{id}", h.handleGet(kind))
			r.Patch("/{id}", h.handleEdit(kind))
			r.With(middleware.RequireAdminToken(h.adminToken, h.logger)).
				Get("/{id}/audit", h.handleAuditTrail(kind))
		})
	}
}

func (h *RecordsHandler) handleCreate(kind string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		bp, ok := h.registry.Blueprint(kind)
		if !ok {
			writeError(w, dErrors.New(dErrors.CodeInternal, "no blueprint for kind "+kind))
			return
		}

		var fields lifecycle.Fields
		if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
			writeError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
			return
		}
		if _, present := fields[lifecycle.StatusField]; present {
			writeError(w, dErrors.New(dErrors.CodeBadRequest, "status cannot be set on creation"))
			return
		}

		rec := &lifecycle.Record{
			ID:     uuid.New(),
			Kind:   kind,
			Status: bp.InitialState,
			Fields: fields,
		}
		if rec.Fields == nil {
			rec.Fields = lifecycle.Fields{}
		}
		if err := h.store.Create(r.Context(), rec); err != nil {
			h.logger.ErrorContext(r.Context(), "create record failed",
				"kind", kind,
				"error", err,
				"request_id", middleware.GetRequestID(r.Context()),
			)
			writeError(w, dErrors.Wrap(err, dErrors.CodeInternal, "create record"))
			return
		}
		writeJSON(w, http.StatusCreated, toRecordResponse(rec))
	}
}

func (h *RecordsHandler) handleGet(kind string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, dErrors.New(dErrors.CodeBadRequest, "invalid record id"))
			return
		}
		rec, err := h.store.Get(r.Context(), kind, id)
		if err != nil {
			writeError(w, dErrors.Wrap(err, dErrors.CodeNotFound, kind+" record not found"))
			return
		}
		writeJSON(w, http.StatusOK, toRecordResponse(rec))
	}
}

// handleEdit is the engine's edit path: the JSON body is the partial field
// map, optionally carrying a requested transition under "status".
func (h *RecordsHandler) handleEdit(kind string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, dErrors.New(dErrors.CodeBadRequest, "invalid record id"))
			return
		}

		var fields lifecycle.Fields
		if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
			writeError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
			return
		}
		if len(fields) == 0 {
			writeError(w, dErrors.New(dErrors.CodeBadRequest, "empty edit"))
			return
		}

		actor := lifecycle.Actor{
			ID:   middleware.GetActorID(ctx),
			Role: lifecycle.RoleID(middleware.GetRole(ctx)),
		}

		updated, err := h.engine.ApplyEdit(ctx, kind, id, actor, lifecycle.EditRequest{Fields: fields})
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toRecordResponse(updated))
	}
}

type auditEntryResponse struct {
	ID         string            `json:"id"`
	ActorID    string            `json:"actorId"`
	ActorRole  string            `json:"actorRole"`
	Timestamp  time.Time         `json:"timestamp"`
	Before     map[string]any    `json:"before"`
	After      map[string]any    `json:"after"`
	Transition *audit.Transition `json:"transition"`
}

func (h *RecordsHandler) handleAuditTrail(kind string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, dErrors.New(dErrors.CodeBadRequest, "invalid record id"))
			return
		}
		// Confirm the record exists under this kind before listing.
		if _, err := h.store.Get(r.Context(), kind, id); err != nil {
			writeError(w, dErrors.Wrap(err, dErrors.CodeNotFound, kind+" record not found"))
			return
		}
		entries, err := h.audits.List(r.Context(), id)
		if err != nil {
			writeError(w, dErrors.Wrap(err, dErrors.CodeInternal, "list audit trail"))
			return
		}
		out := make([]auditEntryResponse, 0, len(entries))
		for _, entry := range entries {
			out = append(out, auditEntryResponse{
				ID:         entry.ID.String(),
				ActorID:    entry.ActorID,
				ActorRole:  entry.ActorRole,
				Timestamp:  entry.Timestamp,
				Before:     entry.Before,
				After:      entry.After,
				Transition: entry.Transition,
			})
		}
		writeJSON(w, http.StatusOK, out)
	}
}
