// Package httpapi is a small JSON API over tracked entities and their field
// log history.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	gojson "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/graph-gophers/dataloader"
	"go.uber.org/zap"

	"github.com/rpattn/fieldlog/internal/domain"
	"github.com/rpattn/fieldlog/internal/fieldlog"
	"github.com/rpattn/fieldlog/internal/middleware"
	"github.com/rpattn/fieldlog/internal/repository"
)

// Reloader rebuilds the field log registry.
type Reloader interface {
	Reload(ctx context.Context) error
}

// Handler serves the entity, schema and history endpoints.
type Handler struct {
	entities *fieldlog.TrackedEntityRepository
	schemas  repository.EntitySchemaRepository
	logs     repository.FieldLogRepository
	registry Reloader
	export   http.Handler
	log      *zap.Logger
}

// New creates a Handler. export serves the spreadsheet downloads and may be nil.
func New(
	entities *fieldlog.TrackedEntityRepository,
	schemas repository.EntitySchemaRepository,
	logs repository.FieldLogRepository,
	registry Reloader,
	export http.Handler,
	log *zap.Logger,
) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{
		entities: entities,
		schemas:  schemas,
		logs:     logs,
		registry: registry,
		export:   export,
		log:      log,
	}
}

// Register registers the routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	router := chi.NewRouter()
	router.Use(middleware.LoggingMiddleware(h.log))
	router.Use(middleware.DataLoaderMiddleware(h.entities))

	router.Post("/schemas", h.handleCreateSchema)
	router.Get("/schemas", h.handleListSchemas)

	router.Post("/entities", h.handleCreateEntity)
	router.Post("/entities/bulk", h.handleBulkCreate)
	router.Patch("/entities/bulk", h.handleBulkUpdate)
	router.Get("/entities/{id}", h.handleGetEntity)
	router.Patch("/entities/{id}", h.handlePatchEntity)
	router.Get("/entities/{id}/field-logs", h.handleListFieldLogs)
	if h.export != nil {
		router.Get("/entities/{id}/field-logs.xlsx", h.export.ServeHTTP)
		router.Get("/entities/{id}/field-logs.csv", h.export.ServeHTTP)
	}

	router.Post("/admin/fieldlog/reload", h.handleReload)

	r.Mount("/", router)
}

type schemaPayload struct {
	Name        string                   `json:"name"`
	Description string                   `json:"description"`
	Fields      []domain.FieldDefinition `json:"fields"`
}

func (h *Handler) handleCreateSchema(w http.ResponseWriter, r *http.Request) {
	var payload schemaPayload
	if !decode(w, r, &payload) {
		return
	}
	name := strings.TrimSpace(payload.Name)
	if name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	schema, err := h.schemas.Create(r.Context(), domain.NewEntitySchema(name, payload.Description, payload.Fields))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, schema)
}

func (h *Handler) handleListSchemas(w http.ResponseWriter, r *http.Request) {
	schemas, err := h.schemas.List(r.Context())
	if err != nil {
		h.internalError(w, r, "failed to list schemas", err)
		return
	}
	writeJSON(w, http.StatusOK, schemas)
}

type entityPayload struct {
	ID         *uuid.UUID     `json:"id"`
	EntityType string         `json:"entity_type"`
	Properties map[string]any `json:"properties"`
}

func (h *Handler) handleCreateEntity(w http.ResponseWriter, r *http.Request) {
	var payload entityPayload
	if !decode(w, r, &payload) {
		return
	}
	entity, ok := h.newEntity(w, r, payload)
	if !ok {
		return
	}

	saved, err := h.entities.Create(r.Context(), entity)
	h.writeSaved(w, r, http.StatusCreated, saved, err)
}

func (h *Handler) handleGetEntity(w http.ResponseWriter, r *http.Request) {
	entity, ok := h.loadEntity(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, entity)
}

type patchPayload struct {
	Properties map[string]any `json:"properties"`
}

// handlePatchEntity writes the given properties over the stored ones. Only
// the patched fields are written and tracked.
func (h *Handler) handlePatchEntity(w http.ResponseWriter, r *http.Request) {
	var payload patchPayload
	if !decode(w, r, &payload) {
		return
	}
	if len(payload.Properties) == 0 {
		writeError(w, http.StatusBadRequest, "properties are required")
		return
	}

	current, ok := h.loadEntity(w, r)
	if !ok {
		return
	}
	fields := make([]string, 0, len(payload.Properties))
	for field := range payload.Properties {
		fields = append(fields, field)
	}

	patch := domain.Entity{ID: current.ID, EntityType: current.EntityType, Properties: payload.Properties}
	saved, err := h.entities.UpdateFields(r.Context(), patch, fields)
	h.writeSaved(w, r, http.StatusOK, saved, err)
}

type bulkCreatePayload struct {
	Entities      []entityPayload `json:"entities"`
	SkipLogFields bool            `json:"skip_log_fields"`
	SkipCallbacks bool            `json:"skip_callbacks"`
}

func (h *Handler) handleBulkCreate(w http.ResponseWriter, r *http.Request) {
	var payload bulkCreatePayload
	if !decode(w, r, &payload) {
		return
	}
	entities := make([]domain.Entity, 0, len(payload.Entities))
	for _, item := range payload.Entities {
		entity, ok := h.newEntity(w, r, item)
		if !ok {
			return
		}
		entities = append(entities, entity)
	}

	created, err := h.entities.BulkCreate(r.Context(), entities, fieldlog.BulkOptions{
		SkipLogFields: payload.SkipLogFields,
		SkipCallbacks: payload.SkipCallbacks,
	})
	h.writeSavedBatch(w, r, http.StatusCreated, created, err)
}

type bulkUpdatePayload struct {
	Entities []struct {
		ID         uuid.UUID      `json:"id"`
		Properties map[string]any `json:"properties"`
	} `json:"entities"`
	Fields        []string `json:"fields"`
	SkipLogFields bool     `json:"skip_log_fields"`
	SkipCallbacks bool     `json:"skip_callbacks"`
}

// handleBulkUpdate replaces the properties of every listed entity. With
// fields set, only those fields are written and tracked.
func (h *Handler) handleBulkUpdate(w http.ResponseWriter, r *http.Request) {
	var payload bulkUpdatePayload
	if !decode(w, r, &payload) {
		return
	}

	ids := make([]uuid.UUID, len(payload.Entities))
	for i, item := range payload.Entities {
		ids[i] = item.ID
	}
	stored, err := h.entities.GetByIDs(r.Context(), ids)
	if err != nil {
		h.internalError(w, r, "failed to load entities", err)
		return
	}
	types := make(map[uuid.UUID]string, len(stored))
	for _, entity := range stored {
		types[entity.ID] = entity.EntityType
	}

	entities := make([]domain.Entity, 0, len(payload.Entities))
	for _, item := range payload.Entities {
		entityType, ok := types[item.ID]
		if !ok {
			writeError(w, http.StatusNotFound, "entity "+item.ID.String()+" not found")
			return
		}
		entities = append(entities, domain.Entity{ID: item.ID, EntityType: entityType, Properties: item.Properties})
	}

	updated, err := h.entities.BulkUpdate(r.Context(), entities, payload.Fields, fieldlog.BulkOptions{
		SkipLogFields: payload.SkipLogFields,
		SkipCallbacks: payload.SkipCallbacks,
	})
	h.writeSavedBatch(w, r, http.StatusOK, updated, err)
}

func (h *Handler) handleListFieldLogs(w http.ResponseWriter, r *http.Request) {
	entity, ok := h.loadEntity(w, r)
	if !ok {
		return
	}

	query := r.URL.Query()
	filter := domain.FieldLogFilter{Field: strings.TrimSpace(query.Get("field"))}
	if raw := query.Get("created"); raw != "" {
		created, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid created filter")
			return
		}
		filter.Created = &created
	}
	if raw := query.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		filter.Limit = limit
	}

	logs, err := h.logs.ListByEntity(r.Context(), entity.EntityType, entity.ID, filter)
	if err != nil {
		h.internalError(w, r, "failed to list field logs", err)
		return
	}
	writeJSON(w, http.StatusOK, logs)
}

func (h *Handler) handleReload(w http.ResponseWriter, r *http.Request) {
	if err := h.registry.Reload(r.Context()); err != nil {
		h.log.Warn("field log configuration reload failed", zap.Error(err))
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) newEntity(w http.ResponseWriter, r *http.Request, payload entityPayload) (domain.Entity, bool) {
	entityType := strings.TrimSpace(payload.EntityType)
	if entityType == "" {
		writeError(w, http.StatusBadRequest, "entity_type is required")
		return domain.Entity{}, false
	}
	if _, err := h.schemas.GetByName(r.Context(), entityType); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusBadRequest, "unknown entity type "+entityType)
			return domain.Entity{}, false
		}
		h.internalError(w, r, "failed to load schema", err)
		return domain.Entity{}, false
	}

	entity := domain.NewEntity(entityType, payload.Properties)
	if payload.ID != nil {
		entity.ID = *payload.ID
	}
	return entity, true
}

// loadEntity resolves {id} through the request's entity loader.
func (h *Handler) loadEntity(w http.ResponseWriter, r *http.Request) (domain.Entity, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid entity id")
		return domain.Entity{}, false
	}

	var data any
	if loader := middleware.EntityLoaderFromContext(r.Context()); loader != nil {
		data, err = loader.Load(r.Context(), dataloader.StringKey(id.String()))()
	} else {
		data, err = h.entities.GetByID(r.Context(), id)
	}
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		h.internalError(w, r, "failed to load entity", err)
		return domain.Entity{}, false
	}
	entity, ok := data.(domain.Entity)
	if !ok || err != nil {
		writeError(w, http.StatusNotFound, "entity not found")
		return domain.Entity{}, false
	}
	return entity, true
}

// writeSaved reports a save. A CallbackError means the entity and its logs
// were committed but a callback failed; the entity is returned alongside it.
func (h *Handler) writeSaved(w http.ResponseWriter, r *http.Request, status int, saved domain.Entity, err error) {
	switch {
	case err == nil:
		writeJSON(w, status, saved)
	case fieldlog.CallbackError.Has(err):
		h.log.Warn("field log callback failed after commit", zap.Stringer("entity_id", saved.ID), zap.Error(err))
		writeJSON(w, http.StatusBadGateway, map[string]any{"entity": saved, "error": err.Error()})
	case errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, "entity not found")
	default:
		h.internalError(w, r, "failed to save entity", err)
	}
}

func (h *Handler) writeSavedBatch(w http.ResponseWriter, r *http.Request, status int, saved []domain.Entity, err error) {
	switch {
	case err == nil:
		writeJSON(w, status, saved)
	case fieldlog.CallbackError.Has(err):
		h.log.Warn("field log callback failed after commit", zap.Int("entities", len(saved)), zap.Error(err))
		writeJSON(w, http.StatusBadGateway, map[string]any{"entities": saved, "error": err.Error()})
	default:
		h.internalError(w, r, "failed to save entities", err)
	}
}

func (h *Handler) internalError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	h.log.Error(msg, zap.String("path", r.URL.Path), zap.Error(err))
	writeError(w, http.StatusInternalServerError, msg)
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	defer r.Body.Close()
	if err := gojson.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = gojson.NewEncoder(w).Encode(payload)
}

// Server wraps the router in an http.Server with the timeouts used by cmd/server.
func Server(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}
