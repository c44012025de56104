package export

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"path"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/rpattn/fieldlog/internal/repository"
)

// Handler serves history downloads at .../{id}/field-logs.{xlsx,csv}.
type Handler struct {
	service  *Service
	entities repository.EntityStore
}

func NewHTTPHandler(service *Service, entities repository.EntityStore) http.Handler {
	return &Handler{service: service, entities: entities}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var format Format
	switch {
	case strings.HasSuffix(r.URL.Path, ".xlsx"):
		format = FormatXLSX
	case strings.HasSuffix(r.URL.Path, ".csv"):
		format = FormatCSV
	default:
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	h.handleDownload(w, r, format)
}

func (h *Handler) handleDownload(w http.ResponseWriter, r *http.Request, format Format) {
	// .../{id}/field-logs.xlsx
	idSegment := path.Base(path.Dir(strings.TrimSuffix(r.URL.Path, "/")))
	entityID, err := uuid.Parse(idSegment)
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid entity identifier: %v", err), http.StatusBadRequest)
		return
	}

	entity, err := h.entities.GetByID(r.Context(), entityID)
	if errors.Is(err, repository.ErrNotFound) {
		http.Error(w, "entity not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	req := Request{
		EntityType: entity.EntityType,
		EntityID:   entity.ID,
		Field:      strings.TrimSpace(r.URL.Query().Get("field")),
		Format:     format,
	}
	var body bytes.Buffer
	if _, err := h.service.Write(r.Context(), &body, req); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", ContentType(format))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", req.FileName()))
	w.Header().Set("Content-Length", strconv.Itoa(body.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = body.WriteTo(w)
}
