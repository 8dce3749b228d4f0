// Package api exposes the lifecycle service over a JSON HTTP surface. Routing
// uses net/http patterns; the actor is resolved per request through the
// injected IdentityProvider.
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"chantiercore/internal/core"
	"chantiercore/pkg/domain"
)

// Handler serves the /api/v1 routes.
type Handler struct {
	svc      *core.Service
	identity IdentityProvider
	logger   core.Logger
}

// HandlerOption customizes handler construction.
type HandlerOption func(*Handler)

// WithHandlerLogger injects the logger used for request failures.
func WithHandlerLogger(logger core.Logger) HandlerOption {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// NewHandler wires the service behind the HTTP surface.
func NewHandler(svc *core.Service, identity IdentityProvider, opts ...HandlerOption) *Handler {
	h := &Handler{svc: svc, identity: identity, logger: noopLogger{}}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Router returns the configured route multiplexer.
func (h *Handler) Router() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/chantiers", h.listChantiers)
	mux.HandleFunc("GET /api/v1/chantiers/{id}/interventions", h.listInterventions)
	mux.HandleFunc("POST /api/v1/chantiers/{id}/interventions", h.createManual)
	mux.HandleFunc("POST /api/v1/chantiers/{id}/interventions/catalog", h.createFromCatalog)
	mux.HandleFunc("POST /api/v1/chantiers/{id}/import", h.importRows)
	mux.HandleFunc("GET /api/v1/interventions/{id}", h.getIntervention)
	mux.HandleFunc("GET /api/v1/interventions/{id}/history", h.listHistory)
	mux.HandleFunc("POST /api/v1/interventions/{id}/status", h.changeStatus)
	mux.HandleFunc("POST /api/v1/interventions/{id}/edit", h.editIntervention)
	return mux
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Error string `json:"error"`
}

// writeError maps domain error kinds onto HTTP statuses: missing rows are
// 404, rejected input 400, blocked commits 409, store failures 500.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var (
		notFound  domain.NotFoundError
		invalid   domain.ValidationError
		status    domain.InvalidStatusError
		scope     domain.InvalidScopeError
		violation domain.RuleViolationError
	)
	switch {
	case errors.Is(err, ErrUnknownIdentity):
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: err.Error()})
	case errors.As(err, &notFound):
		writeJSON(w, http.StatusNotFound, errorBody{Error: err.Error()})
	case errors.As(err, &invalid), errors.As(err, &status), errors.As(err, &scope):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
	case errors.As(err, &violation):
		writeJSON(w, http.StatusConflict, errorBody{Error: err.Error()})
	default:
		h.logger.Error("request failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error"})
	}
}

func (h *Handler) resolveActor(w http.ResponseWriter, r *http.Request) (domain.Actor, bool) {
	actor, err := h.identity.Resolve(r)
	if err != nil {
		h.writeError(w, err)
		return domain.Actor{}, false
	}
	return actor, true
}

func decodeBody(r *http.Request, v any) error {
	defer func() { _ = r.Body.Close() }()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return domain.ValidationError{Field: "body", Reason: "malformed JSON"}
	}
	return nil
}

type chantierResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Nom         string `json:"nom,omitempty"`
	DisplayName string `json:"display_name"`
}

func (h *Handler) listChantiers(w http.ResponseWriter, r *http.Request) {
	chantiers, err := h.svc.ListChantiers(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	out := make([]chantierResponse, 0, len(chantiers))
	for _, c := range chantiers {
		out = append(out, chantierResponse{ID: c.ID, Name: c.Name, Nom: c.Nom, DisplayName: c.DisplayName()})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) listInterventions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := domain.InterventionFilter{
		ChantierID: r.PathValue("id"),
		FloorID:    q.Get("floor"),
		RoomID:     q.Get("room"),
		Lot:        q.Get("lot"),
		Status:     domain.Status(q.Get("status")),
	}
	if filter.Status != "" && !filter.Status.Valid() {
		h.writeError(w, domain.InvalidStatusError{Status: filter.Status})
		return
	}
	list, err := h.svc.ListInterventions(r.Context(), filter)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *Handler) getIntervention(w http.ResponseWriter, r *http.Request) {
	iv, err := h.svc.GetIntervention(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, iv)
}

func (h *Handler) listHistory(w http.ResponseWriter, r *http.Request) {
	history, err := h.svc.ListHistory(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, history)
}

type changeStatusRequest struct {
	Status  string   `json:"status"`
	Date    string   `json:"date"`
	Persons []string `json:"persons"`
}

func (h *Handler) changeStatus(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.resolveActor(w, r)
	if !ok {
		return
	}
	var req changeStatusRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	updated, _, err := h.svc.ChangeStatus(r.Context(), r.PathValue("id"), actor, domain.Status(req.Status), req.Date, req.Persons)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

type editRequest struct {
	FloorID string   `json:"floor_id"`
	RoomID  string   `json:"room_id"`
	Lot     string   `json:"lot"`
	Task    string   `json:"task"`
	Persons []string `json:"persons"`
	Date    string   `json:"date"`
}

func (h *Handler) editIntervention(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.resolveActor(w, r)
	if !ok {
		return
	}
	var req editRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	updated, _, err := h.svc.EditIntervention(r.Context(), r.PathValue("id"), actor, core.EditRequest{
		FloorID:       req.FloorID,
		RoomID:        req.RoomID,
		Lot:           req.Lot,
		Task:          req.Task,
		Persons:       req.Persons,
		EffectiveDate: req.Date,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

type createManualRequest struct {
	FloorID string   `json:"floor_id"`
	RoomIDs []string `json:"room_ids"`
	Lot     string   `json:"lot"`
	Task    string   `json:"task"`
}

func (h *Handler) createManual(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.resolveActor(w, r)
	if !ok {
		return
	}
	var req createManualRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	created, _, err := h.svc.CreateFromManualSelection(r.Context(), r.PathValue("id"), req.FloorID, req.RoomIDs, req.Lot, req.Task, actor)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

type createCatalogRequest struct {
	FloorID  string   `json:"floor_id"`
	RoomIDs  []string `json:"room_ids"`
	AllRooms bool     `json:"all_rooms"`
	Lots     []string `json:"lots"`
}

type createCatalogResponse struct {
	Created int `json:"created"`
}

func (h *Handler) createFromCatalog(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.resolveActor(w, r)
	if !ok {
		return
	}
	var req createCatalogRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	count, _, err := h.svc.CreateFromCatalogSelection(r.Context(), r.PathValue("id"), req.FloorID, req.RoomIDs, req.AllRooms, req.Lots, actor)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, createCatalogResponse{Created: count})
}

type importRequest struct {
	Rows []core.TaskRow `json:"rows"`
}

type importResponse struct {
	Created int      `json:"created"`
	Skipped []string `json:"skipped"`
	Summary string   `json:"summary"`
	BlobKey string   `json:"blob_key,omitempty"`
}

func (h *Handler) importRows(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.resolveActor(w, r)
	if !ok {
		return
	}
	var req importRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	outcome, _, err := h.svc.ImportRows(r.Context(), r.PathValue("id"), actor, core.RowsFromSlice(req.Rows))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, importResponse{
		Created: outcome.Created,
		Skipped: outcome.Skipped,
		Summary: outcome.Summary(),
		BlobKey: outcome.BlobKey,
	})
}
