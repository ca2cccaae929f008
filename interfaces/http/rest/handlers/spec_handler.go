package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"flowsketch-backend/application/engine"
	"flowsketch-backend/application/render"
	"flowsketch-backend/application/store"
	"flowsketch-backend/domain/changes"
	"flowsketch-backend/pkg/common"
	pkgerrors "flowsketch-backend/pkg/errors"
)

// SpecHandler serves the specification projection of a project's model
type SpecHandler struct {
	store    *store.ModelStore
	engine   *engine.Engine
	renderer *render.SpecificationRenderer
}

// NewSpecHandler creates the handler
func NewSpecHandler(modelStore *store.ModelStore, syncEngine *engine.Engine) *SpecHandler {
	return &SpecHandler{
		store:    modelStore,
		engine:   syncEngine,
		renderer: render.NewSpecificationRenderer(),
	}
}

type specResponse struct {
	ProjectID string           `json:"projectId"`
	Version   int64            `json:"version"`
	Sections  []render.Section `json:"sections"`
}

// Get serves the section list. With ?format=markdown the response is the
// rendered document.
func (h *SpecHandler) Get(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "projectID")
	model, err := h.store.Snapshot(r.Context(), projectID)
	if err != nil {
		common.RespondError(w, err)
		return
	}

	if r.URL.Query().Get("format") == "markdown" {
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(h.renderer.RenderMarkdown(model, r.URL.Query().Get("name"))))
		return
	}

	common.RespondJSON(w, http.StatusOK, specResponse{
		ProjectID: projectID,
		Version:   model.Version,
		Sections:  h.renderer.Sections(model),
	})
}

// Apply commits a bulk batch of specification changes submitted over REST
func (h *SpecHandler) Apply(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "projectID")
	userID, _ := common.GetUserID(r.Context())

	var req bulkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.RespondError(w, pkgerrors.NewValidationError("invalid request body"))
		return
	}
	if len(req.Changes) == 0 {
		common.RespondError(w, pkgerrors.NewValidationError("changes cannot be empty"))
		return
	}

	resp := bulkResponse{Version: req.BaseVersion}
	expected := req.BaseVersion
	for _, raw := range req.Changes {
		ch, err := changes.ParseSpecChange(raw)
		if err != nil {
			resp.Results = append(resp.Results, applyResult{Status: string(engine.StatusRejected), Error: err.Error()})
			continue
		}
		ch.UserID = userID
		if ch.Timestamp.IsZero() {
			ch.Timestamp = time.Now()
		}
		outcome := h.engine.SubmitSpec(r.Context(), projectID, expected, ch)
		if outcome.Status == engine.StatusCommitted {
			expected = outcome.Version
			resp.Version = outcome.Version
		}
		resp.Results = append(resp.Results, toApplyResult(outcome))
	}
	common.RespondJSON(w, http.StatusOK, resp)
}
