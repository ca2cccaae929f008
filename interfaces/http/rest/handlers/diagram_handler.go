// Package handlers implements the REST read and seeding surface. Realtime
// editing happens over the websocket interface; these endpoints serve
// snapshots, rendered projections, validation and parse seeding.
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
	"flowsketch-backend/domain/core/valueobjects"
	"flowsketch-backend/domain/services"
	"flowsketch-backend/pkg/common"
	pkgerrors "flowsketch-backend/pkg/errors"
)

// DiagramHandler serves the diagram projection of a project's model
type DiagramHandler struct {
	store     *store.ModelStore
	engine    *engine.Engine
	mermaid   *render.MermaidRenderer
	validator *services.DiagramValidator
}

// NewDiagramHandler creates the handler
func NewDiagramHandler(modelStore *store.ModelStore, syncEngine *engine.Engine) *DiagramHandler {
	return &DiagramHandler{
		store:     modelStore,
		engine:    syncEngine,
		mermaid:   render.NewMermaidRenderer(),
		validator: services.NewDiagramValidator(),
	}
}

type diagramNode struct {
	ID         string                 `json:"id"`
	Name       string                 `json:"name"`
	Type       string                 `json:"type"`
	Properties map[string]string      `json:"properties,omitempty"`
	Position   *valueobjects.Position `json:"position,omitempty"`
}

type diagramEdge struct {
	ID         string            `json:"id"`
	SourceID   string            `json:"sourceId"`
	TargetID   string            `json:"targetId"`
	Type       string            `json:"type"`
	Label      string            `json:"label,omitempty"`
	Properties map[string]string `json:"properties,omitempty"`
}

type diagramResponse struct {
	ProjectID  string                    `json:"projectId"`
	Version    int64                     `json:"version"`
	Nodes      []diagramNode             `json:"nodes"`
	Edges      []diagramEdge             `json:"edges"`
	Validation services.ValidationResult `json:"validation"`
}

// Get serves the diagram view. With ?format=mermaid the response is the
// rendered Mermaid source instead of the node/edge JSON.
func (h *DiagramHandler) Get(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "projectID")
	model, err := h.store.Snapshot(r.Context(), projectID)
	if err != nil {
		common.RespondError(w, err)
		return
	}

	if r.URL.Query().Get("format") == "mermaid" {
		diagramType := render.ParseDiagramType(r.URL.Query().Get("type"))
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(h.mermaid.Render(model, diagramType)))
		return
	}

	resp := diagramResponse{
		ProjectID:  projectID,
		Version:    model.Version,
		Nodes:      make([]diagramNode, 0, len(model.Entities)),
		Edges:      make([]diagramEdge, 0, len(model.Relationships)),
		Validation: h.validator.Validate(model),
	}
	for _, id := range model.EntityIDs() {
		e := model.Entities[id]
		node := diagramNode{ID: id, Name: e.Name, Type: string(e.Type), Properties: e.Properties}
		if e.Position != nil {
			node.Position = e.Position
		}
		resp.Nodes = append(resp.Nodes, node)
	}
	for _, id := range model.RelationshipIDs() {
		rel := model.Relationships[id]
		resp.Edges = append(resp.Edges, diagramEdge{
			ID: id, SourceID: rel.SourceID, TargetID: rel.TargetID,
			Type: string(rel.Type), Label: rel.Label, Properties: rel.Properties,
		})
	}
	common.RespondJSON(w, http.StatusOK, resp)
}

// Apply commits a bulk batch of diagram changes submitted over REST. Changes
// run in order; each committed change advances the expected version for the
// next one.
func (h *DiagramHandler) Apply(w http.ResponseWriter, r *http.Request) {
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
		ch, err := changes.ParseDiagramChange(raw)
		if err != nil {
			resp.Results = append(resp.Results, applyResult{Status: string(engine.StatusRejected), Error: err.Error()})
			continue
		}
		ch.UserID = userID
		if ch.Timestamp.IsZero() {
			ch.Timestamp = time.Now()
		}
		outcome := h.engine.SubmitDiagram(r.Context(), projectID, expected, ch)
		if outcome.Status == engine.StatusCommitted {
			expected = outcome.Version
			resp.Version = outcome.Version
		}
		resp.Results = append(resp.Results, toApplyResult(outcome))
	}
	common.RespondJSON(w, http.StatusOK, resp)
}

// Validate serves only the validation result
func (h *DiagramHandler) Validate(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "projectID")
	model, err := h.store.Snapshot(r.Context(), projectID)
	if err != nil {
		common.RespondError(w, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, h.validator.Validate(model))
}
