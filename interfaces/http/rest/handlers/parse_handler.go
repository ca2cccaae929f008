package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"flowsketch-backend/application/engine"
	"flowsketch-backend/application/ports"
	"flowsketch-backend/infrastructure/acl"
	"flowsketch-backend/pkg/common"
	pkgerrors "flowsketch-backend/pkg/errors"
)

// ParseHandler seeds a project's model from free-form requirement text
type ParseHandler struct {
	engine   *engine.Engine
	parser   ports.SpecParser
	validate *validator.Validate
}

// NewParseHandler creates the handler
func NewParseHandler(syncEngine *engine.Engine, parser ports.SpecParser) *ParseHandler {
	return &ParseHandler{
		engine:   syncEngine,
		parser:   parser,
		validate: validator.New(),
	}
}

type parseRequest struct {
	Text        string `json:"text" validate:"required_without=Parsed,max=100000"`
	ProjectName string `json:"projectName,omitempty" validate:"max=200"`
	// Parsed skips the external parser, the fallback when its breaker is open
	Parsed *ports.ParsedModel `json:"parsed,omitempty"`
}

// Parse sends the text to the parser service, translates the result through
// the ACL and commits it as one seed batch. With ?rebuild=true any existing
// model is discarded first.
func (h *ParseHandler) Parse(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "projectID")

	var req parseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.RespondError(w, pkgerrors.NewValidationError("invalid request body"))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		common.RespondError(w, pkgerrors.NewValidationError(err.Error()))
		return
	}

	parsed := req.Parsed
	if parsed == nil {
		var err error
		parsed, err = h.parser.Parse(r.Context(), req.Text)
		if err != nil {
			common.RespondError(w, err)
			return
		}
	}
	muts, err := acl.ToMutations(parsed)
	if err != nil {
		common.RespondError(w, err)
		return
	}

	rebuild := r.URL.Query().Get("rebuild") == "true"
	userID, _ := common.GetUserID(r.Context())
	outcome, err := h.engine.Seed(r.Context(), projectID, muts, rebuild, userID)
	if err != nil {
		common.RespondError(w, err)
		return
	}
	if outcome.Err != nil {
		common.RespondError(w, outcome.Err)
		return
	}
	common.RespondJSON(w, http.StatusOK, outcome)
}
