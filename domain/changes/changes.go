package changes

import (
	"bytes"
	"encoding/json"
	"time"

	"flowsketch-backend/domain/core/valueobjects"
	pkgerrors "flowsketch-backend/pkg/errors"
)

// Origin identifies which representation a change was made in
type Origin string

const (
	OriginDiagram Origin = "diagram"
	OriginSpec    Origin = "spec"
)

// DiagramOp is the closed set of diagram change tags
type DiagramOp string

const (
	NodeAdd    DiagramOp = "node:add"
	NodeUpdate DiagramOp = "node:update"
	NodeDelete DiagramOp = "node:delete"
	EdgeAdd    DiagramOp = "edge:add"
	EdgeUpdate DiagramOp = "edge:update"
	EdgeDelete DiagramOp = "edge:delete"
)

var diagramOps = map[DiagramOp]bool{
	NodeAdd: true, NodeUpdate: true, NodeDelete: true,
	EdgeAdd: true, EdgeUpdate: true, EdgeDelete: true,
}

// SpecOp is the closed set of specification change tags
type SpecOp string

const (
	SectionAdd    SpecOp = "section:add"
	SectionUpdate SpecOp = "section:update"
	SectionDelete SpecOp = "section:delete"
	ContentUpdate SpecOp = "content:update"
)

var specOps = map[SpecOp]bool{
	SectionAdd: true, SectionUpdate: true, SectionDelete: true, ContentUpdate: true,
}

// NodePayload carries the fields valid for node operations.
// Nil members on update mean "field untouched".
type NodePayload struct {
	Name       *string                `json:"name,omitempty"`
	Type       *string                `json:"type,omitempty"`
	Properties map[string]string      `json:"properties,omitempty"`
	Position   *valueobjects.Position `json:"position,omitempty"`
}

// EdgePayload carries the fields valid for edge operations
type EdgePayload struct {
	SourceID   string            `json:"sourceId,omitempty"`
	TargetID   string            `json:"targetId,omitempty"`
	Type       *string           `json:"type,omitempty"`
	Label      *string           `json:"label,omitempty"`
	Properties map[string]string `json:"properties,omitempty"`
}

// DiagramChange is one tagged diagram mutation submitted by a client or
// derived by the spec-to-diagram projector
type DiagramChange struct {
	Op        DiagramOp    `json:"op"`
	TargetID  string       `json:"targetId"`
	Node      *NodePayload `json:"node,omitempty"`
	Edge      *EdgePayload `json:"edge,omitempty"`
	Timestamp time.Time    `json:"timestamp"`
	UserID    string       `json:"userId"`
}

// SpecChange is one tagged specification mutation submitted by a client or
// derived by the diagram-to-spec projector
type SpecChange struct {
	Op        SpecOp    `json:"op"`
	SectionID string    `json:"sectionId"`
	Content   *string   `json:"content,omitempty"`
	Position  *int      `json:"position,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	UserID    string    `json:"userId"`
}

// ParseDiagramChange decodes a diagram change strictly: unknown JSON fields
// and unknown op tags are rejected rather than accepted as arbitrary shapes
func ParseDiagramChange(data []byte) (*DiagramChange, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var ch DiagramChange
	if err := dec.Decode(&ch); err != nil {
		return nil, pkgerrors.NewValidationError("malformed diagram change").WithCause(err)
	}
	if err := ch.Validate(); err != nil {
		return nil, err
	}
	return &ch, nil
}

// ParseSpecChange decodes a spec change strictly
func ParseSpecChange(data []byte) (*SpecChange, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var ch SpecChange
	if err := dec.Decode(&ch); err != nil {
		return nil, pkgerrors.NewValidationError("malformed spec change").WithCause(err)
	}
	if err := ch.Validate(); err != nil {
		return nil, err
	}
	return &ch, nil
}

// Validate checks the change shape: tag known, target present, payload
// matching the tag, enumerations and coordinates well formed
func (c *DiagramChange) Validate() error {
	if !diagramOps[c.Op] {
		return pkgerrors.NewFieldValidationError("unknown diagram op", map[string]interface{}{"op": string(c.Op)})
	}
	if c.TargetID == "" {
		return pkgerrors.NewFieldValidationError("targetId is required", map[string]interface{}{"op": string(c.Op)})
	}
	if c.UserID == "" {
		return pkgerrors.NewValidationError("userId is required")
	}

	switch c.Op {
	case NodeAdd:
		if c.Node == nil || c.Node.Name == nil || c.Node.Type == nil {
			return pkgerrors.NewValidationError("node:add requires node payload with name and type")
		}
	case NodeUpdate:
		if c.Node == nil {
			return pkgerrors.NewValidationError("node:update requires node payload")
		}
	case EdgeAdd:
		if c.Edge == nil || c.Edge.SourceID == "" || c.Edge.TargetID == "" || c.Edge.Type == nil {
			return pkgerrors.NewValidationError("edge:add requires edge payload with sourceId, targetId and type")
		}
	case EdgeUpdate:
		if c.Edge == nil {
			return pkgerrors.NewValidationError("edge:update requires edge payload")
		}
	}

	if c.Node != nil {
		if c.Node.Type != nil {
			if _, err := valueobjects.ParseEntityType(*c.Node.Type); err != nil {
				return err
			}
		}
		if c.Node.Name != nil && *c.Node.Name == "" {
			return pkgerrors.NewValidationError("node name cannot be empty")
		}
		if c.Node.Position != nil && !c.Node.Position.Valid() {
			return pkgerrors.NewValidationError("node position must be finite")
		}
	}
	if c.Edge != nil && c.Edge.Type != nil {
		if _, err := valueobjects.ParseRelationshipType(*c.Edge.Type); err != nil {
			return err
		}
	}
	return nil
}

// Validate checks the change shape
func (c *SpecChange) Validate() error {
	if !specOps[c.Op] {
		return pkgerrors.NewFieldValidationError("unknown spec op", map[string]interface{}{"op": string(c.Op)})
	}
	if c.SectionID == "" {
		return pkgerrors.NewFieldValidationError("sectionId is required", map[string]interface{}{"op": string(c.Op)})
	}
	if c.UserID == "" {
		return pkgerrors.NewValidationError("userId is required")
	}

	switch c.Op {
	case SectionAdd, SectionUpdate, ContentUpdate:
		if c.Content == nil {
			return pkgerrors.NewValidationError(string(c.Op) + " requires content")
		}
	}
	if c.Position != nil && *c.Position < 0 {
		return pkgerrors.NewValidationError("section position cannot be negative")
	}
	return nil
}

// Structural reports whether the diagram change adds or removes canonical
// structure, as opposed to a property or position update
func (c *DiagramChange) Structural() bool {
	switch c.Op {
	case NodeAdd, NodeDelete, EdgeAdd, EdgeDelete:
		return true
	}
	return false
}
