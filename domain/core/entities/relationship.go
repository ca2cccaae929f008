package entities

import (
	"time"

	"flowsketch-backend/domain/core/valueobjects"
	pkgerrors "flowsketch-backend/pkg/errors"
)

// Relationship connects two entities. SourceID and TargetID must reference
// existing, non-deleted entities; the aggregate enforces that at commit time.
type Relationship struct {
	ID         string                        `json:"id"`
	SourceID   string                        `json:"sourceId"`
	TargetID   string                        `json:"targetId"`
	Type       valueobjects.RelationshipType `json:"type"`
	Label      string                        `json:"label,omitempty"`
	Properties map[string]string             `json:"properties,omitempty"`
	CreatedAt  time.Time                     `json:"createdAt"`
	UpdatedAt  time.Time                     `json:"updatedAt"`
}

// NewRelationship creates a relationship with validation
func NewRelationship(id, sourceID, targetID string, relType valueobjects.RelationshipType, label string) (*Relationship, error) {
	if id == "" {
		return nil, pkgerrors.NewValidationError("relationship id cannot be empty")
	}
	if sourceID == "" || targetID == "" {
		return nil, pkgerrors.NewValidationError("relationship endpoints cannot be empty")
	}
	if !relType.Valid() {
		return nil, pkgerrors.NewValidationError("relationship type is not part of the enumeration")
	}
	now := time.Now()
	return &Relationship{
		ID:         id,
		SourceID:   sourceID,
		TargetID:   targetID,
		Type:       relType,
		Label:      label,
		Properties: make(map[string]string),
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

// Touches reports whether the relationship is incident to the given entity
func (r *Relationship) Touches(entityID string) bool {
	return r.SourceID == entityID || r.TargetID == entityID
}

// Clone returns a deep copy
func (r *Relationship) Clone() *Relationship {
	cp := *r
	cp.Properties = cloneStringMap(r.Properties)
	return &cp
}

// BusinessRule is an opaque rule record attached to the canonical model.
// The engine stores and broadcasts rules but never interprets them.
type BusinessRule struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	Category    string `json:"category,omitempty"`
}
