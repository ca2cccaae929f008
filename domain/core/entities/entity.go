package entities

import (
	"time"

	"flowsketch-backend/domain/core/valueobjects"
	pkgerrors "flowsketch-backend/pkg/errors"
)

// Entity is a canonical model element (e.g. an actor, a process, a data store).
// Both the diagram node and the spec section for it are derived views;
// Position is diagram-owned and never reconciled against the spec.
type Entity struct {
	ID         string                   `json:"id"`
	Name       string                   `json:"name"`
	Type       valueobjects.EntityType  `json:"type"`
	Properties map[string]string        `json:"properties"`
	Position   *valueobjects.Position   `json:"position,omitempty"`
	Metadata   map[string]string        `json:"metadata,omitempty"`
	CreatedAt  time.Time                `json:"createdAt"`
	UpdatedAt  time.Time                `json:"updatedAt"`
}

// NewEntity creates an entity with validation
func NewEntity(id, name string, entityType valueobjects.EntityType) (*Entity, error) {
	if id == "" {
		return nil, pkgerrors.NewValidationError("entity id cannot be empty")
	}
	if name == "" {
		return nil, pkgerrors.NewValidationError("entity name cannot be empty")
	}
	if !entityType.Valid() {
		return nil, pkgerrors.NewValidationError("entity type is not part of the enumeration")
	}
	now := time.Now()
	return &Entity{
		ID:         id,
		Name:       name,
		Type:       entityType,
		Properties: make(map[string]string),
		Metadata:   make(map[string]string),
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

// Clone returns a deep copy
func (e *Entity) Clone() *Entity {
	cp := *e
	cp.Properties = cloneStringMap(e.Properties)
	cp.Metadata = cloneStringMap(e.Metadata)
	if e.Position != nil {
		pos := *e.Position
		cp.Position = &pos
	}
	return &cp
}

func cloneStringMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	cp := make(map[string]string, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return cp
}
