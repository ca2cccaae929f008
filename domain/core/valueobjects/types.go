package valueobjects

import (
	pkgerrors "flowsketch-backend/pkg/errors"
)

// EntityType classifies a canonical entity. The enumeration is closed;
// parsing rejects anything outside it.
type EntityType string

const (
	EntityTypeObject  EntityType = "object"
	EntityTypeProcess EntityType = "process"
	EntityTypeActor   EntityType = "actor"
	EntityTypeData    EntityType = "data"
	EntityTypeSystem  EntityType = "system"
	EntityTypeEvent   EntityType = "event"
)

var entityTypes = map[EntityType]bool{
	EntityTypeObject:  true,
	EntityTypeProcess: true,
	EntityTypeActor:   true,
	EntityTypeData:    true,
	EntityTypeSystem:  true,
	EntityTypeEvent:   true,
}

// ParseEntityType validates a raw string against the closed enumeration
func ParseEntityType(raw string) (EntityType, error) {
	t := EntityType(raw)
	if !entityTypes[t] {
		return "", pkgerrors.NewFieldValidationError("unknown entity type", map[string]interface{}{
			"type": raw,
		})
	}
	return t, nil
}

// Valid reports whether the type is part of the enumeration
func (t EntityType) Valid() bool {
	return entityTypes[t]
}

func (t EntityType) String() string {
	return string(t)
}

// RelationshipType classifies a canonical relationship
type RelationshipType string

const (
	RelationshipAssociation RelationshipType = "association"
	RelationshipComposition RelationshipType = "composition"
	RelationshipAggregation RelationshipType = "aggregation"
	RelationshipInheritance RelationshipType = "inheritance"
	RelationshipDependency  RelationshipType = "dependency"
	RelationshipFlow        RelationshipType = "flow"
	RelationshipSequence    RelationshipType = "sequence"
)

var relationshipTypes = map[RelationshipType]bool{
	RelationshipAssociation: true,
	RelationshipComposition: true,
	RelationshipAggregation: true,
	RelationshipInheritance: true,
	RelationshipDependency:  true,
	RelationshipFlow:        true,
	RelationshipSequence:    true,
}

// ParseRelationshipType validates a raw string against the closed enumeration
func ParseRelationshipType(raw string) (RelationshipType, error) {
	t := RelationshipType(raw)
	if !relationshipTypes[t] {
		return "", pkgerrors.NewFieldValidationError("unknown relationship type", map[string]interface{}{
			"type": raw,
		})
	}
	return t, nil
}

// Valid reports whether the type is part of the enumeration
func (t RelationshipType) Valid() bool {
	return relationshipTypes[t]
}

func (t RelationshipType) String() string {
	return string(t)
}
