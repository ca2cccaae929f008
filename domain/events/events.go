package events

import (
	"time"
)

// DomainEvent is the base interface for all domain events.
// Events represent something that has already happened to the canonical model.
type DomainEvent interface {
	GetAggregateID() string
	GetEventType() string
	GetTimestamp() time.Time
}

// BaseEvent provides common event fields
type BaseEvent struct {
	AggregateID string    `json:"aggregate_id"`
	EventType   string    `json:"event_type"`
	Timestamp   time.Time `json:"timestamp"`
}

func (e BaseEvent) GetAggregateID() string  { return e.AggregateID }
func (e BaseEvent) GetEventType() string    { return e.EventType }
func (e BaseEvent) GetTimestamp() time.Time { return e.Timestamp }

// Entity events

// EntityCreated is raised when an entity is added to the canonical model
type EntityCreated struct {
	BaseEvent
	ProjectID string `json:"project_id"`
	EntityID  string `json:"entity_id"`
	Name      string `json:"name"`
	Type      string `json:"type"`
}

// NewEntityCreated creates an EntityCreated event
func NewEntityCreated(projectID, entityID, name, entityType string, timestamp time.Time) EntityCreated {
	return EntityCreated{
		BaseEvent: BaseEvent{
			AggregateID: projectID,
			EventType:   "entity.created",
			Timestamp:   timestamp,
		},
		ProjectID: projectID,
		EntityID:  entityID,
		Name:      name,
		Type:      entityType,
	}
}

// EntityUpdated is raised when entity fields change
type EntityUpdated struct {
	BaseEvent
	ProjectID string   `json:"project_id"`
	EntityID  string   `json:"entity_id"`
	Fields    []string `json:"fields"`
}

// NewEntityUpdated creates an EntityUpdated event
func NewEntityUpdated(projectID, entityID string, fields []string, timestamp time.Time) EntityUpdated {
	return EntityUpdated{
		BaseEvent: BaseEvent{
			AggregateID: projectID,
			EventType:   "entity.updated",
			Timestamp:   timestamp,
		},
		ProjectID: projectID,
		EntityID:  entityID,
		Fields:    fields,
	}
}

// EntityDeleted is raised when an entity is removed; cascaded relationship
// ids are carried so listeners see the full effect of the single commit
type EntityDeleted struct {
	BaseEvent
	ProjectID            string   `json:"project_id"`
	EntityID             string   `json:"entity_id"`
	CascadedRelationships []string `json:"cascaded_relationships,omitempty"`
}

// NewEntityDeleted creates an EntityDeleted event
func NewEntityDeleted(projectID, entityID string, cascaded []string, timestamp time.Time) EntityDeleted {
	return EntityDeleted{
		BaseEvent: BaseEvent{
			AggregateID: projectID,
			EventType:   "entity.deleted",
			Timestamp:   timestamp,
		},
		ProjectID:            projectID,
		EntityID:             entityID,
		CascadedRelationships: cascaded,
	}
}

// Relationship events

// RelationshipCreated is raised when two entities are connected
type RelationshipCreated struct {
	BaseEvent
	ProjectID      string `json:"project_id"`
	RelationshipID string `json:"relationship_id"`
	SourceID       string `json:"source_id"`
	TargetID       string `json:"target_id"`
	Type           string `json:"type"`
}

// NewRelationshipCreated creates a RelationshipCreated event
func NewRelationshipCreated(projectID, relationshipID, sourceID, targetID, relType string, timestamp time.Time) RelationshipCreated {
	return RelationshipCreated{
		BaseEvent: BaseEvent{
			AggregateID: projectID,
			EventType:   "relationship.created",
			Timestamp:   timestamp,
		},
		ProjectID:      projectID,
		RelationshipID: relationshipID,
		SourceID:       sourceID,
		TargetID:       targetID,
		Type:           relType,
	}
}

// RelationshipUpdated is raised when relationship fields change
type RelationshipUpdated struct {
	BaseEvent
	ProjectID      string   `json:"project_id"`
	RelationshipID string   `json:"relationship_id"`
	Fields         []string `json:"fields"`
}

// NewRelationshipUpdated creates a RelationshipUpdated event
func NewRelationshipUpdated(projectID, relationshipID string, fields []string, timestamp time.Time) RelationshipUpdated {
	return RelationshipUpdated{
		BaseEvent: BaseEvent{
			AggregateID: projectID,
			EventType:   "relationship.updated",
			Timestamp:   timestamp,
		},
		ProjectID:      projectID,
		RelationshipID: relationshipID,
		Fields:         fields,
	}
}

// RelationshipDeleted is raised when a relationship is removed
type RelationshipDeleted struct {
	BaseEvent
	ProjectID      string `json:"project_id"`
	RelationshipID string `json:"relationship_id"`
}

// NewRelationshipDeleted creates a RelationshipDeleted event
func NewRelationshipDeleted(projectID, relationshipID string, timestamp time.Time) RelationshipDeleted {
	return RelationshipDeleted{
		BaseEvent: BaseEvent{
			AggregateID: projectID,
			EventType:   "relationship.deleted",
			Timestamp:   timestamp,
		},
		ProjectID:      projectID,
		RelationshipID: relationshipID,
	}
}

// Model events

// ModelSeeded is raised when the canonical model is seeded from parsed text
type ModelSeeded struct {
	BaseEvent
	ProjectID         string `json:"project_id"`
	EntityCount       int    `json:"entity_count"`
	RelationshipCount int    `json:"relationship_count"`
	Rebuild           bool   `json:"rebuild"`
}

// NewModelSeeded creates a ModelSeeded event
func NewModelSeeded(projectID string, entityCount, relationshipCount int, rebuild bool, timestamp time.Time) ModelSeeded {
	return ModelSeeded{
		BaseEvent: BaseEvent{
			AggregateID: projectID,
			EventType:   "model.seeded",
			Timestamp:   timestamp,
		},
		ProjectID:         projectID,
		EntityCount:       entityCount,
		RelationshipCount: relationshipCount,
		Rebuild:           rebuild,
	}
}
