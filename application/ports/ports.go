package ports

import (
	"context"
	"time"

	"flowsketch-backend/domain/changes"
	"flowsketch-backend/domain/core/aggregates"
	"flowsketch-backend/domain/events"
)

// ModelRepository persists canonical models keyed by project id.
// Load returns a NOT_FOUND error for unknown projects.
type ModelRepository interface {
	Load(ctx context.Context, projectID string) (*aggregates.CanonicalModel, error)
	Save(ctx context.Context, model *aggregates.CanonicalModel) error
	Delete(ctx context.Context, projectID string) error
	ProjectIDs(ctx context.Context) ([]string, error)
}

// BroadcastEvent carries one committed batch to all project participants.
// Version is the model version after the commit; subscribers rely on
// receiving commit events in strictly increasing version order per project.
type BroadcastEvent struct {
	ProjectID      string                  `json:"projectId"`
	Version        int64                   `json:"version"`
	Origin         changes.Origin          `json:"origin"`
	DiagramChanges []changes.DiagramChange `json:"diagramChanges,omitempty"`
	SpecChanges    []changes.SpecChange    `json:"specChanges,omitempty"`
	Delta          *changes.Delta          `json:"delta,omitempty"`
	InitiatedBy    string                  `json:"initiatedBy,omitempty"`
	Timestamp      time.Time               `json:"timestamp"`
}

// Dispatcher fans committed batches, conflicts and resolutions out to
// connected clients. Implementations must deliver commit events for one
// project in version order; conflict and resolution events go out as-is.
type Dispatcher interface {
	DispatchCommit(ctx context.Context, event BroadcastEvent)
	DispatchConflict(ctx context.Context, projectID string, conflict *changes.SyncConflict)
	DispatchResolution(ctx context.Context, projectID string, resolution *changes.Resolution)
}

// EventPublisher receives domain events after a successful commit,
// used for metrics and audit logging
type EventPublisher interface {
	Publish(ctx context.Context, events []events.DomainEvent)
}

// SpecParser turns free-form requirement text into a parsed model used to
// seed or rebuild a project's canonical model
type SpecParser interface {
	Parse(ctx context.Context, text string) (*ParsedModel, error)
}

// ParsedModel is the parser's raw output before ACL translation
type ParsedModel struct {
	Entities      []ParsedEntity       `json:"entities"`
	Relationships []ParsedRelationship `json:"relationships"`
	BusinessRules []ParsedRule         `json:"business_rules,omitempty"`
}

// ParsedEntity mirrors the parser wire shape
type ParsedEntity struct {
	ID         string            `json:"id"`
	Name       string            `json:"name"`
	Type       string            `json:"type"`
	Properties map[string]string `json:"properties,omitempty"`
}

// ParsedRelationship mirrors the parser wire shape. Verb is the raw
// natural-language verb; the ACL maps it onto the canonical enumeration.
type ParsedRelationship struct {
	ID       string `json:"id"`
	SourceID string `json:"source_id"`
	TargetID string `json:"target_id"`
	Verb     string `json:"verb"`
	Label    string `json:"label,omitempty"`
}

// ParsedRule mirrors the parser wire shape
type ParsedRule struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	Category    string `json:"category,omitempty"`
}
