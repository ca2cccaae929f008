package aggregates

import (
	"fmt"
	"sort"
	"time"

	"flowsketch-backend/domain/changes"
	"flowsketch-backend/domain/core/entities"
	"flowsketch-backend/domain/events"
	pkgerrors "flowsketch-backend/pkg/errors"
)

// Limits bounds model growth; zero values mean unlimited
type Limits struct {
	MaxEntities      int
	MaxRelationships int
}

// CanonicalModel is the single authoritative representation per project from
// which both the diagram and the specification are derived. All writes go
// through ApplyAll; everything handed out elsewhere is a clone.
type CanonicalModel struct {
	ProjectID     string                            `json:"projectId"`
	Entities      map[string]*entities.Entity       `json:"entities"`
	Relationships map[string]*entities.Relationship `json:"relationships"`
	BusinessRules []entities.BusinessRule           `json:"businessRules"`
	// SectionNotes holds free spec prose keyed by section id. It is owned by
	// the spec representation and never reconciled against the diagram.
	SectionNotes map[string]string `json:"sectionNotes,omitempty"`
	Version      int64             `json:"version"`
	LastModified time.Time         `json:"lastModified"`

	// Domain events recorded by the latest ApplyAll
	uncommittedEvents []events.DomainEvent
}

// NewCanonicalModel creates an empty model at version 0
func NewCanonicalModel(projectID string) *CanonicalModel {
	return &CanonicalModel{
		ProjectID:     projectID,
		Entities:      make(map[string]*entities.Entity),
		Relationships: make(map[string]*entities.Relationship),
		BusinessRules: []entities.BusinessRule{},
		SectionNotes:  make(map[string]string),
		Version:       0,
	}
}

// Clone returns a deep copy, safe to hand to projectors and the conflict
// detector as an immutable snapshot
func (m *CanonicalModel) Clone() *CanonicalModel {
	cp := &CanonicalModel{
		ProjectID:     m.ProjectID,
		Entities:      make(map[string]*entities.Entity, len(m.Entities)),
		Relationships: make(map[string]*entities.Relationship, len(m.Relationships)),
		BusinessRules: append([]entities.BusinessRule{}, m.BusinessRules...),
		SectionNotes:  make(map[string]string, len(m.SectionNotes)),
		Version:       m.Version,
		LastModified:  m.LastModified,
	}
	for id, e := range m.Entities {
		cp.Entities[id] = e.Clone()
	}
	for id, r := range m.Relationships {
		cp.Relationships[id] = r.Clone()
	}
	for id, note := range m.SectionNotes {
		cp.SectionNotes[id] = note
	}
	return cp
}

// ApplyAll applies one batch of canonical mutations as a single commit:
// either every mutation applies and Version increases by exactly 1, or the
// model is left untouched (callers apply to a clone and swap on success).
func (m *CanonicalModel) ApplyAll(muts []changes.Mutation, now time.Time, limits Limits) (*changes.Delta, error) {
	if len(muts) == 0 {
		return nil, pkgerrors.NewValidationError("mutation batch cannot be empty")
	}

	delta := changes.NewDelta()
	for _, mut := range muts {
		if err := m.apply(mut, now, limits, delta); err != nil {
			return nil, err
		}
	}

	if err := m.CheckIntegrity(); err != nil {
		return nil, err
	}

	m.Version++
	m.LastModified = now
	return delta, nil
}

func (m *CanonicalModel) apply(mut changes.Mutation, now time.Time, limits Limits, delta *changes.Delta) error {
	switch mu := mut.(type) {
	case changes.CreateEntity:
		return m.createEntity(mu, now, limits, delta)
	case changes.UpdateEntity:
		return m.updateEntity(mu, now, delta)
	case changes.DeleteEntity:
		return m.deleteEntity(mu, now, delta)
	case changes.SetEntityPosition:
		return m.setEntityPosition(mu, now, delta)
	case changes.CreateRelationship:
		return m.createRelationship(mu, now, limits, delta)
	case changes.UpdateRelationship:
		return m.updateRelationship(mu, now, delta)
	case changes.DeleteRelationship:
		return m.deleteRelationship(mu, now, delta)
	case changes.SetSectionNote:
		return m.setSectionNote(mu, now, delta)
	case changes.AddBusinessRule:
		return m.addBusinessRule(mu, now, delta)
	default:
		return pkgerrors.NewValidationError(fmt.Sprintf("unknown mutation kind %T", mut))
	}
}

func (m *CanonicalModel) createEntity(mu changes.CreateEntity, now time.Time, limits Limits, delta *changes.Delta) error {
	e := mu.Entity
	if e == nil {
		return pkgerrors.NewValidationError("create-entity requires an entity")
	}
	if _, exists := m.Entities[e.ID]; exists {
		return pkgerrors.NewConflictError(fmt.Sprintf("entity %s already exists", e.ID))
	}
	if limits.MaxEntities > 0 && len(m.Entities) >= limits.MaxEntities {
		return pkgerrors.NewValidationError(fmt.Sprintf("maximum entities reached: %d", limits.MaxEntities))
	}
	cp := e.Clone()
	cp.CreatedAt = now
	cp.UpdatedAt = now
	m.Entities[cp.ID] = cp
	delta.EntitiesAdded = append(delta.EntitiesAdded, cp.ID)
	m.record(events.NewEntityCreated(m.ProjectID, cp.ID, cp.Name, cp.Type.String(), now))
	return nil
}

func (m *CanonicalModel) updateEntity(mu changes.UpdateEntity, now time.Time, delta *changes.Delta) error {
	e, exists := m.Entities[mu.ID]
	if !exists {
		return pkgerrors.NewNotFoundError("entity " + mu.ID)
	}
	fields := mu.Fields.Names()
	if len(fields) == 0 {
		return pkgerrors.NewValidationError("update-entity touches no fields")
	}
	if mu.Fields.Name != nil {
		if *mu.Fields.Name == "" {
			return pkgerrors.NewValidationError("entity name cannot be empty")
		}
		e.Name = *mu.Fields.Name
	}
	if mu.Fields.Type != nil {
		if !mu.Fields.Type.Valid() {
			return pkgerrors.NewValidationError("entity type is not part of the enumeration")
		}
		e.Type = *mu.Fields.Type
	}
	if e.Properties == nil {
		e.Properties = make(map[string]string)
	}
	for k, v := range mu.Fields.Properties {
		if v == "" {
			delete(e.Properties, k)
		} else {
			e.Properties[k] = v
		}
	}
	e.UpdatedAt = now
	delta.EntitiesUpdated[mu.ID] = mergeFieldNames(delta.EntitiesUpdated[mu.ID], fields)
	m.record(events.NewEntityUpdated(m.ProjectID, mu.ID, fields, now))
	return nil
}

func (m *CanonicalModel) deleteEntity(mu changes.DeleteEntity, now time.Time, delta *changes.Delta) error {
	if _, exists := m.Entities[mu.ID]; !exists {
		return pkgerrors.NewNotFoundError("entity " + mu.ID)
	}

	// Cascade: incident relationships die in the same commit
	var cascaded []string
	for id, r := range m.Relationships {
		if r.Touches(mu.ID) {
			cascaded = append(cascaded, id)
		}
	}
	sort.Strings(cascaded)
	for _, id := range cascaded {
		delete(m.Relationships, id)
		delta.RelationshipsDeleted = append(delta.RelationshipsDeleted, id)
	}

	delete(m.Entities, mu.ID)
	delete(m.SectionNotes, mu.ID)
	delta.EntitiesDeleted = append(delta.EntitiesDeleted, mu.ID)
	m.record(events.NewEntityDeleted(m.ProjectID, mu.ID, cascaded, now))
	return nil
}

func (m *CanonicalModel) setEntityPosition(mu changes.SetEntityPosition, now time.Time, delta *changes.Delta) error {
	e, exists := m.Entities[mu.ID]
	if !exists {
		return pkgerrors.NewNotFoundError("entity " + mu.ID)
	}
	if !mu.Position.Valid() {
		return pkgerrors.NewValidationError("position must be finite")
	}
	pos := mu.Position
	e.Position = &pos
	e.UpdatedAt = now
	delta.PositionsMoved = append(delta.PositionsMoved, mu.ID)
	return nil
}

func (m *CanonicalModel) createRelationship(mu changes.CreateRelationship, now time.Time, limits Limits, delta *changes.Delta) error {
	r := mu.Relationship
	if r == nil {
		return pkgerrors.NewValidationError("create-relationship requires a relationship")
	}
	if _, exists := m.Relationships[r.ID]; exists {
		return pkgerrors.NewConflictError(fmt.Sprintf("relationship %s already exists", r.ID))
	}
	if limits.MaxRelationships > 0 && len(m.Relationships) >= limits.MaxRelationships {
		return pkgerrors.NewValidationError(fmt.Sprintf("maximum relationships reached: %d", limits.MaxRelationships))
	}
	if _, ok := m.Entities[r.SourceID]; !ok {
		return pkgerrors.NewIntegrityViolationError(fmt.Sprintf("relationship %s references missing source entity %s", r.ID, r.SourceID))
	}
	if _, ok := m.Entities[r.TargetID]; !ok {
		return pkgerrors.NewIntegrityViolationError(fmt.Sprintf("relationship %s references missing target entity %s", r.ID, r.TargetID))
	}
	cp := r.Clone()
	cp.CreatedAt = now
	cp.UpdatedAt = now
	m.Relationships[cp.ID] = cp
	delta.RelationshipsAdded = append(delta.RelationshipsAdded, cp.ID)
	m.record(events.NewRelationshipCreated(m.ProjectID, cp.ID, cp.SourceID, cp.TargetID, cp.Type.String(), now))
	return nil
}

func (m *CanonicalModel) updateRelationship(mu changes.UpdateRelationship, now time.Time, delta *changes.Delta) error {
	r, exists := m.Relationships[mu.ID]
	if !exists {
		return pkgerrors.NewNotFoundError("relationship " + mu.ID)
	}
	fields := mu.Fields.Names()
	if len(fields) == 0 {
		return pkgerrors.NewValidationError("update-relationship touches no fields")
	}
	if mu.Fields.Type != nil {
		if !mu.Fields.Type.Valid() {
			return pkgerrors.NewValidationError("relationship type is not part of the enumeration")
		}
		r.Type = *mu.Fields.Type
	}
	if mu.Fields.Label != nil {
		r.Label = *mu.Fields.Label
	}
	if r.Properties == nil {
		r.Properties = make(map[string]string)
	}
	for k, v := range mu.Fields.Properties {
		if v == "" {
			delete(r.Properties, k)
		} else {
			r.Properties[k] = v
		}
	}
	r.UpdatedAt = now
	delta.RelationshipsUpdated[mu.ID] = mergeFieldNames(delta.RelationshipsUpdated[mu.ID], fields)
	m.record(events.NewRelationshipUpdated(m.ProjectID, mu.ID, fields, now))
	return nil
}

func (m *CanonicalModel) deleteRelationship(mu changes.DeleteRelationship, now time.Time, delta *changes.Delta) error {
	if _, exists := m.Relationships[mu.ID]; !exists {
		return pkgerrors.NewNotFoundError("relationship " + mu.ID)
	}
	delete(m.Relationships, mu.ID)
	delete(m.SectionNotes, mu.ID)
	delta.RelationshipsDeleted = append(delta.RelationshipsDeleted, mu.ID)
	m.record(events.NewRelationshipDeleted(m.ProjectID, mu.ID, now))
	return nil
}

func (m *CanonicalModel) setSectionNote(mu changes.SetSectionNote, now time.Time, delta *changes.Delta) error {
	if mu.Note == "" {
		delete(m.SectionNotes, mu.SectionID)
	} else {
		m.SectionNotes[mu.SectionID] = mu.Note
	}
	m.LastModified = now
	delta.NotesUpdated = append(delta.NotesUpdated, mu.SectionID)
	return nil
}

func (m *CanonicalModel) addBusinessRule(mu changes.AddBusinessRule, now time.Time, delta *changes.Delta) error {
	if mu.Rule.ID == "" {
		return pkgerrors.NewValidationError("business rule id cannot be empty")
	}
	for _, r := range m.BusinessRules {
		if r.ID == mu.Rule.ID {
			return pkgerrors.NewConflictError(fmt.Sprintf("business rule %s already exists", mu.Rule.ID))
		}
	}
	m.BusinessRules = append(m.BusinessRules, mu.Rule)
	delta.RulesAdded = append(delta.RulesAdded, mu.Rule.ID)
	return nil
}

// CheckIntegrity verifies the referential-integrity invariant: every
// relationship endpoint names an existing entity
func (m *CanonicalModel) CheckIntegrity() error {
	for id, r := range m.Relationships {
		if _, ok := m.Entities[r.SourceID]; !ok {
			return pkgerrors.NewIntegrityViolationError(fmt.Sprintf("relationship %s has dangling source %s", id, r.SourceID))
		}
		if _, ok := m.Entities[r.TargetID]; !ok {
			return pkgerrors.NewIntegrityViolationError(fmt.Sprintf("relationship %s has dangling target %s", id, r.TargetID))
		}
	}
	return nil
}

// EntityIDs returns all entity ids in deterministic order
func (m *CanonicalModel) EntityIDs() []string {
	ids := make([]string, 0, len(m.Entities))
	for id := range m.Entities {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// RelationshipIDs returns all relationship ids in deterministic order
func (m *CanonicalModel) RelationshipIDs() []string {
	ids := make([]string, 0, len(m.Relationships))
	for id := range m.Relationships {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// GetUncommittedEvents returns the domain events recorded by ApplyAll
func (m *CanonicalModel) GetUncommittedEvents() []events.DomainEvent {
	return m.uncommittedEvents
}

// MarkEventsAsCommitted clears the uncommitted events
func (m *CanonicalModel) MarkEventsAsCommitted() {
	m.uncommittedEvents = nil
}

func (m *CanonicalModel) record(event events.DomainEvent) {
	m.uncommittedEvents = append(m.uncommittedEvents, event)
}

func mergeFieldNames(existing, incoming []string) []string {
	seen := make(map[string]bool, len(existing))
	for _, f := range existing {
		seen[f] = true
	}
	for _, f := range incoming {
		if !seen[f] {
			existing = append(existing, f)
			seen[f] = true
		}
	}
	return existing
}
