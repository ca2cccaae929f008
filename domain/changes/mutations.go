package changes

import (
	"flowsketch-backend/domain/core/entities"
	"flowsketch-backend/domain/core/valueobjects"
)

// MutationKind tags the closed canonical mutation union
type MutationKind string

const (
	MutationCreateEntity       MutationKind = "create-entity"
	MutationUpdateEntity       MutationKind = "update-entity"
	MutationDeleteEntity       MutationKind = "delete-entity"
	MutationSetEntityPosition  MutationKind = "set-entity-position"
	MutationCreateRelationship MutationKind = "create-relationship"
	MutationUpdateRelationship MutationKind = "update-relationship"
	MutationDeleteRelationship MutationKind = "delete-relationship"
	MutationSetSectionNote     MutationKind = "set-section-note"
	MutationAddBusinessRule    MutationKind = "add-business-rule"
)

// Mutation is one canonical model mutation produced by the normalizer.
// The union is closed; the aggregate rejects anything it does not know.
type Mutation interface {
	Kind() MutationKind
	// Target returns the canonical element id the mutation touches,
	// used for conflict overlap detection
	Target() string
}

// CreateEntity adds a new entity to the canonical model
type CreateEntity struct {
	Entity *entities.Entity
}

func (m CreateEntity) Kind() MutationKind { return MutationCreateEntity }
func (m CreateEntity) Target() string     { return m.Entity.ID }

// EntityFields carries the subset of entity fields an update touches.
// Nil members are untouched; Properties merges key by key.
type EntityFields struct {
	Name       *string
	Type       *valueobjects.EntityType
	Properties map[string]string
}

// Names lists the touched field names, properties expanded per key
func (f EntityFields) Names() []string {
	var names []string
	if f.Name != nil {
		names = append(names, "name")
	}
	if f.Type != nil {
		names = append(names, "type")
	}
	for k := range f.Properties {
		names = append(names, "properties."+k)
	}
	return names
}

// UpdateEntity updates a subset of entity fields
type UpdateEntity struct {
	ID     string
	Fields EntityFields
}

func (m UpdateEntity) Kind() MutationKind { return MutationUpdateEntity }
func (m UpdateEntity) Target() string     { return m.ID }

// DeleteEntity removes an entity and cascades to incident relationships
type DeleteEntity struct {
	ID string
}

func (m DeleteEntity) Kind() MutationKind { return MutationDeleteEntity }
func (m DeleteEntity) Target() string     { return m.ID }

// SetEntityPosition moves the diagram node for an entity. Position is
// diagram-owned; this mutation never projects into the spec.
type SetEntityPosition struct {
	ID       string
	Position valueobjects.Position
}

func (m SetEntityPosition) Kind() MutationKind { return MutationSetEntityPosition }
func (m SetEntityPosition) Target() string     { return m.ID }

// CreateRelationship adds a new relationship
type CreateRelationship struct {
	Relationship *entities.Relationship
}

func (m CreateRelationship) Kind() MutationKind { return MutationCreateRelationship }
func (m CreateRelationship) Target() string     { return m.Relationship.ID }

// RelationshipFields carries the subset of relationship fields an update touches
type RelationshipFields struct {
	Type       *valueobjects.RelationshipType
	Label      *string
	Properties map[string]string
}

// Names lists the touched field names
func (f RelationshipFields) Names() []string {
	var names []string
	if f.Type != nil {
		names = append(names, "type")
	}
	if f.Label != nil {
		names = append(names, "label")
	}
	for k := range f.Properties {
		names = append(names, "properties."+k)
	}
	return names
}

// UpdateRelationship updates a subset of relationship fields
type UpdateRelationship struct {
	ID     string
	Fields RelationshipFields
}

func (m UpdateRelationship) Kind() MutationKind { return MutationUpdateRelationship }
func (m UpdateRelationship) Target() string     { return m.ID }

// DeleteRelationship removes a relationship
type DeleteRelationship struct {
	ID string
}

func (m DeleteRelationship) Kind() MutationKind { return MutationDeleteRelationship }
func (m DeleteRelationship) Target() string     { return m.ID }

// SetSectionNote stores free spec prose that matched no structural pattern.
// The note is spec-representation-owned; an empty note removes it.
type SetSectionNote struct {
	SectionID string
	Note      string
}

func (m SetSectionNote) Kind() MutationKind { return MutationSetSectionNote }
func (m SetSectionNote) Target() string     { return m.SectionID }

// AddBusinessRule appends an opaque rule record, used by parse seeding
type AddBusinessRule struct {
	Rule entities.BusinessRule
}

func (m AddBusinessRule) Kind() MutationKind { return MutationAddBusinessRule }
func (m AddBusinessRule) Target() string     { return m.Rule.ID }

// Delta describes the effect of one committed mutation batch. Projectors and
// the conflict detector read deltas; they never see writable model state.
type Delta struct {
	EntitiesAdded        []string            `json:"entitiesAdded,omitempty"`
	EntitiesUpdated      map[string][]string `json:"entitiesUpdated,omitempty"`
	EntitiesDeleted      []string            `json:"entitiesDeleted,omitempty"`
	RelationshipsAdded   []string            `json:"relationshipsAdded,omitempty"`
	RelationshipsUpdated map[string][]string `json:"relationshipsUpdated,omitempty"`
	RelationshipsDeleted []string            `json:"relationshipsDeleted,omitempty"`
	PositionsMoved       []string            `json:"positionsMoved,omitempty"`
	NotesUpdated         []string            `json:"notesUpdated,omitempty"`
	RulesAdded           []string            `json:"rulesAdded,omitempty"`
}

// NewDelta creates an empty delta
func NewDelta() *Delta {
	return &Delta{
		EntitiesUpdated:      make(map[string][]string),
		RelationshipsUpdated: make(map[string][]string),
	}
}

// Empty reports whether the delta records no effect
func (d *Delta) Empty() bool {
	return len(d.EntitiesAdded) == 0 && len(d.EntitiesUpdated) == 0 && len(d.EntitiesDeleted) == 0 &&
		len(d.RelationshipsAdded) == 0 && len(d.RelationshipsUpdated) == 0 && len(d.RelationshipsDeleted) == 0 &&
		len(d.PositionsMoved) == 0 && len(d.NotesUpdated) == 0 && len(d.RulesAdded) == 0
}

// Touches reports whether the delta touches the given canonical element
func (d *Delta) Touches(id string) bool {
	for _, lists := range [][]string{
		d.EntitiesAdded, d.EntitiesDeleted,
		d.RelationshipsAdded, d.RelationshipsDeleted,
		d.PositionsMoved, d.NotesUpdated,
	} {
		for _, v := range lists {
			if v == id {
				return true
			}
		}
	}
	if _, ok := d.EntitiesUpdated[id]; ok {
		return true
	}
	if _, ok := d.RelationshipsUpdated[id]; ok {
		return true
	}
	return false
}

// Deleted reports whether the delta deleted the given element
func (d *Delta) Deleted(id string) bool {
	for _, v := range d.EntitiesDeleted {
		if v == id {
			return true
		}
	}
	for _, v := range d.RelationshipsDeleted {
		if v == id {
			return true
		}
	}
	return false
}

// UpdatedFields returns the field names the delta changed on the element
func (d *Delta) UpdatedFields(id string) []string {
	if fields, ok := d.EntitiesUpdated[id]; ok {
		return fields
	}
	if fields, ok := d.RelationshipsUpdated[id]; ok {
		return fields
	}
	return nil
}
