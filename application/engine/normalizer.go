// Package engine implements the synchronization pipeline: normalization of
// representation-specific changes into canonical mutations, projection of
// committed deltas into the opposite representation, and detection and
// resolution of concurrent-edit conflicts.
package engine

import (
	"flowsketch-backend/application/render"
	"flowsketch-backend/domain/changes"
	"flowsketch-backend/domain/core/aggregates"
	"flowsketch-backend/domain/core/entities"
	"flowsketch-backend/domain/core/valueobjects"
	pkgerrors "flowsketch-backend/pkg/errors"
)

// Normalizer translates tagged diagram and spec changes into canonical
// mutations. Normalization is pure; it reads the model snapshot to diff
// updates but never writes.
type Normalizer struct{}

// NewNormalizer creates a normalizer
func NewNormalizer() *Normalizer {
	return &Normalizer{}
}

// NormalizeDiagram maps one diagram change onto canonical mutations
func (n *Normalizer) NormalizeDiagram(model *aggregates.CanonicalModel, ch *changes.DiagramChange) ([]changes.Mutation, error) {
	switch ch.Op {
	case changes.NodeAdd:
		return n.nodeAdd(ch)
	case changes.NodeUpdate:
		return n.nodeUpdate(model, ch)
	case changes.NodeDelete:
		if _, ok := model.Entities[ch.TargetID]; !ok {
			return nil, pkgerrors.NewNotFoundError("entity " + ch.TargetID)
		}
		return []changes.Mutation{changes.DeleteEntity{ID: ch.TargetID}}, nil
	case changes.EdgeAdd:
		return n.edgeAdd(ch)
	case changes.EdgeUpdate:
		return n.edgeUpdate(model, ch)
	case changes.EdgeDelete:
		if _, ok := model.Relationships[ch.TargetID]; !ok {
			return nil, pkgerrors.NewNotFoundError("relationship " + ch.TargetID)
		}
		return []changes.Mutation{changes.DeleteRelationship{ID: ch.TargetID}}, nil
	}
	return nil, pkgerrors.NewValidationError("unknown diagram op " + string(ch.Op))
}

func (n *Normalizer) nodeAdd(ch *changes.DiagramChange) ([]changes.Mutation, error) {
	entityType, err := valueobjects.ParseEntityType(*ch.Node.Type)
	if err != nil {
		return nil, err
	}
	e, err := entities.NewEntity(ch.TargetID, *ch.Node.Name, entityType)
	if err != nil {
		return nil, err
	}
	for k, v := range ch.Node.Properties {
		e.Properties[k] = v
	}
	if ch.Node.Position != nil {
		pos := *ch.Node.Position
		e.Position = &pos
	}
	return []changes.Mutation{changes.CreateEntity{Entity: e}}, nil
}

func (n *Normalizer) nodeUpdate(model *aggregates.CanonicalModel, ch *changes.DiagramChange) ([]changes.Mutation, error) {
	current, ok := model.Entities[ch.TargetID]
	if !ok {
		return nil, pkgerrors.NewNotFoundError("entity " + ch.TargetID)
	}

	var muts []changes.Mutation
	fields := changes.EntityFields{}
	if ch.Node.Name != nil && *ch.Node.Name != current.Name {
		fields.Name = ch.Node.Name
	}
	if ch.Node.Type != nil {
		t, err := valueobjects.ParseEntityType(*ch.Node.Type)
		if err != nil {
			return nil, err
		}
		if t != current.Type {
			fields.Type = &t
		}
	}
	if props := diffProperties(current.Properties, ch.Node.Properties); len(props) > 0 {
		fields.Properties = props
	}
	if len(fields.Names()) > 0 {
		muts = append(muts, changes.UpdateEntity{ID: ch.TargetID, Fields: fields})
	}
	if ch.Node.Position != nil {
		if current.Position == nil || !current.Position.Equals(*ch.Node.Position) {
			muts = append(muts, changes.SetEntityPosition{ID: ch.TargetID, Position: *ch.Node.Position})
		}
	}
	if len(muts) == 0 {
		return nil, pkgerrors.NewValidationError("node:update changes nothing")
	}
	return muts, nil
}

func (n *Normalizer) edgeAdd(ch *changes.DiagramChange) ([]changes.Mutation, error) {
	relType, err := valueobjects.ParseRelationshipType(*ch.Edge.Type)
	if err != nil {
		return nil, err
	}
	label := ""
	if ch.Edge.Label != nil {
		label = *ch.Edge.Label
	}
	r, err := entities.NewRelationship(ch.TargetID, ch.Edge.SourceID, ch.Edge.TargetID, relType, label)
	if err != nil {
		return nil, err
	}
	for k, v := range ch.Edge.Properties {
		r.Properties[k] = v
	}
	return []changes.Mutation{changes.CreateRelationship{Relationship: r}}, nil
}

func (n *Normalizer) edgeUpdate(model *aggregates.CanonicalModel, ch *changes.DiagramChange) ([]changes.Mutation, error) {
	current, ok := model.Relationships[ch.TargetID]
	if !ok {
		return nil, pkgerrors.NewNotFoundError("relationship " + ch.TargetID)
	}
	if ch.Edge.SourceID != "" && ch.Edge.SourceID != current.SourceID {
		return nil, pkgerrors.NewValidationError("relationship endpoints are immutable; delete and re-add instead")
	}
	if ch.Edge.TargetID != "" && ch.Edge.TargetID != current.TargetID {
		return nil, pkgerrors.NewValidationError("relationship endpoints are immutable; delete and re-add instead")
	}

	fields := changes.RelationshipFields{}
	if ch.Edge.Type != nil {
		t, err := valueobjects.ParseRelationshipType(*ch.Edge.Type)
		if err != nil {
			return nil, err
		}
		if t != current.Type {
			fields.Type = &t
		}
	}
	if ch.Edge.Label != nil && *ch.Edge.Label != current.Label {
		fields.Label = ch.Edge.Label
	}
	if props := diffProperties(current.Properties, ch.Edge.Properties); len(props) > 0 {
		fields.Properties = props
	}
	if len(fields.Names()) == 0 {
		return nil, pkgerrors.NewValidationError("edge:update changes nothing")
	}
	return []changes.Mutation{changes.UpdateRelationship{ID: ch.TargetID, Fields: fields}}, nil
}

// NormalizeSpec maps one spec change onto canonical mutations. Structured
// section content drives entity and relationship mutations; content that
// matches no structural pattern commits as a section note and never touches
// the diagram.
func (n *Normalizer) NormalizeSpec(model *aggregates.CanonicalModel, ch *changes.SpecChange) ([]changes.Mutation, error) {
	switch ch.Op {
	case changes.SectionAdd:
		return n.sectionAdd(model, ch)
	case changes.SectionUpdate, changes.ContentUpdate:
		return n.sectionUpdate(model, ch)
	case changes.SectionDelete:
		return n.sectionDelete(model, ch)
	}
	return nil, pkgerrors.NewValidationError("unknown spec op " + string(ch.Op))
}

func (n *Normalizer) sectionAdd(model *aggregates.CanonicalModel, ch *changes.SpecChange) ([]changes.Mutation, error) {
	fields, structured := render.ParseSection(*ch.Content)
	if !structured {
		return []changes.Mutation{changes.SetSectionNote{SectionID: ch.SectionID, Note: *ch.Content}}, nil
	}

	if fields.Relationship {
		relType, err := valueobjects.ParseRelationshipType(fields.RelType)
		if err != nil {
			return nil, err
		}
		r, err := entities.NewRelationship(ch.SectionID, fields.SourceID, fields.TargetID, relType, fields.Label)
		if err != nil {
			return nil, err
		}
		for k, v := range fields.Properties {
			r.Properties[k] = v
		}
		return []changes.Mutation{changes.CreateRelationship{Relationship: r}}, nil
	}

	entityType, err := valueobjects.ParseEntityType(fields.EntityType)
	if err != nil {
		return nil, err
	}
	e, err := entities.NewEntity(ch.SectionID, fields.Name, entityType)
	if err != nil {
		return nil, err
	}
	for k, v := range fields.Properties {
		e.Properties[k] = v
	}
	return []changes.Mutation{changes.CreateEntity{Entity: e}}, nil
}

func (n *Normalizer) sectionUpdate(model *aggregates.CanonicalModel, ch *changes.SpecChange) ([]changes.Mutation, error) {
	fields, structured := render.ParseSection(*ch.Content)
	if !structured {
		return []changes.Mutation{changes.SetSectionNote{SectionID: ch.SectionID, Note: *ch.Content}}, nil
	}

	if rel, ok := model.Relationships[ch.SectionID]; ok {
		if !fields.Relationship {
			return nil, pkgerrors.NewValidationError("section " + ch.SectionID + " describes a relationship; entity content not allowed")
		}
		if fields.SourceID != rel.SourceID || fields.TargetID != rel.TargetID {
			return nil, pkgerrors.NewValidationError("relationship endpoints are immutable; delete and re-add instead")
		}
		relFields := changes.RelationshipFields{}
		relType, err := valueobjects.ParseRelationshipType(fields.RelType)
		if err != nil {
			return nil, err
		}
		if relType != rel.Type {
			relFields.Type = &relType
		}
		if fields.Label != rel.Label {
			label := fields.Label
			relFields.Label = &label
		}
		if props := diffProperties(rel.Properties, fields.Properties); len(props) > 0 {
			relFields.Properties = props
		}
		if len(relFields.Names()) == 0 {
			return nil, pkgerrors.NewValidationError("section:update changes nothing")
		}
		return []changes.Mutation{changes.UpdateRelationship{ID: ch.SectionID, Fields: relFields}}, nil
	}

	if e, ok := model.Entities[ch.SectionID]; ok {
		if fields.Relationship {
			return nil, pkgerrors.NewValidationError("section " + ch.SectionID + " describes an entity; relationship content not allowed")
		}
		entFields := changes.EntityFields{}
		entityType, err := valueobjects.ParseEntityType(fields.EntityType)
		if err != nil {
			return nil, err
		}
		if entityType != e.Type {
			entFields.Type = &entityType
		}
		if fields.Name != e.Name {
			name := fields.Name
			entFields.Name = &name
		}
		if props := diffProperties(e.Properties, fields.Properties); len(props) > 0 {
			entFields.Properties = props
		}
		if len(entFields.Names()) == 0 {
			return nil, pkgerrors.NewValidationError("section:update changes nothing")
		}
		return []changes.Mutation{changes.UpdateEntity{ID: ch.SectionID, Fields: entFields}}, nil
	}

	// Structured content for an unknown section behaves like section:add
	return n.sectionAdd(model, ch)
}

func (n *Normalizer) sectionDelete(model *aggregates.CanonicalModel, ch *changes.SpecChange) ([]changes.Mutation, error) {
	if _, ok := model.Entities[ch.SectionID]; ok {
		return []changes.Mutation{changes.DeleteEntity{ID: ch.SectionID}}, nil
	}
	if _, ok := model.Relationships[ch.SectionID]; ok {
		return []changes.Mutation{changes.DeleteRelationship{ID: ch.SectionID}}, nil
	}
	if _, ok := model.SectionNotes[ch.SectionID]; ok {
		return []changes.Mutation{changes.SetSectionNote{SectionID: ch.SectionID, Note: ""}}, nil
	}
	return nil, pkgerrors.NewNotFoundError("section " + ch.SectionID)
}

// diffProperties returns the property writes that turn current into desired.
// A nil desired map means properties were untouched; keys missing from a
// non-nil desired map are removed via empty values.
func diffProperties(current, desired map[string]string) map[string]string {
	if desired == nil {
		return nil
	}
	diff := make(map[string]string)
	for k, v := range desired {
		if current[k] != v {
			diff[k] = v
		}
	}
	for k := range current {
		if _, ok := desired[k]; !ok {
			diff[k] = ""
		}
	}
	return diff
}
