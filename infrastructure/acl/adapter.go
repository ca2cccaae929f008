package acl

import (
	"fmt"

	"github.com/google/uuid"

	"flowsketch-backend/application/ports"
	"flowsketch-backend/domain/changes"
	"flowsketch-backend/domain/core/entities"
	"flowsketch-backend/domain/core/valueobjects"
	pkgerrors "flowsketch-backend/pkg/errors"
)

// verbAliases maps the parser's natural-language verbs onto the canonical
// relationship enumeration. Unknown verbs fall back to association.
var verbAliases = map[string]valueobjects.RelationshipType{
	"contains":   valueobjects.RelationshipComposition,
	"manages":    valueobjects.RelationshipAggregation,
	"inherits":   valueobjects.RelationshipInheritance,
	"depends_on": valueobjects.RelationshipDependency,
	"uses":       valueobjects.RelationshipDependency,
	"accesses":   valueobjects.RelationshipDependency,
	"flows_to":   valueobjects.RelationshipFlow,
	"sends":      valueobjects.RelationshipFlow,
	"receives":   valueobjects.RelationshipFlow,
	"triggers":   valueobjects.RelationshipFlow,
	"creates":    valueobjects.RelationshipFlow,
	"processes":  valueobjects.RelationshipFlow,
	"stores":     valueobjects.RelationshipFlow,
}

// MapVerb translates a parser verb into a canonical relationship type. The
// verb may already be a canonical type name.
func MapVerb(verb string) valueobjects.RelationshipType {
	if t, err := valueobjects.ParseRelationshipType(verb); err == nil {
		return t
	}
	if t, ok := verbAliases[verb]; ok {
		return t
	}
	return valueobjects.RelationshipAssociation
}

// ToMutations translates a parsed model into the canonical mutation batch
// that seeds a project. Parser entity types must be valid; relationships
// referencing unknown entities are dropped rather than failing the seed.
func ToMutations(parsed *ports.ParsedModel) ([]changes.Mutation, error) {
	if parsed == nil {
		return nil, pkgerrors.NewValidationError("parsed model is nil")
	}

	var muts []changes.Mutation
	known := make(map[string]bool, len(parsed.Entities))

	for _, pe := range parsed.Entities {
		entityType, err := valueobjects.ParseEntityType(pe.Type)
		if err != nil {
			return nil, pkgerrors.Wrapf(err, "parsed entity %q", pe.ID)
		}
		id := pe.ID
		if id == "" {
			id = uuid.New().String()
		}
		e, err := entities.NewEntity(id, pe.Name, entityType)
		if err != nil {
			return nil, pkgerrors.Wrapf(err, "parsed entity %q", pe.ID)
		}
		for k, v := range pe.Properties {
			e.Properties[k] = v
		}
		known[id] = true
		muts = append(muts, changes.CreateEntity{Entity: e})
	}

	for _, pr := range parsed.Relationships {
		if !known[pr.SourceID] || !known[pr.TargetID] {
			continue
		}
		id := pr.ID
		if id == "" {
			id = fmt.Sprintf("%s-%s", pr.SourceID, pr.TargetID)
		}
		r, err := entities.NewRelationship(id, pr.SourceID, pr.TargetID, MapVerb(pr.Verb), pr.Label)
		if err != nil {
			return nil, pkgerrors.Wrapf(err, "parsed relationship %q", pr.ID)
		}
		muts = append(muts, changes.CreateRelationship{Relationship: r})
	}

	for _, rule := range parsed.BusinessRules {
		id := rule.ID
		if id == "" {
			id = uuid.New().String()
		}
		muts = append(muts, changes.AddBusinessRule{Rule: entities.BusinessRule{
			ID:          id,
			Description: rule.Description,
			Category:    rule.Category,
		}})
	}
	return muts, nil
}
