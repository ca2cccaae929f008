package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flowsketch-backend/domain/changes"
	"flowsketch-backend/domain/core/aggregates"
	"flowsketch-backend/domain/core/entities"
	"flowsketch-backend/domain/core/valueobjects"
)

func buildModel(t *testing.T, muts []changes.Mutation) *aggregates.CanonicalModel {
	t.Helper()
	m := aggregates.NewCanonicalModel("proj-1")
	if len(muts) > 0 {
		_, err := m.ApplyAll(muts, time.Now(), aggregates.Limits{})
		require.NoError(t, err)
	}
	return m
}

func entity(t *testing.T, id, name string) *entities.Entity {
	t.Helper()
	e, err := entities.NewEntity(id, name, valueobjects.EntityTypeObject)
	require.NoError(t, err)
	return e
}

func TestValidate_CleanModel(t *testing.T) {
	a := entity(t, "a", "A")
	b := entity(t, "b", "B")
	r, err := entities.NewRelationship("ab", "a", "b", valueobjects.RelationshipFlow, "sends")
	require.NoError(t, err)

	m := buildModel(t, []changes.Mutation{
		changes.CreateEntity{Entity: a},
		changes.CreateEntity{Entity: b},
		changes.CreateRelationship{Relationship: r},
	})

	result := NewDiagramValidator().Validate(m)
	assert.True(t, result.Valid)
	assert.Empty(t, result.Issues)
}

func TestValidate_DuplicateRelationships(t *testing.T) {
	r1, err := entities.NewRelationship("r1", "a", "b", valueobjects.RelationshipFlow, "")
	require.NoError(t, err)
	r2, err := entities.NewRelationship("r2", "a", "b", valueobjects.RelationshipFlow, "")
	require.NoError(t, err)

	m := buildModel(t, []changes.Mutation{
		changes.CreateEntity{Entity: entity(t, "a", "A")},
		changes.CreateEntity{Entity: entity(t, "b", "B")},
		changes.CreateRelationship{Relationship: r1},
		changes.CreateRelationship{Relationship: r2},
	})

	result := NewDiagramValidator().Validate(m)
	require.Len(t, result.Issues, 1)
	issue := result.Issues[0]
	assert.Equal(t, CodeDuplicateRelationships, issue.Code)
	assert.Equal(t, SeverityWarning, issue.Severity)
	assert.ElementsMatch(t, []string{"r1", "r2"}, issue.Targets)
	assert.True(t, result.Valid, "warnings do not invalidate the diagram")
}

func TestValidate_IsolatedNodes(t *testing.T) {
	r, err := entities.NewRelationship("ab", "a", "b", valueobjects.RelationshipAssociation, "")
	require.NoError(t, err)

	m := buildModel(t, []changes.Mutation{
		changes.CreateEntity{Entity: entity(t, "a", "A")},
		changes.CreateEntity{Entity: entity(t, "b", "B")},
		changes.CreateEntity{Entity: entity(t, "lonely", "Lonely")},
		changes.CreateRelationship{Relationship: r},
	})

	result := NewDiagramValidator().Validate(m)
	require.Len(t, result.Issues, 1)
	assert.Equal(t, CodeIsolatedNodes, result.Issues[0].Code)
	assert.Equal(t, []string{"lonely"}, result.Issues[0].Targets)
}

func TestValidate_OrphanedEdges(t *testing.T) {
	// Assemble a broken model directly; ApplyAll would reject it
	m := aggregates.NewCanonicalModel("proj-1")
	m.Entities["a"] = entity(t, "a", "A")
	r, err := entities.NewRelationship("bad", "a", "ghost", valueobjects.RelationshipDependency, "")
	require.NoError(t, err)
	m.Relationships["bad"] = r

	result := NewDiagramValidator().Validate(m)
	assert.False(t, result.Valid)
	require.NotEmpty(t, result.Issues)
	assert.Equal(t, CodeOrphanedEdges, result.Issues[0].Code)
	assert.Equal(t, SeverityError, result.Issues[0].Severity)
}
