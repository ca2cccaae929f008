package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flowsketch-backend/domain/changes"
	"flowsketch-backend/domain/core/aggregates"
	"flowsketch-backend/domain/core/entities"
	"flowsketch-backend/domain/core/valueobjects"
	pkgerrors "flowsketch-backend/pkg/errors"
)

func modelWithEntity(t *testing.T) *aggregates.CanonicalModel {
	t.Helper()
	m := aggregates.NewCanonicalModel("p1")
	e, err := entities.NewEntity("orders", "Order Service", valueobjects.EntityTypeSystem)
	require.NoError(t, err)
	e.Properties["owner"] = "checkout"
	_, err = m.ApplyAll([]changes.Mutation{changes.CreateEntity{Entity: e}}, time.Now(), aggregates.Limits{})
	require.NoError(t, err)
	return m
}

func TestNormalizeDiagram_NodeAdd(t *testing.T) {
	n := NewNormalizer()
	name, typ := "Customer", "actor"
	pos, err := valueobjects.NewPosition(10, 20)
	require.NoError(t, err)

	muts, err := n.NormalizeDiagram(aggregates.NewCanonicalModel("p1"), &changes.DiagramChange{
		Op: changes.NodeAdd, TargetID: "user",
		Node:      &changes.NodePayload{Name: &name, Type: &typ, Position: &pos},
		Timestamp: time.Now(), UserID: "u1",
	})
	require.NoError(t, err)
	require.Len(t, muts, 1)

	create, ok := muts[0].(changes.CreateEntity)
	require.True(t, ok)
	assert.Equal(t, "user", create.Entity.ID)
	assert.Equal(t, valueobjects.EntityTypeActor, create.Entity.Type)
	require.NotNil(t, create.Entity.Position)
	assert.InDelta(t, 10.0, create.Entity.Position.X, 1e-9)
}

func TestNormalizeDiagram_NodeUpdateDiffsAgainstModel(t *testing.T) {
	n := NewNormalizer()
	m := modelWithEntity(t)
	name := "Order API"
	sameType := "system"

	muts, err := n.NormalizeDiagram(m, &changes.DiagramChange{
		Op: changes.NodeUpdate, TargetID: "orders",
		Node:      &changes.NodePayload{Name: &name, Type: &sameType},
		Timestamp: time.Now(), UserID: "u1",
	})
	require.NoError(t, err)
	require.Len(t, muts, 1)

	update, ok := muts[0].(changes.UpdateEntity)
	require.True(t, ok)
	assert.Equal(t, []string{"name"}, update.Fields.Names(), "unchanged type is not a touched field")
}

func TestNormalizeDiagram_PositionOnlyUpdate(t *testing.T) {
	n := NewNormalizer()
	m := modelWithEntity(t)
	pos, err := valueobjects.NewPosition(100, 50)
	require.NoError(t, err)

	muts, err := n.NormalizeDiagram(m, &changes.DiagramChange{
		Op: changes.NodeUpdate, TargetID: "orders",
		Node:      &changes.NodePayload{Position: &pos},
		Timestamp: time.Now(), UserID: "u1",
	})
	require.NoError(t, err)
	require.Len(t, muts, 1)
	_, ok := muts[0].(changes.SetEntityPosition)
	assert.True(t, ok)
}

func TestNormalizeDiagram_NoOpUpdateRejected(t *testing.T) {
	n := NewNormalizer()
	m := modelWithEntity(t)
	name := "Order Service"

	_, err := n.NormalizeDiagram(m, &changes.DiagramChange{
		Op: changes.NodeUpdate, TargetID: "orders",
		Node:      &changes.NodePayload{Name: &name},
		Timestamp: time.Now(), UserID: "u1",
	})
	assert.True(t, pkgerrors.IsValidation(err))
}

func TestNormalizeDiagram_EdgeEndpointsImmutable(t *testing.T) {
	n := NewNormalizer()
	m := modelWithEntity(t)
	e2, err := entities.NewEntity("db", "DB", valueobjects.EntityTypeData)
	require.NoError(t, err)
	rel, err := entities.NewRelationship("r1", "orders", "db", valueobjects.RelationshipDependency, "")
	require.NoError(t, err)
	_, err = m.ApplyAll([]changes.Mutation{
		changes.CreateEntity{Entity: e2},
		changes.CreateRelationship{Relationship: rel},
	}, time.Now(), aggregates.Limits{})
	require.NoError(t, err)

	_, err = n.NormalizeDiagram(m, &changes.DiagramChange{
		Op: changes.EdgeUpdate, TargetID: "r1",
		Edge:      &changes.EdgePayload{SourceID: "db", TargetID: "orders"},
		Timestamp: time.Now(), UserID: "u1",
	})
	assert.True(t, pkgerrors.IsValidation(err))
}

func TestNormalizeSpec_StructuredSectionUpdate(t *testing.T) {
	n := NewNormalizer()
	m := modelWithEntity(t)
	content := "**Type**: process\n**Name**: Order Service\nProperties:\n- owner: checkout"

	muts, err := n.NormalizeSpec(m, &changes.SpecChange{
		Op: changes.SectionUpdate, SectionID: "orders", Content: &content,
		Timestamp: time.Now(), UserID: "u1",
	})
	require.NoError(t, err)
	require.Len(t, muts, 1)

	update, ok := muts[0].(changes.UpdateEntity)
	require.True(t, ok)
	require.NotNil(t, update.Fields.Type)
	assert.Equal(t, valueobjects.EntityTypeProcess, *update.Fields.Type)
	assert.Nil(t, update.Fields.Name, "unchanged name not touched")
	assert.Empty(t, update.Fields.Properties, "unchanged properties not touched")
}

func TestNormalizeSpec_FreeTextBecomesNote(t *testing.T) {
	n := NewNormalizer()
	m := modelWithEntity(t)
	content := "This service owns the order lifecycle end to end."

	muts, err := n.NormalizeSpec(m, &changes.SpecChange{
		Op: changes.ContentUpdate, SectionID: "orders", Content: &content,
		Timestamp: time.Now(), UserID: "u1",
	})
	require.NoError(t, err)
	require.Len(t, muts, 1)

	note, ok := muts[0].(changes.SetSectionNote)
	require.True(t, ok)
	assert.Equal(t, "orders", note.SectionID)
	assert.Equal(t, content, note.Note)
}

func TestNormalizeSpec_KindMismatchRejected(t *testing.T) {
	n := NewNormalizer()
	m := modelWithEntity(t)
	content := "**Relationship**: flow\n**Source**: a\n**Target**: b"

	_, err := n.NormalizeSpec(m, &changes.SpecChange{
		Op: changes.SectionUpdate, SectionID: "orders", Content: &content,
		Timestamp: time.Now(), UserID: "u1",
	})
	assert.True(t, pkgerrors.IsValidation(err))
}

func TestNormalizeSpec_SectionDeleteFallsBackToNote(t *testing.T) {
	n := NewNormalizer()
	m := aggregates.NewCanonicalModel("p1")
	_, err := m.ApplyAll([]changes.Mutation{
		changes.SetSectionNote{SectionID: "overview", Note: "prose"},
	}, time.Now(), aggregates.Limits{})
	require.NoError(t, err)

	muts, err := n.NormalizeSpec(m, &changes.SpecChange{
		Op: changes.SectionDelete, SectionID: "overview",
		Timestamp: time.Now(), UserID: "u1",
	})
	require.NoError(t, err)
	require.Len(t, muts, 1)
	note, ok := muts[0].(changes.SetSectionNote)
	require.True(t, ok)
	assert.Empty(t, note.Note)
}
