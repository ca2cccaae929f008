package render

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flowsketch-backend/domain/changes"
	"flowsketch-backend/domain/core/aggregates"
	"flowsketch-backend/domain/core/entities"
	"flowsketch-backend/domain/core/valueobjects"
)

func sampleModel(t *testing.T) *aggregates.CanonicalModel {
	t.Helper()
	m := aggregates.NewCanonicalModel("proj-1")

	user, err := entities.NewEntity("user", "Customer", valueobjects.EntityTypeActor)
	require.NoError(t, err)
	svc, err := entities.NewEntity("orders", "Order Service", valueobjects.EntityTypeSystem)
	require.NoError(t, err)
	svc.Properties["owner"] = "checkout"
	db, err := entities.NewEntity("orderdb", "Order DB", valueobjects.EntityTypeData)
	require.NoError(t, err)
	flow, err := entities.NewRelationship("r1", "user", "orders", valueobjects.RelationshipFlow, "places order")
	require.NoError(t, err)
	stores, err := entities.NewRelationship("r2", "orders", "orderdb", valueobjects.RelationshipDependency, "")
	require.NoError(t, err)

	_, err = m.ApplyAll([]changes.Mutation{
		changes.CreateEntity{Entity: user},
		changes.CreateEntity{Entity: svc},
		changes.CreateEntity{Entity: db},
		changes.CreateRelationship{Relationship: flow},
		changes.CreateRelationship{Relationship: stores},
	}, time.Now(), aggregates.Limits{})
	require.NoError(t, err)
	return m
}

func TestSectionRoundTrip_Entity(t *testing.T) {
	e, err := entities.NewEntity("orders", "Order Service", valueobjects.EntityTypeSystem)
	require.NoError(t, err)
	e.Properties["owner"] = "checkout"
	e.Properties["tier"] = "gold"

	content := FormatEntitySection(e)
	fields, structured := ParseSection(content)

	require.True(t, structured)
	assert.False(t, fields.Relationship)
	assert.Equal(t, "Order Service", fields.Name)
	assert.Equal(t, "system", fields.EntityType)
	assert.Equal(t, "checkout", fields.Properties["owner"])
	assert.Equal(t, "gold", fields.Properties["tier"])
}

func TestSectionRoundTrip_Relationship(t *testing.T) {
	r, err := entities.NewRelationship("r1", "user", "orders", valueobjects.RelationshipFlow, "places order")
	require.NoError(t, err)

	content := FormatRelationshipSection(r)
	fields, structured := ParseSection(content)

	require.True(t, structured)
	assert.True(t, fields.Relationship)
	assert.Equal(t, "flow", fields.RelType)
	assert.Equal(t, "user", fields.SourceID)
	assert.Equal(t, "orders", fields.TargetID)
	assert.Equal(t, "places order", fields.Label)
}

func TestParseSection_FreeTextIsUnstructured(t *testing.T) {
	for _, content := range []string{
		"The system must respond within 200ms.",
		"**Type**: not-a-real-type\n**Name**: X",
		"**Unknown**: value",
		"**Type**: system\nSome trailing prose",
	} {
		_, structured := ParseSection(content)
		assert.False(t, structured, "content %q should be free text", content)
	}
}

func TestSections_DeterministicOrder(t *testing.T) {
	m := sampleModel(t)
	r := NewSpecificationRenderer()

	first := r.Sections(m)
	second := r.Sections(m)
	assert.Equal(t, first, second)

	require.Len(t, first, 5)
	// Entities in id order, then relationships in id order
	assert.Equal(t, "orderdb", first[0].ID)
	assert.Equal(t, "orders", first[1].ID)
	assert.Equal(t, "user", first[2].ID)
	assert.Equal(t, "r1", first[3].ID)
	assert.Equal(t, "r2", first[4].ID)
	for i, s := range first {
		assert.Equal(t, i, s.Position)
	}
}

func TestSections_IncludeNotes(t *testing.T) {
	m := sampleModel(t)
	_, err := m.ApplyAll([]changes.Mutation{
		changes.SetSectionNote{SectionID: "orders", Note: "Handles all order lifecycle."},
	}, time.Now(), aggregates.Limits{})
	require.NoError(t, err)

	sections := NewSpecificationRenderer().Sections(m)
	var found bool
	for _, s := range sections {
		if s.ID == "orders" {
			found = true
			assert.Contains(t, s.Content, "**Type**: system")
			assert.Contains(t, s.Content, "Handles all order lifecycle.")
		}
	}
	assert.True(t, found)
}

func TestRenderMarkdown(t *testing.T) {
	m := sampleModel(t)
	doc := NewSpecificationRenderer().RenderMarkdown(m, "FlowSketch Demo")

	assert.True(t, strings.HasPrefix(doc, "# FlowSketch Demo Specification"))
	assert.Contains(t, doc, "## Components")
	assert.Contains(t, doc, "### Order Service")
	assert.Contains(t, doc, "## Data Flow")
	assert.Contains(t, doc, "- Customer places order Order Service")
	assert.Contains(t, doc, "Version 1")
}

func TestRenderMermaid_Flowchart(t *testing.T) {
	m := sampleModel(t)
	out := NewMermaidRenderer().Render(m, DiagramFlowchart)

	lines := strings.Split(out, "\n")
	assert.Equal(t, "flowchart TD", lines[0])
	assert.Contains(t, out, "user((Customer))")
	assert.Contains(t, out, "orders{{Order Service}}")
	assert.Contains(t, out, "orderdb[(Order DB)]")
	assert.Contains(t, out, "user -->|places order| orders")
	assert.Contains(t, out, "orders -.-> orderdb")
}

func TestRenderMermaid_Sequence(t *testing.T) {
	m := sampleModel(t)
	out := NewMermaidRenderer().Render(m, DiagramSequence)

	assert.Contains(t, out, "sequenceDiagram")
	assert.Contains(t, out, "participant user as Customer")
	assert.Contains(t, out, "participant orders as Order Service")
	assert.NotContains(t, out, "participant orderdb", "data stores are not sequence participants")
	assert.Contains(t, out, "user->>+orders: places order")
	assert.Contains(t, out, "orders->>+orderdb: interaction")
}

func TestRenderMermaid_Deterministic(t *testing.T) {
	m := sampleModel(t)
	r := NewMermaidRenderer()
	assert.Equal(t, r.Render(m, DiagramERD), r.Render(m, DiagramERD))
	assert.Equal(t, r.Render(m, DiagramClass), r.Render(m, DiagramClass))
}

func TestParseDiagramType_Defaults(t *testing.T) {
	assert.Equal(t, DiagramFlowchart, ParseDiagramType(""))
	assert.Equal(t, DiagramFlowchart, ParseDiagramType("nonsense"))
	assert.Equal(t, DiagramERD, ParseDiagramType("erd"))
}
