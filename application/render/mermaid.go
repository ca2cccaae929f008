package render

import (
	"fmt"
	"sort"
	"strings"

	"flowsketch-backend/domain/core/aggregates"
	"flowsketch-backend/domain/core/entities"
	"flowsketch-backend/domain/core/valueobjects"
)

// DiagramType selects the Mermaid output family
type DiagramType string

const (
	DiagramFlowchart DiagramType = "flowchart"
	DiagramERD       DiagramType = "erd"
	DiagramSequence  DiagramType = "sequence"
	DiagramClass     DiagramType = "class"
	DiagramProcess   DiagramType = "process"
)

// ParseDiagramType validates a raw diagram type, defaulting to flowchart
func ParseDiagramType(raw string) DiagramType {
	switch DiagramType(raw) {
	case DiagramERD, DiagramSequence, DiagramClass, DiagramProcess:
		return DiagramType(raw)
	default:
		return DiagramFlowchart
	}
}

var flowchartArrows = map[valueobjects.RelationshipType]string{
	valueobjects.RelationshipAssociation: "---",
	valueobjects.RelationshipComposition: "==>",
	valueobjects.RelationshipAggregation: "-.-",
	valueobjects.RelationshipInheritance: "---|>",
	valueobjects.RelationshipDependency:  "-.->",
	valueobjects.RelationshipFlow:        "-->",
	valueobjects.RelationshipSequence:    "-->",
}

var erdArrows = map[valueobjects.RelationshipType]string{
	valueobjects.RelationshipComposition: "||--o{",
	valueobjects.RelationshipAggregation: "}o--||",
	valueobjects.RelationshipDependency:  "}o..o{",
}

var classArrows = map[valueobjects.RelationshipType]string{
	valueobjects.RelationshipInheritance: "<|--",
	valueobjects.RelationshipComposition: "*--",
	valueobjects.RelationshipAggregation: "o--",
	valueobjects.RelationshipDependency:  "<--",
}

// MermaidRenderer derives Mermaid syntax from a canonical model
type MermaidRenderer struct{}

// NewMermaidRenderer creates a renderer
func NewMermaidRenderer() *MermaidRenderer {
	return &MermaidRenderer{}
}

// Render produces Mermaid syntax for the requested diagram type
func (r *MermaidRenderer) Render(model *aggregates.CanonicalModel, diagramType DiagramType) string {
	switch diagramType {
	case DiagramERD:
		return r.renderERD(model)
	case DiagramSequence:
		return r.renderSequence(model)
	case DiagramClass:
		return r.renderClass(model)
	case DiagramProcess:
		return r.renderProcess(model)
	default:
		return r.renderFlowchart(model)
	}
}

func nodeShape(e *entities.Entity) string {
	label := e.Name
	switch e.Type {
	case valueobjects.EntityTypeProcess:
		return fmt.Sprintf("(%s)", label)
	case valueobjects.EntityTypeActor:
		return fmt.Sprintf("((%s))", label)
	case valueobjects.EntityTypeData:
		return fmt.Sprintf("[(%s)]", label)
	case valueobjects.EntityTypeSystem:
		return fmt.Sprintf("{{%s}}", label)
	case valueobjects.EntityTypeEvent:
		return fmt.Sprintf("{%s}", label)
	default:
		return fmt.Sprintf("[%s]", label)
	}
}

func (r *MermaidRenderer) renderFlowchart(model *aggregates.CanonicalModel) string {
	lines := []string{"flowchart TD"}
	for _, id := range model.EntityIDs() {
		lines = append(lines, fmt.Sprintf("    %s%s", id, nodeShape(model.Entities[id])))
	}
	for _, id := range model.RelationshipIDs() {
		rel := model.Relationships[id]
		arrow := flowchartArrows[rel.Type]
		if arrow == "" {
			arrow = "-->"
		}
		if rel.Label != "" {
			lines = append(lines, fmt.Sprintf("    %s %s|%s| %s", rel.SourceID, arrow, rel.Label, rel.TargetID))
		} else {
			lines = append(lines, fmt.Sprintf("    %s %s %s", rel.SourceID, arrow, rel.TargetID))
		}
	}
	return strings.Join(lines, "\n")
}

func (r *MermaidRenderer) renderERD(model *aggregates.CanonicalModel) string {
	lines := []string{"erDiagram"}
	for _, id := range model.EntityIDs() {
		e := model.Entities[id]
		if e.Type != valueobjects.EntityTypeObject && e.Type != valueobjects.EntityTypeData {
			continue
		}
		lines = append(lines, fmt.Sprintf("    %s {", id))
		if len(e.Properties) > 0 {
			keys := make([]string, 0, len(e.Properties))
			for k := range e.Properties {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				lines = append(lines, fmt.Sprintf("        string %s", k))
			}
		} else {
			lines = append(lines, "        string id")
		}
		lines = append(lines, "    }")
	}
	for _, id := range model.RelationshipIDs() {
		rel := model.Relationships[id]
		arrow := erdArrows[rel.Type]
		if arrow == "" {
			arrow = "||--||"
		}
		lines = append(lines, fmt.Sprintf("    %s %s %s : %q", rel.SourceID, arrow, rel.TargetID, rel.Label))
	}
	return strings.Join(lines, "\n")
}

func (r *MermaidRenderer) renderSequence(model *aggregates.CanonicalModel) string {
	lines := []string{"sequenceDiagram"}
	for _, id := range model.EntityIDs() {
		e := model.Entities[id]
		if e.Type != valueobjects.EntityTypeActor && e.Type != valueobjects.EntityTypeSystem {
			continue
		}
		lines = append(lines, fmt.Sprintf("    participant %s as %s", id, e.Name))
	}
	for _, id := range model.RelationshipIDs() {
		rel := model.Relationships[id]
		label := rel.Label
		if label == "" {
			label = "interaction"
		}
		lines = append(lines, fmt.Sprintf("    %s->>+%s: %s", rel.SourceID, rel.TargetID, label))
	}
	return strings.Join(lines, "\n")
}

func (r *MermaidRenderer) renderClass(model *aggregates.CanonicalModel) string {
	lines := []string{"classDiagram"}
	for _, id := range model.EntityIDs() {
		e := model.Entities[id]
		lines = append(lines, fmt.Sprintf("    class %s {", id))
		keys := make([]string, 0, len(e.Properties))
		for k := range e.Properties {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			lines = append(lines, fmt.Sprintf("        +%s : %s", k, e.Properties[k]))
		}
		lines = append(lines, "    }")
	}
	for _, id := range model.RelationshipIDs() {
		rel := model.Relationships[id]
		arrow := classArrows[rel.Type]
		if arrow == "" {
			arrow = "--"
		}
		lines = append(lines, fmt.Sprintf("    %s %s %s", rel.SourceID, arrow, rel.TargetID))
	}
	return strings.Join(lines, "\n")
}

func (r *MermaidRenderer) renderProcess(model *aggregates.CanonicalModel) string {
	lines := []string{"flowchart LR"}
	for _, id := range model.EntityIDs() {
		e := model.Entities[id]
		if e.Type == valueobjects.EntityTypeData {
			lines = append(lines, fmt.Sprintf("    %s[(%s)]", id, e.Name))
		} else {
			lines = append(lines, fmt.Sprintf("    %s[%s]", id, e.Name))
		}
	}
	for _, id := range model.RelationshipIDs() {
		rel := model.Relationships[id]
		if rel.Label != "" {
			lines = append(lines, fmt.Sprintf("    %s --> |%s| %s", rel.SourceID, rel.Label, rel.TargetID))
		} else {
			lines = append(lines, fmt.Sprintf("    %s --> %s", rel.SourceID, rel.TargetID))
		}
	}
	return strings.Join(lines, "\n")
}
