package render

import (
	"fmt"
	"strings"

	"flowsketch-backend/domain/core/aggregates"
)

// SpecificationRenderer derives the specification view from a canonical model
type SpecificationRenderer struct{}

// NewSpecificationRenderer creates a renderer
func NewSpecificationRenderer() *SpecificationRenderer {
	return &SpecificationRenderer{}
}

// Sections derives the ordered section list: entities first, then
// relationships, each in lexicographic id order so the projection is
// deterministic for a given model version
func (r *SpecificationRenderer) Sections(model *aggregates.CanonicalModel) []Section {
	sections := make([]Section, 0, len(model.Entities)+len(model.Relationships))
	pos := 0

	for _, id := range model.EntityIDs() {
		e := model.Entities[id]
		content := FormatEntitySection(e)
		if note, ok := model.SectionNotes[id]; ok {
			content += "\n\n" + note
		}
		sections = append(sections, Section{
			ID:       id,
			Title:    e.Name,
			Content:  content,
			Position: pos,
		})
		pos++
	}

	for _, id := range model.RelationshipIDs() {
		rel := model.Relationships[id]
		content := FormatRelationshipSection(rel)
		if note, ok := model.SectionNotes[id]; ok {
			content += "\n\n" + note
		}
		title := rel.Label
		if title == "" {
			title = fmt.Sprintf("%s %s %s", rel.SourceID, rel.Type, rel.TargetID)
		}
		sections = append(sections, Section{
			ID:       id,
			Title:    title,
			Content:  content,
			Position: pos,
		})
		pos++
	}
	return sections
}

// RenderMarkdown produces the full specification document
func (r *SpecificationRenderer) RenderMarkdown(model *aggregates.CanonicalModel, projectName string) string {
	var b strings.Builder

	title := projectName
	if title == "" {
		title = model.ProjectID
	}
	fmt.Fprintf(&b, "# %s Specification\n\n", title)
	fmt.Fprintf(&b, "Version %d\n\n", model.Version)

	if note, ok := model.SectionNotes["overview"]; ok {
		b.WriteString("## Overview\n\n")
		b.WriteString(note)
		b.WriteString("\n\n")
	}

	if len(model.Entities) > 0 {
		b.WriteString("## Components\n\n")
		for _, id := range model.EntityIDs() {
			e := model.Entities[id]
			fmt.Fprintf(&b, "### %s\n\n", e.Name)
			b.WriteString(FormatEntitySection(e))
			b.WriteString("\n")
			if note, ok := model.SectionNotes[id]; ok {
				b.WriteString("\n" + note + "\n")
			}
			b.WriteString("\n")
		}
	}

	if len(model.Relationships) > 0 {
		b.WriteString("## Data Flow\n\n")
		for _, id := range model.RelationshipIDs() {
			rel := model.Relationships[id]
			source, target := rel.SourceID, rel.TargetID
			if e, ok := model.Entities[source]; ok {
				source = e.Name
			}
			if e, ok := model.Entities[target]; ok {
				target = e.Name
			}
			verb := rel.Label
			if verb == "" {
				verb = string(rel.Type)
			}
			fmt.Fprintf(&b, "- %s %s %s\n", source, verb, target)
		}
		b.WriteString("\n")
	}

	if len(model.BusinessRules) > 0 {
		b.WriteString("## Business Rules\n\n")
		for i, rule := range model.BusinessRules {
			fmt.Fprintf(&b, "%d. %s", i+1, rule.Description)
			if rule.Category != "" {
				fmt.Fprintf(&b, " (%s)", rule.Category)
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	return strings.TrimRight(b.String(), "\n") + "\n"
}
