package engine

import (
	"sort"
	"time"

	"flowsketch-backend/application/render"
	"flowsketch-backend/domain/changes"
	"flowsketch-backend/domain/core/aggregates"
)

// Projector derives representation-specific changes from a committed delta.
// Projection is deterministic: the same delta against the same model always
// yields the same change lists in the same order.
type Projector struct{}

// NewProjector creates a projector
func NewProjector() *Projector {
	return &Projector{}
}

// ToSpecChanges derives the spec-view changes for a committed delta.
// model is the post-commit snapshot. Position moves never appear here;
// node position is diagram-owned.
func (p *Projector) ToSpecChanges(model *aggregates.CanonicalModel, delta *changes.Delta, userID string, ts time.Time) []changes.SpecChange {
	var out []changes.SpecChange

	for _, id := range delta.EntitiesAdded {
		if e, ok := model.Entities[id]; ok {
			content := render.FormatEntitySection(e)
			out = append(out, changes.SpecChange{
				Op: changes.SectionAdd, SectionID: id, Content: &content, Timestamp: ts, UserID: userID,
			})
		}
	}
	for _, id := range delta.RelationshipsAdded {
		if r, ok := model.Relationships[id]; ok {
			content := render.FormatRelationshipSection(r)
			out = append(out, changes.SpecChange{
				Op: changes.SectionAdd, SectionID: id, Content: &content, Timestamp: ts, UserID: userID,
			})
		}
	}

	for _, id := range sortedKeys(delta.EntitiesUpdated) {
		if e, ok := model.Entities[id]; ok {
			content := render.FormatEntitySection(e)
			out = append(out, changes.SpecChange{
				Op: changes.SectionUpdate, SectionID: id, Content: &content, Timestamp: ts, UserID: userID,
			})
		}
	}
	for _, id := range sortedKeys(delta.RelationshipsUpdated) {
		if r, ok := model.Relationships[id]; ok {
			content := render.FormatRelationshipSection(r)
			out = append(out, changes.SpecChange{
				Op: changes.SectionUpdate, SectionID: id, Content: &content, Timestamp: ts, UserID: userID,
			})
		}
	}

	// Cascaded relationship sections go before their entity's section
	for _, id := range delta.RelationshipsDeleted {
		out = append(out, changes.SpecChange{
			Op: changes.SectionDelete, SectionID: id, Timestamp: ts, UserID: userID,
		})
	}
	for _, id := range delta.EntitiesDeleted {
		out = append(out, changes.SpecChange{
			Op: changes.SectionDelete, SectionID: id, Timestamp: ts, UserID: userID,
		})
	}

	for _, id := range delta.NotesUpdated {
		note := model.SectionNotes[id]
		content := note
		out = append(out, changes.SpecChange{
			Op: changes.ContentUpdate, SectionID: id, Content: &content, Timestamp: ts, UserID: userID,
		})
	}
	return out
}

// ToDiagramChanges derives the diagram-view changes for a committed delta.
// Section notes never appear here; free text is spec-owned.
func (p *Projector) ToDiagramChanges(model *aggregates.CanonicalModel, delta *changes.Delta, userID string, ts time.Time) []changes.DiagramChange {
	var out []changes.DiagramChange

	for _, id := range delta.EntitiesAdded {
		e, ok := model.Entities[id]
		if !ok {
			continue
		}
		name, typ := e.Name, string(e.Type)
		node := &changes.NodePayload{Name: &name, Type: &typ}
		if len(e.Properties) > 0 {
			node.Properties = copyMap(e.Properties)
		}
		if e.Position != nil {
			pos := *e.Position
			node.Position = &pos
		}
		out = append(out, changes.DiagramChange{
			Op: changes.NodeAdd, TargetID: id, Node: node, Timestamp: ts, UserID: userID,
		})
	}
	for _, id := range delta.RelationshipsAdded {
		r, ok := model.Relationships[id]
		if !ok {
			continue
		}
		typ, label := string(r.Type), r.Label
		edge := &changes.EdgePayload{SourceID: r.SourceID, TargetID: r.TargetID, Type: &typ, Label: &label}
		if len(r.Properties) > 0 {
			edge.Properties = copyMap(r.Properties)
		}
		out = append(out, changes.DiagramChange{
			Op: changes.EdgeAdd, TargetID: id, Edge: edge, Timestamp: ts, UserID: userID,
		})
	}

	for _, id := range sortedKeys(delta.EntitiesUpdated) {
		e, ok := model.Entities[id]
		if !ok {
			continue
		}
		name, typ := e.Name, string(e.Type)
		node := &changes.NodePayload{Name: &name, Type: &typ, Properties: copyMap(e.Properties)}
		out = append(out, changes.DiagramChange{
			Op: changes.NodeUpdate, TargetID: id, Node: node, Timestamp: ts, UserID: userID,
		})
	}
	for _, id := range sortedKeys(delta.RelationshipsUpdated) {
		r, ok := model.Relationships[id]
		if !ok {
			continue
		}
		typ, label := string(r.Type), r.Label
		edge := &changes.EdgePayload{Type: &typ, Label: &label, Properties: copyMap(r.Properties)}
		out = append(out, changes.DiagramChange{
			Op: changes.EdgeUpdate, TargetID: id, Edge: edge, Timestamp: ts, UserID: userID,
		})
	}

	for _, id := range delta.RelationshipsDeleted {
		out = append(out, changes.DiagramChange{
			Op: changes.EdgeDelete, TargetID: id, Timestamp: ts, UserID: userID,
		})
	}
	for _, id := range delta.EntitiesDeleted {
		out = append(out, changes.DiagramChange{
			Op: changes.NodeDelete, TargetID: id, Timestamp: ts, UserID: userID,
		})
	}

	for _, id := range delta.PositionsMoved {
		e, ok := model.Entities[id]
		if !ok || e.Position == nil {
			continue
		}
		pos := *e.Position
		out = append(out, changes.DiagramChange{
			Op: changes.NodeUpdate, TargetID: id, Node: &changes.NodePayload{Position: &pos}, Timestamp: ts, UserID: userID,
		})
	}
	return out
}

func sortedKeys(m map[string][]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func copyMap(m map[string]string) map[string]string {
	if len(m) == 0 {
		return nil
	}
	cp := make(map[string]string, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return cp
}
