// Package render derives the two client-facing representations from the
// canonical model: spec sections with Markdown output and diagram views with
// Mermaid output. Rendering is pure; the same model always yields the same
// bytes.
package render

import (
	"fmt"
	"sort"
	"strings"

	"flowsketch-backend/domain/core/entities"
	"flowsketch-backend/domain/core/valueobjects"
)

// Section is one spec section derived from a canonical element. The section
// id equals the canonical element id, which is what lets edits made in the
// spec view map deterministically back onto the model.
type Section struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Content  string `json:"content"`
	Position int    `json:"position"`
}

// SectionFields is the structured content parsed out of a section body
type SectionFields struct {
	Relationship bool
	Name         string
	EntityType   string
	RelType      string
	SourceID     string
	TargetID     string
	Label        string
	Properties   map[string]string
}

// FormatEntitySection renders the structured body for an entity section
func FormatEntitySection(e *entities.Entity) string {
	var b strings.Builder
	fmt.Fprintf(&b, "**Type**: %s\n", e.Type)
	fmt.Fprintf(&b, "**Name**: %s\n", e.Name)
	if len(e.Properties) > 0 {
		b.WriteString("Properties:\n")
		keys := make([]string, 0, len(e.Properties))
		for k := range e.Properties {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "- %s: %s\n", k, e.Properties[k])
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// FormatRelationshipSection renders the structured body for a relationship section
func FormatRelationshipSection(r *entities.Relationship) string {
	var b strings.Builder
	fmt.Fprintf(&b, "**Relationship**: %s\n", r.Type)
	fmt.Fprintf(&b, "**Source**: %s\n", r.SourceID)
	fmt.Fprintf(&b, "**Target**: %s\n", r.TargetID)
	if r.Label != "" {
		fmt.Fprintf(&b, "**Label**: %s\n", r.Label)
	}
	if len(r.Properties) > 0 {
		b.WriteString("Properties:\n")
		keys := make([]string, 0, len(r.Properties))
		for k := range r.Properties {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "- %s: %s\n", k, r.Properties[k])
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// ParseSection attempts to read structured fields back out of a section
// body. Content that does not match the structured patterns returns
// structured=false; the caller keeps it as free text.
func ParseSection(content string) (fields SectionFields, structured bool) {
	fields.Properties = make(map[string]string)
	inProperties := false

	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case line == "":
			continue
		case line == "Properties:":
			inProperties = true
		case inProperties && strings.HasPrefix(line, "- "):
			kv := strings.SplitN(strings.TrimPrefix(line, "- "), ":", 2)
			if len(kv) == 2 {
				fields.Properties[strings.TrimSpace(kv[0])] = strings.TrimSpace(kv[1])
			}
		case strings.HasPrefix(line, "**"):
			inProperties = false
			key, value, ok := parseBoldField(line)
			if !ok {
				return SectionFields{}, false
			}
			switch key {
			case "Type":
				fields.EntityType = value
			case "Name":
				fields.Name = value
			case "Relationship":
				fields.Relationship = true
				fields.RelType = value
			case "Source":
				fields.SourceID = value
			case "Target":
				fields.TargetID = value
			case "Label":
				fields.Label = value
			default:
				return SectionFields{}, false
			}
		default:
			// Anything else makes the section free text
			return SectionFields{}, false
		}
	}

	if fields.Relationship {
		if fields.SourceID == "" || fields.TargetID == "" {
			return SectionFields{}, false
		}
		if _, err := valueobjects.ParseRelationshipType(fields.RelType); err != nil {
			return SectionFields{}, false
		}
		return fields, true
	}
	if fields.Name == "" || fields.EntityType == "" {
		return SectionFields{}, false
	}
	if _, err := valueobjects.ParseEntityType(fields.EntityType); err != nil {
		return SectionFields{}, false
	}
	return fields, true
}

func parseBoldField(line string) (key, value string, ok bool) {
	rest := strings.TrimPrefix(line, "**")
	idx := strings.Index(rest, "**:")
	if idx < 0 {
		return "", "", false
	}
	return rest[:idx], strings.TrimSpace(rest[idx+len("**:"):]), true
}
