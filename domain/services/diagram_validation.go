package services

import (
	"fmt"
	"sort"

	"flowsketch-backend/domain/core/aggregates"
)

// Validation issue codes
const (
	CodeOrphanedEdges          = "ORPHANED_EDGES"
	CodeEmptyLabels            = "EMPTY_LABELS"
	CodeDuplicateRelationships = "DUPLICATE_RELATIONSHIPS"
	CodeIsolatedNodes          = "ISOLATED_NODES"
)

// Severity of a validation issue
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// ValidationIssue is one finding against the derived diagram
type ValidationIssue struct {
	Code     string   `json:"code"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
	Targets  []string `json:"targets,omitempty"`
}

// ValidationResult aggregates all findings for one model
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Issues []ValidationIssue `json:"issues"`
}

// DiagramValidator inspects a canonical model for diagram-level problems.
// Issues never block commits; they are advisory output for clients.
type DiagramValidator struct{}

// NewDiagramValidator creates a validator
func NewDiagramValidator() *DiagramValidator {
	return &DiagramValidator{}
}

// Validate runs all checks against the model snapshot
func (v *DiagramValidator) Validate(model *aggregates.CanonicalModel) ValidationResult {
	result := ValidationResult{Valid: true, Issues: []ValidationIssue{}}

	if issue := v.checkOrphanedEdges(model); issue != nil {
		result.Issues = append(result.Issues, *issue)
		result.Valid = false
	}
	if issue := v.checkEmptyLabels(model); issue != nil {
		result.Issues = append(result.Issues, *issue)
	}
	if issue := v.checkDuplicateRelationships(model); issue != nil {
		result.Issues = append(result.Issues, *issue)
	}
	if issue := v.checkIsolatedNodes(model); issue != nil {
		result.Issues = append(result.Issues, *issue)
	}
	return result
}

func (v *DiagramValidator) checkOrphanedEdges(model *aggregates.CanonicalModel) *ValidationIssue {
	var orphaned []string
	for id, r := range model.Relationships {
		if _, ok := model.Entities[r.SourceID]; !ok {
			orphaned = append(orphaned, id)
			continue
		}
		if _, ok := model.Entities[r.TargetID]; !ok {
			orphaned = append(orphaned, id)
		}
	}
	if len(orphaned) == 0 {
		return nil
	}
	sort.Strings(orphaned)
	return &ValidationIssue{
		Code:     CodeOrphanedEdges,
		Severity: SeverityError,
		Message:  fmt.Sprintf("%d relationship(s) reference missing entities", len(orphaned)),
		Targets:  orphaned,
	}
}

func (v *DiagramValidator) checkEmptyLabels(model *aggregates.CanonicalModel) *ValidationIssue {
	var unnamed []string
	for id, e := range model.Entities {
		if e.Name == "" {
			unnamed = append(unnamed, id)
		}
	}
	if len(unnamed) == 0 {
		return nil
	}
	sort.Strings(unnamed)
	return &ValidationIssue{
		Code:     CodeEmptyLabels,
		Severity: SeverityWarning,
		Message:  fmt.Sprintf("%d entity(ies) have no name", len(unnamed)),
		Targets:  unnamed,
	}
}

func (v *DiagramValidator) checkDuplicateRelationships(model *aggregates.CanonicalModel) *ValidationIssue {
	seen := make(map[string][]string)
	for id, r := range model.Relationships {
		key := r.SourceID + "\x00" + r.TargetID + "\x00" + r.Type.String()
		seen[key] = append(seen[key], id)
	}
	var dupes []string
	for _, ids := range seen {
		if len(ids) > 1 {
			dupes = append(dupes, ids...)
		}
	}
	if len(dupes) == 0 {
		return nil
	}
	sort.Strings(dupes)
	return &ValidationIssue{
		Code:     CodeDuplicateRelationships,
		Severity: SeverityWarning,
		Message:  fmt.Sprintf("%d relationship(s) duplicate an existing source/target/type triple", len(dupes)),
		Targets:  dupes,
	}
}

func (v *DiagramValidator) checkIsolatedNodes(model *aggregates.CanonicalModel) *ValidationIssue {
	connected := make(map[string]bool, len(model.Entities))
	for _, r := range model.Relationships {
		connected[r.SourceID] = true
		connected[r.TargetID] = true
	}
	var isolated []string
	for id := range model.Entities {
		if !connected[id] {
			isolated = append(isolated, id)
		}
	}
	if len(isolated) == 0 || len(model.Entities) <= 1 {
		return nil
	}
	sort.Strings(isolated)
	return &ValidationIssue{
		Code:     CodeIsolatedNodes,
		Severity: SeverityInfo,
		Message:  fmt.Sprintf("%d entity(ies) have no relationships", len(isolated)),
		Targets:  isolated,
	}
}
