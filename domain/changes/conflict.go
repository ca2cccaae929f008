package changes

import (
	"time"

	"github.com/google/uuid"
)

// ConflictType classifies a detected sync conflict
type ConflictType string

const (
	// ConflictConcurrentUpdate is two edits to the same element with
	// non-overlapping (or timestamp-resolvable) fields; auto-merged
	ConflictConcurrentUpdate ConflictType = "concurrent-update"
	// ConflictUpdateVsDelete is an edit racing a delete of the same
	// element; requires explicit user confirmation
	ConflictUpdateVsDelete ConflictType = "update-vs-delete"
	// ConflictDeleteVsDelete is two deletes of the same element; a no-op
	ConflictDeleteVsDelete ConflictType = "delete-vs-delete"
	// ConflictStructuralDivergence is contradictory relationship structure
	// implied by the two representations; never auto-resolved
	ConflictStructuralDivergence ConflictType = "structural-divergence"
)

// SyncConflict is surfaced to all project participants when two concurrent
// changes with overlapping targets cannot be silently merged. It carries both
// competing changes so clients can render either side.
type SyncConflict struct {
	ID                  string         `json:"id"`
	ProjectID           string         `json:"projectId"`
	Type                ConflictType   `json:"type"`
	TargetID            string         `json:"targetId"`
	DiagramChange       *DiagramChange `json:"diagramChange,omitempty"`
	SpecChange          *SpecChange    `json:"specChange,omitempty"`
	SuggestedResolution string         `json:"suggestedResolution"`
	CreatedAt           time.Time      `json:"createdAt"`
}

// NewSyncConflict creates a conflict record with a generated id
func NewSyncConflict(projectID string, conflictType ConflictType, targetID string, diagram *DiagramChange, spec *SpecChange, suggestion string) *SyncConflict {
	return &SyncConflict{
		ID:                  uuid.New().String(),
		ProjectID:           projectID,
		Type:                conflictType,
		TargetID:            targetID,
		DiagramChange:       diagram,
		SpecChange:          spec,
		SuggestedResolution: suggestion,
		CreatedAt:           time.Now(),
	}
}

// ResolutionStrategy is how a conflict was settled
type ResolutionStrategy string

const (
	ResolutionAutoMerged      ResolutionStrategy = "auto-merged"
	ResolutionNoOp            ResolutionStrategy = "no-op"
	ResolutionRestoreReapply  ResolutionStrategy = "restore-and-reapply"
	ResolutionApplyIncoming   ResolutionStrategy = "apply-incoming"
	ResolutionDiscardIncoming ResolutionStrategy = "discard-incoming"
	ResolutionSuperseded      ResolutionStrategy = "superseded"
)

// Resolution echoes the resolver's decision to all participants
type Resolution struct {
	ConflictID   string             `json:"conflictId,omitempty"`
	ConflictType ConflictType       `json:"conflictType"`
	Strategy     ResolutionStrategy `json:"strategy"`
	TargetID     string             `json:"targetId"`
	Message      string             `json:"message,omitempty"`
	ResolvedBy   string             `json:"resolvedBy,omitempty"`
	Timestamp    time.Time          `json:"timestamp"`
}
