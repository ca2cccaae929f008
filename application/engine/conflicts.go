package engine

import (
	"sync"
	"time"

	"flowsketch-backend/application/store"
	"flowsketch-backend/domain/changes"
	"flowsketch-backend/domain/core/entities"
)

// DefaultConflictTTL bounds how long an unresolved conflict stays pending
const DefaultConflictTTL = 5 * time.Minute

// incomingChange is the detector's view of a change racing committed work
type incomingChange struct {
	targetID  string
	isAdd     bool
	isUpdate  bool
	isDelete  bool
	fields    []string
	timestamp time.Time
	userID    string
}

func classifyIncoming(muts []changes.Mutation, ts time.Time, userID string) incomingChange {
	inc := incomingChange{timestamp: ts, userID: userID}
	for _, mut := range muts {
		inc.targetID = mut.Target()
		switch m := mut.(type) {
		case changes.CreateEntity, changes.CreateRelationship:
			inc.isAdd = true
		case changes.DeleteEntity, changes.DeleteRelationship:
			inc.isDelete = true
		case changes.UpdateEntity:
			inc.isUpdate = true
			inc.fields = append(inc.fields, m.Fields.Names()...)
		case changes.UpdateRelationship:
			inc.isUpdate = true
			inc.fields = append(inc.fields, m.Fields.Names()...)
		case changes.SetEntityPosition:
			inc.isUpdate = true
			inc.fields = append(inc.fields, "position")
		case changes.SetSectionNote:
			inc.isUpdate = true
			inc.fields = append(inc.fields, "note")
		}
	}
	return inc
}

// detection is the outcome of classifying a stale change against the
// committed window
type detection struct {
	kind changes.ConflictType
	// noop marks races that resolve silently (both sides deleted)
	noop bool
	// deletion is the commit that removed the incoming change's target,
	// kept for restore-and-reapply
	deletion *store.CommitRecord
	// lostFields are incoming update fields dropped by timestamp merge
	lostFields []string
	// wonFields are the incoming update fields that survive the merge
	wonFields []string
}

// Detector classifies what a stale writer raced against using the
// per-project committed window
type Detector struct{}

// NewDetector creates a detector
func NewDetector() *Detector {
	return &Detector{}
}

// Classify inspects the commits the incoming change did not see. A zero-kind
// detection with no noop flag means the change rebases cleanly.
func (d *Detector) Classify(records []store.CommitRecord, inc incomingChange) detection {
	var overlapping []store.CommitRecord
	for _, rec := range records {
		if rec.Delta.Touches(inc.targetID) {
			overlapping = append(overlapping, rec)
		}
	}
	if len(overlapping) == 0 {
		return detection{}
	}

	deleted := false
	var deletion *store.CommitRecord
	for i := range overlapping {
		if overlapping[i].Delta.Deleted(inc.targetID) {
			deleted = true
			deletion = &overlapping[i]
		}
	}

	switch {
	case inc.isDelete && deleted:
		return detection{kind: changes.ConflictDeleteVsDelete, noop: true}
	case inc.isDelete:
		// Deleting an element someone just edited destroys their work if it
		// commits silently, so it needs confirmation like the reverse race
		return detection{kind: changes.ConflictUpdateVsDelete}
	case inc.isAdd:
		return detection{kind: changes.ConflictStructuralDivergence}
	case deleted:
		return detection{kind: changes.ConflictUpdateVsDelete, deletion: deletion}
	}

	won, lost := mergeFields(inc, overlapping)
	return detection{kind: changes.ConflictConcurrentUpdate, wonFields: won, lostFields: lost}
}

// mergeFields resolves field-level overlap: a field the committed window did
// not touch passes through; an overlapping field goes to the later
// timestamp, ties to the lexicographically smaller user id.
func mergeFields(inc incomingChange, overlapping []store.CommitRecord) (won, lost []string) {
	for _, field := range inc.fields {
		var latest *store.CommitRecord
		for i := range overlapping {
			if recordTouchesField(&overlapping[i], inc.targetID, field) {
				latest = &overlapping[i]
			}
		}
		if latest == nil {
			won = append(won, field)
			continue
		}
		if inc.timestamp.After(latest.Timestamp) ||
			(inc.timestamp.Equal(latest.Timestamp) && inc.userID < latest.UserID) {
			won = append(won, field)
		} else {
			lost = append(lost, field)
		}
	}
	return won, lost
}

func recordTouchesField(rec *store.CommitRecord, targetID, field string) bool {
	if field == "position" {
		for _, id := range rec.Delta.PositionsMoved {
			if id == targetID {
				return true
			}
		}
		return false
	}
	if field == "note" {
		for _, id := range rec.Delta.NotesUpdated {
			if id == targetID {
				return true
			}
		}
		return false
	}
	for _, f := range rec.Delta.UpdatedFields(targetID) {
		if f == field {
			return true
		}
	}
	return false
}

// filterMutations drops the losing fields from the normalized mutations.
// Mutations reduced to nothing disappear.
func filterMutations(muts []changes.Mutation, lost []string) []changes.Mutation {
	if len(lost) == 0 {
		return muts
	}
	lostSet := make(map[string]bool, len(lost))
	for _, f := range lost {
		lostSet[f] = true
	}

	var out []changes.Mutation
	for _, mut := range muts {
		switch m := mut.(type) {
		case changes.UpdateEntity:
			if m.Fields.Name != nil && lostSet["name"] {
				m.Fields.Name = nil
			}
			if m.Fields.Type != nil && lostSet["type"] {
				m.Fields.Type = nil
			}
			for k := range m.Fields.Properties {
				if lostSet["properties."+k] {
					delete(m.Fields.Properties, k)
				}
			}
			if len(m.Fields.Names()) > 0 {
				out = append(out, m)
			}
		case changes.UpdateRelationship:
			if m.Fields.Type != nil && lostSet["type"] {
				m.Fields.Type = nil
			}
			if m.Fields.Label != nil && lostSet["label"] {
				m.Fields.Label = nil
			}
			for k := range m.Fields.Properties {
				if lostSet["properties."+k] {
					delete(m.Fields.Properties, k)
				}
			}
			if len(m.Fields.Names()) > 0 {
				out = append(out, m)
			}
		case changes.SetEntityPosition:
			if !lostSet["position"] {
				out = append(out, m)
			}
		case changes.SetSectionNote:
			if !lostSet["note"] {
				out = append(out, m)
			}
		default:
			out = append(out, mut)
		}
	}
	return out
}

// pendingConflict is an unresolved update-vs-delete or structural-divergence
// conflict awaiting a user decision
type pendingConflict struct {
	conflict             *changes.SyncConflict
	origin               changes.Origin
	userID               string
	muts                 []changes.Mutation
	restoreEntity        *entities.Entity
	restoreRelationship  *entities.Relationship
	restoreRelationships []*entities.Relationship
	expiresAt            time.Time
}

// conflictRegistry tracks pending conflicts per project. Conflicts expire
// after the TTL and are superseded when a later commit touches their target.
type conflictRegistry struct {
	mu        sync.Mutex
	ttlFn     func() time.Duration
	byID      map[string]*pendingConflict
	byProject map[string]map[string]*pendingConflict
}

func newConflictRegistry(ttlFn func() time.Duration) *conflictRegistry {
	if ttlFn == nil {
		ttlFn = func() time.Duration { return DefaultConflictTTL }
	}
	return &conflictRegistry{
		ttlFn:     ttlFn,
		byID:      make(map[string]*pendingConflict),
		byProject: make(map[string]map[string]*pendingConflict),
	}
}

func (r *conflictRegistry) add(p *pendingConflict) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p.expiresAt = time.Now().Add(r.ttlFn())
	r.byID[p.conflict.ID] = p
	projectID := p.conflict.ProjectID
	if r.byProject[projectID] == nil {
		r.byProject[projectID] = make(map[string]*pendingConflict)
	}
	r.byProject[projectID][p.conflict.ID] = p
}

// take removes and returns the pending conflict, or nil if unknown or
// expired. A project mismatch leaves the conflict parked for its real owner.
func (r *conflictRegistry) take(conflictID, projectID string) *pendingConflict {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.byID[conflictID]
	if !ok || p.conflict.ProjectID != projectID {
		return nil
	}
	r.removeLocked(p)
	if time.Now().After(p.expiresAt) {
		return nil
	}
	return p
}

// supersededBy removes pending conflicts whose target the delta touched and
// returns them so resolutions can be broadcast
func (r *conflictRegistry) supersededBy(projectID string, delta *changes.Delta) []*pendingConflict {
	r.mu.Lock()
	defer r.mu.Unlock()
	var superseded []*pendingConflict
	for _, p := range r.byProject[projectID] {
		if delta.Touches(p.conflict.TargetID) {
			superseded = append(superseded, p)
		}
	}
	for _, p := range superseded {
		r.removeLocked(p)
	}
	return superseded
}

// purgeExpired removes conflicts past their TTL
func (r *conflictRegistry) purgeExpired(now time.Time) []*pendingConflict {
	r.mu.Lock()
	defer r.mu.Unlock()
	var expired []*pendingConflict
	for _, p := range r.byID {
		if now.After(p.expiresAt) {
			expired = append(expired, p)
		}
	}
	for _, p := range expired {
		r.removeLocked(p)
	}
	return expired
}

func (r *conflictRegistry) removeLocked(p *pendingConflict) {
	delete(r.byID, p.conflict.ID)
	if m := r.byProject[p.conflict.ProjectID]; m != nil {
		delete(m, p.conflict.ID)
		if len(m) == 0 {
			delete(r.byProject, p.conflict.ProjectID)
		}
	}
}
