package engine

import (
	"context"
	"time"

	"go.uber.org/zap"

	"flowsketch-backend/application/ports"
	"flowsketch-backend/application/store"
	"flowsketch-backend/domain/changes"
	"flowsketch-backend/domain/core/aggregates"
	"flowsketch-backend/domain/events"
	pkgerrors "flowsketch-backend/pkg/errors"
	"flowsketch-backend/pkg/observability"
)

// Status is the synchronous verdict for one submitted change
type Status string

const (
	// StatusCommitted means the change (possibly merged) is part of the model
	StatusCommitted Status = "committed"
	// StatusConflicted means the change is parked pending a user decision
	StatusConflicted Status = "conflicted"
	// StatusRejected means the change was refused and had no effect
	StatusRejected Status = "rejected"
)

// Outcome is returned to the submitting client before anything is broadcast.
// Exactly one status applies per submitted change.
type Outcome struct {
	Status     Status                `json:"status"`
	ProjectID  string                `json:"projectId"`
	Version    int64                 `json:"version"`
	Delta      *changes.Delta        `json:"delta,omitempty"`
	Conflict   *changes.SyncConflict `json:"conflict,omitempty"`
	Resolution *changes.Resolution   `json:"resolution,omitempty"`
	Err        error                 `json:"-"`
}

// Engine drives the synchronization pipeline. One Submit call runs entirely
// inside the project's store pipeline, so the version it validates against
// cannot move underneath it.
type Engine struct {
	store      *store.ModelStore
	normalizer *Normalizer
	projector  *Projector
	detector   *Detector
	registry   *conflictRegistry
	dispatcher ports.Dispatcher
	publisher  ports.EventPublisher
	metrics    *observability.Metrics
	log        *zap.Logger
}

// NewEngine wires the pipeline together. metrics may be nil in tests.
func NewEngine(
	modelStore *store.ModelStore,
	dispatcher ports.Dispatcher,
	publisher ports.EventPublisher,
	conflictTTL func() time.Duration,
	metrics *observability.Metrics,
	log *zap.Logger,
) *Engine {
	return &Engine{
		store:      modelStore,
		normalizer: NewNormalizer(),
		projector:  NewProjector(),
		detector:   NewDetector(),
		registry:   newConflictRegistry(conflictTTL),
		dispatcher: dispatcher,
		publisher:  publisher,
		metrics:    metrics,
		log:        log,
	}
}

// Run expires stale pending conflicts until the context is cancelled
func (e *Engine) Run(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			for _, p := range e.registry.purgeExpired(now) {
				e.log.Info("pending conflict expired",
					zap.String("project_id", p.conflict.ProjectID),
					zap.String("conflict_id", p.conflict.ID))
				e.dispatcher.DispatchResolution(ctx, p.conflict.ProjectID, &changes.Resolution{
					ConflictID:   p.conflict.ID,
					ConflictType: p.conflict.Type,
					Strategy:     changes.ResolutionSuperseded,
					TargetID:     p.conflict.TargetID,
					Message:      "conflict expired unresolved",
					Timestamp:    now,
				})
			}
		}
	}
}

// SubmitDiagram handles one diagram-origin change
func (e *Engine) SubmitDiagram(ctx context.Context, projectID string, expectedVersion int64, ch *changes.DiagramChange) Outcome {
	if err := ch.Validate(); err != nil {
		e.observeSubmitted(changes.OriginDiagram)
		e.observeOutcome(StatusRejected)
		return Outcome{Status: StatusRejected, ProjectID: projectID, Err: err}
	}
	return e.submit(ctx, projectID, expectedVersion, submission{
		origin:    changes.OriginDiagram,
		userID:    ch.UserID,
		timestamp: ch.Timestamp,
		targetID:  ch.TargetID,
		isAdd:     ch.Op == changes.NodeAdd || ch.Op == changes.EdgeAdd,
		isDelete:  ch.Op == changes.NodeDelete || ch.Op == changes.EdgeDelete,
		diagram:   ch,
		normalize: func(model *aggregates.CanonicalModel) ([]changes.Mutation, error) {
			return e.normalizer.NormalizeDiagram(model, ch)
		},
	})
}

// SubmitSpec handles one spec-origin change
func (e *Engine) SubmitSpec(ctx context.Context, projectID string, expectedVersion int64, ch *changes.SpecChange) Outcome {
	if err := ch.Validate(); err != nil {
		e.observeSubmitted(changes.OriginSpec)
		e.observeOutcome(StatusRejected)
		return Outcome{Status: StatusRejected, ProjectID: projectID, Err: err}
	}
	return e.submit(ctx, projectID, expectedVersion, submission{
		origin:    changes.OriginSpec,
		userID:    ch.UserID,
		timestamp: ch.Timestamp,
		targetID:  ch.SectionID,
		isAdd:     ch.Op == changes.SectionAdd,
		isDelete:  ch.Op == changes.SectionDelete,
		spec:      ch,
		normalize: func(model *aggregates.CanonicalModel) ([]changes.Mutation, error) {
			return e.normalizer.NormalizeSpec(model, ch)
		},
	})
}

type submission struct {
	origin    changes.Origin
	userID    string
	timestamp time.Time
	targetID  string
	isAdd     bool
	isDelete  bool
	diagram   *changes.DiagramChange
	spec      *changes.SpecChange
	normalize func(*aggregates.CanonicalModel) ([]changes.Mutation, error)
}

func (e *Engine) submit(ctx context.Context, projectID string, expectedVersion int64, sub submission) Outcome {
	e.observeSubmitted(sub.origin)
	start := time.Now()

	var outcome Outcome
	err := e.store.Update(ctx, projectID, func(tx *store.Tx) error {
		outcome = e.handle(ctx, tx, projectID, expectedVersion, sub)
		return nil
	})
	if err != nil {
		outcome = Outcome{Status: StatusRejected, ProjectID: projectID, Err: err}
	}

	e.observeOutcome(outcome.Status)
	if outcome.Status == StatusCommitted && e.metrics != nil {
		e.metrics.CommitDuration.Observe(time.Since(start).Seconds())
	}
	return outcome
}

func (e *Engine) observeSubmitted(origin changes.Origin) {
	if e.metrics != nil {
		e.metrics.ChangesSubmitted.WithLabelValues(string(origin)).Inc()
	}
}

func (e *Engine) observeOutcome(status Status) {
	if e.metrics != nil {
		e.metrics.ChangeOutcomes.WithLabelValues(string(status)).Inc()
	}
}

func (e *Engine) handle(ctx context.Context, tx *store.Tx, projectID string, expectedVersion int64, sub submission) Outcome {
	current := tx.Version()
	if expectedVersion > current {
		return e.reject(projectID, current, pkgerrors.NewVersionConflictError(projectID, expectedVersion, current))
	}

	if expectedVersion < current {
		records, ok := tx.WindowSince(expectedVersion)
		if !ok {
			// The missed commits fell out of the window; the client must refetch
			return e.reject(projectID, current, pkgerrors.NewVersionConflictError(projectID, expectedVersion, current).
				WithCode("WINDOW_EXCEEDED"))
		}
		if det := e.detectStale(tx, records, sub); det != nil {
			return *det
		}
	}

	muts, err := sub.normalize(tx.Model())
	if err != nil {
		return e.reject(projectID, current, err)
	}

	return e.commitAndBroadcast(ctx, tx, projectID, muts, sub, nil)
}

// detectStale classifies a stale submission against the committed window.
// A nil return means the change rebases onto the current version cleanly.
func (e *Engine) detectStale(tx *store.Tx, records []store.CommitRecord, sub submission) *Outcome {
	inc := incomingChange{
		targetID:  sub.targetID,
		isAdd:     sub.isAdd,
		isDelete:  sub.isDelete,
		isUpdate:  !sub.isAdd && !sub.isDelete,
		timestamp: sub.timestamp,
		userID:    sub.userID,
	}

	// Update field names require normalization, which in the deleted case
	// must run against a model that still has the target. Classify first.
	det := e.detector.Classify(records, inc)
	switch det.kind {
	case "":
		return nil

	case changes.ConflictDeleteVsDelete:
		resolution := &changes.Resolution{
			ConflictType: changes.ConflictDeleteVsDelete,
			Strategy:     changes.ResolutionNoOp,
			TargetID:     sub.targetID,
			Message:      "element was already deleted",
			Timestamp:    time.Now(),
		}
		e.dispatcher.DispatchResolution(context.Background(), tx.Model().ProjectID, resolution)
		return &Outcome{
			Status: StatusCommitted, ProjectID: tx.Model().ProjectID,
			Version: tx.Version(), Resolution: resolution,
		}

	case changes.ConflictUpdateVsDelete:
		return e.parkUpdateVsDelete(tx, det, sub)

	case changes.ConflictStructuralDivergence:
		return e.parkStructuralDivergence(tx, sub)

	case changes.ConflictConcurrentUpdate:
		return e.autoMerge(tx, records, sub, inc)
	}
	return nil
}

func (e *Engine) parkUpdateVsDelete(tx *store.Tx, det detection, sub submission) *Outcome {
	projectID := tx.Model().ProjectID

	// Normalize against a view where the deleted element still exists so the
	// reapply mutations are available once the user confirms the restore
	restored := tx.Model().Clone()
	p := &pendingConflict{origin: sub.origin, userID: sub.userID}
	if det.deletion != nil {
		if ent, ok := det.deletion.DeletedEntities[sub.targetID]; ok {
			p.restoreEntity = ent.Clone()
			restored.Entities[ent.ID] = ent.Clone()
			for _, rel := range det.deletion.DeletedRelationships {
				p.restoreRelationships = append(p.restoreRelationships, rel.Clone())
			}
		}
		if rel, ok := det.deletion.DeletedRelationships[sub.targetID]; ok && p.restoreEntity == nil {
			p.restoreRelationship = rel.Clone()
			restored.Relationships[rel.ID] = rel.Clone()
		}
	}

	muts, err := sub.normalize(restored)
	if err != nil {
		return &Outcome{Status: StatusRejected, ProjectID: projectID, Version: tx.Version(), Err: err}
	}
	p.muts = muts

	// When the incoming side is the delete there is nothing to restore;
	// accepting simply applies it over the concurrent edit
	suggestion := changes.ResolutionRestoreReapply
	if p.restoreEntity == nil && p.restoreRelationship == nil {
		suggestion = changes.ResolutionApplyIncoming
	}
	conflict := changes.NewSyncConflict(projectID, changes.ConflictUpdateVsDelete, sub.targetID,
		sub.diagram, sub.spec, string(suggestion))
	p.conflict = conflict
	e.registry.add(p)

	e.log.Info("update-vs-delete conflict parked",
		zap.String("project_id", projectID),
		zap.String("conflict_id", conflict.ID),
		zap.String("target_id", sub.targetID))
	e.dispatcher.DispatchConflict(context.Background(), projectID, conflict)
	return &Outcome{Status: StatusConflicted, ProjectID: projectID, Version: tx.Version(), Conflict: conflict}
}

func (e *Engine) parkStructuralDivergence(tx *store.Tx, sub submission) *Outcome {
	projectID := tx.Model().ProjectID

	// The incoming add's mutations come from a fresh model view so the
	// existing element does not shadow them
	muts, err := sub.normalize(aggregates.NewCanonicalModel(projectID))
	if err != nil {
		return &Outcome{Status: StatusRejected, ProjectID: projectID, Version: tx.Version(), Err: err}
	}

	conflict := changes.NewSyncConflict(projectID, changes.ConflictStructuralDivergence, sub.targetID,
		sub.diagram, sub.spec, string(changes.ResolutionDiscardIncoming))
	p := &pendingConflict{conflict: conflict, origin: sub.origin, userID: sub.userID, muts: muts}
	e.registry.add(p)

	e.log.Warn("structural divergence surfaced",
		zap.String("project_id", projectID),
		zap.String("conflict_id", conflict.ID),
		zap.String("target_id", sub.targetID))
	e.dispatcher.DispatchConflict(context.Background(), projectID, conflict)
	return &Outcome{Status: StatusConflicted, ProjectID: projectID, Version: tx.Version(), Conflict: conflict}
}

func (e *Engine) autoMerge(tx *store.Tx, records []store.CommitRecord, sub submission, inc incomingChange) *Outcome {
	projectID := tx.Model().ProjectID

	muts, err := sub.normalize(tx.Model())
	if err != nil {
		return &Outcome{Status: StatusRejected, ProjectID: projectID, Version: tx.Version(), Err: err}
	}

	inc = classifyIncoming(muts, sub.timestamp, sub.userID)
	inc.targetID = sub.targetID
	det := e.detector.Classify(records, inc)

	merged := filterMutations(muts, det.lostFields)
	resolution := &changes.Resolution{
		ConflictType: changes.ConflictConcurrentUpdate,
		TargetID:     sub.targetID,
		ResolvedBy:   sub.userID,
		Timestamp:    time.Now(),
	}

	if len(merged) == 0 {
		resolution.Strategy = changes.ResolutionDiscardIncoming
		resolution.Message = "all fields were superseded by later edits"
		e.dispatcher.DispatchResolution(context.Background(), projectID, resolution)
		return &Outcome{Status: StatusCommitted, ProjectID: projectID, Version: tx.Version(), Resolution: resolution}
	}

	resolution.Strategy = changes.ResolutionAutoMerged
	resolution.Message = "concurrent edits merged field by field"
	outcome := e.commitAndBroadcast(context.Background(), tx, projectID, merged, sub, resolution)
	return &outcome
}

func (e *Engine) commitAndBroadcast(ctx context.Context, tx *store.Tx, projectID string, muts []changes.Mutation, sub submission, resolution *changes.Resolution) Outcome {
	result, err := tx.Commit(muts, store.Attribution{
		Origin:        sub.origin,
		UserID:        sub.userID,
		Timestamp:     sub.timestamp,
		DiagramChange: sub.diagram,
		SpecChange:    sub.spec,
	})
	if err != nil {
		return e.reject(projectID, tx.Version(), err)
	}

	e.broadcast(ctx, projectID, result, sub.origin, sub.userID, sub.diagram, sub.spec)
	if resolution != nil {
		e.dispatcher.DispatchResolution(ctx, projectID, resolution)
	}

	return Outcome{
		Status:     StatusCommitted,
		ProjectID:  projectID,
		Version:    result.Version,
		Delta:      result.Delta,
		Resolution: resolution,
	}
}

// broadcast projects the committed delta into both representations and fans
// it out, then settles any pending conflicts the commit superseded
func (e *Engine) broadcast(ctx context.Context, projectID string, result *store.CommitResult, origin changes.Origin, userID string, diagram *changes.DiagramChange, spec *changes.SpecChange) {
	ts := time.Now()

	event := ports.BroadcastEvent{
		ProjectID:   projectID,
		Version:     result.Version,
		Origin:      origin,
		Delta:       result.Delta,
		InitiatedBy: userID,
		Timestamp:   ts,
	}
	switch origin {
	case changes.OriginDiagram:
		if diagram != nil {
			event.DiagramChanges = []changes.DiagramChange{*diagram}
		} else {
			event.DiagramChanges = e.projector.ToDiagramChanges(result.Next, result.Delta, userID, ts)
		}
		event.SpecChanges = e.projector.ToSpecChanges(result.Next, result.Delta, userID, ts)
	case changes.OriginSpec:
		if spec != nil {
			event.SpecChanges = []changes.SpecChange{*spec}
		} else {
			event.SpecChanges = e.projector.ToSpecChanges(result.Next, result.Delta, userID, ts)
		}
		event.DiagramChanges = e.projector.ToDiagramChanges(result.Next, result.Delta, userID, ts)
	}

	e.dispatcher.DispatchCommit(ctx, event)
	if e.publisher != nil && len(result.Events) > 0 {
		e.publisher.Publish(ctx, result.Events)
	}

	for _, p := range e.registry.supersededBy(projectID, result.Delta) {
		e.log.Info("pending conflict superseded",
			zap.String("project_id", projectID),
			zap.String("conflict_id", p.conflict.ID))
		e.dispatcher.DispatchResolution(ctx, projectID, &changes.Resolution{
			ConflictID:   p.conflict.ID,
			ConflictType: p.conflict.Type,
			Strategy:     changes.ResolutionSuperseded,
			TargetID:     p.conflict.TargetID,
			Message:      "a later commit changed the conflicted element",
			Timestamp:    ts,
		})
	}
}

func (e *Engine) reject(projectID string, version int64, err error) Outcome {
	e.log.Debug("change rejected",
		zap.String("project_id", projectID),
		zap.Int64("version", version),
		zap.Error(err))
	return Outcome{Status: StatusRejected, ProjectID: projectID, Version: version, Err: err}
}

// ResolveConflict settles a parked conflict. accept applies the incoming
// side (restore-and-reapply when a deleted element must come back, plain
// apply otherwise); decline discards it.
func (e *Engine) ResolveConflict(ctx context.Context, projectID, conflictID string, accept bool, userID string) Outcome {
	p := e.registry.take(conflictID, projectID)
	if p == nil {
		return Outcome{Status: StatusRejected, ProjectID: projectID,
			Err: pkgerrors.NewNotFoundError("conflict " + conflictID)}
	}

	if !accept {
		resolution := &changes.Resolution{
			ConflictID:   p.conflict.ID,
			ConflictType: p.conflict.Type,
			Strategy:     changes.ResolutionDiscardIncoming,
			TargetID:     p.conflict.TargetID,
			ResolvedBy:   userID,
			Timestamp:    time.Now(),
		}
		e.dispatcher.DispatchResolution(ctx, projectID, resolution)
		return Outcome{Status: StatusCommitted, ProjectID: projectID, Resolution: resolution}
	}

	var outcome Outcome
	err := e.store.Update(ctx, projectID, func(tx *store.Tx) error {
		muts := e.resolutionMutations(tx, p)
		strategy := changes.ResolutionApplyIncoming
		if p.restoreEntity != nil || p.restoreRelationship != nil {
			strategy = changes.ResolutionRestoreReapply
		}
		resolution := &changes.Resolution{
			ConflictID:   p.conflict.ID,
			ConflictType: p.conflict.Type,
			Strategy:     strategy,
			TargetID:     p.conflict.TargetID,
			ResolvedBy:   userID,
			Timestamp:    time.Now(),
		}
		outcome = e.commitAndBroadcast(ctx, tx, projectID, muts, submission{
			origin: p.origin, userID: userID, timestamp: time.Now(),
		}, resolution)
		return nil
	})
	if err != nil {
		return Outcome{Status: StatusRejected, ProjectID: projectID, Err: err}
	}
	return outcome
}

// resolutionMutations builds the commit that applies the incoming side of a
// parked conflict against the current model
func (e *Engine) resolutionMutations(tx *store.Tx, p *pendingConflict) []changes.Mutation {
	var muts []changes.Mutation
	model := tx.Model()

	switch p.conflict.Type {
	case changes.ConflictUpdateVsDelete:
		if p.restoreEntity != nil {
			if _, exists := model.Entities[p.restoreEntity.ID]; !exists {
				muts = append(muts, changes.CreateEntity{Entity: p.restoreEntity.Clone()})
				for _, rel := range p.restoreRelationships {
					if _, srcOK := model.Entities[rel.SourceID]; rel.SourceID != p.restoreEntity.ID && !srcOK {
						continue
					}
					if _, tgtOK := model.Entities[rel.TargetID]; rel.TargetID != p.restoreEntity.ID && !tgtOK {
						continue
					}
					muts = append(muts, changes.CreateRelationship{Relationship: rel.Clone()})
				}
			}
		}
		if p.restoreRelationship != nil {
			if _, exists := model.Relationships[p.restoreRelationship.ID]; !exists {
				muts = append(muts, changes.CreateRelationship{Relationship: p.restoreRelationship.Clone()})
			}
		}
		muts = append(muts, p.muts...)

	case changes.ConflictStructuralDivergence:
		if _, exists := model.Entities[p.conflict.TargetID]; exists {
			muts = append(muts, changes.DeleteEntity{ID: p.conflict.TargetID})
		} else if _, exists := model.Relationships[p.conflict.TargetID]; exists {
			muts = append(muts, changes.DeleteRelationship{ID: p.conflict.TargetID})
		}
		muts = append(muts, p.muts...)

	default:
		muts = p.muts
	}
	return muts
}

// Seed replaces or extends a project's model from parsed requirement text.
// With rebuild the model is reset to version 0 before seeding.
func (e *Engine) Seed(ctx context.Context, projectID string, muts []changes.Mutation, rebuild bool, userID string) (Outcome, error) {
	if rebuild {
		if err := e.store.Reset(ctx, projectID); err != nil {
			return Outcome{}, err
		}
	}
	if len(muts) == 0 {
		return Outcome{Status: StatusRejected, ProjectID: projectID,
			Err: pkgerrors.NewValidationError("parsed model is empty")}, nil
	}

	var outcome Outcome
	err := e.store.Update(ctx, projectID, func(tx *store.Tx) error {
		outcome = e.commitAndBroadcast(ctx, tx, projectID, muts, submission{
			origin: changes.OriginSpec, userID: userID, timestamp: time.Now(),
		}, nil)
		return nil
	})
	if err != nil {
		return Outcome{}, err
	}

	if outcome.Status == StatusCommitted && e.publisher != nil {
		entityCount := len(outcome.Delta.EntitiesAdded)
		relCount := len(outcome.Delta.RelationshipsAdded)
		e.publisher.Publish(ctx, []events.DomainEvent{
			events.NewModelSeeded(projectID, entityCount, relCount, rebuild, time.Now()),
		})
	}
	return outcome, nil
}
