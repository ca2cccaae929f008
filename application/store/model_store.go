package store

import (
	"context"
	"sync"
	"time"

	"flowsketch-backend/application/ports"
	"flowsketch-backend/domain/changes"
	"flowsketch-backend/domain/core/aggregates"
	"flowsketch-backend/domain/core/entities"
	"flowsketch-backend/domain/events"
	pkgerrors "flowsketch-backend/pkg/errors"
)

// DefaultWindowSize is how many committed batches are retained per project
// for conflict classification
const DefaultWindowSize = 100

// Attribution records who and what produced a commit
type Attribution struct {
	Origin        changes.Origin
	UserID        string
	Timestamp     time.Time
	DiagramChange *changes.DiagramChange
	SpecChange    *changes.SpecChange
}

// CommitRecord is one retained committed batch. The conflict detector walks
// these to classify what a stale writer raced against. Deleted elements are
// snapshotted so an update-vs-delete resolution can restore them.
type CommitRecord struct {
	Version              int64
	Origin               changes.Origin
	UserID               string
	Timestamp            time.Time
	Delta                *changes.Delta
	DiagramChange        *changes.DiagramChange
	SpecChange           *changes.SpecChange
	DeletedEntities      map[string]*entities.Entity
	DeletedRelationships map[string]*entities.Relationship
}

// CommitResult reports the effect of one committed batch
type CommitResult struct {
	Prior   *aggregates.CanonicalModel
	Next    *aggregates.CanonicalModel
	Delta   *changes.Delta
	Version int64
	Events  []events.DomainEvent
}

// ModelStore owns all canonical models. Commits to one project are
// serialized through a per-project pipeline; different projects proceed in
// parallel. All models handed out are clones.
type ModelStore struct {
	repo     ports.ModelRepository
	limitsFn func() aggregates.Limits

	mu         sync.Mutex
	projects   map[string]*projectPipeline
	windowSize int
}

type projectPipeline struct {
	mu     sync.Mutex
	window []CommitRecord
}

// Option configures the store
type Option func(*ModelStore)

// WithWindowSize overrides the retained-commit window length
func WithWindowSize(n int) Option {
	return func(s *ModelStore) {
		if n > 0 {
			s.windowSize = n
		}
	}
}

// WithLimits supplies the model growth limits, read per commit so dynamic
// config changes take effect without restart
func WithLimits(fn func() aggregates.Limits) Option {
	return func(s *ModelStore) {
		s.limitsFn = fn
	}
}

// NewModelStore creates a store over the given repository
func NewModelStore(repo ports.ModelRepository, opts ...Option) *ModelStore {
	s := &ModelStore{
		repo:       repo,
		limitsFn:   func() aggregates.Limits { return aggregates.Limits{} },
		projects:   make(map[string]*projectPipeline),
		windowSize: DefaultWindowSize,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *ModelStore) pipeline(projectID string) *projectPipeline {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[projectID]
	if !ok {
		p = &projectPipeline{}
		s.projects[projectID] = p
	}
	return p
}

// Tx is the view of one project handed to an Update callback. It is only
// valid for the duration of the callback.
type Tx struct {
	ctx      context.Context
	store    *ModelStore
	pipeline *projectPipeline
	model    *aggregates.CanonicalModel
	results  []*CommitResult
}

// Model returns the current model. The callback may read it freely; all
// writes must go through Commit.
func (tx *Tx) Model() *aggregates.CanonicalModel {
	return tx.model
}

// Version returns the current model version
func (tx *Tx) Version() int64 {
	return tx.model.Version
}

// WindowSince returns the retained commits with version strictly greater
// than the given version, oldest first. An incomplete window (the oldest
// retained commit is later than version+1) returns ok=false.
func (tx *Tx) WindowSince(version int64) (records []CommitRecord, ok bool) {
	for _, rec := range tx.pipeline.window {
		if rec.Version > version {
			records = append(records, rec)
		}
	}
	if len(records) == 0 {
		return nil, version >= tx.model.Version
	}
	return records, records[0].Version == version+1
}

// Commit applies one mutation batch to the project. On success the model
// version advances by exactly one and the batch is recorded in the window.
// On failure the model is untouched.
func (tx *Tx) Commit(muts []changes.Mutation, attr Attribution) (*CommitResult, error) {
	prior := tx.model
	next := prior.Clone()

	now := attr.Timestamp
	if now.IsZero() {
		now = time.Now()
	}
	delta, err := next.ApplyAll(muts, now, tx.store.limitsFn())
	if err != nil {
		return nil, err
	}

	if err := tx.store.repo.Save(tx.ctx, next); err != nil {
		return nil, pkgerrors.Wrap(err, "persisting model")
	}

	committed := next.GetUncommittedEvents()
	next.MarkEventsAsCommitted()

	rec := CommitRecord{
		Version:       next.Version,
		Origin:        attr.Origin,
		UserID:        attr.UserID,
		Timestamp:     now,
		Delta:         delta,
		DiagramChange: attr.DiagramChange,
		SpecChange:    attr.SpecChange,
	}
	for _, id := range delta.EntitiesDeleted {
		if e, ok := prior.Entities[id]; ok {
			if rec.DeletedEntities == nil {
				rec.DeletedEntities = make(map[string]*entities.Entity)
			}
			rec.DeletedEntities[id] = e.Clone()
		}
	}
	for _, id := range delta.RelationshipsDeleted {
		if r, ok := prior.Relationships[id]; ok {
			if rec.DeletedRelationships == nil {
				rec.DeletedRelationships = make(map[string]*entities.Relationship)
			}
			rec.DeletedRelationships[id] = r.Clone()
		}
	}
	tx.pipeline.window = append(tx.pipeline.window, rec)
	if len(tx.pipeline.window) > tx.store.windowSize {
		tx.pipeline.window = tx.pipeline.window[len(tx.pipeline.window)-tx.store.windowSize:]
	}

	tx.model = next
	result := &CommitResult{
		Prior:   prior,
		Next:    next.Clone(),
		Delta:   delta,
		Version: next.Version,
		Events:  committed,
	}
	tx.results = append(tx.results, result)
	return result, nil
}

// Update runs fn under the project's pipeline lock. No other writer touches
// the project while fn runs, so version checks made inside fn hold for any
// Commit it issues.
func (s *ModelStore) Update(ctx context.Context, projectID string, fn func(tx *Tx) error) error {
	p := s.pipeline(projectID)
	p.mu.Lock()
	defer p.mu.Unlock()

	model, err := s.repo.Load(ctx, projectID)
	if err != nil {
		if !pkgerrors.IsNotFound(err) {
			return err
		}
		model = aggregates.NewCanonicalModel(projectID)
	}

	tx := &Tx{ctx: ctx, store: s, pipeline: p, model: model}
	return fn(tx)
}

// Snapshot returns a clone of the project's current model
func (s *ModelStore) Snapshot(ctx context.Context, projectID string) (*aggregates.CanonicalModel, error) {
	p := s.pipeline(projectID)
	p.mu.Lock()
	defer p.mu.Unlock()

	model, err := s.repo.Load(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return model.Clone(), nil
}

// Reset discards a project's model and retained window, used by rebuild
func (s *ModelStore) Reset(ctx context.Context, projectID string) error {
	p := s.pipeline(projectID)
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := s.repo.Delete(ctx, projectID); err != nil && !pkgerrors.IsNotFound(err) {
		return err
	}
	p.window = nil
	return nil
}
