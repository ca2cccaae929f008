// Package memory provides in-memory adapters for the persistence ports.
// Models live for the lifetime of the process; durability is out of scope.
package memory

import (
	"context"
	"sort"
	"sync"

	"flowsketch-backend/domain/core/aggregates"
	pkgerrors "flowsketch-backend/pkg/errors"
)

// ModelRepository is a thread-safe in-memory ports.ModelRepository
type ModelRepository struct {
	mu     sync.RWMutex
	models map[string]*aggregates.CanonicalModel
}

// NewModelRepository creates an empty repository
func NewModelRepository() *ModelRepository {
	return &ModelRepository{
		models: make(map[string]*aggregates.CanonicalModel),
	}
}

// Load returns a clone of the stored model
func (r *ModelRepository) Load(_ context.Context, projectID string) (*aggregates.CanonicalModel, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.models[projectID]
	if !ok {
		return nil, pkgerrors.NewNotFoundError("project " + projectID)
	}
	return m.Clone(), nil
}

// Save stores a clone of the model
func (r *ModelRepository) Save(_ context.Context, model *aggregates.CanonicalModel) error {
	if model == nil || model.ProjectID == "" {
		return pkgerrors.NewValidationError("model must carry a project id")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.models[model.ProjectID] = model.Clone()
	return nil
}

// Delete removes the model for the project
func (r *ModelRepository) Delete(_ context.Context, projectID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.models[projectID]; !ok {
		return pkgerrors.NewNotFoundError("project " + projectID)
	}
	delete(r.models, projectID)
	return nil
}

// ProjectIDs lists all stored project ids in deterministic order
func (r *ModelRepository) ProjectIDs(_ context.Context) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.models))
	for id := range r.models {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}
