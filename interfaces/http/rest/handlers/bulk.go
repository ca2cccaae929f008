package handlers

import (
	"encoding/json"

	"flowsketch-backend/application/engine"
	"flowsketch-backend/domain/changes"
)

// bulkRequest is the PUT body for batch diagram or spec edits. Changes are
// raw so each one can be decoded strictly and rejected individually.
type bulkRequest struct {
	BaseVersion int64             `json:"baseVersion"`
	Changes     []json.RawMessage `json:"changes"`
}

type applyResult struct {
	Status     string                `json:"status"`
	Version    int64                 `json:"version,omitempty"`
	Delta      *changes.Delta        `json:"delta,omitempty"`
	Conflict   *changes.SyncConflict `json:"conflict,omitempty"`
	Resolution *changes.Resolution   `json:"resolution,omitempty"`
	Error      string                `json:"error,omitempty"`
}

type bulkResponse struct {
	Version int64         `json:"version"`
	Results []applyResult `json:"results"`
}

func toApplyResult(outcome engine.Outcome) applyResult {
	res := applyResult{
		Status:     string(outcome.Status),
		Version:    outcome.Version,
		Delta:      outcome.Delta,
		Conflict:   outcome.Conflict,
		Resolution: outcome.Resolution,
	}
	if outcome.Err != nil {
		res.Error = outcome.Err.Error()
	}
	return res
}
