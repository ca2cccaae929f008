// Package websocket is the realtime interface: clients join per-project
// rooms, submit changes, and receive commits, conflicts and presence events.
package websocket

import (
	"encoding/json"
	"time"

	"flowsketch-backend/domain/changes"
)

// Inbound message types
const (
	MessageJoinProject  = "join_project"
	MessageLeaveProject = "leave_project"
	MessageDiagramEdit  = "diagram:update"
	MessageSpecEdit     = "spec:update"
	MessageSyncResolve  = "sync:resolve"
	MessageUserCursor   = "user:cursor"
	MessageProjectLock  = "project:lock"
	MessagePing         = "ping"
)

// Outbound message types
const (
	MessageAck          = "ack"
	MessageSyncCommit   = "sync:committed"
	MessageSyncConflict = "sync:conflict"
	MessageSyncResolved = "sync:resolved"
	MessageError        = "error"
	MessagePong         = "pong"
)

// Envelope is the wire frame for every message in both directions
type Envelope struct {
	Type      string          `json:"type"`
	ProjectID string          `json:"projectId,omitempty"`
	RequestID string          `json:"requestId,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// EditPayload is the inbound payload for diagram and spec edits
type EditPayload struct {
	BaseVersion int64           `json:"baseVersion"`
	Change      json.RawMessage `json:"change"`
}

// ResolvePayload is the inbound payload for conflict resolution
type ResolvePayload struct {
	ConflictID string `json:"conflictId"`
	Accept     bool   `json:"accept"`
}

// CursorPayload is relayed presence data; the server never interprets it
type CursorPayload struct {
	UserID string          `json:"userId"`
	Data   json.RawMessage `json:"data"`
}

// CommitPayload is the outbound payload for a committed batch
type CommitPayload struct {
	Version        int64                   `json:"version"`
	Origin         changes.Origin          `json:"origin"`
	DiagramChanges []changes.DiagramChange `json:"diagramChanges,omitempty"`
	SpecChanges    []changes.SpecChange    `json:"specChanges,omitempty"`
	Delta          *changes.Delta          `json:"delta,omitempty"`
	InitiatedBy    string                  `json:"initiatedBy,omitempty"`
	Timestamp      time.Time               `json:"timestamp"`
}

// AckPayload is the synchronous verdict returned to the submitting client
type AckPayload struct {
	Status     string                `json:"status"`
	Version    int64                 `json:"version"`
	Delta      *changes.Delta        `json:"delta,omitempty"`
	Conflict   *changes.SyncConflict `json:"conflict,omitempty"`
	Resolution *changes.Resolution   `json:"resolution,omitempty"`
	Error      string                `json:"error,omitempty"`
}

func marshalEnvelope(msgType, projectID, requestID string, payload interface{}) ([]byte, error) {
	var raw json.RawMessage
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		raw = data
	}
	return json.Marshal(Envelope{Type: msgType, ProjectID: projectID, RequestID: requestID, Payload: raw})
}
