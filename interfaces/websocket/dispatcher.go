package websocket

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"flowsketch-backend/application/ports"
	"flowsketch-backend/domain/changes"
	"flowsketch-backend/pkg/observability"
)

// DefaultFlushTimeout bounds how long an out-of-order commit waits for the
// gap to fill before being delivered anyway
const DefaultFlushTimeout = 2 * time.Second

// Dispatcher fans engine output into project rooms. Commit events for one
// project are delivered in strictly increasing version order: a commit that
// arrives ahead of a missing predecessor is buffered until the gap fills or
// the flush timeout forces delivery. Conflicts and resolutions bypass the
// ordering buffer.
type Dispatcher struct {
	hub     *Hub
	metrics *observability.Metrics
	log     *zap.Logger

	flushTimeout func() time.Duration

	mu     sync.Mutex
	states map[string]*projectStream
}

type projectStream struct {
	lastSent int64
	started  bool
	buffered map[int64]ports.BroadcastEvent
	oldest   time.Time
}

// NewDispatcher creates a dispatcher over the hub. flushTimeout may be nil.
func NewDispatcher(hub *Hub, metrics *observability.Metrics, flushTimeout func() time.Duration, log *zap.Logger) *Dispatcher {
	if flushTimeout == nil {
		flushTimeout = func() time.Duration { return DefaultFlushTimeout }
	}
	return &Dispatcher{
		hub:          hub,
		metrics:      metrics,
		log:          log,
		flushTimeout: flushTimeout,
		states:       make(map[string]*projectStream),
	}
}

// Run flushes stalled buffers until the context is cancelled
func (d *Dispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.flushStalled()
		}
	}
}

// DispatchCommit delivers a committed batch to the project room in version order
func (d *Dispatcher) DispatchCommit(_ context.Context, event ports.BroadcastEvent) {
	d.mu.Lock()
	defer d.mu.Unlock()

	state := d.states[event.ProjectID]
	if state == nil {
		state = &projectStream{buffered: make(map[int64]ports.BroadcastEvent)}
		d.states[event.ProjectID] = state
	}

	if !state.started {
		state.started = true
		state.lastSent = event.Version
		d.deliverLocked(event)
		d.drainLocked(event.ProjectID, state)
		return
	}

	switch {
	case event.Version <= state.lastSent:
		// Duplicate or already superseded; drop
		d.log.Debug("dropping stale commit broadcast",
			zap.String("project_id", event.ProjectID),
			zap.Int64("version", event.Version),
			zap.Int64("last_sent", state.lastSent))
	case event.Version == state.lastSent+1:
		state.lastSent = event.Version
		d.deliverLocked(event)
		d.drainLocked(event.ProjectID, state)
	default:
		if len(state.buffered) == 0 {
			state.oldest = time.Now()
		}
		state.buffered[event.Version] = event
	}
}

// drainLocked delivers any buffered successors now in sequence
func (d *Dispatcher) drainLocked(projectID string, state *projectStream) {
	for {
		next, ok := state.buffered[state.lastSent+1]
		if !ok {
			break
		}
		delete(state.buffered, state.lastSent+1)
		state.lastSent = next.Version
		d.deliverLocked(next)
	}
	if len(state.buffered) == 0 {
		state.oldest = time.Time{}
	}
}

// flushStalled force-delivers buffers whose gap never filled, in version
// order, so one lost commit cannot stall a room forever
func (d *Dispatcher) flushStalled() {
	d.mu.Lock()
	defer d.mu.Unlock()

	timeout := d.flushTimeout()
	now := time.Now()
	for projectID, state := range d.states {
		if len(state.buffered) == 0 || state.oldest.IsZero() || now.Sub(state.oldest) < timeout {
			continue
		}
		versions := make([]int64, 0, len(state.buffered))
		for v := range state.buffered {
			versions = append(versions, v)
		}
		sort.Slice(versions, func(i, j int) bool { return versions[i] < versions[j] })

		d.log.Warn("flushing stalled commit buffer",
			zap.String("project_id", projectID),
			zap.Int64("last_sent", state.lastSent),
			zap.Int("buffered", len(versions)))
		for _, v := range versions {
			event := state.buffered[v]
			delete(state.buffered, v)
			state.lastSent = v
			d.deliverLocked(event)
		}
		state.oldest = time.Time{}
	}
}

func (d *Dispatcher) deliverLocked(event ports.BroadcastEvent) {
	data, err := marshalEnvelope(MessageSyncCommit, event.ProjectID, "", CommitPayload{
		Version:        event.Version,
		Origin:         event.Origin,
		DiagramChanges: event.DiagramChanges,
		SpecChanges:    event.SpecChanges,
		Delta:          event.Delta,
		InitiatedBy:    event.InitiatedBy,
		Timestamp:      event.Timestamp,
	})
	if err != nil {
		d.log.Error("marshaling commit broadcast", zap.Error(err))
		return
	}
	if d.metrics != nil {
		d.metrics.BroadcastLag.Observe(time.Since(event.Timestamp).Seconds())
	}
	d.hub.Broadcast(event.ProjectID, data)
}

// DispatchConflict delivers a detected conflict to the room immediately
func (d *Dispatcher) DispatchConflict(_ context.Context, projectID string, conflict *changes.SyncConflict) {
	if d.metrics != nil {
		d.metrics.ConflictsDetected.WithLabelValues(string(conflict.Type)).Inc()
	}
	data, err := marshalEnvelope(MessageSyncConflict, projectID, "", conflict)
	if err != nil {
		d.log.Error("marshaling conflict broadcast", zap.Error(err))
		return
	}
	d.hub.Broadcast(projectID, data)
}

// DispatchResolution delivers a resolution to the room immediately
func (d *Dispatcher) DispatchResolution(_ context.Context, projectID string, resolution *changes.Resolution) {
	data, err := marshalEnvelope(MessageSyncResolved, projectID, "", resolution)
	if err != nil {
		d.log.Error("marshaling resolution broadcast", zap.Error(err))
		return
	}
	d.hub.Broadcast(projectID, data)
}
