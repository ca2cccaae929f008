package websocket

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"flowsketch-backend/application/ports"
	"flowsketch-backend/domain/changes"
)

// testRoom wires a hub with one subscribed client and drains its frames
type testRoom struct {
	hub    *Hub
	client *Client
	cancel context.CancelFunc
}

func newTestRoom(t *testing.T, projectID string) *testRoom {
	t.Helper()
	hub := NewHub(nil, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	client := &Client{
		hub:      hub,
		send:     make(chan []byte, 64),
		userID:   "observer",
		projects: map[string]bool{projectID: true},
		log:      zap.NewNop(),
	}
	hub.register <- client
	hub.join <- roomChange{client: client, projectID: projectID}

	// Wait for the join to be processed
	require.Eventually(t, func() bool { return hub.RoomSize(projectID) == 1 }, time.Second, 5*time.Millisecond)
	t.Cleanup(cancel)
	return &testRoom{hub: hub, client: client, cancel: cancel}
}

func (r *testRoom) nextFrame(t *testing.T) Envelope {
	t.Helper()
	select {
	case data := <-r.client.send:
		var env Envelope
		require.NoError(t, json.Unmarshal(data, &env))
		return env
	case <-time.After(2 * time.Second):
		t.Fatal("no frame received")
		return Envelope{}
	}
}

func (r *testRoom) commitVersion(t *testing.T, env Envelope) int64 {
	t.Helper()
	require.Equal(t, MessageSyncCommit, env.Type)
	var payload CommitPayload
	require.NoError(t, json.Unmarshal(env.Payload, &payload))
	return payload.Version
}

func commitEvent(projectID string, version int64) ports.BroadcastEvent {
	return ports.BroadcastEvent{
		ProjectID: projectID,
		Version:   version,
		Origin:    changes.OriginDiagram,
		Timestamp: time.Now(),
	}
}

func TestDispatcher_InOrderDelivery(t *testing.T) {
	room := newTestRoom(t, "p1")
	d := NewDispatcher(room.hub, nil, nil, zap.NewNop())
	ctx := context.Background()

	for v := int64(1); v <= 3; v++ {
		d.DispatchCommit(ctx, commitEvent("p1", v))
	}
	for v := int64(1); v <= 3; v++ {
		assert.Equal(t, v, room.commitVersion(t, room.nextFrame(t)))
	}
}

func TestDispatcher_BuffersOutOfOrderCommits(t *testing.T) {
	room := newTestRoom(t, "p1")
	d := NewDispatcher(room.hub, nil, nil, zap.NewNop())
	ctx := context.Background()

	d.DispatchCommit(ctx, commitEvent("p1", 1))
	assert.Equal(t, int64(1), room.commitVersion(t, room.nextFrame(t)))

	// Version 3 arrives before 2 and must wait for it
	d.DispatchCommit(ctx, commitEvent("p1", 3))
	select {
	case <-room.client.send:
		t.Fatal("version 3 delivered before version 2")
	case <-time.After(100 * time.Millisecond):
	}

	d.DispatchCommit(ctx, commitEvent("p1", 2))
	assert.Equal(t, int64(2), room.commitVersion(t, room.nextFrame(t)))
	assert.Equal(t, int64(3), room.commitVersion(t, room.nextFrame(t)))
}

func TestDispatcher_DropsDuplicates(t *testing.T) {
	room := newTestRoom(t, "p1")
	d := NewDispatcher(room.hub, nil, nil, zap.NewNop())
	ctx := context.Background()

	d.DispatchCommit(ctx, commitEvent("p1", 1))
	d.DispatchCommit(ctx, commitEvent("p1", 1))
	d.DispatchCommit(ctx, commitEvent("p1", 2))

	assert.Equal(t, int64(1), room.commitVersion(t, room.nextFrame(t)))
	assert.Equal(t, int64(2), room.commitVersion(t, room.nextFrame(t)))
	select {
	case <-room.client.send:
		t.Fatal("duplicate delivered")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestDispatcher_FlushesStalledBuffer(t *testing.T) {
	room := newTestRoom(t, "p1")
	d := NewDispatcher(room.hub, nil, func() time.Duration { return 50 * time.Millisecond }, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	d.DispatchCommit(ctx, commitEvent("p1", 1))
	assert.Equal(t, int64(1), room.commitVersion(t, room.nextFrame(t)))

	// The gap at version 2 never fills; 3 goes out after the flush timeout
	d.DispatchCommit(ctx, commitEvent("p1", 3))
	assert.Equal(t, int64(3), room.commitVersion(t, room.nextFrame(t)))
}

func TestDispatcher_ConflictsBypassOrdering(t *testing.T) {
	room := newTestRoom(t, "p1")
	d := NewDispatcher(room.hub, nil, nil, zap.NewNop())
	ctx := context.Background()

	d.DispatchCommit(ctx, commitEvent("p1", 1))
	assert.Equal(t, int64(1), room.commitVersion(t, room.nextFrame(t)))

	// A buffered commit does not delay conflict delivery
	d.DispatchCommit(ctx, commitEvent("p1", 5))
	conflict := changes.NewSyncConflict("p1", changes.ConflictUpdateVsDelete, "orders", nil, nil, "restore-and-reapply")
	d.DispatchConflict(ctx, "p1", conflict)

	env := room.nextFrame(t)
	assert.Equal(t, MessageSyncConflict, env.Type)
}

func TestDispatcher_IndependentProjects(t *testing.T) {
	room1 := newTestRoom(t, "p1")
	d := NewDispatcher(room1.hub, nil, nil, zap.NewNop())
	ctx := context.Background()

	room2client := &Client{
		hub:      room1.hub,
		send:     make(chan []byte, 64),
		userID:   "observer-2",
		projects: map[string]bool{"p2": true},
		log:      zap.NewNop(),
	}
	room1.hub.register <- room2client
	room1.hub.join <- roomChange{client: room2client, projectID: "p2"}
	require.Eventually(t, func() bool { return room1.hub.RoomSize("p2") == 1 }, time.Second, 5*time.Millisecond)

	d.DispatchCommit(ctx, commitEvent("p1", 1))
	d.DispatchCommit(ctx, commitEvent("p2", 1))

	assert.Equal(t, int64(1), room1.commitVersion(t, room1.nextFrame(t)))
	select {
	case data := <-room2client.send:
		var env Envelope
		require.NoError(t, json.Unmarshal(data, &env))
		assert.Equal(t, "p2", env.ProjectID)
	case <-time.After(time.Second):
		t.Fatal("p2 room got nothing")
	}
}
