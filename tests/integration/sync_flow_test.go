package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"flowsketch-backend/application/engine"
	"flowsketch-backend/application/ports"
	"flowsketch-backend/application/store"
	"flowsketch-backend/domain/changes"
	"flowsketch-backend/infrastructure/acl"
	"flowsketch-backend/infrastructure/config"
	"flowsketch-backend/infrastructure/persistence/memory"
	"flowsketch-backend/interfaces/http/rest"
	"flowsketch-backend/interfaces/http/rest/handlers"
	"flowsketch-backend/interfaces/websocket"
	"flowsketch-backend/pkg/auth"
	"flowsketch-backend/pkg/observability"
)

// recordingDispatcher captures everything the engine broadcasts
type recordingDispatcher struct {
	mu          sync.Mutex
	commits     []ports.BroadcastEvent
	conflicts   []*changes.SyncConflict
	resolutions []*changes.Resolution
}

func (d *recordingDispatcher) DispatchCommit(_ context.Context, event ports.BroadcastEvent) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.commits = append(d.commits, event)
}

func (d *recordingDispatcher) DispatchConflict(_ context.Context, _ string, conflict *changes.SyncConflict) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.conflicts = append(d.conflicts, conflict)
}

func (d *recordingDispatcher) DispatchResolution(_ context.Context, _ string, resolution *changes.Resolution) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.resolutions = append(d.resolutions, resolution)
}

// stubParser returns a canned parsed model for any text
type stubParser struct {
	model *ports.ParsedModel
}

func (p *stubParser) Parse(_ context.Context, _ string) (*ports.ParsedModel, error) {
	return p.model, nil
}

type harness struct {
	store      *store.ModelStore
	engine     *engine.Engine
	dispatcher *recordingDispatcher
	server     *httptest.Server
}

func newHarness(t *testing.T, parser ports.SpecParser) *harness {
	t.Helper()
	log := zap.NewNop()
	metrics := observability.NewMetrics()
	modelStore := store.NewModelStore(memory.NewModelRepository())
	dispatcher := &recordingDispatcher{}
	eng := engine.NewEngine(modelStore, dispatcher, metrics,
		func() time.Duration { return time.Minute }, metrics, log)

	cfg := &config.Config{
		Environment:    "test",
		AllowedOrigins: []string{"*"},
	}
	hub := websocket.NewHub(metrics, log)
	h := rest.Handlers{
		Diagram:   handlers.NewDiagramHandler(modelStore, eng),
		Spec:      handlers.NewSpecHandler(modelStore, eng),
		Parse:     handlers.NewParseHandler(eng, parser),
		WebSocket: websocket.NewServer(hub, eng, cfg.AllowedOrigins, log),
	}
	router := rest.NewRouter(cfg, h, auth.NewValidator("test-secret"), metrics, log)
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	return &harness{store: modelStore, engine: eng, dispatcher: dispatcher, server: srv}
}

func (h *harness) request(t *testing.T, method, path string, body string) *http.Response {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, h.server.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("X-User-ID", "it-user")
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func strPtr(s string) *string { return &s }

func orderServiceModel() *ports.ParsedModel {
	return &ports.ParsedModel{
		Entities: []ports.ParsedEntity{
			{ID: "user", Name: "User", Type: "actor"},
			{ID: "orders", Name: "Order Service", Type: "process"},
			{ID: "orderdb", Name: "Order DB", Type: "data"},
		},
		Relationships: []ports.ParsedRelationship{
			{ID: "r1", SourceID: "user", TargetID: "orders", Verb: "sends"},
			{ID: "r2", SourceID: "orders", TargetID: "orderdb", Verb: "stores"},
		},
		BusinessRules: []ports.ParsedRule{
			{ID: "br1", Description: "Orders must be acknowledged within 5 seconds"},
		},
	}
}

func TestParseSeedAndRead(t *testing.T) {
	h := newHarness(t, &stubParser{model: orderServiceModel()})

	resp := h.request(t, http.MethodPost, "/api/v1/projects/p1/parse", `{"text":"users send orders to the order service"}`)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var outcome engine.Outcome
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&outcome))
	assert.Equal(t, engine.StatusCommitted, outcome.Status)
	assert.Equal(t, int64(1), outcome.Version)

	// The diagram view serves everything the seed created
	diagResp := h.request(t, http.MethodGet, "/api/v1/projects/p1/diagram", "")
	defer diagResp.Body.Close()
	require.Equal(t, http.StatusOK, diagResp.StatusCode)

	var diagram struct {
		Version int64 `json:"version"`
		Nodes   []struct {
			ID string `json:"id"`
		} `json:"nodes"`
		Edges []struct {
			ID string `json:"id"`
		} `json:"edges"`
	}
	require.NoError(t, json.NewDecoder(diagResp.Body).Decode(&diagram))
	assert.Equal(t, int64(1), diagram.Version)
	assert.Len(t, diagram.Nodes, 3)
	assert.Len(t, diagram.Edges, 2)

	// The markdown projection renders the same model
	mdResp := h.request(t, http.MethodGet, "/api/v1/projects/p1/specification?format=markdown&name=Orders", "")
	defer mdResp.Body.Close()
	require.Equal(t, http.StatusOK, mdResp.StatusCode)
	buf := new(bytes.Buffer)
	_, err := buf.ReadFrom(mdResp.Body)
	require.NoError(t, err)
	md := buf.String()
	assert.Contains(t, md, "# Orders Specification")
	assert.Contains(t, md, "### Order Service")
	assert.Contains(t, md, "Orders must be acknowledged within 5 seconds")
}

func TestDiagramEditProjectsToSpec(t *testing.T) {
	h := newHarness(t, &stubParser{model: orderServiceModel()})
	ctx := context.Background()

	muts, err := acl.ToMutations(orderServiceModel())
	require.NoError(t, err)
	_, err = h.engine.Seed(ctx, "p1", muts, false, "seeder")
	require.NoError(t, err)

	outcome := h.engine.SubmitDiagram(ctx, "p1", 1, &changes.DiagramChange{
		Op:       changes.NodeAdd,
		TargetID: "cache",
		Node: &changes.NodePayload{
			Name: strPtr("Order Cache"),
			Type: strPtr("data"),
		},
		Timestamp: time.Now(),
		UserID:    "alice",
	})
	require.Equal(t, engine.StatusCommitted, outcome.Status)
	assert.Equal(t, int64(2), outcome.Version)

	// The commit broadcast carries the derived spec section
	h.dispatcher.mu.Lock()
	last := h.dispatcher.commits[len(h.dispatcher.commits)-1]
	h.dispatcher.mu.Unlock()
	require.Len(t, last.SpecChanges, 1)
	assert.Equal(t, changes.SectionAdd, last.SpecChanges[0].Op)
	assert.Equal(t, "cache", last.SpecChanges[0].SectionID)
	assert.Contains(t, *last.SpecChanges[0].Content, "Order Cache")
}

func TestConcurrentUpdatesAutoMerge(t *testing.T) {
	h := newHarness(t, &stubParser{model: orderServiceModel()})
	ctx := context.Background()

	muts, err := acl.ToMutations(orderServiceModel())
	require.NoError(t, err)
	_, err = h.engine.Seed(ctx, "p1", muts, false, "seeder")
	require.NoError(t, err)

	base := time.Now()

	// Alice renames the service at version 1
	outcome := h.engine.SubmitDiagram(ctx, "p1", 1, &changes.DiagramChange{
		Op:        changes.NodeUpdate,
		TargetID:  "orders",
		Node:      &changes.NodePayload{Name: strPtr("Order API")},
		Timestamp: base,
		UserID:    "alice",
	})
	require.Equal(t, engine.StatusCommitted, outcome.Status)

	// Bob edits a disjoint field, still at version 1; both edits survive
	outcome = h.engine.SubmitDiagram(ctx, "p1", 1, &changes.DiagramChange{
		Op:        changes.NodeUpdate,
		TargetID:  "orders",
		Node:      &changes.NodePayload{Properties: map[string]string{"tier": "critical"}},
		Timestamp: base.Add(time.Second),
		UserID:    "bob",
	})
	require.Equal(t, engine.StatusCommitted, outcome.Status)
	require.NotNil(t, outcome.Resolution)
	assert.Equal(t, changes.ResolutionAutoMerged, outcome.Resolution.Strategy)

	model, err := h.store.Snapshot(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "Order API", model.Entities["orders"].Name)
	assert.Equal(t, "critical", model.Entities["orders"].Properties["tier"])
}

func TestUpdateVsDeleteRestoreFlow(t *testing.T) {
	h := newHarness(t, &stubParser{model: orderServiceModel()})
	ctx := context.Background()

	muts, err := acl.ToMutations(orderServiceModel())
	require.NoError(t, err)
	_, err = h.engine.Seed(ctx, "p1", muts, false, "seeder")
	require.NoError(t, err)

	// Alice deletes the database node at version 1
	outcome := h.engine.SubmitDiagram(ctx, "p1", 1, &changes.DiagramChange{
		Op:        changes.NodeDelete,
		TargetID:  "orderdb",
		Timestamp: time.Now(),
		UserID:    "alice",
	})
	require.Equal(t, engine.StatusCommitted, outcome.Status)

	// Bob edits the deleted section, still at version 1; the edit parks
	outcome = h.engine.SubmitSpec(ctx, "p1", 1, &changes.SpecChange{
		Op:        changes.ContentUpdate,
		SectionID: "orderdb",
		Content:   strPtr("**Type**: data\n**Name**: Order Warehouse"),
		Timestamp: time.Now(),
		UserID:    "bob",
	})
	require.Equal(t, engine.StatusConflicted, outcome.Status)
	require.NotNil(t, outcome.Conflict)
	assert.Equal(t, changes.ConflictUpdateVsDelete, outcome.Conflict.Type)

	// Accepting restores the node with Bob's edit applied
	resolved := h.engine.ResolveConflict(ctx, "p1", outcome.Conflict.ID, true, "bob")
	require.Equal(t, engine.StatusCommitted, resolved.Status)

	model, err := h.store.Snapshot(ctx, "p1")
	require.NoError(t, err)
	require.Contains(t, model.Entities, "orderdb")
	assert.Equal(t, "Order Warehouse", model.Entities["orderdb"].Name)
}

func TestBulkDiagramEditOverREST(t *testing.T) {
	h := newHarness(t, &stubParser{model: orderServiceModel()})
	ctx := context.Background()

	muts, err := acl.ToMutations(orderServiceModel())
	require.NoError(t, err)
	_, err = h.engine.Seed(ctx, "p1", muts, false, "seeder")
	require.NoError(t, err)

	body := `{
		"baseVersion": 1,
		"changes": [
			{"op":"node:add","targetId":"gateway","node":{"name":"API Gateway","type":"system"},"userId":"it-user"},
			{"op":"edge:add","targetId":"g1","edge":{"sourceId":"gateway","targetId":"orders","type":"flow"},"userId":"it-user"}
		]
	}`
	resp := h.request(t, http.MethodPut, "/api/v1/projects/p1/diagram", body)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result struct {
		Version int64 `json:"version"`
		Results []struct {
			Status string `json:"status"`
		} `json:"results"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	assert.Equal(t, int64(3), result.Version)
	require.Len(t, result.Results, 2)
	assert.Equal(t, "committed", result.Results[0].Status)
	assert.Equal(t, "committed", result.Results[1].Status)

	model, err := h.store.Snapshot(ctx, "p1")
	require.NoError(t, err)
	assert.Contains(t, model.Entities, "gateway")
	assert.Contains(t, model.Relationships, "g1")
}

func TestUnauthenticatedRequestRejected(t *testing.T) {
	h := newHarness(t, &stubParser{model: orderServiceModel()})

	req, err := http.NewRequest(http.MethodGet, h.server.URL+"/api/v1/projects/p1/diagram", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// Health stays open
	healthResp, err := http.Get(h.server.URL + "/health")
	require.NoError(t, err)
	defer healthResp.Body.Close()
	assert.Equal(t, http.StatusOK, healthResp.StatusCode)
}
