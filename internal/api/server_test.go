package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Abhio2i/TDF-sub001/internal/api"
	"github.com/Abhio2i/TDF-sub001/internal/engine"
	"github.com/Abhio2i/TDF-sub001/internal/replication"
	"github.com/Abhio2i/TDF-sub001/internal/scene"
	"github.com/Abhio2i/TDF-sub001/internal/store"
)

type testEnv struct {
	ts    *httptest.Server
	loop  *engine.Loop
	store *store.MockStore
}

// newTestServer serves the API over a running engine loop and a MockStore.
func newTestServer(t *testing.T, authToken string) *testEnv {
	t.Helper()
	return newTestServerWith(t, authToken, false)
}

func newTestServerWith(t *testing.T, authToken string, replica bool) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
	loop := engine.New(scene.New(), engine.Options{TickInterval: time.Hour}, logger)
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = loop.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-loop.Done()
	})

	st := store.NewMockStore()
	peers := func() []replication.PeerStatus {
		return []replication.PeerStatus{{ID: "p1", State: replication.Replicating}}
	}
	srv := api.NewServer(loop, st, peers, logger, authToken)
	srv.SetReplica(replica)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return &testEnv{ts: ts, loop: loop, store: st}
}

func doRequest(t *testing.T, method, url string, body any, token string) *http.Response {
	t.Helper()
	var rd io.Reader = http.NoBody
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(context.Background(), method, url, rd)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decodeJSON(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func (e *testEnv) create(t *testing.T, path string, body any) string {
	t.Helper()
	resp := doRequest(t, http.MethodPost, e.ts.URL+path, body, "")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	id, _ := decodeJSON(t, resp)["id"].(string)
	require.NotEmpty(t, id)
	return id
}

func TestAPI_Healthz(t *testing.T) {
	env := newTestServer(t, "secret")
	resp := doRequest(t, http.MethodGet, env.ts.URL+"/healthz", nil, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", decodeJSON(t, resp)["status"])
}

func TestAPI_AuthRequired(t *testing.T) {
	env := newTestServer(t, "secret")
	assert.Equal(t, http.StatusUnauthorized, doRequest(t, http.MethodGet, env.ts.URL+"/v1/scene", nil, "").StatusCode)
	assert.Equal(t, http.StatusUnauthorized, doRequest(t, http.MethodGet, env.ts.URL+"/v1/scene", nil, "wrong").StatusCode)
	assert.Equal(t, http.StatusOK, doRequest(t, http.MethodGet, env.ts.URL+"/v1/scene", nil, "secret").StatusCode)
}

func TestAPI_BuildSceneAndComponents(t *testing.T) {
	env := newTestServer(t, "")
	pid := env.create(t, "/v1/profiles", map[string]any{"name": "Platform"})
	fid := env.create(t, "/v1/folders", map[string]any{"parent_id": pid, "name": "Blue", "profile_parent": true})
	eid := env.create(t, "/v1/entities", map[string]any{"parent_id": fid, "name": "Jet1"})

	resp := doRequest(t, http.MethodPost, env.ts.URL+"/v1/entities/"+eid+"/components/dynamicModel", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.ElementsMatch(t,
		[]any{"transform", "rigidbody", "collider", "trajectory", "dynamicModel"},
		decodeJSON(t, resp)["components"])

	resp = doRequest(t, http.MethodPatch, env.ts.URL+"/v1/entities/"+eid+"/components/rigidbody",
		map[string]any{"mass": 12000.0}, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeJSON(t, resp)
	assert.Equal(t, 12000.0, body["mass"])
	assert.Equal(t, "rigidbody", body["type"])

	resp = doRequest(t, http.MethodDelete, env.ts.URL+"/v1/entities/"+eid+"/components/transform", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = doRequest(t, http.MethodGet, env.ts.URL+"/v1/entities/"+eid+"/components/rigidbody", nil, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode, "removal cascades to dependents")

	resp = doRequest(t, http.MethodGet, env.ts.URL+"/v1/entities/"+eid, nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	doc := decodeJSON(t, resp)
	assert.Equal(t, "Jet1", doc["name"])
	assert.Equal(t, fid, doc["parent_id"])
}

func TestAPI_RenameAndDeactivate(t *testing.T) {
	env := newTestServer(t, "")
	pid := env.create(t, "/v1/profiles", map[string]any{"name": "Platform"})
	eid := env.create(t, "/v1/entities", map[string]any{"parent_id": pid, "name": "Jet1", "profile_parent": true})

	resp := doRequest(t, http.MethodPatch, env.ts.URL+"/v1/entities/"+eid, map[string]any{"name": "Jet2", "active": false}, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp = doRequest(t, http.MethodPatch, env.ts.URL+"/v1/profiles/"+pid, map[string]any{"name": "Aircraft"}, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, env.loop.Call(context.Background(), func(h *scene.Hierarchy) error {
		e, ok := h.Entity(eid)
		if !assert.True(t, ok) {
			return nil
		}
		assert.Equal(t, "Jet2", e.Name())
		assert.False(t, e.Active())
		p, _ := h.ProfileCategory(pid)
		assert.Equal(t, "Aircraft", p.Name())
		return nil
	}))
}

func TestAPI_AddEntityFromDocument(t *testing.T) {
	env := newTestServer(t, "")
	pid := env.create(t, "/v1/profiles", map[string]any{"name": "Platform"})
	eid := env.create(t, "/v1/entities", map[string]any{
		"parent_id":      pid,
		"profile_parent": true,
		"document": map[string]any{
			"name":      "Copy",
			"kind":      map[string]any{"type": "option", "value": "Missile"},
			"transform": map[string]any{"position": map[string]any{"x": 7.0}},
		},
	})

	resp := doRequest(t, http.MethodGet, env.ts.URL+"/v1/entities/"+eid+"/components/transform", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	pos, _ := decodeJSON(t, resp)["position"].(map[string]any)
	assert.Equal(t, 7.0, pos["x"])
}

func TestAPI_ErrorMapping(t *testing.T) {
	env := newTestServer(t, "")
	pid := env.create(t, "/v1/profiles", map[string]any{"name": "IFF"})
	iff := env.create(t, "/v1/entities", map[string]any{"parent_id": pid, "name": "Squawk", "profile_parent": true})

	cases := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{"unknown parent", http.MethodPost, "/v1/folders", map[string]any{"parent_id": "nope", "name": "x", "profile_parent": true}, http.StatusNotFound},
		{"unknown entity", http.MethodGet, "/v1/entities/nope", nil, http.StatusNotFound},
		{"absent component", http.MethodPatch, "/v1/entities/" + iff + "/components/collider", map[string]any{"radius": 1.0}, http.StatusNotFound},
		{"unsupported component", http.MethodPost, "/v1/entities/" + iff + "/components/transform", nil, http.StatusUnprocessableEntity},
		{"unknown kind", http.MethodPost, "/v1/entities", map[string]any{"parent_id": pid, "name": "x", "kind": "Zeppelin", "profile_parent": true}, http.StatusBadRequest},
		{"missing name", http.MethodPost, "/v1/profiles", map[string]any{}, http.StatusBadRequest},
		{"remove unknown folder", http.MethodDelete, "/v1/folders/nope", nil, http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := doRequest(t, tc.method, env.ts.URL+tc.path, tc.body, "")
			assert.Equal(t, tc.want, resp.StatusCode)
			assert.NotEmpty(t, decodeJSON(t, resp)["error"])
		})
	}
}

func TestAPI_Peers(t *testing.T) {
	env := newTestServer(t, "")
	resp := doRequest(t, http.MethodGet, env.ts.URL+"/v1/peers", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	peers, _ := decodeJSON(t, resp)["peers"].([]any)
	require.Len(t, peers, 1)
	assert.Equal(t, "replicating", peers[0].(map[string]any)["state"])
}

func TestAPI_ScenarioSaveLoad(t *testing.T) {
	env := newTestServer(t, "")
	env.create(t, "/v1/profiles", map[string]any{"name": "Platform"})

	resp := doRequest(t, http.MethodPut, env.ts.URL+"/v1/scenarios/drill", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = doRequest(t, http.MethodGet, env.ts.URL+"/v1/scenarios", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	list, _ := decodeJSON(t, resp)["scenarios"].([]any)
	require.Len(t, list, 1)

	env.create(t, "/v1/profiles", map[string]any{"name": "Radio"})
	resp = doRequest(t, http.MethodPost, env.ts.URL+"/v1/scenarios/drill/load", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, env.loop.Call(context.Background(), func(h *scene.Hierarchy) error {
		assert.Len(t, h.ProfileIDs(), 1, "load replaces the tree")
		return nil
	}))

	assert.Equal(t, http.StatusNotFound, doRequest(t, http.MethodPost, env.ts.URL+"/v1/scenarios/missing/load", nil, "").StatusCode)
	assert.Equal(t, http.StatusBadRequest, doRequest(t, http.MethodPut, env.ts.URL+"/v1/scenarios/.bad", nil, "").StatusCode)
	assert.Equal(t, http.StatusOK, doRequest(t, http.MethodDelete, env.ts.URL+"/v1/scenarios/drill", nil, "").StatusCode)
}

func TestAPI_ReplicaRefusesScenarioLoad(t *testing.T) {
	env := newTestServerWith(t, "", true)
	env.create(t, "/v1/profiles", map[string]any{"name": "Mirrored"})
	require.NoError(t, env.store.Save(context.Background(), "drill", scene.New().ToDocument()))

	resp := doRequest(t, http.MethodPost, env.ts.URL+"/v1/scenarios/drill/load", nil, "")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Contains(t, decodeJSON(t, resp)["error"], "master")

	require.NoError(t, env.loop.Call(context.Background(), func(h *scene.Hierarchy) error {
		assert.Len(t, h.ProfileIDs(), 1, "replica tree is untouched")
		return nil
	}))

	resp = doRequest(t, http.MethodPut, env.ts.URL+"/v1/scenarios/copy", nil, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode, "saving a replica's tree is still allowed")
}

func TestAPI_DebugVars(t *testing.T) {
	env := newTestServer(t, "secret")
	resp := doRequest(t, http.MethodGet, env.ts.URL+"/debug/vars", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, decodeJSON(t, resp), "tdf_ticks_total")
}
