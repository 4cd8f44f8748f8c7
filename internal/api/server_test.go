package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"scenegraph/internal/blob"
	"scenegraph/internal/core"
)

func newTestServer(t *testing.T, opts ...core.ServiceOption) *httptest.Server {
	t.Helper()
	svc := core.NewService(core.NewScene(), opts...)
	ts := httptest.NewServer(New(svc, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "# metrics\n")
	})).Router())
	t.Cleanup(ts.Close)
	return ts
}

func do(t *testing.T, ts *httptest.Server, method, path string, body any) *http.Response {
	t.Helper()
	var rdr io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		rdr = strings.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		rdr = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, ts.URL+path, rdr)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := ts.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var out T
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

func expectStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("%s %s: expected status %d, got %d (%s)", resp.Request.Method, resp.Request.URL.Path, want, resp.StatusCode, body)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	ts := newTestServer(t)
	resp := do(t, ts, http.MethodGet, "/health", nil)
	expectStatus(t, resp, http.StatusOK)
	if got := decode[map[string]string](t, resp); got["status"] != "ok" {
		t.Fatalf("unexpected health body %v", got)
	}
	expectStatus(t, do(t, ts, http.MethodGet, "/metrics", nil), http.StatusOK)
}

func TestNodeLifecycle(t *testing.T) {
	ts := newTestServer(t)

	resp := do(t, ts, http.MethodPost, "/api/nodes", CreateNodeRequest{Class: "Volume", Name: "head"})
	expectStatus(t, resp, http.StatusCreated)
	created := decode[core.NodeView](t, resp)
	if created.ID != "VolumeNode" || created.Name != "head" || created.Class != "Volume" {
		t.Fatalf("unexpected created node %+v", created)
	}
	expectStatus(t, do(t, ts, http.MethodPost, "/api/nodes", CreateNodeRequest{Class: "Camera"}), http.StatusCreated)

	resp = do(t, ts, http.MethodGet, "/api/nodes?class=Volume", nil)
	expectStatus(t, resp, http.StatusOK)
	if list := decode[[]core.NodeView](t, resp); len(list) != 1 || list[0].ID != "VolumeNode" {
		t.Fatalf("expected class filter to return the volume, got %+v", list)
	}

	resp = do(t, ts, http.MethodGet, "/api/nodes/VolumeNode", nil)
	expectStatus(t, resp, http.StatusOK)

	expectStatus(t, do(t, ts, http.MethodDelete, "/api/nodes/VolumeNode", nil), http.StatusNoContent)
	expectStatus(t, do(t, ts, http.MethodGet, "/api/nodes/VolumeNode", nil), http.StatusNotFound)
	expectStatus(t, do(t, ts, http.MethodDelete, "/api/nodes/VolumeNode", nil), http.StatusNotFound)
}

func TestCreateNodeValidation(t *testing.T) {
	ts := newTestServer(t)
	expectStatus(t, do(t, ts, http.MethodPost, "/api/nodes", CreateNodeRequest{}), http.StatusBadRequest)
	expectStatus(t, do(t, ts, http.MethodPost, "/api/nodes", CreateNodeRequest{Class: "Teapot"}), http.StatusBadRequest)
	expectStatus(t, do(t, ts, http.MethodPost, "/api/nodes", "{not json"), http.StatusBadRequest)
}

func TestHierarchyRoutes(t *testing.T) {
	ts := newTestServer(t)
	for i := 0; i < 3; i++ {
		expectStatus(t, do(t, ts, http.MethodPost, "/api/nodes", CreateNodeRequest{Class: "Hierarchy"}), http.StatusCreated)
	}
	expectStatus(t, do(t, ts, http.MethodPost, "/api/nodes/HierarchyNode_1/parent", SetParentRequest{ParentID: "HierarchyNode"}), http.StatusNoContent)
	expectStatus(t, do(t, ts, http.MethodPost, "/api/nodes/HierarchyNode_2/parent", SetParentRequest{ParentID: "HierarchyNode"}), http.StatusNoContent)

	resp := do(t, ts, http.MethodGet, "/api/nodes/HierarchyNode/children", nil)
	expectStatus(t, resp, http.StatusOK)
	children := decode[[]core.NodeView](t, resp)
	if len(children) != 2 || children[0].ID != "HierarchyNode_1" || children[1].ID != "HierarchyNode_2" {
		t.Fatalf("unexpected children %+v", children)
	}

	expectStatus(t, do(t, ts, http.MethodPost, "/api/nodes/HierarchyNode_2/move", MoveRequest{Delta: -1}), http.StatusNoContent)
	resp = do(t, ts, http.MethodGet, "/api/nodes/HierarchyNode/children", nil)
	children = decode[[]core.NodeView](t, resp)
	if len(children) != 2 || children[0].ID != "HierarchyNode_2" {
		t.Fatalf("expected move to reorder siblings, got %+v", children)
	}

	resp = do(t, ts, http.MethodGet, "/api/nodes/root/children", nil)
	expectStatus(t, resp, http.StatusOK)
	if roots := decode[[]core.NodeView](t, resp); len(roots) != 1 || roots[0].ID != "HierarchyNode" {
		t.Fatalf("unexpected roots %+v", roots)
	}

	expectStatus(t, do(t, ts, http.MethodPost, "/api/nodes/HierarchyNode/parent", SetParentRequest{ParentID: "HierarchyNode_1"}), http.StatusConflict)
	expectStatus(t, do(t, ts, http.MethodPost, "/api/nodes/HierarchyNode/parent", SetParentRequest{ParentID: "HierarchyNode"}), http.StatusBadRequest)
	expectStatus(t, do(t, ts, http.MethodPost, "/api/nodes/HierarchyNode_1/move", MoveRequest{Delta: 5}), http.StatusBadRequest)
}

func TestUndoRedoRoutes(t *testing.T) {
	ts := newTestServer(t)
	resp := do(t, ts, http.MethodPost, "/api/undo", nil)
	expectStatus(t, resp, http.StatusOK)
	if got := decode[appliedResponse](t, resp); got.Applied {
		t.Fatal("expected undo on empty stack to report not applied")
	}

	expectStatus(t, do(t, ts, http.MethodPost, "/api/undo/save", nil), http.StatusNoContent)
	expectStatus(t, do(t, ts, http.MethodPost, "/api/nodes", CreateNodeRequest{Class: "Volume"}), http.StatusCreated)

	resp = do(t, ts, http.MethodPost, "/api/undo", nil)
	expectStatus(t, resp, http.StatusOK)
	if got := decode[appliedResponse](t, resp); !got.Applied {
		t.Fatal("expected undo to apply")
	}
	expectStatus(t, do(t, ts, http.MethodGet, "/api/nodes/VolumeNode", nil), http.StatusNotFound)

	resp = do(t, ts, http.MethodPost, "/api/redo", nil)
	expectStatus(t, resp, http.StatusOK)
	if got := decode[appliedResponse](t, resp); !got.Applied {
		t.Fatal("expected redo to apply")
	}
	expectStatus(t, do(t, ts, http.MethodGet, "/api/nodes/VolumeNode", nil), http.StatusOK)
}

func TestSceneViewRestoreConflict(t *testing.T) {
	ts := newTestServer(t)
	resp := do(t, ts, http.MethodPost, "/api/sceneviews", StoreSceneViewRequest{Name: "start"})
	expectStatus(t, resp, http.StatusCreated)
	view := decode[core.NodeView](t, resp)

	expectStatus(t, do(t, ts, http.MethodPost, "/api/nodes", CreateNodeRequest{Class: "Volume"}), http.StatusCreated)

	resp = do(t, ts, http.MethodPost, "/api/sceneviews/"+view.ID+"/restore", nil)
	expectStatus(t, resp, http.StatusConflict)
	conflict := decode[conflictResponse](t, resp)
	if len(conflict.WouldDeleteIDs) != 1 || conflict.WouldDeleteIDs[0] != "VolumeNode" {
		t.Fatalf("expected conflict to name VolumeNode, got %+v", conflict)
	}
	expectStatus(t, do(t, ts, http.MethodGet, "/api/nodes/VolumeNode", nil), http.StatusOK)

	expectStatus(t, do(t, ts, http.MethodPost, "/api/sceneviews/"+view.ID+"/restore?force=true", nil), http.StatusNoContent)
	expectStatus(t, do(t, ts, http.MethodGet, "/api/nodes/VolumeNode", nil), http.StatusNotFound)
	expectStatus(t, do(t, ts, http.MethodPost, "/api/sceneviews/"+view.ID+"/restore?force=maybe", nil), http.StatusBadRequest)
	expectStatus(t, do(t, ts, http.MethodPost, "/api/sceneviews/missing/restore", nil), http.StatusNotFound)
}

func TestSceneExportImportAndClear(t *testing.T) {
	ts := newTestServer(t)
	expectStatus(t, do(t, ts, http.MethodPost, "/api/nodes", CreateNodeRequest{Class: "Volume", Name: "ct"}), http.StatusCreated)

	resp := do(t, ts, http.MethodGet, "/api/scene", nil)
	expectStatus(t, resp, http.StatusOK)
	doc, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read scene: %v", err)
	}
	if !strings.Contains(string(doc), "<Scene") || !strings.Contains(string(doc), `name="ct"`) {
		t.Fatalf("unexpected scene document %s", doc)
	}

	resp = do(t, ts, http.MethodPost, "/api/scene", string(doc))
	expectStatus(t, resp, http.StatusOK)
	imported := decode[[]core.NodeView](t, resp)
	if len(imported) != 1 || imported[0].ID != "VolumeNode_1" {
		t.Fatalf("expected colliding import to get a fresh ID, got %+v", imported)
	}

	expectStatus(t, do(t, ts, http.MethodPost, "/api/scene", "<Nope/>"), http.StatusBadRequest)

	expectStatus(t, do(t, ts, http.MethodDelete, "/api/scene", nil), http.StatusNoContent)
	resp = do(t, ts, http.MethodGet, "/api/nodes?class=Volume", nil)
	if list := decode[[]core.NodeView](t, resp); len(list) != 0 {
		t.Fatalf("expected clear to remove volumes, got %+v", list)
	}
}

func TestArchiveAndBundleRoutes(t *testing.T) {
	unconfigured := newTestServer(t)
	expectStatus(t, do(t, unconfigured, http.MethodGet, "/api/archives", nil), http.StatusNotImplemented)
	expectStatus(t, do(t, unconfigured, http.MethodPost, "/api/bundles?key=a.xml", nil), http.StatusNotImplemented)

	archive, err := core.OpenSceneArchive(context.Background(), core.Config{ArchiveDriver: core.StorageMemory})
	if err != nil {
		t.Fatalf("open archive: %v", err)
	}
	ts := newTestServer(t, core.WithArchive(archive), core.WithBlobStore(blob.NewMemory()))
	expectStatus(t, do(t, ts, http.MethodPost, "/api/nodes", CreateNodeRequest{Class: "Volume"}), http.StatusCreated)

	expectStatus(t, do(t, ts, http.MethodPost, "/api/archives/lab", nil), http.StatusCreated)
	resp := do(t, ts, http.MethodGet, "/api/archives", nil)
	expectStatus(t, resp, http.StatusOK)
	if recs := decode[[]map[string]any](t, resp); len(recs) != 1 || recs[0]["name"] != "lab" {
		t.Fatalf("unexpected archive listing %v", recs)
	}
	expectStatus(t, do(t, ts, http.MethodPost, "/api/archives/ghost/load", nil), http.StatusNotFound)
	expectStatus(t, do(t, ts, http.MethodPost, "/api/archives/lab/load", nil), http.StatusOK)

	resp = do(t, ts, http.MethodPost, "/api/bundles", nil)
	expectStatus(t, resp, http.StatusCreated)
	if info := decode[map[string]any](t, resp); !strings.HasPrefix(info["key"].(string), "scenes/") {
		t.Fatalf("expected generated key, got %v", info["key"])
	}
	expectStatus(t, do(t, ts, http.MethodPost, "/api/bundles?key=scenes/lab.xml", nil), http.StatusCreated)
	expectStatus(t, do(t, ts, http.MethodPost, "/api/bundles?key=scenes/lab.xml", nil), http.StatusConflict)
	expectStatus(t, do(t, ts, http.MethodPost, "/api/bundles/import?key=scenes/missing.xml", nil), http.StatusNotFound)
	resp = do(t, ts, http.MethodPost, "/api/bundles/import?key=scenes/lab.xml", nil)
	expectStatus(t, resp, http.StatusOK)
	if views := decode[[]core.NodeView](t, resp); len(views) != 1 {
		t.Fatalf("expected one imported node, got %+v", views)
	}
}
