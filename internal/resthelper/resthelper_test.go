package resthelper

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/acoustic-content-samples/wchtools-cli-sub005/internal/artifact"
	"github.com/acoustic-content-samples/wchtools-cli-sub005/internal/hashes"
	"github.com/acoustic-content-samples/wchtools-cli-sub005/internal/retry"
)

func testExecutor(t *testing.T) *retry.Executor {
	t.Helper()
	return retry.NewExecutor(retry.Config{
		MaxAttempts: 2,
		MinTimeout:  time.Millisecond,
		MaxTimeout:  time.Millisecond,
	}, nil)
}

func newTestHelper(t *testing.T, server *httptest.Server) *Helper {
	t.Helper()
	desc := TypeDescriptor{
		Name:         "types",
		ArtifactName: "type",
		Endpoint:     "/authoring/v1/types",
	}
	return New(desc, server.URL, t.TempDir(), server.Client(), testExecutor(t), nil)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func testContext(t *testing.T) *artifact.Context {
	t.Helper()
	return artifact.NewContext("t1", artifact.TierStandard, nil)
}

func TestListRemoteItemsPaginates(t *testing.T) {
	// Two full pages then a short one; the helper follows offsets until
	// the short page.
	var offsets []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		offset := r.URL.Query().Get("offset")
		offsets = append(offsets, offset)

		offsetNum, _ := strconv.Atoi(offset)
		page := map[string]any{"offset": offsetNum, "limit": 2}
		switch offset {
		case "0":
			page["items"] = []map[string]any{
				{"id": "a", "name": "a", "path": "types/a.json"},
				{"id": "b", "name": "b", "path": "types/b.json"},
			}
		case "2":
			page["items"] = []map[string]any{
				{"id": "c", "name": "c", "path": "types/c.json"},
			}
		default:
			page["items"] = []map[string]any{}
		}
		writeJSON(w, http.StatusOK, page)
	}))
	defer server.Close()

	h := newTestHelper(t, server)
	items, err := h.ListRemoteItems(context.Background(), testContext(t), artifact.ListOptions{Limit: 2})
	if err != nil {
		t.Fatalf("ListRemoteItems failed: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("got %d items, want 3", len(items))
	}
	if len(offsets) != 2 || offsets[0] != "0" || offsets[1] != "2" {
		t.Errorf("requested offsets %v, want [0 2]", offsets)
	}
}

func TestPullItemWritesLocalDocument(t *testing.T) {
	doc := map[string]any{
		"id": "t1", "name": "article", "path": "types/article.json", "rev": "3-abc",
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/authoring/v1/types/t1" {
			writeJSON(w, http.StatusNotFound, map[string]any{"code": 1, "message": "not found"})
			return
		}
		writeJSON(w, http.StatusOK, doc)
	}))
	defer server.Close()

	h := newTestHelper(t, server)
	pulled, err := h.PullItem(context.Background(), testContext(t), artifact.Item{ID: "t1"}, artifact.PullOptions{})
	if err != nil {
		t.Fatalf("PullItem failed: %v", err)
	}
	if pulled.Modified != "3-abc" {
		t.Errorf("Modified = %q, want the service revision", pulled.Modified)
	}

	data, err := os.ReadFile(filepath.Join(h.dir, "types", "article.json"))
	if err != nil {
		t.Fatalf("local document not written: %v", err)
	}
	var stored map[string]any
	if err := json.Unmarshal(data, &stored); err != nil {
		t.Fatalf("local document not valid JSON: %v", err)
	}
	if stored["name"] != "article" {
		t.Errorf("stored document %v missing fields", stored)
	}
}

// writeLocalDoc seeds a local document and returns its content hash.
func writeLocalDoc(t *testing.T, h *Helper, relPath string, doc map[string]any) string {
	t.Helper()
	path := filepath.Join(h.dir, filepath.FromSlash(relPath))
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	data, err := json.Marshal(doc)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}
	return hashes.MD5Sum(data)
}

func TestPushItemFallsBackToCreateOn404(t *testing.T) {
	var methods []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		methods = append(methods, r.Method)
		switch r.Method {
		case http.MethodHead:
			w.WriteHeader(http.StatusNotFound)
		case http.MethodPut:
			writeJSON(w, http.StatusNotFound, map[string]any{"code": 2, "message": "item not found"})
		case http.MethodPost:
			writeJSON(w, http.StatusCreated, map[string]any{"id": "fresh", "name": "article", "rev": "1-new"})
		}
	}))
	defer server.Close()

	h := newTestHelper(t, server)
	writeLocalDoc(t, h, "types/article.json", map[string]any{"id": "stale", "name": "article"})

	pushed, err := h.PushItem(context.Background(), testContext(t),
		artifact.Item{Path: "types/article.json"}, artifact.PushOptions{})
	if err != nil {
		t.Fatalf("PushItem failed: %v", err)
	}
	if pushed.ID != "fresh" {
		t.Errorf("pushed ID = %q, want the recreated id", pushed.ID)
	}
	if len(methods) != 3 || methods[1] != http.MethodPut || methods[2] != http.MethodPost {
		t.Errorf("request sequence %v, want [HEAD PUT POST]", methods)
	}
}

func TestPushItemSkipsUploadWhenHashesMatch(t *testing.T) {
	var localMD5 string
	var putSeen bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodHead:
			w.Header().Set("Content-MD5", localMD5)
			w.WriteHeader(http.StatusOK)
		case http.MethodPut:
			putSeen = true
			writeJSON(w, http.StatusOK, map[string]any{"id": "t1", "rev": "2"})
		}
	}))
	defer server.Close()

	h := newTestHelper(t, server)
	localMD5 = writeLocalDoc(t, h, "types/article.json", map[string]any{"id": "t1", "name": "article"})

	pushed, err := h.PushItem(context.Background(), testContext(t),
		artifact.Item{Path: "types/article.json"}, artifact.PushOptions{})
	if err != nil {
		t.Fatalf("PushItem failed: %v", err)
	}
	if putSeen {
		t.Error("identical content was re-uploaded")
	}
	if pushed.ID != "t1" {
		t.Errorf("pushed ID = %q", pushed.ID)
	}
}

func TestPushItemCreateOnlySurfacesConflict(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("create-only push used %s", r.Method)
		}
		writeJSON(w, http.StatusConflict, map[string]any{"code": 5, "message": "conflict"})
	}))
	defer server.Close()

	h := newTestHelper(t, server)
	writeLocalDoc(t, h, "types/article.json", map[string]any{"id": "t1", "name": "article"})

	_, err := h.PushItem(context.Background(), testContext(t),
		artifact.Item{Path: "types/article.json"}, artifact.PushOptions{CreateOnly: true})
	if err == nil {
		t.Fatal("expected conflict error")
	}
	var st *retry.StatusError
	if !errors.As(err, &st) || st.StatusCode != http.StatusConflict {
		t.Errorf("expected a 409 status error, got %v", err)
	}
}

func TestListLocalItemsUsesContentHashMarker(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	defer server.Close()

	h := newTestHelper(t, server)
	writeLocalDoc(t, h, "types/a.json", map[string]any{"id": "a", "name": "a"})
	writeLocalDoc(t, h, "types/sub/b.json", map[string]any{"id": "b", "name": "b"})

	items, err := h.ListLocalItems(context.Background(), testContext(t), artifact.ListOptions{})
	if err != nil {
		t.Fatalf("ListLocalItems failed: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("got %d items, want 2", len(items))
	}
	for _, it := range items {
		if it.Modified == "" || it.Modified != it.MD5 {
			t.Errorf("item %s marker %q should be its content hash", it.Path, it.Modified)
		}
	}
}

func TestListLocalItemsMissingDirectory(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	defer server.Close()

	h := newTestHelper(t, server)
	items, err := h.ListLocalItems(context.Background(), testContext(t), artifact.ListOptions{})
	if err != nil {
		t.Fatalf("missing directory should enumerate empty, got %v", err)
	}
	if len(items) != 0 {
		t.Errorf("got %d items from a missing directory", len(items))
	}
	if h.DoesDirectoryExist(testContext(t)) {
		t.Error("DoesDirectoryExist should be false for a missing directory")
	}
}

func TestDeleteLocalItemIsIdempotent(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	defer server.Close()

	h := newTestHelper(t, server)
	writeLocalDoc(t, h, "types/a.json", map[string]any{"id": "a"})

	item := artifact.Item{Path: "types/a.json"}
	if err := h.DeleteLocalItem(context.Background(), testContext(t), item); err != nil {
		t.Fatalf("first delete failed: %v", err)
	}
	if err := h.DeleteLocalItem(context.Background(), testContext(t), item); err != nil {
		t.Errorf("second delete should be a no-op, got %v", err)
	}
}

func TestSiteScopedRequestsCarrySiteID(t *testing.T) {
	var siteID string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		siteID = r.URL.Query().Get("siteId")
		writeJSON(w, http.StatusOK, map[string]any{"items": []map[string]any{}})
	}))
	defer server.Close()

	desc := TypeDescriptor{
		Name: "pages", ArtifactName: "page",
		Endpoint: "/authoring/v1/pages", SiteScoped: true,
	}
	h := New(desc, server.URL, t.TempDir(), server.Client(), testExecutor(t), nil)

	actx := testContext(t)
	sctx := actx.ForSite(artifact.Site{ID: "site-42", Status: "ready"})
	if _, err := h.ListRemoteItems(context.Background(), sctx, artifact.ListOptions{}); err != nil {
		t.Fatalf("ListRemoteItems failed: %v", err)
	}
	if siteID != "site-42" {
		t.Errorf("siteId query = %q, want site-42", siteID)
	}
}

func TestPushItemKeepsLocalMarkerForChangeTracking(t *testing.T) {
	// The markers PushItem returns are what the change store records, so
	// they must describe the local document rather than the revision the
	// service assigned. Otherwise an unchanged item is selected again on
	// every modified-only run.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodHead:
			w.WriteHeader(http.StatusNotFound)
		case http.MethodPut:
			writeJSON(w, http.StatusOK, map[string]any{"id": "t1", "name": "article", "rev": "7-remote"})
		}
	}))
	defer server.Close()

	h := newTestHelper(t, server)
	writeLocalDoc(t, h, "types/article.json", map[string]any{"id": "t1", "name": "article"})

	items, err := h.ListLocalModifiedItems(context.Background(), testContext(t), artifact.ListOptions{})
	if err != nil || len(items) != 1 {
		t.Fatalf("local enumeration: %v items, err %v", len(items), err)
	}
	local := items[0]

	pushed, err := h.PushItem(context.Background(), testContext(t), local, artifact.PushOptions{})
	if err != nil {
		t.Fatalf("PushItem failed: %v", err)
	}
	if pushed.Modified != local.Modified || pushed.MD5 != local.MD5 {
		t.Fatalf("pushed markers (%q, %q) differ from local (%q, %q)",
			pushed.Modified, pushed.MD5, local.Modified, local.MD5)
	}

	store, err := hashes.Open(filepath.Join(t.TempDir(), "hashes.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	if err := store.SetLastPushTimestamp(context.Background(), "t1", pushed.Path, pushed.Modified, pushed.MD5); err != nil {
		t.Fatal(err)
	}

	// Re-enumerate the unchanged document: it must not look modified.
	again, err := h.ListLocalModifiedItems(context.Background(), testContext(t), artifact.ListOptions{})
	if err != nil || len(again) != 1 {
		t.Fatalf("second enumeration: %v items, err %v", len(again), err)
	}
	modified, err := store.IsLocalModified(context.Background(), "t1", again[0].Path, again[0].Modified)
	if err != nil {
		t.Fatal(err)
	}
	if modified {
		t.Error("unchanged document reported as modified after a recorded push")
	}
}

func TestCreatePersistsAssignedID(t *testing.T) {
	// A create assigns the remote id; it must be folded back into the
	// local document so the next push updates instead of creating a
	// duplicate.
	var methods []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		methods = append(methods, r.Method)
		switch r.Method {
		case http.MethodHead:
			w.WriteHeader(http.StatusNotFound)
		case http.MethodPost:
			writeJSON(w, http.StatusCreated, map[string]any{"id": "assigned-1", "name": "article", "rev": "1-new"})
		case http.MethodPut:
			writeJSON(w, http.StatusOK, map[string]any{"id": "assigned-1", "name": "article", "rev": "2-new"})
		}
	}))
	defer server.Close()

	h := newTestHelper(t, server)
	writeLocalDoc(t, h, "types/article.json", map[string]any{"name": "article"})

	pushed, err := h.PushItem(context.Background(), testContext(t),
		artifact.Item{Path: "types/article.json"}, artifact.PushOptions{})
	if err != nil {
		t.Fatalf("first PushItem failed: %v", err)
	}
	if pushed.ID != "assigned-1" {
		t.Fatalf("pushed ID = %q, want the assigned id", pushed.ID)
	}

	data, err := os.ReadFile(filepath.Join(h.dir, "types", "article.json"))
	if err != nil {
		t.Fatal(err)
	}
	var stored map[string]any
	if err := json.Unmarshal(data, &stored); err != nil {
		t.Fatal(err)
	}
	if stored["id"] != "assigned-1" {
		t.Errorf("local document id = %v, want the assigned id persisted", stored["id"])
	}
	if pushed.MD5 != hashes.MD5Sum(mustIndent(t, stored)) {
		t.Errorf("pushed markers not recomputed from the rewritten document")
	}

	// The second push now has an id and takes the update path.
	if _, err := h.PushItem(context.Background(), testContext(t),
		artifact.Item{Path: "types/article.json"}, artifact.PushOptions{}); err != nil {
		t.Fatalf("second PushItem failed: %v", err)
	}
	want := []string{http.MethodPost, http.MethodHead, http.MethodPut}
	if len(methods) != len(want) || methods[0] != want[0] || methods[1] != want[1] || methods[2] != want[2] {
		t.Errorf("request sequence %v, want %v", methods, want)
	}
}

// mustIndent re-encodes a document the way writeLocal stores it.
func mustIndent(t *testing.T, doc map[string]any) []byte {
	t.Helper()
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func TestPushItemUploadsWhenRemoteHashUnknown(t *testing.T) {
	// A HEAD without Content-MD5 means the remote hash is unknown; the
	// upload must proceed even though both sides compare as strings.
	var putSeen bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodHead:
			w.WriteHeader(http.StatusOK)
		case http.MethodPut:
			putSeen = true
			writeJSON(w, http.StatusOK, map[string]any{"id": "t1", "rev": "2"})
		}
	}))
	defer server.Close()

	h := newTestHelper(t, server)
	writeLocalDoc(t, h, "types/article.json", map[string]any{"id": "t1", "name": "article"})

	if _, err := h.PushItem(context.Background(), testContext(t),
		artifact.Item{Path: "types/article.json"}, artifact.PushOptions{}); err != nil {
		t.Fatalf("PushItem failed: %v", err)
	}
	if !putSeen {
		t.Error("upload skipped although the remote hash was unknown")
	}
}
