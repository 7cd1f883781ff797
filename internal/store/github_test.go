package store

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/JingZHANG-CUHKSZ/todolist/internal/models"
)

// fakeContentsAPI mimics the slice of the contents API this adapter uses:
// per-file GET/PUT with sha tokens and directory listings.
type fakeContentsAPI struct {
	mu      sync.Mutex
	files   map[string]fakeFile // path -> file
	shaSeq  int
	token   string
	lastPut map[string]any
}

type fakeFile struct {
	content string // base64
	sha     string
}

func newFakeContentsAPI() *fakeContentsAPI {
	return &fakeContentsAPI{files: make(map[string]fakeFile), token: "good-token"}
}

func (f *fakeContentsAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("Authorization") != "token "+f.token {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	const prefix = "/repos/someone/todos/contents/"
	if !strings.HasPrefix(r.URL.Path, prefix) {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	path := strings.TrimPrefix(r.URL.Path, prefix)

	f.mu.Lock()
	defer f.mu.Unlock()

	switch r.Method {
	case http.MethodGet:
		if file, ok := f.files[path]; ok {
			json.NewEncoder(w).Encode(map[string]string{
				"content": file.content,
				"sha":     file.sha,
			})
			return
		}
		// Directory listing.
		var entries []map[string]string
		for p := range f.files {
			if strings.HasPrefix(p, path+"/") {
				entries = append(entries, map[string]string{"path": p, "type": "file"})
			}
		}
		if len(entries) == 0 {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		json.NewEncoder(w).Encode(entries)

	case http.MethodPut:
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		f.lastPut = body
		existing, exists := f.files[path]
		sha, _ := body["sha"].(string)
		if exists && sha != existing.sha {
			w.WriteHeader(http.StatusConflict)
			return
		}
		f.shaSeq++
		newSHA := fmt.Sprintf("sha-%d", f.shaSeq)
		f.files[path] = fakeFile{content: body["content"].(string), sha: newSHA}
		json.NewEncoder(w).Encode(map[string]any{
			"content": map[string]string{"sha": newSHA},
		})

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func newTestGitHubStore(t *testing.T, api *fakeContentsAPI, token string) *GitHubStore {
	t.Helper()
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)
	return NewGitHubStore(GitHubConfig{
		Owner:   "someone",
		Repo:    "todos",
		Branch:  "main",
		Token:   token,
		APIBase: srv.URL,
	})
}

func testDoc(texts ...string) *models.Document {
	room := &models.Room{ID: "ABC123", Items: []models.Item{}}
	for i := len(texts) - 1; i >= 0; i-- {
		room.Add(texts[i])
	}
	return models.NewDocument(room)
}

func TestGitHubGetMissingIsNotFound(t *testing.T) {
	gs := newTestGitHubStore(t, newFakeContentsAPI(), "good-token")
	_, _, err := gs.Get(context.Background(), "data/group-NOPE.json")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestGitHubPutThenGetRoundTrips(t *testing.T) {
	api := newFakeContentsAPI()
	gs := newTestGitHubStore(t, api, "good-token")
	ctx := context.Background()

	doc := testDoc("买牛奶", "walk dog")
	ver, err := gs.Put(ctx, "data/group-ABC123.json", doc, "")
	if err != nil {
		t.Fatalf("create put failed: %v", err)
	}
	if ver == "" {
		t.Fatal("put must return the new sha")
	}
	if _, hasSHA := api.lastPut["sha"]; hasSHA {
		t.Error("create put must not send a sha")
	}
	if api.lastPut["branch"] != "main" {
		t.Errorf("put should carry the branch, sent %v", api.lastPut["branch"])
	}

	got, gotVer, err := gs.Get(ctx, "data/group-ABC123.json")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if gotVer != ver {
		t.Errorf("get sha %q does not match put sha %q", gotVer, ver)
	}
	if got.RoomID != "ABC123" || !models.ItemsEqual(got.Todos, doc.Todos) {
		t.Errorf("document did not survive the round trip: %+v", got)
	}
}

func TestGitHubPutStaleShaIsConflict(t *testing.T) {
	gs := newTestGitHubStore(t, newFakeContentsAPI(), "good-token")
	ctx := context.Background()

	ver, err := gs.Put(ctx, "data/group-ABC123.json", testDoc("one"), "")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := gs.Put(ctx, "data/group-ABC123.json", testDoc("two"), "stale-sha"); !errors.Is(err, ErrConflict) {
		t.Errorf("expected ErrConflict for a stale sha, got %v", err)
	}
	if _, err := gs.Put(ctx, "data/group-ABC123.json", testDoc("two"), ver); err != nil {
		t.Errorf("put with the current sha should succeed, got %v", err)
	}
}

func TestGitHubBadTokenIsUnauthorized(t *testing.T) {
	gs := newTestGitHubStore(t, newFakeContentsAPI(), "wrong-token")
	if _, _, err := gs.Get(context.Background(), "data/group-ABC123.json"); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("expected ErrUnauthorized, got %v", err)
	}
	if _, err := gs.Put(context.Background(), "data/group-ABC123.json", testDoc("x"), ""); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("expected ErrUnauthorized on put, got %v", err)
	}
}

func TestGitHubListKeys(t *testing.T) {
	api := newFakeContentsAPI()
	gs := newTestGitHubStore(t, api, "good-token")
	ctx := context.Background()

	if _, err := gs.Put(ctx, "data/group-ABC123.json", testDoc("a"), ""); err != nil {
		t.Fatal(err)
	}
	if _, err := gs.Put(ctx, "data/group-XYZ234.json", testDoc("b"), ""); err != nil {
		t.Fatal(err)
	}

	keys, err := gs.ListKeys(ctx, "data/")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(keys) != 2 {
		t.Fatalf("expected 2 keys, got %v", keys)
	}

	// Missing directories fail open.
	keys, err = gs.ListKeys(ctx, "elsewhere/")
	if err != nil || keys != nil {
		t.Errorf("missing prefix should yield no keys and no error, got %v / %v", keys, err)
	}
}

func TestGitHubGetDecodesWrappedBase64(t *testing.T) {
	api := newFakeContentsAPI()
	raw, _ := json.Marshal(testDoc("wrapped"))
	encoded := base64.StdEncoding.EncodeToString(raw)
	// The real API wraps base64 content in 60-column lines.
	var wrapped strings.Builder
	for i := 0; i < len(encoded); i += 60 {
		end := i + 60
		if end > len(encoded) {
			end = len(encoded)
		}
		wrapped.WriteString(encoded[i:end])
		wrapped.WriteString("\n")
	}
	api.files["data/group-ABC123.json"] = fakeFile{content: wrapped.String(), sha: "sha-wrapped"}

	gs := newTestGitHubStore(t, api, "good-token")
	doc, ver, err := gs.Get(context.Background(), "data/group-ABC123.json")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if ver != "sha-wrapped" || len(doc.Todos) != 1 || doc.Todos[0].Text != "wrapped" {
		t.Errorf("wrapped content mishandled: %+v", doc)
	}
}
