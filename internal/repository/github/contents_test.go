package github_test

import (
	"context"
	"crypto/sha1"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"

	gh "github.com/google/go-github/v66/github"

	"github.com/msomdec/microlearn/internal/domain"
	"github.com/msomdec/microlearn/internal/repository/github"
)

var _ domain.BlobStore = (*github.ContentsStore)(nil)

// fakeContents serves the subset of the contents API the store uses.
type fakeContents struct {
	mu       sync.Mutex
	files    map[string][]byte
	messages []string
	refs     []string
	puts     int
}

func (f *fakeContents) sha(path string) string {
	sum := sha1.Sum(f.files[path])
	return hex.EncodeToString(sum[:])
}

func (f *fakeContents) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/acme/records/contents/{path...}", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.refs = append(f.refs, r.URL.Query().Get("ref"))

		path := r.PathValue("path")
		data, ok := f.files[path]
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]string{"message": "Not Found"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"type":     "file",
			"name":     path,
			"path":     path,
			"encoding": "base64",
			"content":  base64.StdEncoding.EncodeToString(data),
			"sha":      f.sha(path),
		})
	})
	mux.HandleFunc("PUT /repos/acme/records/contents/{path...}", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.puts++

		var body struct {
			Message string `json:"message"`
			Content []byte `json:"content"`
			SHA     string `json:"sha"`
			Branch  string `json:"branch"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"message": err.Error()})
			return
		}
		f.messages = append(f.messages, body.Message)
		f.refs = append(f.refs, body.Branch)

		path := r.PathValue("path")
		_, exists := f.files[path]
		switch {
		case exists && body.SHA == "":
			writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"message": `"sha" wasn't supplied.`})
			return
		case exists && body.SHA != f.sha(path):
			writeJSON(w, http.StatusConflict, map[string]string{"message": "is at a different sha"})
			return
		}

		f.files[path] = body.Content
		status := http.StatusOK
		if !exists {
			status = http.StatusCreated
		}
		writeJSON(w, status, map[string]any{
			"content": map[string]string{"name": path, "path": path, "sha": f.sha(path)},
			"commit":  map[string]string{"sha": "c0ffee"},
		})
	})
	return mux
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func setupStore(t *testing.T) (*github.ContentsStore, *fakeContents) {
	t.Helper()
	fake := &fakeContents{files: make(map[string][]byte)}
	srv := httptest.NewServer(fake.handler())
	t.Cleanup(srv.Close)

	client := gh.NewClient(srv.Client())
	base, err := url.Parse(srv.URL + "/")
	if err != nil {
		t.Fatalf("parse url: %v", err)
	}
	client.BaseURL = base

	store := github.NewContentsStoreWithClient(client, github.Config{
		Owner:  "acme",
		Repo:   "records",
		Branch: "main",
	})
	return store, fake
}

func TestContentsStoreMissing(t *testing.T) {
	store, _ := setupStore(t)

	_, _, err := store.Get(context.Background(), "progress.json.aes")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestContentsStoreCreateThenUpdate(t *testing.T) {
	store, fake := setupStore(t)
	ctx := context.Background()

	rev1, err := store.Put(ctx, "progress.json.aes", []byte("first"), "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	data, rev, err := store.Get(ctx, "progress.json.aes")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(data) != "first" {
		t.Fatalf("got %q, want %q", data, "first")
	}
	if rev != rev1 {
		t.Fatalf("revision = %s, want %s", rev, rev1)
	}

	if _, err := store.Put(ctx, "progress.json.aes", []byte("second"), rev); err != nil {
		t.Fatalf("update: %v", err)
	}
	if got := string(fake.files["progress.json.aes"]); got != "second" {
		t.Fatalf("stored %q, want %q", got, "second")
	}

	want := []string{"Create progress file", "Update progress"}
	if len(fake.messages) != len(want) {
		t.Fatalf("messages = %v, want %v", fake.messages, want)
	}
	for i := range want {
		if fake.messages[i] != want[i] {
			t.Fatalf("messages = %v, want %v", fake.messages, want)
		}
	}
	for _, ref := range fake.refs {
		if ref != "main" {
			t.Fatalf("expected every request on branch main, got %v", fake.refs)
		}
	}
}

func TestContentsStoreConflicts(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()

	rev1, err := store.Put(ctx, "progress.json.aes", []byte("first"), "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := store.Put(ctx, "progress.json.aes", []byte("dup"), ""); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("create over existing: expected ErrConflict, got %v", err)
	}

	if _, err := store.Put(ctx, "progress.json.aes", []byte("second"), rev1); err != nil {
		t.Fatalf("update: %v", err)
	}
	if _, err := store.Put(ctx, "progress.json.aes", []byte("stale"), rev1); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("stale update: expected ErrConflict, got %v", err)
	}
}

func TestContentsStoreServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusBadGateway, map[string]string{"message": "upstream"})
	}))
	t.Cleanup(srv.Close)

	client := gh.NewClient(srv.Client())
	client.BaseURL, _ = url.Parse(srv.URL + "/")
	store := github.NewContentsStoreWithClient(client, github.Config{Owner: "acme", Repo: "records"})

	_, _, err := store.Get(context.Background(), "progress.json.aes")
	if err == nil {
		t.Fatal("expected error")
	}
	if errors.Is(err, domain.ErrNotFound) {
		t.Fatal("server errors must not read as a missing document")
	}
}
