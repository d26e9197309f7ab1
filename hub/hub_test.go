package hub

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
)

// fakeHub serves a single file at the resolve endpoint and counts requests.
type fakeHub struct {
	content  []byte
	heads    int64
	gets     int64
	etag     string
	noRanges bool
}

func (f *fakeHub) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodHead:
			atomic.AddInt64(&f.heads, 1)
			w.Header().Set("X-Repo-Commit", "abc123")
			w.Header().Set("X-Linked-Etag", f.etag)
			w.Header().Set("X-Linked-Size", strconv.Itoa(len(f.content)))
			w.WriteHeader(http.StatusOK)

		case http.MethodGet:
			atomic.AddInt64(&f.gets, 1)
			if rng := r.Header.Get("Range"); rng != "" && !f.noRanges {
				start, err := parseRangeStart(rng)
				if err == nil && start > 0 && start < int64(len(f.content)) {
					w.WriteHeader(http.StatusPartialContent)
					w.Write(f.content[start:])
					return
				}
			}
			w.WriteHeader(http.StatusOK)
			w.Write(f.content)

		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})
}

// parseRangeStart reads the "bytes=N-" form the client sends.
func parseRangeStart(rng string) (int64, error) {
	return strconv.ParseInt(strings.TrimSuffix(strings.TrimPrefix(rng, "bytes="), "-"), 10, 64)
}

func newTestClient(t *testing.T, f *fakeHub) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(f.handler())
	t.Cleanup(srv.Close)
	return &Client{Endpoint: srv.URL, UserAgent: "test"}, srv
}

func TestDownload_FetchesFile(t *testing.T) {
	f := &fakeHub{content: []byte("model weights"), etag: "\"etag1\""}
	client, _ := newTestClient(t, f)

	localDir := t.TempDir()
	path, err := client.Download(context.Background(), &DownloadParams{
		RepoID:   "ByteDance/SDXL-Lightning",
		FileName: "unet.safetensors",
		LocalDir: localDir,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if path != filepath.Join(localDir, "unet.safetensors") {
		t.Errorf("unexpected path: %s", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "model weights" {
		t.Errorf("content = %q", data)
	}
	if f.heads != 1 || f.gets != 1 {
		t.Errorf("requests: %d HEAD, %d GET, want 1/1", f.heads, f.gets)
	}
}

func TestDownload_SkipsExistingFile(t *testing.T) {
	f := &fakeHub{content: []byte("model weights")}
	client, _ := newTestClient(t, f)

	localDir := t.TempDir()
	existing := filepath.Join(localDir, "unet.safetensors")
	if err := os.WriteFile(existing, []byte("already here"), 0644); err != nil {
		t.Fatal(err)
	}

	path, err := client.Download(context.Background(), &DownloadParams{
		RepoID:   "ByteDance/SDXL-Lightning",
		FileName: "unet.safetensors",
		LocalDir: localDir,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if f.heads != 0 || f.gets != 0 {
		t.Errorf("existing file should skip all network I/O, saw %d HEAD %d GET", f.heads, f.gets)
	}
	data, _ := os.ReadFile(path)
	if string(data) != "already here" {
		t.Errorf("existing file was overwritten: %q", data)
	}
}

func TestDownload_ForceRefetches(t *testing.T) {
	f := &fakeHub{content: []byte("fresh weights")}
	client, _ := newTestClient(t, f)

	localDir := t.TempDir()
	existing := filepath.Join(localDir, "unet.safetensors")
	if err := os.WriteFile(existing, []byte("stale"), 0644); err != nil {
		t.Fatal(err)
	}

	path, err := client.Download(context.Background(), &DownloadParams{
		RepoID:        "ByteDance/SDXL-Lightning",
		FileName:      "unet.safetensors",
		LocalDir:      localDir,
		ForceDownload: true,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	data, _ := os.ReadFile(path)
	if string(data) != "fresh weights" {
		t.Errorf("content = %q, want fresh weights", data)
	}
}

func TestDownload_ResumesPartialFile(t *testing.T) {
	f := &fakeHub{content: []byte("0123456789")}
	client, _ := newTestClient(t, f)

	localDir := t.TempDir()
	// A previous interrupted run left the first four bytes behind.
	if err := os.WriteFile(filepath.Join(localDir, "unet.safetensors.incomplete"), []byte("0123"), 0644); err != nil {
		t.Fatal(err)
	}

	path, err := client.Download(context.Background(), &DownloadParams{
		RepoID:   "ByteDance/SDXL-Lightning",
		FileName: "unet.safetensors",
		LocalDir: localDir,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	data, _ := os.ReadFile(path)
	if string(data) != "0123456789" {
		t.Errorf("resumed content = %q, want 0123456789", data)
	}
}

func TestDownload_RestartsWhenRangeIgnored(t *testing.T) {
	f := &fakeHub{content: []byte("0123456789"), noRanges: true}
	client, _ := newTestClient(t, f)

	localDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(localDir, "unet.safetensors.incomplete"), []byte("0123"), 0644); err != nil {
		t.Fatal(err)
	}

	path, err := client.Download(context.Background(), &DownloadParams{
		RepoID:   "ByteDance/SDXL-Lightning",
		FileName: "unet.safetensors",
		LocalDir: localDir,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	data, _ := os.ReadFile(path)
	if string(data) != "0123456789" {
		t.Errorf("content = %q, want full body", data)
	}
}

func TestDownload_MissingParams(t *testing.T) {
	client := &Client{Endpoint: "http://unused"}

	tests := []struct {
		name   string
		params *DownloadParams
	}{
		{"nil params", nil},
		{"no repo", &DownloadParams{FileName: "f", LocalDir: "d"}},
		{"no file", &DownloadParams{RepoID: "r", LocalDir: "d"}},
		{"no local dir", &DownloadParams{RepoID: "r", FileName: "f"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := client.Download(context.Background(), tt.params); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestDownload_CanceledContext(t *testing.T) {
	f := &fakeHub{content: []byte("model weights")}
	client, _ := newTestClient(t, f)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.Download(ctx, &DownloadParams{
		RepoID:   "ByteDance/SDXL-Lightning",
		FileName: "unet.safetensors",
		LocalDir: t.TempDir(),
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got: %v", err)
	}
}

func TestDownload_MetadataFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	client := &Client{Endpoint: srv.URL}
	_, err := client.Download(context.Background(), &DownloadParams{
		RepoID:   "private/repo",
		FileName: "unet.safetensors",
		LocalDir: t.TempDir(),
	})
	if err == nil {
		t.Error("expected error for unauthorized metadata request")
	}
}

func TestDefaultClient_EnvOverrides(t *testing.T) {
	t.Setenv("HF_ENDPOINT", "https://mirror.example.com")
	t.Setenv("HF_TOKEN", "hf_testtoken")

	c := DefaultClient()
	if c.Endpoint != "https://mirror.example.com" {
		t.Errorf("endpoint = %q", c.Endpoint)
	}
	if c.Token != "hf_testtoken" {
		t.Errorf("token = %q", c.Token)
	}
}
