// Package hub implements a minimal Hugging Face Hub client for fetching
// single model files into a local directory, the equivalent of
// hf_hub_download(repo_id, filename, local_dir=...).
//
// Only named-file downloads are supported; bundled archives are handled by
// the weights package instead.
package hub

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strconv"

	"github.com/vbauerster/mpb/v7"
)

const (
	// DefaultEndpoint is the public Hugging Face Hub endpoint.
	DefaultEndpoint = "https://huggingface.co"

	// DefaultRevision is the git revision resolved when none is given.
	DefaultRevision = "main"
)

// Client talks to a Hugging Face Hub endpoint.
type Client struct {
	// Endpoint is the hub base URL (default https://huggingface.co).
	Endpoint string

	// Token is an optional access token sent as a Bearer credential.
	Token string

	// UserAgent identifies this client in requests.
	UserAgent string

	// Progress renders download progress bars when non-nil.
	Progress *mpb.Progress

	// HTTPClient performs requests (http.DefaultClient if nil).
	HTTPClient *http.Client
}

// DefaultClient builds a Client from the environment: HF_ENDPOINT overrides
// the endpoint and HF_TOKEN supplies the access token.
func DefaultClient() *Client {
	endpoint := os.Getenv("HF_ENDPOINT")
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}

	return &Client{
		Endpoint:  endpoint,
		Token:     os.Getenv("HF_TOKEN"),
		UserAgent: "lightning-backend/1.0",
	}
}

// DownloadParams describes a single named-file download.
type DownloadParams struct {
	// RepoID is the hub repository, e.g. "ByteDance/SDXL-Lightning".
	RepoID string

	// FileName is the file within the repository.
	FileName string

	// Revision is the git revision (default "main").
	Revision string

	// LocalDir is the directory the file is placed in, under its own name.
	LocalDir string

	// ForceDownload refetches even when the file already exists locally.
	ForceDownload bool
}

// FileMetadata describes a hub file as reported by a metadata request.
type FileMetadata struct {
	CommitHash string
	ETag       string
	Location   string
	Size       int64
}

// fileMetadata resolves size, etag and the final download location for a
// hub file via a HEAD request against the resolve endpoint.
func (c *Client) fileMetadata(ctx context.Context, repoID, revision, fileName string) (*FileMetadata, error) {
	url := fmt.Sprintf("%s/%s/resolve/%s/%s", c.Endpoint, repoID, revision, fileName)

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return nil, err
	}
	c.setHeaders(req)
	// Ask the hub for metadata headers instead of following CDN redirects.
	req.Header.Set("Accept-Encoding", "identity")

	client := c.httpClient()
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("hub: metadata request for %s/%s failed: %s", repoID, fileName, resp.Status)
	}

	meta := &FileMetadata{
		CommitHash: resp.Header.Get("X-Repo-Commit"),
		ETag:       firstNonEmpty(resp.Header.Get("X-Linked-Etag"), resp.Header.Get("ETag")),
		Location:   url,
	}

	if linked := resp.Header.Get("X-Linked-Size"); linked != "" {
		if size, err := strconv.ParseInt(linked, 10, 64); err == nil {
			meta.Size = size
		}
	}
	if meta.Size == 0 && resp.ContentLength > 0 {
		meta.Size = resp.ContentLength
	}
	if loc := resp.Header.Get("Location"); loc != "" {
		meta.Location = loc
	}

	return meta, nil
}

func (c *Client) setHeaders(req *http.Request) {
	if c.UserAgent != "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
