package weights

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gofrs/flock"
	"github.com/vbauerster/mpb/v7"
	"go.uber.org/zap"

	"lightning_backend/core"
	"lightning_backend/hub"
	"lightning_backend/logging"
)

// Fetcher downloads missing weight artifacts into their cache directories.
//
// Ensure is idempotent: an artifact whose cache directory already exists is
// never refetched. A failed download is fatal to the caller; there is no
// retry and no partial-state cleanup beyond the temporary download paths.
type Fetcher struct {
	baseDir    string
	httpClient *http.Client
	hubClient  *hub.Client
	progress   *mpb.Progress
	logger     *logging.Logger
}

// FetcherOption configures a Fetcher.
type FetcherOption func(*Fetcher)

// WithHTTPClient sets the HTTP client used for archive downloads.
func WithHTTPClient(client *http.Client) FetcherOption {
	return func(f *Fetcher) {
		if client != nil {
			f.httpClient = client
		}
	}
}

// WithHubClient sets the Hugging Face Hub client used for named-file
// artifacts.
func WithHubClient(client *hub.Client) FetcherOption {
	return func(f *Fetcher) {
		if client != nil {
			f.hubClient = client
		}
	}
}

// WithProgress enables download progress bars.
func WithProgress(progress *mpb.Progress) FetcherOption {
	return func(f *Fetcher) {
		f.progress = progress
		if f.hubClient != nil {
			f.hubClient.Progress = progress
		}
	}
}

// NewFetcher creates a Fetcher rooted at baseDir. The base directory is
// created if missing.
func NewFetcher(baseDir string, logger *logging.Logger, opts ...FetcherOption) (*Fetcher, error) {
	if baseDir == "" {
		baseDir = "."
	}
	if logger == nil {
		return nil, fmt.Errorf("weights: logger cannot be nil")
	}
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("weights: failed to create base directory: %w", err)
	}

	f := &Fetcher{
		baseDir: baseDir,
		httpClient: &http.Client{
			Timeout: 0, // large archives; cancellation comes from ctx
		},
		hubClient: hub.DefaultClient(),
		logger:    logger.Named("weights"),
	}

	for _, opt := range opts {
		opt(f)
	}

	return f, nil
}

// Path returns the absolute cache path for an artifact.
func (f *Fetcher) Path(a Artifact) string {
	return filepath.Join(f.baseDir, a.Dir)
}

// Ensure makes sure an artifact exists locally, downloading it if its cache
// directory is absent. Safe to call repeatedly; only the first call per
// deployment does network I/O.
func (f *Fetcher) Ensure(ctx context.Context, a Artifact) error {
	if err := a.Validate(); err != nil {
		return err
	}

	dest := f.Path(a)
	if _, err := os.Stat(dest); err == nil {
		f.logger.Debug("artifact already cached",
			zap.String("artifact", a.Name),
			zap.String("path", dest))
		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("weights: failed to stat %s: %w", dest, err)
	}

	// Serialize with other processes sharing this cache directory.
	lock := flock.New(filepath.Join(f.baseDir, "."+a.Dir+".lock"))
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("weights: failed to lock artifact %s: %w", a.Name, err)
	}
	defer lock.Unlock()

	// Another process may have finished the fetch while we waited.
	if _, err := os.Stat(dest); err == nil {
		return nil
	}

	start := time.Now()
	f.logger.Info("downloading artifact",
		zap.String("artifact", a.Name),
		zap.String("dest", dest))

	var err error
	if a.IsArchive() {
		err = f.fetchArchive(ctx, a, dest)
	} else {
		err = f.fetchHubFile(ctx, a, dest)
	}
	if err != nil {
		return err
	}

	f.logger.Info("artifact ready",
		zap.String("artifact", a.Name),
		zap.Duration("took", time.Since(start)))
	return nil
}

// EnsureAll fetches every artifact in the set, stopping at the first
// failure.
func (f *Fetcher) EnsureAll(ctx context.Context, artifacts []Artifact) error {
	for _, a := range artifacts {
		if err := f.Ensure(ctx, a); err != nil {
			return err
		}
	}
	if f.progress != nil {
		f.progress.Wait()
	}
	return nil
}

// fetchArchive streams a remote tar bundle and extracts it into dest.
// Extraction happens into a ".partial" directory renamed into place on
// success, so an interrupted fetch leaves no half-populated cache dir.
func (f *Fetcher) fetchArchive(ctx context.Context, a Artifact, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.ArchiveURL, nil)
	if err != nil {
		return fmt.Errorf("weights: failed to create request: %w", err)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return &DownloadError{Artifact: a.Name, URL: a.ArchiveURL, Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &DownloadError{
			Artifact: a.Name,
			URL:      a.ArchiveURL,
			Cause:    fmt.Errorf("unexpected status: %s", resp.Status),
		}
	}

	if resp.ContentLength > 0 {
		f.logger.Info("archive size",
			zap.String("artifact", a.Name),
			zap.String("size", humanize.IBytes(uint64(resp.ContentLength))))
	}

	partial := dest + ".partial"
	if err := os.RemoveAll(partial); err != nil {
		return fmt.Errorf("weights: failed to clear partial dir: %w", err)
	}

	body := f.wrapProgress(resp, a.Name)
	defer body.Close()
	if err := extractTar(body, partial); err != nil {
		_ = os.RemoveAll(partial)
		return &DownloadError{Artifact: a.Name, URL: a.ArchiveURL, Cause: err}
	}

	if err := os.Rename(partial, dest); err != nil {
		_ = os.RemoveAll(partial)
		return fmt.Errorf("weights: failed to move extracted archive into place: %w", err)
	}

	return nil
}

// fetchHubFile downloads a single named file from the Hugging Face Hub into
// dest, optionally verifying its checksum.
func (f *Fetcher) fetchHubFile(ctx context.Context, a Artifact, dest string) error {
	path, err := f.hubClient.Download(ctx, &hub.DownloadParams{
		RepoID:   a.HubRepoID,
		FileName: a.HubFileName,
		LocalDir: dest,
	})
	if err != nil {
		return &DownloadError{Artifact: a.Name, URL: a.HubRepoID + "/" + a.HubFileName, Cause: err}
	}

	if a.SHA256 != "" {
		ok, err := core.VerifyChecksum(path, a.SHA256)
		if err != nil {
			return fmt.Errorf("weights: checksum verification failed for %s: %w", a.Name, err)
		}
		if !ok {
			return fmt.Errorf("weights: checksum mismatch for %s: file may be corrupted", a.Name)
		}
	}

	f.logger.Debug("hub file downloaded",
		zap.String("artifact", a.Name),
		zap.String("path", path))
	return nil
}

// DownloadError reports a failed artifact download. Setup must treat this as
// unrecoverable for the process instance.
type DownloadError struct {
	Artifact string
	URL      string
	Cause    error
}

func (e *DownloadError) Error() string {
	return fmt.Sprintf("weights: download of %s from %s failed: %v", e.Artifact, e.URL, e.Cause)
}

func (e *DownloadError) Unwrap() error {
	return e.Cause
}
