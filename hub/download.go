package hub

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
	"github.com/vbauerster/mpb/v7"
	"github.com/vbauerster/mpb/v7/decor"
)

// Download fetches a single named file into params.LocalDir and returns the
// local path. If the file already exists it is returned without network I/O
// unless ForceDownload is set.
//
// A file lock under LocalDir/.locks guards against two processes fetching
// the same file into a shared cache directory. Partial downloads land in an
// ".incomplete" temporary path and are renamed into place on success, so an
// interrupted fetch never leaves a truncated file behind at the final path.
func (c *Client) Download(ctx context.Context, params *DownloadParams) (string, error) {
	if params == nil || params.RepoID == "" || params.FileName == "" {
		return "", fmt.Errorf("hub: repo id and file name are required")
	}
	if params.LocalDir == "" {
		return "", fmt.Errorf("hub: local dir is required")
	}

	revision := params.Revision
	if revision == "" {
		revision = DefaultRevision
	}

	destPath := filepath.Join(params.LocalDir, params.FileName)

	if !params.ForceDownload {
		if _, err := os.Stat(destPath); err == nil {
			return destPath, nil
		}
	}

	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return "", fmt.Errorf("hub: failed to create local dir: %w", err)
	}

	meta, err := c.fileMetadata(ctx, params.RepoID, revision, params.FileName)
	if err != nil {
		return "", fmt.Errorf("hub: failed to get file metadata: %w", err)
	}

	// Lock per destination file so concurrent processes serialize the fetch.
	locksDir := filepath.Join(params.LocalDir, ".locks")
	if err := os.MkdirAll(locksDir, 0755); err != nil {
		return "", fmt.Errorf("hub: failed to create locks directory: %w", err)
	}

	fileLock := flock.New(filepath.Join(locksDir, filepath.Base(params.FileName)+".lock"))
	if err := fileLock.Lock(); err != nil {
		return "", fmt.Errorf("hub: failed to acquire lock: %w", err)
	}
	defer fileLock.Unlock()

	// Another process may have completed the download while we waited.
	if !params.ForceDownload {
		if _, err := os.Stat(destPath); err == nil {
			return destPath, nil
		}
	}

	tmpPath := destPath + ".incomplete"
	if err := c.downloadFile(ctx, meta, tmpPath, params.FileName); err != nil {
		return "", fmt.Errorf("hub: failed to download %s: %w", params.FileName, err)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		return "", fmt.Errorf("hub: failed to move downloaded file into place: %w", err)
	}

	return destPath, nil
}

// downloadFile streams a hub file to destPath, resuming a previous partial
// download when the server supports range requests.
func (c *Client) downloadFile(ctx context.Context, meta *FileMetadata, destPath, displayName string) error {
	var resumeSize int64
	if stat, err := os.Stat(destPath); err == nil {
		resumeSize = stat.Size()
	}

	flag := os.O_CREATE | os.O_WRONLY
	if resumeSize > 0 {
		flag |= os.O_APPEND
	}

	out, err := os.OpenFile(destPath, flag, 0644)
	if err != nil {
		return err
	}
	defer out.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, meta.Location, nil)
	if err != nil {
		return err
	}
	c.setHeaders(req)
	if resumeSize > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", resumeSize))
	}

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resumeSize > 0 && resp.StatusCode != http.StatusPartialContent {
		// Server ignored the range request, start over.
		resumeSize = 0
		if _, err := out.Seek(0, io.SeekStart); err != nil {
			return err
		}
		if err := out.Truncate(0); err != nil {
			return err
		}
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
		return fmt.Errorf("bad status: %s", resp.Status)
	}

	var reader io.Reader = resp.Body
	if c.Progress != nil {
		description := fmt.Sprintf("Downloading %s", displayName)
		bar := c.Progress.AddBar(
			meta.Size,
			mpb.PrependDecorators(
				decor.Name(description+": ", decor.WC{W: len(description) + 2, C: decor.DidentRight}),
				decor.Percentage(decor.WCSyncSpace),
			),
			mpb.AppendDecorators(
				decor.CountersKibiByte("%.2f / %.2f"),
				decor.EwmaETA(decor.ET_STYLE_GO, 60),
				decor.EwmaSpeed(decor.UnitKiB, "%.2f", 60),
			),
		)
		if resumeSize > 0 {
			bar.SetCurrent(resumeSize)
		}
		proxy := bar.ProxyReader(resp.Body)
		defer proxy.Close()
		defer bar.SetTotal(bar.Current(), true)
		reader = proxy
	}

	if _, err := io.Copy(out, reader); err != nil {
		return err
	}

	return out.Sync()
}
