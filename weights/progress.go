package weights

import (
	"fmt"
	"io"
	"net/http"

	"github.com/vbauerster/mpb/v7"
	"github.com/vbauerster/mpb/v7/decor"
)

// wrapProgress attaches a progress bar to an archive download body when
// progress rendering is enabled. The returned reader must be closed by the
// caller; closing it finalizes the bar.
func (f *Fetcher) wrapProgress(resp *http.Response, name string) io.ReadCloser {
	if f.progress == nil || resp.ContentLength <= 0 {
		return io.NopCloser(resp.Body)
	}

	description := fmt.Sprintf("Downloading %s", name)
	bar := f.progress.AddBar(
		resp.ContentLength,
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

	return bar.ProxyReader(resp.Body)
}
