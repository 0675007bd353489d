package capture

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/rs/zerolog/log"

	"github.com/Rorqualx/gatecap/internal/fsutil"
)

// DownloadSink is the third safety net for file transfers: the browser's
// native download machinery. The CDP interceptor normally wins; anything
// that still reaches the browser as a download is renamed into downloads/
// unless urlToFile already claims the URL.
type DownloadSink struct {
	page   *rod.Page
	outDir string
	res    *ResourceData

	mu      sync.Mutex
	started map[string]downloadInfo // guid -> info
}

type downloadInfo struct {
	url       string
	suggested string
}

// AttachDownloadSink enables browser downloads into the session's downloads
// directory and tracks completion events.
func AttachDownloadSink(page *rod.Page, outDir string, res *ResourceData) (*DownloadSink, error) {
	dir := filepath.Join(outDir, DownloadsDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	browser := page.Browser()
	err := proto.BrowserSetDownloadBehavior{
		Behavior:      proto.BrowserSetDownloadBehaviorBehaviorAllowAndName,
		DownloadPath:  dir,
		EventsEnabled: true,
	}.Call(browser)
	if err != nil {
		return nil, err
	}

	s := &DownloadSink{page: page, outDir: outDir, res: res, started: make(map[string]downloadInfo)}

	go browser.EachEvent(
		func(e *proto.BrowserDownloadWillBegin) {
			s.mu.Lock()
			s.started[e.GUID] = downloadInfo{url: e.URL, suggested: e.SuggestedFilename}
			s.mu.Unlock()
		},
		func(e *proto.BrowserDownloadProgress) {
			if e.State != proto.BrowserDownloadProgressStateCompleted {
				return
			}
			s.mu.Lock()
			info, ok := s.started[e.GUID]
			delete(s.started, e.GUID)
			s.mu.Unlock()
			if ok {
				go s.finish(e.GUID, info)
			}
		},
	)()

	return s, nil
}

// finish renames the GUID-named file to its suggested name, unless the CDP
// interceptor already produced bytes for this URL.
func (s *DownloadSink) finish(guid string, info downloadInfo) {
	src := filepath.Join(s.outDir, DownloadsDir, guid)

	if _, saved := s.res.FileFor(info.url); saved {
		log.Info().Str("tag", "SKIP").Str("url", trimURL(info.url)).Msg("Already written by CDP hook")
		os.Remove(src)
		return
	}

	name := info.suggested
	if name == "" {
		name = FilenameFromURL(info.url, "")
	}
	name = fsutil.SafeFilename(trimExtStem(name), filepath.Ext(name), info.url)
	dest := fsutil.DedupPath(filepath.Join(s.outDir, DownloadsDir, name))

	if err := os.Rename(src, dest); err != nil {
		s.res.AddError()
		log.Warn().Str("tag", "WARN").Err(err).Str("file", name).Msg("Failed to place download")
		return
	}
	rel, err := filepath.Rel(s.outDir, dest)
	if err != nil {
		rel = filepath.Join(DownloadsDir, filepath.Base(dest))
	}
	if s.res.SetFile(info.url, rel) {
		s.res.AddDownload()
		log.Info().Str("tag", "DOWNLOAD").Str("file", rel).Msg("Saved")
	}
}

func trimExtStem(name string) string {
	return name[:len(name)-len(filepath.Ext(name))]
}
