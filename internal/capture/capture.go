package capture

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/rs/zerolog/log"

	"github.com/Rorqualx/gatecap/internal/fsutil"
	"github.com/Rorqualx/gatecap/internal/types"
)

// recognizedRequestTypes are tracked as seen resources.
var recognizedRequestTypes = map[proto.NetworkResourceType]bool{
	proto.NetworkResourceTypeDocument:   true,
	proto.NetworkResourceTypeStylesheet: true,
	proto.NetworkResourceTypeScript:     true,
	proto.NetworkResourceTypeImage:      true,
	proto.NetworkResourceTypeFont:       true,
	proto.NetworkResourceTypeMedia:      true,
	proto.NetworkResourceTypeOther:      true,
}

// saveableTypes additionally capture XHR/fetch bodies.
var saveableTypes = map[proto.NetworkResourceType]bool{
	proto.NetworkResourceTypeDocument:   true,
	proto.NetworkResourceTypeStylesheet: true,
	proto.NetworkResourceTypeScript:     true,
	proto.NetworkResourceTypeImage:      true,
	proto.NetworkResourceTypeFont:       true,
	proto.NetworkResourceTypeMedia:      true,
	proto.NetworkResourceTypeXHR:        true,
	proto.NetworkResourceTypeFetch:      true,
	proto.NetworkResourceTypeOther:      true,
}

// pendingEntry carries what the Network events told us about an in-flight
// request until its body is loadable.
type pendingEntry struct {
	url          string
	method       string
	resourceType proto.NetworkResourceType
	status       int
	headers      map[string]string
	postData     string
	reqHeaders   map[string]string
}

// Capture is the engine-neutral capture pipeline for one page. It records
// every final response's metadata and persists bodies under the classified
// output tree, falling back to an HTTP replay when the driver has no body.
type Capture struct {
	page   *rod.Page
	outDir string
	res    *ResourceData
	replay *ReplayClient
	ctx    context.Context

	mu      sync.Mutex
	pending map[proto.NetworkRequestID]*pendingEntry

	// pathMu serializes dedup-path reservation so two responses never
	// claim the same file.
	pathMu sync.Mutex
}

// New creates a capture pipeline writing under outDir.
func New(ctx context.Context, page *rod.Page, outDir string, res *ResourceData, replay *ReplayClient) *Capture {
	return &Capture{
		page:    page,
		outDir:  outDir,
		res:     res,
		replay:  replay,
		ctx:     ctx,
		pending: make(map[proto.NetworkRequestID]*pendingEntry),
	}
}

// Attach subscribes the Network event handlers. Each body save runs as its
// own goroutine so a slow disk never stalls event dispatch.
func (c *Capture) Attach() {
	go c.page.EachEvent(
		func(e *proto.NetworkRequestWillBeSent) {
			c.onRequest(e)
		},
		func(e *proto.NetworkResponseReceived) {
			c.onResponse(e)
		},
		func(e *proto.NetworkLoadingFinished) {
			c.mu.Lock()
			entry := c.pending[e.RequestID]
			delete(c.pending, e.RequestID)
			c.mu.Unlock()
			if entry != nil {
				go c.saveBody(e.RequestID, entry)
			}
		},
		func(e *proto.NetworkLoadingFailed) {
			c.mu.Lock()
			delete(c.pending, e.RequestID)
			c.mu.Unlock()
		},
	)()
}

func (c *Capture) onRequest(e *proto.NetworkRequestWillBeSent) {
	if recognizedRequestTypes[e.Type] {
		log.Info().Str("tag", "RESOURCE").
			Str("type", strings.ToUpper(string(e.Type))).
			Str("url", trimURL(e.Request.URL)).
			Msg("Resource requested")
		c.res.MarkSeen(e.Request.URL)
	}

	reqHeaders := make(map[string]string, len(e.Request.Headers))
	for k, v := range e.Request.Headers {
		reqHeaders[k] = v.Str()
	}
	c.mu.Lock()
	c.pending[e.RequestID] = &pendingEntry{
		url:          e.Request.URL,
		method:       e.Request.Method,
		resourceType: e.Type,
		postData:     e.Request.PostData,
		reqHeaders:   reqHeaders,
	}
	c.mu.Unlock()
}

func (c *Capture) onResponse(e *proto.NetworkResponseReceived) {
	headers := make(map[string]string, len(e.Response.Headers))
	for k, v := range e.Response.Headers {
		headers[k] = v.Str()
	}
	// Response metadata is recorded unconditionally: it must exist even
	// when the body never materializes (I5).
	c.res.RecordResponse(e.Response.URL, e.Response.Status, headers)

	c.mu.Lock()
	if entry, ok := c.pending[e.RequestID]; ok {
		entry.status = e.Response.Status
		entry.headers = headers
		entry.url = e.Response.URL
	}
	c.mu.Unlock()
}

// saveBody persists one finished response. Runs on its own goroutine.
func (c *Capture) saveBody(id proto.NetworkRequestID, entry *pendingEntry) {
	if !saveableTypes[entry.resourceType] || entry.headers == nil {
		return
	}
	if entry.status >= 300 && entry.status < 400 {
		return
	}
	// Already written by the CDP download interceptor.
	if _, saved := c.res.FileFor(entry.url); saved {
		log.Debug().Str("url", trimURL(entry.url)).Msg("Body already saved by download interceptor")
		return
	}

	ct := headerFold(entry.headers, "content-type")
	cd := headerFold(entry.headers, "content-disposition")
	isDownload := LooksLikeDownload(ct, cd)

	dir := DirForType(string(entry.resourceType))
	if isDownload {
		dir = DownloadsDir
	}

	ext := GuessExt(ct)
	fname := FilenameFromCD(cd)
	if fname == "" {
		fname = FilenameFromURL(entry.url, ext)
	}

	relPath, absPath, err := c.reservePath(dir, fname)
	if err != nil {
		c.res.AddWarning()
		log.Warn().Str("tag", "WARN").Err(err).Str("url", trimURL(entry.url)).Msg("Could not reserve output path")
		return
	}
	if !c.res.SetFile(entry.url, relPath) {
		os.Remove(absPath)
		return
	}

	body, err := c.driverBody(id)
	if err == nil {
		if werr := os.WriteFile(absPath, body, 0o644); werr != nil {
			c.res.AddWarning()
			log.Warn().Str("tag", "WARN").Err(werr).Str("file", relPath).Msg("Could not write body")
			return
		}
		if isDownload {
			c.res.AddDownload()
			log.Info().Str("tag", "DOWNLOAD").Str("file", relPath).Msg("Saved")
		}
		return
	}

	if !errors.Is(err, types.ErrBodyUnavailable) {
		c.res.AddError()
		log.Error().Str("tag", "ERROR").Err(err).Str("url", trimURL(entry.url)).Msg("Could not save body")
		return
	}

	// Driver has no body (download navigation, body consumed by the
	// intercept): replay the request over HTTP with the page's cookies.
	status, err := c.replay.FetchToFile(c.ctx, Request{
		URL:      entry.url,
		Method:   entry.method,
		Headers:  entry.reqHeaders,
		PostData: entry.postData,
		Cookies:  c.cookiesFor(entry.url),
	}, absPath)
	if err != nil {
		c.res.AddError()
		log.Error().Str("tag", "ERROR").Err(err).Str("url", trimURL(entry.url)).Msg("Fallback fetch failed")
		c.res.DropFile(entry.url)
		os.Remove(absPath)
		return
	}
	if isDownload {
		c.res.AddDownload()
	}
	if !c.res.HasResponse(entry.url) {
		c.res.RecordResponse(entry.url, status, entry.headers)
	}
	log.Info().Str("tag", "DOWNLOAD").Str("file", relPath).Msg("Fetched via HTTP")
}

// reservePath picks a collision-free path under dir and creates the file so
// concurrent saves cannot claim the same name.
func (c *Capture) reservePath(dir, fname string) (rel string, abs string, err error) {
	c.pathMu.Lock()
	defer c.pathMu.Unlock()

	full := filepath.Join(c.outDir, dir)
	if err := os.MkdirAll(full, 0o755); err != nil {
		return "", "", err
	}
	abs = fsutil.DedupPath(filepath.Join(full, fname))
	f, err := os.OpenFile(abs, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return "", "", err
	}
	f.Close()
	rel, err = filepath.Rel(c.outDir, abs)
	if err != nil {
		rel = filepath.Join(dir, filepath.Base(abs))
	}
	return rel, abs, nil
}

// driverBody asks the driver for the response body. Empty or failed reads
// map to ErrBodyUnavailable so the caller can replay.
func (c *Capture) driverBody(id proto.NetworkRequestID) ([]byte, error) {
	res, err := proto.NetworkGetResponseBody{RequestID: id}.Call(c.page)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrBodyUnavailable, err)
	}
	if res.Body == "" {
		return nil, types.ErrBodyUnavailable
	}
	if res.Base64Encoded {
		raw, err := base64.StdEncoding.DecodeString(res.Body)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", types.ErrBodyUnavailable, err)
		}
		return raw, nil
	}
	return []byte(res.Body), nil
}

func (c *Capture) cookiesFor(url string) map[string]string {
	cookies, err := c.page.Cookies([]string{url})
	if err != nil {
		return nil
	}
	out := make(map[string]string, len(cookies))
	for _, ck := range cookies {
		out[ck.Name] = ck.Value
	}
	return out
}

// headerFold does a case-insensitive header lookup in a plain map.
func headerFold(headers map[string]string, name string) string {
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

const maxURLLogLen = 80

func trimURL(u string) string {
	if len(u) > maxURLLogLen {
		return u[:maxURLLogLen] + "…"
	}
	return u
}
