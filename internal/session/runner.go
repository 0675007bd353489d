// Package session drives one capture per URL: spoofed context creation,
// guarded navigation, optional interactive dwell, and a metadata flush that
// runs on every exit path — timeout and tab death included.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/rs/zerolog/log"

	"github.com/Rorqualx/gatecap/internal/browser"
	"github.com/Rorqualx/gatecap/internal/capture"
	"github.com/Rorqualx/gatecap/internal/cdplog"
	"github.com/Rorqualx/gatecap/internal/config"
	"github.com/Rorqualx/gatecap/internal/fsutil"
	"github.com/Rorqualx/gatecap/internal/htmlrewrite"
	"github.com/Rorqualx/gatecap/internal/humanize"
	"github.com/Rorqualx/gatecap/internal/spoof"
	"github.com/Rorqualx/gatecap/internal/types"
)

// Runner executes capture sessions using a shared factory. Sessions are
// independent; a Runner may serve many URLs sequentially or concurrently.
type Runner struct {
	cfg     *config.Config
	factory *browser.Factory
}

// New creates a session runner.
func New(cfg *config.Config, factory *browser.Factory) *Runner {
	return &Runner{cfg: cfg, factory: factory}
}

// OutputDir computes the per-URL artifact directory:
// <output>/<runID>/saved_<slug>.
func (r *Runner) OutputDir(rawURL string) string {
	u, err := url.Parse(rawURL)
	netloc, path := "invalid", "root"
	if err == nil {
		netloc = strings.ReplaceAll(u.Host, ":", "_")
		path = strings.Trim(u.Path, "/")
		if path == "" {
			path = "root"
		}
		path = strings.ReplaceAll(path, "/", "_")
	}
	slug := fsutil.MakeSlug(netloc, path)
	return filepath.Join(r.cfg.OutputDir, r.cfg.RunID, "saved_"+slug)
}

// Capture runs one full session for a normalized URL. The configured
// timeout is a hard outer deadline; metadata is flushed no matter how the
// session ends.
func (r *Runner) Capture(parent context.Context, rawURL string) error {
	outDir := r.OutputDir(rawURL)
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return err
	}
	log.Info().Str("tag", "INFO").Str("url", rawURL).Str("out", outDir).Msg("Running capture")

	ctx, cancel := context.WithTimeout(parent, r.cfg.Timeout)
	defer cancel()

	res := capture.NewResourceData()
	replay := capture.NewReplayClient(r.cfg.Proxy)

	var capturer *capture.Capture
	bctx, err := r.factory.NewContext(
		r.cfg.Settings(),
		browser.LaunchOptions{
			Proxy:       r.cfg.Proxy,
			Headless:    !r.cfg.Headful,
			BrowserPath: r.cfg.BrowserPath,
		},
		res.RecordRequest,
		func(page *rod.Page) spoof.ResponseHook {
			capturer = capture.New(ctx, page, outDir, res, replay)
			capturer.Attach()
			return capture.NewDownloadInterceptor(page, outDir, res, capturer).Hook()
		},
	)
	if err != nil {
		return err
	}
	defer bctx.Close()

	page := bctx.Page

	// Phase D: worker projection and Accept-CH observation bind now that
	// the page exists.
	if err := bctx.Spoof.SetupPageHandlers(page); err != nil {
		log.Warn().Str("tag", "WARN").Err(err).Msg("Page handler setup failed")
	}

	if _, err := capture.AttachDownloadSink(page, outDir, res); err != nil {
		log.Warn().Str("tag", "WARN").Err(err).Msg("Download sink unavailable")
	}

	logger, err := cdplog.Attach(page)
	if err != nil {
		log.Warn().Str("tag", "WARN").Err(err).Msg("Could not attach CDP logger")
	}

	defer r.flush(outDir, res, page, logger)

	ok := r.safeGoto(ctx, page, rawURL)
	if ctx.Err() != nil {
		log.Warn().Str("tag", "TIMEOUT").Str("url", rawURL).Dur("limit", r.cfg.Timeout).Msg("Session deadline hit")
		return types.ErrSessionTimeout
	}
	if !ok {
		// usually a download intercept detached the frame; artifacts are
		// already on disk
		log.Info().Str("tag", "INFO").Str("url", rawURL).Msg("Page aborted after download intercept")
		return nil
	}

	r.savePage(ctx, page, rawURL, outDir, res)

	if r.cfg.Headful {
		log.Info().Str("tag", "INFO").Msg("Visible window - interact freely, close the tab to continue")
		humanize.NewDweller(page).Skim(ctx)
		r.waitForClose(ctx, page)
	}

	if ctx.Err() != nil {
		log.Warn().Str("tag", "TIMEOUT").Str("url", rawURL).Dur("limit", r.cfg.Timeout).Msg("Session deadline hit")
		return types.ErrSessionTimeout
	}
	return nil
}

// safeGoto navigates and classifies failures: aborted frames are fine,
// TLS errors get one retry in the same page, anything else is logged.
func (r *Runner) safeGoto(ctx context.Context, page *rod.Page, rawURL string) bool {
	err := r.navigate(ctx, page, rawURL)
	if err == nil {
		return true
	}

	var nav *types.NavigationError
	if errors.As(err, &nav) {
		switch nav.Kind {
		case types.NavAborted:
			log.Info().Str("tag", "ABORT").Str("url", rawURL).Msg("Frame detached after download intercept")
			return false
		case types.NavTLS:
			// The context already ignores TLS errors; retrying inside the
			// same page mostly covers the race where the error surfaced
			// before the override applied.
			log.Info().Str("tag", "INFO").Str("url", rawURL).Msg("Invalid TLS certificate, retrying with errors ignored")
			if retryErr := r.navigate(ctx, page, rawURL); retryErr == nil {
				return true
			}
			log.Error().Str("tag", "ERROR").Str("url", rawURL).Err(err).Msg("Load failed even with TLS errors ignored")
			return false
		}
	}
	if ctx.Err() == nil {
		log.Error().Str("tag", "ERROR").Str("url", rawURL).Err(err).Msg("Failed to load page")
	}
	return false
}

// navigate performs one goto bounded by the 40s navigation budget, waiting
// for domcontentloaded.
func (r *Runner) navigate(ctx context.Context, page *rod.Page, rawURL string) error {
	p := page.Context(ctx).Timeout(config.NavigationTimeout)
	wait := p.WaitEvent(&proto.PageDomContentEventFired{})
	if err := p.Navigate(rawURL); err != nil {
		return classifyNavError(rawURL, err)
	}
	wait()
	return nil
}

func classifyNavError(rawURL string, err error) error {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "net::ERR_ABORTED"):
		return &types.NavigationError{Kind: types.NavAborted, URL: rawURL, Err: err}
	case strings.Contains(msg, "net::ERR_CERT_"),
		strings.Contains(msg, "SSL_ERROR_"),
		strings.Contains(msg, "ERR_SSL_"),
		strings.Contains(msg, "ERR_INSECURE_RESPONSE"),
		strings.Contains(msg, "certificate"):
		return &types.NavigationError{Kind: types.NavTLS, URL: rawURL, Err: err}
	default:
		return &types.NavigationError{Kind: types.NavOther, URL: rawURL, Err: err}
	}
}

// savePage persists the page HTML, its offline rewrite and a full-page
// screenshot. All best-effort: a dead tab only costs the artifacts it took
// with it.
func (r *Runner) savePage(ctx context.Context, page *rod.Page, rawURL, outDir string, res *capture.ResourceData) {
	p := page.Context(ctx)

	html, err := p.HTML()
	if err != nil {
		log.Warn().Str("tag", "WARN").Err(err).Msg("Could not read page HTML")
	} else if err := htmlrewrite.SaveBoth(outDir, html, pageURL(page, rawURL), res.URLToFile()); err != nil {
		log.Warn().Str("tag", "WARN").Err(err).Msg("Could not save page HTML")
	}

	if r.cfg.Headful {
		return // screenshot after dwell would capture the analyst's state
	}
	shot, err := p.Screenshot(true, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	})
	if err != nil {
		log.Warn().Str("tag", "WARN").Err(err).Msg("Screenshot failed (tab may be closed)")
		return
	}
	if err := os.WriteFile(filepath.Join(outDir, "screenshot.png"), shot, 0o644); err != nil {
		log.Warn().Str("tag", "WARN").Err(err).Msg("Could not write screenshot")
	}
}

// waitForClose blocks until the analyst closes the tab or the deadline
// fires.
func (r *Runner) waitForClose(ctx context.Context, page *rod.Page) {
	closed := make(chan struct{})
	go page.Browser().Context(ctx).EachEvent(func(e *proto.TargetTargetDestroyed) bool {
		if e.TargetID == page.TargetID {
			close(closed)
			return true
		}
		return false
	})()
	select {
	case <-ctx.Done():
	case <-closed:
		log.Info().Str("tag", "INFO").Msg("Tab closed, ending interactive session")
	}
}

// cookieRecord is the on-disk cookie shape.
type cookieRecord struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path"`
	Expires  float64 `json:"expires"`
	HTTPOnly bool    `json:"httpOnly"`
	Secure   bool    `json:"secure"`
	SameSite string  `json:"sameSite"`
}

// flush writes every metadata artifact. Runs on all exit paths; individual
// failures degrade to warnings so one dead subsystem cannot take the rest
// of the capture with it.
func (r *Runner) flush(outDir string, res *capture.ResourceData, page *rod.Page, logger *cdplog.Logger) {
	if err := res.WriteRequestHeaders(filepath.Join(outDir, "http_request_headers.json")); err != nil {
		log.Error().Str("tag", "ERROR").Err(err).Msg("Could not write request headers")
	}
	if err := res.WriteResponseHeaders(filepath.Join(outDir, "http_response_headers.json")); err != nil {
		log.Error().Str("tag", "ERROR").Err(err).Msg("Could not write response headers")
	}

	records := []cookieRecord{}
	if cookies, err := page.Cookies(nil); err != nil {
		log.Warn().Str("tag", "WARN").Err(err).Msg("Could not collect cookies")
	} else {
		for _, ck := range cookies {
			records = append(records, cookieRecord{
				Name:     ck.Name,
				Value:    ck.Value,
				Domain:   ck.Domain,
				Path:     ck.Path,
				Expires:  float64(ck.Expires),
				HTTPOnly: ck.HTTPOnly,
				Secure:   ck.Secure,
				SameSite: string(ck.SameSite),
			})
		}
	}
	if raw, err := json.MarshalIndent(records, "", "  "); err == nil {
		if err := os.WriteFile(filepath.Join(outDir, "cookies.json"), raw, 0o644); err != nil {
			log.Warn().Str("tag", "WARN").Err(err).Msg("Could not write cookies")
		}
	}

	if logger != nil {
		if err := logger.Dump(outDir, pageURL(page, "<closed>")); err != nil {
			log.Warn().Str("tag", "WARN").Err(err).Msg("Could not write CDP transcript")
		}
	}

	requests, responses, files := res.Counts()
	stats := res.StatsSnapshot()
	log.Info().Str("tag", "STATS").
		Int("requests", requests).
		Int("responses", responses).
		Int("files", files).
		Int("downloads", stats.Downloads).
		Int("warnings", stats.Warnings).
		Int("errors", stats.Errors).
		Msg("Final capture")
}

// pageURL reads the page's current URL, returning fallback when the tab is
// gone.
func pageURL(page *rod.Page, fallback string) string {
	info, err := page.Info()
	if err != nil || info == nil {
		return fallback
	}
	return info.URL
}
