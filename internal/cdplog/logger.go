// Package cdplog records a DevTools transcript for a session: the redirect
// chain, every request including POST bodies, and previews of scripts
// created via eval/Function. The transcript is the analyst's ground truth
// for how a gating chain moved the browser around.
package cdplog

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/rs/zerolog/log"
)

const (
	// scriptPreviewLen caps how much of an eval-created script the
	// transcript retains.
	scriptPreviewLen = 200

	logFilename = "cdp_log.json"
)

// RedirectEvent is one hop in the navigation chain, tagged before (frame
// requested navigation) or after (frame navigated).
type RedirectEvent struct {
	When     string `json:"when"`
	URL      string `json:"url"`
	Reason   string `json:"reason,omitempty"`
	LoaderID string `json:"loaderId"`
}

// RequestEvent summarizes one network request.
type RequestEvent struct {
	ID       string  `json:"id"`
	URL      string  `json:"url"`
	Method   string  `json:"method"`
	PostData *string `json:"postData"`
}

// EvalScript is a capped preview of a script with no URL — code produced by
// eval or new Function.
type EvalScript struct {
	ScriptID string `json:"scriptId"`
	Length   int    `json:"length"`
	First200 string `json:"first200"`
	Error    string `json:"error,omitempty"`
}

// Transcript is the on-disk shape of cdp_log.json.
type Transcript struct {
	Redirects   []RedirectEvent        `json:"redirects"`
	Requests    []RequestEvent         `json:"requests"`
	EvalScripts []EvalScript           `json:"eval_scripts"`
	Metadata    map[string]interface{} `json:"metadata"`
}

// Logger owns one transcript. All event handlers run as independent
// goroutines, so appends take the lock.
type Logger struct {
	page *rod.Page

	mu          sync.Mutex
	redirects   []RedirectEvent
	requests    []RequestEvent
	evalScripts []EvalScript
}

// Attach enables the Network, Page and Debugger domains and subscribes the
// transcript handlers. A logger that cannot attach is returned as nil with
// the error; the session continues without a transcript.
func Attach(page *rod.Page) (*Logger, error) {
	if err := (proto.NetworkEnable{}).Call(page); err != nil {
		return nil, err
	}
	if err := (proto.PageEnable{}).Call(page); err != nil {
		return nil, err
	}
	if _, err := (proto.DebuggerEnable{}).Call(page); err != nil {
		return nil, err
	}

	l := &Logger{page: page}

	go page.EachEvent(
		func(e *proto.PageFrameRequestedNavigation) {
			l.mu.Lock()
			l.redirects = append(l.redirects, RedirectEvent{
				When:     "before",
				URL:      e.URL,
				Reason:   string(e.Reason),
				LoaderID: string(e.FrameID),
			})
			l.mu.Unlock()
		},
		func(e *proto.PageFrameNavigated) {
			l.mu.Lock()
			l.redirects = append(l.redirects, RedirectEvent{
				When:     "after",
				URL:      e.Frame.URL,
				LoaderID: string(e.Frame.LoaderID),
			})
			l.mu.Unlock()
		},
		func(e *proto.NetworkRequestWillBeSent) {
			go l.onRequest(e)
		},
		func(e *proto.DebuggerScriptParsed) {
			// external scripts have a URL; eval/Function payloads do not
			if e.URL != "" {
				return
			}
			go l.onEvalScript(e)
		},
	)()

	return l, nil
}

func (l *Logger) onRequest(e *proto.NetworkRequestWillBeSent) {
	req := RequestEvent{
		ID:     string(e.RequestID),
		URL:    e.Request.URL,
		Method: e.Request.Method,
	}
	if e.Request.HasPostData {
		if res, err := (proto.NetworkGetRequestPostData{RequestID: e.RequestID}).Call(l.page); err == nil {
			req.PostData = &res.PostData
		}
	} else if e.Request.PostData != "" {
		pd := e.Request.PostData
		req.PostData = &pd
	}
	l.mu.Lock()
	l.requests = append(l.requests, req)
	l.mu.Unlock()
}

func (l *Logger) onEvalScript(e *proto.DebuggerScriptParsed) {
	entry := EvalScript{ScriptID: string(e.ScriptID)}
	res, err := (proto.DebuggerGetScriptSource{ScriptID: e.ScriptID}).Call(l.page)
	if err != nil {
		// script garbage-collected or session gone
		entry.Error = err.Error()
		entry.First200 = "<error: " + err.Error() + ">"
	} else {
		src := res.ScriptSource
		entry.Length = len(src)
		if len(src) > scriptPreviewLen {
			src = src[:scriptPreviewLen]
		}
		entry.First200 = src
	}
	l.mu.Lock()
	l.evalScripts = append(l.evalScripts, entry)
	l.mu.Unlock()
}

// Dump writes the transcript to <outDir>/cdp_log.json. pageURL should be
// the final page URL, or "<closed>" when the tab died.
func (l *Logger) Dump(outDir, pageURL string) error {
	l.mu.Lock()
	t := Transcript{
		Redirects:   append([]RedirectEvent(nil), l.redirects...),
		Requests:    append([]RequestEvent(nil), l.requests...),
		EvalScripts: append([]EvalScript(nil), l.evalScripts...),
	}
	l.mu.Unlock()

	if t.Redirects == nil {
		t.Redirects = []RedirectEvent{}
	}
	if t.Requests == nil {
		t.Requests = []RequestEvent{}
	}
	if t.EvalScripts == nil {
		t.EvalScripts = []EvalScript{}
	}
	t.Metadata = map[string]interface{}{
		"total_redirects":    len(t.Redirects),
		"total_requests":     len(t.Requests),
		"total_eval_scripts": len(t.EvalScripts),
		"page_url":           pageURL,
	}

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return err
	}
	out, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return err
	}
	path := filepath.Join(outDir, logFilename)
	if err := os.WriteFile(path, out, 0o644); err != nil {
		return err
	}
	log.Info().Str("tag", "INFO").Str("path", path).Msg("CDP transcript saved")
	return nil
}
