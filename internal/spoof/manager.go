package spoof

import (
	"fmt"
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/rs/zerolog/log"

	"github.com/Rorqualx/gatecap/internal/gates"
	"github.com/Rorqualx/gatecap/internal/jstmpl"
)

// workerTemplate is rendered once with the frozen variable table and
// evaluated inside every worker the page spawns.
const workerTemplate = "worker_spoof.js"

// RequestRecorder receives the final merged header set for every routed
// request, before the request is resumed.
type RequestRecorder func(url, method string, headers map[string]string)

// ResponseHook lets the capture pipeline take over response-stage Fetch
// pauses (download interception). It must fulfill or continue the paused
// request itself and return true when it did.
type ResponseHook func(e *proto.FetchRequestPaused) bool

// Manager orchestrates the gates against one page. Phases, in order:
// per-gate handle, static header collection + route install, JS patch
// install, then page handlers once the page exists. The manager is owned by
// a single session and not safe for concurrent use across sessions.
type Manager struct {
	gates  []gates.Gate
	loader *jstmpl.Loader

	plan         *gates.Plan
	templateVars map[string]string
	workerScript string
	headers      map[string]string
	injectors    []gates.HeaderInjector

	routingInstalled bool
	patchesInstalled bool
}

// NewManager creates a manager over the default gate set.
func NewManager(loader *jstmpl.Loader) *Manager {
	return &Manager{gates: gates.All(), loader: loader}
}

// NewManagerWithGates creates a manager over a custom gate set (tests).
func NewManagerWithGates(loader *jstmpl.Loader, gateSet []gates.Gate) *Manager {
	return &Manager{gates: gateSet, loader: loader}
}

// Plan returns the frozen plan after ApplySpoofing.
func (m *Manager) Plan() *gates.Plan { return m.plan }

// TemplateVars returns the frozen merged variable table (Phase C snapshot).
func (m *Manager) TemplateVars() map[string]string { return m.templateVars }

// ApplySpoofing runs phases A-C against the page. The page must not have
// navigated yet: routing and init scripts install before the first request
// so scripts observe the same origin policy the first request will. A second
// call with the same plan is a no-op for routing and patches.
func (m *Manager) ApplySpoofing(page *rod.Page, plan *gates.Plan, recorder RequestRecorder, responseHook ResponseHook) error {
	m.plan = plan

	// Phase A: one-shot gate setup, fixed dependency order. Failures here
	// are fatal: a session with a half-installed identity is worse than no
	// session.
	for _, g := range m.gates {
		if !plan.GateEnabled(g.Name()) {
			continue
		}
		if err := g.Handle(page, page.Browser(), plan); err != nil {
			return fmt.Errorf("gate %s handle: %w", g.Name(), err)
		}
		if ua, ok := g.(*gates.UserAgentGate); ok {
			ua.BindPlan(plan)
		}
	}

	// Phase B: static headers + routing.
	if err := m.installRouting(page, plan, recorder, responseHook); err != nil {
		return fmt.Errorf("route install: %w", err)
	}

	// Phase C: template variables, then init scripts.
	m.collectTemplateVars(plan)
	m.installPatches(page, plan)
	return nil
}

// installRouting sums gate headers and registers the catch-all Fetch route.
func (m *Manager) installRouting(page *rod.Page, plan *gates.Plan, recorder RequestRecorder, responseHook ResponseHook) error {
	m.headers = make(map[string]string)
	m.injectors = m.injectors[:0]
	for _, g := range m.gates {
		if !plan.GateEnabled(g.Name()) {
			continue
		}
		for name, value := range g.Headers(plan) {
			m.headers[name] = value
		}
		if inj, ok := g.(gates.HeaderInjector); ok {
			m.injectors = append(m.injectors, inj)
		}
	}

	if m.routingInstalled {
		return nil
	}

	// Each pause is dispatched on its own goroutine so a slow download save
	// never stalls subsequent event delivery. The listener registers before
	// the patterned enable: the subscription's implicit bare Fetch.enable
	// must not be the last word on which stages pause.
	go page.EachEvent(func(e *proto.FetchRequestPaused) {
		go m.handlePaused(page, e, recorder, responseHook)
	})()

	patterns := []*proto.FetchRequestPattern{
		{URLPattern: "*", RequestStage: proto.FetchRequestStageRequest},
	}
	if responseHook != nil {
		patterns = append(patterns, &proto.FetchRequestPattern{
			URLPattern: "*", RequestStage: proto.FetchRequestStageResponse,
		})
	}
	if err := (proto.FetchEnable{Patterns: patterns}).Call(page); err != nil {
		return err
	}

	m.routingInstalled = true
	return nil
}

// handlePaused services one Fetch pause: response-stage pauses go to the
// capture hook, request-stage pauses get the merged header overlay.
func (m *Manager) handlePaused(page *rod.Page, e *proto.FetchRequestPaused, recorder RequestRecorder, responseHook ResponseHook) {
	if e.ResponseStatusCode != nil || e.ResponseErrorReason != "" {
		if responseHook != nil && responseHook(e) {
			return
		}
		// Nothing claimed the response: let it through untouched.
		err := (proto.FetchContinueResponse{RequestID: e.RequestID}).Call(page)
		if err != nil {
			log.Debug().Err(err).Str("url", e.Request.URL).Msg("Response continue failed (request may be gone)")
		}
		return
	}

	merged := make(map[string]string, len(e.Request.Headers)+len(m.headers))
	for name, value := range e.Request.Headers {
		merged[name] = value.Str()
	}
	// Overlays replace native headers case-insensitively: the browser says
	// "User-Agent", gates say "user-agent", the wire must carry one value.
	for name, value := range m.headers {
		setFold(merged, name, value)
	}
	// Injector order is gate-registration order; later injectors win on
	// duplicate names.
	for _, inj := range m.injectors {
		for name, value := range inj.InjectHeaders(e.Request) {
			setFold(merged, name, value)
		}
	}

	if recorder != nil {
		recorder(e.Request.URL, e.Request.Method, merged)
	}

	entries := make([]*proto.FetchHeaderEntry, 0, len(merged))
	for name, value := range merged {
		entries = append(entries, &proto.FetchHeaderEntry{Name: name, Value: value})
	}
	err := (proto.FetchContinueRequest{RequestID: e.RequestID, Headers: entries}).Call(page)
	if err != nil {
		log.Debug().Err(err).Str("url", e.Request.URL).Msg("Request continue failed (request may be gone)")
	}
}

// setFold sets a header value, dropping any existing key that differs only
// by case.
func setFold(headers map[string]string, name, value string) {
	for existing := range headers {
		if existing != name && strings.EqualFold(existing, name) {
			delete(headers, existing)
		}
	}
	headers[name] = value
}

// collectTemplateVars merges every enabled gate's variables. The timezone
// gate is read first so later gates observe the session zone; within the
// rest, each variable has exactly one producing gate.
func (m *Manager) collectTemplateVars(plan *gates.Plan) {
	vars := make(map[string]string)
	for _, g := range m.gates {
		if g.Name() == "TimezoneGate" && plan.GateEnabled(g.Name()) {
			for k, v := range g.JSTemplateVars(plan) {
				vars[k] = v
			}
		}
	}
	for _, g := range m.gates {
		if g.Name() == "TimezoneGate" || !plan.GateEnabled(g.Name()) {
			continue
		}
		for k, v := range g.JSTemplateVars(plan) {
			if prev, dup := vars[k]; dup && prev != v {
				log.Warn().Str("tag", "WARN").Str("var", k).Msg("Template variable produced by more than one gate")
			}
			vars[k] = v
		}
	}
	m.templateVars = vars
}

// installPatches renders and installs every gate's JS patches as init
// scripts. A failed render or install un-spoofs that surface but never
// aborts the session.
func (m *Manager) installPatches(page *rod.Page, plan *gates.Plan) {
	if m.patchesInstalled {
		return
	}
	m.patchesInstalled = true

	installed := make(map[string]bool)
	for _, g := range m.gates {
		if !plan.GateEnabled(g.Name()) {
			continue
		}
		for _, name := range g.JSPatches(plan) {
			if installed[name] {
				continue
			}
			installed[name] = true
			js, err := m.loader.LoadAndRender(name, m.templateVars)
			if err != nil {
				log.Warn().Str("tag", "WARN").Err(err).Str("patch", name).Msg("Patch render failed, surface stays un-spoofed")
				continue
			}
			if _, err := page.EvalOnNewDocument(js); err != nil {
				log.Warn().Str("tag", "WARN").Err(err).Str("patch", name).Msg("Patch install failed, surface stays un-spoofed")
				continue
			}
			log.Debug().Str("patch", name).Str("gate", g.Name()).Msg("JS patch installed")
		}
	}

	// Render the worker projection once with the same frozen table so the
	// identity inside workers cannot drift from the main document.
	if plan.Profile != nil && !plan.StealthEngine() {
		js, err := m.loader.LoadAndRender(workerTemplate, m.templateVars)
		if err != nil {
			log.Warn().Str("tag", "WARN").Err(err).Msg("Worker spoof template render failed")
		} else {
			m.workerScript = js
			// Context-wide init script covers workers present at document
			// start; the Phase D hook covers late spawns.
			if _, err := page.EvalOnNewDocument(js); err != nil {
				log.Warn().Str("tag", "WARN").Err(err).Msg("Worker init script install failed")
			}
		}
	}
}

// SetupPageHandlers runs Phase D: hooks that can only bind once the page
// exists (worker attach events, Accept-CH observation). A failing gate is
// logged and skipped.
func (m *Manager) SetupPageHandlers(page *rod.Page) error {
	if m.plan == nil {
		return nil
	}
	for _, g := range m.gates {
		ph, ok := g.(gates.PageHandler)
		if !ok || !m.plan.GateEnabled(g.Name()) {
			continue
		}
		if err := ph.SetupPageHandlers(page, page.Browser(), m.plan, m.workerScript); err != nil {
			log.Warn().Str("tag", "WARN").Err(err).Str("gate", g.Name()).Msg("Page handler setup failed")
		}
	}
	return nil
}
