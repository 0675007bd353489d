package gates

import (
	"encoding/json"
	"strconv"
	"strings"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/rs/zerolog/log"

	"github.com/Rorqualx/gatecap/internal/clienthints"
	"github.com/Rorqualx/gatecap/internal/urlutil"
)

// UserAgentGate spoofs the User-Agent header, the Client Hints header
// family, and the JS-visible navigator surface. It also projects the same
// identity into workers the page spawns.
type UserAgentGate struct {
	mu       sync.Mutex
	acceptCH map[string][]string // origin -> hints the server asked for
	profile  *clienthints.Profile
	bound    bool
}

// NewUserAgentGate creates the gate with an empty Accept-CH memo.
func NewUserAgentGate() *UserAgentGate {
	return &UserAgentGate{acceptCH: make(map[string][]string)}
}

// Name implements Gate.
func (g *UserAgentGate) Name() string { return "UserAgentGate" }

// Handle implements Gate. The response listener and worker hooks need a live
// page and are installed by SetupPageHandlers; Handle only logs the resolved
// UA and never returns an error.
func (g *UserAgentGate) Handle(page *rod.Page, browser *rod.Browser, plan *Plan) error {
	if plan.Profile == nil {
		return nil
	}
	log.Info().Str("tag", "GATE").Str("ua", plan.Profile.UserAgent).Msg("User agent spoofed")
	return nil
}

// Headers implements Gate: the UA header plus the low-entropy Client Hints
// set for CH-eligible browsers. Non-CH browsers never emit Sec-CH-UA*.
func (g *UserAgentGate) Headers(plan *Plan) map[string]string {
	if plan.Profile == nil {
		return nil
	}
	p := plan.Profile
	headers := map[string]string{"user-agent": p.UserAgent}
	if !p.SupportsCH {
		return headers
	}

	ch, err := clienthints.GenerateSecChUA(p.UserAgent)
	if err != nil {
		log.Warn().Str("tag", "GATE").Err(err).Msg("Client hints synthesis failed, sending UA only")
		return headers
	}
	headers["sec-ch-ua"] = ch
	headers["sec-ch-ua-mobile"] = boolHint(p.Mobile)
	headers["sec-ch-ua-platform"] = strconv.Quote(string(p.Platform))
	log.Debug().Str("tag", "GATE").Str("sec-ch-ua", ch).Msg("Client hints spoofed")
	return headers
}

// InjectHeaders implements HeaderInjector: high-entropy hints are sent only
// to origins that asked for them via Accept-CH. The profile was cached by
// BindPlan, so no re-resolution happens on the request path.
func (g *UserAgentGate) InjectHeaders(req *proto.NetworkRequest) map[string]string {
	g.mu.Lock()
	hints := g.acceptCH[urlutil.Origin(req.URL)]
	p := g.profile
	g.mu.Unlock()
	if len(hints) == 0 || p == nil || !p.SupportsCH {
		return nil
	}
	out := make(map[string]string, len(hints))
	for _, hint := range hints {
		switch hint {
		case "sec-ch-ua-model":
			out[hint] = strconv.Quote(p.Model)
		case "sec-ch-ua-platform-version":
			out[hint] = strconv.Quote(p.PlatformVersion)
		case "sec-ch-ua-full-version":
			out[hint] = strconv.Quote(p.EngineFullVersion)
		case "sec-ch-ua-arch":
			out[hint] = strconv.Quote(p.Architecture)
		case "sec-ch-ua-bitness":
			out[hint] = strconv.Quote(p.Bitness)
		case "sec-ch-ua-wow64":
			out[hint] = boolHint(p.WOW64)
		case "sec-ch-ua-full-version-list":
			if list, err := clienthints.GenerateSecChUAFullVersionList(p.UserAgent); err == nil {
				out[hint] = list
			}
		}
	}
	return out
}

// BindPlan caches the resolved profile for per-request injection. The
// orchestrator calls it before routing starts so InjectHeaders never
// re-resolves the UA.
func (g *UserAgentGate) BindPlan(plan *Plan) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.profile = plan.Profile
}

// JSPatches implements Gate.
func (g *UserAgentGate) JSPatches(plan *Plan) []string {
	if plan.Profile == nil || plan.StealthEngine() {
		return nil
	}
	if plan.Engine == clienthints.EngineChromium {
		return []string{"spoof_useragent.js", "chromium_stealth.js", "extra_stealth.js"}
	}
	return []string{"fwk_stealth.js", "extra_stealth.js"}
}

// JSTemplateVars implements Gate. The language list and __TZ__ belong to the
// LanguageGate; everything else navigator-shaped is produced here.
func (g *UserAgentGate) JSTemplateVars(plan *Plan) map[string]string {
	if plan.Profile == nil {
		return nil
	}
	p := plan.Profile
	vars := map[string]string{
		"__USER_AGENT__":       jsEscape(p.UserAgent),
		"__BRAND__":            jsEscape(p.Brand),
		"__BRAND_VERSION__":    p.BrandVersion,
		"__FULL_VERSION__":     p.EngineFullVersion,
		"__PLATFORM__":         clienthints.JSPlatform(p),
		"__CH_PLATFORM__":      string(p.Platform),
		"__ARCH__":             p.Architecture,
		"__BITNESS__":          p.Bitness,
		"__WOW64__":            strconv.FormatBool(p.WOW64),
		"__MODEL__":            jsEscape(p.Model),
		"__MOBILE__":           strconv.FormatBool(p.Mobile),
		"__PLATFORM_VERSION__": p.PlatformVersion,
	}

	mem := plan.Hardware.MemoryGiB
	if mem == 0 {
		mem = 8
	}
	cores := plan.Hardware.Cores
	if cores == 0 {
		cores = 8
	}
	vars["__DEVICE_MEMORY__"] = strconv.Itoa(mem)
	vars["__HARDWARE_CONCURRENCY__"] = strconv.Itoa(cores)

	vars["__BRANDS_JS__"] = brandsJSON(p, false)
	vars["__FULL_VERSION_LIST_JS__"] = brandsJSON(p, true)

	if p.Mobile {
		vars["__TOUCH_SCRIPT__"] = "Object.defineProperty(window, 'ontouchstart', { value: null, writable: true, configurable: true });" +
			" Object.defineProperty(navigator, 'maxTouchPoints', { get: () => 5, configurable: true });"
	} else {
		vars["__TOUCH_SCRIPT__"] = ""
	}
	return vars
}

// brandsJSON renders the navigator.userAgentData brand array.
func brandsJSON(p *clienthints.Profile, full bool) string {
	type brand struct {
		Brand   string `json:"brand"`
		Version string `json:"version"`
	}
	var list []brand
	if !p.SupportsCH {
		return "[]"
	}
	if full {
		list = []brand{
			{"Chromium", p.EngineFullVersion},
			{"Not-A.Brand", "99.0.0.0"},
			{p.Brand, p.BrandVersion},
		}
	} else {
		major := p.BrandVersion
		if i := strings.IndexByte(major, '.'); i > 0 {
			major = major[:i]
		}
		list = []brand{
			{"Chromium", p.EngineVersion},
			{"Not-A.Brand", "99"},
			{p.Brand, major},
		}
	}
	seen := make(map[string]bool, len(list))
	uniq := list[:0]
	for _, b := range list {
		if !seen[b.Brand] {
			uniq = append(uniq, b)
			seen[b.Brand] = true
		}
	}
	out, _ := json.Marshal(uniq)
	return string(out)
}

// SetupPageHandlers implements PageHandler: memoize Accept-CH per origin and
// project the identity into workers. With a stealth driver active the worker
// injection is skipped entirely.
func (g *UserAgentGate) SetupPageHandlers(page *rod.Page, browser *rod.Browser, plan *Plan, workerScript string) error {
	if plan.Profile == nil {
		return nil
	}
	g.mu.Lock()
	if g.bound {
		g.mu.Unlock()
		return nil
	}
	g.bound = true
	g.mu.Unlock()

	go page.EachEvent(func(e *proto.NetworkResponseReceived) {
		value := headerValue(e.Response.Headers, "accept-ch")
		if value == "" {
			return
		}
		origin := urlutil.Origin(e.Response.URL)
		if origin == "" {
			return
		}
		hints := parseAcceptCH(value)
		g.mu.Lock()
		g.acceptCH[origin] = hints
		g.mu.Unlock()
		log.Debug().Str("tag", "GATE").Str("origin", origin).Strs("hints", hints).Msg("Accept-CH observed")
	})()

	if plan.StealthEngine() || workerScript == "" {
		return nil
	}
	return attachWorkerInjector(page, workerScript)
}

func headerValue(h proto.NetworkHeaders, name string) string {
	for k, v := range h {
		if strings.EqualFold(k, name) {
			return v.Str()
		}
	}
	return ""
}

// parseAcceptCH normalizes an Accept-CH header value into the hint names we
// know how to answer.
func parseAcceptCH(value string) []string {
	parts := strings.Split(value, ",")
	hints := make([]string, 0, len(parts))
	for _, part := range parts {
		name := strings.ToLower(strings.TrimSpace(part))
		switch name {
		case "sec-ch-ua-model", "sec-ch-ua-platform-version", "sec-ch-ua-full-version",
			"sec-ch-ua-arch", "sec-ch-ua-bitness", "sec-ch-ua-wow64",
			"sec-ch-ua-full-version-list":
			hints = append(hints, name)
		}
	}
	return hints
}

func boolHint(b bool) string {
	if b {
		return "?1"
	}
	return "?0"
}
