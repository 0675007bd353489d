package gates

import (
	"strings"
	"testing"

	"github.com/go-rod/rod/lib/proto"
	"github.com/ysmood/gson"

	"github.com/Rorqualx/gatecap/internal/clienthints"
	"github.com/Rorqualx/gatecap/internal/gatedata"
)

const winChromeUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"
const linFirefoxUA = "Mozilla/5.0 (X11; Linux x86_64; rv:133.0) Gecko/20100101 Firefox/133.0"

func chromiumPlan() *Plan {
	return &Plan{
		Engine:        clienthints.EngineChromium,
		BrowserEngine: BrowserEngineStandard,
		Profile:       clienthints.Parse(winChromeUA),
		Hardware: gatedata.Hardware{
			ProfileID: "desk_mid", MemoryGiB: 16, Cores: 8,
			ScreenW: 1920, ScreenH: 1080,
			WebGLVendor: "Intel", WebGLRenderer: "Intel(R) Iris(R) Xe Graphics",
		},
		UserAgent: UserAgentOptions{UserAgent: winChromeUA},
		Timezone:  TimezoneOptions{Country: "DE", ZoneID: "Europe/Berlin"},
		WebGL:     WebGLOptions{Vendor: "Intel", Renderer: "Intel(R) Iris(R) Xe Graphics"},
		Network:   NetworkOptions{ConnectionProfile: "desk_mid"},
	}
}

func TestGateEnabledDefaults(t *testing.T) {
	p := &Plan{}
	if !p.GateEnabled("UserAgentGate") {
		t.Error("Gates default to enabled")
	}
	p.Enabled = map[string]bool{"WebGLGate": false}
	if p.GateEnabled("WebGLGate") {
		t.Error("Explicitly disabled gate reported enabled")
	}
	if !p.GateEnabled("StealthGate") {
		t.Error("Unlisted gate should stay enabled")
	}
}

func TestUserAgentGateHeaders(t *testing.T) {
	g := NewUserAgentGate()
	h := g.Headers(chromiumPlan())
	if h["user-agent"] != winChromeUA {
		t.Errorf("user-agent = %q", h["user-agent"])
	}
	if h["sec-ch-ua-mobile"] != "?0" {
		t.Errorf("sec-ch-ua-mobile = %q", h["sec-ch-ua-mobile"])
	}
	if h["sec-ch-ua-platform"] != `"Windows"` {
		t.Errorf("sec-ch-ua-platform = %q", h["sec-ch-ua-platform"])
	}
	if !strings.Contains(h["sec-ch-ua"], `"Chromium";v="131"`) {
		t.Errorf("sec-ch-ua = %q", h["sec-ch-ua"])
	}
	// high-entropy hints never appear in the static set
	for _, forbidden := range []string{"sec-ch-ua-model", "sec-ch-ua-platform-version", "sec-ch-ua-arch"} {
		if _, ok := h[forbidden]; ok {
			t.Errorf("Static headers must not carry %s", forbidden)
		}
	}
}

func TestUserAgentGateNoClientHintsForFirefox(t *testing.T) {
	plan := chromiumPlan()
	plan.Profile = clienthints.Parse(linFirefoxUA)
	plan.Engine = clienthints.EngineGecko

	g := NewUserAgentGate()
	h := g.Headers(plan)
	if h["user-agent"] != linFirefoxUA {
		t.Errorf("user-agent = %q", h["user-agent"])
	}
	for name := range h {
		if strings.HasPrefix(name, "sec-ch-ua") {
			t.Errorf("Firefox UA must never emit %s", name)
		}
	}
}

func TestUserAgentGateInjectHeadersHonorsAcceptCH(t *testing.T) {
	plan := chromiumPlan()
	g := NewUserAgentGate()
	g.BindPlan(plan)

	req := &proto.NetworkRequest{URL: "https://site.example/path"}

	// nothing memoized for the origin: no dynamic headers
	if h := g.InjectHeaders(req); len(h) != 0 {
		t.Errorf("Expected no injection before Accept-CH, got %v", h)
	}

	g.acceptCH["https://site.example"] = parseAcceptCH("sec-ch-ua-platform-version, sec-ch-ua-arch")

	h := g.InjectHeaders(req)
	if h["sec-ch-ua-platform-version"] != `"10.0"` {
		t.Errorf("platform-version = %q", h["sec-ch-ua-platform-version"])
	}
	if h["sec-ch-ua-arch"] != `"x86"` {
		t.Errorf("arch = %q", h["sec-ch-ua-arch"])
	}
	if _, ok := h["sec-ch-ua-model"]; ok {
		t.Error("Model was not requested and must not be sent")
	}

	// a different origin gets nothing
	other := &proto.NetworkRequest{URL: "https://other.example/x"}
	if h := g.InjectHeaders(other); len(h) != 0 {
		t.Errorf("Cross-origin injection: %v", h)
	}
}

func TestParseAcceptCH(t *testing.T) {
	hints := parseAcceptCH("Sec-CH-UA-Model, sec-ch-ua-wow64, X-Unknown-Hint")
	if len(hints) != 2 {
		t.Fatalf("hints = %v", hints)
	}
	if hints[0] != "sec-ch-ua-model" || hints[1] != "sec-ch-ua-wow64" {
		t.Errorf("hints = %v", hints)
	}
}

func TestUserAgentGateJSPatchesByEngine(t *testing.T) {
	g := NewUserAgentGate()

	plan := chromiumPlan()
	got := g.JSPatches(plan)
	want := []string{"spoof_useragent.js", "chromium_stealth.js", "extra_stealth.js"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("Chromium patches = %v", got)
	}

	plan.Engine = clienthints.EngineGecko
	got = g.JSPatches(plan)
	if strings.Join(got, ",") != "fwk_stealth.js,extra_stealth.js" {
		t.Errorf("Gecko patches = %v", got)
	}

	plan.BrowserEngine = BrowserEngineStealth
	if got = g.JSPatches(plan); len(got) != 0 {
		t.Errorf("Stealth engine must suppress patches, got %v", got)
	}
}

func TestUserAgentGateTemplateVars(t *testing.T) {
	g := NewUserAgentGate()
	vars := g.JSTemplateVars(chromiumPlan())

	if vars["__PLATFORM__"] != "Win32" {
		t.Errorf("__PLATFORM__ = %q", vars["__PLATFORM__"])
	}
	// the timezone variable belongs to the TimezoneGate (one producer per
	// variable); the UA gate must not re-publish it
	if _, ok := vars["__TIMEZONE__"]; ok {
		t.Error("UserAgentGate must not produce __TIMEZONE__")
	}
	if vars["__DEVICE_MEMORY__"] != "16" || vars["__HARDWARE_CONCURRENCY__"] != "8" {
		t.Errorf("hardware vars = %q/%q", vars["__DEVICE_MEMORY__"], vars["__HARDWARE_CONCURRENCY__"])
	}
	if vars["__WOW64__"] != "false" || vars["__MOBILE__"] != "false" {
		t.Errorf("bool vars = %q/%q", vars["__WOW64__"], vars["__MOBILE__"])
	}
	if vars["__TOUCH_SCRIPT__"] != "" {
		t.Error("Desktop session must not force touch")
	}
	if !strings.Contains(vars["__BRANDS_JS__"], `"Chromium"`) {
		t.Errorf("__BRANDS_JS__ = %q", vars["__BRANDS_JS__"])
	}
}

func TestLanguages(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", "en-US,en"},
		{"de-DE", "de-DE,de"},
		{"de-DE,de;q=0.9,en;q=0.8", "de-DE,de"},
		{"fr", "fr"},
	}
	for _, tt := range tests {
		got := strings.Join(Languages(tt.in), ",")
		if got != tt.want {
			t.Errorf("Languages(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestLanguageGateVars(t *testing.T) {
	plan := chromiumPlan()
	plan.Language.AcceptLanguage = "de-DE,de;q=0.9"
	g := NewLanguageGate()

	h := g.Headers(plan)
	if h["accept-language"] != "de-DE,de;q=0.9" {
		t.Errorf("accept-language = %q", h["accept-language"])
	}
	vars := g.JSTemplateVars(plan)
	if vars["__LANG_JS__"] != `["de-DE","de"]` {
		t.Errorf("__LANG_JS__ = %q", vars["__LANG_JS__"])
	}
	if vars["__TZ__"] != "Europe/Berlin" {
		t.Errorf("__TZ__ = %q", vars["__TZ__"])
	}
}

func TestGeolocationGateVars(t *testing.T) {
	plan := chromiumPlan()
	plan.Geolocation = GeolocationOptions{
		CountryCode: "DE",
		Geolocation: &gatedata.Geolocation{Latitude: 52.5, Longitude: 13.4, Accuracy: 150},
	}
	g := NewGeolocationGate()
	if patches := g.JSPatches(plan); len(patches) != 1 || patches[0] != "geolocation_spoof.js" {
		t.Errorf("patches = %v", patches)
	}
	vars := g.JSTemplateVars(plan)
	if vars["__LATITUDE__"] != "52.5" || vars["__LONGITUDE__"] != "13.4" {
		t.Errorf("vars = %v", vars)
	}

	plan.Geolocation.Geolocation = nil
	if patches := g.JSPatches(plan); len(patches) != 0 {
		t.Error("No geolocation configured: no patch")
	}
}

func TestNetworkGateVars(t *testing.T) {
	plan := chromiumPlan()
	g := NewNetworkGate()
	vars := g.JSTemplateVars(plan)
	if vars["__CONN_TYPE__"] != "wifi" || vars["__EFFECTIVE_TYPE__"] != "4g" {
		t.Errorf("desk_mid vars = %v", vars)
	}

	plan.Network.ConnectionProfile = "mobile_high"
	vars = g.JSTemplateVars(plan)
	if vars["__CONN_TYPE__"] != "cellular" || vars["__EFFECTIVE_TYPE__"] != "5g" || vars["__SAVE_DATA__"] != "true" {
		t.Errorf("mobile_high vars = %v", vars)
	}

	plan.Network.ConnectionProfile = "no_such_profile"
	vars = g.JSTemplateVars(plan)
	if vars["__CONN_TYPE__"] != "wifi" {
		t.Error("Unknown profile should fall back to wifi")
	}
}

func TestStealthGatePatches(t *testing.T) {
	plan := chromiumPlan()
	g := NewStealthGate()
	patches := g.JSPatches(plan)
	if len(patches) != 7 {
		t.Errorf("Expected 7 floor patches, got %d", len(patches))
	}
	plan.BrowserEngine = BrowserEngineStealth
	if len(g.JSPatches(plan)) != 0 {
		t.Error("Stealth driver must suppress the floor set")
	}
	vars := g.JSTemplateVars(chromiumPlan())
	if vars["__SCREEN_W__"] != "1920" || vars["__SCREEN_H__"] != "1080" {
		t.Errorf("screen vars = %v", vars)
	}
}

func TestTimezoneGateVars(t *testing.T) {
	g := NewTimezoneGate()
	vars := g.JSTemplateVars(chromiumPlan())
	if vars["__TIMEZONE__"] != "Europe/Berlin" || vars["timezone_id"] != "Europe/Berlin" {
		t.Errorf("vars = %v", vars)
	}
	empty := &Plan{}
	vars = g.JSTemplateVars(empty)
	if vars["timezone_id"] != "UTC" {
		t.Error("Missing zone should default to UTC")
	}
}

func TestReferrerGate(t *testing.T) {
	plan := chromiumPlan()
	g := NewReferrerGate()
	if h := g.Headers(plan); len(h) != 0 {
		t.Error("No referrer configured: no header")
	}
	plan.Referrer.Referrer = "https://google.com/"
	if h := g.Headers(plan); h["referer"] != "https://google.com/" {
		t.Errorf("referer = %q", h["referer"])
	}
}

func TestHeaderValue(t *testing.T) {
	h := proto.NetworkHeaders{
		"Accept-CH": gson.New("sec-ch-ua-model"),
	}
	if headerValue(h, "accept-ch") != "sec-ch-ua-model" {
		t.Error("Case-insensitive header lookup failed")
	}
	if headerValue(h, "content-type") != "" {
		t.Error("Missing header should yield empty string")
	}
}
