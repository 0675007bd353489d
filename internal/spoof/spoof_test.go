package spoof

import (
	"strings"
	"testing"

	"github.com/Rorqualx/gatecap/internal/clienthints"
	"github.com/Rorqualx/gatecap/internal/gatedata"
	"github.com/Rorqualx/gatecap/internal/gates"
	"github.com/Rorqualx/gatecap/internal/jstmpl"
)

const winChromeUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"

func newData(t *testing.T) *gatedata.Manager {
	t.Helper()
	m, err := gatedata.NewManager("", false)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(m.Close)
	return m
}

func TestResolveFullUA(t *testing.T) {
	plan, err := Resolve(Settings{UAFull: winChromeUA, Country: "DE", Language: "de-DE"}, newData(t))
	if err != nil {
		t.Fatal(err)
	}
	if plan.Profile == nil || plan.Profile.UserAgent != winChromeUA {
		t.Fatal("Profile not resolved from full UA")
	}
	if plan.Engine != clienthints.EngineChromium {
		t.Errorf("Engine = %q", plan.Engine)
	}
	if plan.Geolocation.Geolocation == nil {
		t.Fatal("Country set but no geolocation resolved")
	}
	if plan.Timezone.ZoneID != "Europe/Berlin" && plan.Timezone.ZoneID != "Europe/Busingen" {
		t.Errorf("ZoneID = %q", plan.Timezone.ZoneID)
	}
	if plan.Hardware.ProfileID == "" {
		t.Error("No hardware drawn")
	}
	if plan.WebGL.Vendor == "" || plan.WebGL.Renderer == "" {
		t.Error("No WebGL pair resolved")
	}
	if plan.Network.ConnectionProfile == "" {
		t.Error("No connection profile mapped")
	}
	// windows UA must draw a windows-capable profile
	if plan.Hardware.ProfileID == "mac_notch" || plan.Hardware.ProfileID == "mobile_high" {
		t.Errorf("Windows UA drew %q", plan.Hardware.ProfileID)
	}
}

func TestResolveSelector(t *testing.T) {
	plan, err := Resolve(Settings{UASelector: "Windows;;Firefox"}, newData(t))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(plan.Profile.UserAgent, "Firefox/") {
		t.Errorf("UA = %q", plan.Profile.UserAgent)
	}
	if plan.Engine != clienthints.EngineGecko {
		t.Errorf("Engine = %q", plan.Engine)
	}
}

func TestResolveNoUA(t *testing.T) {
	plan, err := Resolve(Settings{Country: "US"}, newData(t))
	if err != nil {
		t.Fatal(err)
	}
	if plan.Profile != nil {
		t.Error("No UA configured: no profile")
	}
	if plan.Engine != clienthints.EngineChromium {
		t.Errorf("Default engine = %q", plan.Engine)
	}
	if plan.Geolocation.Geolocation == nil {
		t.Error("Country should still resolve geolocation")
	}
}

func TestResolveBadInputs(t *testing.T) {
	if _, err := Resolve(Settings{Country: "XX"}, newData(t)); err == nil {
		t.Error("Unknown country must fail")
	}
	if _, err := Resolve(Settings{UASelector: "BeOS;;NetPositive"}, newData(t)); err == nil {
		t.Error("Unknown selector must fail")
	}
}

func TestResolveRandomizesPerSession(t *testing.T) {
	data := newData(t)
	seen := make(map[string]bool)
	for i := 0; i < 20; i++ {
		plan, err := Resolve(Settings{UAFull: winChromeUA, Country: "US"}, data)
		if err != nil {
			t.Fatal(err)
		}
		seen[plan.Timezone.ZoneID] = true
	}
	// US maps to six zones; twenty draws virtually always hit at least two
	if len(seen) < 2 {
		t.Errorf("Timezone never varied across sessions: %v", seen)
	}
}

func TestCollectTemplateVarsFrozenAndCoherent(t *testing.T) {
	data := newData(t)
	plan, err := Resolve(Settings{UAFull: winChromeUA, Country: "DE", Language: "de-DE"}, data)
	if err != nil {
		t.Fatal(err)
	}

	m := NewManager(jstmpl.NewLoader(""))
	m.collectTemplateVars(plan)
	vars := m.TemplateVars()

	// The timezone every consumer sees is the plan's zone (I3).
	if vars["__TIMEZONE__"] != plan.Timezone.ZoneID {
		t.Errorf("__TIMEZONE__ = %q, plan zone %q", vars["__TIMEZONE__"], plan.Timezone.ZoneID)
	}
	if vars["__TZ__"] != plan.Timezone.ZoneID {
		t.Errorf("__TZ__ = %q", vars["__TZ__"])
	}
	if vars["timezone_id"] != plan.Timezone.ZoneID {
		t.Errorf("timezone_id = %q", vars["timezone_id"])
	}
	// The UA all surfaces consume is the resolved profile's UA (I2).
	if !strings.Contains(vars["__USER_AGENT__"], "Chrome/131.0.0.0") {
		t.Errorf("__USER_AGENT__ = %q", vars["__USER_AGENT__"])
	}
	if vars["__WEBGL_VENDOR__"] != plan.WebGL.Vendor {
		t.Errorf("__WEBGL_VENDOR__ = %q, plan %q", vars["__WEBGL_VENDOR__"], plan.WebGL.Vendor)
	}

	// Determinism: collecting again over the same plan yields identical vars.
	m2 := NewManager(jstmpl.NewLoader(""))
	m2.collectTemplateVars(plan)
	for k, v := range vars {
		if m2.TemplateVars()[k] != v {
			t.Errorf("Second collection differs for %s: %q vs %q", k, v, m2.TemplateVars()[k])
		}
	}
}

func TestWorkerScriptRendersWithoutGatePlaceholders(t *testing.T) {
	data := newData(t)
	plan, err := Resolve(Settings{UAFull: winChromeUA, Country: "DE", Language: "de-DE"}, data)
	if err != nil {
		t.Fatal(err)
	}

	m := NewManager(jstmpl.NewLoader(""))
	m.collectTemplateVars(plan)

	js, err := m.loader.LoadAndRender(workerTemplate, m.TemplateVars())
	if err != nil {
		t.Fatal(err)
	}
	// Every variable the worker template consumes has a producer in the
	// full plan, so no placeholder survives rendering.
	for _, token := range []string{"__USER_AGENT__", "__PLATFORM__", "__TIMEZONE__", "__LANG_JS__", "__WEBGL_VENDOR__", "__DEVICE_MEMORY__"} {
		if strings.Contains(js, token) {
			t.Errorf("Worker script still contains %s", token)
		}
	}
	if !strings.Contains(js, plan.Timezone.ZoneID) {
		t.Error("Worker script does not carry the session timezone")
	}
}

func TestStealthEnginePlanSkipsAllPatches(t *testing.T) {
	data := newData(t)
	plan, err := Resolve(Settings{UAFull: winChromeUA, BrowserEngine: gates.BrowserEngineStealth}, data)
	if err != nil {
		t.Fatal(err)
	}
	for _, g := range gates.All() {
		if patches := g.JSPatches(plan); len(patches) != 0 {
			t.Errorf("Gate %s still injects %v under the stealth engine", g.Name(), patches)
		}
	}
}

func TestConnectionProfileFor(t *testing.T) {
	if connectionProfileFor("desk_high") != "desk_high" {
		t.Error("Known profile id should map to itself")
	}
	if connectionProfileFor("mystery") != "wifi" {
		t.Error("Unknown profile id should map to wifi")
	}
}
