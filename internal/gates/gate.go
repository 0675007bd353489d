// Package gates implements the fingerprint policy modules. Each gate owns one
// fingerprint dimension (user agent, language, geolocation, timezone, WebGL,
// network class, referrer, generic stealth) and contributes HTTP headers,
// per-request header injection, JS patch templates and template variables.
// The spoof orchestrator composes them; no gate talks to another directly.
package gates

import (
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/Rorqualx/gatecap/internal/clienthints"
	"github.com/Rorqualx/gatecap/internal/gatedata"
)

// BrowserEngine tags which driver variant is active. The stealth variant
// bundles its own evasions, so gates skip the patches it already covers.
const (
	BrowserEngineStandard = "standard"
	BrowserEngineStealth  = "stealth"
)

// Plan is the fully resolved spoofing plan for one session. The dynamic
// resolver fills it from user configuration before the orchestrator runs;
// it is frozen once spoofing is installed. Cross-gate projections (the UA
// gate reading the WebGL pair, every gate reading the timezone) are explicit
// fields here instead of ad-hoc option-bag writes.
type Plan struct {
	Engine        clienthints.Engine
	BrowserEngine string

	// Profile is the parsed UA; nil disables UA spoofing entirely.
	Profile  *clienthints.Profile
	Hardware gatedata.Hardware

	UserAgent   UserAgentOptions
	Language    LanguageOptions
	Geolocation GeolocationOptions
	Timezone    TimezoneOptions
	WebGL       WebGLOptions
	Network     NetworkOptions
	Referrer    ReferrerOptions

	// Enabled lists gates explicitly switched off; absent names default to
	// enabled.
	Enabled map[string]bool
}

// UserAgentOptions configures the UserAgentGate.
type UserAgentOptions struct {
	UserAgent string // resolved UA header value
	Selector  string // original "<OS>;;<Browser>" selector, if any
}

// LanguageOptions configures the LanguageGate.
type LanguageOptions struct {
	// AcceptLanguage is the full header value ("de-DE,de;q=0.9") or a bare
	// primary tag ("de-DE").
	AcceptLanguage string
}

// GeolocationOptions configures the GeolocationGate.
type GeolocationOptions struct {
	CountryCode string
	Geolocation *gatedata.Geolocation // resolved point, nil when unset
}

// TimezoneOptions configures the TimezoneGate.
type TimezoneOptions struct {
	Country string
	ZoneID  string // resolved IANA zone; empty means UTC
}

// WebGLOptions configures the WebGLGate.
type WebGLOptions struct {
	Vendor   string
	Renderer string
}

// NetworkOptions configures the NetworkGate.
type NetworkOptions struct {
	ConnectionProfile string
}

// ReferrerOptions configures the ReferrerGate.
type ReferrerOptions struct {
	Referrer string
}

// GateEnabled reports whether the named gate participates in this plan.
func (p *Plan) GateEnabled(name string) bool {
	if p.Enabled == nil {
		return true
	}
	enabled, listed := p.Enabled[name]
	return !listed || enabled
}

// StealthEngine reports whether the active driver bundles its own evasions.
func (p *Plan) StealthEngine() bool {
	return p.BrowserEngine == BrowserEngineStealth
}

// ZoneOrUTC returns the resolved timezone id, defaulting to UTC.
func (p *Plan) ZoneOrUTC() string {
	if p.Timezone.ZoneID == "" {
		return "UTC"
	}
	return p.Timezone.ZoneID
}

// Gate is one fingerprint policy module.
type Gate interface {
	// Name identifies the gate in configuration maps.
	Name() string
	// Handle performs one-shot setup against the browser/page. It must be
	// idempotent; a failure here is fatal for the session.
	Handle(page *rod.Page, browser *rod.Browser, plan *Plan) error
	// Headers returns static headers merged into every request.
	Headers(plan *Plan) map[string]string
	// JSPatches lists the JS templates to install, in order. Gates return
	// nothing when the active driver already covers the surface.
	JSPatches(plan *Plan) []string
	// JSTemplateVars returns the variables this gate contributes to the
	// shared template table. Each variable has exactly one producer.
	JSTemplateVars(plan *Plan) map[string]string
}

// HeaderInjector is implemented by gates that add per-request dynamic
// headers (the Client Hints set varies per origin based on Accept-CH).
type HeaderInjector interface {
	InjectHeaders(req *proto.NetworkRequest) map[string]string
}

// PageHandler is implemented by gates whose listeners can only bind once the
// page exists (worker events, response observation).
type PageHandler interface {
	SetupPageHandlers(page *rod.Page, browser *rod.Browser, plan *Plan, workerScript string) error
}

// All returns the gate set in the fixed dependency order the orchestrator
// iterates: geolocation and referrer first, stealth and timezone last.
func All() []Gate {
	return []Gate{
		NewGeolocationGate(),
		NewReferrerGate(),
		NewUserAgentGate(),
		NewLanguageGate(),
		NewNetworkGate(),
		NewWebGLGate(),
		NewStealthGate(),
		NewTimezoneGate(),
	}
}

// jsEscape pre-encodes a value destined for a double-quoted JS string
// literal. Template substitution itself is verbatim.
func jsEscape(s string) string {
	r := strings.NewReplacer(
		`\`, `\\`,
		`"`, `\"`,
		"\n", `\n`,
		"\r", `\r`,
		"</", `<\/`,
	)
	return r.Replace(s)
}
