package gates

import (
	"github.com/go-rod/rod"
	"github.com/rs/zerolog/log"
)

// WebGLGate rewrites getParameter on both WebGL context prototypes so the
// reported GPU matches the session's hardware profile.
type WebGLGate struct{}

// NewWebGLGate creates the gate.
func NewWebGLGate() *WebGLGate { return &WebGLGate{} }

// Name implements Gate.
func (g *WebGLGate) Name() string { return "WebGLGate" }

// Handle implements Gate.
func (g *WebGLGate) Handle(page *rod.Page, browser *rod.Browser, plan *Plan) error {
	if plan.WebGL.Vendor != "" {
		log.Info().Str("tag", "GATE").
			Str("vendor", plan.WebGL.Vendor).
			Str("renderer", plan.WebGL.Renderer).
			Msg("WebGL identity spoofed")
	}
	return nil
}

// Headers implements Gate: WebGL has no HTTP surface.
func (g *WebGLGate) Headers(plan *Plan) map[string]string { return nil }

// JSPatches implements Gate.
func (g *WebGLGate) JSPatches(plan *Plan) []string {
	if plan.StealthEngine() {
		return nil
	}
	if plan.WebGL.Vendor != "" && plan.WebGL.Renderer != "" {
		return []string{"webgl_patch.js"}
	}
	return nil
}

// JSTemplateVars implements Gate.
func (g *WebGLGate) JSTemplateVars(plan *Plan) map[string]string {
	if plan.WebGL.Vendor == "" || plan.WebGL.Renderer == "" {
		return nil
	}
	return map[string]string{
		"__WEBGL_VENDOR__":   jsEscape(plan.WebGL.Vendor),
		"__WEBGL_RENDERER__": jsEscape(plan.WebGL.Renderer),
	}
}
