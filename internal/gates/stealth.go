package gates

import (
	"strconv"

	"github.com/go-rod/rod"
)

// stealthPatches is the fixed, ordered floor set of engine-agnostic
// evasions. These cover surfaces no other gate owns; duplicating another
// gate's patch here would double-apply it.
var stealthPatches = []string{
	"font_mask.js",
	"webrtc_leak_block.js",
	"performance_timing.js",
	"incognito.js",
	"dpr_css_patch.js",
	"gamepad_midi_hid.js",
	"sensor_api_stub.js",
}

// StealthGate establishes floor behavior that would otherwise reveal
// automation regardless of which identity the session projects.
type StealthGate struct{}

// NewStealthGate creates the gate.
func NewStealthGate() *StealthGate { return &StealthGate{} }

// Name implements Gate.
func (g *StealthGate) Name() string { return "StealthGate" }

// Handle implements Gate.
func (g *StealthGate) Handle(page *rod.Page, browser *rod.Browser, plan *Plan) error {
	return nil
}

// Headers implements Gate: stealth has no HTTP surface.
func (g *StealthGate) Headers(plan *Plan) map[string]string { return nil }

// JSPatches implements Gate. The stealth driver variant ships its own
// bundle, so nothing is layered on top of it.
func (g *StealthGate) JSPatches(plan *Plan) []string {
	if plan.StealthEngine() {
		return nil
	}
	out := make([]string, len(stealthPatches))
	copy(out, stealthPatches)
	return out
}

// JSTemplateVars implements Gate: the DPR/screen patch consumes the screen
// draw from the hardware profile.
func (g *StealthGate) JSTemplateVars(plan *Plan) map[string]string {
	w, h := plan.Hardware.ScreenW, plan.Hardware.ScreenH
	if w == 0 || h == 0 {
		w, h = 1280, 720
	}
	return map[string]string{
		"__SCREEN_W__": strconv.Itoa(w),
		"__SCREEN_H__": strconv.Itoa(h),
	}
}
