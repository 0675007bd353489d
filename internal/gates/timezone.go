package gates

import (
	"github.com/go-rod/rod"
	"github.com/rs/zerolog/log"
)

// TimezoneGate pins Intl and Date to the session's IANA zone. The
// orchestrator reads this gate's template vars before any other so every
// gate observes the same timezone_id.
type TimezoneGate struct{}

// NewTimezoneGate creates the gate.
func NewTimezoneGate() *TimezoneGate { return &TimezoneGate{} }

// Name implements Gate.
func (g *TimezoneGate) Name() string { return "TimezoneGate" }

// Handle implements Gate.
func (g *TimezoneGate) Handle(page *rod.Page, browser *rod.Browser, plan *Plan) error {
	if plan.Timezone.ZoneID != "" {
		log.Info().Str("tag", "GATE").Str("zone", plan.Timezone.ZoneID).Msg("Timezone selected")
	}
	return nil
}

// Headers implements Gate: timezone has no HTTP surface.
func (g *TimezoneGate) Headers(plan *Plan) map[string]string { return nil }

// JSPatches implements Gate. Without a country no timezone patch is
// installed; the driver-level override still pins UTC when a UA is set.
func (g *TimezoneGate) JSPatches(plan *Plan) []string {
	if plan.StealthEngine() || plan.Timezone.Country == "" {
		return nil
	}
	return []string{"timezone_spoof.js"}
}

// JSTemplateVars implements Gate.
func (g *TimezoneGate) JSTemplateVars(plan *Plan) map[string]string {
	return map[string]string{
		"__TIMEZONE__": plan.ZoneOrUTC(),
		"timezone_id":  plan.ZoneOrUTC(),
	}
}
