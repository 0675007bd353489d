package gates

import (
	"strconv"

	"github.com/go-rod/rod"
	"github.com/rs/zerolog/log"
)

// GeolocationGate answers navigator.geolocation queries with the per-session
// point resolved inside the configured country. No driver permission grant
// is issued: a granted-without-prompt permission is itself an automation
// signal, so the JS patch replaces the API instead.
type GeolocationGate struct{}

// NewGeolocationGate creates the gate.
func NewGeolocationGate() *GeolocationGate { return &GeolocationGate{} }

// Name implements Gate.
func (g *GeolocationGate) Name() string { return "GeolocationGate" }

// Handle implements Gate.
func (g *GeolocationGate) Handle(page *rod.Page, browser *rod.Browser, plan *Plan) error {
	if plan.Geolocation.Geolocation != nil {
		log.Info().Str("tag", "GATE").
			Float64("lat", plan.Geolocation.Geolocation.Latitude).
			Float64("lon", plan.Geolocation.Geolocation.Longitude).
			Str("country", plan.Geolocation.CountryCode).
			Msg("Geolocation spoofed")
	}
	return nil
}

// Headers implements Gate: geolocation has no HTTP surface.
func (g *GeolocationGate) Headers(plan *Plan) map[string]string { return nil }

// JSPatches implements Gate.
func (g *GeolocationGate) JSPatches(plan *Plan) []string {
	if plan.StealthEngine() || plan.Geolocation.Geolocation == nil {
		return nil
	}
	return []string{"geolocation_spoof.js"}
}

// JSTemplateVars implements Gate.
func (g *GeolocationGate) JSTemplateVars(plan *Plan) map[string]string {
	geo := plan.Geolocation.Geolocation
	if geo == nil {
		return nil
	}
	return map[string]string{
		"__LATITUDE__":  strconv.FormatFloat(geo.Latitude, 'f', -1, 64),
		"__LONGITUDE__": strconv.FormatFloat(geo.Longitude, 'f', -1, 64),
		"__ACCURACY__":  strconv.FormatFloat(geo.Accuracy, 'f', -1, 64),
	}
}
