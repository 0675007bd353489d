package gates

import (
	"github.com/go-rod/rod"
	"github.com/rs/zerolog/log"
)

// ReferrerGate sets a configured Referer header. Like every static gate
// header it is overlaid on every routed request, the landing request
// included.
type ReferrerGate struct{}

// NewReferrerGate creates the gate.
func NewReferrerGate() *ReferrerGate { return &ReferrerGate{} }

// Name implements Gate.
func (g *ReferrerGate) Name() string { return "ReferrerGate" }

// Handle implements Gate.
func (g *ReferrerGate) Handle(page *rod.Page, browser *rod.Browser, plan *Plan) error {
	return nil
}

// Headers implements Gate.
func (g *ReferrerGate) Headers(plan *Plan) map[string]string {
	if plan.Referrer.Referrer == "" {
		return nil
	}
	log.Info().Str("tag", "GATE").Str("referer", plan.Referrer.Referrer).Msg("Referer header set")
	return map[string]string{"referer": plan.Referrer.Referrer}
}

// JSPatches implements Gate.
func (g *ReferrerGate) JSPatches(plan *Plan) []string { return nil }

// JSTemplateVars implements Gate.
func (g *ReferrerGate) JSTemplateVars(plan *Plan) map[string]string { return nil }
