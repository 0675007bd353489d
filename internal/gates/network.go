package gates

import (
	"strconv"

	"github.com/go-rod/rod"
)

// connectionProfile models the Network Information API surface for one
// connection class.
type connectionProfile struct {
	Type          string
	EffectiveType string
	Downlink      int
	RTT           int
	SaveData      bool
}

// connectionProfiles maps profile names (base-profile ids plus a few common
// aliases) to realistic network characteristics.
var connectionProfiles = map[string]connectionProfile{
	"desk_low":    {"wifi", "3g", 5, 150, false},
	"desk_mid":    {"wifi", "4g", 20, 80, false},
	"desk_high":   {"ethernet", "4g", 50, 30, false},
	"mac_notch":   {"wifi", "4g", 25, 60, false},
	"chrome_book": {"wifi", "3g", 10, 120, false},
	"mobile_high": {"cellular", "5g", 20, 100, true},

	"wifi":      {"wifi", "4g", 20, 80, false},
	"cellular":  {"cellular", "4g", 15, 120, false},
	"ethernet":  {"ethernet", "4g", 50, 30, false},
	"slow_wifi": {"wifi", "3g", 8, 150, false},
	"fast_wifi": {"wifi", "4g", 40, 50, false},
	"5g_mobile": {"cellular", "5g", 25, 100, true},
}

// NetworkGate stubs navigator.connection with the class mapped from the
// session's base profile.
type NetworkGate struct{}

// NewNetworkGate creates the gate.
func NewNetworkGate() *NetworkGate { return &NetworkGate{} }

// Name implements Gate.
func (g *NetworkGate) Name() string { return "NetworkGate" }

// Handle implements Gate.
func (g *NetworkGate) Handle(page *rod.Page, browser *rod.Browser, plan *Plan) error {
	return nil
}

// Headers implements Gate: the connection class has no HTTP surface.
func (g *NetworkGate) Headers(plan *Plan) map[string]string { return nil }

// JSPatches implements Gate.
func (g *NetworkGate) JSPatches(plan *Plan) []string {
	if plan.StealthEngine() || plan.Network.ConnectionProfile == "" {
		return nil
	}
	return []string{"network_info_stub.js"}
}

// JSTemplateVars implements Gate. Unknown profile names fall back to plain
// wifi rather than leaving placeholders unresolved.
func (g *NetworkGate) JSTemplateVars(plan *Plan) map[string]string {
	name := plan.Network.ConnectionProfile
	if name == "" {
		return nil
	}
	cp, ok := connectionProfiles[name]
	if !ok {
		cp = connectionProfiles["wifi"]
	}
	return map[string]string{
		"__CONN_TYPE__":      cp.Type,
		"__EFFECTIVE_TYPE__": cp.EffectiveType,
		"__DOWNLINK__":       strconv.Itoa(cp.Downlink),
		"__RTT__":            strconv.Itoa(cp.RTT),
		"__SAVE_DATA__":      strconv.FormatBool(cp.SaveData),
	}
}
