// Package spoof composes the gate pipeline: it resolves user-supplied
// selection criteria into a concrete per-session plan, merges gate outputs
// into HTTP routing and JS init scripts, and keeps every spoofed surface
// coherent with the single resolved identity.
package spoof

import (
	"github.com/rs/zerolog/log"

	"github.com/Rorqualx/gatecap/internal/clienthints"
	"github.com/Rorqualx/gatecap/internal/gatedata"
	"github.com/Rorqualx/gatecap/internal/gates"
)

// Settings carries the user-level selection criteria for one session.
type Settings struct {
	Country       string // ISO 3166-1 alpha-2, empty disables geo/timezone
	Language      string // Accept-Language value or bare tag
	UASelector    string // "<OS>;;<Browser>" catalog selector
	UAFull        string // verbatim UA header, wins over the selector
	Referrer      string
	BrowserEngine string          // gates.BrowserEngineStandard or ...Stealth
	GatesEnabled  map[string]bool // nil means all enabled
}

// Resolve turns selection criteria into a frozen per-session plan: a
// concrete UA, a point inside the country polygon, one IANA zone, one
// hardware draw and the matching network class. Each call randomizes
// independently; the input settings are never mutated.
func Resolve(s Settings, data *gatedata.Manager) (*gates.Plan, error) {
	plan := &gates.Plan{
		BrowserEngine: s.BrowserEngine,
		Language:      gates.LanguageOptions{AcceptLanguage: s.Language},
		Referrer:      gates.ReferrerOptions{Referrer: s.Referrer},
		Enabled:       s.GatesEnabled,
	}
	if plan.BrowserEngine == "" {
		plan.BrowserEngine = gates.BrowserEngineStandard
	}

	ua := s.UAFull
	if ua == "" && s.UASelector != "" {
		chosen, err := data.ChooseUA(s.UASelector)
		if err != nil {
			return nil, err
		}
		ua = chosen
	}

	plan.Engine = clienthints.DetectEngine(ua)

	if ua != "" {
		plan.Profile = clienthints.Parse(ua)
		plan.UserAgent = gates.UserAgentOptions{UserAgent: ua, Selector: s.UASelector}

		family := clienthints.OSFamily(plan.Profile.Platform)
		base, err := data.SelectBaseProfile(family)
		if err != nil {
			return nil, err
		}
		plan.Hardware = base.Draw()
		plan.WebGL = gates.WebGLOptions{
			Vendor:   plan.Hardware.WebGLVendor,
			Renderer: plan.Hardware.WebGLRenderer,
		}
		if plan.WebGL.Vendor == "" {
			plan.WebGL.Vendor, plan.WebGL.Renderer = gatedata.RandomWebGLPair(family)
		}
		plan.Network = gates.NetworkOptions{ConnectionProfile: connectionProfileFor(plan.Hardware.ProfileID)}

		log.Debug().
			Str("profile", plan.Hardware.ProfileID).
			Int("mem", plan.Hardware.MemoryGiB).
			Int("cores", plan.Hardware.Cores).
			Str("gpu", plan.WebGL.Renderer).
			Msg("Hardware identity drawn")
	}

	if s.Country != "" {
		geo, err := gatedata.RandomPointInCountry(s.Country)
		if err != nil {
			return nil, err
		}
		plan.Geolocation = gates.GeolocationOptions{CountryCode: s.Country, Geolocation: &geo}
		plan.Timezone = gates.TimezoneOptions{Country: s.Country, ZoneID: gatedata.SelectZone(s.Country)}
	}

	return plan, nil
}

// connectionProfileFor maps a base-profile id onto its network class.
// Unknown ids get plain wifi.
func connectionProfileFor(profileID string) string {
	switch profileID {
	case "desk_low", "desk_mid", "desk_high", "mac_notch", "chrome_book", "mobile_high":
		return profileID
	default:
		return "wifi"
	}
}
