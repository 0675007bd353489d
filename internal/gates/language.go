package gates

import (
	"encoding/json"
	"strings"

	"github.com/go-rod/rod"
	"github.com/rs/zerolog/log"

	"github.com/Rorqualx/gatecap/internal/clienthints"
)

// LanguageGate spoofs Accept-Language and the JS-visible language list. It
// owns the __LANG_JS__ template variable, consumed by both the main-document
// and worker scripts, and __TZ__, read by the fwk_stealth patch.
type LanguageGate struct{}

// NewLanguageGate creates the gate.
func NewLanguageGate() *LanguageGate { return &LanguageGate{} }

// Name implements Gate.
func (g *LanguageGate) Name() string { return "LanguageGate" }

// Handle implements Gate.
func (g *LanguageGate) Handle(page *rod.Page, browser *rod.Browser, plan *Plan) error {
	return nil
}

// Headers implements Gate.
func (g *LanguageGate) Headers(plan *Plan) map[string]string {
	if plan.Language.AcceptLanguage == "" {
		return nil
	}
	log.Info().Str("tag", "GATE").Str("accept-language", plan.Language.AcceptLanguage).Msg("Language header spoofed")
	return map[string]string{"accept-language": plan.Language.AcceptLanguage}
}

// JSPatches implements Gate. Chromium gets its language surface from the
// spoof_useragent patch; Gecko and WebKit need the dedicated one.
func (g *LanguageGate) JSPatches(plan *Plan) []string {
	if plan.StealthEngine() || plan.Language.AcceptLanguage == "" {
		return nil
	}
	if plan.Engine == clienthints.EngineGecko || plan.Engine == clienthints.EngineWebKit {
		return []string{"fwk_stealth.js"}
	}
	return nil
}

// JSTemplateVars implements Gate.
func (g *LanguageGate) JSTemplateVars(plan *Plan) map[string]string {
	langs := Languages(plan.Language.AcceptLanguage)
	encoded, _ := json.Marshal(langs)
	return map[string]string{
		"__LANG_JS__": string(encoded),
		"__TZ__":      plan.ZoneOrUTC(),
	}
}

// Languages expands an Accept-Language value into the navigator.languages
// list: the primary tag plus its base language. Defaults to en-US.
func Languages(acceptLanguage string) []string {
	if acceptLanguage == "" {
		return []string{"en-US", "en"}
	}
	primary := strings.TrimSpace(strings.SplitN(acceptLanguage, ",", 2)[0])
	if i := strings.IndexByte(primary, ';'); i > 0 {
		primary = primary[:i]
	}
	langs := []string{primary}
	if i := strings.IndexByte(primary, '-'); i > 0 {
		langs = append(langs, primary[:i])
	}
	return langs
}
