// Package clienthints parses User-Agent strings into the profile that drives
// fingerprint coherence: brand, engine version, platform, architecture and
// Client Hints eligibility. Every spoofed surface (HTTP headers, context
// parameters, injected JS) derives from a single parsed profile so the
// identity never contradicts itself.
package clienthints

import (
	"fmt"
	"math/rand"
	"regexp"
	"strconv"
	"strings"

	"github.com/Rorqualx/gatecap/internal/types"
)

// Platform is the normalized operating-system family of a user agent.
type Platform string

// Recognized platforms. These are the values emitted in sec-ch-ua-platform.
const (
	PlatformWindows  Platform = "Windows"
	PlatformMac      Platform = "macOS"
	PlatformLinux    Platform = "Linux"
	PlatformAndroid  Platform = "Android"
	PlatformIOS      Platform = "iOS"
	PlatformChromeOS Platform = "Chrome OS"
	PlatformOther    Platform = ""
)

// Engine identifies the browser engine family implied by a user agent.
type Engine string

// Engine values. Gecko and WebKit select the Firefox/WebKit JS patch set and
// suppress Client Hints synthesis.
const (
	EngineChromium Engine = "chromium"
	EngineGecko    Engine = "firefox"
	EngineWebKit   Engine = "webkit"
)

// Profile is the parsed view of a User-Agent string. It is derived once per
// session and immutable afterwards.
type Profile struct {
	UserAgent         string
	Brand             string // e.g. "Google Chrome", "Microsoft Edge"
	BrandVersion      string // full brand version, e.g. "131.0.0.0"
	EngineVersion     string // Chromium major, e.g. "131"
	EngineFullVersion string // e.g. "131.0.6778.86"
	Platform          Platform
	PlatformVersion   string
	Architecture      string // "x86", "arm" or ""
	Bitness           string // "64", "32" or ""
	WOW64             bool
	Model             string // device model on mobile
	Mobile            bool
	SupportsCH        bool
}

// brandPatterns is ordered: more specific tokens first, since every
// Chromium derivative also carries a Chrome/ token.
var brandPatterns = []struct {
	re    *regexp.Regexp
	brand string
}{
	{regexp.MustCompile(`EdgA?/([0-9.]+)`), "Microsoft Edge"},
	{regexp.MustCompile(`OPR/([0-9.]+)`), "Opera"},
	{regexp.MustCompile(`YaBrowser/([0-9.]+)`), "Yandex"},
	{regexp.MustCompile(`Brave/([0-9.]+)`), "Brave"},
	{regexp.MustCompile(`SamsungBrowser/([0-9.]+)`), "Samsung Internet"},
	{regexp.MustCompile(`QQBrowser/([0-9.]+)`), "QQBrowser"},
	{regexp.MustCompile(`UCBrowser/([0-9.]+)`), "UC Browser"},
	{regexp.MustCompile(`CriOS/([0-9.]+)`), "Google Chrome"},
	{regexp.MustCompile(`Chrome/([0-9.]+)`), "Google Chrome"},
	{regexp.MustCompile(`Chromium/([0-9.]+)`), "Chromium"},
}

var (
	chromiumVersionRe = regexp.MustCompile(`(?:Chrome|Chromium|CriOS)/([0-9.]+)`)
	firefoxRe         = regexp.MustCompile(`Firefox/([0-9.]+)`)
	safariVersionRe   = regexp.MustCompile(`Version/([0-9.]+).*Safari/`)

	androidModelBuildRe = regexp.MustCompile(`Android [\d.]+; ([^;/)]+) Build/`)
	androidModelRe      = regexp.MustCompile(`Android [\d.]+; ([^;)]+)`)
	iosModelRe          = regexp.MustCompile(`\((iP(?:hone|ad|od)[^;)]*)`)

	windowsVersionRe = regexp.MustCompile(`Windows NT ([\d.]+)`)
	macVersionRe     = regexp.MustCompile(`Mac OS X ([\d_]+)`)
	androidVersionRe = regexp.MustCompile(`Android ([\d.]+)`)
	iosVersionRe     = regexp.MustCompile(`OS ([\d_]+)`)
	crosVersionRe    = regexp.MustCompile(`CrOS [^ ]+ ([\d.]+)`)
)

// archPatterns maps UA substrings to (architecture, bitness, wow64).
// Order matters: wow64 markers win over the generic x86 tokens.
var archPatterns = []struct {
	needles []string
	arch    string
	bitness string
	wow64   bool
}{
	{[]string{"wow64"}, "x86", "32", true},
	{[]string{"amd64", "x86_64", "win64", "x64", "ia64"}, "x86", "64", false},
	{[]string{"i686", "i386", "x86"}, "x86", "32", false},
	{[]string{"arm64", "aarch64", "armv8"}, "arm", "64", false},
	{[]string{"armv7", "armv6", "arm;"}, "arm", "32", false},
}

// Parse derives a Profile from a raw User-Agent header value.
func Parse(ua string) *Profile {
	p := &Profile{UserAgent: ua}

	for _, bp := range brandPatterns {
		if m := bp.re.FindStringSubmatch(ua); m != nil {
			p.Brand = bp.brand
			p.BrandVersion = m[1]
			break
		}
	}
	if m := chromiumVersionRe.FindStringSubmatch(ua); m != nil {
		p.EngineFullVersion = m[1]
		p.EngineVersion = majorOf(m[1])
	} else if m := firefoxRe.FindStringSubmatch(ua); m != nil {
		p.Brand = "Firefox"
		p.BrandVersion = m[1]
		p.EngineFullVersion = m[1]
		p.EngineVersion = majorOf(m[1])
	} else if m := safariVersionRe.FindStringSubmatch(ua); m != nil {
		p.Brand = "Safari"
		p.BrandVersion = m[1]
		p.EngineFullVersion = m[1]
		p.EngineVersion = majorOf(m[1])
	}

	p.Platform = detectPlatform(ua)
	p.PlatformVersion = detectPlatformVersion(p.Platform, ua)

	he := SenseHighEntropy(ua)
	p.Architecture = he.Architecture
	p.Bitness = he.Bitness
	p.WOW64 = he.WOW64
	p.Model = he.Model

	p.Mobile = p.Platform == PlatformAndroid || p.Platform == PlatformIOS ||
		strings.Contains(ua, "Mobile")
	p.SupportsCH = SupportsClientHints(ua)
	return p
}

func majorOf(version string) string {
	if i := strings.IndexByte(version, '.'); i > 0 {
		return version[:i]
	}
	return version
}

func detectPlatform(ua string) Platform {
	switch {
	case strings.Contains(ua, "Windows"):
		return PlatformWindows
	case strings.Contains(ua, "CrOS"):
		return PlatformChromeOS
	case strings.Contains(ua, "Android"):
		return PlatformAndroid
	case strings.Contains(ua, "iPhone"), strings.Contains(ua, "iPad"), strings.Contains(ua, "iPod"):
		return PlatformIOS
	case strings.Contains(ua, "Macintosh"), strings.Contains(ua, "Mac OS X"):
		return PlatformMac
	case strings.Contains(ua, "Linux"):
		return PlatformLinux
	default:
		return PlatformOther
	}
}

func detectPlatformVersion(platform Platform, ua string) string {
	var re *regexp.Regexp
	switch platform {
	case PlatformWindows:
		re = windowsVersionRe
	case PlatformMac:
		re = macVersionRe
	case PlatformAndroid:
		re = androidVersionRe
	case PlatformIOS:
		re = iosVersionRe
	case PlatformChromeOS:
		re = crosVersionRe
	default:
		return ""
	}
	if m := re.FindStringSubmatch(ua); m != nil {
		return strings.ReplaceAll(m[1], "_", ".")
	}
	return ""
}

// HighEntropy carries the UA attributes a server can request through
// Accept-CH beyond the low-entropy defaults.
type HighEntropy struct {
	Architecture    string
	Bitness         string
	WOW64           bool
	Model           string
	Platform        Platform
	PlatformVersion string
}

// SenseHighEntropy extracts architecture, bitness, wow64, model and platform
// details from a UA string using an ordered pattern table.
func SenseHighEntropy(ua string) HighEntropy {
	lower := strings.ToLower(ua)
	he := HighEntropy{
		Platform: detectPlatform(ua),
	}
	he.PlatformVersion = detectPlatformVersion(he.Platform, ua)
	for _, ap := range archPatterns {
		for _, n := range ap.needles {
			if strings.Contains(lower, n) {
				he.Architecture = ap.arch
				he.Bitness = ap.bitness
				he.WOW64 = ap.wow64
				return withModel(he, ua)
			}
		}
	}
	return withModel(he, ua)
}

func withModel(he HighEntropy, ua string) HighEntropy {
	if m := androidModelBuildRe.FindStringSubmatch(ua); m != nil {
		he.Model = strings.TrimSpace(m[1])
	} else if strings.Contains(ua, "Android") {
		if m := androidModelRe.FindStringSubmatch(ua); m != nil {
			he.Model = strings.TrimSpace(m[1])
		}
	} else if m := iosModelRe.FindStringSubmatch(ua); m != nil {
		he.Model = strings.TrimSpace(m[1])
	}
	return he
}

// chFloors lists the per-brand minimum major versions at which a
// Chromium-family browser sends Client Hints.
var chFloors = []struct {
	re  *regexp.Regexp
	min int
}{
	{regexp.MustCompile(`edg[a]?/(\d+)`), 90},
	{regexp.MustCompile(`opr/(\d+)`), 75},
	{regexp.MustCompile(`yabrowser/(\d+)`), 1},
	{regexp.MustCompile(`miui browser/(\d+)`), 1},
	{regexp.MustCompile(`qqbrowser/(\d+)`), 10},
	{regexp.MustCompile(`crios/(\d+)`), 89},
	{regexp.MustCompile(`android.*version/(\d+).*chrome`), 84},
	{regexp.MustCompile(`chrome/(\d+)`), 89},
}

// SupportsClientHints reports whether the browser identified by ua
// participates in the Sec-CH-UA protocol. Firefox and Safari never do.
func SupportsClientHints(ua string) bool {
	lower := strings.ToLower(ua)
	if strings.Contains(lower, "firefox") {
		return false
	}
	if strings.Contains(lower, "safari") && !strings.Contains(lower, "chrome") &&
		!strings.Contains(lower, "chromium") && !strings.Contains(lower, "crios") {
		return false
	}
	for _, f := range chFloors {
		if m := f.re.FindStringSubmatch(lower); m != nil {
			v, err := strconv.Atoi(m[1])
			if err != nil {
				continue
			}
			return v >= f.min
		}
	}
	return false
}

// DetectEngine maps a UA string onto the engine whose patch set applies.
// Empty UA defaults to Chromium.
func DetectEngine(ua string) Engine {
	lower := strings.ToLower(ua)
	if strings.Contains(lower, "firefox") {
		return EngineGecko
	}
	if strings.Contains(lower, "safari") && !strings.Contains(lower, "chrome") &&
		!strings.Contains(lower, "chromium") && !strings.Contains(lower, "crios") {
		return EngineWebKit
	}
	return EngineChromium
}

// GenerateSecChUA emits a GREASE-style low-entropy brand list for a Chromium
// UA, e.g. `"Chromium";v="131", "Google Chrome";v="131", "Not-A.Brand";v="99"`.
// Brand order is randomized per call. Returns ErrUnrecognizedUA for
// non-Chromium user agents.
func GenerateSecChUA(ua string) (string, error) {
	return generateBrandList(ua, false)
}

// GenerateSecChUAFullVersionList emits the long-form brand list carrying full
// versions, used for sec-ch-ua-full-version-list.
func GenerateSecChUAFullVersionList(ua string) (string, error) {
	return generateBrandList(ua, true)
}

func generateBrandList(ua string, full bool) (string, error) {
	p := Parse(ua)
	if p.Brand == "" || p.BrandVersion == "" || p.EngineFullVersion == "" ||
		DetectEngine(ua) != EngineChromium {
		return "", fmt.Errorf("%w: %q", types.ErrUnrecognizedUA, ua)
	}

	type entry struct{ brand, version string }
	var entries []entry
	if full {
		entries = []entry{
			{"Chromium", p.EngineFullVersion},
			{"Not-A.Brand", "99.0.0.0"},
			{p.Brand, p.BrandVersion},
		}
	} else {
		entries = []entry{
			{"Chromium", p.EngineVersion},
			{"Not-A.Brand", "99"},
			{p.Brand, majorOf(p.BrandVersion)},
		}
	}

	seen := make(map[string]bool, len(entries))
	uniq := entries[:0]
	for _, e := range entries {
		if !seen[e.brand] {
			uniq = append(uniq, e)
			seen[e.brand] = true
		}
	}

	rand.Shuffle(len(uniq), func(i, j int) { uniq[i], uniq[j] = uniq[j], uniq[i] })

	parts := make([]string, len(uniq))
	for i, e := range uniq {
		parts[i] = fmt.Sprintf(`"%s";v="%s"`, e.brand, e.version)
	}
	return strings.Join(parts, ", "), nil
}

// JSPlatform maps a platform onto the value injected for navigator.platform.
func JSPlatform(p *Profile) string {
	switch p.Platform {
	case PlatformWindows:
		return "Win32"
	case PlatformMac:
		return "MacIntel"
	case PlatformLinux, PlatformChromeOS:
		return "Linux x86_64"
	case PlatformAndroid:
		return "Linux armv7l"
	case PlatformIOS:
		if strings.Contains(p.Model, "iPad") {
			return "iPad"
		}
		return "iPhone"
	default:
		return ""
	}
}

// OSFamily returns the lower-case family key used by the base-profile and
// WebGL catalogs.
func OSFamily(p Platform) string {
	switch p {
	case PlatformWindows:
		return "windows"
	case PlatformMac:
		return "mac"
	case PlatformLinux:
		return "linux"
	case PlatformAndroid:
		return "android"
	case PlatformIOS:
		return "ios"
	case PlatformChromeOS:
		return "chromeos"
	default:
		return "windows"
	}
}
