package clienthints

import (
	"errors"
	"strings"
	"testing"

	"github.com/Rorqualx/gatecap/internal/types"
)

const (
	winChromeUA  = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"
	macSafariUA  = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Safari/605.1.15"
	linFirefoxUA = "Mozilla/5.0 (X11; Linux x86_64; rv:124.0) Gecko/20100101 Firefox/124.0"
	androidUA    = "Mozilla/5.0 (Linux; Android 13; Pixel 7 Build/TQ3A.230805.001) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.6099.43 Mobile Safari/537.36"
	iphoneUA     = "Mozilla/5.0 (iPhone; CPU iPhone OS 17_4 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) CriOS/122.0.6261.62 Mobile/15E148 Safari/604.1"
	edgeUA       = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36 Edg/120.0.2210.91"
	wow64UA      = "Mozilla/5.0 (Windows NT 10.0; WOW64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/109.0.0.0 Safari/537.36"
)

func TestParseWindowsChrome(t *testing.T) {
	p := Parse(winChromeUA)
	if p.Brand != "Google Chrome" {
		t.Errorf("Brand = %q", p.Brand)
	}
	if p.EngineVersion != "131" {
		t.Errorf("EngineVersion = %q", p.EngineVersion)
	}
	if p.EngineFullVersion != "131.0.0.0" {
		t.Errorf("EngineFullVersion = %q", p.EngineFullVersion)
	}
	if p.Platform != PlatformWindows {
		t.Errorf("Platform = %q", p.Platform)
	}
	if p.PlatformVersion != "10.0" {
		t.Errorf("PlatformVersion = %q", p.PlatformVersion)
	}
	if p.Architecture != "x86" || p.Bitness != "64" || p.WOW64 {
		t.Errorf("arch/bitness/wow64 = %q/%q/%v", p.Architecture, p.Bitness, p.WOW64)
	}
	if p.Mobile {
		t.Error("Desktop UA flagged as mobile")
	}
	if !p.SupportsCH {
		t.Error("Chrome 131 should send client hints")
	}
}

func TestParseEdgeBrandWinsOverChrome(t *testing.T) {
	p := Parse(edgeUA)
	if p.Brand != "Microsoft Edge" {
		t.Errorf("Brand = %q, want Microsoft Edge", p.Brand)
	}
	if p.EngineVersion != "120" {
		t.Errorf("EngineVersion = %q", p.EngineVersion)
	}
}

func TestParseWOW64(t *testing.T) {
	p := Parse(wow64UA)
	if !p.WOW64 {
		t.Error("WOW64 marker not detected")
	}
	if p.Architecture != "x86" || p.Bitness != "32" {
		t.Errorf("WOW64 should imply x86/32, got %q/%q", p.Architecture, p.Bitness)
	}
}

func TestParseAndroidModel(t *testing.T) {
	p := Parse(androidUA)
	if p.Model != "Pixel 7" {
		t.Errorf("Model = %q, want Pixel 7", p.Model)
	}
	if !p.Mobile {
		t.Error("Android UA should be mobile")
	}
	if p.PlatformVersion != "13" {
		t.Errorf("PlatformVersion = %q", p.PlatformVersion)
	}
}

func TestParseIOSModel(t *testing.T) {
	p := Parse(iphoneUA)
	if !strings.HasPrefix(p.Model, "iPhone") {
		t.Errorf("Model = %q", p.Model)
	}
	if p.Platform != PlatformIOS {
		t.Errorf("Platform = %q", p.Platform)
	}
	if p.PlatformVersion != "17.4" {
		t.Errorf("PlatformVersion = %q", p.PlatformVersion)
	}
}

func TestSupportsClientHints(t *testing.T) {
	tests := []struct {
		name string
		ua   string
		want bool
	}{
		{"chrome 131", winChromeUA, true},
		{"chrome below floor", strings.Replace(winChromeUA, "131.0.0.0", "88.0.4324.96", 1), false},
		{"edge 120", edgeUA, true},
		{"firefox", linFirefoxUA, false},
		{"safari", macSafariUA, false},
		{"chrome on iOS", iphoneUA, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SupportsClientHints(tt.ua); got != tt.want {
				t.Errorf("SupportsClientHints = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDetectEngine(t *testing.T) {
	tests := []struct {
		ua   string
		want Engine
	}{
		{winChromeUA, EngineChromium},
		{linFirefoxUA, EngineGecko},
		{macSafariUA, EngineWebKit},
		{iphoneUA, EngineChromium}, // CriOS is Chromium-branded
		{"", EngineChromium},
	}
	for _, tt := range tests {
		if got := DetectEngine(tt.ua); got != tt.want {
			t.Errorf("DetectEngine(%.40q) = %q, want %q", tt.ua, got, tt.want)
		}
	}
}

func TestGenerateSecChUA(t *testing.T) {
	ch, err := GenerateSecChUA(winChromeUA)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{`"Chromium";v="131"`, `"Google Chrome";v="131"`, `"Not-A.Brand";v="99"`} {
		if !strings.Contains(ch, want) {
			t.Errorf("sec-ch-ua %q missing %s", ch, want)
		}
	}
	if strings.Count(ch, ";v=") != 3 {
		t.Errorf("Expected exactly 3 brand entries: %q", ch)
	}
}

func TestGenerateSecChUARejectsNonChromium(t *testing.T) {
	for _, ua := range []string{linFirefoxUA, macSafariUA} {
		if _, err := GenerateSecChUA(ua); !errors.Is(err, types.ErrUnrecognizedUA) {
			t.Errorf("Expected ErrUnrecognizedUA for %.40q, got %v", ua, err)
		}
	}
}

func TestGenerateSecChUAFullVersionList(t *testing.T) {
	ch, err := GenerateSecChUAFullVersionList(androidUA)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(ch, `"Chromium";v="120.0.6099.43"`) {
		t.Errorf("Full version list missing full Chromium version: %q", ch)
	}
	if !strings.Contains(ch, `"Not-A.Brand";v="99.0.0.0"`) {
		t.Errorf("Full version list missing GREASE entry: %q", ch)
	}
}

// Round-trip: the brand list must agree with the parsed profile for every
// Chromium UA we synthesize it from.
func TestSecChUARoundTrip(t *testing.T) {
	for _, ua := range []string{winChromeUA, edgeUA, androidUA, iphoneUA} {
		p := Parse(ua)
		ch, err := GenerateSecChUA(ua)
		if err != nil {
			t.Fatalf("%.40q: %v", ua, err)
		}
		if !strings.Contains(ch, `"`+p.Brand+`";v="`+majorOf(p.BrandVersion)+`"`) {
			t.Errorf("Brand list %q does not carry parsed brand %q", ch, p.Brand)
		}
		if !strings.Contains(ch, `"Chromium";v="`+p.EngineVersion+`"`) {
			t.Errorf("Brand list %q does not carry engine version %q", ch, p.EngineVersion)
		}
	}
}

func TestJSPlatform(t *testing.T) {
	tests := []struct {
		ua   string
		want string
	}{
		{winChromeUA, "Win32"},
		{macSafariUA, "MacIntel"},
		{linFirefoxUA, "Linux x86_64"},
		{androidUA, "Linux armv7l"},
		{iphoneUA, "iPhone"},
	}
	for _, tt := range tests {
		if got := JSPlatform(Parse(tt.ua)); got != tt.want {
			t.Errorf("JSPlatform(%.40q) = %q, want %q", tt.ua, got, tt.want)
		}
	}
}

func TestOSFamily(t *testing.T) {
	if OSFamily(PlatformMac) != "mac" || OSFamily(PlatformChromeOS) != "chromeos" {
		t.Error("OSFamily mapping broken")
	}
}
