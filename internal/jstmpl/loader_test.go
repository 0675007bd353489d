package jstmpl

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Rorqualx/gatecap/internal/types"
)

func TestLoadEmbedded(t *testing.T) {
	l := NewLoader("")
	tpl, err := l.Load("webgl_patch.js")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(tpl, "__WEBGL_VENDOR__") {
		t.Error("Template missing expected placeholder")
	}
}

func TestLoadUnknownTemplate(t *testing.T) {
	l := NewLoader("")
	if _, err := l.Load("does_not_exist.js"); !errors.Is(err, types.ErrTemplateNotFound) {
		t.Errorf("Expected ErrTemplateNotFound, got %v", err)
	}
}

func TestLoadCaches(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "probe.js")
	if err := os.WriteFile(path, []byte("first"), 0o644); err != nil {
		t.Fatal(err)
	}
	l := NewLoader(dir)
	if tpl, _ := l.Load("probe.js"); tpl != "first" {
		t.Fatalf("Load = %q", tpl)
	}
	// mutate on disk; the cache must keep serving the first read
	if err := os.WriteFile(path, []byte("second"), 0o644); err != nil {
		t.Fatal(err)
	}
	if tpl, _ := l.Load("probe.js"); tpl != "first" {
		t.Errorf("Cache not used, got %q", tpl)
	}
}

func TestDirOverridesEmbedded(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "webgl_patch.js"), []byte("override"), 0o644); err != nil {
		t.Fatal(err)
	}
	l := NewLoader(dir)
	tpl, err := l.Load("webgl_patch.js")
	if err != nil {
		t.Fatal(err)
	}
	if tpl != "override" {
		t.Errorf("Expected override content, got %.30q", tpl)
	}

	// files absent from the dir still resolve from the embedded set
	if _, err := l.Load("timezone_spoof.js"); err != nil {
		t.Error(err)
	}
}

func TestRender(t *testing.T) {
	tpl := `var ua = "__USER_AGENT__"; var tz = "__TZ__"; var keep = "__UNKNOWN__";`
	out := Render(tpl, map[string]string{
		"user_agent": "TestAgent/1.0",
		"__TZ__":     "Europe/Berlin",
	})
	if !strings.Contains(out, `var ua = "TestAgent/1.0"`) {
		t.Errorf("user_agent not substituted: %q", out)
	}
	if !strings.Contains(out, `var tz = "Europe/Berlin"`) {
		t.Errorf("__TZ__ not substituted: %q", out)
	}
	// placeholders no gate contributed stay intact
	if !strings.Contains(out, "__UNKNOWN__") {
		t.Errorf("Unknown placeholder should be left alone: %q", out)
	}
}

func TestPlaceholder(t *testing.T) {
	tests := []struct{ in, want string }{
		{"user_agent", "__USER_AGENT__"},
		{"__TZ__", "__TZ__"},
		{"downlink", "__DOWNLINK__"},
	}
	for _, tt := range tests {
		if got := Placeholder(tt.in); got != tt.want {
			t.Errorf("Placeholder(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestLoadAndRenderTemplateVars(t *testing.T) {
	l := NewLoader("")
	out, err := l.LoadAndRender("network_info_stub.js", map[string]string{
		"__CONN_TYPE__":      "wifi",
		"__EFFECTIVE_TYPE__": "4g",
		"__DOWNLINK__":       "20",
		"__RTT__":            "80",
		"__SAVE_DATA__":      "false",
	})
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(out, "__CONN_TYPE__") {
		t.Error("Placeholder left unsubstituted")
	}
	if !strings.Contains(out, `effectiveType: "4g"`) {
		t.Errorf("Rendered output wrong: %.120q", out)
	}
}
