package session

import (
	"errors"
	"strings"
	"testing"

	"github.com/Rorqualx/gatecap/internal/config"
	"github.com/Rorqualx/gatecap/internal/types"
)

func testRunner() *Runner {
	cfg := config.Defaults()
	cfg.OutputDir = "/tmp/gatecap-test"
	cfg.RunID = "run1"
	return New(cfg, nil)
}

func TestOutputDirSlug(t *testing.T) {
	r := testRunner()
	dir := r.OutputDir("https://evil.example.com:8443/landing/page")
	if !strings.Contains(dir, "/run1/saved_evil.example.com_8443_landing_page_") {
		t.Errorf("OutputDir = %q", dir)
	}
	// deterministic for the same URL
	if dir != r.OutputDir("https://evil.example.com:8443/landing/page") {
		t.Error("OutputDir must be deterministic")
	}
	// different path, different slug
	if dir == r.OutputDir("https://evil.example.com:8443/other") {
		t.Error("Different URLs must slug differently")
	}
}

func TestOutputDirRootPath(t *testing.T) {
	r := testRunner()
	dir := r.OutputDir("https://example.com/")
	if !strings.Contains(dir, "saved_example.com_root_") {
		t.Errorf("OutputDir = %q", dir)
	}
}

func TestClassifyNavError(t *testing.T) {
	tests := []struct {
		name string
		msg  string
		want types.NavKind
	}{
		{"aborted", "navigation failed: net::ERR_ABORTED", types.NavAborted},
		{"cert authority", "net::ERR_CERT_AUTHORITY_INVALID", types.NavTLS},
		{"cert date", "net::ERR_CERT_DATE_INVALID", types.NavTLS},
		{"ssl protocol", "ERR_SSL_PROTOCOL_ERROR", types.NavTLS},
		{"insecure response", "net::ERR_INSECURE_RESPONSE", types.NavTLS},
		{"certificate word", "invalid certificate presented", types.NavTLS},
		{"dns", "net::ERR_NAME_NOT_RESOLVED", types.NavOther},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classifyNavError("https://x", errors.New(tt.msg))
			var nav *types.NavigationError
			if !errors.As(err, &nav) {
				t.Fatalf("Expected NavigationError, got %T", err)
			}
			if nav.Kind != tt.want {
				t.Errorf("Kind = %v, want %v", nav.Kind, tt.want)
			}
		})
	}
}
