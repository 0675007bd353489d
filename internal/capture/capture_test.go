package capture

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLooksLikeDownload(t *testing.T) {
	tests := []struct {
		name string
		ct   string
		cd   string
		want bool
	}{
		{"attachment disposition", "text/html", "attachment", true},
		{"filename disposition", "text/plain", `inline; filename="a.txt"`, true},
		{"pdf", "application/pdf", "", true},
		{"zip", "application/zip", "", true},
		{"octet-stream", "application/octet-stream", "", true},
		{"msdownload", "application/x-msdownload", "", true},
		{"portable executable", "application/vnd.microsoft.portable-executable", "", true},
		{"plain html", "text/html; charset=utf-8", "", false},
		{"image", "image/png", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := LooksLikeDownload(tt.ct, tt.cd); got != tt.want {
				t.Errorf("LooksLikeDownload(%q, %q) = %v", tt.ct, tt.cd, got)
			}
		})
	}
}

func TestGuessExt(t *testing.T) {
	tests := []struct{ ct, want string }{
		{"text/css", ".css"},
		{"application/javascript; charset=utf-8", ".js"},
		{"text/javascript", ".js"},
		{"image/png", ".png"},
		{"image/svg+xml", ".svg"},
		{"font/woff2", ".woff2"},
		{"text/html; charset=utf-8", ".html"},
		{"application/pdf", ".pdf"},
		{"application/zip", ".zip"},
		{"application/x-msdownload", ".exe"},
		{"application/json", ".json"},
		{"application/x-bizarre", ""},
	}
	for _, tt := range tests {
		if got := GuessExt(tt.ct); got != tt.want {
			t.Errorf("GuessExt(%q) = %q, want %q", tt.ct, got, tt.want)
		}
	}
}

func TestFilenameFromCD(t *testing.T) {
	// RFC 5987 form decodes percent-encoding and wins over plain filename=
	name := FilenameFromCD(`attachment; filename="fallback.bin"; filename*=UTF-8''na%C3%AFve%20file.pdf`)
	if !strings.HasPrefix(name, "naïve file_") || !strings.HasSuffix(name, ".pdf") {
		t.Errorf("RFC 5987 name = %q", name)
	}

	name = FilenameFromCD(`attachment; filename="report.pdf"`)
	if !strings.HasPrefix(name, "report_") || !strings.HasSuffix(name, ".pdf") {
		t.Errorf("Legacy name = %q", name)
	}

	if FilenameFromCD("") != "" {
		t.Error("Empty disposition must yield empty name")
	}
	if FilenameFromCD("inline") != "" {
		t.Error("Disposition without filename must yield empty name")
	}
}

func TestFilenameFromCDNeverEscapesDir(t *testing.T) {
	hostile := []string{
		`attachment; filename="../../etc/passwd"`,
		`attachment; filename*=UTF-8''..%2F..%2Fetc%2Fpasswd`,
		`attachment; filename="c:\windows\system32\evil.exe"`,
	}
	for _, cd := range hostile {
		name := FilenameFromCD(cd)
		if strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
			t.Errorf("Hostile disposition produced unsafe name: %q -> %q", cd, name)
		}
	}
}

func TestFilenameFromURL(t *testing.T) {
	name := FilenameFromURL("https://cdn.example/assets/app.min.js?v=3", "")
	if !strings.HasPrefix(name, "app.min_") || !strings.HasSuffix(name, ".js") {
		t.Errorf("name = %q", name)
	}

	// no basename: fall back to "index" with the inferred extension
	name = FilenameFromURL("https://example.com/", ".html")
	if !strings.HasPrefix(name, "index_") || !strings.HasSuffix(name, ".html") {
		t.Errorf("name = %q", name)
	}

	// same basename from different URLs differs via salt
	a := FilenameFromURL("https://a.example/x/logo.png", "")
	b := FilenameFromURL("https://b.example/y/logo.png", "")
	if a == b {
		t.Error("Salted names must differ per URL")
	}
}

func TestDirForType(t *testing.T) {
	tests := []struct{ in, want string }{
		{"Image", "images"},
		{"Script", "scripts"},
		{"Stylesheet", "stylesheets"},
		{"Font", "fonts"},
		{"Media", "media"},
		{"Document", "html"},
		{"XHR", "other"},
		{"WebSocket", "other"},
	}
	for _, tt := range tests {
		if got := DirForType(tt.in); got != tt.want {
			t.Errorf("DirForType(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestResourceDataFileMappingIsImmutableOnceSet(t *testing.T) {
	res := NewResourceData()
	if !res.SetFile("https://a/x", "images/x.png") {
		t.Fatal("First SetFile must win")
	}
	if res.SetFile("https://a/x", "images/other.png") {
		t.Error("Second SetFile for same URL must be rejected")
	}
	rel, ok := res.FileFor("https://a/x")
	if !ok || rel != "images/x.png" {
		t.Errorf("FileFor = %q, %v", rel, ok)
	}

	res.DropFile("https://a/x")
	if _, ok := res.FileFor("https://a/x"); ok {
		t.Error("DropFile should remove the mapping")
	}
}

func TestResourceDataHeadersRoundTrip(t *testing.T) {
	dir := t.TempDir()
	res := NewResourceData()
	res.RecordRequest("https://a/x", "GET", map[string]string{"user-agent": "UA"})
	res.RecordResponse("https://a/x", 200, map[string]string{"content-type": "text/html"})
	res.RecordResponse("https://a/y", 404, nil)

	reqPath := filepath.Join(dir, "http_request_headers.json")
	respPath := filepath.Join(dir, "http_response_headers.json")
	if err := res.WriteRequestHeaders(reqPath); err != nil {
		t.Fatal(err)
	}
	if err := res.WriteResponseHeaders(respPath); err != nil {
		t.Fatal(err)
	}

	reqRaw, _ := os.ReadFile(reqPath)
	if !strings.Contains(string(reqRaw), `"method": "GET"`) {
		t.Errorf("request headers JSON missing method: %s", reqRaw)
	}
	respRaw, _ := os.ReadFile(respPath)
	if !strings.Contains(string(respRaw), `"status_code": 200`) {
		t.Errorf("response headers JSON missing status: %s", respRaw)
	}
	if !strings.Contains(string(respRaw), `"status_code": 404`) {
		t.Error("response without body must still be recorded")
	}
}

func TestResourceDataStats(t *testing.T) {
	res := NewResourceData()
	res.AddDownload()
	res.AddDownload()
	res.AddWarning()
	res.AddError()
	s := res.StatsSnapshot()
	if s.Downloads != 2 || s.Warnings != 1 || s.Errors != 1 {
		t.Errorf("stats = %+v", s)
	}
}

func TestHeaderFold(t *testing.T) {
	h := map[string]string{"Content-Type": "application/pdf"}
	if headerFold(h, "content-type") != "application/pdf" {
		t.Error("Case-insensitive lookup failed")
	}
	if headerFold(h, "content-disposition") != "" {
		t.Error("Missing header should be empty")
	}
}

func TestIsGoneInterception(t *testing.T) {
	if !isGoneInterception(errFake("Invalid InterceptionId")) {
		t.Error("Gone interception not detected")
	}
	if isGoneInterception(errFake("something else")) {
		t.Error("Unrelated error flagged as gone")
	}
	if isGoneInterception(nil) {
		t.Error("nil flagged as gone")
	}
}

type errFake string

func (e errFake) Error() string { return string(e) }
