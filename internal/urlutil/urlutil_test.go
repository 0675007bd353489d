package urlutil

import "testing"

func TestDeobfuscate(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain http", "http://a.b/p", "http://a.b/p"},
		{"hxxp", "hxxp://a.b/p", "http://a.b/p"},
		{"hxxps", "hxxps://a.b/p", "https://a.b/p"},
		{"defanged dots", "hxxp://a[.]b[:]8080/p", "http://a.b:8080/p"},
		{"whitespace", "  http://a.b/p \n", "http://a.b/p"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Deobfuscate(tt.in); got != tt.want {
				t.Errorf("Deobfuscate(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestDeobfuscateIdempotent(t *testing.T) {
	// deobfuscating an already plain URL leaves it unchanged
	in := "hxxps://evil[.]example[.]com[:]8443/gate?x=1"
	once := Deobfuscate(in)
	if Deobfuscate(once) != once {
		t.Errorf("Deobfuscate is not idempotent on %q", once)
	}
}

func TestValidate(t *testing.T) {
	if _, err := Validate("https://example.com/x"); err != nil {
		t.Errorf("Valid URL rejected: %v", err)
	}
	bad := []string{
		"ftp://example.com/x",
		"javascript:alert(1)",
		"https://",
		"not a url at all://",
	}
	for _, raw := range bad {
		if _, err := Validate(raw); err == nil {
			t.Errorf("Expected error for %q", raw)
		}
	}
}

func TestNormalizePunycode(t *testing.T) {
	got, err := Normalize("https://bücher.example/path")
	if err != nil {
		t.Fatal(err)
	}
	want := "https://xn--bcher-kva.example/path"
	if got != want {
		t.Errorf("Normalize = %q, want %q", got, want)
	}
}

func TestNormalizeKeepsPort(t *testing.T) {
	got, err := Normalize("hxxp://a[.]b[:]8080/p")
	if err != nil {
		t.Fatal(err)
	}
	if got != "http://a.b:8080/p" {
		t.Errorf("Normalize = %q", got)
	}
}

func TestRegistrableDomain(t *testing.T) {
	if d := RegistrableDomain("cdn.shop.example.co.uk"); d != "example.co.uk" {
		t.Errorf("RegistrableDomain = %q", d)
	}
	// IP literals fall back to themselves.
	if d := RegistrableDomain("10.1.2.3"); d != "10.1.2.3" {
		t.Errorf("RegistrableDomain = %q", d)
	}
}

func TestOrigin(t *testing.T) {
	tests := []struct{ in, want string }{
		{"https://a.b:8443/p?q=1", "https://a.b:8443"},
		{"http://a.b/", "http://a.b"},
		{"nonsense", ""},
	}
	for _, tt := range tests {
		if got := Origin(tt.in); got != tt.want {
			t.Errorf("Origin(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
