// Package urlutil provides URL normalization for analyst-supplied targets.
// Feeds commonly arrive defanged (hxxps://evil[.]example[.]com) and may use
// internationalized hostnames; everything is normalized here before the
// session runner sees it.
package urlutil

import (
	"net/url"
	"strings"

	"golang.org/x/net/idna"
	"golang.org/x/net/publicsuffix"

	"github.com/Rorqualx/gatecap/internal/types"
)

var deobfuscator = strings.NewReplacer(
	"hxxp://", "http://",
	"hxxps://", "https://",
	"[.]", ".",
	"[:]", ":",
)

// Deobfuscate rewrites defanged URL notation back to its plain form.
// Plain URLs pass through unchanged, so the function is idempotent.
func Deobfuscate(raw string) string {
	return deobfuscator.Replace(strings.TrimSpace(raw))
}

// Validate checks that raw parses as an absolute http(s) URL with a host.
// Returns the parsed URL or a ConfigError.
func Validate(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, types.NewConfigError("url", raw, err.Error())
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, types.NewConfigError("url", raw, "scheme must be http or https")
	}
	if u.Host == "" {
		return nil, types.NewConfigError("url", raw, "missing host")
	}
	return u, nil
}

// Normalize deobfuscates, validates and punycode-encodes the hostname of a
// target URL. The returned string is what the browser navigates to.
func Normalize(raw string) (string, error) {
	u, err := Validate(Deobfuscate(raw))
	if err != nil {
		return "", err
	}
	host := u.Hostname()
	if ascii, err := idna.Lookup.ToASCII(host); err == nil && ascii != host {
		if port := u.Port(); port != "" {
			u.Host = ascii + ":" + port
		} else {
			u.Host = ascii
		}
	}
	return u.String(), nil
}

// RegistrableDomain returns the eTLD+1 for a hostname, falling back to the
// hostname itself when the public-suffix list has no answer (IP literals,
// intranet names).
func RegistrableDomain(host string) string {
	if d, err := publicsuffix.EffectiveTLDPlusOne(host); err == nil {
		return d
	}
	return host
}

// Origin returns scheme://host[:port] for a URL string, or "" when the URL
// does not parse. Used to key per-origin Accept-CH memoization.
func Origin(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}
