// Package config provides application configuration management. Values come
// from CLI flags with environment fallbacks; validation is fail-fast — a bad
// country, language, proxy or timeout never reaches the browser.
package config

import (
	"os"
	"regexp"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Rorqualx/gatecap/internal/gatedata"
	"github.com/Rorqualx/gatecap/internal/gates"
	"github.com/Rorqualx/gatecap/internal/spoof"
	"github.com/Rorqualx/gatecap/internal/types"
)

// Engine selection values for the --engine flag.
const (
	EngineAuto     = "auto"
	EngineStandard = "standard"
	EngineStealth  = "stealth"
)

// Default timeouts. A headful session without an explicit timeout gets the
// interactive ceiling so the analyst can dwell.
const (
	DefaultTimeout     = 30 * time.Second
	InteractiveTimeout = 24 * time.Hour
	NavigationTimeout  = 40 * time.Second
)

var (
	langRe  = regexp.MustCompile(`^[a-z]{2,3}(-[A-Z]{2})?$`)
	proxyRe = regexp.MustCompile(`^(socks5|http)://.+:\d{2,5}$`)
)

// Config holds all application configuration for a run.
type Config struct {
	// Targets
	URL     string
	URLFile string

	// Identity selection
	Country    string
	Language   string
	UASelector string
	UAFull     string
	Referrer   string

	// Driver
	Engine      string
	Proxy       string
	Headful     bool
	BrowserPath string

	// Run behavior
	Timeout       time.Duration
	TimeoutSet    bool // true when --timeout was given explicitly
	OutputDir     string
	RunID         string
	Verbose       bool
	PlainProgress bool
	Workers       int
	Watch         bool

	// Overrides
	GatesFile string
	DataDir   string
	JSDir     string

	GatesEnabled map[string]bool
}

// Defaults returns a Config seeded from the environment.
func Defaults() *Config {
	return &Config{
		Engine:    EngineAuto,
		Proxy:     os.Getenv("GATECAP_PROXY"),
		Timeout:   envDuration("GATECAP_TIMEOUT", DefaultTimeout),
		OutputDir: envString("GATECAP_OUTPUT_DIR", "./data"),
		RunID:     envString("RUN_ID", "default"),
		Verbose:   envBool("GATECAP_VERBOSE", false),
		Workers:   1,
	}
}

// gatesFile is the on-disk shape of --gates-file.
type gatesFile struct {
	GatesEnabled map[string]bool `yaml:"gates_enabled"`
	Country      string          `yaml:"country"`
	Language     string          `yaml:"language"`
	UASelector   string          `yaml:"ua_selector"`
	UAFull       string          `yaml:"ua_full"`
	Referrer     string          `yaml:"referrer"`
}

// LoadGatesFile merges a yaml gate configuration under the CLI values: flags
// win over file entries.
func (c *Config) LoadGatesFile() error {
	if c.GatesFile == "" {
		return nil
	}
	raw, err := os.ReadFile(c.GatesFile)
	if err != nil {
		return types.NewConfigError("gates-file", c.GatesFile, err.Error())
	}
	var gf gatesFile
	if err := yaml.Unmarshal(raw, &gf); err != nil {
		return types.NewConfigError("gates-file", c.GatesFile, err.Error())
	}
	if c.Country == "" {
		c.Country = gf.Country
	}
	if c.Language == "" {
		c.Language = gf.Language
	}
	if c.UASelector == "" {
		c.UASelector = gf.UASelector
	}
	if c.UAFull == "" {
		c.UAFull = gf.UAFull
	}
	if c.Referrer == "" {
		c.Referrer = gf.Referrer
	}
	if c.GatesEnabled == nil {
		c.GatesEnabled = gf.GatesEnabled
	}
	return nil
}

// Validate fails fast on anything the core would choke on later. Called at
// the CLI boundary; a non-nil error means the session never starts.
func (c *Config) Validate() error {
	if c.URL == "" && c.URLFile == "" {
		return types.NewConfigError("url", "", "a target URL or --file is required")
	}
	if c.Country != "" && !gatedata.KnownCountry(c.Country) {
		return types.NewConfigError("country", c.Country, "not a known ISO 3166-1 alpha-2 code")
	}
	if c.Language != "" && !langRe.MatchString(c.Language) {
		return types.NewConfigError("lang", c.Language, "must match [a-z]{2,3}(-[A-Z]{2})?")
	}
	if c.Proxy != "" && !proxyRe.MatchString(c.Proxy) {
		return types.NewConfigError("proxy", c.Proxy, "must be socks5://host:port or http://host:port")
	}
	switch c.Engine {
	case EngineAuto, EngineStandard, EngineStealth:
	default:
		return types.NewConfigError("engine", c.Engine, "must be auto, standard or stealth")
	}
	if c.Timeout <= 0 {
		return types.NewConfigError("timeout", c.Timeout.String(), "must be positive")
	}
	if c.Workers < 1 {
		return types.NewConfigError("workers", strconv.Itoa(c.Workers), "must be at least 1")
	}
	if c.Watch && c.URLFile == "" {
		return types.NewConfigError("watch", "", "--watch requires --file")
	}

	// Headful without an explicit timeout means the analyst wants to dwell.
	if c.Headful && !c.TimeoutSet {
		c.Timeout = InteractiveTimeout
	}
	return nil
}

// Settings maps the config onto the resolver's per-session selection
// criteria.
func (c *Config) Settings() spoof.Settings {
	browserEngine := gates.BrowserEngineStandard
	if c.Engine == EngineStealth {
		browserEngine = gates.BrowserEngineStealth
	}
	return spoof.Settings{
		Country:       c.Country,
		Language:      c.Language,
		UASelector:    c.UASelector,
		UAFull:        c.UAFull,
		Referrer:      c.Referrer,
		BrowserEngine: browserEngine,
		GatesEnabled:  c.GatesEnabled,
	}
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	switch os.Getenv(key) {
	case "1", "true", "yes":
		return true
	case "0", "false", "no":
		return false
	default:
		return fallback
	}
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if d, err := time.ParseDuration(v); err == nil && d > 0 {
		return d
	}
	return fallback
}
