// Package main provides the gatecap entry point: capture adversarial pages
// through a browser projecting a coherent country- and device-consistent
// identity, archiving every artifact along the way.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Rorqualx/gatecap/internal/batch"
	"github.com/Rorqualx/gatecap/internal/browser"
	"github.com/Rorqualx/gatecap/internal/config"
	"github.com/Rorqualx/gatecap/internal/gatedata"
	"github.com/Rorqualx/gatecap/internal/jstmpl"
	"github.com/Rorqualx/gatecap/internal/session"
	"github.com/Rorqualx/gatecap/internal/tui"
	"github.com/Rorqualx/gatecap/internal/urlutil"
	"github.com/Rorqualx/gatecap/pkg/version"
)

func main() {
	cfg := config.Defaults()

	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.StringVar(&cfg.URLFile, "file", "", "Text file of target URLs, one per line (hxxp/defanged notation accepted)")
	flag.StringVar(&cfg.Country, "country", "", "Project an identity from this country (ISO 3166-1 alpha-2)")
	flag.StringVar(&cfg.Language, "lang", "", "Accept-Language tag, e.g. de-DE")
	flag.StringVar(&cfg.UASelector, "ua", "", `User-agent selector, e.g. "Windows;;Chrome"`)
	flag.StringVar(&cfg.UAFull, "ua-full", "", "Verbatim User-Agent header value")
	flag.StringVar(&cfg.Referrer, "referrer", "", "Referer header sent with every request")
	flag.StringVar(&cfg.Proxy, "proxy", cfg.Proxy, "Proxy, socks5://host:port or http://host:port")
	flag.StringVar(&cfg.Engine, "engine", cfg.Engine, "Browser engine: auto, standard or stealth")
	timeoutSec := flag.Int("timeout", int(cfg.Timeout/time.Second), "Hard session deadline in seconds")
	flag.BoolVar(&cfg.Headful, "headful", false, "Visible browser window with interactive dwell")
	flag.StringVar(&cfg.OutputDir, "output", cfg.OutputDir, "Output directory root")
	flag.BoolVar(&cfg.Verbose, "verbose", cfg.Verbose, "Debug logging")
	flag.BoolVar(&cfg.PlainProgress, "plain-progress", false, "Log lines instead of the progress display")
	flag.IntVar(&cfg.Workers, "workers", cfg.Workers, "Concurrent capture sessions")
	flag.BoolVar(&cfg.Watch, "watch", false, "Keep running and capture URLs appended to --file")
	flag.StringVar(&cfg.GatesFile, "gates-file", "", "YAML gate configuration overrides")
	flag.StringVar(&cfg.DataDir, "data-dir", "", "Directory overriding the embedded UA/profile catalogs (hot-reloaded)")
	flag.StringVar(&cfg.JSDir, "js-dir", "", "Directory overriding the embedded JS patch templates")
	flag.StringVar(&cfg.BrowserPath, "browser-path", "", "Browser binary path (auto-detected when empty)")
	flag.Parse()

	if *showVersion {
		fmt.Printf("gatecap %s (%s)\n", version.Full(), version.GoVersion())
		return
	}

	setupLogging(cfg.Verbose)

	cfg.Timeout = time.Duration(*timeoutSec) * time.Second
	cfg.TimeoutSet = flagWasSet("timeout")
	cfg.URL = flag.Arg(0)

	if err := cfg.LoadGatesFile(); err != nil {
		log.Error().Str("tag", "ERROR").Err(err).Msg("Bad gate configuration")
		os.Exit(2)
	}
	if err := cfg.Validate(); err != nil {
		log.Error().Str("tag", "ERROR").Err(err).Msg("Bad configuration")
		os.Exit(2)
	}

	if err := run(cfg); err != nil {
		log.Error().Str("tag", "ERROR").Err(err).Msg("Run failed")
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	data, err := gatedata.NewManager(cfg.DataDir, cfg.DataDir != "")
	if err != nil {
		return err
	}
	defer data.Close()

	factory := browser.NewFactory(jstmpl.NewLoader(cfg.JSDir), data)
	runner := session.New(cfg, factory)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	feed, total, err := buildFeed(ctx, cfg)
	if err != nil {
		return err
	}

	progress := tui.New(total, cfg.PlainProgress || cfg.Headful || cfg.Verbose)
	defer progress.Close()

	batch.Run(ctx, feed, cfg.Workers, runner.Capture, progress.Notify)
	return nil
}

// buildFeed produces the URL stream: a single normalized URL, a file of
// them, or a watched file that keeps feeding.
func buildFeed(ctx context.Context, cfg *config.Config) (<-chan string, int, error) {
	if cfg.URL != "" {
		normalized, err := urlutil.Normalize(cfg.URL)
		if err != nil {
			return nil, 0, err
		}
		return batch.Single(normalized), 1, nil
	}

	total := 0
	if !cfg.Watch {
		if raw, err := os.ReadFile(cfg.URLFile); err == nil {
			for _, line := range strings.Split(string(raw), "\n") {
				if t := strings.TrimSpace(line); t != "" && !strings.HasPrefix(t, "#") {
					total++
				}
			}
		}
	}
	feed, err := batch.FromFile(ctx, cfg.URLFile, cfg.Watch)
	return feed, total, err
}

func setupLogging(verbose bool) {
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}).Level(level)
}

func flagWasSet(name string) bool {
	set := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}
