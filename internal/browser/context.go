// Package browser launches the browser and assembles the spoofed context:
// engine choice from the UA, hardware profile draw, emulation overrides and
// orchestrator installation. One browser process per session keeps hostile
// pages isolated from each other.
package browser

import (
	"fmt"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/rs/zerolog/log"

	"github.com/Rorqualx/gatecap/internal/gatedata"
	"github.com/Rorqualx/gatecap/internal/gates"
	"github.com/Rorqualx/gatecap/internal/jstmpl"
	"github.com/Rorqualx/gatecap/internal/spoof"
	"github.com/Rorqualx/gatecap/internal/types"
)

// LaunchOptions carries the driver-level knobs for one session.
type LaunchOptions struct {
	Proxy       string // socks5://host:port or http://host:port
	Headless    bool
	BrowserPath string
}

// Context is one launched, spoofed browser ready to navigate. Close always
// tears down the browser process.
type Context struct {
	Browser *rod.Browser
	Page    *rod.Page
	Plan    *gates.Plan
	Spoof   *spoof.Manager

	launcher *launcher.Launcher
}

// Factory builds contexts. It owns the process-wide template loader and
// data manager; everything per-session lives on the Context.
type Factory struct {
	loader *jstmpl.Loader
	data   *gatedata.Manager
}

// NewFactory creates a context factory.
func NewFactory(loader *jstmpl.Loader, data *gatedata.Manager) *Factory {
	return &Factory{loader: loader, data: data}
}

// NewContext resolves the spoofing plan, launches a browser, creates the
// page and runs orchestrator phases A-C on it. hookFor, when non-nil, is
// called with the new page to produce the response-stage capture hook before
// routing installs. On any error the browser is closed.
func (f *Factory) NewContext(
	settings spoof.Settings,
	opts LaunchOptions,
	recorder spoof.RequestRecorder,
	hookFor func(page *rod.Page) spoof.ResponseHook,
) (*Context, error) {
	plan, err := spoof.Resolve(settings, f.data)
	if err != nil {
		return nil, err
	}

	l := f.createLauncher(plan, opts)
	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrContextLaunch, err)
	}

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		l.Cleanup()
		return nil, fmt.Errorf("%w: %v", types.ErrContextLaunch, err)
	}

	ctx := &Context{Browser: b, Plan: plan, launcher: l}
	if err := f.setup(ctx, opts, recorder, hookFor); err != nil {
		ctx.Close()
		return nil, err
	}
	return ctx, nil
}

func (f *Factory) setup(ctx *Context, opts LaunchOptions, recorder spoof.RequestRecorder, hookFor func(*rod.Page) spoof.ResponseHook) error {
	plan := ctx.Plan

	// Gating chains sit behind junk certificates more often than not.
	if err := ctx.Browser.IgnoreCertErrors(true); err != nil {
		return fmt.Errorf("%w: %v", types.ErrContextLaunch, err)
	}

	var page *rod.Page
	var err error
	if plan.StealthEngine() {
		// The stealth driver bundles its evasions into page creation;
		// gates return no patches of their own for this engine.
		page, err = stealth.Page(ctx.Browser)
	} else {
		page, err = ctx.Browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	}
	if err != nil {
		return fmt.Errorf("%w: %v", types.ErrContextLaunch, err)
	}
	ctx.Page = page

	if err := applyEmulation(page, plan); err != nil {
		return fmt.Errorf("%w: %v", types.ErrContextLaunch, err)
	}

	var hook spoof.ResponseHook
	if hookFor != nil {
		hook = hookFor(page)
	}

	ctx.Spoof = spoof.NewManager(f.loader)
	if err := ctx.Spoof.ApplySpoofing(page, plan, recorder, hook); err != nil {
		return err
	}

	log.Info().Str("tag", "INFO").
		Str("engine", string(plan.Engine)).
		Str("browser_engine", plan.BrowserEngine).
		Bool("headless", opts.Headless).
		Msg("Spoofed context ready")
	return nil
}

// createLauncher builds a fresh launcher (launchers are single-shot).
func (f *Factory) createLauncher(plan *gates.Plan, opts LaunchOptions) *launcher.Launcher {
	l := launcher.New().
		Headless(opts.Headless).
		Set("disable-blink-features", "AutomationControlled").
		Set("disable-dev-shm-usage").
		Set("no-first-run")
	if opts.BrowserPath != "" {
		l = l.Bin(opts.BrowserPath)
	}
	if opts.Proxy != "" {
		l = l.Proxy(opts.Proxy)
	}
	return l
}

// applyEmulation pins the driver-level identity: UA, language, timezone and
// screen metrics. Geolocation stays JS-only (a driver permission grant is
// itself a signal).
func applyEmulation(page *rod.Page, plan *gates.Plan) error {
	if plan.Profile != nil {
		override := proto.NetworkSetUserAgentOverride{
			UserAgent: plan.Profile.UserAgent,
			Platform:  string(plan.Profile.Platform),
		}
		if langs := gates.Languages(plan.Language.AcceptLanguage); len(langs) > 0 {
			override.AcceptLanguage = langs[0]
		}
		if err := override.Call(page); err != nil {
			return err
		}

		if err := (proto.EmulationSetTimezoneOverride{TimezoneID: plan.ZoneOrUTC()}).Call(page); err != nil {
			// an unknown zone id is a data problem, not a session killer
			log.Warn().Str("tag", "WARN").Err(err).Str("zone", plan.ZoneOrUTC()).Msg("Timezone override failed")
		}
	}

	w, h := plan.Hardware.ScreenW, plan.Hardware.ScreenH
	if w == 0 || h == 0 {
		w, h = 1280, 720
	}
	mobile := plan.Profile != nil && plan.Profile.Mobile
	return page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             w,
		Height:            h,
		DeviceScaleFactor: 1,
		Mobile:            mobile,
	})
}

// Close tears the session's browser down. Safe on partially constructed
// contexts.
func (c *Context) Close() {
	if c.Browser != nil {
		if err := c.Browser.Close(); err != nil {
			log.Debug().Err(err).Msg("Browser close failed")
		}
	}
	if c.launcher != nil {
		c.launcher.Cleanup()
	}
}
