package humanize

import (
	"context"
	"math"
	"math/rand"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/rs/zerolog/log"
)

// DwellConfig tunes the skim behavior.
type DwellConfig struct {
	// MaxScrolls bounds how many scroll legs the dwell performs.
	MaxScrolls int
	// StepDelayMinMs/StepDelayMaxMs is the pause between scroll steps.
	StepDelayMinMs int
	StepDelayMaxMs int
	// PauseMinMs/PauseMaxMs is the reading pause between legs.
	PauseMinMs int
	PauseMaxMs int
}

// DefaultDwellConfig returns sensible skim defaults.
func DefaultDwellConfig() DwellConfig {
	return DwellConfig{
		MaxScrolls:     4,
		StepDelayMinMs: 20,
		StepDelayMaxMs: 60,
		PauseMinMs:     400,
		PauseMaxMs:     1200,
	}
}

// Dweller drives the skim on one page.
type Dweller struct {
	page   *rod.Page
	config DwellConfig
}

// NewDweller creates a dweller with default config.
func NewDweller(page *rod.Page) *Dweller {
	return &Dweller{page: page, config: DefaultDwellConfig()}
}

// Skim scrolls down the page in eased legs with reading pauses and a slight
// cursor drift. Errors are logged, not returned: the dwell is cosmetic and
// must never fail a capture.
func (d *Dweller) Skim(ctx context.Context) {
	for leg := 0; leg < d.config.MaxScrolls; leg++ {
		metrics, err := proto.PageGetLayoutMetrics{}.Call(d.page)
		if err != nil {
			log.Debug().Err(err).Msg("Layout metrics unavailable, ending skim")
			return
		}
		viewH := metrics.CSSVisualViewport.ClientHeight
		curY := metrics.CSSVisualViewport.PageY
		maxY := metrics.CSSContentSize.Height - viewH
		if maxY-curY < 10 {
			return // bottom reached
		}

		target := curY + viewH*(0.6+rand.Float64()*0.3)
		if target > maxY {
			target = maxY
		}
		if !d.scrollTo(ctx, curY, target) {
			return
		}
		d.driftCursor(viewH)

		if !sleepWithContext(ctx, RandomDuration(d.config.PauseMinMs, d.config.PauseMaxMs)) {
			return
		}
	}
}

// scrollTo moves from fromY to toY in eased wheel steps. Returns false when
// the context ended mid-scroll.
func (d *Dweller) scrollTo(ctx context.Context, fromY, toY float64) bool {
	distance := toY - fromY
	steps := 8 + int(math.Abs(distance)/100)
	if steps > 20 {
		steps = 20
	}

	prev := 0.0
	for i := 1; i <= steps; i++ {
		t := float64(i) / float64(steps)
		eased := t * t * (3 - 2*t) // smoothstep
		delta := distance*eased - prev
		prev = distance * eased

		err := proto.InputDispatchMouseEvent{
			Type:   proto.InputDispatchMouseEventTypeMouseWheel,
			X:      100 + rand.Float64()*200,
			Y:      200 + rand.Float64()*200,
			DeltaX: 0,
			DeltaY: delta,
		}.Call(d.page)
		if err != nil {
			log.Debug().Err(err).Msg("Scroll step failed, ending skim")
			return false
		}
		if !sleepWithContext(ctx, RandomDuration(d.config.StepDelayMinMs, d.config.StepDelayMaxMs)) {
			return false
		}
	}
	return true
}

// driftCursor nudges the mouse somewhere plausible on the viewport.
func (d *Dweller) driftCursor(viewH float64) {
	err := proto.InputDispatchMouseEvent{
		Type: proto.InputDispatchMouseEventTypeMouseMoved,
		X:    80 + rand.Float64()*600,
		Y:    rand.Float64() * viewH,
	}.Call(d.page)
	if err != nil {
		log.Debug().Err(err).Msg("Cursor drift failed")
	}
}
