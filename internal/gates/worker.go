package gates

import (
	"context"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/rs/zerolog/log"
)

// targetClient routes proto calls to an attached worker target through the
// browser's flattened-session transport.
type targetClient struct {
	browser *rod.Browser
	session proto.TargetSessionID
}

func (t *targetClient) Call(ctx context.Context, sessionID, method string, params interface{}) ([]byte, error) {
	return t.browser.Call(ctx, sessionID, method, params)
}

func (t *targetClient) GetContext() context.Context {
	return t.browser.GetContext()
}

func (t *targetClient) GetSessionID() proto.TargetSessionID {
	return t.session
}

// attachWorkerInjector auto-attaches to dedicated, shared and service
// workers the page spawns and evaluates the rendered worker-spoof script
// inside each before it runs. The context-wide init script covers workers
// that exist at document start; this hook covers the ones that appear later.
func attachWorkerInjector(page *rod.Page, workerScript string) error {
	err := proto.TargetSetAutoAttach{
		AutoAttach:             true,
		WaitForDebuggerOnStart: true,
		Flatten:                true,
	}.Call(page)
	if err != nil {
		return err
	}

	browser := page.Browser()
	go page.EachEvent(func(e *proto.TargetAttachedToTarget) {
		kind := e.TargetInfo.Type
		client := &targetClient{browser: browser, session: e.SessionID}

		if kind == "worker" || kind == "service_worker" || kind == "shared_worker" {
			if _, err := (proto.RuntimeEvaluate{Expression: workerScript}).Call(client); err != nil {
				log.Warn().Str("tag", "WARN").Err(err).
					Str("worker", e.TargetInfo.URL).
					Msg("Worker spoof injection failed")
			} else {
				log.Debug().Str("tag", "GATE").Str("worker", e.TargetInfo.URL).Msg("Worker identity injected")
			}
		}

		// every attached target was paused by waitForDebuggerOnStart
		if err := (proto.RuntimeRunIfWaitingForDebugger{}).Call(client); err != nil {
			log.Debug().Err(err).Msg("Worker resume failed (target may be gone)")
		}
	})()
	return nil
}
