// Package batch fans a URL feed out over a bounded worker pool. Each URL is
// an independent session; one failed capture never stops the batch.
package batch

import (
	"context"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Event reports per-URL progress to the display layer.
type Event struct {
	Worker int
	URL    string
	Done   bool
	Err    error
}

// Run drains the feed with the given number of workers, invoking capture
// for each URL. notify, when non-nil, receives start and completion events.
// Run returns once the feed closes and all in-flight captures finish, or
// when ctx is canceled.
func Run(ctx context.Context, feed <-chan string, workers int, capture func(context.Context, string) error, notify func(Event)) {
	if workers < 1 {
		workers = 1
	}
	g, ctx := errgroup.WithContext(ctx)

	for i := 0; i < workers; i++ {
		worker := i
		g.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return nil
				case url, ok := <-feed:
					if !ok {
						return nil
					}
					if notify != nil {
						notify(Event{Worker: worker, URL: url})
					}
					err := capture(ctx, url)
					if err != nil {
						log.Error().Str("tag", "ERROR").Str("url", url).Err(err).Msg("Capture failed")
					}
					if notify != nil {
						notify(Event{Worker: worker, URL: url, Done: true, Err: err})
					}
				}
			}
		})
	}

	// workers never return errors; the group is our join point
	_ = g.Wait()
}
