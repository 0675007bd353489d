package batch

import (
	"bufio"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"

	"github.com/Rorqualx/gatecap/internal/urlutil"
)

// Single returns a feed carrying exactly one URL.
func Single(url string) <-chan string {
	ch := make(chan string, 1)
	ch <- url
	close(ch)
	return ch
}

// FromFile reads a URL list (one per line, defanged notation welcome) and
// returns a feed of normalized URLs. With watch enabled the feed stays open:
// lines appended to the file are normalized and delivered as they arrive
// until ctx ends.
func FromFile(ctx context.Context, path string, watch bool) (<-chan string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	ch := make(chan string, 64)
	go func() {
		defer close(ch)
		defer f.Close()

		offset := feedLines(ctx, f, 0, ch)
		if !watch {
			return
		}
		tailFile(ctx, f, path, offset, ch)
	}()
	return ch, nil
}

// feedLines normalizes and emits every line from offset onward, returning
// the new offset.
func feedLines(ctx context.Context, f *os.File, offset int64, ch chan<- string) int64 {
	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return offset
	}
	reader := bufio.NewReader(f)
	for {
		line, err := reader.ReadString('\n')
		offset += int64(len(line))
		if text := strings.TrimSpace(line); text != "" && !strings.HasPrefix(text, "#") {
			if normalized, nerr := urlutil.Normalize(text); nerr != nil {
				log.Error().Str("tag", "ERROR").Str("line", text).Err(nerr).Msg("Skipping invalid URL")
			} else {
				select {
				case ch <- normalized:
				case <-ctx.Done():
					return offset
				}
			}
		}
		if err != nil {
			if err != io.EOF {
				log.Warn().Str("tag", "WARN").Err(err).Msg("URL file read error")
			}
			return offset
		}
	}
}

// tailFile watches the URL file and feeds newly appended lines.
func tailFile(ctx context.Context, f *os.File, path string, offset int64, ch chan<- string) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		log.Warn().Str("tag", "WARN").Err(err).Msg("Watch unavailable")
		return
	}
	defer w.Close()
	if err := w.Add(filepath.Dir(path)); err != nil {
		log.Warn().Str("tag", "WARN").Err(err).Msg("Watch unavailable")
		return
	}
	log.Info().Str("tag", "INFO").Str("file", path).Msg("Watching URL feed for new targets")

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != filepath.Clean(path) {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			// truncation restarts the feed from the top
			if info, err := os.Stat(path); err == nil && info.Size() < offset {
				offset = 0
			}
			offset = feedLines(ctx, f, offset, ch)
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			log.Warn().Str("tag", "WARN").Err(err).Msg("Feed watcher error")
		}
	}
}
