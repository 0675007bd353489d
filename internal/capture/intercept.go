package capture

import (
	"encoding/base64"
	"fmt"
	"os"
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/rs/zerolog/log"

	"github.com/Rorqualx/gatecap/internal/types"
)

// DownloadInterceptor consumes response-stage Fetch pauses that look like
// file transfers: it streams the body to disk via Fetch.takeResponseBodyAsStream
// and fulfills the request with a synthetic empty body so the page still
// sees a valid response instead of a dead navigation.
type DownloadInterceptor struct {
	page   *rod.Page
	outDir string
	res    *ResourceData
	cap    *Capture
}

// NewDownloadInterceptor creates the interceptor. It shares the Capture's
// path reservation so both writers dedup against each other.
func NewDownloadInterceptor(page *rod.Page, outDir string, res *ResourceData, pipeline *Capture) *DownloadInterceptor {
	return &DownloadInterceptor{page: page, outDir: outDir, res: res, cap: pipeline}
}

// Hook returns the response-stage hook the spoof router dispatches into.
// Non-download responses are left to the router's continue path.
func (d *DownloadInterceptor) Hook() func(e *proto.FetchRequestPaused) bool {
	return func(e *proto.FetchRequestPaused) bool {
		ct := fetchHeader(e.ResponseHeaders, "content-type")
		cd := fetchHeader(e.ResponseHeaders, "content-disposition")
		if !LooksLikeDownload(ct, cd) {
			return false
		}
		d.intercept(e, ct, cd)
		return true
	}
}

func (d *DownloadInterceptor) intercept(e *proto.FetchRequestPaused, ct, cd string) {
	url := e.Request.URL
	status := 200
	if e.ResponseStatusCode != nil {
		status = *e.ResponseStatusCode
	}

	fname := FilenameFromCD(cd)
	if fname == "" {
		fname = FilenameFromURL(url, GuessExt(ct))
	}

	headers := e.ResponseHeaders
	if cd == "" {
		// Synthesize a disposition so replays and analysts see the
		// transfer for what it was.
		headers = append(headers, &proto.FetchHeaderEntry{
			Name:  "Content-Disposition",
			Value: fmt.Sprintf("attachment; filename=%q", fname),
		})
	}

	saved := false
	relPath, absPath, err := d.cap.reservePath(DownloadsDir, fname)
	if err == nil {
		if err := d.streamTo(e.RequestID, absPath); err != nil {
			os.Remove(absPath)
			if isGoneInterception(err) {
				log.Info().Str("tag", "INFO").Str("url", trimURL(url)).Msg("Request vanished before body stream")
			} else {
				log.Warn().Str("tag", "WARN").Err(err).Str("url", trimURL(url)).Msg("Stream save failed")
			}
		} else if d.res.SetFile(url, relPath) {
			headerMap := make(map[string]string, len(headers))
			for _, h := range headers {
				headerMap[h.Name] = h.Value
			}
			d.res.RecordResponse(url, status, headerMap)
			d.res.AddDownload()
			saved = true
			log.Info().Str("tag", "DOWNLOAD").Str("file", relPath).Msg("Stream-saved")
		} else {
			os.Remove(absPath)
		}
	}

	// Hand the page a valid response either way (an empty one when the body
	// was saved here); the alternative is a frame stuck on a detached
	// navigation.
	var finishErr error
	if saved {
		finishErr = (proto.FetchFulfillRequest{
			RequestID:       e.RequestID,
			ResponseCode:    status,
			ResponseHeaders: headers,
		}).Call(d.page)
	} else {
		finishErr = (proto.FetchContinueResponse{RequestID: e.RequestID}).Call(d.page)
	}
	if finishErr != nil {
		if isGoneInterception(finishErr) {
			log.Info().Str("tag", "INFO").Str("url", trimURL(url)).Msg("Request vanished before continue/fulfill")
		} else {
			log.Warn().Str("tag", "WARN").Err(finishErr).Str("url", trimURL(url)).Msg("Fetch finish failed")
		}
	}
}

// streamTo drains the paused response body to disk in 64 KiB chunks. Awaited
// writes throttle the IO.read loop on slow disks.
func (d *DownloadInterceptor) streamTo(id proto.FetchRequestID, dest string) error {
	stream, err := proto.FetchTakeResponseBodyAsStream{RequestID: id}.Call(d.page)
	if err != nil {
		return err
	}
	handle := stream.Stream
	defer func() {
		_ = proto.IOClose{Handle: handle}.Call(d.page)
	}()

	f, err := os.Create(dest)
	if err != nil {
		return err
	}
	defer f.Close()

	readSize := streamChunk
	for {
		chunk, err := proto.IORead{Handle: handle, Size: &readSize}.Call(d.page)
		if err != nil {
			return err
		}
		var raw []byte
		if chunk.Base64Encoded {
			raw, err = base64.StdEncoding.DecodeString(chunk.Data)
			if err != nil {
				return err
			}
		} else {
			raw = []byte(chunk.Data)
		}
		if len(raw) > 0 {
			if _, err := f.Write(raw); err != nil {
				return err
			}
		}
		if chunk.EOF {
			return nil
		}
	}
}

// isGoneInterception matches the CDP error for an interception id that
// disappeared because the page navigated away. Never fatal.
func isGoneInterception(err error) bool {
	if err == nil {
		return false
	}
	if strings.Contains(err.Error(), "Invalid InterceptionId") ||
		strings.Contains(err.Error(), "Invalid state for continueInterceptedRequest") {
		return true
	}
	return false
}

// Gone wraps isGoneInterception as the typed sentinel for callers.
func Gone(err error) error {
	if isGoneInterception(err) {
		return types.ErrInterceptionGone
	}
	return err
}

func fetchHeader(headers []*proto.FetchHeaderEntry, name string) string {
	for _, h := range headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}
