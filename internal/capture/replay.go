package capture

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	utls "github.com/refraction-networking/utls"
	"github.com/rs/zerolog/log"
	xproxy "golang.org/x/net/proxy"

	"github.com/Rorqualx/gatecap/internal/types"
)

const (
	replayTimeout = 30 * time.Second
	streamChunk   = 64 * 1024
)

// ReplayClient re-issues a request outside the browser when the driver
// cannot produce a response body (navigations that became downloads, bodies
// already consumed by the DevTools intercept). It keeps method, headers,
// body and cookies, goes through the same proxy, and presents a Chrome TLS
// fingerprint so the replay shows the same TLS face the browser did.
type ReplayClient struct {
	proxy string // socks5://host:port or http://host:port, empty for direct
}

// NewReplayClient creates a replay client using the session's proxy.
func NewReplayClient(proxy string) *ReplayClient {
	return &ReplayClient{proxy: proxy}
}

// Request describes the original request to replay.
type Request struct {
	URL      string
	Method   string
	Headers  map[string]string
	PostData string
	Cookies  map[string]string
}

// FetchToFile streams the replayed response body to dest. A response status
// of 400 or above counts as failure.
func (c *ReplayClient) FetchToFile(ctx context.Context, req Request, dest string) (int, error) {
	transport := &http.Transport{
		DialTLSContext: c.dialTLSChrome,
		DialContext:    c.dialPlain,
	}
	if c.proxy != "" {
		if u, err := url.Parse(c.proxy); err == nil && (u.Scheme == "http" || u.Scheme == "https") {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	client := &http.Client{Transport: transport, Timeout: replayTimeout}
	defer client.CloseIdleConnections()

	var body io.Reader
	if req.PostData != "" {
		body = strings.NewReader(req.PostData)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, body)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", types.ErrReplayFailed, err)
	}
	for name, value := range req.Headers {
		if strings.EqualFold(name, "content-length") {
			continue
		}
		httpReq.Header.Set(name, value)
	}
	for name, value := range req.Cookies {
		httpReq.AddCookie(&http.Cookie{Name: name, Value: value})
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", types.ErrReplayFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return resp.StatusCode, fmt.Errorf("%w: HTTP %d", types.ErrReplayFailed, resp.StatusCode)
	}

	f, err := os.Create(dest)
	if err != nil {
		return resp.StatusCode, err
	}
	defer f.Close()

	// Awaited chunked writes: a slow disk throttles the read loop instead
	// of buffering the whole body.
	buf := make([]byte, streamChunk)
	if _, err := io.CopyBuffer(f, resp.Body, buf); err != nil {
		os.Remove(dest)
		return resp.StatusCode, fmt.Errorf("%w: %v", types.ErrReplayFailed, err)
	}
	log.Debug().Str("url", req.URL).Str("dest", dest).Msg("Body fetched via HTTP replay")
	return resp.StatusCode, nil
}

// dialPlain handles plain-HTTP connections, honoring a SOCKS5 proxy.
func (c *ReplayClient) dialPlain(ctx context.Context, network, addr string) (net.Conn, error) {
	return c.dial(ctx, network, addr)
}

// dialTLSChrome wraps the raw connection in a utls client hello mimicking
// current Chrome.
func (c *ReplayClient) dialTLSChrome(ctx context.Context, network, addr string) (net.Conn, error) {
	raw, err := c.dial(ctx, network, addr)
	if err != nil {
		return nil, err
	}
	host, _, _ := net.SplitHostPort(addr)
	conn := utls.UClient(raw, &utls.Config{
		ServerName:         host,
		InsecureSkipVerify: true, // the browser context ignores TLS errors too
	}, utls.HelloChrome_Auto)
	if err := conn.HandshakeContext(ctx); err != nil {
		raw.Close()
		return nil, err
	}
	return conn, nil
}

func (c *ReplayClient) dial(ctx context.Context, network, addr string) (net.Conn, error) {
	dialer := &net.Dialer{Timeout: replayTimeout}
	if c.proxy != "" {
		if u, err := url.Parse(c.proxy); err == nil && strings.HasPrefix(u.Scheme, "socks5") {
			sd, err := xproxy.SOCKS5("tcp", u.Host, nil, dialer)
			if err != nil {
				return nil, err
			}
			if cd, ok := sd.(xproxy.ContextDialer); ok {
				return cd.DialContext(ctx, network, addr)
			}
			return sd.Dial(network, addr)
		}
	}
	return dialer.DialContext(ctx, network, addr)
}
