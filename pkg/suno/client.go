package suno

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/google/uuid"
	"github.com/igolaizola/sunoplayer/pkg/ratelimit"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
)

const userAgent = `Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36`

// Builder composes API requests with the current credential and the
// headers the site's own web client sends.
type Builder struct {
	store    *TokenStore
	deviceID string
	now      func() time.Time
}

// NewBuilder creates a builder with a fresh device id that is reused for
// every request it builds.
func NewBuilder(store *TokenStore, now func() time.Time) *Builder {
	if now == nil {
		now = time.Now
	}
	return &Builder{
		store:    store,
		deviceID: uuid.NewString(),
		now:      now,
	}
}

func (b *Builder) DeviceID() string {
	return b.deviceID
}

// Build returns a request for the given method and url. The credential is
// read once; ErrUnauthenticated is returned if there isn't a valid one.
func (b *Builder) Build(ctx context.Context, method, u string, in any) (*http.Request, error) {
	cred, err := b.store.Get(ctx)
	if err != nil {
		return nil, err
	}
	var reqBody io.Reader
	if in != nil {
		body, err := json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("suno: couldn't marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, reqBody)
	if err != nil {
		return nil, fmt.Errorf("suno: couldn't create request: %w", err)
	}
	req.Header.Set("accept", "*/*")
	req.Header.Set("accept-encoding", "gzip, deflate, br")
	req.Header.Set("accept-language", "en-US,en;q=0.9")
	req.Header.Set("authorization", fmt.Sprintf("Bearer %s", cred.Token))
	req.Header.Set("browser-token", BrowserToken(b.now()))
	if in != nil {
		req.Header.Set("content-type", "application/json")
	}
	req.Header.Set("device-id", b.deviceID)
	req.Header.Set("origin", SiteURL)
	req.Header.Set("referer", SiteURL+"/")
	req.Header.Set("sec-ch-ua", `"Google Chrome";v="131", "Chromium";v="131", "Not_A Brand";v="24"`)
	req.Header.Set("sec-ch-ua-mobile", "?0")
	req.Header.Set("sec-ch-ua-platform", `"Windows"`)
	req.Header.Set("sec-fetch-dest", "empty")
	req.Header.Set("sec-fetch-mode", "cors")
	req.Header.Set("sec-fetch-site", "same-site")
	req.Header.Set("user-agent", userAgent)
	return req, nil
}

// BrowserToken encodes t the way the web client does:
// {"token":"<base64 of {"timestamp":<epoch ms>}>"}.
func BrowserToken(t time.Time) string {
	inner := fmt.Sprintf(`{"timestamp":%d}`, t.UnixMilli())
	encoded := base64.StdEncoding.EncodeToString([]byte(inner))
	return fmt.Sprintf(`{"token":"%s"}`, encoded)
}

// Result is the outcome of an API call. Failures are reported through Err
// and Status instead of being returned separately.
type Result struct {
	OK     bool
	Status int
	Data   []byte
	Err    error
}

// Unauthorized reports whether the call failed because of the session.
func (r *Result) Unauthorized() bool {
	return r.Status == http.StatusUnauthorized || r.Status == http.StatusForbidden
}

type Client struct {
	client    *http.Client
	builder   *Builder
	store     *TokenStore
	apiBase   string
	debug     bool
	ratelimit ratelimit.Lock
}

type Config struct {
	Wait    time.Duration
	Debug   bool
	Client  *http.Client
	Store   *TokenStore
	APIBase string
	Now     func() time.Time
}

func New(cfg *Config) *Client {
	client := cfg.Client
	if client == nil {
		client = &http.Client{
			Timeout: 2 * time.Minute,
		}
	}
	apiBase := strings.TrimSuffix(cfg.APIBase, "/")
	if apiBase == "" {
		apiBase = APIBase
	}
	return &Client{
		client:    client,
		builder:   NewBuilder(cfg.Store, cfg.Now),
		store:     cfg.Store,
		apiBase:   apiBase,
		debug:     cfg.Debug,
		ratelimit: ratelimit.New(cfg.Wait),
	}
}

func (c *Client) log(format string, args ...interface{}) {
	if c.debug {
		format += "\n"
		log.Printf(format, args...)
	}
}

// Do performs a single API call. Relative paths are resolved against
// {api_base}/api/. It doesn't retry.
func (c *Client) Do(ctx context.Context, method, path string, in any) *Result {
	u := fmt.Sprintf("%s/api/%s", c.apiBase, strings.TrimPrefix(path, "/"))
	if strings.HasPrefix(path, "http") {
		u = path
	}
	c.log("suno: do %s %s", method, u)

	req, err := c.builder.Build(ctx, method, u, in)
	if err != nil {
		r := &Result{Err: err}
		if errors.Is(err, ErrUnauthenticated) {
			r.Status = http.StatusUnauthorized
		}
		return r
	}

	if err := c.ratelimit.Wait(ctx); err != nil {
		return &Result{Err: fmt.Errorf("%w: couldn't %s %s: %w", ErrTransport, method, u, err)}
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return &Result{Err: fmt.Errorf("%w: couldn't %s %s: %w", ErrTransport, method, u, err)}
	}
	defer resp.Body.Close()
	respBody, err := decodeBody(resp.Header.Get("Content-Encoding"), resp.Body)
	if err != nil {
		return &Result{
			Status: resp.StatusCode,
			Err:    fmt.Errorf("%w: couldn't read response body: %w", ErrTransport, err),
		}
	}
	c.log("suno: response %s %s %d %s", method, u, resp.StatusCode, truncate(string(respBody), 200))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &Result{
			Status: resp.StatusCode,
			Data:   respBody,
			Err:    fmt.Errorf("suno: %s %s returned (%s): %w", method, u, truncate(string(respBody), 100), errStatusCode(resp.StatusCode)),
		}
	}
	if !json.Valid(respBody) {
		return &Result{
			Status: resp.StatusCode,
			Data:   respBody,
			Err:    fmt.Errorf("%w: %s", ErrInvalidResponse, truncate(string(respBody), 100)),
		}
	}
	return &Result{
		OK:     true,
		Status: resp.StatusCode,
		Data:   respBody,
	}
}

// decodeBody reads r undoing the content encodings in reverse order.
func decodeBody(encoding string, r io.Reader) ([]byte, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	var encodings []string
	for _, e := range strings.Split(encoding, ",") {
		e = strings.ToLower(strings.TrimSpace(e))
		if e != "" && e != "identity" {
			encodings = append(encodings, e)
		}
	}
	for i := len(encodings) - 1; i >= 0; i-- {
		b, err = decode(encodings[i], b)
		if err != nil {
			return nil, err
		}
	}
	return b, nil
}

func decode(encoding string, b []byte) ([]byte, error) {
	switch encoding {
	case "gzip", "x-gzip":
		zr, err := gzip.NewReader(bytes.NewReader(b))
		if err != nil {
			return nil, fmt.Errorf("gzip: %w", err)
		}
		defer zr.Close()
		return io.ReadAll(zr)
	case "br":
		return io.ReadAll(brotli.NewReader(bytes.NewReader(b)))
	case "deflate":
		// Servers send both zlib wrapped and raw deflate streams
		if zr, err := zlib.NewReader(bytes.NewReader(b)); err == nil {
			defer zr.Close()
			return io.ReadAll(zr)
		}
		fr := flate.NewReader(bytes.NewReader(b))
		defer fr.Close()
		return io.ReadAll(fr)
	default:
		return nil, fmt.Errorf("unsupported content encoding %q", encoding)
	}
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n] + "..."
	}
	return s
}
