package fhttp

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	fhttp "github.com/bogdanfinn/fhttp"
	tlsclient "github.com/bogdanfinn/tls-client"
	"github.com/bogdanfinn/tls-client/profiles"
)

// headerOrder mirrors the order in which Chrome sends fetch headers.
var headerOrder = []string{
	"accept",
	"accept-encoding",
	"accept-language",
	"authorization",
	"browser-token",
	"content-type",
	"device-id",
	"origin",
	"referer",
	"sec-ch-ua",
	"sec-ch-ua-mobile",
	"sec-ch-ua-platform",
	"sec-fetch-dest",
	"sec-fetch-mode",
	"sec-fetch-site",
	"user-agent",
}

type transport struct {
	client tlsclient.HttpClient
}

// NewClient returns a standard http client whose transport presents a
// Chrome TLS fingerprint.
func NewClient(timeout time.Duration, proxy string) (*http.Client, error) {
	secs := int(timeout.Seconds())
	if secs <= 0 {
		secs = 30
	}
	options := []tlsclient.HttpClientOption{
		tlsclient.WithTimeoutSeconds(secs),
		tlsclient.WithClientProfile(profiles.Chrome_120),
		tlsclient.WithNotFollowRedirects(),
	}
	if proxy != "" {
		options = append(options, tlsclient.WithProxyUrl(proxy))
	}
	c, err := tlsclient.NewHttpClient(tlsclient.NewNoopLogger(), options...)
	if err != nil {
		return nil, fmt.Errorf("fhttp: couldn't create tls client: %w", err)
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: &transport{client: c},
	}, nil
}

func (t *transport) RoundTrip(req *http.Request) (*http.Response, error) {
	freq, err := toFHTTP(req)
	if err != nil {
		return nil, err
	}
	fresp, err := t.client.Do(freq)
	if err != nil {
		return nil, err
	}
	return fromFHTTP(fresp, req), nil
}

func toFHTTP(req *http.Request) (*fhttp.Request, error) {
	freq, err := fhttp.NewRequestWithContext(req.Context(), req.Method, req.URL.String(), req.Body)
	if err != nil {
		return nil, fmt.Errorf("fhttp: couldn't create request: %w", err)
	}
	freq.ContentLength = req.ContentLength
	freq.Header = fhttp.Header{}
	for k, v := range req.Header {
		freq.Header[k] = append([]string{}, v...)
	}
	var order []string
	for _, k := range headerOrder {
		if req.Header.Get(k) != "" {
			order = append(order, k)
		}
	}
	for k := range req.Header {
		k = strings.ToLower(k)
		if !contains(order, k) {
			order = append(order, k)
		}
	}
	freq.Header[fhttp.HeaderOrderKey] = order
	return freq, nil
}

func fromFHTTP(fresp *fhttp.Response, req *http.Request) *http.Response {
	header := http.Header{}
	for k, v := range fresp.Header {
		header[k] = v
	}
	contentLength := fresp.ContentLength
	if fresp.Uncompressed {
		header.Del("Content-Encoding")
		header.Del("Content-Length")
		contentLength = -1
	}
	return &http.Response{
		Status:        fresp.Status,
		StatusCode:    fresp.StatusCode,
		Proto:         fresp.Proto,
		ProtoMajor:    fresp.ProtoMajor,
		ProtoMinor:    fresp.ProtoMinor,
		Header:        header,
		Body:          fresp.Body,
		ContentLength: contentLength,
		Uncompressed:  fresp.Uncompressed,
		Request:       req,
	}
}

func contains(s []string, v string) bool {
	for _, x := range s {
		if x == v {
			return true
		}
	}
	return false
}
