package hostapi

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// maxResponseBody caps response bodies handed to extensions.
const maxResponseBody = 10 * 1024 * 1024

const maxRedirects = 10

// FetchInit mirrors the optional second argument of fetch().
type FetchInit struct {
	Method    string            `json:"method"`
	Headers   map[string]string `json:"headers"`
	Body      string            `json:"body"`
	TimeoutMs int64             `json:"timeoutMs"`
}

// FetchResponse is returned to the extension as a plain object.
type FetchResponse struct {
	Headers    map[string]string `json:"headers"`
	StatusText string            `json:"statusText"`
	Body       string            `json:"body"`
	URL        string            `json:"url"`
	Status     int               `json:"status"`
	Truncated  bool              `json:"truncated"`
}

// dnsPinningTransport resolves each destination once, validates the address
// and dials exactly that address, so a DNS answer cannot change between the
// check and the connection.
type dnsPinningTransport struct {
	base     *http.Transport
	resolver *net.Resolver
	checker  *CapabilityChecker
}

// RoundTrip implements http.RoundTripper with DNS pinning and SSRF protection.
func (t *dnsPinningTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	hostname := req.URL.Hostname()

	validatedIP, err := resolveAndValidate(req.Context(), t.resolver, hostname, t.checker)
	if err != nil {
		return nil, fmt.Errorf("SSRF protection: %w", err)
	}

	port := portOf(req.URL)

	pinned := t.base.Clone()
	pinned.DialContext = func(dialCtx context.Context, network, _ string) (net.Conn, error) {
		dialer := &net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}
		return dialer.DialContext(dialCtx, network, net.JoinHostPort(validatedIP, port))
	}

	// SNI and certificate validation still use the hostname.
	if req.URL.Scheme == "https" {
		if pinned.TLSClientConfig == nil {
			pinned.TLSClientConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		}
		pinned.TLSClientConfig.ServerName = hostname
	}

	return pinned.RoundTrip(req)
}

func portOf(u *url.URL) string {
	if p := u.Port(); p != "" {
		return p
	}
	if u.Scheme == "https" {
		return "443"
	}
	return "80"
}

// newHTTPClient builds the resty client used by fetch. base may be nil.
func newHTTPClient(checker *CapabilityChecker, resolver *net.Resolver, base *http.Transport, timeout time.Duration, userAgent string) *resty.Client {
	if base == nil {
		base = &http.Transport{
			ForceAttemptHTTP2:     true,
			MaxIdleConns:          10,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		}
	}

	client := resty.New().
		SetTransport(&dnsPinningTransport{base: base, resolver: resolver, checker: checker}).
		SetHeader("User-Agent", userAgent).
		SetRedirectPolicy(resty.RedirectPolicyFunc(func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("stopped after %d redirects", maxRedirects)
			}
			// Every hop needs its own grant.
			return checker.CheckNetwork(req.URL.Hostname(), portOf(req.URL))
		}))
	if timeout > 0 {
		client.SetTimeout(timeout)
	}
	return client
}

// Fetch performs an HTTP request on behalf of the extension.
func (b *Backend) Fetch(ctx context.Context, rawURL string, init FetchInit) (*FetchResponse, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported URL scheme %q", u.Scheme)
	}
	if u.Hostname() == "" {
		return nil, errors.New("URL has no host")
	}

	if err := b.checker.CheckNetwork(u.Hostname(), portOf(u)); err != nil {
		slog.WarnContext(ctx, "fetch denied", "url", rawURL, "error", err)
		return nil, err
	}

	method := strings.ToUpper(init.Method)
	if method == "" {
		method = http.MethodGet
	}

	if init.TimeoutMs > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(init.TimeoutMs)*time.Millisecond)
		defer cancel()
	}

	req := b.http.R().
		SetContext(ctx).
		SetHeaders(init.Headers).
		SetDoNotParseResponse(true)
	if init.Body != "" {
		req.SetBody(init.Body)
	}

	resp, err := req.Execute(method, u.String())
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	raw := resp.RawBody()
	defer func() {
		_ = raw.Close()
	}()

	body, err := io.ReadAll(io.LimitReader(raw, maxResponseBody+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	truncated := false
	if len(body) > maxResponseBody {
		body = body[:maxResponseBody]
		truncated = true
		slog.WarnContext(ctx, "HTTP response body truncated", "url", rawURL, "max_size_mb", maxResponseBody/(1024*1024))
	}

	headers := make(map[string]string, len(resp.Header()))
	for key, values := range resp.Header() {
		headers[strings.ToLower(key)] = strings.Join(values, ", ")
	}

	finalURL := u.String()
	if resp.RawResponse != nil && resp.RawResponse.Request != nil {
		finalURL = resp.RawResponse.Request.URL.String()
	}

	return &FetchResponse{
		Status:     resp.StatusCode(),
		StatusText: http.StatusText(resp.StatusCode()),
		Headers:    headers,
		Body:       string(body),
		Truncated:  truncated,
		URL:        finalURL,
	}, nil
}
