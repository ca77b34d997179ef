package modules

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	apperrors "github.com/reglet-dev/lantern/internal/application/errors"
)

// maxRedirects matches the net/http default.
const maxRedirects = 10

// maxRemoteModuleSize caps remote module bodies.
const maxRemoteModuleSize = 8 * 1024 * 1024

// remoteFetcher downloads standard-library modules with retries.
type remoteFetcher struct {
	client    *retryablehttp.Client
	userAgent string
}

// newRemoteFetcher builds the retrying client. Every redirect hop must stay on
// https and on a host allowHost accepts.
func newRemoteFetcher(opts Options, allowHost func(host string) bool) *remoteFetcher {
	client := retryablehttp.NewClient()
	client.RetryMax = opts.Retries
	client.RetryWaitMin = 200 * time.Millisecond
	client.RetryWaitMax = 5 * time.Second
	client.Logger = nil
	if opts.Logger != nil {
		client.Logger = retryablehttp.LeveledLogger(opts.Logger)
	}
	if opts.HTTPClient != nil {
		// Copy so the redirect policy does not leak into the caller's client.
		hc := *opts.HTTPClient
		client.HTTPClient = &hc
	}
	if opts.Timeout > 0 {
		client.HTTPClient.Timeout = opts.Timeout
	}
	client.HTTPClient.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		if len(via) >= maxRedirects {
			return fmt.Errorf("stopped after %d redirects", maxRedirects)
		}
		if req.URL.Scheme != "https" || !allowHost(req.URL.Host) {
			return apperrors.NewSandboxError(apperrors.ViolationHostDenied, req.URL.String(),
				"redirect to a domain other than "+TrustedHost+" is not allowed", nil)
		}
		return nil
	}
	client.CheckRetry = func(ctx context.Context, resp *http.Response, err error) (bool, error) {
		var sandboxErr *apperrors.SandboxError
		if errors.As(err, &sandboxErr) {
			return false, sandboxErr
		}
		return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
	}
	return &remoteFetcher{client: client, userAgent: opts.UserAgent}
}

func (f *remoteFetcher) fetch(ctx context.Context, locator string) ([]byte, string, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, locator, nil)
	if err != nil {
		return nil, "", err
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, "", fmt.Errorf("unexpected status %s", resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxRemoteModuleSize+1))
	if err != nil {
		return nil, "", err
	}
	if len(body) > maxRemoteModuleSize {
		return nil, "", fmt.Errorf("module larger than %d bytes", maxRemoteModuleSize)
	}

	slog.DebugContext(ctx, "fetched remote module", "url", locator, "bytes", len(body))
	return body, resp.Header.Get("Content-Type"), nil
}
