package hostapi

import (
	"net"
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/reglet-dev/lantern/internal/domain/capabilities"
)

// Options configure a Backend.
type Options struct {
	// Transport is the base transport cloned for every pinned connection.
	Transport *http.Transport
	Resolver  *net.Resolver
	LookupEnv func(string) (string, bool)
	Version   string
	UserAgent string
	Extension string
	RunID     string
	Cwd       string
	Timeout   time.Duration
}

// HostInfo describes the host to the extension.
type HostInfo struct {
	Version   string `json:"version"`
	UserAgent string `json:"userAgent"`
	Platform  string `json:"platform"`
	RunID     string `json:"runId"`
	Extension string `json:"extension"`
}

// Backend serves host operations for one extension run.
type Backend struct {
	checker   *CapabilityChecker
	http      *resty.Client
	resolver  *net.Resolver
	lookupEnv func(string) (string, bool)
	info      HostInfo
	cwd       string
}

// New creates the backend for one run, enforcing grant.
func New(grant capabilities.Grant, opts Options) (*Backend, error) {
	if opts.Cwd == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, err
		}
		opts.Cwd = cwd
	}
	if opts.Resolver == nil {
		opts.Resolver = net.DefaultResolver
	}
	if opts.LookupEnv == nil {
		opts.LookupEnv = os.LookupEnv
	}

	checker := NewCapabilityChecker(grant, opts.Cwd)
	return &Backend{
		checker:   checker,
		http:      newHTTPClient(checker, opts.Resolver, opts.Transport, opts.Timeout, opts.UserAgent),
		resolver:  opts.Resolver,
		lookupEnv: opts.LookupEnv,
		cwd:       opts.Cwd,
		info: HostInfo{
			Version:   opts.Version,
			UserAgent: opts.UserAgent,
			Platform:  runtime.GOOS + "/" + runtime.GOARCH,
			RunID:     opts.RunID,
			Extension: opts.Extension,
		},
	}, nil
}

// HostInfo needs no permission.
func (b *Backend) HostInfo() HostInfo {
	return b.info
}
