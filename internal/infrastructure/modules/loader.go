package modules

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	apperrors "github.com/reglet-dev/lantern/internal/application/errors"
)

const (
	// APISpecifier is the import specifier of the injected host API module.
	APISpecifier = "lantern"
	// APILocator is the virtual locator APISpecifier resolves to.
	APILocator = "lantern:api"
	// TrustedHost is the only host remote modules may be imported from.
	TrustedHost = "deno.land"
)

// Options configure a Loader.
type Options struct {
	Logger     *slog.Logger
	HTTPClient *http.Client
	UserAgent  string
	Timeout    time.Duration
	Retries    int
}

// Loader resolves and loads modules for exactly one extension. Local imports
// are confined to the extension's package directory; remote imports to
// TrustedHost.
type Loader struct {
	fetcher     *remoteFetcher
	logger      *slog.Logger
	root        string
	trustedHost string
}

// NewLoader creates a loader confined to the package rooted at root.
func NewLoader(root string, opts Options) (*Loader, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	// Resolve the root once so boundary checks compare real paths.
	real, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve extension root: %w", err)
	}
	l := &Loader{
		root:        real,
		logger:      opts.Logger,
		trustedHost: TrustedHost,
	}
	l.fetcher = newRemoteFetcher(opts, func(host string) bool {
		return host == l.trustedHost
	})
	return l, nil
}

// EntryLocator returns the file locator of a path relative to the package root.
func (l *Loader) EntryLocator(relPath string) *url.URL {
	return FileURL(filepath.Join(l.root, filepath.FromSlash(relPath)))
}

// Resolve maps an import specifier to a locator. "lantern" always resolves to
// the virtual API module; URLs are taken as-is; "./", "../" and "/" paths
// resolve against the referrer. Bare specifiers are rejected.
func (l *Loader) Resolve(specifier, referrer string) (*url.URL, error) {
	if specifier == APISpecifier {
		return url.Parse(APILocator)
	}

	if u, err := url.Parse(specifier); err == nil && len(u.Scheme) > 1 {
		return u, nil
	}

	if !strings.HasPrefix(specifier, "./") && !strings.HasPrefix(specifier, "../") && !strings.HasPrefix(specifier, "/") {
		return nil, apperrors.NewSandboxError(apperrors.ViolationSpecifier, specifier,
			`relative import path not prefixed with "/", "./" or "../"`, nil)
	}

	base, err := url.Parse(referrer)
	if err != nil || base.Scheme == "" {
		return nil, apperrors.NewSandboxError(apperrors.ViolationSpecifier, referrer, "invalid referrer", err)
	}
	if base.Opaque != "" {
		return nil, apperrors.NewSandboxError(apperrors.ViolationSpecifier, specifier,
			"relative imports are not supported from "+base.String(), nil)
	}

	ref, err := url.Parse(filepath.ToSlash(specifier))
	if err != nil {
		return nil, apperrors.NewSandboxError(apperrors.ViolationSpecifier, specifier, "invalid import specifier", err)
	}
	return base.ResolveReference(ref), nil
}

// Load returns the source for locator, applying the sandbox policy in order:
// virtual API module, local file inside the package, remote module on the
// trusted host, anything else rejected.
func (l *Loader) Load(ctx context.Context, locator *url.URL) (*ModuleSource, error) {
	if locator.String() == APILocator {
		return l.loadAPI()
	}

	switch locator.Scheme {
	case "file":
		return l.loadFile(locator)
	case "https":
		return l.loadRemote(ctx, locator)
	default:
		return nil, apperrors.NewSandboxError(apperrors.ViolationScheme, locator.String(), "unsupported module specifier", nil)
	}
}

func (l *Loader) loadAPI() (*ModuleSource, error) {
	locator, _ := url.Parse(APILocator)
	code, err := transpile(APISource(), APILocator, mediaTypeScript.loader)
	if err != nil {
		return nil, fmt.Errorf("failed to transpile host API module: %w", err)
	}
	return &ModuleSource{Locator: locator, Code: code, Kind: KindScript, Transpiled: true}, nil
}

func (l *Loader) loadFile(locator *url.URL) (*ModuleSource, error) {
	path := localPath(locator)

	if !l.within(path) {
		return nil, apperrors.NewSandboxError(apperrors.ViolationOutsidePackage, locator.String(),
			"importing from paths outside of the extension's directory is not allowed", nil)
	}

	info, err := os.Lstat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("module not found: %s", locator.String())
		}
		return nil, err
	}
	if info.Mode()&fs.ModeSymlink != 0 {
		return nil, apperrors.NewSandboxError(apperrors.ViolationSymlink, locator.String(),
			"importing from symlinks is not allowed", nil)
	}

	// A symlinked parent directory would also lead outside the package.
	real, err := filepath.EvalSymlinks(path)
	if err != nil {
		return nil, err
	}
	if !l.within(real) {
		return nil, apperrors.NewSandboxError(apperrors.ViolationOutsidePackage, locator.String(),
			"importing from paths outside of the extension's directory is not allowed", nil)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("module is not a file: %s", locator.String())
	}

	media, ok := mediaTypeFor(locator, "")
	if !ok {
		return nil, apperrors.NewSandboxError(apperrors.ViolationFormat, locator.String(), "unknown module format", nil)
	}

	code, err := os.ReadFile(real) //nolint:gosec // G304: confined to the package root above
	if err != nil {
		return nil, err
	}
	return l.finish(locator, code, media)
}

func (l *Loader) loadRemote(ctx context.Context, locator *url.URL) (*ModuleSource, error) {
	if locator.Host != l.trustedHost {
		return nil, apperrors.NewSandboxError(apperrors.ViolationHostDenied, locator.String(),
			"importing from domains other than "+TrustedHost+" is not allowed", nil)
	}

	code, contentType, err := l.fetcher.fetch(ctx, locator.String())
	if err != nil {
		var sandboxErr *apperrors.SandboxError
		if errors.As(err, &sandboxErr) {
			return nil, sandboxErr
		}
		return nil, apperrors.NewSandboxError(apperrors.ViolationFetch, locator.String(), "failed to fetch module", err)
	}

	media, ok := mediaTypeFor(locator, contentType)
	if !ok {
		return nil, apperrors.NewSandboxError(apperrors.ViolationFormat, locator.String(), "unknown module format", nil)
	}
	return l.finish(locator, code, media)
}

func (l *Loader) finish(locator *url.URL, code []byte, media mediaType) (*ModuleSource, error) {
	src := &ModuleSource{Locator: locator, Code: code, Kind: media.kind}
	if media.transpile {
		out, err := transpile(code, locator.String(), media.loader)
		if err != nil {
			return nil, fmt.Errorf("failed to transpile %s: %w", locator.String(), err)
		}
		src.Code = out
		src.Transpiled = true
	}
	l.log().Debug("loaded module", "locator", locator.String(), "kind", src.Kind.String(), "transpiled", src.Transpiled)
	return src, nil
}

// log falls back to the default logger at call time, so a run that silences
// host logging also silences the loader.
func (l *Loader) log() *slog.Logger {
	if l.logger != nil {
		return l.logger
	}
	return slog.Default()
}

func (l *Loader) within(path string) bool {
	rel, err := filepath.Rel(l.root, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && !filepath.IsAbs(rel)
}

// FileURL converts an absolute filesystem path to a file: locator.
func FileURL(path string) *url.URL {
	p := filepath.ToSlash(path)
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return &url.URL{Scheme: "file", Path: p}
}

// localPath turns a file: locator back into a cleaned filesystem path.
func localPath(locator *url.URL) string {
	p := locator.Path
	// "/C:/dir" on Windows.
	if len(p) > 2 && p[0] == '/' && p[2] == ':' {
		p = p[1:]
	}
	return filepath.Clean(filepath.FromSlash(p))
}
