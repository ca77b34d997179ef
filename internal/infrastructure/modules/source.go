// Package modules implements the sandboxed module resolver and loader used
// by the extension runtime. Every module an extension executes, its entry
// point included, passes through Loader.Load.
package modules

import (
	"mime"
	"net/url"
	"path"
	"strings"

	"github.com/evanw/esbuild/pkg/api"
)

// Kind tells the engine how to evaluate module source.
type Kind int

const (
	// KindScript is executable JavaScript.
	KindScript Kind = iota
	// KindData is a JSON document exported as the module value.
	KindData
	// KindWasm is a WebAssembly binary whose exports become the module value.
	KindWasm
)

func (k Kind) String() string {
	switch k {
	case KindScript:
		return "script"
	case KindData:
		return "data"
	case KindWasm:
		return "wasm"
	default:
		return "unknown"
	}
}

// ModuleSource is what the loader hands to the engine.
type ModuleSource struct {
	Locator    *url.URL
	Code       []byte
	Kind       Kind
	Transpiled bool
}

// mediaType describes how one source format is handled.
type mediaType struct {
	kind      Kind
	loader    api.Loader
	transpile bool
}

var (
	mediaJavaScript = mediaType{kind: KindScript}
	mediaTypeScript = mediaType{kind: KindScript, loader: api.LoaderTS, transpile: true}
	mediaTSX        = mediaType{kind: KindScript, loader: api.LoaderTSX, transpile: true}
	mediaJSX        = mediaType{kind: KindScript, loader: api.LoaderJSX, transpile: true}
	mediaJSON       = mediaType{kind: KindData}
	mediaWasm       = mediaType{kind: KindWasm}
)

var extensionMediaTypes = map[string]mediaType{
	".js":   mediaJavaScript,
	".mjs":  mediaJavaScript,
	".cjs":  mediaJavaScript,
	".ts":   mediaTypeScript,
	".mts":  mediaTypeScript,
	".cts":  mediaTypeScript,
	".tsx":  mediaTSX,
	".jsx":  mediaJSX,
	".json": mediaJSON,
	".wasm": mediaWasm,
}

var contentTypeMediaTypes = map[string]mediaType{
	"application/javascript":   mediaJavaScript,
	"text/javascript":          mediaJavaScript,
	"application/ecmascript":   mediaJavaScript,
	"application/typescript":   mediaTypeScript,
	"text/typescript":          mediaTypeScript,
	"video/vnd.dlna.mpeg-tts":  mediaTypeScript,
	"video/mp2t":               mediaTypeScript,
	"application/x-typescript": mediaTypeScript,
	"text/jsx":                 mediaJSX,
	"text/tsx":                 mediaTSX,
	"application/json":         mediaJSON,
	"text/json":                mediaJSON,
	"application/wasm":         mediaWasm,
}

// mediaTypeFor picks a media type from the locator's file extension, falling
// back to a remote Content-Type header when the path has no known extension.
func mediaTypeFor(locator *url.URL, contentType string) (mediaType, bool) {
	p := strings.ToLower(locator.Path)

	// Declaration files carry no runtime code but are valid TypeScript.
	for _, decl := range []string{".d.ts", ".d.mts", ".d.cts"} {
		if strings.HasSuffix(p, decl) {
			return mediaTypeScript, true
		}
	}

	if mt, ok := extensionMediaTypes[path.Ext(p)]; ok {
		return mt, true
	}

	if contentType != "" {
		if parsed, _, err := mime.ParseMediaType(contentType); err == nil {
			mt, ok := contentTypeMediaTypes[parsed]
			return mt, ok
		}
	}
	return mediaType{}, false
}
