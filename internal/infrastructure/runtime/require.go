package runtime

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/dop251/goja"
	apperrors "github.com/reglet-dev/lantern/internal/application/errors"
	"github.com/reglet-dev/lantern/internal/infrastructure/modules"
)

// ModuleLoader resolves and loads module source under the sandbox policy.
type ModuleLoader interface {
	EntryLocator(relPath string) *url.URL
	Resolve(specifier, referrer string) (*url.URL, error)
	Load(ctx context.Context, locator *url.URL) (*modules.ModuleSource, error)
}

// registry evaluates modules on demand and caches each locator's exports,
// so every module body runs at most once per run.
type registry struct {
	ctx    context.Context
	loop   *eventLoop
	loader ModuleLoader
	wasm   *wasmHost
	cache  map[string]*goja.Object
}

func newRegistry(ctx context.Context, loop *eventLoop, loader ModuleLoader, wasm *wasmHost) *registry {
	return &registry{
		ctx:    ctx,
		loop:   loop,
		loader: loader,
		wasm:   wasm,
		cache:  make(map[string]*goja.Object),
	}
}

// requireFunc returns the require() bound to one referrer. Loader failures
// abort the run: a script cannot catch its way past the sandbox.
func (r *registry) requireFunc(referrer string) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		specifier := call.Argument(0).String()
		exports, err := r.require(specifier, referrer)
		if err == nil {
			return exports
		}

		var (
			sandboxErr  *apperrors.SandboxError
			interrupted *goja.InterruptedError
			exception   *goja.Exception
		)
		switch {
		case errors.As(err, &sandboxErr), errors.As(err, &interrupted):
			r.loop.abort(err)
			return goja.Undefined()
		case errors.As(err, &exception):
			// Rethrow what the module body threw.
			panic(exception.Value())
		default:
			panic(r.loop.errorValue(err))
		}
	}
}

func (r *registry) require(specifier, referrer string) (goja.Value, error) {
	locator, err := r.loader.Resolve(specifier, referrer)
	if err != nil {
		return nil, err
	}
	module, err := r.load(locator)
	if err != nil {
		return nil, err
	}
	return module.Get("exports"), nil
}

// load returns the module object for locator, evaluating it on first use.
// The module is cached before evaluation so import cycles see partial
// exports instead of recursing.
func (r *registry) load(locator *url.URL) (*goja.Object, error) {
	key := locator.String()
	if module, ok := r.cache[key]; ok {
		return module, nil
	}

	src, err := r.loader.Load(r.ctx, locator)
	if err != nil {
		return nil, err
	}

	vm := r.loop.vm
	module := vm.NewObject()
	_ = module.Set("id", key)
	_ = module.Set("exports", vm.NewObject())
	r.cache[key] = module

	switch src.Kind {
	case modules.KindScript:
		err = r.evalScript(module, src)
	case modules.KindData:
		err = r.evalData(module, src)
	case modules.KindWasm:
		err = r.evalWasm(module, src)
	default:
		err = apperrors.NewSandboxError(apperrors.ViolationFormat, key, "unknown module format", nil)
	}
	if err != nil {
		delete(r.cache, key)
		return nil, err
	}
	return module, nil
}

func (r *registry) evalScript(module *goja.Object, src *modules.ModuleSource) error {
	key := src.Locator.String()
	wrapped, err := wrapModule(src.Code, key)
	if err != nil {
		return fmt.Errorf("failed to load %s: %w", key, err)
	}

	prog, err := goja.Compile(key, wrapped, false)
	if err != nil {
		return fmt.Errorf("failed to compile %s: %w", key, err)
	}

	vm := r.loop.vm
	fnValue, err := vm.RunProgram(prog)
	if err != nil {
		return err
	}
	fn, ok := goja.AssertFunction(fnValue)
	if !ok {
		return fmt.Errorf("module wrapper for %s is not a function", key)
	}

	filename, dirname := key, ""
	if src.Locator.Scheme == "file" {
		filename = src.Locator.Path
		dirname = path.Dir(filename)
	}

	meta := vm.NewObject()
	_ = meta.Set("url", key)
	_ = meta.Set("main", len(r.cache) == 1)
	_ = meta.Set("resolve", func(specifier string) (string, error) {
		u, err := r.loader.Resolve(specifier, key)
		if err != nil {
			return "", err
		}
		return u.String(), nil
	})

	_, err = fn(goja.Undefined(),
		module.Get("exports"),
		vm.ToValue(r.requireFunc(key)),
		module,
		vm.ToValue(filename),
		vm.ToValue(dirname),
		meta,
	)
	return err
}

func (r *registry) evalData(module *goja.Object, src *modules.ModuleSource) error {
	value, err := r.loop.parse(goja.Undefined(), r.loop.vm.ToValue(strings.TrimPrefix(string(src.Code), "\ufeff")))
	if err != nil {
		return fmt.Errorf("failed to parse %s: %w", src.Locator.String(), err)
	}
	return module.Set("exports", value)
}

func (r *registry) evalWasm(module *goja.Object, src *modules.ModuleSource) error {
	exports, err := r.wasm.instantiate(r.ctx, r.loop.vm, src)
	if err != nil {
		return fmt.Errorf("failed to instantiate %s: %w", src.Locator.String(), err)
	}
	return module.Set("exports", exports)
}
