package runtime

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/dop251/goja"
	"github.com/reglet-dev/lantern/internal/infrastructure/modules"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
)

// globalCache speeds up compilation across runs.
var globalCache = wazero.NewCompilationCache()

// wasmMemoryLimitPages caps each module at 256MB (1 page = 64KB).
const wasmMemoryLimitPages = 256 * 16

// wasmHost instantiates WebAssembly modules for one run. The wazero runtime
// is created lazily so runs without wasm imports pay nothing.
type wasmHost struct {
	stdout io.Writer
	stderr io.Writer

	once    sync.Once
	runtime wazero.Runtime
	err     error
}

func newWasmHost(stdout, stderr io.Writer) *wasmHost {
	return &wasmHost{stdout: stdout, stderr: stderr}
}

func (h *wasmHost) init(ctx context.Context) error {
	h.once.Do(func() {
		config := wazero.NewRuntimeConfig().
			WithCompilationCache(globalCache).
			WithMemoryLimitPages(wasmMemoryLimitPages).
			WithCloseOnContextDone(true)
		r := wazero.NewRuntimeWithConfig(ctx, config)

		// WASI without preopens: clocks, random and stdio only.
		if _, err := wasi_snapshot_preview1.Instantiate(ctx, r); err != nil {
			_ = r.Close(ctx)
			h.err = fmt.Errorf("failed to instantiate WASI: %w", err)
			return
		}
		h.runtime = r
	})
	return h.err
}

// instantiate compiles src and returns an object exposing its exported
// functions as JavaScript functions.
func (h *wasmHost) instantiate(ctx context.Context, vm *goja.Runtime, src *modules.ModuleSource) (*goja.Object, error) {
	if err := h.init(ctx); err != nil {
		return nil, err
	}

	compiled, err := h.runtime.CompileModule(ctx, src.Code)
	if err != nil {
		return nil, err
	}

	config := wazero.NewModuleConfig().
		WithName("").
		WithStdout(h.stdout).
		WithStderr(h.stderr).
		WithStartFunctions("_initialize")
	mod, err := h.runtime.InstantiateModule(ctx, compiled, config)
	if err != nil {
		return nil, err
	}

	exports := vm.NewObject()
	for name, def := range compiled.ExportedFunctions() {
		fn := mod.ExportedFunction(name)
		if fn == nil {
			continue
		}
		if err := exports.Set(name, wrapWasmFunction(ctx, vm, name, def, fn)); err != nil {
			return nil, err
		}
	}
	return exports, nil
}

func (h *wasmHost) close(ctx context.Context) {
	if h.runtime != nil {
		_ = h.runtime.Close(ctx)
	}
}

func wrapWasmFunction(ctx context.Context, vm *goja.Runtime, name string, def api.FunctionDefinition, fn api.Function) func(goja.FunctionCall) goja.Value {
	params := def.ParamTypes()
	results := def.ResultTypes()

	return func(call goja.FunctionCall) goja.Value {
		stack := make([]uint64, len(params))
		for i, t := range params {
			arg := call.Argument(i)
			switch t {
			case api.ValueTypeI32:
				stack[i] = api.EncodeI32(int32(arg.ToInteger()))
			case api.ValueTypeI64:
				stack[i] = api.EncodeI64(arg.ToInteger())
			case api.ValueTypeF32:
				stack[i] = api.EncodeF32(float32(arg.ToFloat()))
			case api.ValueTypeF64:
				stack[i] = api.EncodeF64(arg.ToFloat())
			default:
				panic(vm.NewTypeError(fmt.Sprintf("%s: unsupported parameter type %s", name, api.ValueTypeName(t))))
			}
		}

		out, err := fn.Call(ctx, stack...)
		if err != nil {
			panic(vm.NewGoError(fmt.Errorf("%s: %w", name, err)))
		}

		values := make([]goja.Value, len(results))
		for i, t := range results {
			switch t {
			case api.ValueTypeI32:
				values[i] = vm.ToValue(api.DecodeI32(out[i]))
			case api.ValueTypeI64:
				values[i] = vm.ToValue(int64(out[i]))
			case api.ValueTypeF32:
				values[i] = vm.ToValue(api.DecodeF32(out[i]))
			case api.ValueTypeF64:
				values[i] = vm.ToValue(api.DecodeF64(out[i]))
			default:
				values[i] = goja.Undefined()
			}
		}

		switch len(values) {
		case 0:
			return goja.Undefined()
		case 1:
			return values[0]
		default:
			return vm.NewArray(toInterfaces(values)...)
		}
	}
}

func toInterfaces(values []goja.Value) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
