package runtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/dop251/goja"
	"github.com/reglet-dev/lantern/internal/infrastructure/hostapi"
)

// bootInfo is what the host tells the script about itself.
type bootInfo struct {
	Version   string
	UserAgent string
	RunID     string
	Main      string
	CPUCount  int
	NoColor   bool
	IsTTY     bool
}

const prelude = `
globalThis.queueMicrotask = function queueMicrotask(callback) {
  if (typeof callback !== "function") {
    throw new TypeError("callback must be a function");
  }
  Promise.resolve().then(() => callback());
};
Object.freeze(Lantern.args);
Object.freeze(Lantern.env);
Object.freeze(Lantern);
`

// installGlobals sets up console, timers, the Lantern namespace and the
// hidden operation table used by the "lantern" module.
func installGlobals(ctx context.Context, l *eventLoop, info bootInfo, stdout, stderr io.Writer) error {
	state, ok := StateFromContext(ctx)
	if !ok {
		return errors.New("no extension state in context")
	}
	vm := l.vm

	stringify, _ := goja.AssertFunction(vm.Get("JSON").ToObject(vm).Get("stringify"))
	l.format = func(v goja.Value) string { return inspect(vm, stringify, v) }

	console := vm.NewObject()
	for name, w := range map[string]io.Writer{
		"log": stdout, "info": stdout, "debug": stdout,
		"warn": stderr, "error": stderr, "trace": stderr,
	} {
		if err := console.Set(name, consoleFunc(w, l.format)); err != nil {
			return err
		}
	}
	if err := vm.Set("console", console); err != nil {
		return err
	}

	timers := map[string]func(goja.FunctionCall) goja.Value{
		"setTimeout":    func(call goja.FunctionCall) goja.Value { return l.setTimer(call, false) },
		"setInterval":   func(call goja.FunctionCall) goja.Value { return l.setTimer(call, true) },
		"clearTimeout":  l.clearTimer,
		"clearInterval": l.clearTimer,
	}
	for name, fn := range timers {
		if err := vm.Set(name, fn); err != nil {
			return err
		}
	}

	ops := newOps(ctx, l, state, info)
	if err := vm.GlobalObject().DefineDataProperty("__lantern_ops", ops.object(), goja.FLAG_FALSE, goja.FLAG_FALSE, goja.FLAG_FALSE); err != nil {
		return err
	}

	if err := vm.Set("Lantern", lanternNamespace(l, state, info, ops)); err != nil {
		return err
	}

	_, err := vm.RunString(prelude)
	return err
}

func lanternNamespace(l *eventLoop, state *ExtensionState, info bootInfo, ops *hostOps) *goja.Object {
	vm := l.vm
	ns := vm.NewObject()

	args := state.Args()
	jsArgs := make([]any, len(args))
	for i, a := range args {
		jsArgs[i] = a
	}
	_ = ns.Set("args", vm.NewArray(jsArgs...))
	_ = ns.Set("version", info.Version)
	_ = ns.Set("userAgent", info.UserAgent)
	_ = ns.Set("cpuCount", info.CPUCount)
	_ = ns.Set("noColor", info.NoColor)
	_ = ns.Set("isTty", info.IsTTY)
	_ = ns.Set("runId", info.RunID)
	_ = ns.Set("mainModule", info.Main)

	env := vm.NewObject()
	_ = env.Set("get", ops.envGet)
	_ = ns.Set("env", env)

	_ = ns.Set("readTextFile", ops.readTextFile)
	_ = ns.Set("writeTextFile", ops.writeTextFile)
	_ = ns.Set("exit", func(call goja.FunctionCall) goja.Value {
		code := 0
		if arg := call.Argument(0); !goja.IsUndefined(arg) {
			code = int(arg.ToInteger())
		}
		l.requestExit(code)
		return goja.Undefined()
	})
	return ns
}

func consoleFunc(w io.Writer, format func(goja.Value) string) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		parts := make([]string, len(call.Arguments))
		for i, arg := range call.Arguments {
			parts[i] = format(arg)
		}
		_, _ = fmt.Fprintln(w, strings.Join(parts, " "))
		return goja.Undefined()
	}
}

// inspect renders a value for console output: strings verbatim, errors with
// their stack, everything else as JSON where possible.
func inspect(vm *goja.Runtime, stringify goja.Callable, v goja.Value) string {
	if v == nil || goja.IsUndefined(v) {
		return "undefined"
	}
	if goja.IsNull(v) {
		return "null"
	}

	obj, ok := v.(*goja.Object)
	if !ok {
		return v.String()
	}
	if _, isFn := goja.AssertFunction(obj); isFn {
		return fmt.Sprintf("[Function: %s]", obj.Get("name").String())
	}
	if obj.ClassName() == "Error" {
		if stack := obj.Get("stack"); stack != nil && !goja.IsUndefined(stack) {
			return stack.String()
		}
		return obj.String()
	}

	out, err := stringify(goja.Undefined(), v)
	if err != nil || out == nil || goja.IsUndefined(out) {
		return v.String()
	}
	return out.String()
}

// decode copies a JavaScript argument into a Go value through JSON.
// Undefined and null leave target untouched.
func decode(vm *goja.Runtime, stringify goja.Callable, v goja.Value, target any) error {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil
	}
	out, err := stringify(goja.Undefined(), v)
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(out.String()), target)
}

// hostOps are the native functions behind the "lantern" module.
type hostOps struct {
	ctx       context.Context
	loop      *eventLoop
	state     *ExtensionState
	info      bootInfo
	stringify goja.Callable
}

func newOps(ctx context.Context, l *eventLoop, state *ExtensionState, info bootInfo) *hostOps {
	stringify, _ := goja.AssertFunction(l.vm.Get("JSON").ToObject(l.vm).Get("stringify"))
	return &hostOps{ctx: ctx, loop: l, state: state, info: info, stringify: stringify}
}

func (o *hostOps) object() *goja.Object {
	obj := o.loop.vm.NewObject()
	_ = obj.Set("hostInfo", o.hostInfo)
	_ = obj.Set("fetch", o.fetch)
	_ = obj.Set("lookupHost", o.lookupHost)
	_ = obj.Set("runCommand", o.runCommand)
	_ = obj.Set("readTextFile", o.readTextFile)
	_ = obj.Set("writeTextFile", o.writeTextFile)
	_ = obj.Set("envGet", o.envGet)
	return obj
}

// arg decodes a structured argument or throws a TypeError.
func (o *hostOps) arg(v goja.Value, target any) {
	if err := decode(o.loop.vm, o.stringify, v, target); err != nil {
		panic(o.loop.vm.NewTypeError(fmt.Sprintf("invalid argument: %v", err)))
	}
}

func (o *hostOps) hostInfo(goja.FunctionCall) goja.Value {
	b, err := o.state.API()
	if err != nil {
		return o.loop.settle(nil, err)
	}
	return o.loop.settle(b.HostInfo(), nil)
}

func (o *hostOps) fetch(call goja.FunctionCall) goja.Value {
	url := call.Argument(0).String()
	var init hostapi.FetchInit
	o.arg(call.Argument(1), &init)
	return o.loop.async(func() (any, error) {
		b, err := o.state.API()
		if err != nil {
			return nil, err
		}
		return b.Fetch(o.ctx, url, init)
	})
}

func (o *hostOps) lookupHost(call goja.FunctionCall) goja.Value {
	host := call.Argument(0).String()
	return o.loop.async(func() (any, error) {
		b, err := o.state.API()
		if err != nil {
			return nil, err
		}
		return b.LookupHost(o.ctx, host)
	})
}

func (o *hostOps) runCommand(call goja.FunctionCall) goja.Value {
	command := call.Argument(0).String()
	var args []string
	o.arg(call.Argument(1), &args)
	var opts hostapi.CommandOptions
	o.arg(call.Argument(2), &opts)
	return o.loop.async(func() (any, error) {
		b, err := o.state.API()
		if err != nil {
			return nil, err
		}
		return b.RunCommand(o.ctx, command, args, opts)
	})
}

func (o *hostOps) readTextFile(call goja.FunctionCall) goja.Value {
	path := call.Argument(0).String()
	return o.loop.async(func() (any, error) {
		b, err := o.state.API()
		if err != nil {
			return nil, err
		}
		return b.ReadTextFile(o.ctx, path)
	})
}

func (o *hostOps) writeTextFile(call goja.FunctionCall) goja.Value {
	path := call.Argument(0).String()
	data := call.Argument(1).String()
	return o.loop.async(func() (any, error) {
		b, err := o.state.API()
		if err != nil {
			return nil, err
		}
		return nil, b.WriteTextFile(o.ctx, path, data)
	})
}

func (o *hostOps) envGet(call goja.FunctionCall) goja.Value {
	name := call.Argument(0).String()
	b, err := o.state.API()
	if err != nil {
		return o.loop.settle(nil, err)
	}
	v, ok, err := b.EnvGet(name)
	if err != nil || !ok {
		return o.loop.settle(nil, err)
	}
	return o.loop.settle(v, nil)
}
