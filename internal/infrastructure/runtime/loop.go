package runtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dop251/goja"
	apperrors "github.com/reglet-dev/lantern/internal/application/errors"
)

// exitRequest is the interrupt value used by Lantern.exit.
type exitRequest struct {
	code int
}

// eventLoop is a single-threaded cooperative loop owning one goja VM. Only
// the goroutine inside run touches the VM; other goroutines hand work back
// through post.
type eventLoop struct {
	vm       *goja.Runtime
	jobs     chan func() error
	done     chan struct{}
	timers   map[int64]*timer
	rejected map[*goja.Promise]struct{}
	format   func(goja.Value) string
	parse    goja.Callable

	// pending counts live timers and in-flight host operations.
	pending int
	nextID  int64

	exit  *exitRequest
	fatal error
}

type timer struct {
	t        *time.Timer
	fn       goja.Callable
	args     []goja.Value
	interval time.Duration
	repeat   bool
	cleared  bool
}

func newEventLoop(vm *goja.Runtime) *eventLoop {
	l := &eventLoop{
		vm:       vm,
		jobs:     make(chan func() error),
		done:     make(chan struct{}),
		timers:   make(map[int64]*timer),
		rejected: make(map[*goja.Promise]struct{}),
		format:   func(v goja.Value) string { return v.String() },
	}
	l.parse, _ = goja.AssertFunction(vm.Get("JSON").ToObject(vm).Get("parse"))
	vm.SetPromiseRejectionTracker(func(p *goja.Promise, op goja.PromiseRejectionOperation) {
		switch op {
		case goja.PromiseRejectionReject:
			l.rejected[p] = struct{}{}
		case goja.PromiseRejectionHandle:
			delete(l.rejected, p)
		}
	})
	return l
}

// post schedules job on the loop. It reports false once the loop has stopped.
func (l *eventLoop) post(job func() error) bool {
	select {
	case l.jobs <- job:
		return true
	case <-l.done:
		return false
	}
}

// abort stops the run with err no matter what the script does next; the
// interrupt is not catchable from JavaScript.
func (l *eventLoop) abort(err error) {
	if l.fatal == nil && l.exit == nil {
		l.fatal = err
	}
	l.vm.Interrupt(err)
}

func (l *eventLoop) requestExit(code int) {
	if l.exit == nil {
		l.exit = &exitRequest{code: code}
	}
	l.vm.Interrupt(l.exit)
}

// enter runs fn, which calls into the VM, and classifies the outcome.
func (l *eventLoop) enter(fn func() error) error {
	err := fn()
	if l.exit != nil {
		return l.exit
	}
	if l.fatal != nil {
		return l.fatal
	}
	if err != nil {
		return err
	}
	return l.checkRejections()
}

func (l *eventLoop) checkRejections() error {
	for p := range l.rejected {
		return fmt.Errorf("uncaught (in promise) %s", l.format(p.Result()))
	}
	return nil
}

// run drives the loop until nothing is pending, the context ends or a job
// fails. It must be called from the goroutine that created the VM; the
// caller closes done afterwards.
func (l *eventLoop) run(ctx context.Context) error {
	for l.pending > 0 {
		select {
		case job := <-l.jobs:
			if err := l.enter(job); err != nil {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (l *eventLoop) stopTimers() {
	for id, tm := range l.timers {
		tm.t.Stop()
		delete(l.timers, id)
	}
}

// async runs op off the loop and settles the returned promise on the loop.
func (l *eventLoop) async(op func() (any, error)) goja.Value {
	promise, resolve, reject := l.vm.NewPromise()
	l.pending++
	go func() {
		v, err := op()
		l.post(func() error {
			l.pending--
			if err != nil {
				return reject(l.errorValue(err))
			}
			val, err := l.value(v)
			if err != nil {
				return reject(l.errorValue(err))
			}
			return resolve(val)
		})
	}()
	return l.vm.ToValue(promise)
}

func (l *eventLoop) setTimer(call goja.FunctionCall, repeat bool) goja.Value {
	fn, ok := goja.AssertFunction(call.Argument(0))
	if !ok {
		panic(l.vm.NewTypeError("callback must be a function"))
	}
	delay := time.Duration(call.Argument(1).ToInteger()) * time.Millisecond
	if delay < 0 {
		delay = 0
	}
	var args []goja.Value
	if len(call.Arguments) > 2 {
		args = append(args, call.Arguments[2:]...)
	}

	l.nextID++
	id := l.nextID
	tm := &timer{fn: fn, args: args, interval: delay, repeat: repeat}
	l.timers[id] = tm
	l.pending++
	tm.t = time.AfterFunc(delay, func() {
		l.post(func() error { return l.fire(id, tm) })
	})
	return l.vm.ToValue(id)
}

func (l *eventLoop) fire(id int64, tm *timer) error {
	if tm.cleared {
		return nil
	}
	if tm.repeat {
		tm.t.Reset(tm.interval)
	} else {
		l.clear(id)
	}
	_, err := tm.fn(goja.Undefined(), tm.args...)
	return err
}

func (l *eventLoop) clear(id int64) {
	tm, ok := l.timers[id]
	if !ok {
		return
	}
	tm.cleared = true
	tm.t.Stop()
	delete(l.timers, id)
	l.pending--
}

func (l *eventLoop) clearTimer(call goja.FunctionCall) goja.Value {
	l.clear(call.Argument(0).ToInteger())
	return goja.Undefined()
}

// value converts a host result into a plain JavaScript value. Results go
// through JSON so scripts see ordinary objects and arrays, not Go wrappers.
func (l *eventLoop) value(v any) (goja.Value, error) {
	switch v := v.(type) {
	case nil:
		return goja.Undefined(), nil
	case goja.Value:
		return v, nil
	case string, bool, int, int64, float64:
		return l.vm.ToValue(v), nil
	}

	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return l.parse(goja.Undefined(), l.vm.ToValue(string(data)))
}

// settle returns the result of a synchronous host call to a native function,
// throwing host errors into the script.
func (l *eventLoop) settle(v any, err error) goja.Value {
	if err == nil {
		var out goja.Value
		if out, err = l.value(v); err == nil {
			return out
		}
	}
	panic(l.errorValue(err))
}

// errorValue turns a host error into a JavaScript Error. Permission failures
// are named PermissionDenied so scripts can tell them apart.
func (l *eventLoop) errorValue(err error) goja.Value {
	name := "Error"
	var capErr *apperrors.CapabilityError
	if errors.As(err, &capErr) {
		name = "PermissionDenied"
	}
	return l.newError(name, err.Error())
}

func (l *eventLoop) newError(name, message string) *goja.Object {
	obj, err := l.vm.New(l.vm.Get("Error"), l.vm.ToValue(message))
	if err != nil {
		return l.vm.NewGoError(errors.New(message))
	}
	_ = obj.Set("name", name)
	return obj
}

func (e *exitRequest) Error() string {
	return fmt.Sprintf("exit(%d)", e.code)
}
