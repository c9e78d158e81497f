// Package jsvm runs the page bridge against an in-process JavaScript runtime.
//
// A fixture script plays the host page: it publishes window.__playinfo__ and
// window.player the way the real site does.
package jsvm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/Darkness4/bili-auto-quality/page"
	"github.com/grafana/sobek"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	// ErrPromisePending is returned by Await when the promise did not settle
	// after the job queue was drained.
	ErrPromisePending = errors.New("promise is still pending")
	// ErrPromiseRejected is wrapped when the awaited promise was rejected.
	ErrPromiseRejected = errors.New("promise rejected")
)

// VM is a JavaScript runtime with a minimal browser-like global scope.
//
// The runtime is not goroutine-safe, so every evaluation is serialized.
type VM struct {
	mu       sync.Mutex
	rt       *sobek.Runtime
	document *sobek.Object
	log      zerolog.Logger
}

var _ page.Evaluator = (*VM)(nil)

// Option configures a VM.
type Option func(*VM)

// WithLogger sets the logger receiving console output.
func WithLogger(logger zerolog.Logger) Option {
	return func(vm *VM) {
		vm.log = logger
	}
}

// New creates a VM with window, document and console defined.
//
// document.readyState starts as "loading".
func New(opts ...Option) (*VM, error) {
	vm := &VM{
		rt:  sobek.New(),
		log: log.Logger,
	}
	for _, o := range opts {
		o(vm)
	}

	global := vm.rt.GlobalObject()
	if err := vm.rt.Set("window", global); err != nil {
		return nil, fmt.Errorf("failed to define window: %w", err)
	}

	vm.document = vm.rt.NewObject()
	if err := vm.document.Set("readyState", "loading"); err != nil {
		return nil, fmt.Errorf("failed to define document: %w", err)
	}
	if err := vm.rt.Set("document", vm.document); err != nil {
		return nil, fmt.Errorf("failed to define document: %w", err)
	}

	console := vm.rt.NewObject()
	levels := map[string]zerolog.Level{
		"debug": zerolog.DebugLevel,
		"log":   zerolog.InfoLevel,
		"info":  zerolog.InfoLevel,
		"warn":  zerolog.WarnLevel,
		"error": zerolog.ErrorLevel,
	}
	for name, level := range levels {
		if err := console.Set(name, vm.consoleFunc(level)); err != nil {
			return nil, fmt.Errorf("failed to define console.%s: %w", name, err)
		}
	}
	if err := vm.rt.Set("console", console); err != nil {
		return nil, fmt.Errorf("failed to define console: %w", err)
	}

	return vm, nil
}

func (vm *VM) consoleFunc(level zerolog.Level) func(sobek.FunctionCall) sobek.Value {
	return func(call sobek.FunctionCall) sobek.Value {
		parts := make([]string, 0, len(call.Arguments))
		for _, arg := range call.Arguments {
			parts = append(parts, arg.String())
		}
		vm.log.WithLevel(level).Str("source", "console").Msg(strings.Join(parts, " "))
		return sobek.Undefined()
	}
}

// Load runs a script in the global scope.
func (vm *VM) Load(name string, script string) error {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	if _, err := vm.rt.RunScript(name, script); err != nil {
		return fmt.Errorf("failed to load %s: %w", name, err)
	}
	return nil
}

// SetReadyState sets document.readyState.
func (vm *VM) SetReadyState(state string) error {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	return vm.document.Set("readyState", state)
}

// Evaluate implements page.Evaluator.
func (vm *VM) Evaluate(ctx context.Context, expr string, res any) error {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	v, err := vm.run(ctx, expr)
	if err != nil {
		return err
	}
	return decode(v, res)
}

// Await implements page.Evaluator.
//
// There is no event loop: a promise settles only through the job queue, which
// is drained at the end of every evaluation.
func (vm *VM) Await(ctx context.Context, expr string, res any) error {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	v, err := vm.run(ctx, expr)
	if err != nil {
		return err
	}
	p, ok := v.Export().(*sobek.Promise)
	if !ok {
		return decode(v, res)
	}
	switch p.State() {
	case sobek.PromiseStateFulfilled:
		return decode(p.Result(), res)
	case sobek.PromiseStateRejected:
		return fmt.Errorf("%w: %s", ErrPromiseRejected, p.Result().String())
	default:
		return ErrPromisePending
	}
}

func (vm *VM) run(ctx context.Context, expr string) (sobek.Value, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	stop := context.AfterFunc(ctx, func() {
		vm.rt.Interrupt(ctx.Err())
	})
	defer func() {
		if !stop() {
			vm.rt.ClearInterrupt()
		}
	}()
	v, err := vm.rt.RunString(expr)
	if err != nil {
		return nil, fmt.Errorf("evaluation failed: %w", err)
	}
	return v, nil
}

func decode(v sobek.Value, res any) error {
	if res == nil {
		return nil
	}
	if v == nil || sobek.IsUndefined(v) || sobek.IsNull(v) {
		return errors.New("evaluation returned no value")
	}
	b, err := json.Marshal(v.Export())
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}
	if err := json.Unmarshal(b, res); err != nil {
		return fmt.Errorf("failed to decode result: %w", err)
	}
	return nil
}
