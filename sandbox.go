package stepdiag

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/dop251/goja"
)

// sandboxPrelude installs the host stand-ins step-definition code expects:
// the bare registration globals plus the handful of framework values user
// code touches at module top level. Handlers and hooks are never invoked
// during diagnosis, so every stand-in beyond registration is inert.
const sandboxPrelude = `
(function (api) {
	"use strict";
	api.DataTable = function DataTable(raw) { this.rawTable = raw; };
	api.World = function World() {};
	api.Status = Object.freeze({
		PASSED: "PASSED", FAILED: "FAILED", SKIPPED: "SKIPPED",
		PENDING: "PENDING", UNDEFINED: "UNDEFINED", AMBIGUOUS: "AMBIGUOUS"
	});
	var steps = ["Given", "When", "Then", "And", "But", "Step", "defineStep"];
	for (var i = 0; i < steps.length; i++) { globalThis[steps[i]] = api.defineStep; }
	var hooks = ["Before", "After", "BeforeEach", "AfterEach",
		"BeforeAll", "AfterAll", "BeforeStep", "AfterStep"];
	for (var j = 0; j < hooks.length; j++) { globalThis[hooks[j]] = api.hook; }
	globalThis.defineParameterType = api.defineParameterType;
})(globalThis.` + sandboxGlobal + `);
`

// ExecutionError carries the value thrown by step-definition code during
// harvesting.
type ExecutionError struct {
	Value  any
	Detail string
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("%v: %s", ErrStepDefinitionsExecution, e.Detail)
}

func (e *ExecutionError) Unwrap() error {
	return ErrStepDefinitionsExecution
}

// Sandbox executes one compiled step-definition bundle inside a disposable
// JavaScript runtime. A fresh sandbox is constructed per feature file and
// discarded after harvesting; the stand-ins it installs exist only for that
// execution. Registrations made by the executing bundle route to the active
// step registry installed by WithActiveRegistry.
type Sandbox struct {
	vm  *goja.Runtime
	log Logger
}

// NewSandbox creates a fresh JavaScript runtime with no globals installed
// yet; Execute installs them bound to the bundle it runs.
func NewSandbox(log Logger) *Sandbox {
	if log == nil {
		log = NoopLogger{}
	}
	return &Sandbox{vm: goja.New(), log: log}
}

// Execute runs the bundle to completion. Step-definition code runs
// synchronously; any value it throws aborts harvesting with an
// ExecutionError. A sandbox executes at most one bundle.
func (s *Sandbox) Execute(bundle *StepBundle) error {
	if err := s.install(bundle); err != nil {
		return err
	}
	if _, err := s.vm.RunProgram(bundle.program); err != nil {
		var exception *goja.Exception
		if errors.As(err, &exception) {
			return &ExecutionError{Value: exception.Value().Export(), Detail: exception.Error()}
		}
		return fmt.Errorf("%w: %v", ErrStepDefinitionsExecution, err)
	}
	return nil
}

func (s *Sandbox) install(bundle *StepBundle) error {
	api := s.vm.NewObject()
	if err := api.Set("defineStep", s.defineStep(bundle)); err != nil {
		return fmt.Errorf("installing sandbox globals: %w", err)
	}
	if err := api.Set("defineParameterType", s.defineParameterType()); err != nil {
		return fmt.Errorf("installing sandbox globals: %w", err)
	}
	if err := api.Set("hook", s.hook()); err != nil {
		return fmt.Errorf("installing sandbox globals: %w", err)
	}
	if err := api.Set("attach", s.noop()); err != nil {
		return fmt.Errorf("installing sandbox globals: %w", err)
	}
	if err := api.Set("configure", s.noop()); err != nil {
		return fmt.Errorf("installing sandbox globals: %w", err)
	}
	if err := s.vm.Set(sandboxGlobal, api); err != nil {
		return fmt.Errorf("installing sandbox globals: %w", err)
	}
	if err := s.vm.Set("require", s.require()); err != nil {
		return fmt.Errorf("installing sandbox globals: %w", err)
	}
	if _, err := s.vm.RunScript("stepdiag-prelude.js", sandboxPrelude); err != nil {
		return fmt.Errorf("installing sandbox prelude: %w", err)
	}
	return nil
}

// defineStep backs Given/When/Then and friends. It compiles the pattern
// against the active registry's parameter types, captures the caller's
// original source position, and registers the definition.
func (s *Sandbox) defineStep(bundle *StepBundle) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		registry, err := ActiveRegistry()
		if err != nil {
			panic(s.vm.NewGoError(err))
		}
		expression, err := s.compilePattern(call.Argument(0), registry.ParameterTypes())
		if err != nil {
			panic(s.vm.NewGoError(err))
		}
		definition := &StepDefinition{
			Expression: expression,
			Handler:    call.Argument(1).Export(),
			Position:   s.callerPosition(bundle),
		}
		registry.Register(definition)
		s.log.Debug("registered step definition",
			"expression", expression.CanonicalString(), "position", definition.Position.String())
		return goja.Undefined()
	}
}

func (s *Sandbox) defineParameterType() func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		registry, err := ActiveRegistry()
		if err != nil {
			panic(s.vm.NewGoError(err))
		}
		descriptor, err := s.parameterTypeDescriptor(call.Argument(0))
		if err != nil {
			panic(s.vm.NewGoError(err))
		}
		if err := registry.ParameterTypes().Define(descriptor); err != nil {
			panic(s.vm.NewGoError(err))
		}
		s.log.Debug("defined parameter type", "name", descriptor.Name)
		return goja.Undefined()
	}
}

func (s *Sandbox) hook() func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		s.log.Debug("ignoring hook registration during diagnostics")
		return goja.Undefined()
	}
}

func (s *Sandbox) noop() func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		return goja.Undefined()
	}
}

// require satisfies step definitions compiled against node-style externals.
// Handler bodies never run during diagnosis, so an empty module is enough for
// top-level imports to proceed.
func (s *Sandbox) require() func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		s.log.Debug("step definitions required an external module during harvesting",
			"module", call.Argument(0).String())
		return s.vm.NewObject()
	}
}

// compilePattern turns a registration's first argument into a StepExpression:
// a string becomes a cucumber expression, a RegExp becomes a regular
// expression (honoring the i, s and m flags).
func (s *Sandbox) compilePattern(value goja.Value, types *ParameterTypeRegistry) (StepExpression, error) {
	if value == nil || goja.IsUndefined(value) || goja.IsNull(value) {
		return nil, ErrUnsupportedPattern
	}
	if obj, ok := value.(*goja.Object); ok {
		if obj.ClassName() == "RegExp" {
			source := obj.Get("source").String()
			if prefix := regexpFlagPrefix(obj.Get("flags").String()); prefix != "" {
				source = prefix + source
			}
			return NewRegexpStepExpression(source, types)
		}
		return nil, fmt.Errorf("%w: got %s", ErrUnsupportedPattern, obj.ClassName())
	}
	if str, ok := value.Export().(string); ok {
		return NewCucumberStepExpression(str, types)
	}
	return nil, fmt.Errorf("%w: got %v", ErrUnsupportedPattern, value.ExportType())
}

// regexpFlagPrefix translates the matching-relevant JavaScript RegExp flags
// into a Go inline flag group. The g, y and u flags do not affect a single
// whole-string match and are dropped.
func regexpFlagPrefix(flags string) string {
	var inline strings.Builder
	for _, flag := range flags {
		switch flag {
		case 'i', 's', 'm':
			inline.WriteRune(flag)
		}
	}
	if inline.Len() == 0 {
		return ""
	}
	return "(?" + inline.String() + ")"
}

func (s *Sandbox) parameterTypeDescriptor(value goja.Value) (ParameterTypeDescriptor, error) {
	var descriptor ParameterTypeDescriptor
	obj, ok := value.(*goja.Object)
	if !ok {
		return descriptor, fmt.Errorf("%w: defineParameterType expects an options object", ErrParameterTypeName)
	}
	if name := obj.Get("name"); name != nil && !goja.IsUndefined(name) && !goja.IsNull(name) {
		descriptor.Name = name.String()
	}
	sources, err := s.regexpSources(obj.Get("regexp"))
	if err != nil {
		return descriptor, err
	}
	descriptor.Regexps = sources
	if v := obj.Get("useForSnippets"); v != nil && !goja.IsUndefined(v) && !goja.IsNull(v) {
		use := v.ToBoolean()
		descriptor.UseForSnippets = &use
	}
	if v := obj.Get("preferForRegexpMatch"); v != nil && !goja.IsUndefined(v) && !goja.IsNull(v) {
		prefer := v.ToBoolean()
		descriptor.PreferForRegexpMatch = &prefer
	}
	return descriptor, nil
}

// regexpSources accepts a RegExp, a string, or an array of either, matching
// the forms defineParameterType allows for its regexp option.
func (s *Sandbox) regexpSources(value goja.Value) ([]string, error) {
	if value == nil || goja.IsUndefined(value) || goja.IsNull(value) {
		return nil, nil
	}
	if obj, ok := value.(*goja.Object); ok {
		switch obj.ClassName() {
		case "RegExp":
			return []string{obj.Get("source").String()}, nil
		case "Array":
			length := int(obj.Get("length").ToInteger())
			sources := make([]string, 0, length)
			for i := 0; i < length; i++ {
				nested, err := s.regexpSources(obj.Get(strconv.Itoa(i)))
				if err != nil {
					return nil, err
				}
				sources = append(sources, nested...)
			}
			return sources, nil
		default:
			return nil, fmt.Errorf("%w: regexp option of class %s", ErrParameterTypeRegexp, obj.ClassName())
		}
	}
	if str, ok := value.Export().(string); ok {
		return []string{str}, nil
	}
	return nil, fmt.Errorf("%w: regexp option of type %v", ErrParameterTypeRegexp, value.ExportType())
}

// callerPosition walks the JavaScript call stack for the innermost frame
// inside the bundle and maps it back to the original step-definition file.
func (s *Sandbox) callerPosition(bundle *StepBundle) Position {
	for _, frame := range s.vm.CaptureCallStack(0, nil) {
		position := frame.Position()
		if frame.SrcName() != bundle.Name || position.Line <= 0 {
			continue
		}
		return bundle.MapPosition(position.Line, position.Column)
	}
	return Position{Source: bundle.Name}
}
