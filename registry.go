package stepdiag

import (
	"sync"
	"sync/atomic"
)

// StepRegistry is the harvesting and lookup component for one feature file's
// step definitions. It is populated by side effect while the compiled
// step-definition bundle executes, then finalized and queried. A registry is
// confined to the goroutine performing the harvest; it is not safe for
// concurrent use.
type StepRegistry struct {
	parameterTypes *ParameterTypeRegistry
	definitions    []*StepDefinition
	finalized      bool
}

// NewStepRegistry creates an empty registry bound to the run's shared
// parameter type registry.
func NewStepRegistry(types *ParameterTypeRegistry) *StepRegistry {
	return &StepRegistry{parameterTypes: types}
}

// ParameterTypes returns the shared parameter type registry that expressions
// registered here compile against.
func (r *StepRegistry) ParameterTypes() *ParameterTypeRegistry {
	return r.parameterTypes
}

// Register appends a definition in registration order. No de-duplication
// happens at this layer; cross-file de-duplication is the orchestrator's
// concern. Registering after Finalize is a programming error and panics.
func (r *StepRegistry) Register(def *StepDefinition) {
	if r.finalized {
		panic("stepdiag: " + ErrRegistryFinalized.Error())
	}
	r.definitions = append(r.definitions, def)
}

// Finalize freezes the registry against further registration and marks it
// ready for queries. It must be called exactly once, after harvesting
// completes; a second call panics.
func (r *StepRegistry) Finalize() {
	if r.finalized {
		panic("stepdiag: " + ErrRegistryFinalized.Error())
	}
	r.finalized = true
}

// StepDefinitions returns all registered definitions in registration order.
// Querying before Finalize is a programming error and panics.
func (r *StepRegistry) StepDefinitions() []*StepDefinition {
	if !r.finalized {
		panic("stepdiag: " + ErrRegistryNotFinalized.Error())
	}
	return r.definitions
}

// MatchingStepDefinitions returns every definition whose expression accepts
// text, in registration order. All definitions are tested with no early exit,
// because the result's cardinality (zero, one, many) drives step
// classification.
func (r *StepRegistry) MatchingStepDefinitions(text string) ([]*StepDefinition, error) {
	if !r.finalized {
		panic("stepdiag: " + ErrRegistryNotFinalized.Error())
	}
	var matched []*StepDefinition
	for _, def := range r.definitions {
		ok, err := def.Expression.Matches(text)
		if err != nil {
			return nil, err
		}
		if ok {
			matched = append(matched, def)
		}
	}
	return matched, nil
}

// The active registry is a process-wide single slot that routes registrations
// made by executing step-definition code, which has no awareness of the
// harvesting context. Only one harvesting operation may occupy the slot at a
// time; this is what forces feature files to be processed strictly
// sequentially.
var (
	harvestMu      sync.Mutex
	activeRegistry atomic.Pointer[StepRegistry]
)

// WithActiveRegistry installs reg as the active registry for the duration of
// fn and restores the previous state (normally none) on exit. Registration
// calls made by step-definition code during fn route to reg and to no other
// registry, even though many feature files are processed within one process.
// Concurrent callers block until the slot is free.
func WithActiveRegistry(reg *StepRegistry, fn func() error) error {
	harvestMu.Lock()
	defer harvestMu.Unlock()
	previous := activeRegistry.Swap(reg)
	defer activeRegistry.Store(previous)
	return fn()
}

// ActiveRegistry resolves the registry for the file currently being
// harvested. It errors when called outside a WithActiveRegistry block.
func ActiveRegistry() (*StepRegistry, error) {
	reg := activeRegistry.Load()
	if reg == nil {
		return nil, ErrNoActiveRegistry
	}
	return reg, nil
}
