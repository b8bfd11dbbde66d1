// Package stepdiag diagnoses the relationship between Gherkin feature files
// and the JavaScript step definitions that implement them. It bundles the
// step-definition sources, executes the bundle in an isolated runtime to
// harvest the registered patterns, parses each feature file into document and
// pickle form, and classifies every scenario step as used, unmatched, or
// ambiguous, producing one aggregated DiagnosticResult for the project.
package stepdiag

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	messages "github.com/cucumber/messages/go/v21"
)

// Diagnostics runs the step matching engine over one project. The zero value
// is not usable; construct with NewDiagnostics. A single instance may run
// repeatedly (watch and serve modes do), with runs serialized internally.
type Diagnostics struct {
	cfg     *Config
	log     Logger
	subject Subject
	bundles *BundleCache

	// runMu serializes whole runs; harvesting occupies a process-wide slot,
	// so two concurrent runs could leak registrations into each other.
	runMu sync.Mutex
}

// Option configures a Diagnostics instance.
type Option func(*Diagnostics)

// WithLogger sets the logger diagnostics logs through.
func WithLogger(log Logger) Option {
	return func(d *Diagnostics) {
		d.log = log
	}
}

// WithSubject sets the subject run lifecycle events are emitted on.
func WithSubject(subject Subject) Option {
	return func(d *Diagnostics) {
		d.subject = subject
	}
}

// NewDiagnostics creates a diagnostics engine for the given configuration.
func NewDiagnostics(cfg *Config, opts ...Option) *Diagnostics {
	d := &Diagnostics{
		cfg:     cfg,
		log:     NoopLogger{},
		bundles: NewBundleCache(),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.subject == nil {
		d.subject = NewRunSubject(d.log)
	}
	return d
}

// Config returns the configuration the engine runs with.
func (d *Diagnostics) Config() *Config {
	return d.cfg
}

// Subject returns the subject run lifecycle events are emitted on, for
// observer registration.
func (d *Diagnostics) Subject() Subject {
	return d.subject
}

// runState is the mutable state of one run: the run-scoped parameter type
// registry, the aggregated result, and the structural-identity index into the
// usage ledger. Discarded when the run returns.
type runState struct {
	types  *ParameterTypeRegistry
	result *DiagnosticResult
	usage  map[DefinitionKey]*DefinitionUsage
	root   string
}

// Run executes one full diagnostic pass over the configured project and
// returns the aggregated result. A run completes once started; the context
// reaches observers and is not used to abandon feature files midway.
func (d *Diagnostics) Run(ctx context.Context) (*DiagnosticResult, error) {
	d.runMu.Lock()
	defer d.runMu.Unlock()

	started := time.Now()
	d.emit(ctx, EventTypeRunStarted, map[string]interface{}{
		"projectRoot": d.cfg.ProjectRoot,
	})

	result, err := d.run(ctx)
	if err != nil {
		d.emit(ctx, EventTypeRunFailed, map[string]interface{}{
			"error": err.Error(),
		})
		return nil, err
	}

	d.emit(ctx, EventTypeRunCompleted, map[string]interface{}{
		"durationMs":  time.Since(started).Milliseconds(),
		"definitions": len(result.DefinitionsUsage),
		"matched":     result.MatchedStepCount(),
		"unmatched":   len(result.UnmatchedSteps),
		"ambiguous":   len(result.AmbiguousSteps),
	})
	return result, nil
}

func (d *Diagnostics) run(ctx context.Context) (*DiagnosticResult, error) {
	files, err := resolveFeatureFiles(d.cfg.ProjectRoot, d.cfg.Features)
	if err != nil {
		return nil, err
	}
	d.log.Info("starting diagnostic run", "projectRoot", d.cfg.ProjectRoot, "features", len(files))

	state := &runState{
		types:  NewParameterTypeRegistry(),
		result: NewDiagnosticResult(),
		usage:  make(map[DefinitionKey]*DefinitionUsage),
		root:   featuresRoot(d.cfg.ProjectRoot, files),
	}

	for _, file := range files {
		if filepath.Ext(file) != FeatureExtension {
			d.log.Debug("skipping non-feature file", "path", file)
			continue
		}
		if err := d.processFeature(ctx, state, file); err != nil {
			return nil, fmt.Errorf("processing %s: %w", projectRelative(d.cfg.ProjectRoot, file), err)
		}
	}
	return state.result, nil
}

// processFeature runs the per-file algorithm: harvest a fresh registry, seed
// the usage ledger from it, parse the file, then classify every pickle step.
// The registry, document and index are discarded when this returns; only the
// definitions and their cross-file-merged usage survive in the run state.
func (d *Diagnostics) processFeature(ctx context.Context, state *runState, featurePath string) error {
	registry, hints, err := d.harvestStepDefinitions(state, featurePath)
	if err != nil {
		return err
	}
	definitions := registry.StepDefinitions()

	// Seed the usage ledger before matching anything, so a definition no
	// scenario step ever selects still reports with zero usage.
	for _, definition := range definitions {
		key := definition.Key()
		if _, exists := state.usage[key]; exists {
			continue
		}
		usage := &DefinitionUsage{Definition: definition, Steps: []DiagnosticStep{}}
		state.usage[key] = usage
		state.result.DefinitionsUsage = append(state.result.DefinitionsUsage, usage)
	}

	display := projectRelative(d.cfg.ProjectRoot, featurePath)
	d.emit(ctx, EventTypeRegistryLoaded, map[string]interface{}{
		"feature":     display,
		"definitions": len(definitions),
	})

	feature, err := LoadFeature(featurePath)
	if err != nil {
		return err
	}
	index := NewAstIDMap(feature.Document)
	pool := canonicalExpressions(definitions)

	steps := 0
	for _, pickle := range feature.Pickles {
		for _, step := range pickle.Steps {
			steps++
			if err := d.classifyStep(state, registry, index, display, hints, pool, step); err != nil {
				return err
			}
		}
	}

	d.emit(ctx, EventTypeFeatureProcessed, map[string]interface{}{
		"feature": display,
		"pickles": len(feature.Pickles),
		"steps":   steps,
	})
	d.log.Debug("feature processed", "feature", display, "pickles", len(feature.Pickles), "steps", steps)
	return nil
}

// classifyStep queries the registry for definitions matching one pickle step
// and records the outcome: zero matches is unmatched, one is usage, two or
// more is ambiguous with usage recorded against every candidate.
func (d *Diagnostics) classifyStep(state *runState, registry *StepRegistry, index AstIDMap,
	featureDisplay string, hints StepDefinitionHints, pool []string, step *messages.PickleStep) error {
	if len(step.AstNodeIds) == 0 {
		return fmt.Errorf("%w: step %q", ErrPickleStepMissingAstNode, step.Text)
	}
	location, err := index.Location(step.AstNodeIds[0])
	if err != nil {
		return err
	}
	diagnostic := DiagnosticStep{Source: featureDisplay, Line: location.Line, Text: step.Text}

	matches, err := registry.MatchingStepDefinitions(step.Text)
	if err != nil {
		return fmt.Errorf("matching step %q: %w", step.Text, err)
	}

	if len(matches) == 0 {
		unmatched := UnmatchedStep{Step: diagnostic, Argument: argumentKindOf(step), Hints: hints}
		if d.cfg.Suggestions.Enabled {
			unmatched.Suggestions = suggestExpressions(step.Text, pool, d.cfg.Suggestions.Threshold, d.cfg.Suggestions.Limit)
		}
		state.result.UnmatchedSteps = append(state.result.UnmatchedSteps, unmatched)
		return nil
	}

	for _, match := range matches {
		usage, ok := state.usage[match.Key()]
		if !ok {
			return fmt.Errorf("%w: %s", ErrUsageEntryMissing, match)
		}
		usage.Steps = append(usage.Steps, diagnostic)
	}
	if len(matches) > 1 {
		state.result.AmbiguousSteps = append(state.result.AmbiguousSteps, AmbiguousStep{
			Step:        diagnostic,
			Definitions: matches,
		})
	}
	return nil
}

// emit sends a run lifecycle event; emission failures are logged, never
// propagated into the run outcome.
func (d *Diagnostics) emit(ctx context.Context, eventType string, data map[string]interface{}) {
	if d.subject == nil {
		return
	}
	if err := d.subject.NotifyObservers(ctx, NewRunEvent(eventType, data)); err != nil {
		d.log.Error("failed to notify observers", "event", eventType, "error", err)
	}
}
