package stepdiag

// StepDefinitionHints describes where step definitions were searched for one
// feature file: the configured patterns, their per-file expansion, and the
// source files that resolution actually found. Unmatched steps carry these so
// a reader can tell "no definition anywhere" from "definition not searched".
type StepDefinitionHints struct {
	StepDefinitions        []string `json:"stepDefinitions"`
	StepDefinitionPatterns []string `json:"stepDefinitionPatterns"`
	StepDefinitionPaths    []string `json:"stepDefinitionPaths"`
}

// harvestStepDefinitions resolves, bundles and executes the step definitions
// for one feature file, returning the finalized registry for that file and
// the search hints. The registry receives registrations through the scoped
// active-registry slot while the bundle runs.
func (d *Diagnostics) harvestStepDefinitions(state *runState, featurePath string) (*StepRegistry, StepDefinitionHints, error) {
	patterns, err := stepDefinitionPatterns(d.cfg.StepDefinitions, state.root, featurePath)
	if err != nil {
		return nil, StepDefinitionHints{}, err
	}
	paths, err := resolveStepDefinitionPaths(d.cfg.ProjectRoot, patterns)
	if err != nil {
		return nil, StepDefinitionHints{}, err
	}
	hints := StepDefinitionHints{
		StepDefinitions:        d.cfg.StepDefinitions,
		StepDefinitionPatterns: patterns,
		StepDefinitionPaths:    displayPaths(d.cfg.ProjectRoot, paths),
	}

	registry := NewStepRegistry(state.types)
	if len(paths) == 0 {
		// Nothing to execute; an empty finalized registry classifies every
		// step of this file as unmatched.
		registry.Finalize()
		d.log.Debug("no step-definition files resolved", "feature", featurePath, "patterns", patterns)
		return registry, hints, nil
	}

	bundle, err := d.bundles.Bundle(d.cfg.ProjectRoot, paths)
	if err != nil {
		return nil, StepDefinitionHints{}, err
	}
	sandbox := NewSandbox(d.log)
	if err := WithActiveRegistry(registry, func() error {
		return sandbox.Execute(bundle)
	}); err != nil {
		return nil, StepDefinitionHints{}, err
	}
	registry.Finalize()
	d.log.Debug("harvested step definitions",
		"feature", featurePath, "definitions", len(registry.StepDefinitions()), "files", len(paths))
	return registry, hints, nil
}

func displayPaths(root string, paths []string) []string {
	display := make([]string, len(paths))
	for i, p := range paths {
		display[i] = projectRelative(root, p)
	}
	return display
}
