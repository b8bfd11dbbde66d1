package stepdiag

import (
	"fmt"
	"regexp"

	cucumberexpressions "github.com/cucumber/cucumber-expressions/go/v18"
)

// ParameterTypeRegistry holds the named parameter types available to cucumber
// expressions ({int}, {string}, {word}, plus user-defined ones). One registry
// is created per diagnostic run and shared by every expression compiled during
// that run, so custom types registered by step-definition code remain visible
// for every feature file processed afterwards.
type ParameterTypeRegistry struct {
	registry *cucumberexpressions.ParameterTypeRegistry
}

// NewParameterTypeRegistry creates a registry preloaded with the standard
// cucumber parameter types.
func NewParameterTypeRegistry() *ParameterTypeRegistry {
	return &ParameterTypeRegistry{registry: cucumberexpressions.NewParameterTypeRegistry()}
}

// ParameterTypeDescriptor carries a user-supplied parameter type definition as
// registered by step-definition code via defineParameterType. The transformer
// supplied by user code is not represented: diagnostics only needs the
// pattern, never the transformed value.
type ParameterTypeDescriptor struct {
	Name                 string
	Regexps              []string
	UseForSnippets       *bool
	PreferForRegexpMatch *bool
}

// Define registers a custom parameter type with the registry. Definitions are
// process-wide for the run: a type defined while harvesting one feature file
// is visible when expressions compile for every later file. Because the same
// step-definition code executes once per feature file, re-defining a type with
// an identical pattern set is a no-op; re-defining it differently is an error.
func (r *ParameterTypeRegistry) Define(desc ParameterTypeDescriptor) error {
	if desc.Name == "" {
		return ErrParameterTypeName
	}
	if len(desc.Regexps) == 0 {
		return fmt.Errorf("%w: %q", ErrParameterTypeRegexp, desc.Name)
	}
	if existing := r.registry.LookupByTypeName(desc.Name); existing != nil {
		if sameRegexpSources(existing.Regexps(), desc.Regexps) {
			return nil
		}
		return fmt.Errorf("%w: %q redefined with a different pattern", ErrParameterTypeDefinition, desc.Name)
	}
	regexps := make([]*regexp.Regexp, 0, len(desc.Regexps))
	for _, source := range desc.Regexps {
		re, err := regexp.Compile(source)
		if err != nil {
			return fmt.Errorf("%w: %q: %v", ErrParameterTypeDefinition, desc.Name, err)
		}
		regexps = append(regexps, re)
	}
	useForSnippets := true
	if desc.UseForSnippets != nil {
		useForSnippets = *desc.UseForSnippets
	}
	preferForRegexpMatch := false
	if desc.PreferForRegexpMatch != nil {
		preferForRegexpMatch = *desc.PreferForRegexpMatch
	}
	pt, err := cucumberexpressions.NewParameterType(
		desc.Name,
		regexps,
		"string",
		func(args ...*string) interface{} {
			if len(args) == 0 || args[0] == nil {
				return nil
			}
			return *args[0]
		},
		useForSnippets,
		preferForRegexpMatch,
		false,
	)
	if err != nil {
		return fmt.Errorf("%w: %q: %v", ErrParameterTypeDefinition, desc.Name, err)
	}
	if err := r.registry.DefineParameterType(pt); err != nil {
		return fmt.Errorf("%w: %q: %v", ErrParameterTypeDefinition, desc.Name, err)
	}
	return nil
}

func sameRegexpSources(existing []*regexp.Regexp, sources []string) bool {
	if len(existing) != len(sources) {
		return false
	}
	for i, re := range existing {
		if re.String() != sources[i] {
			return false
		}
	}
	return true
}
