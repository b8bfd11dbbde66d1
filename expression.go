package stepdiag

import (
	"fmt"
	"regexp"

	cucumberexpressions "github.com/cucumber/cucumber-expressions/go/v18"
)

// ExpressionKind identifies the pattern language of a step expression.
type ExpressionKind string

const (
	// KindCucumberExpression is a parameterized expression such as
	// "I have {int} cukes", compiled against the run's parameter type registry.
	KindCucumberExpression ExpressionKind = "CucumberExpression"

	// KindRegularExpression is a plain regular expression matched directly
	// against the whole step text.
	KindRegularExpression ExpressionKind = "RegularExpression"
)

// StepExpression tests scenario step text against one step-definition pattern.
// Matching is all-or-nothing against the whole step text; there are no
// partial-match semantics. The two expression kinds are polymorphic over the
// same matching capability.
type StepExpression interface {
	// Matches reports whether text matches this expression.
	Matches(text string) (bool, error)

	// CanonicalString returns the form used for equality and display: the
	// regular expression's literal source text for regexp-backed expressions,
	// otherwise the original cucumber expression source.
	CanonicalString() string

	// Kind returns the pattern language of this expression.
	Kind() ExpressionKind
}

type stepExpression struct {
	expr   cucumberexpressions.Expression
	source string
	kind   ExpressionKind
}

// NewCucumberStepExpression compiles a cucumber expression such as
// "I visit {string}" against the given parameter type registry.
func NewCucumberStepExpression(source string, types *ParameterTypeRegistry) (StepExpression, error) {
	expr, err := cucumberexpressions.NewCucumberExpression(source, types.registry)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrExpressionCompile, source, err)
	}
	return &stepExpression{expr: expr, source: source, kind: KindCucumberExpression}, nil
}

// NewRegexpStepExpression compiles a regular expression source such as
// `^I visit "([^"]*)"$`. The registry is consulted when capture groups
// coincide with registered parameter type patterns.
func NewRegexpStepExpression(source string, types *ParameterTypeRegistry) (StepExpression, error) {
	re, err := regexp.Compile(source)
	if err != nil {
		return nil, fmt.Errorf("%w: /%s/: %v", ErrExpressionCompile, source, err)
	}
	return &stepExpression{
		expr:   cucumberexpressions.NewRegularExpression(re, types.registry),
		source: source,
		kind:   KindRegularExpression,
	}, nil
}

func (e *stepExpression) Matches(text string) (bool, error) {
	args, err := e.expr.Match(text)
	if err != nil {
		return false, fmt.Errorf("matching %q against %q: %w", text, e.source, err)
	}
	return args != nil, nil
}

func (e *stepExpression) CanonicalString() string {
	return e.source
}

func (e *stepExpression) Kind() ExpressionKind {
	return e.kind
}
