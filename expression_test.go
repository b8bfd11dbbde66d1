package stepdiag

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCucumberStepExpression(t *testing.T) {
	t.Parallel()
	types := NewParameterTypeRegistry()

	expr, err := NewCucumberStepExpression("I have {int} cukes in my {word}", types)
	require.NoError(t, err)

	assert.Equal(t, KindCucumberExpression, expr.Kind())
	assert.Equal(t, "I have {int} cukes in my {word}", expr.CanonicalString())

	tests := []struct {
		text    string
		matches bool
	}{
		{"I have 42 cukes in my belly", true},
		{"I have 0 cukes in my basket", true},
		{"I have many cukes in my belly", false},
		{"I have 42 cukes", false},
		{"I have 42 cukes in my belly today", false},
	}
	for _, tt := range tests {
		ok, err := expr.Matches(tt.text)
		require.NoError(t, err)
		assert.Equal(t, tt.matches, ok, "text %q", tt.text)
	}
}

func TestCucumberStepExpressionCompileError(t *testing.T) {
	t.Parallel()
	types := NewParameterTypeRegistry()

	_, err := NewCucumberStepExpression("I have {unknownType} cukes", types)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrExpressionCompile)
	assert.Contains(t, err.Error(), "unknownType")
}

func TestRegexpStepExpression(t *testing.T) {
	t.Parallel()
	types := NewParameterTypeRegistry()

	expr, err := NewRegexpStepExpression(`^I visit "([^"]*)"$`, types)
	require.NoError(t, err)

	assert.Equal(t, KindRegularExpression, expr.Kind())
	assert.Equal(t, `^I visit "([^"]*)"$`, expr.CanonicalString())

	ok, err := expr.Matches(`I visit "https://example.com"`)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = expr.Matches(`I visit example.com`)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRegexpStepExpressionCompileError(t *testing.T) {
	t.Parallel()
	types := NewParameterTypeRegistry()

	_, err := NewRegexpStepExpression(`^I visit "([^"]*$`, types)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrExpressionCompile))
}

func TestRegexpStepExpressionUnanchored(t *testing.T) {
	t.Parallel()
	types := NewParameterTypeRegistry()

	// cucumber-expressions matches unanchored regexps against the whole
	// text, the same way cucumber implementations do.
	expr, err := NewRegexpStepExpression(`I visit "([^"]*)"`, types)
	require.NoError(t, err)

	ok, err := expr.Matches(`I visit "https://example.com"`)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCucumberStepExpressionWithCustomParameterType(t *testing.T) {
	t.Parallel()
	types := NewParameterTypeRegistry()
	require.NoError(t, types.Define(ParameterTypeDescriptor{
		Name:    "color",
		Regexps: []string{"red|green|blue"},
	}))

	expr, err := NewCucumberStepExpression("I pick the {color} pill", types)
	require.NoError(t, err)

	ok, err := expr.Matches("I pick the red pill")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = expr.Matches("I pick the purple pill")
	require.NoError(t, err)
	assert.False(t, ok)
}
