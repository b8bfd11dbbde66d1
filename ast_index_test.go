package stepdiag

import (
	"testing"

	messages "github.com/cucumber/messages/go/v21"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func compileTestFeature(t *testing.T, source string) *CompiledFeature {
	t.Helper()
	feature, err := CompileFeature("test.feature", []byte(source))
	require.NoError(t, err)
	return feature
}

func TestAstIDMapStepLocations(t *testing.T) {
	t.Parallel()
	feature := compileTestFeature(t, loginFeatureSource)
	index := NewAstIDMap(feature.Document)

	wantLines := map[string]int64{
		"the site is up":      3,
		`I log in as "admin"`: 6,
		"I see the dashboard": 7,
		"I greet Alice":       10,
		"I greet Bob":         10,
	}
	for _, pickle := range feature.Pickles {
		for _, step := range pickle.Steps {
			require.NotEmpty(t, step.AstNodeIds)
			location, err := index.Location(step.AstNodeIds[0])
			require.NoError(t, err)
			assert.Equal(t, wantLines[step.Text], location.Line, "step %q", step.Text)
		}
	}
}

func TestAstIDMapOutlineRowLocation(t *testing.T) {
	t.Parallel()
	feature := compileTestFeature(t, loginFeatureSource)
	index := NewAstIDMap(feature.Document)

	// Outline pickle steps carry a second node id pointing at the examples
	// row that produced them.
	alice := feature.Pickles[1].Steps[1]
	bob := feature.Pickles[2].Steps[1]
	require.Len(t, alice.AstNodeIds, 2)
	require.Len(t, bob.AstNodeIds, 2)

	aliceRow, err := index.Location(alice.AstNodeIds[1])
	require.NoError(t, err)
	bobRow, err := index.Location(bob.AstNodeIds[1])
	require.NoError(t, err)
	assert.Equal(t, int64(13), aliceRow.Line)
	assert.Equal(t, int64(14), bobRow.Line)
}

func TestAstIDMapIndexesRules(t *testing.T) {
	t.Parallel()
	feature := compileTestFeature(t, `Feature: payments
  Rule: refunds
    Background:
      Given a paid order

    Scenario: refund
      When I request a refund
`)
	index := NewAstIDMap(feature.Document)

	require.Len(t, feature.Pickles, 1)
	steps := feature.Pickles[0].Steps
	require.Len(t, steps, 2)

	order, err := index.Location(steps[0].AstNodeIds[0])
	require.NoError(t, err)
	refund, err := index.Location(steps[1].AstNodeIds[0])
	require.NoError(t, err)
	assert.Equal(t, int64(4), order.Line)
	assert.Equal(t, int64(7), refund.Line)
}

func TestAstIDMapNode(t *testing.T) {
	t.Parallel()
	feature := compileTestFeature(t, loginFeatureSource)
	index := NewAstIDMap(feature.Document)

	scenario := feature.Document.Feature.Children[1].Scenario
	require.NotNil(t, scenario)
	node, err := index.Node(scenario.Id)
	require.NoError(t, err)
	assert.Same(t, scenario, node.(*messages.Scenario))
}

func TestAstIDMapMissingID(t *testing.T) {
	t.Parallel()
	index := NewAstIDMap(nil)
	_, err := index.Node("does-not-exist")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAstNodeNotFound)

	_, err = index.Location("does-not-exist")
	assert.ErrorIs(t, err, ErrAstNodeNotFound)
}
