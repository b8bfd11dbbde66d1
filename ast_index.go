package stepdiag

import (
	"fmt"

	messages "github.com/cucumber/messages/go/v21"
)

// AstIDMap maps every addressable node id in a gherkin document to the node
// itself, enabling O(1) source-location lookup from a pickle step's
// originating node ids.
type AstIDMap map[string]any

// NewAstIDMap walks the document once and indexes every id-bearing node:
// backgrounds, scenarios (including outlines), steps, examples tables with
// their header and body rows, rules, and tags. Doc strings, data tables and
// table cells carry no ids and are not indexed.
func NewAstIDMap(document *messages.GherkinDocument) AstIDMap {
	index := make(AstIDMap)
	if document == nil || document.Feature == nil {
		return index
	}
	for _, tag := range document.Feature.Tags {
		index[tag.Id] = tag
	}
	for _, child := range document.Feature.Children {
		switch {
		case child.Background != nil:
			indexBackground(index, child.Background)
		case child.Scenario != nil:
			indexScenario(index, child.Scenario)
		case child.Rule != nil:
			indexRule(index, child.Rule)
		}
	}
	return index
}

func indexRule(index AstIDMap, rule *messages.Rule) {
	index[rule.Id] = rule
	for _, tag := range rule.Tags {
		index[tag.Id] = tag
	}
	for _, child := range rule.Children {
		switch {
		case child.Background != nil:
			indexBackground(index, child.Background)
		case child.Scenario != nil:
			indexScenario(index, child.Scenario)
		}
	}
}

func indexBackground(index AstIDMap, background *messages.Background) {
	index[background.Id] = background
	for _, step := range background.Steps {
		index[step.Id] = step
	}
}

func indexScenario(index AstIDMap, scenario *messages.Scenario) {
	index[scenario.Id] = scenario
	for _, tag := range scenario.Tags {
		index[tag.Id] = tag
	}
	for _, step := range scenario.Steps {
		index[step.Id] = step
	}
	for _, examples := range scenario.Examples {
		index[examples.Id] = examples
		for _, tag := range examples.Tags {
			index[tag.Id] = tag
		}
		if examples.TableHeader != nil {
			index[examples.TableHeader.Id] = examples.TableHeader
		}
		for _, row := range examples.TableBody {
			index[row.Id] = row
		}
	}
}

// Node returns the AST node registered under id. A missing id means the
// compiler emitted a pickle referencing a node outside its own document,
// which is fatal.
func (m AstIDMap) Node(id string) (any, error) {
	node, ok := m[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrAstNodeNotFound, id)
	}
	return node, nil
}

// Location returns the source location of the node registered under id.
func (m AstIDMap) Location(id string) (*messages.Location, error) {
	node, err := m.Node(id)
	if err != nil {
		return nil, err
	}
	switch n := node.(type) {
	case *messages.Background:
		return n.Location, nil
	case *messages.Scenario:
		return n.Location, nil
	case *messages.Step:
		return n.Location, nil
	case *messages.Examples:
		return n.Location, nil
	case *messages.TableRow:
		return n.Location, nil
	case *messages.Rule:
		return n.Location, nil
	case *messages.Tag:
		return n.Location, nil
	default:
		return nil, fmt.Errorf("%w: %q (%T)", ErrAstNodeNoLocation, id, node)
	}
}
