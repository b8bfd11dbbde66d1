package stepdiag

import "fmt"

// Position is a step definition's location in its original source file, after
// source-map translation out of the compiled bundle.
type Position struct {
	Source string `json:"source"`
	Line   int    `json:"line"`
	Column int    `json:"column"`
}

func (p Position) String() string {
	return fmt.Sprintf("%s:%d:%d", p.Source, p.Line, p.Column)
}

// StepDefinition is a registered step pattern plus its source position.
// Handler is the opaque value user code registered alongside the pattern;
// diagnostics never invokes it, only the pattern matters.
type StepDefinition struct {
	Expression StepExpression
	Handler    any
	Position   Position
}

// DefinitionKey identifies a step definition structurally. Two definitions
// are the same definition iff their canonical expression strings and their
// positions are equal, never by reference: each feature file rebuilds its
// registry from its own resolved step-definition files, and the same on-disk
// definition must be recognized across rebuilds.
type DefinitionKey struct {
	Expression string
	Source     string
	Line       int
	Column     int
}

// Key returns the structural identity of this definition. DefinitionKey is
// comparable and is used for all usage-ledger lookups in place of pointer
// identity.
func (d *StepDefinition) Key() DefinitionKey {
	return DefinitionKey{
		Expression: d.Expression.CanonicalString(),
		Source:     d.Position.Source,
		Line:       d.Position.Line,
		Column:     d.Position.Column,
	}
}

// String renders the definition for logs and reports.
func (d *StepDefinition) String() string {
	return fmt.Sprintf("%q (%s:%d)", d.Expression.CanonicalString(), d.Position.Source, d.Position.Line)
}
