package stepdiag

import (
	"encoding/json"

	messages "github.com/cucumber/messages/go/v21"
)

// StepArgumentKind tags the block argument of a reported pickle step.
type StepArgumentKind string

const (
	ArgumentKindDataTable StepArgumentKind = "dataTable"
	ArgumentKindDocString StepArgumentKind = "docString"
	ArgumentKindNone      StepArgumentKind = ""
)

// MarshalJSON renders the absent kind as JSON null rather than "".
func (k StepArgumentKind) MarshalJSON() ([]byte, error) {
	if k == ArgumentKindNone {
		return []byte("null"), nil
	}
	return json.Marshal(string(k))
}

func (k *StepArgumentKind) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*k = ArgumentKindNone
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*k = StepArgumentKind(s)
	return nil
}

// argumentKindOf derives the report tag from a pickle step's block argument;
// a data table takes priority over a doc string (a step cannot carry both).
func argumentKindOf(step *messages.PickleStep) StepArgumentKind {
	switch {
	case step.Argument == nil:
		return ArgumentKindNone
	case step.Argument.DataTable != nil:
		return ArgumentKindDataTable
	case step.Argument.DocString != nil:
		return ArgumentKindDocString
	default:
		return ArgumentKindNone
	}
}

// DiagnosticStep locates one scenario step for the report. Derived from the
// pickle step and its AST location at classification time, never stored
// beyond report construction.
type DiagnosticStep struct {
	Source string `json:"source"`
	Line   int64  `json:"line"`
	Text   string `json:"text"`
}

// DefinitionUsage pairs one distinct step definition with the ordered list of
// scenario steps that matched it across the whole run. A definition nothing
// matched keeps an empty step list.
type DefinitionUsage struct {
	Definition *StepDefinition  `json:"definition"`
	Steps      []DiagnosticStep `json:"steps"`
}

// UnmatchedStep is a scenario step no registered definition accepted, with
// the search hints and closest-expression suggestions that help fix it.
type UnmatchedStep struct {
	Step        DiagnosticStep      `json:"step"`
	Argument    StepArgumentKind    `json:"argument"`
	Suggestions []string            `json:"suggestions,omitempty"`
	Hints       StepDefinitionHints `json:"stepDefinitionHints"`
}

// AmbiguousStep is a scenario step accepted by two or more definitions. The
// step also appears in every listed definition's usage.
type AmbiguousStep struct {
	Step        DiagnosticStep    `json:"step"`
	Definitions []*StepDefinition `json:"definitions"`
}

// DiagnosticResult is the aggregated report of one run: every distinct
// definition with its usage, plus the unmatched and ambiguous steps. Created
// empty at the start of a run and mutated additively as feature files are
// processed.
type DiagnosticResult struct {
	DefinitionsUsage []*DefinitionUsage `json:"definitionsUsage"`
	UnmatchedSteps   []UnmatchedStep    `json:"unmatchedSteps"`
	AmbiguousSteps   []AmbiguousStep    `json:"ambiguousSteps"`
}

// NewDiagnosticResult creates an empty result whose slices render as [] in
// JSON rather than null.
func NewDiagnosticResult() *DiagnosticResult {
	return &DiagnosticResult{
		DefinitionsUsage: []*DefinitionUsage{},
		UnmatchedSteps:   []UnmatchedStep{},
		AmbiguousSteps:   []AmbiguousStep{},
	}
}

// HasProblems reports whether the run found anything actionable.
func (r *DiagnosticResult) HasProblems() bool {
	return len(r.UnmatchedSteps) > 0 || len(r.AmbiguousSteps) > 0
}

// MatchedStepCount totals the steps recorded against definitions. Ambiguous
// steps count once per definition they matched.
func (r *DiagnosticResult) MatchedStepCount() int {
	total := 0
	for _, usage := range r.DefinitionsUsage {
		total += len(usage.Steps)
	}
	return total
}

type stepExpressionJSON struct {
	Source string         `json:"source"`
	Type   ExpressionKind `json:"type"`
}

type stepDefinitionJSON struct {
	Expression stepExpressionJSON `json:"expression"`
	Position   Position           `json:"position"`
}

// MarshalJSON renders the definition's report shape: canonical expression
// with its kind tag plus the source position. Handler is opaque and omitted.
func (d *StepDefinition) MarshalJSON() ([]byte, error) {
	return json.Marshal(stepDefinitionJSON{
		Expression: stepExpressionJSON{
			Source: d.Expression.CanonicalString(),
			Type:   d.Expression.Kind(),
		},
		Position: d.Position,
	})
}
