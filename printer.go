package stepdiag

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
)

var (
	headingStyle = lipgloss.NewStyle().Bold(true)
	usedStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	unusedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	problemStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	detailStyle  = lipgloss.NewStyle().Faint(true)
)

// WriteJSON renders the result as indented JSON.
func WriteJSON(w io.Writer, result *DiagnosticResult) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(result); err != nil {
		return fmt.Errorf("encoding diagnostic result: %w", err)
	}
	return nil
}

// WritePretty renders the result for humans: every definition with its use
// count, then the unmatched and ambiguous steps with their context, then a
// summary line.
func WritePretty(w io.Writer, result *DiagnosticResult) {
	fmt.Fprintln(w, headingStyle.Render("Step definitions"))
	if len(result.DefinitionsUsage) == 0 {
		fmt.Fprintln(w, detailStyle.Render("  (none found)"))
	}
	for _, usage := range result.DefinitionsUsage {
		count := fmt.Sprintf("%3d", len(usage.Steps))
		if len(usage.Steps) > 0 {
			count = usedStyle.Render(count)
		} else {
			count = unusedStyle.Render(count)
		}
		fmt.Fprintf(w, "  %s  %s  %s\n",
			count, displayExpression(usage.Definition), detailStyle.Render(usage.Definition.Position.String()))
	}

	if len(result.UnmatchedSteps) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, headingStyle.Render("Unmatched steps"))
		for _, unmatched := range result.UnmatchedSteps {
			location := fmt.Sprintf("%s:%d", unmatched.Step.Source, unmatched.Step.Line)
			line := fmt.Sprintf("  %s  %s", problemStyle.Render(location), unmatched.Step.Text)
			if unmatched.Argument != ArgumentKindNone {
				line += detailStyle.Render("  [" + string(unmatched.Argument) + "]")
			}
			fmt.Fprintln(w, line)
			for _, suggestion := range unmatched.Suggestions {
				fmt.Fprintln(w, detailStyle.Render(fmt.Sprintf("      did you mean %q?", suggestion)))
			}
			for _, pattern := range unmatched.Hints.StepDefinitionPatterns {
				fmt.Fprintln(w, detailStyle.Render("      searched "+pattern))
			}
		}
	}

	if len(result.AmbiguousSteps) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, headingStyle.Render("Ambiguous steps"))
		for _, ambiguous := range result.AmbiguousSteps {
			location := fmt.Sprintf("%s:%d", ambiguous.Step.Source, ambiguous.Step.Line)
			fmt.Fprintf(w, "  %s  %s\n", problemStyle.Render(location), ambiguous.Step.Text)
			for _, definition := range ambiguous.Definitions {
				fmt.Fprintf(w, "      matches %s  %s\n",
					displayExpression(definition), detailStyle.Render(definition.Position.String()))
			}
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "%d definitions, %d matched steps, %d unmatched, %d ambiguous\n",
		len(result.DefinitionsUsage), result.MatchedStepCount(),
		len(result.UnmatchedSteps), len(result.AmbiguousSteps))
}

// displayExpression renders a definition's pattern the way its author wrote
// it: quoted for cucumber expressions, slash-delimited for regexps.
func displayExpression(definition *StepDefinition) string {
	source := definition.Expression.CanonicalString()
	if definition.Expression.Kind() == KindRegularExpression {
		return "/" + source + "/"
	}
	return fmt.Sprintf("%q", source)
}
