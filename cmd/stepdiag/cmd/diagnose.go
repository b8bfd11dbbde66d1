package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/GoCodeAlone/stepdiag"
)

// NewDiagnoseCommand creates the diagnose command, the one-shot run over a
// project tree.
func NewDiagnoseCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "diagnose",
		Short: "Run the diagnosis once and print the report",
		Long: `Diagnose parses every feature file the configuration selects, loads the
step definitions belonging to each one, and prints which definitions are
used, which steps are unmatched, and which are ambiguous.

The exit code is 0 when every step matched exactly one definition, 2 when
unmatched or ambiguous steps were found, and 1 on any other failure.

Examples:
  stepdiag diagnose
  stepdiag diagnose --project ./e2e --format json`,
		Args: cobra.NoArgs,
		RunE: runDiagnose,
	}

	cmd.Flags().StringP("format", "f", "pretty", "Report format: pretty or json")

	return cmd
}

func runDiagnose(cmd *cobra.Command, _ []string) error {
	format, _ := cmd.Flags().GetString("format")
	if format != "pretty" && format != "json" {
		return fmt.Errorf("unknown report format %q", format)
	}

	log := newLogger(cmd)
	cfg, err := loadConfig(cmd, log)
	if err != nil {
		return err
	}

	diag := stepdiag.NewDiagnostics(cfg, stepdiag.WithLogger(log))
	result, err := diag.Run(cmd.Context())
	if err != nil {
		return err
	}

	if format == "json" {
		if err := stepdiag.WriteJSON(cmd.OutOrStdout(), result); err != nil {
			return fmt.Errorf("writing report: %w", err)
		}
	} else {
		stepdiag.WritePretty(cmd.OutOrStdout(), result)
	}

	if result.HasProblems() {
		return stepdiag.ErrProblemsFound
	}
	return nil
}
