package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/GoCodeAlone/stepdiag"
)

// NewRootCommand creates the root command for the stepdiag CLI.
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stepdiag",
		Short: "Diagnose Gherkin feature files against their step definitions",
		Long: `stepdiag matches the steps of Gherkin feature files against the step
definitions of a JavaScript or TypeScript test suite. It reports step
definitions nothing uses, steps no definition matches, and steps more
than one definition matches.`,
		Run: func(cmd *cobra.Command, args []string) {
			_ = cmd.Help()
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringP("project", "p", ".", "Path to the project root")
	cmd.PersistentFlags().StringP("config", "c", "", "Path to a configuration file")
	cmd.PersistentFlags().BoolP("quiet", "q", false, "Suppress log output")
	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable debug log output")

	cmd.AddCommand(NewDiagnoseCommand())
	cmd.AddCommand(NewServeCommand())
	cmd.AddCommand(NewVersionCommand())

	return cmd
}

// Version information
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// PrintVersion prints version information
func PrintVersion() string {
	return fmt.Sprintf("stepdiag v%s (commit: %s, built on: %s)", Version, Commit, Date)
}

// NewVersionCommand creates the version command
func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), PrintVersion())
		},
	}
}

// slogAdapter satisfies stepdiag.Logger with a standard library slog.Logger.
type slogAdapter struct {
	logger *slog.Logger
}

func (l *slogAdapter) Info(msg string, args ...any)  { l.logger.Info(msg, args...) }
func (l *slogAdapter) Error(msg string, args ...any) { l.logger.Error(msg, args...) }
func (l *slogAdapter) Warn(msg string, args ...any)  { l.logger.Warn(msg, args...) }
func (l *slogAdapter) Debug(msg string, args ...any) { l.logger.Debug(msg, args...) }

// newLogger builds the logger the command runs with. Logs go to stderr so
// report output on stdout stays parseable.
func newLogger(cmd *cobra.Command) stepdiag.Logger {
	quiet, _ := cmd.Flags().GetBool("quiet")
	verbose, _ := cmd.Flags().GetBool("verbose")
	if quiet {
		return stepdiag.NoopLogger{}
	}

	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level})
	return &slogAdapter{logger: slog.New(handler)}
}

// loadConfig resolves the configuration for the project the command points at.
func loadConfig(cmd *cobra.Command, log stepdiag.Logger) (*stepdiag.Config, error) {
	projectRoot, _ := cmd.Flags().GetString("project")
	configFile, _ := cmd.Flags().GetString("config")
	return stepdiag.LoadConfig(projectRoot, configFile, log)
}
