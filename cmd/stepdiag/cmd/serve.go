package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/GoCodeAlone/stepdiag"
)

// NewServeCommand creates the serve command, which keeps the diagnosis
// running and exposes the latest report over HTTP.
func NewServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the diagnostic report over HTTP, re-running on file changes",
		Long: `Serve runs the diagnosis, watches the project tree, and re-runs whenever
a feature file or step definition changes. The latest report is available
at GET /api/diagnostics and a re-run can be forced with POST /api/refresh.

Examples:
  stepdiag serve
  stepdiag serve --addr :8080 --schedule "*/5 * * * *"`,
		Args: cobra.NoArgs,
		RunE: runServe,
	}

	cmd.Flags().String("addr", "", "Address to listen on (overrides configuration)")
	cmd.Flags().Bool("watch", true, "Re-run when watched files change")
	cmd.Flags().String("schedule", "", "Cron schedule for periodic re-runs (overrides configuration)")

	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	log := newLogger(cmd)
	cfg, err := loadConfig(cmd, log)
	if err != nil {
		return err
	}

	if cmd.Flags().Changed("addr") {
		cfg.Serve.Addr, _ = cmd.Flags().GetString("addr")
	}
	if cmd.Flags().Changed("schedule") {
		cfg.Watch.Schedule, _ = cmd.Flags().GetString("schedule")
	}
	watch, _ := cmd.Flags().GetBool("watch")

	diag := stepdiag.NewDiagnostics(cfg, stepdiag.WithLogger(log))
	srv := stepdiag.NewServer(diag, cfg.Serve.Addr)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// A broken working tree should not keep the server from coming up. The
	// endpoint answers 503 until a run succeeds.
	if result, err := diag.Run(ctx); err != nil {
		log.Error("initial diagnosis failed", "error", err)
	} else {
		srv.SetResult(result)
	}

	if watch {
		watcher, err := stepdiag.NewWatcher(diag, srv.SetResult, func(err error) {
			log.Error("diagnosis failed", "error", err)
		})
		if err != nil {
			return err
		}
		defer watcher.Stop()
		if err := watcher.Start(); err != nil {
			return err
		}
	}

	if err := srv.Start(); err != nil {
		return err
	}

	<-ctx.Done()
	stop()
	return srv.Stop(context.Background())
}
