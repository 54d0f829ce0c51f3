package commands

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/livetemplate/blockshot/internal/config"
	"github.com/livetemplate/blockshot/internal/history"
	"github.com/livetemplate/blockshot/internal/server"
)

func newServeCommand(g *globalOptions) *cobra.Command {
	var (
		port        int
		host        string
		allowUpdate bool
		noHistory   bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the on-demand test server used by the overlay",
		Long: "serve starts a single local test server. If one is already running in the\n" +
			"configured port range it reports that and exits.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := g.load(cmd)
			if err != nil {
				return err
			}
			if port != 0 {
				cfg.Server.Port = port
				if cfg.Server.MaxPort < port {
					cfg.Server.MaxPort = port
				}
			}
			if host != "" {
				cfg.Server.Host = host
			}
			cfg.Server.Debug = cfg.Server.Debug || g.verbose
			config.SetAllowUpdate(allowUpdate)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			var hist *history.Store
			if !noHistory {
				hist, err = history.Open(cfg.ServerPath(cfg.Server.HistoryDB))
				if err != nil {
					return err
				}
				defer hist.Close()
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "🧪 blockshot test server\n")
			fmt.Fprintf(out, "   Host:    %s\n", cfg.Host.URL)
			fmt.Fprintf(out, "   Ports:   %d-%d\n", cfg.Server.Port, cfg.Server.MaxPort)
			fmt.Fprintf(out, "   Reports: %s\n", cfg.ServerPath(cfg.Server.ReportDir))
			if allowUpdate {
				fmt.Fprintf(out, "   ⚠️  Baseline updates enabled\n")
			}
			fmt.Fprintln(out)

			srv := server.New(cfg, hist)
			defer srv.Close()

			err = srv.Start(ctx)
			var running *server.AlreadyRunningError
			if errors.As(err, &running) {
				fmt.Fprintf(out, "✅ Test server already running on port %d\n", running.Port)
				return nil
			}
			return err
		},
	}
	cmd.Flags().IntVarP(&port, "port", "p", 0, "First port to try (overrides server.port)")
	cmd.Flags().StringVar(&host, "host", "", "Interface to bind (overrides server.host)")
	cmd.Flags().BoolVar(&allowUpdate, "allow-update", false, "Allow the overlay to rewrite baselines")
	cmd.Flags().BoolVar(&noHistory, "no-history", false, "Do not record runs")
	return cmd
}
