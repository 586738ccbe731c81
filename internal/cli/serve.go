package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/agenthands/minutes/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API and event stream",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		defer log.Sync()
		if port, _ := cmd.Flags().GetString("port"); port != "" {
			cfg.Server.Port = port
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		c, err := server.Wire(ctx, cfg, log)
		if err != nil {
			return err
		}
		return server.Serve(ctx, c, ":"+cfg.Server.Port, log)
	},
}

func init() {
	serveCmd.Flags().String("port", "", "Port to listen on (default from config)")
}
