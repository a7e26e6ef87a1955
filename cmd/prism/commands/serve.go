package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/prismgw/prism/internal/config"
	"github.com/prismgw/prism/internal/logger"
	"github.com/prismgw/prism/internal/server"
)

// NewServeCommand runs the gateway in the foreground, equivalent to the
// server binary.
func NewServeCommand() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the gateway",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			if port != 0 {
				cfg.Server.Port = port
			}

			log, err := logger.Initialize(cfg.Logging)
			if err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			defer logger.Sync()

			return server.Run(cfg, log)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "listen port (overrides PORT)")

	return cmd
}
