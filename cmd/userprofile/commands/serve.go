package commands

import (
	"github.com/spf13/cobra"

	"userprofile/internal/logging"
	"userprofile/internal/service"
)

func (c *CLI) newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Consume the service topics and serve the query API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("grpc-port") {
				port, _ := cmd.Flags().GetInt("grpc-port")
				if err := cfg.SetServicePort(port); err != nil {
					return err
				}
			}
			if cmd.Flags().Changed("log-level") {
				level, _ := cmd.Flags().GetString("log-level")
				if err := cfg.SetLogLevel(level); err != nil {
					return err
				}
			}
			logging.Configure(logging.Options{Level: cfg.Service.LogLevel, JSON: cfg.Service.LogJSON})

			svc, err := service.Bootstrap(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			return svc.Run(cmd.Context())
		},
	}
	cmd.Flags().Int("grpc-port", 0, "Override service.grpc_port")
	cmd.Flags().String("log-level", "", "Override service.log_level (debug|info|warning|error|critical|fatal)")
	return cmd
}
