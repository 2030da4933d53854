package main

import (
	"github.com/spf13/cobra"

	"nameday/internal/server/bootstrap"
)

func newServeCommand(load func() (bootstrap.Config, error)) *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		Long: "Serve the HTTP API on the listener inherited through NAMEDAY_LISTEN_FD,\n" +
			"or on PORT when started on its own.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("port") {
				cfg.Port = port
			}

			app, err := bootstrap.NewApp(cfg)
			if err != nil {
				return err
			}
			ln, err := bootstrap.Listen(cfg)
			if err != nil {
				return err
			}
			return app.Run(cmd.Context(), ln)
		},
	}
	cmd.Flags().IntVarP(&port, "port", "p", 8000, "port to bind when no listener is inherited")
	return cmd
}
