package main

import (
	"io"

	"github.com/spf13/cobra"

	"nameday/internal/logging"
	"nameday/internal/server/bootstrap"
)

func newRootCommand(stdout, stderr io.Writer) *cobra.Command {
	var envFile string

	cmd := &cobra.Command{
		Use:          "nameday",
		Short:        "Swedish name-day API",
		SilenceUsage: true,
	}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.PersistentFlags().StringVar(&envFile, "env-file", bootstrap.DefaultEnvFile, "dotenv file read before the environment")

	load := func() (bootstrap.Config, error) {
		cfg, err := bootstrap.LoadConfig(envFile)
		if err != nil {
			return cfg, err
		}
		logging.Configure(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat, Output: stderr})
		return cfg, nil
	}

	cmd.AddCommand(newServeCommand(load))
	cmd.AddCommand(newFetchCommand(load))
	return cmd
}
