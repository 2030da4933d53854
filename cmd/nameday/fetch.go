package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"nameday/internal/nameday"
	"nameday/internal/nameday/store"
	"nameday/internal/server/bootstrap"
)

func newFetchCommand(load func() (bootstrap.Config, error)) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Download the calendar from Wikipedia into a JSON file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			if output == "" {
				output = cfg.DataPath
			}
			out := cmd.OutOrStdout()

			fmt.Fprintln(out, "Fetching Wikipedia data...")
			html, err := bootstrap.NewFetcher(cfg).FetchHTML(cmd.Context())
			if err != nil {
				return err
			}

			fmt.Fprintln(out, "Parsing name days...")
			cal, err := nameday.ParseTables(html)
			if err != nil {
				return err
			}
			if len(cal) == 0 {
				return nameday.ErrNoData
			}

			fmt.Fprintf(out, "Writing %s (%d days)\n", output, len(cal))
			if err := store.NewFileStore(output).Save(cmd.Context(), cal); err != nil {
				return err
			}
			fmt.Fprintln(out, "Done ✔")
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default: NAMEDAY_DATA)")
	return cmd
}
