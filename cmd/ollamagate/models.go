package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

func newModelsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List models installed on the daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			resolver, err := resolverFromFlags(cmd)
			if err != nil {
				return err
			}

			result := resolver.FetchRunningModels(cmd.Context())
			if result.Error != "" {
				return errors.New(result.Error)
			}

			out := cmd.OutOrStdout()
			if len(result.Models) == 0 {
				fmt.Fprintln(out, "No models installed.")
				return nil
			}

			fmt.Fprintln(out, "NAME")
			for _, name := range result.Models {
				fmt.Fprintln(out, name)
			}
			return nil
		},
	}
}
