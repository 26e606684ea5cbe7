package main

import (
	"fmt"

	"ollamagate/internal/availability"
	"ollamagate/internal/config"
	"ollamagate/internal/core"
	"ollamagate/internal/gateway"

	"github.com/spf13/cobra"
)

var version = "dev"

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "ollamagate",
		Short:        "Inspect the local Ollama daemon",
		Long:         "ollamagate checks whether models are installed on a local Ollama daemon and lists them.",
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().String("base-url",
		config.GetEnvWithDefault("OLLAMA_BASE_URL", core.DefaultOllamaBaseURL),
		"Ollama daemon base URL")
	rootCmd.PersistentFlags().Duration("timeout", core.DefaultTagsTimeout, "tag listing timeout")

	rootCmd.AddCommand(newCheckCmd(), newModelsCmd(), newVersionCmd())
	return rootCmd
}

// resolverFromFlags builds the availability service for the daemon named by --base-url.
func resolverFromFlags(cmd *cobra.Command) (*availability.Service, error) {
	baseURL, _ := cmd.Flags().GetString("base-url")
	timeout, _ := cmd.Flags().GetDuration("timeout")
	if timeout <= 0 {
		timeout = core.DefaultTagsTimeout
	}

	gw, err := gateway.New(gateway.Config{
		BaseURL:     baseURL,
		TagsTimeout: timeout,
		Logger:      &core.NopLogger{},
	})
	if err != nil {
		return nil, err
	}
	return availability.NewService(gw, &core.NopLogger{}), nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "ollamagate %s\n", version)
		},
	}
}
