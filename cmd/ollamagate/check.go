package main

import (
	"errors"
	"fmt"

	"ollamagate/internal/core"

	"github.com/bytedance/sonic"
	"github.com/spf13/cobra"
)

var errModelUnavailable = errors.New("model unavailable")

func newCheckCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check [model]",
		Short: "Check whether a model is installed",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			providerName, _ := cmd.Flags().GetString("provider")
			provider, err := core.ParseProviderKind(providerName)
			if err != nil {
				return err
			}

			resolver, err := resolverFromFlags(cmd)
			if err != nil {
				return err
			}

			model := ""
			if len(args) == 1 {
				model = args[0]
			}
			result := resolver.CheckModelAvailability(cmd.Context(), model, provider)

			out := cmd.OutOrStdout()
			if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
				data, err := sonic.MarshalIndent(result, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(out, string(data))
			} else if result.IsRunning {
				if result.ResolvedModelName != "" {
					fmt.Fprintf(out, "%s is available\n", result.ResolvedModelName)
				} else {
					fmt.Fprintf(out, "provider %s needs no local model\n", provider)
				}
			} else {
				fmt.Fprintln(out, result.Error)
			}

			if !result.IsRunning {
				return errModelUnavailable
			}
			return nil
		},
	}

	cmd.Flags().String("provider", string(core.ProviderOllama), "AI provider (ollama, openai, deepseek, gemini, openrouter)")
	cmd.Flags().Bool("json", false, "print the result as JSON")
	return cmd
}
