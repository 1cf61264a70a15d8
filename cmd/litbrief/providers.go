// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pdiddy/litbrief/internal/catalog"
	"github.com/pdiddy/litbrief/pkg/types"
)

var providersCmd = &cobra.Command{
	Use:   "providers",
	Short: "Manage LLM provider keys and models",
	Long: `Keys and model choices are stored per provider in the database. Keys in
the secrets directory (openai-api-key, anthropic-api-key, gemini-api-key,
openrouter-api-key) are stored on first use for providers without one.`,
}

var providersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List providers and their settings",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWithApp(cmd, func(ctx context.Context, a *app) error {
			w := cmd.OutOrStdout()
			for _, name := range a.registry.Names() {
				s, _ := a.registry.Settings(name)
				active := " "
				if name == a.registry.Active() {
					active = "*"
				}
				key := "no key"
				if s.APIKey != "" {
					key = maskKey(s.APIKey)
				}
				model := s.SelectedModel
				if model == "" {
					if m, ok := catalog.Default(name); ok {
						model = m.ID + " (default)"
					}
				}
				fmt.Fprintf(w, "%s %-11s %-16s %s\n", active, name, key, model)
			}
			return nil
		})
	},
}

var providersSetKeyCmd = &cobra.Command{
	Use:   "set-key PROVIDER KEY",
	Short: "Validate and store an API key",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		skip, _ := cmd.Flags().GetBool("skip-validation")
		name, key := types.ProviderName(args[0]), strings.TrimSpace(args[1])
		return runWithApp(cmd, func(ctx context.Context, a *app) error {
			if !skip {
				p, err := a.registry.ProviderWithKey(name, key)
				if err != nil {
					return err
				}
				ok, err := p.ValidateKey(ctx, key)
				if err != nil {
					return fmt.Errorf("validating key: %w", err)
				}
				if !ok {
					return fmt.Errorf("%s rejected the key", name)
				}
			}
			s, _ := a.registry.Settings(name)
			s.APIKey = key
			if err := a.registry.UpdateProviderSettings(ctx, name, s); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "saved %s key %s\n", name, maskKey(key))
			return nil
		})
	},
}

var providersValidateCmd = &cobra.Command{
	Use:   "validate PROVIDER",
	Short: "Check the stored API key with the vendor",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := types.ProviderName(args[0])
		return runWithApp(cmd, func(ctx context.Context, a *app) error {
			s, ok := a.registry.Settings(name)
			if !ok || s.APIKey == "" {
				return fmt.Errorf("no key stored for %s", name)
			}
			p, err := a.registry.Provider(name)
			if err != nil {
				return err
			}
			valid, err := p.ValidateKey(ctx, s.APIKey)
			if err != nil {
				return err
			}
			if !valid {
				return fmt.Errorf("%s rejected the stored key", name)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s key is valid\n", name)
			return nil
		})
	},
}

var providersModelsCmd = &cobra.Command{
	Use:   "models PROVIDER",
	Short: "List a provider's models",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		available, _ := cmd.Flags().GetBool("available")
		name := types.ProviderName(args[0])
		return runWithApp(cmd, func(ctx context.Context, a *app) error {
			p, err := a.registry.Provider(name)
			if err != nil {
				return err
			}
			models := p.Models()
			if available {
				if models, err = p.ListAvailableModels(ctx); err != nil {
					return err
				}
			}
			s, _ := a.registry.Settings(name)
			w := cmd.OutOrStdout()
			for _, m := range models {
				flags := capabilities(m)
				if !s.ModelEnabled(m.ID) {
					flags = append(flags, "disabled")
				}
				mark := " "
				if m.ID == s.SelectedModel {
					mark = "*"
				}
				fmt.Fprintf(w, "%s %-40s %8d  %s\n", mark, m.ID, m.ContextWindow, strings.Join(flags, ","))
			}
			return nil
		})
	},
}

var providersUseCmd = &cobra.Command{
	Use:   "use PROVIDER MODEL",
	Short: "Select the model a provider uses",
	Long: `Stores MODEL as the provider's selected model. The provider itself is
chosen with ai.provider in the config file, LITBRIEF_AI_PROVIDER, or --provider.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		name, model := types.ProviderName(args[0]), args[1]
		return runWithApp(cmd, func(ctx context.Context, a *app) error {
			if _, err := a.registry.Provider(name); err != nil {
				return err
			}
			if _, ok := catalog.Lookup(name, model); !ok {
				fmt.Fprintf(os.Stderr, "warning: %s is not in the %s catalog; assuming no structured output\n", model, name)
			}
			s, _ := a.registry.Settings(name)
			s.SelectedModel = model
			return a.registry.UpdateProviderSettings(ctx, name, s)
		})
	},
}

var providersEnableCmd = &cobra.Command{
	Use:   "enable PROVIDER MODEL",
	Short: "Enable or disable a model",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		disable, _ := cmd.Flags().GetBool("disable")
		name, model := types.ProviderName(args[0]), args[1]
		return runWithApp(cmd, func(ctx context.Context, a *app) error {
			s, _ := a.registry.Settings(name)
			if disable && s.SelectedModel == model {
				return errors.New("cannot disable the selected model; select another first")
			}
			enabled := make(map[string]bool, len(s.EnabledModels)+1)
			for k, v := range s.EnabledModels {
				enabled[k] = v
			}
			enabled[model] = !disable
			s.EnabledModels = enabled
			return a.registry.UpdateProviderSettings(ctx, name, s)
		})
	},
}

func init() {
	providersSetKeyCmd.Flags().Bool("skip-validation", false, "store the key without checking it")
	providersModelsCmd.Flags().Bool("available", false, "ask the vendor which models the key can use")
	providersEnableCmd.Flags().Bool("disable", false, "disable instead")

	providersCmd.AddCommand(providersListCmd, providersSetKeyCmd, providersValidateCmd,
		providersModelsCmd, providersUseCmd, providersEnableCmd)
	rootCmd.AddCommand(providersCmd)
}

func capabilities(m types.ModelInfo) []string {
	var flags []string
	if m.SupportsStructuredOutput {
		flags = append(flags, "schema")
	}
	if m.SupportsJSONMode {
		flags = append(flags, "json")
	}
	if m.Reasoning {
		flags = append(flags, "reasoning")
	}
	return flags
}

// maskKey shows only the ends of a key.
func maskKey(key string) string {
	if len(key) <= 10 {
		return strings.Repeat("*", len(key))
	}
	return key[:6] + "..." + key[len(key)-4:]
}
