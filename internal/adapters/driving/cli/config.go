package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/custodia-labs/strata/internal/core/services"
)

var configPing bool

var settingsOnly = map[string]string{annotationSettingsOnly: "true"}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long: `View and change settings stored in config.toml.

Settings cover the embedding, completion and vision providers, the index,
chunking, vision routing thresholds, retry policy, agent dispatch and
concurrency. 'strata config keys' lists every key.`,
}

var configShowCmd = &cobra.Command{
	Use:         "show",
	Short:       "Show every effective setting",
	Args:        cobra.NoArgs,
	Annotations: settingsOnly,
	RunE:        runConfigShow,
}

var configGetCmd = &cobra.Command{
	Use:         "get [key]",
	Short:       "Print one setting",
	Args:        cobra.ExactArgs(1),
	Annotations: settingsOnly,
	RunE:        runConfigGet,
}

var configSetCmd = &cobra.Command{
	Use:   "set [key] [value]",
	Short: "Change one setting",
	Long: `Parses and validates value before saving it.

Changing a provider resets its model to the provider default. Choosing an
embedding model with known dimensions also updates index.dimensions; an
existing index must then be rebuilt by re-ingesting its documents.

When value is omitted for an api_key setting, it is read from the terminal
without echo.`,
	Args:        cobra.RangeArgs(1, 2),
	Annotations: settingsOnly,
	RunE:        runConfigSet,
}

var configValidateCmd = &cobra.Command{
	Use:         "validate",
	Short:       "Check that the settings are usable",
	Args:        cobra.NoArgs,
	Annotations: settingsOnly,
	RunE:        runConfigValidate,
}

var configKeysCmd = &cobra.Command{
	Use:         "keys",
	Short:       "List every configuration key",
	Args:        cobra.NoArgs,
	Annotations: map[string]string{annotationNoServices: "true"},
	Run: func(cmd *cobra.Command, _ []string) {
		for _, k := range services.SettingKeys() {
			cmd.Println(k)
		}
	},
}

func init() {
	configValidateCmd.Flags().BoolVar(&configPing, "ping", false, "also contact the embedding and completion providers")
	configCmd.AddCommand(configShowCmd, configGetCmd, configSetCmd, configValidateCmd, configKeysCmd)
	rootCmd.AddCommand(configCmd)
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	if settingsService == nil {
		return errNotConfigured("settings")
	}
	values, err := settingsService.Values()
	if err != nil {
		return fmt.Errorf("failed to read settings: %w", err)
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	for _, v := range values {
		value := v.Value
		if v.Secret {
			value = maskAPIKey(value)
		}
		fmt.Fprintf(w, "%s\t%s\n", v.Key, value)
	}
	return w.Flush()
}

func runConfigGet(cmd *cobra.Command, args []string) error {
	if settingsService == nil {
		return errNotConfigured("settings")
	}
	values, err := settingsService.Values()
	if err != nil {
		return fmt.Errorf("failed to read settings: %w", err)
	}
	for _, v := range values {
		if v.Key != args[0] {
			continue
		}
		if v.Secret {
			cmd.Println(maskAPIKey(v.Value))
		} else {
			cmd.Println(v.Value)
		}
		return nil
	}
	return fmt.Errorf("unknown setting %q (see 'strata config keys')", args[0])
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	if settingsService == nil {
		return errNotConfigured("settings")
	}
	key := args[0]

	var value string
	switch {
	case len(args) == 2:
		value = args[1]
	case strings.HasSuffix(key, ".api_key"):
		cmd.Printf("%s: ", key)
		value = readPassword()
		cmd.Println()
	default:
		return fmt.Errorf("a value is required for %s", key)
	}

	if err := settingsService.Set(key, value); err != nil {
		return err
	}
	cmd.Printf("%s updated\n", key)
	return nil
}

// connectionValidator is implemented by settings services that can reach
// the configured providers.
type connectionValidator interface {
	ValidateConnections(ctx context.Context) error
}

func runConfigValidate(cmd *cobra.Command, _ []string) error {
	if settingsService == nil {
		return errNotConfigured("settings")
	}
	if err := settingsService.Validate(); err != nil {
		return err
	}
	if configPing {
		v, ok := settingsService.(connectionValidator)
		if !ok {
			return errors.New("connection checks are not available")
		}
		cmd.Print("Contacting providers... ")
		if err := v.ValidateConnections(cmd.Context()); err != nil {
			cmd.Println("failed")
			return err
		}
		cmd.Println("ok")
	}
	cmd.Println("Settings are valid.")
	return nil
}

func readPassword() string {
	if term.IsTerminal(int(os.Stdin.Fd())) {
		password, err := term.ReadPassword(int(os.Stdin.Fd()))
		if err == nil {
			return string(password)
		}
	}
	reader := bufio.NewReader(os.Stdin)
	input, _ := reader.ReadString('\n')
	return strings.TrimSpace(input)
}

func maskAPIKey(key string) string {
	if key == "" {
		return "(not set)"
	}
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "..." + key[len(key)-4:]
}
