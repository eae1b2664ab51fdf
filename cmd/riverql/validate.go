package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/typester/riverql/config"
	"github.com/typester/riverql/internal/river"
)

// validateCmd validates a config file without starting the server.
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a config file",
	Long: `Validate a riverql configuration file without starting the server.

This command parses the YAML, expands environment variables, and validates
all fields. For replay sources the fixture is parsed too. It's useful for
CI/CD pipelines or pre-deployment checks.

Exit codes:
  0 - Config is valid
  1 - Config is invalid (error details printed to stderr)

Example:
  riverql validate -c riverql.yaml
  riverql validate --config ~/.config/riverql/riverql.yaml`,
	Args: cobra.NoArgs,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	if path, _ := cmd.Flags().GetString("config"); path == "" {
		return errors.New("required flag \"config\" not set")
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	var source string
	if cfg.Source.Type == config.SourceReplay {
		fixture, err := river.LoadReplay(cfg.Source.Path, cfg.Source.Interval.Duration(), nil)
		if err != nil {
			return fmt.Errorf("invalid config: source: %w", err)
		}
		source = fmt.Sprintf("replay of %d records from %s every %s",
			fixture.Len(), cfg.Source.Path, cfg.Source.Interval.Duration())
	} else {
		source = fmt.Sprintf("stream from %s", cfg.Source.Path)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Config is valid!\n")
	fmt.Fprintf(out, "  Listen:        %s\n", cfg.Listen)
	fmt.Fprintf(out, "  Endpoint:      %s\n", cfg.Endpoint)
	fmt.Fprintf(out, "  Bus capacity:  %d\n", cfg.BusCapacity)
	fmt.Fprintf(out, "  Write timeout: %s\n", cfg.WriteTimeout.Duration())
	fmt.Fprintf(out, "  Log level:     %s\n", cfg.Level())
	fmt.Fprintf(out, "  Source:        %s\n", source)

	return nil
}
