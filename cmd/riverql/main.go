// Package main is the entry point for the riverql CLI.
//
// riverql runs either as the status server, fed by a compositor bridge, or
// as a subscriber that prints every event of a subscription as a JSON line.
//
// Usage:
//
//	riverql --server                    # Start the server (same as riverql serve)
//	riverql 'subscription { ... }'      # Subscribe and print payloads
//	riverql @focused.graphql            # Read the subscription from a file
//	riverql validate -c riverql.yaml    # Validate configuration
//	riverql version                     # Show version info
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/typester/riverql/config"
)

// Version information - set by GoReleaser at build time via ldflags.
// Example: go build -ldflags "-X main.version=1.0.0"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// rootCmd is the base command when called without subcommands. It subscribes
// by default and serves with --server.
var rootCmd = &cobra.Command{
	Use:   "riverql [query|@file]",
	Short: "Live status of the river compositor over GraphQL subscriptions",
	Long: `riverql distributes live status of the river Wayland compositor.

As a server it ingests status events, keeps the latest snapshot, and serves
graphql-transport-ws subscriptions plus JSON point queries. As a client it
subscribes and prints every payload as one JSON line on stdout.

Quick start:
  1. Pipe status records into the server: <bridge> | riverql --server
  2. Subscribe: 'subscription { events(types: [SEAT_MODE]) { ... on SeatMode { name } } }'

The query may also come from a file (@query.graphql) or be piped into stdin.

Example config:
  listen: unix://${XDG_RUNTIME_DIR}/riverql.sock
  bus_capacity: 1024
  source:
    type: stream
    path: "-"`,
	Args:          cobra.MaximumNArgs(1),
	SilenceUsage:  true,
	Version:       version,
	RunE:          runRoot,
}

// Execute runs the root command.
// This is the main entry point called from main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		// Cobra already prints the error, just exit with code 1
		os.Exit(1)
	}
}

func main() {
	Execute()
}

// versionCmd prints version information.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Print the version, commit hash, and build date of this riverql binary.`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "riverql %s\n", version)
		fmt.Fprintf(cmd.OutOrStdout(), "  commit: %s\n", commit)
		fmt.Fprintf(cmd.OutOrStdout(), "  built:  %s\n", date)
	},
}

func init() {
	rootCmd.SetVersionTemplate("riverql {{.Version}}\n")

	flags := rootCmd.PersistentFlags()
	flags.StringP("config", "c", "", "path to config file")
	flags.String("listen", "", "server listen address (unix://path, tcp://host:port, host:port, or a socket path)")
	flags.String("endpoint", "", "subscriber endpoint (unix://path#/graphql, ws://, wss://, http://, https://, host:port)")
	flags.String("log-level", "", "log level: debug, info, warn, error")

	rootCmd.Flags().Bool("server", false, "run the server instead of subscribing")
	rootCmd.Flags().String("variables", "", "JSON object of subscription variables")

	// Register subcommands with root
	rootCmd.AddCommand(versionCmd)
}

func runRoot(cmd *cobra.Command, args []string) error {
	asServer, _ := cmd.Flags().GetBool("server")
	if !asServer {
		return runSubscribe(cmd, args)
	}

	if len(args) > 0 {
		return errors.New("--server does not take a query")
	}
	if cmd.Flags().Changed("endpoint") {
		return errors.New("--server cannot be combined with --endpoint")
	}
	if cmd.Flags().Changed("variables") {
		return errors.New("--server cannot be combined with --variables")
	}
	return runServe(cmd, args)
}

// loadConfig reads --config, or the defaults without one, and applies the
// persistent flag overrides.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	var cfg *config.Config
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = loaded
	} else {
		cfg = config.Default()
	}

	if cmd.Flags().Changed("listen") {
		v, _ := cmd.Flags().GetString("listen")
		if err := cfg.SetListen(v); err != nil {
			return nil, fmt.Errorf("--listen: %w", err)
		}
	}
	if cmd.Flags().Changed("endpoint") {
		v, _ := cmd.Flags().GetString("endpoint")
		if err := cfg.SetEndpoint(v); err != nil {
			return nil, fmt.Errorf("--endpoint: %w", err)
		}
	}
	if cmd.Flags().Changed("log-level") {
		v, _ := cmd.Flags().GetString("log-level")
		if err := cfg.SetLogLevel(v); err != nil {
			return nil, fmt.Errorf("--log-level: %w", err)
		}
	}
	return cfg, nil
}
