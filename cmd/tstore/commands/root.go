package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	configPath  string
	verbose     bool
	jsonOutput  bool
	backend     string
	connection  string
	storeName   string
	metricsAddr string

	buildVersion = "dev"
)

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	buildVersion = version

	rootCmd := &cobra.Command{
		Use:   "tstore",
		Short: "tstore - open, create and query RDF triple stores",
		Long: `tstore opens a named RDF triple store, creating it when it does not exist
yet, and runs simple statement operations against it.

Backends:
  - postgresql (default): connection options host, port, database, user, password
  - sqlite: one database file per store name
  - memory: lives for the duration of one command

Store defaults come from the config file and TSTORE_* environment variables;
--backend and --connection override them for one invocation.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file path (.yaml or .cue)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")
	rootCmd.PersistentFlags().StringVarP(&backend, "backend", "b", "", "storage backend (postgresql, sqlite, memory)")
	rootCmd.PersistentFlags().StringVar(&connection, "connection", "", "connection options, e.g. host='db',database='rdf'")
	rootCmd.PersistentFlags().StringVarP(&storeName, "name", "n", "", "store name")
	rootCmd.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address while the command runs")

	rootCmd.AddCommand(newOpenCommand())
	rootCmd.AddCommand(newAddCommand())
	rootCmd.AddCommand(newMatchCommand())
	rootCmd.AddCommand(newContextsCommand())
	rootCmd.AddCommand(newDropContextCommand())

	return rootCmd
}
