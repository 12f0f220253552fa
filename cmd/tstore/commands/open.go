package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/biosignalml/tstore/pkg/triplestore"
)

// storeSummary is the JSON form of an opened store.
type storeSummary struct {
	Name     string   `json:"name"`
	Backend  string   `json:"backend"`
	Created  bool     `json:"created"`
	Size     int64    `json:"size"`
	Contexts []string `json:"contexts"`
}

func newOpenCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "open [name]",
		Short: "Open a store, creating it if needed",
		Long: `Open the named store and report its size.

If the store cannot be opened as it is, it is created and opened again.
An existing store is never wiped.`,
		Example: `  # Open or create the default store on the default backend
  tstore open

  # Open a sqlite store under the configured data directory
  tstore open recordings.db --backend sqlite

  # Report as JSON
  tstore open --json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, firstArg(args), "open", func(ctx context.Context, a *app, h *triplestore.Handle) error {
				st := h.Storage()
				size, err := st.Size(ctx)
				if err != nil {
					return fmt.Errorf("failed to count statements: %w", err)
				}
				contexts, err := st.Contexts(ctx)
				if err != nil {
					return fmt.Errorf("failed to list contexts: %w", err)
				}
				if contexts == nil {
					contexts = []string{}
				}

				if jsonOutput {
					return a.printJSON(storeSummary{
						Name:     h.Name(),
						Backend:  h.Backend(),
						Created:  h.Created(),
						Size:     size,
						Contexts: contexts,
					})
				}

				verb := "opened"
				if h.Created() {
					verb = "created"
				}
				fmt.Fprintf(a.out, "Store %s (%s) %s: %d statements in %d contexts\n",
					h.Name(), h.Backend(), verb, size, len(contexts))
				return nil
			})
		},
	}

	return cmd
}

func firstArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}
