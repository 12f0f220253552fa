package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/trace"

	"github.com/biosignalml/tstore/pkg/telemetry"
	"github.com/biosignalml/tstore/pkg/triplestore"
)

func newAddCommand() *cobra.Command {
	var graph string

	cmd := &cobra.Command{
		Use:   "add <subject> <predicate> <object>",
		Short: "Add a statement",
		Long: `Add one statement to the store, optionally in a named context.

Adding a statement that is already present is not an error.`,
		Example: `  # Add to the default graph
  tstore add urn:rec:1 rdf:type bsml:Recording

  # Add to a named context
  tstore add urn:rec:1 dct:title ECG --context urn:graph:1`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			q := triplestore.Quad{
				Subject:   args[0],
				Predicate: args[1],
				Object:    args[2],
				Context:   graph,
			}
			if err := q.Validate(); err != nil {
				return err
			}

			return withStore(cmd, "", "add", func(ctx context.Context, a *app, h *triplestore.Handle) error {
				if err := h.Storage().Add(ctx, q); err != nil {
					return fmt.Errorf("failed to add statement: %w", err)
				}
				trace.SpanFromContext(ctx).SetAttributes(telemetry.AttrStatements.Int(1))
				a.log.WithStore(h.Name(), h.Backend()).Debugf("added %s", q)

				if jsonOutput {
					return a.printJSON(q)
				}
				fmt.Fprintf(a.out, "Added %s\n", q)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&graph, "context", "", "named context (graph) for the statement")

	return cmd
}
