package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/trace"

	"github.com/biosignalml/tstore/pkg/telemetry"
	"github.com/biosignalml/tstore/pkg/triplestore"
)

func newContextsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "contexts",
		Short: "List named contexts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, "", "contexts", func(ctx context.Context, a *app, h *triplestore.Handle) error {
				contexts, err := h.Storage().Contexts(ctx)
				if err != nil {
					return fmt.Errorf("failed to list contexts: %w", err)
				}

				if jsonOutput {
					if contexts == nil {
						contexts = []string{}
					}
					return a.printJSON(contexts)
				}
				for _, c := range contexts {
					fmt.Fprintln(a.out, c)
				}
				return nil
			})
		},
	}

	return cmd
}

func newDropContextCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "drop-context <context>",
		Short: "Delete every statement in a named context",
		Example: `  tstore drop-context urn:graph:1`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			graph := args[0]
			return withStore(cmd, "", "drop_context", func(ctx context.Context, a *app, h *triplestore.Handle) error {
				n, err := h.Storage().DeleteContext(ctx, graph)
				if err != nil {
					return fmt.Errorf("failed to drop context %s: %w", graph, err)
				}
				trace.SpanFromContext(ctx).SetAttributes(telemetry.AttrStatements.Int64(n))
				a.log.WithStore(h.Name(), h.Backend()).
					WithFields(map[string]interface{}{"context": graph, "deleted": n}).
					Info("context dropped")

				if jsonOutput {
					return a.printJSON(map[string]interface{}{"context": graph, "deleted": n})
				}
				fmt.Fprintf(a.out, "Deleted %d statements from %s\n", n, graph)
				return nil
			})
		},
	}

	return cmd
}
