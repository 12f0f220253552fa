package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/biosignalml/tstore/pkg/triplestore"
)

func newMatchCommand() *cobra.Command {
	var pattern triplestore.Pattern

	cmd := &cobra.Command{
		Use:   "match",
		Short: "List statements matching a pattern",
		Long: `List the statements that match every given term. Terms left out match
anything. Results are ordered by context, subject, predicate and object.`,
		Example: `  # Everything about one subject
  tstore match --subject urn:rec:1

  # One context as JSON
  tstore match --context urn:graph:1 --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, "", "match", func(ctx context.Context, a *app, h *triplestore.Handle) error {
				quads, err := h.Storage().Match(ctx, pattern)
				if err != nil {
					return fmt.Errorf("failed to match statements: %w", err)
				}

				if jsonOutput {
					if quads == nil {
						quads = []triplestore.Quad{}
					}
					return a.printJSON(quads)
				}
				for _, q := range quads {
					fmt.Fprintln(a.out, q)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&pattern.Subject, "subject", "", "match this subject")
	cmd.Flags().StringVar(&pattern.Predicate, "predicate", "", "match this predicate")
	cmd.Flags().StringVar(&pattern.Object, "object", "", "match this object")
	cmd.Flags().StringVar(&pattern.Context, "context", "", "match this named context")

	return cmd
}
