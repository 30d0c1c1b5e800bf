package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"mongokit/internal/odm"
	"mongokit/internal/schema"
	"mongokit/internal/store"
)

func newIndexesCmd() *cobra.Command {
	var apply bool
	cmd := &cobra.Command{
		Use:   "indexes",
		Short: "Print the index plan of every base model, optionally create the indexes",
		Long: `Prints the indexes declared by DSL models and their plugins, one line per index.
With --apply the indexes are created on every connection; existing indexes are kept.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := loadApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close(cmd.Context())

			printIndexPlan(cmd.OutOrStdout(), a.mgr)
			if !apply {
				return nil
			}
			for _, db := range a.mgr.Connections() {
				if err := a.mgr.EnsureIndexes(cmd.Context(), db); err != nil {
					return fmt.Errorf("%s: %w", db, err)
				}
			}
			fmt.Fprintln(cmd.OutOrStdout(), modelColor.Sprint("indexes applied"))
			return nil
		},
	}
	cmd.Flags().BoolVar(&apply, "apply", false, "Create the indexes")
	return cmd
}

// printIndexPlan печатает индексы базовых моделей: дочерние делят коллекцию с базовой.
func printIndexPlan(w io.Writer, mgr *odm.Manager) {
	for _, db := range mgr.Connections() {
		for _, m := range mgr.Models(db) {
			if m.Parent() != nil {
				continue
			}
			for _, ix := range m.Schema().Indexes() {
				fmt.Fprintf(w, "%s.%s  %s  %s%s\n",
					dbColor.Sprint(db), m.CollectionName(), store.IndexName(ix), formatKeys(ix.Keys), formatFlags(ix.Options))
			}
		}
	}
}

func formatKeys(keys []schema.IndexKey) string {
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s:%d", k.Field, k.Order)
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

func formatFlags(o schema.IndexOptions) string {
	var flags []string
	if o.Unique {
		flags = append(flags, "unique")
	}
	if o.Sparse {
		flags = append(flags, "sparse")
	}
	if o.ExpireAfterSeconds != nil {
		flags = append(flags, fmt.Sprintf("ttl=%ds", *o.ExpireAfterSeconds))
	}
	if len(flags) == 0 {
		return ""
	}
	return "  " + strings.Join(flags, " ")
}
