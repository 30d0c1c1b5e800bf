package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"mongokit/internal/descriptor"
	"mongokit/internal/odm"
)

var (
	dbColor     = color.New(color.FgCyan)
	modelColor  = color.New(color.FgGreen, color.Bold)
	parentColor = color.New(color.Faint)
)

func newDescribeCmd() *cobra.Command {
	var (
		format  string
		keys    string
		noColor bool
	)
	cmd := &cobra.Command{
		Use:   "describe [db/]model",
		Short: "List registered models or print a model descriptor as JSON",
		Example: `  mongokit describe
  mongokit describe Order --keys number,status
  mongokit describe billing/Invoice --format tree`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if noColor {
				color.NoColor = true
			}
			f := odm.Format(format)
			if f != odm.FormatDescriptor && f != odm.FormatTree {
				return fmt.Errorf("format must be %s or %s", odm.FormatDescriptor, odm.FormatTree)
			}
			a, err := loadApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close(cmd.Context())

			out := cmd.OutOrStdout()
			if len(args) == 0 {
				printModels(out, a.mgr)
				return nil
			}
			db, name := splitModelArg(args[0])
			m, err := a.mgr.Model(db, name)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(a.mgr.GetSchemaDescription(m, f, descriptor.ParseKeyFilter(keys)))
		},
	}
	cmd.Flags().StringVar(&format, "format", string(odm.FormatDescriptor), "Output format: descriptor or tree")
	cmd.Flags().StringVar(&keys, "keys", "", "Comma-separated top-level keys to keep")
	cmd.Flags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	return cmd
}

// splitModelArg: "billing/Invoice" -> (billing, Invoice); без базы — main.
func splitModelArg(arg string) (string, string) {
	if db, name, ok := strings.Cut(arg, "/"); ok {
		return db, name
	}
	return odm.DefaultConnection, arg
}

func printModels(w io.Writer, mgr *odm.Manager) {
	for _, db := range mgr.Connections() {
		for _, m := range mgr.Models(db) {
			line := dbColor.Sprint(db) + "/" + modelColor.Sprint(m.Name()) + "  " + m.CollectionName()
			if p := m.Parent(); p != nil {
				line += parentColor.Sprintf("  extends %s (%s)", p.Name(), m.Discriminator())
			}
			fmt.Fprintln(w, line)
		}
	}
}
