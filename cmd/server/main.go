package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"mongokit/internal/config"
)

var (
	// Version задаётся при сборке
	Version = "dev"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "mongokit",
		Short: "Document models from DSL over MongoDB",
		Long: `mongokit loads model definitions from DSL files, registers them on named
MongoDB connections (or an in-memory store) and serves them over HTTP.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	config.Bind(root.PersistentFlags())

	root.AddCommand(newServeCmd())
	root.AddCommand(newDescribeCmd())
	root.AddCommand(newIndexesCmd())
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
