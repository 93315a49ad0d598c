package cmd

import (
	"github.com/grovetools/modelcore/cli"
	"github.com/grovetools/modelcore/pkg/profiling"
	"github.com/spf13/cobra"
)

// NewRootCmd assembles the modelcore command tree.
func NewRootCmd() *cobra.Command {
	root := cli.NewStandardCommand(
		"modelcore",
		"Observable models, background jobs and acknowledged list removals",
	)
	profiling.NewCobraProfiler().AddFlags(root)

	root.AddCommand(NewWatchCmd())
	root.AddCommand(NewConfigCmd())
	root.AddCommand(cli.NewVersionCommand("modelcore"))
	return root
}
