package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

// NewRootCmd returns the root cobra command for the instance-provision CLI.
func NewRootCmd(stdout, stderr io.Writer) *cobra.Command {
	a := newApp(stdout, stderr)
	cmd := &cobra.Command{
		Use:           "instance-provision",
		Short:         "Provision instance directories from a layered template network",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load(cmd)
		},
	}

	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	addGlobalFlags(cmd, a)

	cmd.AddCommand(newVersionCmd(stdout))
	cmd.AddCommand(newCreateCmd(a))
	cmd.AddCommand(newPlayerCmd(a))
	cmd.AddCommand(newWorldCmd(a))
	cmd.AddCommand(newListCmd(a))
	cmd.AddCommand(newVerifyCmd(a))
	cmd.AddCommand(newResolveCmd(a))

	return cmd
}

// Execute runs the CLI with the process stdio.
func Execute() int {
	root := NewRootCmd(os.Stdout, os.Stderr)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}
