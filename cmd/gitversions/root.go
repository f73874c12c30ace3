package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "gitversions",
		Short:         "Dump and restore typed records through a versioned backup repository",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.AddCommand(newDumpCmd())
	cmd.AddCommand(newRestoreCmd())
	return cmd
}

func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}
