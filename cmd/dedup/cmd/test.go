package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newTestCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "test <index> <schema>",
		Short: "Run the integrity self-test of an index",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTest(cmd.Context(), cmd, opts, args[0], args[1])
		},
	}
}

func runTest(ctx context.Context, cmd *cobra.Command, opts *globalOptions, index, schema string) error {
	c, cleanup, err := opts.openClient(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	ok, err := c.Test(ctx, index, schema)
	if err != nil {
		return err
	}
	if !ok {
		fmt.Fprintln(cmd.OutOrStdout(), "Index is BAD!")
		return fmt.Errorf("index %s failed the self-test", index)
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Index is OK!")
	return nil
}
