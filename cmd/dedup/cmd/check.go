package cmd

import (
	"context"
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

func newCheckCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Load the registry and ping every index",
		Long: `Load the configuration and the registry document, open every index
and report backend health. Exits non-zero unless every check passes.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCheck(cmd.Context(), cmd, opts)
		},
	}
}

func runCheck(ctx context.Context, cmd *cobra.Command, opts *globalOptions) error {
	c, cleanup, err := opts.openClient(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "schemas: %v\n", c.Schemas())
	fmt.Fprintf(out, "indexes: %v\n", c.Indexes())

	report := c.Health(ctx)
	names := make([]string, 0, len(report.Checks))
	for name := range report.Checks {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(out, "  %-24s %s\n", name, report.Checks[name])
	}
	fmt.Fprintf(out, "status: %s\n", report.Status)

	if report.Status != "ok" {
		return fmt.Errorf("health status %s", report.Status)
	}
	return nil
}
