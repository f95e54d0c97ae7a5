package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kailas-cloud/dedup"
	"github.com/kailas-cloud/dedup/internal/record"
)

// queryOptions holds CLI flags for query.
type queryOptions struct {
	database string
	schema   string
	quantity int
	id       string
	raw      bool
}

func newQueryCmd(opts *globalOptions) *cobra.Command {
	var qo queryOptions

	cmd := &cobra.Command{
		Use:   "query --database <selector> --schema <schema> <field=value>...",
		Short: "Run a duplicate query from the command line",
		Long: `Run a duplicate query against one index or a union group of indexes.

Examples:
  dedup query -d lilacs -s lilacs_Sas titulo_artigo="Cancer treatment"
  dedup query -d 'lilacs//@//medline' -s lilacs_Sas titulo_artigo="Cancer" ano_publicacao=2001 -n 5`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(cmd.Context(), cmd, opts, qo, args)
		},
	}

	cmd.Flags().StringVarP(&qo.database, "database", "d", "", "Index name or union group")
	cmd.Flags().StringVarP(&qo.schema, "schema", "s", "", "Schema name")
	_ = cmd.MarkFlagRequired("database")
	_ = cmd.MarkFlagRequired("schema")
	cmd.Flags().IntVarP(&qo.quantity, "quantity", "n", 0, "Maximum number of duplicates (default from config)")
	cmd.Flags().StringVar(&qo.id, "id", "", "Identifier of the queried record")
	cmd.Flags().BoolVar(&qo.raw, "raw", false, "Print raw hit lines instead of JSON")

	return cmd
}

// queryParams builds the request parameters from positional field=value pairs.
func queryParams(pairs []string, qo queryOptions) (url.Values, error) {
	params := url.Values{"database": {qo.database}, "schema": {qo.schema}}
	for _, p := range pairs {
		name, value, ok := strings.Cut(p, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("expected field=value, got %q", p)
		}
		params.Add(name, value)
	}
	if qo.quantity > 0 {
		params.Set("quantity", strconv.Itoa(qo.quantity))
	}
	if qo.id != "" {
		params.Set("id", qo.id)
	}
	return params, nil
}

func runQuery(ctx context.Context, cmd *cobra.Command, opts *globalOptions, qo queryOptions, args []string) error {
	params, err := queryParams(args, qo)
	if err != nil {
		return err
	}

	c, cleanup, err := opts.openClient(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	out := cmd.OutOrStdout()
	if qo.raw {
		line, err := rawLine(c.Schema, params)
		if err != nil {
			return err
		}
		hits, err := c.RawDuplicates(ctx, qo.database, qo.schema, []byte(line))
		if err != nil {
			return err
		}
		for _, h := range hits {
			fmt.Fprintln(out, h)
		}
		return nil
	}

	resp, err := c.Duplicates(ctx, params)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(resp)
}

// rawLine lays params out as a flat record of the named schema. The id field
// defaults to the wildcard.
func rawLine(lookup func(string) (dedup.SchemaDoc, error), params url.Values) (string, error) {
	doc, err := lookup(params.Get("schema"))
	if err != nil {
		return "", err
	}
	fields := make([]string, len(doc.Fields))
	for _, f := range doc.Fields {
		v := params.Get(f.Name)
		if f.Name == "id" && v == "" {
			v = record.WildcardID
		}
		fields[f.Pos] = v
	}
	return record.Encode(fields), nil
}
