package cli

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ekaya-inc/ekaya-discover/pkg/services"
)

func newMsqlCmd(configPath *string, version string) *cobra.Command {
	var (
		flags      scanFlags
		msqlDryRun bool
	)

	cmd := &cobra.Command{
		Use:   "msql <template>",
		Short: "Scan, then run an msql template against the classified columns",
		Long: "Runs a scan with the given filters, then expands the template's [rule] and\n" +
			"[rule:all] placeholders with the columns the scan classified and executes the\n" +
			"resulting statements on each table's datasource.",
		Example: `  ekaya-discover msql --rules email "SELECT [email] AS value, count(*) AS n FROM warehouse.*.* GROUP BY [email]"`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), *configPath, version)
			if err != nil {
				return err
			}
			defer a.Close()

			req := flags.request(cmd.Flags())
			runScan := false // msql needs classified columns, so the scan itself always executes
			req.DryRun = &runScan
			report, err := a.discovery.Scan(cmd.Context(), req, nil)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.ErrOrStderr(), report.Message)

			res, err := a.discovery.Msql(cmd.Context(), args[0], msqlDryRun)
			if err != nil {
				return err
			}
			if flags.jsonOutput {
				return writeJSON(cmd.OutOrStdout(), res)
			}
			return printMsql(cmd.OutOrStdout(), res)
		},
	}

	flags.bind(cmd.Flags())
	_ = cmd.Flags().MarkHidden("dry-run")
	cmd.Flags().BoolVar(&msqlDryRun, "show-sql", false, "Print the generated statements instead of executing them")
	return cmd
}

func printMsql(w io.Writer, res *services.MsqlResult) error {
	switch {
	case res.SQL != "":
		fmt.Fprintln(w, res.SQL)
	case len(res.Statements) == 0:
		fmt.Fprintln(w, "No statements generated: no table has columns classified under the referenced rules.")
	default:
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, strings.Join(res.Columns, "\t"))
		for _, row := range res.Rows {
			cells := make([]string, len(res.Columns))
			for i, col := range res.Columns {
				cells[i] = fmt.Sprint(row[col])
			}
			fmt.Fprintln(tw, strings.Join(cells, "\t"))
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}

	for _, f := range res.Failures {
		fmt.Fprintf(w, "skipped %s (%s): %s\n", f.Table, f.Stage, f.Error)
	}
	return nil
}
