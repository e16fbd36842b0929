package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/ekaya-inc/ekaya-discover/pkg/services"
)

// scanFlags are the per-run overrides of the scan section of the configuration.
type scanFlags struct {
	catalogs   string
	databases  string
	tables     string
	rules      []string
	sampleSize int
	dryRun     bool
	threshold  float64
	policy     string
	evaluation string
	workers    int
	tags       []string
	tagLevel   string
	jsonOutput bool
}

func (f *scanFlags) bind(fs *pflag.FlagSet) {
	fs.StringVar(&f.catalogs, "catalogs", "", "Catalog filter (comma separated globs, -name excludes)")
	fs.StringVar(&f.databases, "databases", "", "Database (schema) filter")
	fs.StringVar(&f.tables, "tables", "", "Table filter")
	fs.StringSliceVar(&f.rules, "rules", nil, "Rules to evaluate: names, or a single glob filter")
	fs.IntVar(&f.sampleSize, "sample-size", 0, "Rows sampled per table; 0 scans the full table")
	fs.BoolVar(&f.dryRun, "dry-run", false, "Render the scan queries without executing them")
	fs.Float64Var(&f.threshold, "threshold", 0, "Minimum match frequency (exclusive) for a column to be classified")
	fs.StringVar(&f.policy, "policy", "", "Classification policy: all or best")
	fs.StringVar(&f.evaluation, "evaluation", "", "Evaluation mode: pushdown or local")
	fs.IntVar(&f.workers, "workers", 0, "Tables scanned concurrently")
	fs.StringSliceVar(&f.tags, "tags", nil, "Only scan objects carrying one of these tags")
	fs.StringVar(&f.tagLevel, "tag-level", "", "Level the tags apply to: catalog, database, table or column")
	fs.BoolVar(&f.jsonOutput, "json", false, "Print the report as JSON")
}

// request converts the flags into a ScanRequest. Flags left unset fall back to the
// configured defaults.
func (f *scanFlags) request(fs *pflag.FlagSet) services.ScanRequest {
	req := services.ScanRequest{
		Catalogs:   f.catalogs,
		Databases:  f.databases,
		Tables:     f.tables,
		Rules:      f.rules,
		Policy:     f.policy,
		Evaluation: f.evaluation,
		Workers:    f.workers,
		Tags:       f.tags,
		TagLevel:   f.tagLevel,
	}
	if fs.Changed("sample-size") {
		n := f.sampleSize
		req.SampleSize = &n
	}
	if fs.Changed("dry-run") {
		dry := f.dryRun
		req.DryRun = &dry
	}
	if fs.Changed("threshold") {
		t := f.threshold
		req.Threshold = &t
	}
	return req
}

func newScanCmd(configPath *string, version string) *cobra.Command {
	var flags scanFlags

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Scan the configured datasources once and print the classification",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), *configPath, version)
			if err != nil {
				return err
			}
			defer a.Close()

			progress := func(p services.TableProgress) {
				if !flags.jsonOutput {
					printProgress(cmd.ErrOrStderr(), p)
				}
			}
			report, err := a.discovery.Scan(cmd.Context(), flags.request(cmd.Flags()), progress)
			if err != nil {
				return err
			}
			if flags.jsonOutput {
				return writeJSON(cmd.OutOrStdout(), report)
			}
			return printReport(cmd.OutOrStdout(), report)
		},
	}

	flags.bind(cmd.Flags())
	return cmd
}

func printProgress(w io.Writer, p services.TableProgress) {
	if p.Err != nil {
		fmt.Fprintf(w, "[%d/%d] %s %s: %v\n", p.Index, p.Total, p.Table, p.Status, p.Err)
		return
	}
	fmt.Fprintf(w, "[%d/%d] %s %s (%d rows, %s)\n", p.Index, p.Total, p.Table, p.Status, p.Rows, p.Duration.Round(1e6))
}

func printReport(w io.Writer, report *services.ScanReport) error {
	fmt.Fprintln(w, report.Message)

	for _, q := range report.Queries {
		fmt.Fprintf(w, "\n-- %s\n%s;\n", q.Table, q.SQL)
	}

	if report.Summary != nil && len(report.Summary.Classified) > 0 {
		fmt.Fprintln(w)
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "TABLE\tCOLUMN\tRULE\tFREQUENCY")
		for _, row := range report.Summary.Classified {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%.3f\n", row.TableRef(), row.Column, row.RuleName, row.Frequency)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}

	if len(report.Failures) > 0 {
		fmt.Fprintf(w, "\nSkipped tables:\n")
		for _, f := range report.Failures {
			fmt.Fprintf(w, "  %s (%s): %s\n", f.Table, f.Stage, f.Error)
		}
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
