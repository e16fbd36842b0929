// Package tools provides MCP tool implementations for ekaya-discover.
package tools

import (
	"context"
	"fmt"
	"math"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-discover/pkg/logging"
	"github.com/ekaya-inc/ekaya-discover/pkg/models"
	"github.com/ekaya-inc/ekaya-discover/pkg/rules"
	"github.com/ekaya-inc/ekaya-discover/pkg/services"
)

// DiscoveryToolDeps contains dependencies for the discovery tools.
type DiscoveryToolDeps struct {
	Discovery services.DiscoveryService
	Logger    *zap.Logger
}

// RegisterDiscoveryTools registers list_rules, scan_columns, scan_summary and run_msql.
func RegisterDiscoveryTools(s *server.MCPServer, deps *DiscoveryToolDeps) {
	registerListRulesTool(s, deps)
	registerScanColumnsTool(s, deps)
	registerScanSummaryTool(s, deps)
	registerRunMsqlTool(s, deps)
}

type listRulesResult struct {
	Rules []rules.RuleInfo `json:"rules"`
	Total int              `json:"total"`
}

func registerListRulesTool(s *server.MCPServer, deps *DiscoveryToolDeps) {
	tool := mcp.NewTool(
		"list_rules",
		mcp.WithDescription(
			"List the rules columns can be matched against, in registration order. Each rule has a "+
				"name, the column data type it applies to, its kind (regex, range, predicate) and a description. "+
				"Use the names in scan_columns(rules=...) and as [rule] placeholders in run_msql templates.",
		),
		mcp.WithString(
			"select",
			mcp.Description("Optional filter expression over rule names, e.g. 'ip_*' or 'ip_*,-ip_v6'. Defaults to every rule."),
		),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		sel, err := rules.ParseSelector(getOptionalString(req, "select"))
		if err != nil {
			return NewErrorResult("invalid_parameters", err.Error()), nil
		}

		selected, err := deps.Discovery.Rules(sel)
		if err != nil {
			return serviceErrorResult(err)
		}

		infos := make([]rules.RuleInfo, 0, len(selected))
		for _, r := range selected {
			infos = append(infos, rules.RuleInfo{
				Name:        r.Name,
				Type:        r.Type,
				Kind:        r.Kind,
				Description: r.Description,
				Builtin:     r.Builtin,
			})
		}
		return jsonResult(listRulesResult{Rules: infos, Total: len(infos)})
	})
}

func registerScanColumnsTool(s *server.MCPServer, deps *DiscoveryToolDeps) {
	tool := mcp.NewTool(
		"scan_columns",
		mcp.WithDescription(
			"Scan the columns of the selected tables, measure for each (column, rule) pair the fraction of "+
				"non-null values matching the rule and classify the columns whose fraction exceeds the threshold. "+
				"Omitted parameters use the server defaults. With dry_run=true the per-table SQL is returned "+
				"instead of being executed. The result becomes the latest scan used by scan_summary and run_msql.",
		),
		mcp.WithString("catalogs", mcp.Description("Catalog filter expression, e.g. 'warehouse' or '*'")),
		mcp.WithString("databases", mcp.Description("Database (schema) filter expression, e.g. 'public,-staging'")),
		mcp.WithString("tables", mcp.Description("Table filter expression, e.g. 'cust*,-cust_tmp*'")),
		mcp.WithArray(
			"rules",
			mcp.Description("Rules to apply: one filter expression such as ['ip_*'] or several exact rule names"),
			mcp.WithStringItems(),
		),
		mcp.WithNumber("sample_size", mcp.Description("Rows read per table; 0 scans the whole table")),
		mcp.WithBoolean("dry_run", mcp.Description("Return the SQL without executing it")),
		mcp.WithNumber("threshold", mcp.Description("Classification threshold in [0, 1]; a column is classified when its frequency is strictly greater")),
		mcp.WithString("policy", mcp.Description("'all' keeps every rule above the threshold, 'best' keeps the highest"), mcp.Enum("all", "best")),
		mcp.WithString("evaluation", mcp.Description("'pushdown' computes frequencies in the database, 'local' samples rows and matches in process"), mcp.Enum("pushdown", "local")),
		mcp.WithArray("tags", mcp.Description("Only scan objects carrying one of these tags"), mcp.WithStringItems()),
		mcp.WithString("tag_level", mcp.Description("Where tags are read: catalog, database, table or column")),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(false),
		mcp.WithOpenWorldHintAnnotation(true),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		scanReq, err := scanRequestFromArgs(req)
		if err != nil {
			return NewErrorResult("invalid_parameters", err.Error()), nil
		}

		report, err := deps.Discovery.Scan(ctx, scanReq, nil)
		if err != nil {
			deps.Logger.Warn("scan_columns failed", zap.String("error", logging.SanitizeError(err)))
			return serviceErrorResult(err)
		}
		return jsonResult(report)
	})
}

func scanRequestFromArgs(req mcp.CallToolRequest) (services.ScanRequest, error) {
	scanReq := services.ScanRequest{
		Catalogs:   getOptionalString(req, "catalogs"),
		Databases:  getOptionalString(req, "databases"),
		Tables:     getOptionalString(req, "tables"),
		Policy:     getOptionalString(req, "policy"),
		Evaluation: getOptionalString(req, "evaluation"),
		TagLevel:   getOptionalString(req, "tag_level"),
	}

	var err error
	if scanReq.Rules, err = getOptionalStringList(req, "rules"); err != nil {
		return scanReq, err
	}
	if scanReq.Tags, err = getOptionalStringList(req, "tags"); err != nil {
		return scanReq, err
	}
	if n, ok := getOptionalFloat(req, "sample_size"); ok {
		if n < 0 || n != math.Trunc(n) {
			return scanReq, fmt.Errorf("sample_size must be a non-negative integer, got %v", n)
		}
		size := int(n)
		scanReq.SampleSize = &size
	}
	if dryRun, ok := getOptionalBool(req, "dry_run"); ok {
		scanReq.DryRun = &dryRun
	}
	if threshold, ok := getOptionalFloat(req, "threshold"); ok {
		scanReq.Threshold = &threshold
	}
	return scanReq, nil
}

type scanSummaryResult struct {
	ScanID    string                  `json:"scan_id"`
	Message   string                  `json:"message"`
	Succeeded int                     `json:"succeeded"`
	Skipped   int                     `json:"skipped"`
	Failures  []services.TableFailure `json:"failures,omitempty"`
	Summary   *models.ScanSummary     `json:"summary"`
}

func registerScanSummaryTool(s *server.MCPServer, deps *DiscoveryToolDeps) {
	tool := mcp.NewTool(
		"scan_summary",
		mcp.WithDescription(
			"Summarize the latest scan: classified columns and per-rule counts. Passing threshold or policy "+
				"reclassifies the stored frequencies without rescanning.",
		),
		mcp.WithNumber("threshold", mcp.Description("Classification threshold in [0, 1]")),
		mcp.WithString("policy", mcp.Description("'all' or 'best'"), mcp.Enum("all", "best")),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		report, err := deps.Discovery.LatestScan()
		if err != nil {
			return serviceErrorResult(err)
		}

		summary, message := report.Summary, report.Message
		threshold, hasThreshold := getOptionalFloat(req, "threshold")
		policy := getOptionalString(req, "policy")
		if hasThreshold || policy != "" {
			if !hasThreshold {
				threshold = report.Summary.Threshold
			}
			p := report.Summary.Policy
			if policy != "" {
				p = models.ClassificationPolicy(policy)
			}
			summary, err = deps.Discovery.Reclassify(threshold, p)
			if err != nil {
				return serviceErrorResult(err)
			}
			message = services.DescribeSummary(summary, report.Succeeded, report.Skipped)
		}

		return jsonResult(scanSummaryResult{
			ScanID:    report.ScanID.String(),
			Message:   message,
			Succeeded: report.Succeeded,
			Skipped:   report.Skipped,
			Failures:  report.Failures,
			Summary:   summary,
		})
	})
}

func registerRunMsqlTool(s *server.MCPServer, deps *DiscoveryToolDeps) {
	tool := mcp.NewTool(
		"run_msql",
		mcp.WithDescription(
			"Run a matched-SQL template against the columns classified by the latest scan. "+
				"[rule] placeholders expand to the classified columns of each table; [rule:all] keeps only "+
				"tables where every placeholder has a column. The FROM clause takes catalog.database.table "+
				"filter expressions. Example: SELECT [ip_v4] AS ip FROM *.*.*. Only SELECT templates are accepted.",
		),
		mcp.WithString("template", mcp.Required(), mcp.Description("The msql SELECT template")),
		mcp.WithBoolean("dry_run", mcp.Description("Return the expanded SQL without executing it")),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(true),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		template, err := req.RequireString("template")
		if err != nil || trimString(template) == "" {
			return NewErrorResult("invalid_parameters", "template is required"), nil
		}
		dryRun, _ := getOptionalBool(req, "dry_run")

		result, err := deps.Discovery.Msql(ctx, template, dryRun)
		if err != nil {
			deps.Logger.Warn("run_msql failed", zap.String("error", logging.SanitizeError(err)))
			return serviceErrorResult(err)
		}
		return jsonResult(result)
	})
}
