package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/foliolens/foliolens/llm"
)

// Tool names offered to the backend.
const (
	ToolAssetClassMetrics = "get_asset_class_metrics"
	ToolListAssetClasses  = "list_asset_classes"
	ToolCorrelation       = "get_correlation"
	ToolWebSearch         = "web_search"
)

// AssetClassMetrics holds the static reference figures for one asset class.
type AssetClassMetrics struct {
	AnnualReturn float64 `json:"annual_return"`
	Volatility   float64 `json:"volatility"`
}

// ReferenceData is the static lookup collaborator: per-asset-class return
// and volatility figures plus pairwise correlations. Implementations are
// pure lookups with no side effects.
type ReferenceData interface {
	Classes(ctx context.Context) ([]string, error)
	Metrics(ctx context.Context, assetClass string) (AssetClassMetrics, error)
	Correlation(ctx context.Context, classA, classB string) (float64, error)
}

// SearchResult is one ranked snippet from the live web-search collaborator.
type SearchResult struct {
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
	URL     string `json:"url"`
}

// WebSearch is the optional live search collaborator.
type WebSearch interface {
	Search(ctx context.Context, query string, limit int) ([]SearchResult, error)
}

type assetClassArgs struct {
	AssetClass string `json:"asset_class" jsonschema:"required" jsonschema_description:"Asset class name, e.g. 'us_large_cap' or 'emerging_markets'"`
}

type correlationArgs struct {
	ClassA string `json:"class_a" jsonschema:"required" jsonschema_description:"First asset class name"`
	ClassB string `json:"class_b" jsonschema:"required" jsonschema_description:"Second asset class name"`
}

type searchArgs struct {
	Query string `json:"query" jsonschema:"required" jsonschema_description:"Search query, e.g. a fund name or ticker"`
}

// RegisterMarketDataTools registers the static reference-data lookups.
func RegisterMarketDataTools(reg *ToolRegistry, data ReferenceData) {
	reg.Register(RegisteredTool{
		Definition: llmToolDef(
			ToolListAssetClasses,
			"List the asset class identifiers available in the reference tables. Call this first if you are unsure which identifier matches a holding.",
			map[string]interface{}{"type": "object", "properties": map[string]interface{}{}},
		),
		Executor: func(ctx context.Context, _ json.RawMessage) (string, error) {
			classes, err := data.Classes(ctx)
			if err != nil {
				return "", err
			}
			return strings.Join(classes, "\n"), nil
		},
	})

	reg.Register(RegisteredTool{
		Definition: llmToolDef(
			ToolAssetClassMetrics,
			"Look up the long-run expected annual return and volatility for an asset class from the static reference tables.",
			SchemaFor[assetClassArgs](),
		),
		Executor: func(ctx context.Context, raw json.RawMessage) (string, error) {
			var args assetClassArgs
			if err := json.Unmarshal(raw, &args); err != nil {
				return "", fmt.Errorf("parsing arguments: %w", err)
			}
			m, err := data.Metrics(ctx, args.AssetClass)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("%s: expected annual return %.2f%%, volatility %.2f%%",
				args.AssetClass, m.AnnualReturn*100, m.Volatility*100), nil
		},
	})

	reg.Register(RegisteredTool{
		Definition: llmToolDef(
			ToolCorrelation,
			"Look up the pairwise return correlation between two asset classes from the static reference tables.",
			SchemaFor[correlationArgs](),
		),
		Executor: func(ctx context.Context, raw json.RawMessage) (string, error) {
			var args correlationArgs
			if err := json.Unmarshal(raw, &args); err != nil {
				return "", fmt.Errorf("parsing arguments: %w", err)
			}
			c, err := data.Correlation(ctx, args.ClassA, args.ClassB)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("correlation(%s, %s) = %.2f", args.ClassA, args.ClassB, c), nil
		},
	})
}

// RegisterSearchTools registers the live web-search tool. When search is
// registered the conversation loop runs with a lower iteration ceiling,
// since each call reaches the open network.
func RegisterSearchTools(reg *ToolRegistry, search WebSearch) {
	reg.Register(RegisteredTool{
		Definition: llmToolDef(
			ToolWebSearch,
			"Search the web for current information about a fund, ticker, or market topic. Returns ranked text snippets with source URLs.",
			SchemaFor[searchArgs](),
		),
		Executor: func(ctx context.Context, raw json.RawMessage) (string, error) {
			var args searchArgs
			if err := json.Unmarshal(raw, &args); err != nil {
				return "", fmt.Errorf("parsing arguments: %w", err)
			}
			results, err := search.Search(ctx, args.Query, 5)
			if err != nil {
				return "", err
			}
			if len(results) == 0 {
				return "No results found for: " + args.Query, nil
			}
			var sb strings.Builder
			for i, r := range results {
				fmt.Fprintf(&sb, "%d. %s\n%s\nSource: %s\n\n", i+1, r.Title, r.Snippet, r.URL)
			}
			return sb.String(), nil
		},
	})
}

func llmToolDef(name, description string, params map[string]interface{}) llm.ToolDefinition {
	return llm.ToolDefinition{
		Name:        name,
		Description: description,
		Parameters:  params,
	}
}

// ProgressLabel synthesizes a human-readable label for one tool call from
// the tool name and its key argument.
func ProgressLabel(name string, arguments json.RawMessage) string {
	args, err := ParseToolArguments(arguments)
	if err != nil {
		args = nil
	}

	switch name {
	case ToolAssetClassMetrics:
		if class, ok := GetStringArg(args, "asset_class"); ok {
			return fmt.Sprintf("Looking up metrics for %s", humanizeClass(class))
		}
		return "Looking up asset class metrics"
	case ToolCorrelation:
		a, okA := GetStringArg(args, "class_a")
		b, okB := GetStringArg(args, "class_b")
		if okA && okB {
			return fmt.Sprintf("Fetching correlation between %s and %s", humanizeClass(a), humanizeClass(b))
		}
		return "Fetching correlation data"
	case ToolListAssetClasses:
		return "Listing available asset classes"
	case ToolWebSearch:
		if query, ok := GetStringArg(args, "query"); ok {
			return fmt.Sprintf("Searching for %q", query)
		}
		return "Searching the web"
	default:
		return "Running " + name
	}
}

func humanizeClass(class string) string {
	return strings.ReplaceAll(class, "_", " ")
}
