package analysis

import "strings"

// Mode is an analysis profile: the system prompt driving the backend, the
// progress policy tuned to how many tool calls the mode is expected to
// issue, and the iteration ceiling bounding the conversation loop.
type Mode struct {
	Name          string
	SystemPrompt  string
	Progress      ProgressPolicy
	MaxIterations int
}

// searchIterationCeiling applies when live web search is registered: each
// tool call may reach the open network, so the loop is bounded tighter.
const searchIterationCeiling = 30

// IterationCeiling returns the effective loop bound for this mode.
func (m Mode) IterationCeiling(liveSearch bool) int {
	if liveSearch && m.MaxIterations > searchIterationCeiling {
		return searchIterationCeiling
	}
	return m.MaxIterations
}

// StandardMode returns the default analysis profile: allocation breakdown
// and risk comparison, expected to issue a modest number of lookups.
func StandardMode() Mode {
	return Mode{
		Name:          "standard",
		SystemPrompt:  buildSystemPrompt(false),
		Progress:      ProgressPolicy{Buffer: 4, Cap: 90},
		MaxIterations: 100,
	}
}

// RiskSummaryMode returns the extended profile that additionally computes a
// full risk summary. It issues many more lookups (pairwise correlations),
// so the progress curve is flatter and caps higher.
func RiskSummaryMode() Mode {
	return Mode{
		Name:          "risk_summary",
		SystemPrompt:  buildSystemPrompt(true),
		Progress:      ProgressPolicy{Buffer: 10, Cap: 95},
		MaxIterations: 100,
	}
}

// ModeByName resolves a caller-supplied mode name, defaulting to standard.
func ModeByName(name string) Mode {
	if strings.EqualFold(name, "risk_summary") {
		return RiskSummaryMode()
	}
	return StandardMode()
}

func buildSystemPrompt(riskSummary bool) string {
	var sb strings.Builder

	sb.WriteString(`You are an investment portfolio analyst. You receive extracted text and documents describing an investor's portfolio, together with the investor's profile. Produce a clear, data-backed analysis.

# Working method

- Identify the portfolio's holdings and map each to an asset class.
- Use the provided tools to fetch expected returns, volatilities, and correlations. Never invent reference figures; if a lookup fails, say so in the narrative and continue with what you have.
- If a web search tool is available, use it to resolve unfamiliar fund names before classifying them.
- Issue tool calls in dependency order: fetch individual asset class metrics before pairwise correlations.
`)

	if riskSummary {
		sb.WriteString(`- Compute a full portfolio risk summary: aggregate portfolio volatility from the per-class volatilities, weights, and pairwise correlations, and compare it against a 60/40 benchmark.
`)
	}

	sb.WriteString(`
# Output format

When your analysis is complete, respond with a single JSON object inside a fenced block labeled json:

` + "```json" + `
{
  "markdown": "# Portfolio Analysis\n...full narrative in Markdown...",
  "chartData": {
    "allocation": [{"name": "US Large Cap", "value": 40.0}],
    "riskComparison": [{"label": "Volatility", "portfolio": 12.4, "benchmark": 10.1}],
    "performance": [{"name": "VTSAX", "period": "1Y", "return": 8.2}]
  }
}
` + "```" + `

- "markdown" and "chartData.allocation" are required and must be non-empty.
- "performance" is optional; include it when per-holding figures are available.
- If you cannot produce the analysis at all, respond with {"error": "<reason>"} instead.
- Do not put any text outside the fenced block in your final answer.`)

	return sb.String()
}
