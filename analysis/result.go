package analysis

// AnalysisResult is the validated terminal structure of one analysis
// request: a free-form narrative plus the structured chart payload the
// presentation layer renders. A result is all-or-nothing — both fields must
// be present and non-empty before it is forwarded to a caller.
type AnalysisResult struct {
	Markdown  string     `json:"markdown"`
	ChartData *ChartData `json:"chartData"`

	// Error carries a backend-reported semantic failure: the backend can
	// signal "I cannot produce this analysis" as data rather than as a
	// stop condition.
	Error string `json:"error,omitempty"`
}

// ChartData holds the structured analysis broken down for charting.
type ChartData struct {
	Allocation     []AllocationSlice  `json:"allocation"`
	RiskComparison []RiskEntry        `json:"riskComparison"`
	Performance    []PerformancePoint `json:"performance,omitempty"`
}

// AllocationSlice is one asset-class slice of the portfolio breakdown,
// with Value as a percentage weight.
type AllocationSlice struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

// RiskEntry compares portfolio risk against a benchmark for one dimension.
type RiskEntry struct {
	Label     string  `json:"label"`
	Portfolio float64 `json:"portfolio"`
	Benchmark float64 `json:"benchmark"`
}

// PerformancePoint is an optional per-holding performance record.
type PerformancePoint struct {
	Name   string  `json:"name"`
	Period string  `json:"period"`
	Return float64 `json:"return"`
}

// Valid reports whether the result satisfies the all-or-nothing contract:
// a non-empty narrative and non-empty chart data.
func (r *AnalysisResult) Valid() bool {
	return r != nil &&
		r.Markdown != "" &&
		r.ChartData != nil &&
		len(r.ChartData.Allocation) > 0
}

// RunMetadata is observability data attached to a successful result.
type RunMetadata struct {
	Model        string `json:"model"`
	Provider     string `json:"provider"`
	Iterations   int    `json:"iterations"`
	ToolCalls    int    `json:"toolCalls"`
	InputTokens  int    `json:"inputTokens"`
	OutputTokens int    `json:"outputTokens"`
	DurationMs   int64  `json:"durationMs"`
}
