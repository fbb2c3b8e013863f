package analysis

import (
	"encoding/json"
	"strings"

	"github.com/foliolens/foliolens/llm"
)

// truncationThreshold is the share of the output-token ceiling above which
// an unparseable max_tokens response is classified as truncated rather
// than malformed.
const truncationThreshold = 0.95

// Extract converts the backend's raw final text into a validated
// AnalysisResult or a classified failure. It is a pure function: fence
// stripping, parse classification, and validation live here and nowhere
// else.
//
// stopReason, outputTokens, and tokenCeiling feed the truncation
// heuristic: a parse failure on a length-exhausted response whose output
// was within ~5% of the ceiling is truncation, not malformation.
func Extract(raw string, stopReason llm.StopReason, outputTokens, tokenCeiling int) (*AnalysisResult, error) {
	payload := stripFences(raw)

	var result AnalysisResult
	if err := json.Unmarshal([]byte(payload), &result); err != nil {
		if nearCeiling(stopReason, outputTokens, tokenCeiling) {
			return nil, &Error{
				Class:   FailTruncated,
				Message: "the analysis was cut off at the output-token limit; reduce the number of documents or holdings and try again",
				Cause:   err,
			}
		}
		return nil, &Error{
			Class:   FailMalformed,
			Message: "the backend's final answer was not valid structured data; retrying the request may help",
			Cause:   err,
		}
	}

	if result.Error != "" {
		return nil, &Error{
			Class:   FailSemantic,
			Message: "the backend could not produce this analysis: " + result.Error,
		}
	}

	if !result.Valid() {
		return nil, &Error{
			Class:   FailStructural,
			Message: "the backend's answer parsed but is missing the narrative or chart data",
		}
	}

	return &result, nil
}

func nearCeiling(stopReason llm.StopReason, outputTokens, tokenCeiling int) bool {
	return stopReason == llm.StopMaxTokens &&
		tokenCeiling > 0 &&
		float64(outputTokens) >= truncationThreshold*float64(tokenCeiling)
}

// stripFences removes incidental Markdown fencing around the structured
// payload. The first fenced block explicitly labeled json wins; failing
// that, bare leading/trailing fence markers are stripped defensively for
// backends that fence without labeling.
func stripFences(raw string) string {
	text := strings.TrimSpace(raw)

	if start := strings.Index(text, "```json"); start != -1 {
		body := text[start+len("```json"):]
		if end := strings.Index(body, "```"); end != -1 {
			return strings.TrimSpace(body[:end])
		}
		// Unterminated labeled fence: likely truncated output; return the
		// body so the parse failure is classified upstream.
		return strings.TrimSpace(body)
	}

	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	return strings.TrimSpace(text)
}
