package server

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/foliolens/foliolens/llm"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// AnalyzeRequest is the caller's payload for both the streaming and
// non-streaming analysis endpoints. At least one document is required;
// the profile shapes the instructions handed to the backend.
type AnalyzeRequest struct {
	Documents []DocumentPayload `json:"documents" binding:"required" validate:"required,min=1,dive"`
	Profile   InvestorProfile   `json:"profile" validate:"required"`

	// Mode selects the analysis variant. Defaults to "standard".
	Mode string `json:"mode" validate:"omitempty,oneof=standard risk_summary"`
}

// InvestorProfile describes the caller's situation so the analysis can be
// framed against an appropriate benchmark.
type InvestorProfile struct {
	RiskTolerance string `json:"riskTolerance" validate:"required,oneof=conservative balanced growth aggressive"`
	HorizonYears  int    `json:"horizonYears" validate:"required,min=1,max=60"`
	Goal          string `json:"goal" validate:"omitempty,max=500"`
}

// DocumentPayload is one caller-supplied document: either extracted plain
// text or a base64-encoded binary (PDF) the backend reads natively.
// Exactly one of Text and Base64Data must be set.
type DocumentPayload struct {
	Name       string `json:"name" validate:"required,max=255"`
	Text       string `json:"text,omitempty"`
	Base64Data string `json:"base64Data,omitempty"`
	MediaType  string `json:"mediaType,omitempty" validate:"omitempty,oneof=application/pdf text/plain"`
}

// Validate checks the request against the declared constraints plus the
// cross-field rules the tag language cannot express.
func (r *AnalyzeRequest) Validate(cfg Config) error {
	if err := validate.Struct(r); err != nil {
		return err
	}
	if len(r.Documents) > cfg.MaxDocuments {
		return fmt.Errorf("too many documents: %d exceeds limit of %d", len(r.Documents), cfg.MaxDocuments)
	}
	for _, doc := range r.Documents {
		hasText := doc.Text != ""
		hasBinary := doc.Base64Data != ""
		if hasText == hasBinary {
			return fmt.Errorf("document %q: exactly one of text or base64Data must be set", doc.Name)
		}
		if hasBinary && doc.MediaType == "" {
			return fmt.Errorf("document %q: mediaType is required for binary documents", doc.Name)
		}
		if size := payloadSize(doc); size > cfg.MaxDocumentBytes {
			return fmt.Errorf("document %q: %d bytes exceeds limit of %d", doc.Name, size, cfg.MaxDocumentBytes)
		}
	}
	return nil
}

func payloadSize(doc DocumentPayload) int {
	if doc.Text != "" {
		return len(doc.Text)
	}
	return base64.StdEncoding.DecodedLen(len(doc.Base64Data))
}

// ModeName returns the requested analysis mode, defaulting to standard.
func (r *AnalyzeRequest) ModeName() string {
	if r.Mode == "" {
		return "standard"
	}
	return r.Mode
}

// InitialContent converts the request into the opening user turn: one text
// part framing the investor profile, then one part per document.
func (r *AnalyzeRequest) InitialContent() ([]llm.ContentPart, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Analyze the attached portfolio documents for an investor with a %s risk tolerance and a %d-year horizon.",
		r.Profile.RiskTolerance, r.Profile.HorizonYears)
	if r.Profile.Goal != "" {
		fmt.Fprintf(&sb, " Their stated goal: %s", r.Profile.Goal)
	}

	parts := []llm.ContentPart{llm.TextPart(sb.String())}
	for _, doc := range r.Documents {
		if doc.Text != "" {
			parts = append(parts, llm.TextPart(fmt.Sprintf("--- Document: %s ---\n%s", doc.Name, doc.Text)))
			continue
		}
		data, err := base64.StdEncoding.DecodeString(doc.Base64Data)
		if err != nil {
			return nil, fmt.Errorf("document %q: decoding base64 payload: %w", doc.Name, err)
		}
		parts = append(parts, llm.DocumentPart(data, doc.MediaType, doc.Name))
	}
	return parts, nil
}

// BulkReturnsRequest asks for reference metrics across several asset
// classes at once. Served by the batch dispatcher rather than the
// conversation loop.
type BulkReturnsRequest struct {
	AssetClasses []string `json:"assetClasses" binding:"required" validate:"required,min=1,max=50,dive,required"`
}

// ErrorResponse is the JSON error envelope for non-streaming failures.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Class   string `json:"class,omitempty"`
}
