package narrative

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/zombor/invoice-anomaly/internal/anomaly"
)

// Narrator turns ranked anomaly briefs into a short prose summary
type Narrator interface {
	// Narrate summarizes the briefs. Callers treat any error as "no narrative".
	Narrate(ctx context.Context, briefs []anomaly.Brief) (string, error)
	// Close releases client resources
	Close() error
}

// narrativePrompt is the shared instruction used by all LLM providers
const narrativePrompt = `You are a forensic accountant reviewing automated invoice anomaly findings for a small business.

The JSON array below lists the most important findings, already ordered from most to least severe. Each item has a type (duplicate, weekend, round_number, outlier, unusual_vendor), a severity, the vendor name, the invoice amount and a short description.

Write a concise summary for the business owner:
- Start with one sentence giving the overall risk picture.
- Then describe the most important patterns, grouping findings by vendor or type where it helps.
- Suggest concrete follow-up checks (for example, confirm a possible duplicate payment with the vendor).
- Use plain language, at most 150 words, no headings.
- Do not invent findings that are not in the data.
- Do not use markdown code blocks.

Findings:
`

// buildPrompt appends the JSON-encoded briefs to the instruction
func buildPrompt(briefs []anomaly.Brief) (string, error) {
	data, err := json.MarshalIndent(briefs, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshaling findings: %w", err)
	}
	return narrativePrompt + string(data), nil
}

// cleanNarrative strips code fences and surrounding whitespace from model output
func cleanNarrative(text string) string {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```markdown")
	text = strings.TrimPrefix(text, "```text")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	return strings.TrimSpace(text)
}
