package generation

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/AtRiskMedia/reportcache-go/internal/domain/entities/research"
	"github.com/shopspring/decimal"
)

const fence = "```"

// stripFences extracts the body of a markdown code block if the model wrapped
// its JSON in one.
func stripFences(text string) string {
	text = strings.TrimSpace(text)
	if _, after, ok := strings.Cut(text, fence+"json"); ok {
		body, _, _ := strings.Cut(after, fence)
		return strings.TrimSpace(body)
	}
	if _, after, ok := strings.Cut(text, fence); ok {
		body, _, _ := strings.Cut(after, fence)
		return strings.TrimSpace(body)
	}
	return text
}

// parsePayload validates model output for kind and extracts the metadata
// fields stored beside the content.
func parsePayload(kind research.ArtifactKind, text string) (json.RawMessage, research.GenerationMetadata, error) {
	var metadata research.GenerationMetadata

	body := stripFences(text)
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(body), &fields); err != nil {
		return nil, metadata, research.NewGenerationFailed(research.FailureMalformedOutput, fmt.Errorf("output is not a JSON object: %w", err))
	}

	verdictField := "recommendation"
	if kind == research.KindComparison {
		verdictField = "verdict"
	}
	var verdict string
	if raw, ok := fields[verdictField]; ok {
		_ = json.Unmarshal(raw, &verdict)
	}
	if strings.TrimSpace(verdict) == "" {
		return nil, metadata, research.NewGenerationFailed(research.FailureMalformedOutput, fmt.Errorf("output has no %s", verdictField))
	}
	metadata.Recommendation = strings.ToUpper(strings.TrimSpace(verdict))

	if raw, ok := fields["target_price"]; ok && !bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		var price decimal.Decimal
		if err := price.UnmarshalJSON(raw); err != nil {
			return nil, metadata, research.NewGenerationFailed(research.FailureMalformedOutput, errors.New("target_price is not a number"))
		}
		metadata.TargetPrice = decimal.NewNullDecimal(price)
	}

	var compact bytes.Buffer
	if err := json.Compact(&compact, []byte(body)); err != nil {
		return nil, metadata, research.NewGenerationFailed(research.FailureMalformedOutput, err)
	}
	return json.RawMessage(compact.Bytes()), metadata, nil
}
