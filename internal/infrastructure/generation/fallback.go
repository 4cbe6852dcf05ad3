package generation

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/AtRiskMedia/reportcache-go/internal/domain/entities/research"
)

// FallbackGenerator produces a basic, deterministic analysis when no model
// is configured.
type FallbackGenerator struct{}

func NewFallbackGenerator() *FallbackGenerator {
	return &FallbackGenerator{}
}

func (g *FallbackGenerator) Name() string {
	return "fallback"
}

type risk struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Probability string `json:"probability"`
}

type fallbackReport struct {
	Recommendation    string   `json:"recommendation"`
	ConvictionLevel   string   `json:"conviction_level"`
	InvestmentThesis  string   `json:"investment_thesis"`
	QuarterlyAnalysis string   `json:"quarterly_analysis"`
	NewsImpact        string   `json:"news_impact"`
	BullCase          []string `json:"bull_case"`
	BearCase          []string `json:"bear_case"`
	KeyRisks          []risk   `json:"key_risks"`
	Catalysts         []string `json:"catalysts"`
}

type fallbackComparison struct {
	Verdict            string   `json:"verdict"`
	VerdictStock       string   `json:"verdict_stock"`
	Conviction         string   `json:"conviction"`
	OneLineVerdict     string   `json:"one_line_verdict"`
	KeyDifferentiators []string `json:"key_differentiators"`
}

func (g *FallbackGenerator) Generate(ctx context.Context, req research.GenerationRequest) (*research.GeneratedContent, error) {
	if err := ctx.Err(); err != nil {
		return nil, classify(ctx, err)
	}

	var payload any
	switch req.Key.Kind {
	case research.KindComparison:
		payload = fallbackComparison{
			Verdict:        "EITHER",
			Conviction:     "LOW",
			OneLineVerdict: fmt.Sprintf("%s and %s look comparable on the information available.", req.Key.SubjectID, req.Key.SubjectVariant),
			KeyDifferentiators: []string{
				"Sector exposure and business mix",
				"Relative valuation multiples",
				"Balance sheet strength",
			},
		}
	default:
		payload = fallbackReport{
			Recommendation:    "HOLD",
			ConvictionLevel:   "MEDIUM",
			InvestmentThesis:  fmt.Sprintf("%s appears fairly valued based on current valuations and financial metrics.", req.Key.SubjectID),
			QuarterlyAnalysis: "Quarterly financial data analysis is not available. Please refer to the company's investor relations for the latest quarterly results.",
			NewsImpact:        "Recent news and its impact on the stock could not be analyzed at this time.",
			BullCase: []string{
				"Established player in its sector",
				"Consistent financial performance",
				"Reasonable valuation metrics",
			},
			BearCase: []string{
				"Market volatility could impact short-term performance",
				"Competition from industry peers",
				"Macroeconomic headwinds",
			},
			KeyRisks: []risk{
				{Title: "Market Risk", Description: "General market volatility and economic conditions could impact stock performance.", Probability: "MEDIUM"},
				{Title: "Industry Risk", Description: "Changes in the sector could affect the company's competitive position.", Probability: "MEDIUM"},
			},
			Catalysts: []string{
				"Upcoming quarterly earnings announcement",
				"Sector-wide policy changes",
				"Management commentary on guidance",
			},
		}
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, research.NewGenerationFailed(research.FailureMalformedOutput, err)
	}
	content, metadata, err := parsePayload(req.Key.Kind, string(raw))
	if err != nil {
		return nil, err
	}
	metadata.Provider = g.Name()
	return &research.GeneratedContent{Content: content, Metadata: metadata}, nil
}
