package generation

import (
	"fmt"
	"strings"

	"github.com/AtRiskMedia/reportcache-go/internal/domain/entities/research"
)

const systemInstruction = `You are a highly opinionated senior equity research analyst covering Indian equities.
Take clear, decisive stances. Use specific numbers. Where data is missing, use what you know about the company.
Return ONLY valid JSON, no other text.`

var languageNames = map[string]string{
	research.LanguageEnglish:  "English",
	research.LanguageHindi:    "Hindi",
	research.LanguageGujarati: "Gujarati",
	research.LanguageKannada:  "Kannada",
}

const reportSchema = `{
    "recommendation": "STRONG BUY" | "BUY" | "HOLD" | "SELL" | "STRONG SELL",
    "conviction_level": "HIGH" | "MEDIUM" | "LOW",
    "target_price": <number, 12-month target price in INR>,
    "opening_hook": "<2-3 sentence conversational opener>",
    "investment_thesis": "<3-4 sentence thesis>",
    "quarterly_analysis": "<last 2-4 quarters>",
    "news_impact": "<2-3 recent developments>",
    "bull_case": ["<point>", "..."],
    "bear_case": ["<concern>", "..."],
    "key_risks": [{"title": "<title>", "description": "<impact>", "probability": "HIGH" | "MEDIUM" | "LOW"}],
    "business_analysis": "<paragraph>",
    "financial_analysis": "<paragraph>",
    "valuation_analysis": "<paragraph>",
    "competitive_advantages": [{"title": "<moat>", "description": "<why it matters>"}],
    "catalysts": ["<trigger>"],
    "price_action_note": "<position in 52-week range>"
}`

const comparisonSchema = `{
    "verdict": "PREFER_A" | "PREFER_B" | "EITHER",
    "verdict_stock": "<ticker of the preferred stock, empty for EITHER>",
    "conviction": "HIGH" | "MEDIUM" | "LOW",
    "one_line_verdict": "<one sentence>",
    "stock_a_summary": "<paragraph>",
    "stock_b_summary": "<paragraph>",
    "valuation_comparison": "<paragraph>",
    "growth_comparison": "<paragraph>",
    "risk_comparison": "<paragraph>",
    "key_differentiators": ["<point>", "..."]
}`

// buildPrompt renders the user prompt for key.
func buildPrompt(key research.CacheKey) string {
	var b strings.Builder
	language := languageNames[key.Language]
	if language == "" {
		language = languageNames[research.DefaultLanguage]
	}

	switch key.Kind {
	case research.KindComparison:
		fmt.Fprintf(&b, "Compare stock A (%s) with stock B (%s) for a retail investor.\n", key.SubjectID, key.SubjectVariant)
		fmt.Fprintf(&b, "Write all prose in %s; keep JSON keys and enum values in English.\n\n", language)
		b.WriteString("Return your comparison in this JSON format:\n")
		b.WriteString(comparisonSchema)
	default:
		fmt.Fprintf(&b, "Write an investment research report on %s.\n", key.SubjectID)
		fmt.Fprintf(&b, "Write all prose in %s; keep JSON keys and enum values in English.\n\n", language)
		b.WriteString("Return your analysis in this JSON format:\n")
		b.WriteString(reportSchema)
	}
	return b.String()
}
