package generation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/AtRiskMedia/reportcache-go/internal/domain/entities/research"
	"github.com/AtRiskMedia/reportcache-go/internal/infrastructure/observability/logging"
	"google.golang.org/genai"
)

// GeminiGenerator calls the Gemini API with a JSON response type.
type GeminiGenerator struct {
	client  *genai.Client
	options Options
	logger  *logging.ChanneledLogger
}

func NewGeminiGenerator(ctx context.Context, apiKey string, options Options, logger *logging.ChanneledLogger) (*GeminiGenerator, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Gemini client: %w", err)
	}
	return &GeminiGenerator{client: client, options: options, logger: logger}, nil
}

func (g *GeminiGenerator) Name() string {
	return "gemini"
}

func (g *GeminiGenerator) Generate(ctx context.Context, req research.GenerationRequest) (*research.GeneratedContent, error) {
	start := time.Now()
	g.logger.Generation().Debug("Calling Gemini", "key", req.Key.String(), "model", g.options.Model)

	config := &genai.GenerateContentConfig{
		ResponseMIMEType:  "application/json",
		SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: systemInstruction}}},
		Temperature:       genai.Ptr(float32(g.options.Temperature)),
		MaxOutputTokens:   int32(g.options.MaxOutputTokens),
	}
	contents := []*genai.Content{genai.NewContentFromText(buildPrompt(req.Key), genai.RoleUser)}

	response, err := g.client.Models.GenerateContent(ctx, g.options.Model, contents, config)
	if err != nil {
		g.logger.Generation().Error("Gemini call failed", "key", req.Key.String(), "error", err.Error(), "duration", time.Since(start))
		return nil, classify(ctx, err)
	}

	text := response.Text()
	if text == "" {
		return nil, research.NewGenerationFailed(research.FailureMalformedOutput, errors.New("empty response"))
	}

	content, metadata, err := parsePayload(req.Key.Kind, text)
	if err != nil {
		g.logger.Generation().Warn("Gemini returned unusable output", "key", req.Key.String(), "error", err.Error())
		return nil, err
	}
	metadata.Provider = g.Name()
	metadata.Model = g.options.Model
	if usage := response.UsageMetadata; usage != nil {
		metadata.InputTokens = int64(usage.PromptTokenCount)
		metadata.OutputTokens = int64(usage.CandidatesTokenCount)
	}

	g.logger.Generation().Info("Gemini generation complete", "key", req.Key.String(),
		"inputTokens", metadata.InputTokens, "outputTokens", metadata.OutputTokens, "duration", time.Since(start))
	return &research.GeneratedContent{Content: content, Metadata: metadata}, nil
}
