package generation

import (
	"context"
	"errors"
	"time"

	"github.com/AssemblyAI/assemblyai-go-sdk"
	"github.com/AtRiskMedia/reportcache-go/internal/domain/entities/research"
	"github.com/AtRiskMedia/reportcache-go/internal/infrastructure/observability/logging"
)

// LemurGenerator runs the prompt as an AssemblyAI LeMUR task.
type LemurGenerator struct {
	client  *assemblyai.Client
	options Options
	logger  *logging.ChanneledLogger
}

func NewLemurGenerator(apiKey string, options Options, logger *logging.ChanneledLogger) *LemurGenerator {
	return &LemurGenerator{
		client:  assemblyai.NewClient(apiKey),
		options: options,
		logger:  logger,
	}
}

func (g *LemurGenerator) Name() string {
	return "assemblyai"
}

func (g *LemurGenerator) Generate(ctx context.Context, req research.GenerationRequest) (*research.GeneratedContent, error) {
	start := time.Now()
	g.logger.Generation().Debug("Calling Assembly AI LeMUR API", "key", req.Key.String(), "model", g.options.Model)

	var params assemblyai.LeMURTaskParams
	params.Prompt = assemblyai.String(systemInstruction + "\n\n" + buildPrompt(req.Key))
	params.InputText = assemblyai.String(req.Key.String())
	params.FinalModel = assemblyai.LeMURModel(g.options.Model)
	params.MaxOutputSize = assemblyai.Int64(g.options.MaxOutputTokens)
	params.Temperature = assemblyai.Float64(g.options.Temperature)

	response, err := g.client.LeMUR.Task(ctx, params)
	if err != nil {
		g.logger.Generation().Error("Assembly AI LeMUR API call failed", "key", req.Key.String(), "error", err.Error(), "duration", time.Since(start))
		return nil, classify(ctx, err)
	}
	if response.Response == nil || *response.Response == "" {
		return nil, research.NewGenerationFailed(research.FailureMalformedOutput, errors.New("empty response"))
	}

	content, metadata, err := parsePayload(req.Key.Kind, *response.Response)
	if err != nil {
		g.logger.Generation().Warn("LeMUR returned unusable output", "key", req.Key.String(), "error", err.Error())
		return nil, err
	}
	metadata.Provider = g.Name()
	metadata.Model = g.options.Model

	g.logger.Generation().Info("LeMUR generation complete", "key", req.Key.String(), "duration", time.Since(start))
	return &research.GeneratedContent{Content: content, Metadata: metadata}, nil
}
