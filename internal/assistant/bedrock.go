package assistant

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	"github.com/ignite/playerpulse/internal/config"
	"github.com/ignite/playerpulse/internal/pkg/logger"
)

// BedrockGenerator answers over Bedrock-hosted Claude. All data stays within
// AWS; nothing leaves the account boundary.
type BedrockGenerator struct {
	client      *bedrockruntime.Client
	modelID     string
	maxTokens   int
	temperature float64
	prompts     *promptBuilder
}

// bedrockMessage is a message in the Anthropic Bedrock wire format.
type bedrockMessage struct {
	Role    string                `json:"role"`
	Content []bedrockContentBlock `json:"content"`
}

type bedrockContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type bedrockRequest struct {
	AnthropicVersion string           `json:"anthropic_version"`
	MaxTokens        int              `json:"max_tokens"`
	System           string           `json:"system,omitempty"`
	Messages         []bedrockMessage `json:"messages"`
	Temperature      float64          `json:"temperature,omitempty"`
}

type bedrockResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// NewBedrockGenerator creates an insight generator backed by AWS Bedrock.
func NewBedrockGenerator(ctx context.Context, cfg config.AssistantConfig) (*BedrockGenerator, error) {
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if cfg.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	prompts, err := newPromptBuilder()
	if err != nil {
		return nil, err
	}

	g := &BedrockGenerator{
		client:      bedrockruntime.NewFromConfig(awsCfg),
		modelID:     cfg.ModelID,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		prompts:     prompts,
	}
	logger.Info("Bedrock insight generator initialized",
		"model", g.modelID,
		"region", region)
	return g, nil
}

// GenerateInsights produces a narrative insight report over the digest.
func (g *BedrockGenerator) GenerateInsights(ctx context.Context, digest Digest) (string, error) {
	prompt, err := g.prompts.insightsPrompt(digest)
	if err != nil {
		return "", err
	}
	return g.invoke(ctx, prompt)
}

// AnswerQuery answers a free-form analyst question grounded on the digest.
func (g *BedrockGenerator) AnswerQuery(ctx context.Context, digest Digest, question string) (string, error) {
	prompt, err := g.prompts.queryPrompt(digest, question)
	if err != nil {
		return "", err
	}
	return g.invoke(ctx, prompt)
}

func (g *BedrockGenerator) invoke(ctx context.Context, prompt string) (string, error) {
	request := bedrockRequest{
		AnthropicVersion: "bedrock-2023-05-31",
		MaxTokens:        g.maxTokens,
		System:           systemPrompt,
		Messages: []bedrockMessage{
			{Role: "user", Content: []bedrockContentBlock{{Type: "text", Text: prompt}}},
		},
		Temperature: g.temperature,
	}

	body, err := json.Marshal(request)
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	output, err := g.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(g.modelID),
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
		Body:        body,
	})
	if err != nil {
		return "", fmt.Errorf("Bedrock API error: %w", err)
	}

	var response bedrockResponse
	if err := json.Unmarshal(output.Body, &response); err != nil {
		return "", fmt.Errorf("parsing response: %w", err)
	}

	var text string
	for _, block := range response.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	logger.Debug("Bedrock invocation complete",
		"input_tokens", response.Usage.InputTokens,
		"output_tokens", response.Usage.OutputTokens,
		"stop_reason", response.StopReason)
	return text, nil
}
