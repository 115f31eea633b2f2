package executor

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/bedrock"
	"github.com/anthropics/anthropic-sdk-go/option"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"

	"github.com/cohortlabs/cohort/pkg/models"
)

// AnthropicConfig contains configuration for the Anthropic-backed executor.
type AnthropicConfig struct {
	// Model is the Claude model to use. Defaults to Sonnet if empty.
	Model anthropic.Model
	// APIKey is the Anthropic API key. If empty, uses ANTHROPIC_API_KEY.
	APIKey string
	// UseAWSBedrock routes requests through AWS Bedrock instead of the API.
	UseAWSBedrock bool
	// AWSRegion is the AWS region for Bedrock.
	AWSRegion string
	// AWSProfile is the optional AWS profile name to use.
	AWSProfile string
	// MaxTokens bounds the response size per step. Defaults to 4096.
	MaxTokens int64
}

// AnthropicExecutor executes coordination steps by prompting a Claude model.
// Each step becomes one message exchange; the agent's role and capabilities
// form the system prompt and forwarded step inputs form the context.
type AnthropicExecutor struct {
	client    anthropic.Client
	model     anthropic.Model
	maxTokens int64
}

// NewAnthropicExecutor creates an executor backed by the Anthropic API or
// AWS Bedrock, depending on the configuration.
func NewAnthropicExecutor(cfg AnthropicConfig) (*AnthropicExecutor, error) {
	var opts []option.RequestOption

	if cfg.UseAWSBedrock {
		ctx := context.Background()
		var loadOpts []func(*awsconfig.LoadOptions) error
		if cfg.AWSRegion != "" {
			loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.AWSRegion))
		}
		if cfg.AWSProfile != "" {
			loadOpts = append(loadOpts, awsconfig.WithSharedConfigProfile(cfg.AWSProfile))
		}
		opts = append(opts, bedrock.WithLoadDefaultConfig(ctx, loadOpts...))
	} else {
		apiKey := cfg.APIKey
		if apiKey == "" {
			apiKey = os.Getenv("ANTHROPIC_API_KEY")
		}
		if apiKey == "" {
			return nil, fmt.Errorf("ANTHROPIC_API_KEY environment variable is not set")
		}
		opts = append(opts, option.WithAPIKey(apiKey))
	}

	model := cfg.Model
	if model == "" {
		model = anthropic.ModelClaudeSonnet4_20250514
	}

	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	return &AnthropicExecutor{
		client:    anthropic.NewClient(opts...),
		model:     model,
		maxTokens: maxTokens,
	}, nil
}

// Run implements Executor.
func (e *AnthropicExecutor) Run(ctx context.Context, step *models.CoordinationStep, agent *models.Agent) (*Result, error) {
	resp, err := e.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     e.model,
		MaxTokens: e.maxTokens,
		System: []anthropic.TextBlockParam{
			{Text: systemPromptFor(agent)},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(stepPrompt(step))),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("API call failed: %w", err)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if variant, ok := block.AsAny().(anthropic.TextBlock); ok {
			text.WriteString(variant.Text)
		}
	}

	return &Result{
		Success: true,
		Outputs: map[string]models.StepOutput{
			"result": {
				Format:     models.FormatText,
				Text:       text.String(),
				ProducedBy: step.ID,
			},
		},
	}, nil
}

// systemPromptFor describes the agent's role to the model.
func systemPromptFor(agent *models.Agent) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are a %s agent in a coordinated multi-agent workflow.\n", agent.Type)
	if len(agent.Capabilities) > 0 {
		fmt.Fprintf(&b, "Your capabilities: %s.\n", strings.Join(agent.Capabilities, ", "))
	}
	b.WriteString("Complete the assigned step and report concisely what you did.")
	return b.String()
}

// stepPrompt renders the step action plus any forwarded inputs.
func stepPrompt(step *models.CoordinationStep) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Step %s: %s\n", step.ID, step.Action)
	if len(step.Inputs) > 0 {
		b.WriteString("\nContext from earlier steps:\n")
		for name, in := range step.Inputs {
			switch in.Format {
			case models.FormatFiles:
				fmt.Fprintf(&b, "- %s (files): %s\n", name, strings.Join(in.Files, ", "))
			case models.FormatDecision:
				fmt.Fprintf(&b, "- %s (decision): approved=%v\n", name, in.Approved)
			default:
				fmt.Fprintf(&b, "- %s (%s): %s\n", name, in.Format, in.Text)
			}
		}
	}
	return b.String()
}
