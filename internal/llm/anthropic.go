package llm

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// anthropicDefaultMaxTokens is used when the config does not cap output; the
// Messages API requires an explicit limit.
const anthropicDefaultMaxTokens = 1024

// AnthropicProvider implements Provider against the Anthropic Messages API.
type AnthropicProvider struct {
	client      anthropic.Client
	model       string
	temperature float64
	maxTokens   int
	timeout     time.Duration
}

// AnthropicOptions fixes the backend parameters at construction time.
type AnthropicOptions struct {
	APIKey      string
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

func NewAnthropicProvider(opts AnthropicOptions) (*AnthropicProvider, error) {
	if strings.TrimSpace(opts.Model) == "" {
		return nil, errors.New("missing model")
	}
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = anthropicDefaultMaxTokens
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &AnthropicProvider{
		client:      anthropic.NewClient(option.WithAPIKey(opts.APIKey)),
		model:       strings.TrimSpace(opts.Model),
		temperature: opts.Temperature,
		maxTokens:   maxTokens,
		timeout:     timeout,
	}, nil
}

func (p *AnthropicProvider) Name() string  { return "anthropic" }
func (p *AnthropicProvider) Model() string { return p.model }

func (p *AnthropicProvider) Complete(ctx context.Context, req Request) (*Response, error) {
	if p == nil {
		return nil, errors.New("nil provider")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model),
		Messages:  p.convertMessages(req),
		MaxTokens: int64(p.maxTokens),
	}
	system := strings.TrimSpace(req.System)
	for _, m := range req.Messages {
		if m.Role == RoleSystem && system == "" {
			system = m.Content
		}
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	if p.temperature > 0 {
		params.Temperature = anthropic.Float(p.temperature)
	}

	resp, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return nil, classify("anthropic", err)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	return &Response{
		Text:  text.String(),
		Model: string(resp.Model),
		Usage: Usage{
			InputTokens:  int(resp.Usage.InputTokens),
			OutputTokens: int(resp.Usage.OutputTokens),
		},
	}, nil
}

// convertMessages maps conversation context onto alternating Messages API
// turns. System entries are lifted into the request-level system prompt.
func (p *AnthropicProvider) convertMessages(req Request) []anthropic.MessageParam {
	msgs := make([]anthropic.MessageParam, 0, len(req.Messages))
	for _, m := range req.Messages {
		switch m.Role {
		case RoleAssistant:
			msgs = append(msgs, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		case RoleSystem:
			// handled by Complete
		default:
			msgs = append(msgs, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}
	return msgs
}
