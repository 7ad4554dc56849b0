package llm

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// groqBaseURL is the OpenAI-compatible endpoint of the hosted Groq backend.
const groqBaseURL = "https://api.groq.com/openai/v1"

// OpenAIProvider implements Provider against the OpenAI chat completions API.
// It also serves OpenAI-compatible backends (Groq, Ollama, vLLM) via BaseURL.
type OpenAIProvider struct {
	client      openai.Client
	name        string
	model       string
	temperature float64
	maxTokens   int
	timeout     time.Duration
}

// OpenAIOptions fixes the backend parameters at construction time.
type OpenAIOptions struct {
	Name        string
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float64
	MaxTokens   int
	// Timeout bounds each Complete call. Zero means 60s.
	Timeout time.Duration
}

func NewOpenAIProvider(opts OpenAIOptions) (*OpenAIProvider, error) {
	if strings.TrimSpace(opts.Model) == "" {
		return nil, errors.New("missing model")
	}
	reqOpts := []option.RequestOption{
		option.WithAPIKey(opts.APIKey),
	}
	if strings.TrimSpace(opts.BaseURL) != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(opts.BaseURL))
	}

	name := strings.TrimSpace(opts.Name)
	if name == "" {
		name = "openai"
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	return &OpenAIProvider{
		client:      openai.NewClient(reqOpts...),
		name:        name,
		model:       strings.TrimSpace(opts.Model),
		temperature: opts.Temperature,
		maxTokens:   opts.MaxTokens,
		timeout:     timeout,
	}, nil
}

func (p *OpenAIProvider) Name() string  { return p.name }
func (p *OpenAIProvider) Model() string { return p.model }

func (p *OpenAIProvider) Complete(ctx context.Context, req Request) (*Response, error) {
	if p == nil {
		return nil, errors.New("nil provider")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	params := openai.ChatCompletionNewParams{
		Model:    p.model,
		Messages: p.convertMessages(req),
	}
	if p.temperature > 0 {
		params.Temperature = openai.Float(p.temperature)
	}
	if p.maxTokens > 0 {
		params.MaxTokens = openai.Int(int64(p.maxTokens))
	}

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, classify(p.name, err)
	}
	if len(resp.Choices) == 0 {
		return nil, &UpstreamError{Kind: KindServer, Provider: p.name, Message: "empty choices in response"}
	}

	return &Response{
		Text:  resp.Choices[0].Message.Content,
		Model: resp.Model,
		Usage: Usage{
			InputTokens:  int(resp.Usage.PromptTokens),
			OutputTokens: int(resp.Usage.CompletionTokens),
		},
	}, nil
}

func (p *OpenAIProvider) convertMessages(req Request) []openai.ChatCompletionMessageParamUnion {
	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages)+1)
	if strings.TrimSpace(req.System) != "" {
		msgs = append(msgs, openai.SystemMessage(req.System))
	}
	for _, m := range req.Messages {
		switch m.Role {
		case RoleSystem:
			msgs = append(msgs, openai.SystemMessage(m.Content))
		case RoleAssistant:
			msgs = append(msgs, openai.AssistantMessage(m.Content))
		default:
			msgs = append(msgs, openai.UserMessage(m.Content))
		}
	}
	return msgs
}
