package provider

import (
	"context"
	"errors"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

const (
	OpenAIName         = "openai"
	DefaultOpenAIModel = "gpt-4-turbo"
	defaultOpenAIURL   = "https://api.openai.com/v1/"
)

// OpenAI talks to the chat completions API, or any compatible endpoint.
type OpenAI struct {
	opts   options
	client openai.Client
}

// NewOpenAI builds an OpenAI connector. A missing API key is not an error
// here; it is logged as a warning and every call fails with a
// *ConfigurationError.
func NewOpenAI(opts ...Option) *OpenAI {
	o := applyOptions(defaultOptions(DefaultOpenAIModel, defaultOpenAIURL), opts)
	if o.apiKey == "" {
		o.logger.Warn(OpenAIName, "OpenAI API key not set, calls will fail")
	}

	reqOpts := []option.RequestOption{
		option.WithBaseURL(o.baseURL),
		option.WithMaxRetries(0),
		option.WithRequestTimeout(o.timeout),
	}
	if o.apiKey != "" {
		reqOpts = append(reqOpts, option.WithAPIKey(o.apiKey))
	}
	if o.httpClient != nil {
		reqOpts = append(reqOpts, option.WithHTTPClient(o.httpClient))
	}

	return &OpenAI{opts: o, client: openai.NewClient(reqOpts...)}
}

func (c *OpenAI) Name() string { return OpenAIName }

// Model returns the configured model name.
func (c *OpenAI) Model() string { return c.opts.model }

// Configured reports whether the connector has credentials.
func (c *OpenAI) Configured() bool { return c.opts.apiKey != "" }

// Generate sends req as a system + user message pair.
func (c *OpenAI) Generate(ctx context.Context, req Request) (*Response, error) {
	req, err := normalize(req)
	if err != nil {
		return nil, err
	}
	if c.opts.apiKey == "" {
		return nil, report(c.opts.sink, OpenAIName, &ConfigurationError{Provider: OpenAIName, Reason: "missing API key"})
	}

	p := req.Params
	params := openai.ChatCompletionNewParams{
		Model: c.opts.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(req.SystemMessage),
			openai.UserMessage(req.Prompt),
		},
		Temperature:      openai.Float(p.Temperature),
		MaxTokens:        openai.Int(int64(p.MaxTokens)),
		TopP:             openai.Float(p.TopP),
		FrequencyPenalty: openai.Float(p.FrequencyPenalty),
		PresencePenalty:  openai.Float(p.PresencePenalty),
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, report(c.opts.sink, OpenAIName, c.classify(ctx, err))
	}
	if len(resp.Choices) == 0 {
		return fallback(OpenAIName, c.opts.model), nil
	}
	model := resp.Model
	if model == "" {
		model = c.opts.model
	}
	return &Response{Text: resp.Choices[0].Message.Content, Provider: OpenAIName, Model: model}, nil
}

func (c *OpenAI) classify(ctx context.Context, err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		msg := apiErr.Message
		if msg == "" {
			msg = err.Error()
		}
		return classifyStatus(OpenAIName, apiErr.StatusCode, msg)
	}
	return classifyTransport(ctx, OpenAIName, err)
}
