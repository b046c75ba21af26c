package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

const (
	GeminiName         = "gemini"
	DefaultGeminiModel = "gemini-1.5-pro"
	defaultGeminiURL   = "https://generativelanguage.googleapis.com/v1beta"
)

// Gemini calls the generateContent REST endpoint.
type Gemini struct {
	opts       options
	httpClient *http.Client
}

// NewGemini builds a Gemini connector. As with NewOpenAI, a missing key
// only produces a warning.
func NewGemini(opts ...Option) *Gemini {
	o := applyOptions(defaultOptions(DefaultGeminiModel, defaultGeminiURL), opts)
	if o.apiKey == "" {
		o.logger.Warn(GeminiName, "Gemini API key not set, calls will fail")
	}
	client := o.httpClient
	if client == nil {
		client = &http.Client{Timeout: o.timeout}
	}
	return &Gemini{opts: o, httpClient: client}
}

func (c *Gemini) Name() string { return GeminiName }

func (c *Gemini) Model() string { return c.opts.model }

func (c *Gemini) Configured() bool { return c.opts.apiKey != "" }

type geminiRequest struct {
	Contents          []geminiContent        `json:"contents"`
	SystemInstruction *geminiContent         `json:"systemInstruction,omitempty"`
	GenerationConfig  geminiGenerationConfig `json:"generationConfig"`
}

type geminiGenerationConfig struct {
	Temperature      float64 `json:"temperature"`
	MaxOutputTokens  int     `json:"maxOutputTokens,omitempty"`
	TopP             float64 `json:"topP,omitempty"`
	FrequencyPenalty float64 `json:"frequencyPenalty,omitempty"`
	PresencePenalty  float64 `json:"presencePenalty,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	ModelVersion string `json:"modelVersion"`
}

type geminiErrorBody struct {
	Error struct {
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

func (r *geminiResponse) text() string {
	if len(r.Candidates) == 0 {
		return ""
	}
	var sb strings.Builder
	for _, part := range r.Candidates[0].Content.Parts {
		sb.WriteString(part.Text)
	}
	return sb.String()
}

// Generate sends req with the system message as systemInstruction.
func (c *Gemini) Generate(ctx context.Context, req Request) (*Response, error) {
	req, err := normalize(req)
	if err != nil {
		return nil, err
	}
	if c.opts.apiKey == "" {
		return nil, report(c.opts.sink, GeminiName, &ConfigurationError{Provider: GeminiName, Reason: "missing API key"})
	}

	p := req.Params
	payload := geminiRequest{
		Contents:          []geminiContent{{Role: "user", Parts: []geminiPart{{Text: req.Prompt}}}},
		SystemInstruction: &geminiContent{Parts: []geminiPart{{Text: req.SystemMessage}}},
		GenerationConfig: geminiGenerationConfig{
			Temperature:      p.Temperature,
			MaxOutputTokens:  p.MaxTokens,
			TopP:             p.TopP,
			FrequencyPenalty: p.FrequencyPenalty,
			PresencePenalty:  p.PresencePenalty,
		},
	}

	resp, err := c.do(ctx, payload)
	if err != nil {
		return nil, report(c.opts.sink, GeminiName, err)
	}
	text := resp.text()
	if text == "" {
		return fallback(GeminiName, c.opts.model), nil
	}
	model := resp.ModelVersion
	if model == "" {
		model = c.opts.model
	}
	return &Response{Text: text, Provider: GeminiName, Model: model}, nil
}

func (c *Gemini) do(ctx context.Context, payload geminiRequest) (*geminiResponse, error) {
	buf := &bytes.Buffer{}
	if err := json.NewEncoder(buf).Encode(payload); err != nil {
		return nil, fmt.Errorf("encode gemini request: %w", err)
	}
	endpoint := strings.TrimRight(c.opts.baseURL, "/") + "/models/" + url.PathEscape(c.opts.model) + ":generateContent"

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, buf)
	if err != nil {
		return nil, fmt.Errorf("build gemini request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	// The key stays out of the URL so transport errors never carry it.
	httpReq.Header.Set("x-goog-api-key", c.opts.apiKey)

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, classifyTransport(ctx, GeminiName, err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode >= 400 {
		data, _ := io.ReadAll(io.LimitReader(httpResp.Body, 4096))
		msg := httpResp.Status
		var body geminiErrorBody
		if json.Unmarshal(data, &body) == nil && body.Error.Message != "" {
			msg = body.Error.Message
		}
		return nil, classifyStatus(GeminiName, httpResp.StatusCode, msg)
	}

	var resp geminiResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, &TransientError{Provider: GeminiName, Err: fmt.Errorf("decode gemini response: %w", err)}
	}
	return &resp, nil
}
