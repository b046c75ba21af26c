// Package provider wraps remote text-generation services behind a single
// Connector interface.
package provider

import (
	"context"
	"errors"
	"strings"

	"github.com/warriorcabo/ai-orchestration-system/internal/log"
	"github.com/warriorcabo/ai-orchestration-system/prompts"
)

// FallbackText is returned when a provider answers with no choices.
const FallbackText = "No response generated"

// ErrEmptyPrompt is returned when a request carries no prompt text.
var ErrEmptyPrompt = errors.New("provider: empty prompt")

// Connector sends one prompt to a provider and returns its reply.
type Connector interface {
	Name() string
	Generate(ctx context.Context, req Request) (*Response, error)
}

// Params are the sampling parameters sent with every request.
type Params struct {
	Temperature      float64
	MaxTokens        int
	TopP             float64
	FrequencyPenalty float64
	PresencePenalty  float64
}

// DefaultParams returns temperature 0.7, 2048 tokens, top_p 1.0, no penalties.
func DefaultParams() Params {
	return Params{
		Temperature: 0.7,
		MaxTokens:   2048,
		TopP:        1.0,
	}
}

// Request is a single prompt sent to a connector.
// A zero Params means DefaultParams; an empty SystemMessage means DefaultSystemMessage.
type Request struct {
	Prompt        string
	SystemMessage string
	Params        Params
}

// Response is a provider reply. Empty is set when the provider returned no
// choices and Text holds FallbackText.
type Response struct {
	Text     string
	Provider string
	Model    string
	Empty    bool
}

// DefaultSystemMessage is the persona used when a request has none.
func DefaultSystemMessage() string {
	return strings.TrimSpace(prompts.DefaultSystemPrompt)
}

// normalize validates req and fills in defaults.
func normalize(req Request) (Request, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return req, ErrEmptyPrompt
	}
	if req.SystemMessage == "" {
		req.SystemMessage = DefaultSystemMessage()
	}
	if req.Params == (Params{}) {
		req.Params = DefaultParams()
	}
	return req, nil
}

func fallback(name, model string) *Response {
	return &Response{Text: FallbackText, Provider: name, Model: model, Empty: true}
}

// report sends err to sink under source and returns it unchanged.
func report(sink log.ErrorSink, source string, err error) error {
	if sink != nil {
		sink.LogError(source, err.Error())
	}
	return err
}
