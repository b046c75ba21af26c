package provider

import (
	"net/http"
	"time"

	"github.com/warriorcabo/ai-orchestration-system/internal/log"
)

// Option configures a connector.
type Option func(*options)

type options struct {
	apiKey     string
	model      string
	baseURL    string
	timeout    time.Duration
	httpClient *http.Client
	sink       log.ErrorSink
	logger     *log.Logger
}

func defaultOptions(model, baseURL string) options {
	return options{
		model:   model,
		baseURL: baseURL,
		timeout: 60 * time.Second,
	}
}

func WithAPIKey(key string) Option {
	return func(o *options) { o.apiKey = key }
}

// WithModel overrides the default model. Empty values are ignored.
func WithModel(model string) Option {
	return func(o *options) {
		if model != "" {
			o.model = model
		}
	}
}

// WithBaseURL overrides the API endpoint. Empty values are ignored.
func WithBaseURL(url string) Option {
	return func(o *options) {
		if url != "" {
			o.baseURL = url
		}
	}
}

func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.timeout = d
		}
	}
}

func WithHTTPClient(client *http.Client) Option {
	return func(o *options) { o.httpClient = client }
}

// WithErrorSink sets where failed calls are reported.
func WithErrorSink(sink log.ErrorSink) Option {
	return func(o *options) { o.sink = sink }
}

// WithLogger sets the event log used for construction warnings.
func WithLogger(logger *log.Logger) Option {
	return func(o *options) { o.logger = logger }
}

func applyOptions(o options, opts []Option) options {
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
