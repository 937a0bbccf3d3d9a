// Package gateway adapts conversation history into single calls against an
// OpenAI-compatible completion/image provider. Every call is a direct
// passthrough: no retries, caching, or circuit breaking.
package gateway

import (
	"context"

	"github.com/pkg/errors"

	"github.com/quantumflow/aichat/pkg/chat"
)

var (
	// ErrUpstream wraps any failure of the provider call itself.
	ErrUpstream = errors.New("upstream provider call failed")
	// ErrEmptyResponse is returned when the provider answered without any
	// usable content.
	ErrEmptyResponse = errors.New("provider returned no content")
)

// Defaults match the original service parameters.
const (
	DefaultModel        = "gpt-3.5-turbo"
	DefaultTemperature  = 0.7
	DefaultMaxTokens    = 1000
	DefaultImageSize    = "1024x1024"
	DefaultImageQuality = "standard"
)

// SystemPreamble is prepended to every completion request.
const SystemPreamble = "You are a helpful AI assistant powered by QuantumFlow AI Ecosystem. You provide accurate, helpful, and thoughtful responses."

// CompleteOptions tune a single completion call. Zero values fall back to the
// package defaults.
type CompleteOptions struct {
	Model       string
	Temperature float32
	MaxTokens   int
}

func (o CompleteOptions) withDefaults() CompleteOptions {
	if o.Model == "" {
		o.Model = DefaultModel
	}
	if o.Temperature == 0 {
		o.Temperature = DefaultTemperature
	}
	if o.MaxTokens == 0 {
		o.MaxTokens = DefaultMaxTokens
	}
	return o
}

// Client is the gateway surface used by the relay and the HTTP handlers.
type Client interface {
	// Complete sends the system preamble plus the given history to the
	// provider and returns a single assistant message.
	Complete(ctx context.Context, history []chat.Message, opts CompleteOptions) (chat.Message, error)
	// GenerateImage synthesizes an image for the prompt and returns it as an
	// image-variant message carrying a base64 data URI.
	GenerateImage(ctx context.Context, prompt, size string) (chat.Message, error)
}
