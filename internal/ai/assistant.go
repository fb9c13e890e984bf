package ai

import (
	"context"
)

// Request is a single text generation call.
type Request struct {
	Model       string
	System      string
	Prompt      string
	Temperature float32
	MaxTokens   int
}

// Response is the provider output with the usage it reported, if any.
type Response struct {
	Text        string
	TotalTokens int
}

// Generator produces text from a prompt.
type Generator interface {
	Generate(ctx context.Context, req Request) (Response, error)
	Provider() string
	Model() string
}

// GeneratorFunc adapts a function to the Generator interface.
type GeneratorFunc func(ctx context.Context, req Request) (Response, error)

func (f GeneratorFunc) Generate(ctx context.Context, req Request) (Response, error) {
	return f(ctx, req)
}

func (GeneratorFunc) Provider() string { return "func" }

func (GeneratorFunc) Model() string { return "" }
