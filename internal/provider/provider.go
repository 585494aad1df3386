// Package provider adapts generative AI backends to a single text-generation call.
package provider

import (
	"context"
	"strings"
)

// Request is one provider call. VideoURI is attached as file data when set.
type Request struct {
	Phase           string
	Model           string
	System          string
	Prompt          string
	VideoURI        string
	Temperature     float32
	MaxOutputTokens int32
	// Count is how many items the prompt asks for, 0 when not applicable.
	Count int
}

type Response struct {
	Text         string
	PromptTokens int
	OutputTokens int
	FinishReason string
}

type Generator interface {
	Generate(ctx context.Context, req Request) (*Response, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, req Request) (*Response, error)

func (f GeneratorFunc) Generate(ctx context.Context, req Request) (*Response, error) {
	return f(ctx, req)
}

// Summary is a short single-line rendering of a request for call logs.
func (r Request) Summary() string {
	var b strings.Builder
	b.WriteString(r.Phase)
	if r.Model != "" {
		b.WriteString(" model=")
		b.WriteString(r.Model)
	}
	if r.VideoURI != "" {
		b.WriteString(" video=")
		b.WriteString(r.VideoURI)
	}
	b.WriteString(" prompt=")
	prompt := strings.Join(strings.Fields(r.Prompt), " ")
	if len(prompt) > 120 {
		prompt = prompt[:120] + "..."
	}
	b.WriteString(prompt)
	return b.String()
}
