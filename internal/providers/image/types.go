package image

import (
	"context"

	"aistudio/internal/domain"
)

// Generator is the contract implemented by every image generation backend.
// Attempt performs exactly one try; retries belong to the caller.
type Generator interface {
	Attempt(ctx context.Context, req domain.GenerationRequest) (*domain.GenerationResponse, error)
}

// GeneratorFunc adapts a plain function to the Generator interface.
type GeneratorFunc func(ctx context.Context, req domain.GenerationRequest) (*domain.GenerationResponse, error)

// Attempt calls f.
func (f GeneratorFunc) Attempt(ctx context.Context, req domain.GenerationRequest) (*domain.GenerationResponse, error) {
	return f(ctx, req)
}
