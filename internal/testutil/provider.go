package testutil

import (
	"context"
	"errors"

	"kenchat/internal/service/ai"
)

// MockProvider is a mock implementation of ai.Provider for testing
type MockProvider struct {
	GenerateResponseFunc       func(ctx context.Context, messages []ai.Message, model string, opts ai.Options) (*ai.Response, error)
	GenerateResponseStreamFunc func(ctx context.Context, messages []ai.Message, model string, opts ai.Options) (<-chan ai.StreamChunk, error)
	DefaultModelFunc           func() string
	ValidateModelFunc          func(model string) error
}

var _ ai.Provider = (*MockProvider)(nil)

func (m *MockProvider) GenerateResponse(ctx context.Context, messages []ai.Message, model string, opts ai.Options) (*ai.Response, error) {
	if m.GenerateResponseFunc != nil {
		return m.GenerateResponseFunc(ctx, messages, model, opts)
	}
	return nil, errors.New("not implemented")
}

func (m *MockProvider) GenerateResponseStream(ctx context.Context, messages []ai.Message, model string, opts ai.Options) (<-chan ai.StreamChunk, error) {
	if m.GenerateResponseStreamFunc != nil {
		return m.GenerateResponseStreamFunc(ctx, messages, model, opts)
	}
	return nil, errors.New("not implemented")
}

func (m *MockProvider) DefaultModel() string {
	if m.DefaultModelFunc != nil {
		return m.DefaultModelFunc()
	}
	return "gpt-4o-mini"
}

func (m *MockProvider) ValidateModel(model string) error {
	if m.ValidateModelFunc != nil {
		return m.ValidateModelFunc(model)
	}
	return nil
}
