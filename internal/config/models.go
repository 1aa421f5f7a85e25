package config

import (
	"encoding/json"
	"math"
	"os"
)

// Model represents an available LLM model with its billing rates.
// Prices are USD per 1000 tokens.
type Model struct {
	ID               string  `json:"id"`
	Name             string  `json:"name"`
	Provider         string  `json:"provider"`
	InputPricePer1K  float64 `json:"input_price_per_1k"`
	OutputPricePer1K float64 `json:"output_price_per_1k"`
	MaxContextTokens int     `json:"max_context_tokens"`
}

// ModelsConfig holds the available models configuration
type ModelsConfig struct {
	models []Model
}

// NewModelsConfig creates a new models configuration from a file
func NewModelsConfig(configPath string) (*ModelsConfig, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	var models []Model
	err = json.Unmarshal(data, &models)
	if err != nil {
		return nil, err
	}

	return &ModelsConfig{models: models}, nil
}

// NewModelsConfigFromModels creates a models configuration from an in-memory
// list. Used by tests.
func NewModelsConfigFromModels(models []Model) *ModelsConfig {
	return &ModelsConfig{models: models}
}

// GetAvailableModels returns the list of available models
func (mc *ModelsConfig) GetAvailableModels() []Model {
	return mc.models
}

// IsValidModel checks if a model ID is in the list of available models
func (mc *ModelsConfig) IsValidModel(modelID string) bool {
	for _, model := range mc.models {
		if model.ID == modelID {
			return true
		}
	}
	return false
}

// GetModel returns the model with the given ID, or nil if not configured
func (mc *ModelsConfig) GetModel(modelID string) *Model {
	for i := range mc.models {
		if mc.models[i].ID == modelID {
			return &mc.models[i]
		}
	}
	return nil
}

// GetDefaultModel returns the first model as the default
func (mc *ModelsConfig) GetDefaultModel() string {
	if len(mc.models) > 0 {
		return mc.models[0].ID
	}
	// Fallback in case no models are configured (shouldn't happen)
	return "gpt-4o-mini"
}

// CostFor computes the billing cost for a request against this model,
// rounded to 4 decimal places.
func (m *Model) CostFor(promptTokens, completionTokens int) float64 {
	cost := float64(promptTokens)/1000*m.InputPricePer1K +
		float64(completionTokens)/1000*m.OutputPricePer1K
	return math.Round(cost*10000) / 10000
}
