package store

import (
	"context"
	"fmt"
)

// ModelSettings is the mutable generation configuration, stored as a
// singleton row.
type ModelSettings struct {
	ActiveModel   string  `json:"active_model"`
	Temperature   float32 `json:"temperature"`
	ContextLength int     `json:"context_length"`
	TopP          float32 `json:"top_p"`
	FallbackModel *string `json:"fallback_model"`
	SystemPrompt  *string `json:"system_prompt"`
}

// GetModelSettings returns the current generation settings.
func (s *Store) GetModelSettings(ctx context.Context) (*ModelSettings, error) {
	var settings ModelSettings
	err := s.db.QueryRow(ctx,
		`SELECT active_model, temperature, context_length, top_p, fallback_model, system_prompt
		 FROM model_settings WHERE id = 1`).Scan(
		&settings.ActiveModel, &settings.Temperature, &settings.ContextLength,
		&settings.TopP, &settings.FallbackModel, &settings.SystemPrompt)
	if err != nil {
		return nil, fmt.Errorf("failed to get model settings: %w", err)
	}
	return &settings, nil
}

// UpdateModelSettings replaces the generation settings.
func (s *Store) UpdateModelSettings(ctx context.Context, settings *ModelSettings) error {
	_, err := s.db.Exec(ctx,
		`UPDATE model_settings SET active_model = $1, temperature = $2, context_length = $3,
		 top_p = $4, fallback_model = $5, system_prompt = $6, updated_at = NOW() WHERE id = 1`,
		settings.ActiveModel, settings.Temperature, settings.ContextLength,
		settings.TopP, settings.FallbackModel, settings.SystemPrompt)
	if err != nil {
		return fmt.Errorf("failed to update model settings: %w", err)
	}
	return nil
}
