package validation

import (
	"errors"
	"fmt"
	"unicode/utf8"
)

const (
	maxMessageLength            = 32000
	maxTitleLength              = 200
	maxIntentLength             = 500
	maxCustomInstructionsLength = 4000
)

// ChatRequestValidator validates chat-related requests
type ChatRequestValidator struct{}

// NewChatRequestValidator creates a new ChatRequestValidator
func NewChatRequestValidator() *ChatRequestValidator {
	return &ChatRequestValidator{}
}

// ValidateMessage validates a chat message
func (v *ChatRequestValidator) ValidateMessage(message string) error {
	if message == "" {
		return errors.New("message cannot be empty")
	}
	if utf8.RuneCountInString(message) > maxMessageLength {
		return fmt.Errorf("message must be at most %d characters", maxMessageLength)
	}
	return nil
}

// ValidateTemperature validates the temperature parameter. Temperature is
// optional.
func (v *ChatRequestValidator) ValidateTemperature(temperature *float64) error {
	if temperature == nil {
		return nil
	}
	if *temperature < 0 || *temperature > 2 {
		return fmt.Errorf("temperature must be between 0 and 2, got %.2f", *temperature)
	}
	return nil
}

// ValidateTitle validates a conversation title
func (v *ChatRequestValidator) ValidateTitle(title string) error {
	if utf8.RuneCountInString(title) > maxTitleLength {
		return fmt.Errorf("title must be at most %d characters", maxTitleLength)
	}
	return nil
}

// ValidateIntent validates a conversation intent
func (v *ChatRequestValidator) ValidateIntent(intent string) error {
	if utf8.RuneCountInString(intent) > maxIntentLength {
		return fmt.Errorf("intent must be at most %d characters", maxIntentLength)
	}
	return nil
}

// ValidateCustomInstructions validates conversation custom instructions
func (v *ChatRequestValidator) ValidateCustomInstructions(instructions string) error {
	if utf8.RuneCountInString(instructions) > maxCustomInstructionsLength {
		return fmt.Errorf("custom_instructions must be at most %d characters", maxCustomInstructionsLength)
	}
	return nil
}

// ValidateChatRequest validates a complete chat request
func (v *ChatRequestValidator) ValidateChatRequest(message string, temperature *float64, intent, customInstructions string) error {
	if err := v.ValidateMessage(message); err != nil {
		return err
	}
	if err := v.ValidateTemperature(temperature); err != nil {
		return err
	}
	if err := v.ValidateIntent(intent); err != nil {
		return err
	}
	return v.ValidateCustomInstructions(customInstructions)
}
