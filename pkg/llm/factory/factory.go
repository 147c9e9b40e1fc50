package factory

import (
	"errors"
	"fmt"

	"tourbook-chat/pkg/llm"
	"tourbook-chat/pkg/llm/ollama"
)

// ErrDisabled is returned for provider "none": the backend then answers AI
// mode requests with 503.
var ErrDisabled = errors.New("llm provider disabled")

func NewLLMProvider(providerType, modelName, baseURL string) (llm.LLMProvider, error) {
	switch providerType {
	case "ollama":
		if baseURL == "" {
			baseURL = "http://localhost:11434"
		}
		if modelName == "" {
			return nil, fmt.Errorf("ollama provider needs a model name")
		}
		return ollama.NewOllamaProvider(baseURL, modelName), nil
	case "none", "":
		return nil, ErrDisabled
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", providerType)
	}
}
