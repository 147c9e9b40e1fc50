package factory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tourbook-chat/pkg/llm/ollama"
)

func TestNewLLMProvider(t *testing.T) {
	p, err := NewLLMProvider("ollama", "llama3", "")
	require.NoError(t, err)
	o, ok := p.(*ollama.OllamaProvider)
	require.True(t, ok)
	assert.Equal(t, "http://localhost:11434", o.BaseURL)

	_, err = NewLLMProvider("ollama", "", "")
	assert.Error(t, err)

	_, err = NewLLMProvider("none", "", "")
	assert.ErrorIs(t, err, ErrDisabled)

	_, err = NewLLMProvider("gpt-9", "x", "")
	assert.Error(t, err)
}
