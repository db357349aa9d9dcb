package factory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tripgenie/tripgenie-backend/internal/config"
)

func TestCreateProvider(t *testing.T) {
	p, err := CreateProvider(config.LLMConfig{Provider: "stub"})
	require.NoError(t, err)
	assert.Equal(t, "stub", p.Name())

	p, err = CreateProvider(config.LLMConfig{Provider: "openai", APIKey: "sk-x", Model: "gpt-4o-mini"})
	require.NoError(t, err)
	assert.Equal(t, "openai", p.Name())

	_, err = CreateProvider(config.LLMConfig{Provider: "openai"})
	assert.Error(t, err)

	p, err = CreateProvider(config.LLMConfig{Provider: "anthropic", APIKey: "sk-ant"})
	require.NoError(t, err)
	assert.Equal(t, "anthropic", p.Name())

	_, err = CreateProvider(config.LLMConfig{Provider: "gemini"})
	assert.ErrorContains(t, err, "unknown provider type")
}
