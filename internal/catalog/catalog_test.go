package catalog

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func allCreds() Credentials {
	return Credentials{OpenAI: true, Anthropic: true, Google: true, Together: true}
}

func TestResolve_KnownModel(t *testing.T) {
	c := New(allCreds())

	m, err := c.Resolve("gpt-5.2")
	require.NoError(t, err)
	assert.Equal(t, ProviderOpenAI, m.Provider)
	assert.Equal(t, "GPT-5.2", m.DisplayName)
	assert.Equal(t, 1.75, m.InputPricePerM)
	assert.Equal(t, 14.00, m.OutputPricePerM)
}

func TestResolve_UnknownModel(t *testing.T) {
	c := New(allCreds())

	_, err := c.Resolve("gpt-3.5-turbo")
	require.Error(t, err)

	var unknown *ErrUnknownModel
	require.True(t, errors.As(err, &unknown))
	assert.Equal(t, "gpt-3.5-turbo", unknown.ID)
}

func TestResolve_WorksWithoutCredential(t *testing.T) {
	// Resolve is a pure table lookup; credential filtering only affects
	// ListAvailable.
	c := New(Credentials{})

	m, err := c.Resolve("claude-opus-4.5")
	require.NoError(t, err)
	assert.Equal(t, ProviderAnthropic, m.Provider)
}

func TestWireName_RoutingOverrides(t *testing.T) {
	c := New(allCreds())

	tests := []struct {
		id   string
		wire string
	}{
		{"gpt-5.2", "gpt-5.2"}, // no override, public id goes on the wire
		{"claude-opus-4.5", "claude-opus-4-5"},
		{"claude-sonnet-4.5", "claude-sonnet-4-5"},
		{"gemini-3-pro", "gemini-3-pro-preview"},
		{"gemini-3-flash", "gemini-3-flash-preview"},
		{"deepseek-r1", "deepseek-ai/DeepSeek-R1"},
		{"qwen-3-max", "Qwen/Qwen2.5-72B-Instruct-Turbo"},
	}

	for _, tt := range tests {
		m, err := c.Resolve(tt.id)
		require.NoError(t, err)
		assert.Equal(t, tt.wire, m.WireName(), "wire name for %s", tt.id)
	}
}

func TestListAvailable_FiltersByCredential(t *testing.T) {
	c := New(Credentials{Anthropic: true, Together: true})

	models := c.ListAvailable()
	require.Len(t, models, 4)
	for _, m := range models {
		assert.Contains(t, []Provider{ProviderAnthropic, ProviderTogether}, m.Provider)
	}
}

func TestListAvailable_NoCredentials(t *testing.T) {
	c := New(Credentials{})
	assert.Empty(t, c.ListAvailable())
}

func TestListAvailable_Idempotent(t *testing.T) {
	c := New(allCreds())

	first := c.ListAvailable()
	second := c.ListAvailable()
	assert.Equal(t, first, second)

	// Mutating a returned slice must not leak into catalog state.
	first[0].DisplayName = "mutated"
	assert.NotEqual(t, "mutated", c.ListAvailable()[0].DisplayName)
}
