// Package catalog is the static registry of chat models MultiChat can
// route to, with per-million-token pricing and provider routing names.
package catalog

import (
	"fmt"
	"sort"
)

// Provider identifies the vendor family a model belongs to
type Provider string

const (
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
	ProviderGoogle    Provider = "google"
	ProviderTogether  Provider = "together"
)

// ModelDescriptor describes one routable model. Immutable after startup.
type ModelDescriptor struct {
	ID          string   `json:"id"`
	Provider    Provider `json:"provider"`
	DisplayName string   `json:"name"`

	// RoutingName is the identifier the provider's API expects when it
	// differs from our public ID (aggregator slugs, preview suffixes).
	RoutingName string `json:"-"`

	// Prices are USD per 1,000,000 tokens.
	InputPricePerM  float64 `json:"input_cost"`
	OutputPricePerM float64 `json:"output_cost"`
}

// WireName returns the identifier to send to the provider's API.
func (m ModelDescriptor) WireName() string {
	if m.RoutingName != "" {
		return m.RoutingName
	}
	return m.ID
}

// ErrUnknownModel is returned when a model id is not in the registry.
// Callers should treat it as a client mistake, not a provider outage.
type ErrUnknownModel struct {
	ID string
}

func (e *ErrUnknownModel) Error() string {
	return fmt.Sprintf("catalog: unknown model %q", e.ID)
}

// Credentials reports which provider keys are configured. The catalog
// reads it once at construction; a provider without a key contributes
// no models to ListAvailable.
type Credentials struct {
	OpenAI    bool
	Anthropic bool
	Google    bool
	Together  bool
}

// Has reports whether a credential is present for the provider.
func (c Credentials) Has(p Provider) bool {
	switch p {
	case ProviderOpenAI:
		return c.OpenAI
	case ProviderAnthropic:
		return c.Anthropic
	case ProviderGoogle:
		return c.Google
	case ProviderTogether:
		return c.Together
	}
	return false
}

// registry is the full model table. Display names and prices track the
// vendors' published list prices.
var registry = []ModelDescriptor{
	// OpenAI GPT-5 series
	{ID: "gpt-5.2", Provider: ProviderOpenAI, DisplayName: "GPT-5.2", InputPricePerM: 1.75, OutputPricePerM: 14.00},
	{ID: "gpt-5.2-pro", Provider: ProviderOpenAI, DisplayName: "GPT-5.2 Pro", InputPricePerM: 21.00, OutputPricePerM: 168.00},
	{ID: "gpt-5-mini", Provider: ProviderOpenAI, DisplayName: "GPT-5 mini", InputPricePerM: 0.25, OutputPricePerM: 2.00},

	// Anthropic Claude 4.5 series. The API spells the version with a hyphen.
	{ID: "claude-opus-4.5", Provider: ProviderAnthropic, DisplayName: "Claude Opus 4.5", RoutingName: "claude-opus-4-5", InputPricePerM: 18.00, OutputPricePerM: 90.00},
	{ID: "claude-sonnet-4.5", Provider: ProviderAnthropic, DisplayName: "Claude Sonnet 4.5", RoutingName: "claude-sonnet-4-5", InputPricePerM: 4.00, OutputPricePerM: 20.00},

	// Google Gemini 3 series, still served under preview names
	{ID: "gemini-3-pro", Provider: ProviderGoogle, DisplayName: "Gemini 3 Pro", RoutingName: "gemini-3-pro-preview", InputPricePerM: 2.00, OutputPricePerM: 12.00},
	{ID: "gemini-3-flash", Provider: ProviderGoogle, DisplayName: "Gemini 3 Flash", RoutingName: "gemini-3-flash-preview", InputPricePerM: 0.50, OutputPricePerM: 3.00},

	// Open-weight models served through Together's OpenAI-compatible API
	{ID: "deepseek-r1", Provider: ProviderTogether, DisplayName: "DeepSeek R1", RoutingName: "deepseek-ai/DeepSeek-R1", InputPricePerM: 0.30, OutputPricePerM: 1.20},
	{ID: "qwen-3-max", Provider: ProviderTogether, DisplayName: "Qwen 3 Max", RoutingName: "Qwen/Qwen2.5-72B-Instruct-Turbo", InputPricePerM: 0.60, OutputPricePerM: 2.00},
}

// Catalog resolves model ids and lists the models usable with the
// credentials present at startup.
type Catalog struct {
	byID      map[string]ModelDescriptor
	available []ModelDescriptor
}

// New builds a catalog filtered by the configured credentials.
func New(creds Credentials) *Catalog {
	c := &Catalog{byID: make(map[string]ModelDescriptor, len(registry))}
	for _, m := range registry {
		c.byID[m.ID] = m
		if creds.Has(m.Provider) {
			c.available = append(c.available, m)
		}
	}
	sort.Slice(c.available, func(i, j int) bool {
		return c.available[i].ID < c.available[j].ID
	})
	return c
}

// Resolve looks up a model by public id. Unknown ids return
// *ErrUnknownModel.
func (c *Catalog) Resolve(id string) (ModelDescriptor, error) {
	m, ok := c.byID[id]
	if !ok {
		return ModelDescriptor{}, &ErrUnknownModel{ID: id}
	}
	return m, nil
}

// ListAvailable returns the models whose provider credential is
// configured. The slice is a copy; callers may not mutate catalog state.
func (c *Catalog) ListAvailable() []ModelDescriptor {
	out := make([]ModelDescriptor, len(c.available))
	copy(out, c.available)
	return out
}
