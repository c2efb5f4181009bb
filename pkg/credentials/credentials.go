// Package credentials resolves the API key and upstream endpoint for a
// provider ahead of any network call. Resolution never blocks: a missing
// key for a key-requiring provider is reported immediately as
// llm.CredentialError.
package credentials

import (
	"os"

	"github.com/papercompute/fable/pkg/llm"
)

// providerEnvVars maps provider names to their expected environment variables.
var providerEnvVars = map[string]string{
	"openai":    "OPENAI_API_KEY",
	"anthropic": "ANTHROPIC_API_KEY",
}

// keylessProviders need no API key at all (self-hosted endpoints).
var keylessProviders = map[string]bool{
	"ollama": true,
}

// Manager resolves credentials per provider.
//
// Key resolution order (highest priority first):
//  1. Explicit per-request override (a conversation-scoped key)
//  2. Configured keys (from the config file)
//  3. Environment variables (OPENAI_API_KEY / ANTHROPIC_API_KEY)
type Manager struct {
	keys      map[string]string
	upstreams map[string]string
}

// NewManager creates a Manager from configured per-provider API keys and
// optional upstream URL overrides. Both maps may be nil.
func NewManager(keys, upstreams map[string]string) *Manager {
	if keys == nil {
		keys = make(map[string]string)
	}
	if upstreams == nil {
		upstreams = make(map[string]string)
	}
	return &Manager{keys: keys, upstreams: upstreams}
}

// Resolve returns the credential for the given provider, honoring an
// explicit override key when non-empty. Returns llm.CredentialError when a
// key-requiring provider has no usable key.
func (m *Manager) Resolve(providerName, overrideKey string) (llm.Credential, error) {
	cred := llm.Credential{BaseURL: m.upstreams[providerName]}

	if keylessProviders[providerName] {
		return cred, nil
	}

	key := overrideKey
	if key == "" {
		key = m.keys[providerName]
	}
	if key == "" {
		key = os.Getenv(providerEnvVars[providerName])
	}
	if key == "" {
		return llm.Credential{}, llm.CredentialError{Provider: providerName}
	}

	cred.APIKey = key
	return cred, nil
}
