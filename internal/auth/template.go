package auth

import "sync"

// Template holds the Provider the application currently authenticates with.
// The provider may be replaced at runtime.
type Template struct {
	mu       sync.RWMutex
	provider Provider
}

// NewTemplate returns a Template holding provider.
func NewTemplate(provider Provider) *Template {
	return &Template{provider: provider}
}

// Provider returns the current provider, or nil when none is set.
func (t *Template) Provider() Provider {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.provider
}

// SetProvider replaces the current provider.
func (t *Template) SetProvider(provider Provider) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.provider = provider
}
