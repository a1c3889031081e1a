// Package provider builds translation clients for the supported services.
package provider

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/MimeLyc/scene-sub-translator/internal/llm"
	"github.com/MimeLyc/scene-sub-translator/internal/translator"
)

var ErrUnknownProvider = errors.New("unknown provider")

// Config selects and configures a provider.
type Config struct {
	Name       string
	LLM        llm.Config
	MaxRetries int
	// RetryDelay is the first backoff delay; it doubles on each attempt.
	RetryDelay time.Duration
}

// Factory creates a client for one provider.
type Factory func(cfg Config) (translator.Client, error)

// Registry maps provider names to factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// DefaultRegistry knows openai, openrouter and dummy.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register("openai", newChatClient)
	r.Register("openrouter", newChatClient)
	r.Register("dummy", func(Config) (translator.Client, error) { return NewDummy(), nil })
	return r
}

func (r *Registry) Register(name string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[strings.ToLower(name)] = f
}

// New creates the client named by cfg.Name.
func (r *Registry) New(cfg Config) (translator.Client, error) {
	r.mu.RLock()
	f, ok := r.factories[strings.ToLower(cfg.Name)]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q (available: %s)", ErrUnknownProvider, cfg.Name, strings.Join(r.Names(), ", "))
	}
	return f(cfg)
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
