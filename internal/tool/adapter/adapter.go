// Package adapter implements the pluggable executors behind external
// tools. Each adapter is bound to one tool type (rest, graphql, mcp),
// holds that tool's decrypted secrets while Ready, and walks a strict
// lifecycle: Uninitialized -> Initializing -> Ready -> back to
// Uninitialized on Dispose. A failed initialization leaves the adapter
// not-ready; the registry discards it and never retries automatically.
package adapter

import (
	"context"
	"fmt"
	"sync"

	"riviera/internal/logging"
	"riviera/internal/tool"
)

// State tracks the adapter lifecycle.
type State int

const (
	StateUninitialized State = iota
	StateInitializing
	StateReady
	StateDisposed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateDisposed:
		return "disposed"
	default:
		return "unknown"
	}
}

// Adapter executes one external tool against its backing system.
// Execute assumes Ready() is true; callers are expected to check.
type Adapter interface {
	Initialize(ctx context.Context, cfg tool.Config, secrets map[string]string) error
	Execute(ctx context.Context, params map[string]any) (any, error)
	Dispose(ctx context.Context) error
	Ready() bool
}

// Base carries the shared lifecycle and secret storage for every adapter
// kind. Concrete adapters embed it and run their own setup through
// initialize().
type Base struct {
	mu      sync.Mutex
	state   State
	config  tool.Config
	secrets map[string]string
	logger  logging.Logger
}

// NewBase builds a Base with the given component logger.
func NewBase(logger logging.Logger) Base {
	return Base{logger: logging.OrNop(logger)}
}

// initialize stores config and secrets, runs the adapter-specific setup,
// and only marks the adapter Ready when setup succeeds. On failure the
// adapter returns to Uninitialized and the error propagates to the
// caller (the registry's load loop).
func (b *Base) initialize(cfg tool.Config, secrets map[string]string, setup func() error) error {
	b.mu.Lock()
	if b.state == StateInitializing || b.state == StateReady {
		b.mu.Unlock()
		return fmt.Errorf("adapter for %q already %s", cfg.Name, b.state)
	}
	b.state = StateInitializing
	b.config = cfg
	b.secrets = make(map[string]string, len(secrets))
	for k, v := range secrets {
		b.secrets[k] = v
	}
	b.mu.Unlock()

	if setup != nil {
		if err := setup(); err != nil {
			b.mu.Lock()
			b.state = StateUninitialized
			b.config = tool.Config{}
			b.secrets = nil
			b.mu.Unlock()
			return err
		}
	}

	b.mu.Lock()
	b.state = StateReady
	b.mu.Unlock()
	return nil
}

// dispose drops config and secrets and resets the lifecycle so the
// instance could be initialized again.
func (b *Base) dispose(teardown func() error) error {
	b.mu.Lock()
	b.state = StateDisposed
	b.config = tool.Config{}
	b.secrets = nil
	b.mu.Unlock()

	var err error
	if teardown != nil {
		err = teardown()
	}

	b.mu.Lock()
	b.state = StateUninitialized
	b.mu.Unlock()
	return err
}

// Ready reports whether initialization completed successfully.
func (b *Base) Ready() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state == StateReady
}

// Config returns the tool configuration captured at initialization.
func (b *Base) Config() tool.Config {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.config
}

// interpolateValue resolves {{KEY}} placeholders in v against the stored
// secrets and logs any keys that stayed unresolved.
func (b *Base) interpolateValue(v any) any {
	b.mu.Lock()
	secrets := b.secrets
	b.mu.Unlock()

	out, missing := Interpolate(v, secrets)
	if len(missing) > 0 {
		b.logger.Warn("unresolved secret placeholders for tool %q: %v", b.config.Name, missing)
	}
	return out
}
