package rules

import (
	"sync/atomic"

	"github.com/bigcats-cc/email-sieve/internal/types"
)

// Engine holds the active routing configuration for the service.
// Each resolution works on one immutable snapshot; Reload swaps the snapshot
// between messages without locking readers.
type Engine struct {
	cfg atomic.Pointer[types.Config]
}

// NewEngine validates cfg and returns an engine serving it.
func NewEngine(cfg *types.Config) (*Engine, error) {
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	e := &Engine{}
	e.cfg.Store(cfg)
	return e, nil
}

// Config returns the active configuration snapshot.
func (e *Engine) Config() *types.Config {
	return e.cfg.Load()
}

// Reload validates cfg and makes it the active configuration.
// The previous configuration stays active when validation fails.
func (e *Engine) Reload(cfg *types.Config) error {
	if err := Validate(cfg); err != nil {
		return err
	}
	e.cfg.Store(cfg)
	return nil
}

// Resolve returns the decision for msg under the active configuration.
func (e *Engine) Resolve(msg *types.EnrichedMessage) (types.ResolvedAction, error) {
	return ResolveAction(e.cfg.Load(), msg)
}
