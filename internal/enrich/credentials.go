package enrich

import (
	"context"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/sheriff-sales/pkg/valuation"
)

// ErrNoCredential is returned once every token has been probed and rejected.
var ErrNoCredential = eris.New("enrich: no working valuation credential")

// LookupFunc performs one valuation lookup with token.
type LookupFunc func(ctx context.Context, token string) (*valuation.Bundle, error)

// CredentialPool holds an ordered list of valuation tokens. The first call
// of a run probes every token in parallel and adopts the lowest-ordered one
// that succeeds; later calls in the same run use it without probing again.
// Reset starts a new run.
type CredentialPool struct {
	tokens []string

	mu      sync.Mutex
	adopted int
	probed  bool
}

// NewCredentialPool creates a pool over tokens, in preference order.
func NewCredentialPool(tokens []string) *CredentialPool {
	return &CredentialPool{tokens: append([]string(nil), tokens...), adopted: -1}
}

// Reset forgets the adopted token and the probe outcome so the next call
// probes again.
func (p *CredentialPool) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.adopted = -1
	p.probed = false
}

// Adopted returns the token in use and its position in the pool.
func (p *CredentialPool) Adopted() (token string, index int, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.adopted < 0 {
		return "", -1, false
	}
	return p.tokens[p.adopted], p.adopted, true
}

// Do runs fn with the adopted token, probing the pool on first use. Callers
// arriving during the probe wait for its outcome.
func (p *CredentialPool) Do(ctx context.Context, fn LookupFunc) (*valuation.Bundle, error) {
	p.mu.Lock()
	if p.adopted >= 0 {
		token := p.tokens[p.adopted]
		p.mu.Unlock()
		return fn(ctx, token)
	}
	defer p.mu.Unlock()
	if p.probed {
		return nil, ErrNoCredential
	}
	if len(p.tokens) == 0 {
		p.probed = true
		return nil, eris.Wrap(ErrNoCredential, "enrich: credential pool is empty")
	}
	return p.probe(ctx, fn)
}

// probe must be called with p.mu held.
func (p *CredentialPool) probe(ctx context.Context, fn LookupFunc) (*valuation.Bundle, error) {
	type outcome struct {
		bundle *valuation.Bundle
		err    error
	}
	results := make([]outcome, len(p.tokens))

	var g errgroup.Group
	for i, token := range p.tokens {
		g.Go(func() error {
			b, err := fn(ctx, token)
			results[i] = outcome{bundle: b, err: err}
			return nil
		})
	}
	_ = g.Wait()
	p.probed = true

	for i, r := range results {
		if r.err == nil {
			p.adopted = i
			zap.L().Info("enrich: adopted valuation credential", zap.Int("index", i))
			return r.bundle, nil
		}
		zap.L().Warn("enrich: valuation credential rejected", zap.Int("index", i), zap.Error(r.err))
	}
	return nil, ErrNoCredential
}
