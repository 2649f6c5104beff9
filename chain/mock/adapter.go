// Package mock provides a scriptable chain adapter for tests and local
// development runs.
package mock

import (
	"context"
	"sync"

	"github.com/nacorid/payfac/chain"
)

// Adapter implements chain.Adapter against an in-memory ledger of
// settlements seeded by tests.
type Adapter struct {
	mu          sync.Mutex
	settlements map[string]chain.SettlementDetails
	failures    map[string]error
	queries     int
}

var _ chain.Adapter = (*Adapter)(nil)

// NewAdapter creates an empty mock ledger.
func NewAdapter() *Adapter {
	return &Adapter{
		settlements: make(map[string]chain.SettlementDetails),
		failures:    make(map[string]error),
	}
}

// ResolveSettlement returns the scripted settlement or error for ref.
// Unknown references resolve to chain.ErrSettlementNotFound.
func (a *Adapter) ResolveSettlement(ctx context.Context, ref string) (*chain.SettlementDetails, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.queries++

	if err, ok := a.failures[ref]; ok {
		return nil, err
	}
	if details, ok := a.settlements[ref]; ok {
		cp := details
		return &cp, nil
	}
	return nil, chain.ErrSettlementNotFound
}

// SimulateSettlement seeds a settlement that future resolves will return.
func (a *Adapter) SimulateSettlement(details chain.SettlementDetails) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.settlements[details.Reference] = details
}

// FailWith makes resolves for ref return the given error until the ref
// is seeded via SimulateSettlement or cleared with ClearFailure.
func (a *Adapter) FailWith(ref string, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.failures[ref] = err
}

// ClearFailure removes a scripted failure for ref.
func (a *Adapter) ClearFailure(ref string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.failures, ref)
}

// Queries returns how many resolves have been issued. Tests use it to
// assert the idempotent short-circuit never re-queries the ledger.
func (a *Adapter) Queries() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.queries
}
