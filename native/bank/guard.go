package bank

import "sync/atomic"

// operationGuard is the whole-operation mutual exclusion covering every entry
// point that both mutates ledger state and performs an external call. It is
// acquired on entry and released on every exit path; a reentrant call from
// inside an external collaborator observes the held guard and is rejected.
type operationGuard struct {
	locked atomic.Bool
}

func (g *operationGuard) enter() error {
	if !g.locked.CompareAndSwap(false, true) {
		return ErrReentrantCall
	}
	return nil
}

func (g *operationGuard) exit() {
	g.locked.Store(false)
}
