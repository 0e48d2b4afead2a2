package bank

import (
	"sync"
	"sync/atomic"
)

// Role names a capability required by privileged entry points.
type Role string

const (
	// RoleAdmin may register price feeds and change the bank cap.
	RoleAdmin Role = "admin"
	// RolePauser may gate deposits and withdrawals on and off.
	RolePauser Role = "pauser"
)

// AccessControl is the authorization interface consumed by the engine.
type AccessControl interface {
	HasRole(role Role, caller Owner) bool
}

// PauseState is the pause-gating interface consumed by the engine.
type PauseState interface {
	IsPaused() bool
}

// RoleSet is a minimal in-memory AccessControl implementation. Deployments
// fronted by an external authorization service supply their own.
type RoleSet struct {
	mu    sync.RWMutex
	roles map[Role]map[Owner]struct{}
}

// NewRoleSet constructs an empty role table.
func NewRoleSet() *RoleSet {
	return &RoleSet{roles: make(map[Role]map[Owner]struct{})}
}

// Grant adds the role to the caller.
func (r *RoleSet) Grant(role Role, caller Owner) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	members, ok := r.roles[role]
	if !ok {
		members = make(map[Owner]struct{})
		r.roles[role] = members
	}
	members[caller] = struct{}{}
}

// Revoke removes the role from the caller.
func (r *RoleSet) Revoke(role Role, caller Owner) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.roles[role], caller)
}

// HasRole implements the AccessControl interface.
func (r *RoleSet) HasRole(role Role, caller Owner) bool {
	if r == nil {
		return false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.roles[role][caller]
	return ok
}

// PauseSwitch is a minimal in-memory PauseState implementation.
type PauseSwitch struct {
	paused atomic.Bool
}

// Pause gates deposit and withdrawal entry points off.
func (p *PauseSwitch) Pause() {
	if p == nil {
		return
	}
	p.paused.Store(true)
}

// Unpause re-enables deposit and withdrawal entry points.
func (p *PauseSwitch) Unpause() {
	if p == nil {
		return
	}
	p.paused.Store(false)
}

// IsPaused implements the PauseState interface.
func (p *PauseSwitch) IsPaused() bool {
	if p == nil {
		return false
	}
	return p.paused.Load()
}
