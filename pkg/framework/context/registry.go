/*
Copyright Crubn. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package context

import (
	"errors"
	"fmt"
	"sync"
)

// ErrUnknownTenant is returned when no context is registered for a tenant id.
var ErrUnknownTenant = errors.New("unknown tenant")

// Registry maps tenant ids to their agent contexts. The context registered first becomes
// the default, used when a message cannot be attributed to a tenant.
type Registry struct {
	lock          sync.RWMutex
	contexts      map[string]*Provider
	defaultTenant string
}

// NewRegistry returns a new tenant context registry.
func NewRegistry() *Registry {
	return &Registry{contexts: make(map[string]*Provider)}
}

// Register binds a context to a tenant id.
func (r *Registry) Register(tenantID string, ctx *Provider) error {
	if tenantID == "" {
		return errors.New("tenant id is mandatory")
	}

	if ctx == nil {
		return errors.New("nil context")
	}

	r.lock.Lock()
	defer r.lock.Unlock()

	if _, ok := r.contexts[tenantID]; ok {
		return fmt.Errorf("tenant already registered: %s", tenantID)
	}

	r.contexts[tenantID] = ctx

	if r.defaultTenant == "" {
		r.defaultTenant = tenantID
	}

	return nil
}

// Resolve returns the context for a tenant id. An empty tenant id resolves to the
// default context.
func (r *Registry) Resolve(tenantID string) (*Provider, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	if tenantID == "" {
		tenantID = r.defaultTenant
	}

	ctx, ok := r.contexts[tenantID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTenant, tenantID)
	}

	return ctx, nil
}

// TenantIDs returns the ids of all registered tenants.
func (r *Registry) TenantIDs() []string {
	r.lock.RLock()
	defer r.lock.RUnlock()

	ids := make([]string, 0, len(r.contexts))

	for id := range r.contexts {
		ids = append(ids, id)
	}

	return ids
}
