/*
Copyright Crubn. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package context creates an agent Provider context holding the per-tenant services and
// provides simple accessor methods to those same services.
package context

import (
	"fmt"

	"github.com/hyperledger/aries-framework-go/spi/storage"

	commontransport "github.com/crubn/aries-agent-go/pkg/didcomm/common/transport"
	"github.com/crubn/aries-agent-go/pkg/kms"
	"github.com/crubn/aries-agent-go/pkg/store/connection"
	"github.com/crubn/aries-agent-go/pkg/store/messagequeue"
)

// Provider supplies one tenant's configuration and services to client objects.
type Provider struct {
	label                string
	storeProvider        storage.Provider
	kms                  kms.KeyManager
	packager             commontransport.Packager
	connectionRecorder   *connection.Recorder
	msgRepository        messagequeue.Repository
	serviceEndpoint      string
	transportReturnRoute string
}

// ProviderOption configures the context provider.
type ProviderOption func(opts *Provider) error

// New instantiates a new context provider.
func New(opts ...ProviderOption) (*Provider, error) {
	ctxProvider := Provider{}

	for _, opt := range opts {
		err := opt(&ctxProvider)
		if err != nil {
			return nil, fmt.Errorf("option failed: %w", err)
		}
	}

	if ctxProvider.storeProvider != nil {
		recorder, err := connection.NewRecorder(&ctxProvider)
		if err != nil {
			return nil, fmt.Errorf("initialize context connection recorder: %w", err)
		}

		ctxProvider.connectionRecorder = recorder
	}

	return &ctxProvider, nil
}

// Label returns the human readable agent label of this tenant.
func (p *Provider) Label() string {
	return p.label
}

// StorageProvider returns the storage provider.
func (p *Provider) StorageProvider() storage.Provider {
	return p.storeProvider
}

// KMS returns the key manager.
func (p *Provider) KMS() kms.KeyManager {
	return p.kms
}

// Packager returns the packager.
func (p *Provider) Packager() commontransport.Packager {
	return p.packager
}

// ConnectionLookup returns a connection.Lookup initialized on this context's store, or
// nil when the context has no storage.
func (p *Provider) ConnectionLookup() *connection.Lookup {
	if p.connectionRecorder == nil {
		return nil
	}

	return p.connectionRecorder.Lookup
}

// ConnectionRecorder returns a connection.Recorder initialized on this context's store.
func (p *Provider) ConnectionRecorder() *connection.Recorder {
	return p.connectionRecorder
}

// MessageRepository returns the queue of undelivered messages.
func (p *Provider) MessageRepository() messagequeue.Repository {
	return p.msgRepository
}

// ServiceEndpoint returns the endpoint remote agents should deliver to for this tenant.
func (p *Provider) ServiceEndpoint() string {
	return p.serviceEndpoint
}

// TransportReturnRoute returns the transport return route option configured for outbound
// messages.
func (p *Provider) TransportReturnRoute() string {
	return p.transportReturnRoute
}

// WithLabel injects the agent label into the context.
func WithLabel(label string) ProviderOption {
	return func(opts *Provider) error {
		opts.label = label
		return nil
	}
}

// WithStorageProvider injects a storage provider into the context.
func WithStorageProvider(s storage.Provider) ProviderOption {
	return func(opts *Provider) error {
		opts.storeProvider = s
		return nil
	}
}

// WithKMS injects a KMS service into the context.
func WithKMS(k kms.KeyManager) ProviderOption {
	return func(opts *Provider) error {
		opts.kms = k
		return nil
	}
}

// WithPackager injects a packager into the context.
func WithPackager(p commontransport.Packager) ProviderOption {
	return func(opts *Provider) error {
		opts.packager = p
		return nil
	}
}

// WithMessageRepository injects a message queue repository into the context.
func WithMessageRepository(repo messagequeue.Repository) ProviderOption {
	return func(opts *Provider) error {
		opts.msgRepository = repo
		return nil
	}
}

// WithServiceEndpoint injects the tenant's own service endpoint into the context.
func WithServiceEndpoint(endpoint string) ProviderOption {
	return func(opts *Provider) error {
		opts.serviceEndpoint = endpoint
		return nil
	}
}

// WithTransportReturnRoute injects the transport return route option into the context.
// Acceptable values - "none", "all" or "thread".
func WithTransportReturnRoute(transportReturnRoute string) ProviderOption {
	return func(opts *Provider) error {
		opts.transportReturnRoute = transportReturnRoute
		return nil
	}
}
