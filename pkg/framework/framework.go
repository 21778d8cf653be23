/*
Copyright Crubn. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package framework assembles the agent: per-tenant contexts, transports, the message
// pipelines and the routing protocol services.
package framework

import (
	"context"
	"fmt"
	nethttp "net/http"
	"time"

	"github.com/hyperledger/aries-framework-go/component/storageutil/mem"
	"github.com/hyperledger/aries-framework-go/spi/storage"

	"github.com/crubn/aries-agent-go/pkg/didcomm/common/service"
	commontransport "github.com/crubn/aries-agent-go/pkg/didcomm/common/transport"
	"github.com/crubn/aries-agent-go/pkg/didcomm/dispatcher"
	"github.com/crubn/aries-agent-go/pkg/didcomm/inbound"
	"github.com/crubn/aries-agent-go/pkg/didcomm/outbound"
	"github.com/crubn/aries-agent-go/pkg/didcomm/packager"
	"github.com/crubn/aries-agent-go/pkg/didcomm/packer"
	"github.com/crubn/aries-agent-go/pkg/didcomm/packer/legacy"
	"github.com/crubn/aries-agent-go/pkg/didcomm/protocol/mediator"
	"github.com/crubn/aries-agent-go/pkg/didcomm/protocol/pickup"
	"github.com/crubn/aries-agent-go/pkg/didcomm/transport"
	arieshttp "github.com/crubn/aries-agent-go/pkg/didcomm/transport/http"
	"github.com/crubn/aries-agent-go/pkg/didcomm/transport/ws"
	agentctx "github.com/crubn/aries-agent-go/pkg/framework/context"
	"github.com/crubn/aries-agent-go/pkg/kms"
	"github.com/crubn/aries-agent-go/pkg/store/messagequeue"
)

const (
	defaultLabel       = "agent"
	defaultHTTPTimeout = 20 * time.Second
)

// Agent is a running didcomm agent instance.
type Agent struct {
	contexts      *agentctx.Registry
	transports    *transport.Registry
	msgDispatcher *dispatcher.Dispatcher
	sender        *outbound.Sender
	receiver      *inbound.Receiver
	mediatorSvc   *mediator.Service
	pickupSvc     *pickup.Service
	msgEvents     *service.Message
}

type tenantConfig struct {
	id              string
	label           string
	storageProvider storage.Provider
	serviceEndpoint string
}

type options struct {
	label           string
	storageProvider storage.Provider
	serviceEndpoint string
	returnRoute     string
	pushMode        bool
	mediatorRole    bool
	inbounds        []transport.InboundTransport
	outbounds       []transport.OutboundTransport
	tenants         []tenantConfig
}

// Option configures the agent.
type Option func(*options) error

// TenantOption configures one additional tenant.
type TenantOption func(*tenantConfig)

// WithLabel sets the label of the default tenant.
func WithLabel(label string) Option {
	return func(o *options) error {
		o.label = label
		return nil
	}
}

// WithStorageProvider sets the storage of the default tenant. Defaults to in-memory
// storage.
func WithStorageProvider(sp storage.Provider) Option {
	return func(o *options) error {
		o.storageProvider = sp
		return nil
	}
}

// WithServiceEndpoint sets the endpoint remote agents deliver to.
func WithServiceEndpoint(endpoint string) Option {
	return func(o *options) error {
		o.serviceEndpoint = endpoint
		return nil
	}
}

// WithTransportReturnRoute sets the return route decorator added to outbound messages.
// Acceptable values - "none", "all" or "thread".
func WithTransportReturnRoute(returnRoute string) Option {
	return func(o *options) error {
		o.returnRoute = returnRoute
		return nil
	}
}

// WithQueuePushMode makes the mailbox announce queued envelopes for push delivery over
// live sessions instead of waiting for explicit pickup.
func WithQueuePushMode() Option {
	return func(o *options) error {
		o.pushMode = true
		return nil
	}
}

// WithMediatorRole makes the agent accept mediation requests, keylist updates and
// forwarded envelopes. Without it those message types are unsupported.
func WithMediatorRole() Option {
	return func(o *options) error {
		o.mediatorRole = true
		return nil
	}
}

// WithInboundTransport registers inbound transports.
func WithInboundTransport(transports ...transport.InboundTransport) Option {
	return func(o *options) error {
		o.inbounds = append(o.inbounds, transports...)
		return nil
	}
}

// WithOutboundTransport registers outbound transports, replacing the defaults.
func WithOutboundTransport(transports ...transport.OutboundTransport) Option {
	return func(o *options) error {
		o.outbounds = append(o.outbounds, transports...)
		return nil
	}
}

// WithTenant adds a tenant with its own storage. Tenants share the transports and the
// message pipelines but never keys, connections or mailboxes.
func WithTenant(id string, sp storage.Provider, opts ...TenantOption) Option {
	return func(o *options) error {
		if id == "" {
			return fmt.Errorf("tenant id missing")
		}

		if sp == nil {
			return fmt.Errorf("tenant %s: storage provider missing", id)
		}

		cfg := tenantConfig{id: id, label: id, storageProvider: sp}

		for _, opt := range opts {
			opt(&cfg)
		}

		o.tenants = append(o.tenants, cfg)

		return nil
	}
}

// WithTenantLabel sets the tenant's label.
func WithTenantLabel(label string) TenantOption {
	return func(cfg *tenantConfig) {
		cfg.label = label
	}
}

// WithTenantServiceEndpoint sets the tenant's own service endpoint.
func WithTenantServiceEndpoint(endpoint string) TenantOption {
	return func(cfg *tenantConfig) {
		cfg.serviceEndpoint = endpoint
	}
}

// New assembles an agent from the given options.
func New(opts ...Option) (*Agent, error) {
	o := &options{label: defaultLabel}

	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, fmt.Errorf("framework option failed: %w", err)
		}
	}

	if o.storageProvider == nil {
		o.storageProvider = mem.NewProvider()
	}

	if len(o.outbounds) == 0 {
		httpOut, err := arieshttp.NewOutbound(
			arieshttp.WithOutboundHTTPClient(&nethttp.Client{Timeout: defaultHTTPTimeout}))
		if err != nil {
			return nil, fmt.Errorf("default outbound transports: %w", err)
		}

		o.outbounds = []transport.OutboundTransport{ws.NewOutbound(), httpOut}
	}

	a := &Agent{
		contexts:      agentctx.NewRegistry(),
		transports:    transport.NewRegistry(),
		msgDispatcher: dispatcher.New(),
		msgEvents:     &service.Message{},
	}

	for _, t := range o.inbounds {
		a.transports.AddInbound(t)
	}

	for _, t := range o.outbounds {
		a.transports.AddOutbound(t)
	}

	a.sender = outbound.New(a)

	tenants := append([]tenantConfig{{
		id:              o.label,
		label:           o.label,
		storageProvider: o.storageProvider,
		serviceEndpoint: o.serviceEndpoint,
	}}, o.tenants...)

	for _, cfg := range tenants {
		ctx, err := buildTenant(cfg, o)
		if err != nil {
			return nil, fmt.Errorf("tenant %s: %w", cfg.id, err)
		}

		if err := a.contexts.Register(cfg.id, ctx); err != nil {
			return nil, err
		}
	}

	a.receiver = inbound.New(a)

	a.mediatorSvc = mediator.New(a)

	if o.mediatorRole {
		if err := a.mediatorSvc.RegisterHandlers(a.msgDispatcher); err != nil {
			return nil, err
		}
	}

	a.pickupSvc = pickup.New(a)
	if err := a.pickupSvc.RegisterHandlers(a.msgDispatcher); err != nil {
		return nil, err
	}

	return a, nil
}

func buildTenant(cfg tenantConfig, o *options) (*agentctx.Provider, error) {
	deps := &storageDeps{sp: cfg.storageProvider}

	keyManager, err := kms.New(deps)
	if err != nil {
		return nil, fmt.Errorf("create kms: %w", err)
	}

	primary := legacy.New(&packerDeps{k: keyManager})

	pkgr, err := packager.New(&packagerDeps{primary: primary})
	if err != nil {
		return nil, fmt.Errorf("create packager: %w", err)
	}

	var repo messagequeue.Repository
	if o.pushMode {
		repo, err = messagequeue.NewForwardStore(deps)
	} else {
		repo, err = messagequeue.NewStore(deps)
	}

	if err != nil {
		return nil, fmt.Errorf("create mailbox: %w", err)
	}

	endpoint := cfg.serviceEndpoint
	if endpoint == "" {
		endpoint = o.serviceEndpoint
	}

	return agentctx.New(
		agentctx.WithLabel(cfg.label),
		agentctx.WithStorageProvider(cfg.storageProvider),
		agentctx.WithKMS(keyManager),
		agentctx.WithPackager(pkgr),
		agentctx.WithMessageRepository(repo),
		agentctx.WithServiceEndpoint(endpoint),
		agentctx.WithTransportReturnRoute(o.returnRoute),
	)
}

// Start brings up the inbound transports.
func (a *Agent) Start() error {
	return a.transports.Start(a)
}

// Stop shuts down the transports and drains in-flight messages, bounded by the context
// deadline.
func (a *Agent) Stop(ctx context.Context) error {
	if err := a.transports.Stop(); err != nil {
		return fmt.Errorf("stop transports: %w", err)
	}

	return a.receiver.Stop(ctx)
}

// Context resolves a tenant context. The empty id resolves the default tenant.
func (a *Agent) Context(tenantID string) (*agentctx.Provider, error) {
	return a.contexts.Resolve(tenantID)
}

// ContextRegistry returns the tenant context registry.
func (a *Agent) ContextRegistry() *agentctx.Registry {
	return a.contexts
}

// TransportRegistry returns the transport registry.
func (a *Agent) TransportRegistry() *transport.Registry {
	return a.transports
}

// Dispatcher returns the message dispatcher. Protocol handlers are registered here
// before Start.
func (a *Agent) Dispatcher() *dispatcher.Dispatcher {
	return a.msgDispatcher
}

// Outbound returns the outbound message sender.
func (a *Agent) Outbound() dispatcher.Outbound {
	return a.sender
}

// MsgEvents returns the inbound message event registry.
func (a *Agent) MsgEvents() *service.Message {
	return a.msgEvents
}

// InboundMessageHandler returns the handler feeding raw envelopes into the receive
// pipeline.
func (a *Agent) InboundMessageHandler() transport.InboundMessageHandler {
	return a.receiver.HandlerFunc()
}

// Packager returns the default tenant's packager.
func (a *Agent) Packager() commontransport.Packager {
	ctx, err := a.contexts.Resolve("")
	if err != nil {
		return nil
	}

	return ctx.Packager()
}

// Mediator returns the mediation service.
func (a *Agent) Mediator() *mediator.Service {
	return a.mediatorSvc
}

// Pickup returns the pickup service.
func (a *Agent) Pickup() *pickup.Service {
	return a.pickupSvc
}

type storageDeps struct {
	sp storage.Provider
}

func (d *storageDeps) StorageProvider() storage.Provider { return d.sp }

type packerDeps struct {
	k kms.KeyManager
}

func (d *packerDeps) KMS() kms.KeyManager { return d.k }

type packagerDeps struct {
	primary packer.Packer
}

func (d *packagerDeps) Packers() []packer.Packer { return []packer.Packer{d.primary} }

func (d *packagerDeps) PrimaryPacker() packer.Packer { return d.primary }
