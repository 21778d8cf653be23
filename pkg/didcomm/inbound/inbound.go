/*
Copyright Crubn. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package inbound

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/btcsuite/btcutil/base58"
	"github.com/cenkalti/backoff/v4"
	"github.com/hyperledger/aries-framework-go/component/log"

	"github.com/crubn/aries-agent-go/pkg/didcomm/common/service"
	commontransport "github.com/crubn/aries-agent-go/pkg/didcomm/common/transport"
	"github.com/crubn/aries-agent-go/pkg/didcomm/dispatcher"
	"github.com/crubn/aries-agent-go/pkg/didcomm/packer"
	"github.com/crubn/aries-agent-go/pkg/didcomm/protocol/decorator"
	"github.com/crubn/aries-agent-go/pkg/didcomm/transport"
	agentctx "github.com/crubn/aries-agent-go/pkg/framework/context"
	"github.com/crubn/aries-agent-go/pkg/store/connection"
)

var logger = log.New("aries-agent/inbound")

const (
	lookupRetryInterval = 100 * time.Millisecond
	lookupMaxRetries    = 3
)

type provider interface {
	ContextRegistry() *agentctx.Registry
	Dispatcher() *dispatcher.Dispatcher
	Outbound() dispatcher.Outbound
	TransportRegistry() *transport.Registry
	MsgEvents() *service.Message
}

// Receiver drives one inbound message through unpack, connection resolution and
// dispatch, and sends the handler's reply back out.
type Receiver struct {
	contexts   *agentctx.Registry
	dispatcher *dispatcher.Dispatcher
	outbound   dispatcher.Outbound
	transports *transport.Registry
	msgEvents  *service.Message

	wg       sync.WaitGroup
	stopLock sync.RWMutex
	stopped  bool
}

// New returns a new inbound message receiver.
func New(prov provider) *Receiver {
	return &Receiver{
		contexts:   prov.ContextRegistry(),
		dispatcher: prov.Dispatcher(),
		outbound:   prov.Outbound(),
		transports: prov.TransportRegistry(),
		msgEvents:  prov.MsgEvents(),
	}
}

// ReceiveOption configures the processing of one inbound message.
type ReceiveOption func(*receiveOpts)

type receiveOpts struct {
	tenantID string
}

// WithTenant attributes the message to a tenant, skipping tenant discovery.
func WithTenant(tenantID string) ReceiveOption {
	return func(opts *receiveOpts) {
		opts.tenantID = tenantID
	}
}

// HandlerFunc provides the transport.InboundMessageHandler of this receiver.
func (r *Receiver) HandlerFunc() transport.InboundMessageHandler {
	return func(message []byte, session transport.Session) error {
		return r.ReceiveMessage(message, session)
	}
}

// ReceiveMessage processes one raw inbound envelope.
func (r *Receiver) ReceiveMessage(message []byte, session transport.Session, opts ...ReceiveOption) error {
	r.stopLock.RLock()

	if r.stopped {
		r.stopLock.RUnlock()
		return errors.New("receiver stopped")
	}

	r.wg.Add(1)
	r.stopLock.RUnlock()

	defer r.wg.Done()

	options := &receiveOpts{}

	for _, opt := range opts {
		opt(options)
	}

	agent, env, err := r.unpack(message, options.tenantID)
	if err != nil {
		return err
	}

	msg, err := service.ParseDIDCommMsgMap(env.Message)
	if err != nil {
		return fmt.Errorf("receive message: %w", err)
	}

	ictx := &service.InboundMessageContext{
		Message:      msg,
		Agent:        agent,
		RecipientKey: base58.Encode(env.ToVerKey),
		Session:      session,
	}

	if len(env.FromVerKey) != 0 {
		ictx.SenderKey = base58.Encode(env.FromVerKey)
		ictx.Connection = r.lookupConnection(agent, ictx.SenderKey)
	}

	// bind the live session to the sender so replies and pushed messages can use it
	if session != nil && ictx.SenderKey != "" && returnRouteRequested(msg) {
		r.transports.AddSession(ictx.SenderKey, session)
	}

	event := service.MsgEvent{
		TenantID:    agent.Label(),
		MessageType: msg.Type(),
		Msg:         msg.Clone(),
	}
	if ictx.Connection != nil {
		event.ConnectionID = ictx.Connection.ConnectionID
	}

	r.msgEvents.Emit(event)

	octx, err := r.dispatcher.Dispatch(ictx)
	if err != nil {
		return fmt.Errorf("receive message: %w", err)
	}

	if octx == nil {
		return nil
	}

	if octx.Agent == nil {
		octx.Agent = agent
	}

	if octx.Connection == nil {
		octx.Connection = ictx.Connection
	}

	if err := r.outbound.SendMessage(octx); err != nil {
		return fmt.Errorf("receive message: send reply: %w", err)
	}

	return nil
}

// Stop rejects new messages and waits for in-flight ones, up to the context deadline.
func (r *Receiver) Stop(ctx context.Context) error {
	r.stopLock.Lock()
	r.stopped = true
	r.stopLock.Unlock()

	done := make(chan struct{})

	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("receiver stop: %w", ctx.Err())
	}
}

// unpack resolves the tenant context and opens the envelope with it. Without a tenant
// hint the default context is tried first, then the remaining tenants, since only a
// tenant holding the right key can open the envelope.
func (r *Receiver) unpack(message []byte, tenantID string) (*agentctx.Provider, *commontransport.Envelope, error) {
	if tenantID != "" {
		agent, err := r.contexts.Resolve(tenantID)
		if err != nil {
			return nil, nil, err
		}

		env, err := agent.Packager().UnpackMessage(message)
		if err != nil {
			return nil, nil, fmt.Errorf("receive message: %w", err)
		}

		return agent, env, nil
	}

	agent, err := r.contexts.Resolve("")
	if err != nil {
		return nil, nil, err
	}

	env, err := agent.Packager().UnpackMessage(message)
	if err == nil {
		return agent, env, nil
	}

	if !errors.Is(err, packer.ErrDecryption) {
		return nil, nil, fmt.Errorf("receive message: %w", err)
	}

	for _, id := range r.contexts.TenantIDs() {
		other, resolveErr := r.contexts.Resolve(id)
		if resolveErr != nil || other == agent {
			continue
		}

		if env, unpackErr := other.Packager().UnpackMessage(message); unpackErr == nil {
			return other, env, nil
		}
	}

	return nil, nil, fmt.Errorf("receive message: %w", err)
}

// returnRouteRequested reports whether the sender asked for replies over its own
// session. A "thread" scope binds the session like "all", replies to the triggering
// message travel back over it.
func returnRouteRequested(msg service.DIDCommMsgMap) bool {
	switch msg.ReturnRoute() {
	case decorator.TransportReturnRouteAll, decorator.TransportReturnRouteThread:
		return true
	default:
		return false
	}
}

// lookupConnection resolves the connection for the sender key. Lookups retry briefly,
// the first message of a fresh connection can race the record write.
func (r *Receiver) lookupConnection(agent *agentctx.Provider, senderKey string) *connection.Record {
	if agent.ConnectionLookup() == nil {
		return nil
	}

	var conn *connection.Record

	err := backoff.Retry(func() error {
		var lookupErr error

		conn, lookupErr = agent.ConnectionLookup().GetConnectionRecordByKey(senderKey)

		return lookupErr
	}, backoff.WithMaxRetries(backoff.NewConstantBackOff(lookupRetryInterval), lookupMaxRetries))
	if err != nil {
		if !errors.Is(err, connection.ErrConnectionNotFound) {
			logger.Warnf("connection lookup for %s failed: %v", senderKey, err)
		}

		return nil
	}

	return conn
}
