/*
Copyright Crubn. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package outbound

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/btcsuite/btcutil/base58"
	"github.com/google/uuid"
	"github.com/hyperledger/aries-framework-go/component/log"

	"github.com/crubn/aries-agent-go/pkg/didcomm/common/model"
	"github.com/crubn/aries-agent-go/pkg/didcomm/common/service"
	commontransport "github.com/crubn/aries-agent-go/pkg/didcomm/common/transport"
	"github.com/crubn/aries-agent-go/pkg/didcomm/protocol/decorator"
	"github.com/crubn/aries-agent-go/pkg/didcomm/transport"
	agentctx "github.com/crubn/aries-agent-go/pkg/framework/context"
	"github.com/crubn/aries-agent-go/pkg/store/connection"
)

var logger = log.New("aries-agent/outbound")

// ErrUnresolvedDestination is returned when no delivery path exists for a message: no
// live session, no reachable endpoint and no routing keys.
var ErrUnresolvedDestination = errors.New("could not resolve destination")

// ErrDeliveryFailed is returned when a delivery path existed but the send failed.
var ErrDeliveryFailed = errors.New("message delivery failed")

type provider interface {
	TransportRegistry() *transport.Registry
}

// Sender packs outbound messages and delivers them, preferring live return-route
// sessions over dialing out.
type Sender struct {
	transports *transport.Registry
}

// New returns a new outbound message sender.
func New(prov provider) *Sender {
	return &Sender{transports: prov.TransportRegistry()}
}

// SendMessage packs the outbound message and delivers it to its destination.
func (s *Sender) SendMessage(ctx *service.OutboundMessageContext) error {
	if ctx.Agent == nil {
		return errors.New("send message: agent context is mandatory")
	}

	dest, err := resolveDestination(ctx)
	if err != nil {
		return err
	}

	msg := ctx.Message

	if route := ctx.Agent.TransportReturnRoute(); route != "" && len(dest.RoutingKeys) == 0 {
		msg = addReturnRoute(msg, route)
	}

	plaintext, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("send message: marshal: %w", err)
	}

	var senderKey []byte

	if ctx.Connection != nil && ctx.Connection.MyKey != "" {
		senderKey = base58.Decode(ctx.Connection.MyKey)
	}

	packed, err := ctx.Agent.Packager().PackMessage(&commontransport.Envelope{
		Message:    plaintext,
		FromVerKey: senderKey,
		ToVerKeys:  dest.RecipientKeys,
	})
	if err != nil {
		return fmt.Errorf("send message: pack: %w", err)
	}

	return s.deliver(ctx.Agent, dest, packed)
}

// SendPackage delivers an already packed envelope over the given connection without
// repacking it.
func (s *Sender) SendPackage(agent *agentctx.Provider, conn *connection.Record, env *model.Envelope) error {
	if conn == nil {
		return fmt.Errorf("%w: no connection", ErrUnresolvedDestination)
	}

	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("send package: marshal: %w", err)
	}

	return s.deliver(agent, destinationFromConnection(conn), data)
}

// deliver tries, in order: a live session bound to one of the recipient keys, the
// mediator route when routing keys exist, and finally a direct dial to the endpoint.
func (s *Sender) deliver(agent *agentctx.Provider, dest *service.Destination, packed []byte) error {
	for _, verKey := range dest.RecipientKeys {
		session, ok := s.transports.Session(verKey)
		if !ok {
			continue
		}

		if err := session.Send(packed); err != nil {
			logger.Warnf("session send to %s failed, falling back: %v", verKey, err)
			s.transports.RemoveSession(verKey, session)

			continue
		}

		return nil
	}

	if len(dest.RoutingKeys) != 0 {
		return s.forward(agent, dest, packed)
	}

	if dest.ServiceEndpoint == "" {
		return fmt.Errorf("%w: no session and no endpoint", ErrUnresolvedDestination)
	}

	outbound, ok := s.transports.OutboundForEndpoint(dest.ServiceEndpoint)
	if !ok {
		return fmt.Errorf("%w: no transport accepts %s", ErrUnresolvedDestination, dest.ServiceEndpoint)
	}

	if _, err := outbound.Send(packed, dest.ServiceEndpoint); err != nil {
		return fmt.Errorf("%w: %s", ErrDeliveryFailed, err)
	}

	return nil
}

// forward wraps the packed envelope in a forward message for the recipient's mediator
// and delivers it to the mediator's endpoint. The wrap is anoncrypt, mediators do not
// learn the sender.
func (s *Sender) forward(agent *agentctx.Provider, dest *service.Destination, packed []byte) error {
	env := &model.Envelope{}

	if err := json.Unmarshal(packed, env); err != nil {
		return fmt.Errorf("forward: unexpected envelope format: %w", err)
	}

	if len(dest.RecipientKeys) == 0 {
		return fmt.Errorf("%w: forward needs a recipient key", ErrUnresolvedDestination)
	}

	fwd := &model.Forward{
		Type: service.ForwardMsgType,
		ID:   uuid.New().String(),
		To:   dest.RecipientKeys[0],
		Msg:  env,
	}

	plaintext, err := json.Marshal(fwd)
	if err != nil {
		return fmt.Errorf("forward: marshal: %w", err)
	}

	packedFwd, err := agent.Packager().PackMessage(&commontransport.Envelope{
		Message:   plaintext,
		ToVerKeys: []string{dest.RoutingKeys[0]},
	})
	if err != nil {
		return fmt.Errorf("forward: pack: %w", err)
	}

	return s.deliver(agent, &service.Destination{
		RecipientKeys:   []string{dest.RoutingKeys[0]},
		ServiceEndpoint: dest.ServiceEndpoint,
	}, packedFwd)
}

func resolveDestination(ctx *service.OutboundMessageContext) (*service.Destination, error) {
	if ctx.Destination != nil {
		if len(ctx.Destination.RecipientKeys) == 0 {
			return nil, fmt.Errorf("%w: destination has no recipient keys", ErrUnresolvedDestination)
		}

		return ctx.Destination, nil
	}

	if ctx.Connection == nil {
		return nil, fmt.Errorf("%w: no destination and no connection", ErrUnresolvedDestination)
	}

	return destinationFromConnection(ctx.Connection), nil
}

func destinationFromConnection(conn *connection.Record) *service.Destination {
	recipientKeys := conn.RecipientKeys
	if len(recipientKeys) == 0 && conn.TheirKey != "" {
		recipientKeys = []string{conn.TheirKey}
	}

	return &service.Destination{
		RecipientKeys:   recipientKeys,
		ServiceEndpoint: conn.ServiceEndpoint,
		RoutingKeys:     conn.RoutingKeys,
	}
}

func addReturnRoute(msg service.DIDCommMsgMap, route string) service.DIDCommMsgMap {
	if msg.ReturnRoute() != "" {
		return msg
	}

	out := msg.Clone()
	out["~transport"] = decorator.ReturnRoute{Value: route}

	return out
}
