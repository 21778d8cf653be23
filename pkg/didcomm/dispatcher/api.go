/*
Copyright Crubn. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package dispatcher

import (
	"github.com/crubn/aries-agent-go/pkg/didcomm/common/model"
	"github.com/crubn/aries-agent-go/pkg/didcomm/common/service"
	agentctx "github.com/crubn/aries-agent-go/pkg/framework/context"
	"github.com/crubn/aries-agent-go/pkg/store/connection"
)

// Handler handles one inbound message type. A non-nil outbound context is sent back as
// the reply.
type Handler interface {
	Handle(ctx *service.InboundMessageContext) (*service.OutboundMessageContext, error)
}

// HandlerFunc is a function adapter for Handler.
type HandlerFunc func(ctx *service.InboundMessageContext) (*service.OutboundMessageContext, error)

// Handle implements Handler.
func (f HandlerFunc) Handle(ctx *service.InboundMessageContext) (*service.OutboundMessageContext, error) {
	return f(ctx)
}

// Outbound interface of the outbound message sender.
type Outbound interface {
	// SendMessage packs the outbound message and delivers it to its destination.
	SendMessage(ctx *service.OutboundMessageContext) error

	// SendPackage delivers an already packed envelope over the given connection without
	// repacking it.
	SendPackage(agent *agentctx.Provider, conn *connection.Record, env *model.Envelope) error
}
