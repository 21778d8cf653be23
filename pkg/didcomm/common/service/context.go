/*
Copyright Crubn. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package service

import (
	"errors"

	"github.com/crubn/aries-agent-go/pkg/didcomm/transport"
	agentctx "github.com/crubn/aries-agent-go/pkg/framework/context"
	"github.com/crubn/aries-agent-go/pkg/store/connection"
)

// ErrConnectionNotReady is returned by handlers that require an established connection
// when the resolved connection has not completed the exchange.
var ErrConnectionNotReady = errors.New("connection not ready")

// InboundMessageContext carries one decrypted inbound message through dispatch together
// with everything known about its origin.
type InboundMessageContext struct {
	// Message is the parsed plaintext message.
	Message DIDCommMsgMap

	// Agent is the tenant context the message was delivered to.
	Agent *agentctx.Provider

	// Connection resolved from the sender key, nil for messages from unknown parties.
	Connection *connection.Record

	// SenderKey is the base58 sender verification key, empty for anonymous envelopes.
	SenderKey string

	// RecipientKey is the base58 verification key the envelope was decrypted with.
	RecipientKey string

	// Session is the live transport session the message arrived on, when the transport
	// supports replies.
	Session transport.Session
}

// AssertReadyConnection returns the connection record when it exists and has completed
// the exchange, or ErrConnectionNotReady.
func (c *InboundMessageContext) AssertReadyConnection() (*connection.Record, error) {
	if c.Connection == nil || !c.Connection.IsReady() {
		return nil, ErrConnectionNotReady
	}

	return c.Connection, nil
}

// OutboundMessageContext carries an outbound message together with the routing
// information needed to deliver it.
type OutboundMessageContext struct {
	// Message is the plaintext message to deliver.
	Message DIDCommMsgMap

	// Agent is the tenant context the message is sent on behalf of.
	Agent *agentctx.Provider

	// Connection the message belongs to, when one exists.
	Connection *connection.Record

	// Destination overrides connection-derived routing when set.
	Destination *Destination
}
