/*
Copyright Crubn. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package transport

import (
	commontransport "github.com/crubn/aries-agent-go/pkg/didcomm/common/transport"
)

// InboundMessageHandler handles an envelope received on an inbound transport. The session
// is non-nil when the envelope arrived over a connection that can carry replies.
type InboundMessageHandler func(message []byte, session Session) error

// InboundProvider contains dependencies for starting inbound transports.
type InboundProvider interface {
	InboundMessageHandler() InboundMessageHandler
	Packager() commontransport.Packager
}

// InboundTransport interface definition for inbound transport layer.
type InboundTransport interface {
	// Start starts accepting envelopes.
	Start(prov InboundProvider) error

	// Stop stops the transport.
	Stop() error

	// Endpoint returns the address on which this transport accepts envelopes.
	Endpoint() string
}

// OutboundTransport interface definition for outbound transport layer.
type OutboundTransport interface {
	// Send sends the envelope bytes to the destination endpoint.
	Send(data []byte, endpoint string) (string, error)

	// Accept checks whether this transport can deliver to the given URL.
	Accept(url string) bool
}

// Session is a live duplex channel to a remote agent over which envelopes can be pushed
// without knowing the remote endpoint.
type Session interface {
	// Send pushes envelope bytes to the remote end of the session.
	Send(data []byte) error

	// Close closes the session.
	Close() error
}
