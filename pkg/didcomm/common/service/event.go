/*
Copyright Crubn. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package service

import "errors"

// ErrNilChannel is the error returned when a nil channel is registered for events.
var ErrNilChannel = errors.New("cannot pass nil channel")

// MsgEvent is passed to registered event channels for every message that reaches the
// dispatcher. Observers must not block; events they cannot keep up with are dropped.
type MsgEvent struct {
	// TenantID identifies the agent context the message belongs to.
	TenantID string

	// ConnectionID of the resolved connection, empty when no connection matched.
	ConnectionID string

	// MessageType is the `@type` of the message.
	MessageType string

	// Msg is the parsed message.
	Msg DIDCommMsgMap
}

// Event message event related apis.
type Event interface {
	// RegisterMsgEvent on messages passing through the dispatcher. Events are
	// notifications only, no callback is expected.
	RegisterMsgEvent(ch chan<- MsgEvent) error

	// UnregisterMsgEvent on messages. Refer RegisterMsgEvent().
	UnregisterMsgEvent(ch chan<- MsgEvent) error
}
