/*
Copyright Crubn. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package dispatcher

import (
	"errors"
	"fmt"
	"sync"

	"github.com/hyperledger/aries-framework-go/component/log"

	"github.com/crubn/aries-agent-go/pkg/didcomm/common/service"
)

var logger = log.New("aries-agent/dispatcher")

// ErrDuplicateHandler is returned when a handler is already registered for a message type.
var ErrDuplicateHandler = errors.New("duplicate handler")

// ErrUnsupportedMessageType is returned when no handler accepts the message type.
var ErrUnsupportedMessageType = errors.New("unsupported message type")

// Dispatcher routes parsed inbound messages to the handler registered for their type.
type Dispatcher struct {
	lock     sync.RWMutex
	handlers map[string]Handler
}

// New returns a new message dispatcher.
func New() *Dispatcher {
	return &Dispatcher{handlers: make(map[string]Handler)}
}

// RegisterHandler binds a handler to a message type.
func (d *Dispatcher) RegisterHandler(msgType string, handler Handler) error {
	if msgType == "" {
		return errors.New("message type is mandatory")
	}

	if handler == nil {
		return errors.New("nil handler")
	}

	d.lock.Lock()
	defer d.lock.Unlock()

	if _, ok := d.handlers[msgType]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateHandler, msgType)
	}

	d.handlers[msgType] = handler

	return nil
}

// Dispatch routes the message to its handler and returns the handler's reply, if any.
func (d *Dispatcher) Dispatch(ctx *service.InboundMessageContext) (*service.OutboundMessageContext, error) {
	msgType := ctx.Message.Type()

	d.lock.RLock()
	handler, ok := d.handlers[msgType]
	d.lock.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedMessageType, msgType)
	}

	logger.Debugf("dispatching message type %s id %s", msgType, ctx.Message.ID())

	return handler.Handle(ctx)
}
