/*
Copyright Crubn. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package transport

import (
	"fmt"
	"sync"

	"github.com/hyperledger/aries-framework-go/component/log"
)

var logger = log.New("aries-agent/transport")

// Registry holds the configured transports and the live return-route sessions, keyed by
// the remote agent's verification key.
type Registry struct {
	inbound  []InboundTransport
	outbound []OutboundTransport

	sessionLock sync.RWMutex
	sessions    map[string]Session
}

// NewRegistry returns a new transport registry.
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]Session),
	}
}

// AddInbound registers an inbound transport.
func (r *Registry) AddInbound(t InboundTransport) {
	r.inbound = append(r.inbound, t)
}

// AddOutbound registers an outbound transport.
func (r *Registry) AddOutbound(t OutboundTransport) {
	r.outbound = append(r.outbound, t)
}

// Start starts all inbound transports.
func (r *Registry) Start(prov InboundProvider) error {
	for _, t := range r.inbound {
		if err := t.Start(prov); err != nil {
			return fmt.Errorf("inbound transport start: %w", err)
		}
	}

	return nil
}

// Stop stops all inbound transports and closes the live sessions.
func (r *Registry) Stop() error {
	for _, t := range r.inbound {
		if err := t.Stop(); err != nil {
			return fmt.Errorf("inbound transport stop: %w", err)
		}
	}

	r.sessionLock.Lock()
	defer r.sessionLock.Unlock()

	for verKey, session := range r.sessions {
		if err := session.Close(); err != nil {
			logger.Warnf("failed to close session for %s: %s", verKey, err.Error())
		}

		delete(r.sessions, verKey)
	}

	return nil
}

// AddSession binds a live session to the remote agent's verification key. A new session
// for the same key replaces the old one.
func (r *Registry) AddSession(verKey string, session Session) {
	r.sessionLock.Lock()
	defer r.sessionLock.Unlock()

	r.sessions[verKey] = session
}

// Session returns the live session for the given verification key, if any.
func (r *Registry) Session(verKey string) (Session, bool) {
	r.sessionLock.RLock()
	defer r.sessionLock.RUnlock()

	session, ok := r.sessions[verKey]

	return session, ok
}

// RemoveSession unbinds the session registered for the verification key. The binding is
// only removed when it still points at the given session, so a replacement registered by
// a newer connection survives the old connection's cleanup.
func (r *Registry) RemoveSession(verKey string, session Session) {
	r.sessionLock.Lock()
	defer r.sessionLock.Unlock()

	if current, ok := r.sessions[verKey]; ok && current == session {
		delete(r.sessions, verKey)
	}
}

// OutboundForEndpoint returns the first outbound transport accepting the given URL.
func (r *Registry) OutboundForEndpoint(uri string) (OutboundTransport, bool) {
	for _, t := range r.outbound {
		if t.Accept(uri) {
			return t, true
		}
	}

	return nil, false
}
