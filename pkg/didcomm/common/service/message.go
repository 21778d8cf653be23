/*
Copyright Crubn. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package service

import "sync"

// Message thread-safe message event register structure.
type Message struct {
	mu     sync.RWMutex
	events []chan<- MsgEvent
}

// MsgEvents returns event message channels.
func (m *Message) MsgEvents() []chan<- MsgEvent {
	m.mu.RLock()
	events := append(m.events[:0:0], m.events...)
	m.mu.RUnlock()

	return events
}

// RegisterMsgEvent on messages. The message events are triggered for incoming messages.
// No callback is expected on these events.
func (m *Message) RegisterMsgEvent(ch chan<- MsgEvent) error {
	if ch == nil {
		return ErrNilChannel
	}

	m.mu.Lock()
	m.events = append(m.events, ch)
	m.mu.Unlock()

	return nil
}

// UnregisterMsgEvent on messages. Refer RegisterMsgEvent().
func (m *Message) UnregisterMsgEvent(ch chan<- MsgEvent) error {
	m.mu.Lock()
	for i := 0; i < len(m.events); i++ {
		if m.events[i] == ch {
			m.events = append(m.events[:i], m.events[i+1:]...)
			i--
		}
	}
	m.mu.Unlock()

	return nil
}

// Emit delivers the event to all registered channels without blocking. A channel that is
// not ready misses the event.
func (m *Message) Emit(event MsgEvent) {
	for _, ch := range m.MsgEvents() {
		select {
		case ch <- event:
		default:
		}
	}
}
