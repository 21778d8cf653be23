/*
Copyright Crubn. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package service

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mitchellh/mapstructure"
)

const (
	jsonID             = "@id"
	jsonType           = "@type"
	jsonThread         = "~thread"
	jsonThreadID       = "thid"
	jsonParentThreadID = "pthid"
	jsonTransport      = "~transport"
	jsonReturnRoute    = "return_route"
)

// ErrInvalidMessage is returned when a message payload is not a JSON object.
var ErrInvalidMessage = errors.New("invalid message")

// DIDCommMsgMap did comm msg. Raw messages are kept as maps so decorators unknown to a
// handler survive decode/re-encode.
type DIDCommMsgMap map[string]interface{}

// NewDIDCommMsgMap converts a message struct into a DIDCommMsgMap through its JSON form.
func NewDIDCommMsgMap(v interface{}) DIDCommMsgMap {
	bytes, err := json.Marshal(v)
	if err != nil {
		return DIDCommMsgMap{}
	}

	msg := DIDCommMsgMap{}
	if err := json.Unmarshal(bytes, &msg); err != nil {
		return DIDCommMsgMap{}
	}

	return msg
}

// ParseDIDCommMsgMap parses a raw payload into a DIDCommMsgMap.
func ParseDIDCommMsgMap(payload []byte) (DIDCommMsgMap, error) {
	msg := DIDCommMsgMap{}

	err := json.Unmarshal(payload, &msg)
	if err != nil {
		return nil, fmt.Errorf("invalid payload data format: %w", err)
	}

	return msg, nil
}

// ID returns the message `@id`.
func (m DIDCommMsgMap) ID() string {
	val, ok := m[jsonID].(string)
	if !ok {
		return ""
	}

	return val
}

// SetID sets the message `@id`.
func (m DIDCommMsgMap) SetID(id string) {
	m[jsonID] = id
}

// Type returns the message `@type`.
func (m DIDCommMsgMap) Type() string {
	val, ok := m[jsonType].(string)
	if !ok {
		return ""
	}

	return val
}

// ThreadID returns the thread id from the `~thread` decorator, falling back to the
// message id when the message starts a new thread.
func (m DIDCommMsgMap) ThreadID() string {
	thread, ok := m[jsonThread].(map[string]interface{})
	if ok {
		if thid, ok := thread[jsonThreadID].(string); ok && thid != "" {
			return thid
		}
	}

	return m.ID()
}

// ParentThreadID returns the parent thread id from the `~thread` decorator.
func (m DIDCommMsgMap) ParentThreadID() string {
	thread, ok := m[jsonThread].(map[string]interface{})
	if !ok {
		return ""
	}

	pthid, ok := thread[jsonParentThreadID].(string)
	if !ok {
		return ""
	}

	return pthid
}

// ReturnRoute returns the value of the `~transport` return route decorator, or an empty
// string when the decorator is absent.
func (m DIDCommMsgMap) ReturnRoute() string {
	transport, ok := m[jsonTransport].(map[string]interface{})
	if !ok {
		return ""
	}

	value, ok := transport[jsonReturnRoute].(string)
	if !ok {
		return ""
	}

	return value
}

// Clone copies the message map. Nested values are shared.
func (m DIDCommMsgMap) Clone() DIDCommMsgMap {
	if m == nil {
		return nil
	}

	msg := DIDCommMsgMap{}

	for k, v := range m {
		msg[k] = v
	}

	return msg
}

// Decode converts the message map into the given struct, honoring json tags.
func (m DIDCommMsgMap) Decode(v interface{}) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.StringToTimeHookFunc(time.RFC3339),
		WeaklyTypedInput: true,
		Result:           v,
		TagName:          "json",
	})
	if err != nil {
		return err
	}

	return decoder.Decode(m)
}
