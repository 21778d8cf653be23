/*
Copyright Crubn. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package service

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/crubn/aries-agent-go/pkg/didcomm/protocol/decorator"
)

func TestParseDIDCommMsgMap(t *testing.T) {
	msg, err := ParseDIDCommMsgMap([]byte(`{
		"@id": "12345",
		"@type": "https://didcomm.org/trustping/1.0/ping",
		"~thread": {"thid": "t-1", "pthid": "p-1"},
		"~transport": {"return_route": "all"},
		"custom": "value"
	}`))
	require.NoError(t, err)
	require.Equal(t, "12345", msg.ID())
	require.Equal(t, "https://didcomm.org/trustping/1.0/ping", msg.Type())
	require.Equal(t, "t-1", msg.ThreadID())
	require.Equal(t, "p-1", msg.ParentThreadID())
	require.Equal(t, "all", msg.ReturnRoute())

	_, err = ParseDIDCommMsgMap([]byte("not json"))
	require.Error(t, err)
}

func TestThreadIDFallsBackToID(t *testing.T) {
	msg, err := ParseDIDCommMsgMap([]byte(`{"@id": "12345"}`))
	require.NoError(t, err)
	require.Equal(t, "12345", msg.ThreadID())
	require.Empty(t, msg.ParentThreadID())
	require.Empty(t, msg.ReturnRoute())
}

func TestNewDIDCommMsgMap(t *testing.T) {
	type ping struct {
		ID      string `json:"@id,omitempty"`
		Type    string `json:"@type,omitempty"`
		Comment string `json:"comment,omitempty"`
	}

	msg := NewDIDCommMsgMap(&ping{ID: "1", Type: "t", Comment: "hi"})
	require.Equal(t, "1", msg.ID())
	require.Equal(t, "t", msg.Type())
	require.Equal(t, "hi", msg["comment"])

	msg.SetID("2")
	require.Equal(t, "2", msg.ID())
}

func TestDecode(t *testing.T) {
	msg, err := ParseDIDCommMsgMap([]byte(`{
		"@id": "12345",
		"@type": "test/1.0/message",
		"~transport": {"return_route": "all"},
		"limit": 10
	}`))
	require.NoError(t, err)

	var req struct {
		ID          string                 `json:"@id,omitempty"`
		Type        string                 `json:"@type,omitempty"`
		Limit       int                    `json:"limit,omitempty"`
		ReturnRoute *decorator.ReturnRoute `json:"~transport,omitempty"`
	}

	require.NoError(t, msg.Decode(&req))
	require.Equal(t, "12345", req.ID)
	require.Equal(t, 10, req.Limit)
	require.NotNil(t, req.ReturnRoute)
	require.Equal(t, "all", req.ReturnRoute.Value)
}

func TestClone(t *testing.T) {
	msg := DIDCommMsgMap{"@id": "1"}
	cloned := msg.Clone()

	cloned.SetID("2")
	require.Equal(t, "1", msg.ID())
	require.Equal(t, "2", cloned.ID())

	require.Nil(t, DIDCommMsgMap(nil).Clone())
}
