/*
Copyright Crubn. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package dispatcher

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/crubn/aries-agent-go/pkg/didcomm/common/service"
)

const pingType = "https://didcomm.org/trustping/1.0/ping"

func TestRegisterHandler(t *testing.T) {
	d := New()

	noop := HandlerFunc(func(*service.InboundMessageContext) (*service.OutboundMessageContext, error) {
		return nil, nil
	})

	require.NoError(t, d.RegisterHandler(pingType, noop))
	require.ErrorIs(t, d.RegisterHandler(pingType, noop), ErrDuplicateHandler)

	require.Error(t, d.RegisterHandler("", noop))
	require.Error(t, d.RegisterHandler("other/type", nil))
}

func TestDispatch(t *testing.T) {
	d := New()

	var handled string

	err := d.RegisterHandler(pingType, HandlerFunc(
		func(ctx *service.InboundMessageContext) (*service.OutboundMessageContext, error) {
			handled = ctx.Message.ID()

			return &service.OutboundMessageContext{
				Message: service.DIDCommMsgMap{"@type": "https://didcomm.org/trustping/1.0/ping_response"},
			}, nil
		}))
	require.NoError(t, err)

	reply, err := d.Dispatch(&service.InboundMessageContext{
		Message: service.DIDCommMsgMap{"@id": "12345", "@type": pingType},
	})
	require.NoError(t, err)
	require.Equal(t, "12345", handled)
	require.NotNil(t, reply)
	require.Equal(t, "https://didcomm.org/trustping/1.0/ping_response", reply.Message.Type())
}

func TestDispatchUnsupportedType(t *testing.T) {
	d := New()

	_, err := d.Dispatch(&service.InboundMessageContext{
		Message: service.DIDCommMsgMap{"@type": "unknown/1.0/type"},
	})
	require.ErrorIs(t, err, ErrUnsupportedMessageType)
}
