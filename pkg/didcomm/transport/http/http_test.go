/*
Copyright Crubn. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package http

import (
	"bytes"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/crubn/aries-agent-go/pkg/didcomm/transport"
	commontransport "github.com/crubn/aries-agent-go/pkg/didcomm/common/transport"
)

type mockInboundProvider struct {
	handler transport.InboundMessageHandler
}

func (p *mockInboundProvider) InboundMessageHandler() transport.InboundMessageHandler {
	return p.handler
}

func (p *mockInboundProvider) Packager() commontransport.Packager { return nil }

func TestOutboundSend(t *testing.T) {
	received := make(chan []byte, 1)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, commContentType, r.Header.Get("Content-type"))

		buf := &bytes.Buffer{}
		_, err := buf.ReadFrom(r.Body)
		require.NoError(t, err)
		received <- buf.Bytes()

		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	outbound, err := NewOutbound(WithOutboundHTTPClient(&http.Client{}))
	require.NoError(t, err)

	_, err = outbound.Send([]byte("envelope data"), server.URL)
	require.NoError(t, err)
	require.Equal(t, []byte("envelope data"), <-received)
}

func TestOutboundSendFailures(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	outbound, err := NewOutbound(WithOutboundHTTPClient(&http.Client{}))
	require.NoError(t, err)

	_, err = outbound.Send([]byte("envelope data"), server.URL)
	require.Error(t, err)
	require.Contains(t, err.Error(), "non success status code")

	_, err = outbound.Send([]byte("envelope data"), "http://localhost:1")
	require.Error(t, err)
}

func TestNewOutboundRequiresClient(t *testing.T) {
	_, err := NewOutbound()
	require.Error(t, err)
}

func TestOutboundAccept(t *testing.T) {
	outbound, err := NewOutbound(WithOutboundHTTPClient(&http.Client{}))
	require.NoError(t, err)

	require.True(t, outbound.Accept("http://example.com"))
	require.True(t, outbound.Accept("https://example.com"))
	require.False(t, outbound.Accept("ws://example.com"))
}

func TestInbound(t *testing.T) {
	const addr = "localhost:26605"

	inbound, err := NewInbound(addr, "http://"+addr)
	require.NoError(t, err)
	require.Equal(t, "http://"+addr, inbound.Endpoint())

	received := make(chan []byte, 1)

	err = inbound.Start(&mockInboundProvider{
		handler: func(message []byte, session transport.Session) error {
			require.Nil(t, session)
			received <- message

			return nil
		},
	})
	require.NoError(t, err)

	defer func() {
		require.NoError(t, inbound.Stop())
	}()

	waitForServer(t, addr)

	resp, err := http.Post(fmt.Sprintf("http://%s/", addr), commContentType,
		bytes.NewReader([]byte("inbound envelope")))
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	select {
	case msg := <-received:
		require.Equal(t, []byte("inbound envelope"), msg)
	case <-time.After(2 * time.Second):
		t.Fatal("message handler not invoked")
	}

	// wrong content type is rejected
	resp, err = http.Post(fmt.Sprintf("http://%s/", addr), "application/json",
		bytes.NewReader([]byte("{}")))
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	require.Equal(t, http.StatusUnsupportedMediaType, resp.StatusCode)
}

func TestInboundValidation(t *testing.T) {
	_, err := NewInbound("", "")
	require.Error(t, err)

	inbound, err := NewInbound("localhost:26606", "")
	require.NoError(t, err)
	require.Equal(t, "localhost:26606", inbound.Endpoint())

	require.Error(t, inbound.Start(nil))
	require.Error(t, inbound.Start(&mockInboundProvider{}))
}

func waitForServer(t *testing.T, addr string) {
	t.Helper()

	require.Eventually(t, func() bool {
		resp, err := http.Get(fmt.Sprintf("http://%s/", addr))
		if err != nil {
			return false
		}

		return resp.Body.Close() == nil
	}, 2*time.Second, 50*time.Millisecond)
}
