/*
Copyright Crubn. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package ws

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/hyperledger/aries-framework-go/component/log"
	"nhooyr.io/websocket"

	"github.com/crubn/aries-agent-go/pkg/didcomm/transport"
)

var logger = log.New("aries-agent/ws")

// Inbound websocket type.
type Inbound struct {
	externalAddr string
	server       *http.Server
}

// NewInbound creates a new WebSocket inbound transport instance.
func NewInbound(internalAddr, externalAddr string) (*Inbound, error) {
	if internalAddr == "" {
		return nil, errors.New("websocket address is mandatory")
	}

	if externalAddr == "" {
		externalAddr = internalAddr
	}

	return &Inbound{externalAddr: externalAddr, server: &http.Server{Addr: internalAddr}}, nil
}

// Start the websocket server.
func (i *Inbound) Start(prov transport.InboundProvider) error {
	if prov == nil || prov.InboundMessageHandler() == nil {
		return errors.New("creation of inbound handler failed")
	}

	i.server.Handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		i.processRequest(w, r, prov)
	})

	go func() {
		if err := i.server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("websocket server start with address [%s] failed, cause: %s", i.server.Addr, err)
		}
	}()

	return nil
}

// Stop the websocket server.
func (i *Inbound) Stop() error {
	if err := i.server.Shutdown(context.Background()); err != nil {
		return fmt.Errorf("websocket server shutdown failed: %w", err)
	}

	return nil
}

// Endpoint provides the websocket connection details.
func (i *Inbound) Endpoint() string {
	return i.externalAddr
}

func (i *Inbound) processRequest(w http.ResponseWriter, r *http.Request, prov transport.InboundProvider) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // cross-origin agents connect here by design of the protocol
	})
	if err != nil {
		logger.Errorf("failed to accept the connection: %v", err)
		return
	}

	session := newConnSession(conn)

	defer func() {
		if err := session.Close(); err != nil {
			logger.Debugf("connection close: %v", err)
		}
	}()

	messageHandler := prov.InboundMessageHandler()

	for {
		_, message, err := conn.Read(context.Background())
		if err != nil {
			if websocket.CloseStatus(err) != websocket.StatusNormalClosure {
				logger.Debugf("connection read: %v", err)
			}

			break
		}

		if err := messageHandler(message, session); err != nil {
			logger.Errorf("incoming msg processing failed: %v", err)
		}
	}
}
