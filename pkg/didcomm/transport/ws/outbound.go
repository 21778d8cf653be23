/*
Copyright Crubn. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package ws

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"nhooyr.io/websocket"
)

const webSocketScheme = "ws"

// OutboundClient websocket outbound.
type OutboundClient struct{}

// NewOutbound creates a client for outbound WS transport.
func NewOutbound() *OutboundClient {
	return &OutboundClient{}
}

// Send sends envelope bytes via WS.
func (cs *OutboundClient) Send(data []byte, url string) (string, error) {
	if url == "" {
		return "", errors.New("url is mandatory")
	}

	ctx := context.Background()

	client, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return "", fmt.Errorf("websocket client: %w", err)
	}

	defer func() {
		err = client.Close(websocket.StatusNormalClosure, "closing the connection")
		if err != nil && websocket.CloseStatus(err) != websocket.StatusNormalClosure {
			logger.Errorf("failed to close connection: %v", err)
		}
	}()

	err = client.Write(ctx, websocket.MessageText, data)
	if err != nil {
		return "", fmt.Errorf("websocket write message: %w", err)
	}

	return "", nil
}

// Accept checks for the url scheme.
func (cs *OutboundClient) Accept(url string) bool {
	return strings.HasPrefix(url, webSocketScheme)
}
