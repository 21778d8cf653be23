/*
Copyright Crubn. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package ws

import (
	"context"
	"sync"
	"time"

	"nhooyr.io/websocket"
)

const sendTimeout = 10 * time.Second

// connSession adapts one accepted websocket connection to transport.Session. Writes are
// serialized, the websocket library forbids concurrent writers.
type connSession struct {
	conn      *websocket.Conn
	writeLock sync.Mutex
}

func newConnSession(conn *websocket.Conn) *connSession {
	return &connSession{conn: conn}
}

// Send pushes envelope bytes to the remote agent over the open connection.
func (s *connSession) Send(data []byte) error {
	s.writeLock.Lock()
	defer s.writeLock.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()

	return s.conn.Write(ctx, websocket.MessageText, data)
}

// Close closes the connection.
func (s *connSession) Close() error {
	return s.conn.Close(websocket.StatusNormalClosure, "closing the connection")
}
