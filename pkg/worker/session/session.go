// Copyright 2024 Chainguard, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package session is the worker-side half of the bidirectional websocket
// protocol, symmetric to the orchestrator's wsconn package: it dials,
// authenticates, and runs an ingress/egress goroutine pair.
package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/chainguard-dev/clog"
	"github.com/gorilla/websocket"

	"github.com/seifane/aurbuild/pkg/types"
)

// JobHandler processes a dispatched job. It is invoked on its own goroutine
// so long-running builds never block the ingress loop.
type JobHandler func(ctx context.Context, payload types.JobSubmitPayload)

// Session owns one worker connection to the orchestrator.
type Session struct {
	conn     *websocket.Conn
	outbound chan types.WebsocketMessage

	mu      sync.Mutex
	current *string

	OnJob JobHandler
}

// Dial connects to wsURL, sends Authenticate, and returns a Session with
// its egress loop already running. The caller must call Run to pump
// incoming messages.
func Dial(ctx context.Context, wsURL, apiKey string) (*Session, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", wsURL, err)
	}

	s := &Session{conn: conn, outbound: make(chan types.WebsocketMessage, 16)}
	go s.egressLoop(ctx)

	auth, err := types.Encode(types.MsgAuthenticate, types.AuthenticatePayload{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("encoding authenticate: %w", err)
	}
	if err := s.send(auth); err != nil {
		return nil, fmt.Errorf("sending authenticate: %w", err)
	}
	return s, nil
}

func (s *Session) send(msg types.WebsocketMessage) error {
	select {
	case s.outbound <- msg:
		return nil
	default:
		return fmt.Errorf("outbound queue full")
	}
}

func (s *Session) egressLoop(ctx context.Context) {
	logger := clog.FromContext(ctx)
	for msg := range s.outbound {
		if err := s.conn.WriteJSON(msg); err != nil {
			logger.Error("writing websocket message", "error", err)
			return
		}
	}
}

// PushStatus sends a WorkerStatusUpdate frame for the given status/package.
func (s *Session) PushStatus(status types.WorkerStatus, pkg *string) error {
	s.mu.Lock()
	s.current = pkg
	s.mu.Unlock()

	msg, err := types.Encode(types.MsgWorkerStatusUpdate, types.WorkerStatusUpdatePayload{Status: status, Package: pkg})
	if err != nil {
		return fmt.Errorf("encoding status update: %w", err)
	}
	return s.send(msg)
}

// Run reads frames until the connection closes or ctx is cancelled,
// dispatching JobSubmit to OnJob. WorkerStatusRequest frames are read and
// ignored: Run sends no reply, and status reaches the orchestrator only
// through PushStatus calls.
func (s *Session) Run(ctx context.Context) error {
	logger := clog.FromContext(ctx)
	for {
		var msg types.WebsocketMessage
		if err := s.conn.ReadJSON(&msg); err != nil {
			close(s.outbound)
			return fmt.Errorf("reading websocket message: %w", err)
		}

		switch msg.Type {
		case types.MsgWorkerStatusRequest:
			// No reply is sent; the orchestrator sees this worker's status
			// only from the PushStatus calls the caller makes.
		case types.MsgJobSubmit:
			var payload types.JobSubmitPayload
			if err := msg.Decode(&payload); err != nil {
				logger.Error("decoding job submit", "error", err)
				continue
			}
			s.mu.Lock()
			busy := s.current != nil
			s.mu.Unlock()
			if busy {
				logger.Warn("rejecting job submit, already working", "package", payload.Package.Name)
				continue
			}
			if s.OnJob != nil {
				go s.OnJob(ctx, payload)
			}
		default:
			logger.Warn("unknown message type", "type", msg.Type)
		}
	}
}

// Close terminates the underlying connection.
func (s *Session) Close() error {
	return s.conn.Close()
}
