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

// Package wsconn upgrades incoming HTTP connections to the bidirectional
// worker protocol and runs the per-worker ingress/egress task pair. Auth
// must be the first message on a new session; any message before it
// (notably JobSubmit) is a protocol error.
package wsconn

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/chainguard-dev/clog"
	"github.com/gorilla/websocket"

	"github.com/seifane/aurbuild/pkg/orchestrator/registry"
	"github.com/seifane/aurbuild/pkg/orchestrator/store"
	"github.com/seifane/aurbuild/pkg/types"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Handler upgrades connections at /ws and drives the worker session
// lifecycle.
type Handler struct {
	Registry *registry.Registry
	Store    store.PackageStore
	APIKey   string
}

// wsSender adapts a gorilla websocket connection to registry.Sender,
// draining a 64-message outbound queue on its own goroutine. Send never
// blocks: when the queue is full it returns an error and the message is not
// queued, so a slow reader never blocks the dispatch loop.
type wsSender struct {
	conn     *websocket.Conn
	outbound chan types.WebsocketMessage
	closeMu  sync.Mutex
	closed   bool
}

func newWsSender(conn *websocket.Conn) *wsSender {
	s := &wsSender{conn: conn, outbound: make(chan types.WebsocketMessage, 64)}
	go s.egressLoop()
	return s
}

func (s *wsSender) egressLoop() {
	for msg := range s.outbound {
		if err := s.conn.WriteJSON(msg); err != nil {
			return
		}
	}
}

func (s *wsSender) Send(msg types.WebsocketMessage) error {
	s.closeMu.Lock()
	defer s.closeMu.Unlock()
	if s.closed {
		return fmt.Errorf("session closed")
	}
	select {
	case s.outbound <- msg:
		return nil
	default:
		return fmt.Errorf("outbound queue full")
	}
}

func (s *wsSender) Close() error {
	s.closeMu.Lock()
	if s.closed {
		s.closeMu.Unlock()
		return nil
	}
	s.closed = true
	close(s.outbound)
	s.closeMu.Unlock()
	return s.conn.Close()
}

// ServeHTTP upgrades the connection, registers a session, and runs the
// ingress loop until the connection closes or the worker is evicted.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		clog.FromContext(r.Context()).Warn("websocket upgrade failed", "error", err)
		return
	}

	sender := newWsSender(conn)
	id := h.Registry.Add(sender)
	logger := clog.FromContext(r.Context()).With("worker_id", id)
	logger.Info("worker session opened")

	defer func() {
		job, ok := h.Registry.Remove(id)
		if !ok {
			return
		}
		logger.Info("worker session closed")
		if job == nil {
			return
		}
		// Worker disappearance recovery: revert its in-flight job to
		// PENDING so another worker can pick it up.
		ctx := context.Background()
		if pkg, err := h.Store.GetPackageByName(ctx, *job); err == nil && pkg.Status == types.StatusBuilding {
			_ = h.Store.UpdatePackageStatus(ctx, pkg.ID, types.StatusPending)
		}
	}()

	h.ingressLoop(id, conn, logger)
}

func (h *Handler) ingressLoop(id int64, conn *websocket.Conn, logger interface {
	Warn(msg string, args ...any)
	Info(msg string, args ...any)
}) {
	authenticated := false
	for {
		var msg types.WebsocketMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}

		if !authenticated {
			if msg.Type != types.MsgAuthenticate {
				logger.Warn("protocol error: message before authentication", "type", msg.Type)
				return
			}
			var payload types.AuthenticatePayload
			if err := msg.Decode(&payload); err != nil {
				logger.Warn("decoding authenticate payload", "error", err)
				return
			}
			if payload.APIKey != h.APIKey {
				logger.Warn("authentication failed")
				return
			}
			if err := h.Registry.SetAuthenticated(id); err != nil {
				return
			}
			authenticated = true
			logger.Info("worker authenticated")

			reqMsg, err := types.Encode(types.MsgWorkerStatusRequest, types.WorkerStatusRequestPayload{})
			if err != nil {
				return
			}
			_ = h.Registry.Send(id, reqMsg)
			continue
		}

		h.handleMessage(id, msg, logger)
	}
}

func (h *Handler) handleMessage(id int64, msg types.WebsocketMessage, logger interface {
	Warn(msg string, args ...any)
	Info(msg string, args ...any)
}) {
	switch msg.Type {
	case types.MsgWorkerStatusUpdate:
		var payload types.WorkerStatusUpdatePayload
		if err := msg.Decode(&payload); err != nil {
			logger.Warn("decoding status update", "error", err)
			return
		}
		if err := h.Registry.SetStatus(id, payload.Status, payload.Package); err != nil {
			logger.Warn("recording status update", "error", err)
		}
	default:
		logger.Warn("unexpected message type from worker", "type", msg.Type)
	}
}
