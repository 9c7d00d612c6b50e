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

// Package registry tracks the set of connected worker sessions. The
// orchestrator exclusively owns this registry; the dispatch loop holds only
// a shared, read-mostly handle to enumerate workers.
package registry

import (
	"fmt"
	"sort"
	"sync"

	"github.com/seifane/aurbuild/pkg/types"
)

// Sender delivers a framed message to a worker's outbound queue. Sessions
// implement this over a websocket connection; tests use a fake.
type Sender interface {
	Send(msg types.WebsocketMessage) error
	Close() error
}

// Worker is one connected worker session, in-memory only.
type Worker struct {
	ID              int64
	Status          types.WorkerStatus
	CurrentJob      *string
	IsAuthenticated bool
	sender          Sender
}

func (w *Worker) ToResponse() types.WorkerResponse {
	return types.WorkerResponse{
		ID:              w.ID,
		Status:          w.Status,
		CurrentJob:      w.CurrentJob,
		IsAuthenticated: w.IsAuthenticated,
	}
}

// Registry is the write-locked-for-insert/remove, read-locked-for-dispatch
// table of worker sessions.
type Registry struct {
	mu      sync.RWMutex
	workers map[int64]*Worker
	nextID  int64
}

func New() *Registry {
	return &Registry{workers: make(map[int64]*Worker)}
}

// Add registers a new, not-yet-authenticated worker session and returns its
// assigned id.
func (r *Registry) Add(sender Sender) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	id := r.nextID
	r.workers[id] = &Worker{
		ID:     id,
		Status: types.WorkerUnknown,
		sender: sender,
	}
	return id
}

// Remove deletes the worker and, if it held a current job, reports the job
// name so the caller can revert that package to PENDING. This is the sole
// recovery path for lost work.
func (r *Registry) Remove(id int64) (currentJob *string, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	w, exists := r.workers[id]
	if !exists {
		return nil, false
	}
	delete(r.workers, id)
	_ = w.sender.Close()
	return w.CurrentJob, true
}

func (r *Registry) Get(id int64) (*Worker, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.workers[id]
	return w, ok
}

// Send delivers msg to the worker's outbound queue directly, bypassing the
// dispatch bookkeeping in Dispatch. Used for protocol messages like
// WorkerStatusRequest that don't transition worker state.
func (r *Registry) Send(id int64, msg types.WebsocketMessage) error {
	r.mu.RLock()
	w, ok := r.workers[id]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("unknown worker %d", id)
	}
	return w.sender.Send(msg)
}

// SetAuthenticated marks a worker authenticated and moves it to STANDBY.
func (r *Registry) SetAuthenticated(id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.workers[id]
	if !ok {
		return fmt.Errorf("unknown worker %d", id)
	}
	w.IsAuthenticated = true
	w.Status = types.WorkerStandby
	return nil
}

// SetStatus updates a worker's reported status and current job.
func (r *Registry) SetStatus(id int64, status types.WorkerStatus, job *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.workers[id]
	if !ok {
		return fmt.Errorf("unknown worker %d", id)
	}
	w.Status = status
	w.CurrentJob = job
	return nil
}

// FindIdleAuthenticated returns the first worker (by ascending id) that is
// STANDBY and authenticated, or nil if none is available.
func (r *Registry) FindIdleAuthenticated() *Worker {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]int64, 0, len(r.workers))
	for id := range r.workers {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		w := r.workers[id]
		if w.Status == types.WorkerStandby && w.IsAuthenticated {
			return w
		}
	}
	return nil
}

// Dispatch marks w DISPATCHED, records the job name, and sends JobSubmit.
// On send failure the worker is removed (as if it vanished) and the error
// is returned so the caller reverts the package to PENDING.
func (r *Registry) Dispatch(w *Worker, packageName string, payload types.JobSubmitPayload) error {
	r.mu.Lock()
	w.Status = types.WorkerDispatched
	w.CurrentJob = &packageName
	r.mu.Unlock()

	msg, err := types.Encode(types.MsgJobSubmit, payload)
	if err != nil {
		return fmt.Errorf("encoding job submit: %w", err)
	}
	if err := w.sender.Send(msg); err != nil {
		r.Remove(w.ID)
		return fmt.Errorf("dispatching to worker %d: %w", w.ID, err)
	}
	return nil
}

func (r *Registry) List() []types.WorkerResponse {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]int64, 0, len(r.workers))
	for id := range r.workers {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	out := make([]types.WorkerResponse, 0, len(ids))
	for _, id := range ids {
		out = append(out, r.workers[id].ToResponse())
	}
	return out
}
