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

package registry

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/seifane/aurbuild/pkg/types"
)

type fakeSender struct {
	sent   []types.WebsocketMessage
	closed bool
	sendErr error
}

func (f *fakeSender) Send(msg types.WebsocketMessage) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeSender) Close() error {
	f.closed = true
	return nil
}

func TestFindIdleAuthenticatedReturnsLowestID(t *testing.T) {
	r := New()
	id1 := r.Add(&fakeSender{})
	id2 := r.Add(&fakeSender{})
	require.NoError(t, r.SetAuthenticated(id1))
	require.NoError(t, r.SetAuthenticated(id2))

	w := r.FindIdleAuthenticated()
	require.NotNil(t, w)
	require.Equal(t, id1, w.ID)
}

func TestFindIdleAuthenticatedSkipsUnauthenticated(t *testing.T) {
	r := New()
	r.Add(&fakeSender{})

	require.Nil(t, r.FindIdleAuthenticated())
}

func TestFindIdleAuthenticatedSkipsBusy(t *testing.T) {
	r := New()
	id := r.Add(&fakeSender{})
	require.NoError(t, r.SetAuthenticated(id))
	require.NoError(t, r.SetStatus(id, types.WorkerWorking, nil))

	require.Nil(t, r.FindIdleAuthenticated())
}

func TestRemoveReturnsCurrentJob(t *testing.T) {
	r := New()
	id := r.Add(&fakeSender{})
	job := "hello"
	require.NoError(t, r.SetStatus(id, types.WorkerDispatched, &job))

	gotJob, ok := r.Remove(id)
	require.True(t, ok)
	require.NotNil(t, gotJob)
	require.Equal(t, "hello", *gotJob)

	_, ok = r.Remove(id)
	require.False(t, ok)
}

func TestDispatchMarksDispatchedAndSends(t *testing.T) {
	r := New()
	sender := &fakeSender{}
	id := r.Add(sender)
	require.NoError(t, r.SetAuthenticated(id))
	w, _ := r.Get(id)

	err := r.Dispatch(w, "hello", types.JobSubmitPayload{Package: types.PackageDefinition{Name: "hello"}})
	require.NoError(t, err)
	require.Len(t, sender.sent, 1)
	require.Equal(t, types.MsgJobSubmit, sender.sent[0].Type)

	w2, _ := r.Get(id)
	require.Equal(t, types.WorkerDispatched, w2.Status)
	require.Equal(t, "hello", *w2.CurrentJob)
}

func TestDispatchSendFailureRemovesWorker(t *testing.T) {
	r := New()
	sender := &fakeSender{sendErr: errors.New("broken pipe")}
	id := r.Add(sender)
	require.NoError(t, r.SetAuthenticated(id))
	w, _ := r.Get(id)

	err := r.Dispatch(w, "hello", types.JobSubmitPayload{})
	require.Error(t, err)

	_, ok := r.Get(id)
	require.False(t, ok)
	require.True(t, sender.closed)
}
