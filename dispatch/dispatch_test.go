// Copyright 2020 Grail Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package dispatch

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grailbio/readfish/plugin"
	"github.com/grailbio/readfish/rpc"
	"github.com/grailbio/readfish/stats"
)

type fakeClient struct {
	unblocked       []rpc.UnblockRequest
	stopped         []rpc.StopRequest
	unblockDuration time.Duration
	unblockErr      error
	stopErr         error
}

func (f *fakeClient) GetReadChunks(ctx context.Context, batchSize int) ([]plugin.ChannelChunk, error) {
	return nil, nil
}

func (f *fakeClient) UnblockReadBatch(ctx context.Context, requests []rpc.UnblockRequest, duration time.Duration) error {
	if f.unblockErr != nil {
		return f.unblockErr
	}
	f.unblocked = append(f.unblocked, requests...)
	f.unblockDuration = duration
	return nil
}

func (f *fakeClient) StopReceivingBatch(ctx context.Context, requests []rpc.StopRequest) error {
	if f.stopErr != nil {
		return f.stopErr
	}
	f.stopped = append(f.stopped, requests...)
	return nil
}

func (f *fakeClient) IsRunning() bool                         { return true }
func (f *fakeClient) IsSequencingPhase() bool                 { return true }
func (f *fakeClient) ChannelCount() int                       { return 512 }
func (f *fakeClient) Calibration() map[int]plugin.Calibration { return nil }

func TestDispatcherFlushSendsBothBatches(t *testing.T) {
	client := &fakeClient{}
	counters := stats.NewCounters(0.4)
	var logBuf bytes.Buffer
	log := NewLog(&logBuf, 8)
	defer log.Close()

	d := New(client, 2*time.Second, counters, log)
	d.Record(plugin.Unblock, 1, 10, "read-a")
	d.Record(plugin.StopReceiving, 2, 11, "read-b")
	d.Record(plugin.Proceed, 3, 12, "read-c")

	require.NoError(t, d.Flush(context.Background()))

	require.Len(t, client.unblocked, 1)
	assert.Equal(t, "read-a", client.unblocked[0].ReadID)
	assert.Equal(t, 2*time.Second, client.unblockDuration)

	require.Len(t, client.stopped, 1)
	assert.Equal(t, 2, client.stopped[0].Channel)

	require.NoError(t, log.Close())
	assert.Equal(t, []string{"read-a"}, strings.Fields(logBuf.String()))
}

func TestDispatcherFlushClearsPendingBatch(t *testing.T) {
	client := &fakeClient{}
	counters := stats.NewCounters(0.4)
	d := New(client, time.Second, counters, nil)

	d.Record(plugin.Unblock, 1, 1, "r1")
	unblocks, stops := d.PendingCounts()
	assert.Equal(t, 1, unblocks)
	assert.Equal(t, 0, stops)

	require.NoError(t, d.Flush(context.Background()))
	unblocks, stops = d.PendingCounts()
	assert.Equal(t, 0, unblocks)
	assert.Equal(t, 0, stops)
}

func TestDispatcherCountsDuplicatesWithoutDeduping(t *testing.T) {
	client := &fakeClient{}
	counters := stats.NewCounters(0.4)
	d := New(client, time.Second, counters, nil)

	d.Record(plugin.Unblock, 1, 1, "r1")
	d.Record(plugin.Unblock, 1, 1, "r1")

	unblocks, _ := d.PendingCounts()
	assert.Equal(t, 2, unblocks, "duplicates are tolerated, not deduplicated")
	assert.Equal(t, int64(1), counters.DuplicateActions())
}

func TestDispatcherProceedProducesNoRPCEntry(t *testing.T) {
	client := &fakeClient{}
	counters := stats.NewCounters(0.4)
	d := New(client, time.Second, counters, nil)

	d.Record(plugin.Proceed, 1, 1, "r1")
	unblocks, stops := d.PendingCounts()
	assert.Equal(t, 0, unblocks)
	assert.Equal(t, 0, stops)
}

func TestDispatcherFlushPropagatesUnblockError(t *testing.T) {
	client := &fakeClient{unblockErr: assert.AnError}
	counters := stats.NewCounters(0.4)
	d := New(client, time.Second, counters, nil)
	d.Record(plugin.Unblock, 1, 1, "r1")

	err := d.Flush(context.Background())
	require.Error(t, err)
}

func TestLogAppendPreservesOrder(t *testing.T) {
	var buf bytes.Buffer
	log := NewLog(&buf, 4)
	log.Append("a")
	log.Append("b")
	log.Append("c")
	require.NoError(t, log.Close())

	assert.Equal(t, "a\nb\nc\n", buf.String())
}
