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

package analysis

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grailbio/readfish/config"
	"github.com/grailbio/readfish/plugin"
	"github.com/grailbio/readfish/plugin/passthrough"
	"github.com/grailbio/readfish/rpc"
	"github.com/grailbio/readfish/stats"
)

const oneRegionConfig = `
[[regions]]
name = "whole"
single_on = "stop_receiving"
single_off = "unblock"
multi_on = "stop_receiving"
multi_off = "unblock"
no_map = "unblock"
no_seq = "proceed"
`

type stubClock struct {
	now time.Time
}

func (c *stubClock) Now() time.Time      { return c.now }
func (c *stubClock) Sleep(time.Duration) {}

// fakeClient yields batchesLeft batches of chunks, then reports the run has
// ended so Run exits after that many iterations.
type fakeClient struct {
	batchesLeft int
	unblocked   []rpc.UnblockRequest
	stopped     []rpc.StopRequest
}

func (f *fakeClient) GetReadChunks(ctx context.Context, batchSize int) ([]plugin.ChannelChunk, error) {
	if f.batchesLeft == 0 {
		return nil, nil
	}
	f.batchesLeft--
	return []plugin.ChannelChunk{
		{Channel: 1, Chunk: plugin.RawChunk{ReadID: "r1", ReadNumber: 1}},
		{Channel: 2, Chunk: plugin.RawChunk{ReadID: "r2", ReadNumber: 1}},
	}, nil
}

func (f *fakeClient) UnblockReadBatch(ctx context.Context, requests []rpc.UnblockRequest, duration time.Duration) error {
	f.unblocked = append(f.unblocked, requests...)
	return nil
}

func (f *fakeClient) StopReceivingBatch(ctx context.Context, requests []rpc.StopRequest) error {
	f.stopped = append(f.stopped, requests...)
	return nil
}

func (f *fakeClient) IsRunning() bool                         { return f.batchesLeft > 0 }
func (f *fakeClient) IsSequencingPhase() bool                 { return true }
func (f *fakeClient) ChannelCount() int                       { return 512 }
func (f *fakeClient) Calibration() map[int]plugin.Calibration { return nil }

func writeConfigFile(t *testing.T, content string) (*config.Config, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	cfg, err := config.FromFile(path, 512)
	require.NoError(t, err)
	return cfg, path
}

func TestRunProcessesOneBatchThenTerminates(t *testing.T) {
	cfg, path := writeConfigFile(t, oneRegionConfig)
	client := &fakeClient{batchesLeft: 1}
	counters := stats.NewCounters(0.4)

	a := New(Params{
		Client:          client,
		Caller:          passthrough.Caller{},
		Aligner:         passthrough.Aligner{},
		Config:          cfg,
		Counters:        counters,
		Throttle:        time.Millisecond,
		BatchSize:       10,
		UnblockDuration: time.Second,
		ConfigPath:      path,
		Clock:           &stubClock{now: time.Now()},
	}, nil)

	err := a.Run(context.Background())
	require.NoError(t, err)

	// passthrough.Caller emits empty seq -> Decision.NoSeq -> action "proceed"
	// for a whole-flowcell single region, so no RPC calls are expected.
	assert.Empty(t, client.unblocked)
	assert.Empty(t, client.stopped)
	assert.Equal(t, int64(2), counters.TotalChunks())
}

func TestRunStopsImmediatelyWhenNotRunning(t *testing.T) {
	cfg, path := writeConfigFile(t, oneRegionConfig)
	client := &fakeClient{batchesLeft: 0}
	counters := stats.NewCounters(0.4)

	a := New(Params{
		Client:          client,
		Caller:          passthrough.Caller{},
		Aligner:         passthrough.Aligner{},
		Config:          cfg,
		Counters:        counters,
		Throttle:        time.Millisecond,
		BatchSize:       10,
		UnblockDuration: time.Second,
		ConfigPath:      path,
		Clock:           &stubClock{now: time.Now()},
	}, nil)

	require.NoError(t, a.Run(context.Background()))
	assert.Equal(t, int64(0), counters.TotalChunks())
}

const maxChunksOneConfig = `
[[regions]]
name = "whole"
max_chunks = 1
single_on = "stop_receiving"
single_off = "unblock"
multi_on = "stop_receiving"
multi_off = "unblock"
no_map = "unblock"
no_seq = "proceed"
`

// TestRunWritesDebugRecordsWithCounterAndOverride exercises the
// analysis -> stats.DebugLogger path end to end: the second batch's chunks
// repeat channel/read-number pairs from the first, so their chunk-tracker
// count exceeds max_chunks=1 and the above_max_chunks override fires.
func TestRunWritesDebugRecordsWithCounterAndOverride(t *testing.T) {
	cfg, path := writeConfigFile(t, maxChunksOneConfig)
	client := &fakeClient{batchesLeft: 2}
	counters := stats.NewCounters(0.4)

	debugPath := filepath.Join(t.TempDir(), "debug.tsv")
	debugFile, err := os.Create(debugPath)
	require.NoError(t, err)
	debugLogger, err := stats.NewDebugLogger(debugFile)
	require.NoError(t, err)

	a := New(Params{
		Client:          client,
		Caller:          passthrough.Caller{},
		Aligner:         passthrough.Aligner{},
		Config:          cfg,
		Counters:        counters,
		Debug:           debugLogger,
		Throttle:        time.Millisecond,
		BatchSize:       10,
		UnblockDuration: time.Second,
		ConfigPath:      path,
		Clock:           &stubClock{now: time.Now()},
	}, nil)

	require.NoError(t, a.Run(context.Background()))
	require.NoError(t, debugFile.Close())

	contents, err := os.ReadFile(debugPath)
	require.NoError(t, err)
	cr := csv.NewReader(strings.NewReader(string(contents)))
	cr.Comma = '\t'
	rows, err := cr.ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 5) // header + 2 batches x 2 channels

	header := rows[0]
	counterCol := indexOf(t, header, "counter")
	overrideCol := indexOf(t, header, "action_override")
	channelCol := indexOf(t, header, "channel")

	var sawOverride bool
	for _, row := range rows[1:] {
		if row[channelCol] != "1" {
			continue
		}
		if row[counterCol] == "2" {
			assert.Equal(t, "above_max_chunks", row[overrideCol])
			sawOverride = true
		} else {
			assert.Equal(t, "1", row[counterCol])
			assert.Empty(t, row[overrideCol])
		}
	}
	assert.True(t, sawOverride, "expected one row for channel 1 with counter=2 and an above_max_chunks override")
}

func indexOf(t *testing.T, header []string, name string) int {
	t.Helper()
	for i, h := range header {
		if h == name {
			return i
		}
	}
	t.Fatalf("column %q not found in header %v", name, header)
	return -1
}

func TestRunStopsWhenContextCancelled(t *testing.T) {
	cfg, path := writeConfigFile(t, oneRegionConfig)
	client := &fakeClient{batchesLeft: 1000000}
	counters := stats.NewCounters(0.4)

	a := New(Params{
		Client:          client,
		Caller:          passthrough.Caller{},
		Aligner:         passthrough.Aligner{},
		Config:          cfg,
		Counters:        counters,
		Throttle:        time.Microsecond,
		BatchSize:       10,
		UnblockDuration: time.Second,
		ConfigPath:      path,
		Clock:           &stubClock{now: time.Now()},
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, a.Run(ctx))
}
