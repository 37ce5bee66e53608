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

// Package dispatch batches decided Actions into unblock/stop-receiving RPC
// calls once per loop iteration, and durably logs every unblocked read id.
package dispatch

import (
	"context"
	"time"

	"github.com/grailbio/readfish/plugin"
	"github.com/grailbio/readfish/rpc"
	"github.com/grailbio/readfish/stats"
)

type batchKey struct {
	channel    int
	readNumber uint64
}

// Dispatcher accumulates one iteration's worth of decided Actions and
// flushes them as two RPC batch calls. It does not reorder entries within
// a batch, and it tolerates (while counting) duplicate (channel,
// read-number) entries, per spec.md §4.8.
type Dispatcher struct {
	client          rpc.SequencerClient
	unblockDuration time.Duration
	counters        *stats.Counters
	log             *Log

	unblocks       []rpc.UnblockRequest
	stopReceivings []rpc.StopRequest
	seenThisBatch  map[batchKey]bool
}

// New returns a Dispatcher that issues RPCs through client, unblocking for
// unblockDuration, and appending every unblocked read id to log (may be
// nil to skip durable logging).
func New(client rpc.SequencerClient, unblockDuration time.Duration, counters *stats.Counters, log *Log) *Dispatcher {
	return &Dispatcher{
		client:          client,
		unblockDuration: unblockDuration,
		counters:        counters,
		log:             log,
		seenThisBatch:   map[batchKey]bool{},
	}
}

// Record adds one decided Action to the pending batch. Only Unblock and
// StopReceiving produce RPC entries; Proceed produces no call, per
// spec.md §3's Action definition.
func (d *Dispatcher) Record(action plugin.Action, channel int, readNumber uint64, readID string) {
	key := batchKey{channel, readNumber}
	if d.seenThisBatch[key] {
		d.counters.RecordDuplicateAction()
	} else {
		d.seenThisBatch[key] = true
	}

	switch action {
	case plugin.Unblock:
		d.unblocks = append(d.unblocks, rpc.UnblockRequest{Channel: channel, ReadNumber: readNumber, ReadID: readID})
	case plugin.StopReceiving:
		d.stopReceivings = append(d.stopReceivings, rpc.StopRequest{Channel: channel, ReadNumber: readNumber})
	case plugin.Proceed:
		// No RPC call.
	}
}

// Flush issues the accumulated unblock and stop-receiving batches (each
// only if non-empty), appends unblocked read ids to the durable log, and
// clears the pending batch for the next iteration.
func (d *Dispatcher) Flush(ctx context.Context) error {
	defer d.reset()

	if len(d.unblocks) > 0 {
		if err := d.client.UnblockReadBatch(ctx, d.unblocks, d.unblockDuration); err != nil {
			return err
		}
		if d.log != nil {
			for _, u := range d.unblocks {
				d.log.Append(u.ReadID)
			}
		}
	}
	if len(d.stopReceivings) > 0 {
		if err := d.client.StopReceivingBatch(ctx, d.stopReceivings); err != nil {
			return err
		}
	}
	return nil
}

func (d *Dispatcher) reset() {
	d.unblocks = nil
	d.stopReceivings = nil
	d.seenThisBatch = map[batchKey]bool{}
}

// PendingCounts reports the number of unblock and stop-receiving entries
// accumulated so far this iteration, for tests and diagnostics.
func (d *Dispatcher) PendingCounts() (unblocks, stopReceivings int) {
	return len(d.unblocks), len(d.stopReceivings)
}
