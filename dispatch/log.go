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
	"io"
	"sync"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/syncqueue"
)

// Log is a durable, append-only, one-id-per-line log of unblocked read
// ids, written through a bounded producer/consumer queue so the decision
// loop's call to Append never blocks on file I/O -- grounded on
// encoding/bam/shardedbam.go's use of github.com/grailbio/base/syncqueue
// to decouple a hot-path producer from ordered output writes, repurposed
// here as a simple bounded FIFO log rather than a shard reassembly buffer.
type Log struct {
	w     io.Writer
	queue *syncqueue.OrderedQueue

	mu   sync.Mutex
	next int
	wg   sync.WaitGroup
	err  error
}

// NewLog starts a background writer goroutine draining into w. queueSize
// bounds how far the producer may run ahead of the writer before Append
// blocks.
func NewLog(w io.Writer, queueSize int) *Log {
	l := &Log{w: w, queue: syncqueue.NewOrderedQueue(queueSize)}
	l.wg.Add(1)
	go l.drain()
	return l
}

// Append enqueues one read id to be written on its own line. Safe for
// concurrent use, though in practice only the dispatcher's single
// decision goroutine calls it.
func (l *Log) Append(readID string) {
	l.mu.Lock()
	seq := l.next
	l.next++
	l.mu.Unlock()
	// Insert errors only once the queue has been closed: by Close, or by the
	// writer goroutine after a write failure, whose error Close returns.
	_ = l.queue.Insert(seq, readID)
}

func (l *Log) drain() {
	defer l.wg.Done()
	for {
		entry, ok, err := l.queue.Next()
		if err != nil {
			l.err = errors.E(err, "dispatch: log writer failed")
			return
		}
		if !ok {
			return
		}
		id := entry.(string)
		if _, err := io.WriteString(l.w, id+"\n"); err != nil {
			l.err = errors.E(err, "dispatch: couldn't write unblocked read id")
			l.queue.Close(err)
			return
		}
	}
}

// Close stops accepting new entries, waits for the writer goroutine to
// drain whatever was already queued, and returns the first write error
// encountered, if any.
func (l *Log) Close() error {
	l.queue.Close(nil)
	l.wg.Wait()
	return l.err
}
