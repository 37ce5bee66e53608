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

// Package chunktracker counts how many chunks have been seen for the
// current read on each channel, resetting the count whenever a channel
// moves on to a new read.
package chunktracker

import "sync"

// Tracker is a per-channel chunk counter, indexed directly by channel
// number (1-based) rather than by map lookup, since channel counts are
// known up front and small relative to per-chunk call volume.
type Tracker struct {
	mu      sync.Mutex
	counts  []uint32
	readNum []uint64
}

// New returns a Tracker sized for channels 1..channelCount.
func New(channelCount int) *Tracker {
	return &Tracker{
		counts:  make([]uint32, channelCount+1),
		readNum: make([]uint64, channelCount+1),
	}
}

// Seen records one more chunk for (channel, readNumber) and returns the
// running count for that read on that channel. If readNumber differs from
// the last one recorded for channel, the count resets to 1 -- a channel
// beginning a new read starts counting from scratch.
func (t *Tracker) Seen(channel int, readNumber uint64) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.readNum[channel] != readNumber {
		t.readNum[channel] = readNumber
		t.counts[channel] = 0
	}
	t.counts[channel]++
	return int(t.counts[channel])
}
