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

// Package rpc names the narrow boundary the decision loop depends on to
// talk to a running sequencer. No concrete MinKNOW/gRPC client lives in
// this module; SequencerClient is the contract a real client adapter
// implements, grounded on plugins/abc.py's pattern of depending on narrow
// ABCs rather than concrete vendor types from inside the core decision
// path.
package rpc

import (
	"context"
	"time"

	"github.com/grailbio/readfish/plugin"
)

// UnblockRequest names one read to eject.
type UnblockRequest struct {
	Channel    int
	ReadNumber uint64
	ReadID     string
}

// StopRequest names one read to let finish without further chunks.
type StopRequest struct {
	Channel    int
	ReadNumber uint64
}

// SequencerClient is the sequencer RPC surface the main loop consumes.
// GetReadChunks guarantees at most one chunk per channel, always the most
// recent -- any prior unread chunk for that channel is discarded at the
// RPC layer before this call returns.
type SequencerClient interface {
	GetReadChunks(ctx context.Context, batchSize int) ([]plugin.ChannelChunk, error)
	UnblockReadBatch(ctx context.Context, requests []UnblockRequest, duration time.Duration) error
	StopReceivingBatch(ctx context.Context, requests []StopRequest) error
	IsRunning() bool
	IsSequencingPhase() bool
	ChannelCount() int
	Calibration() map[int]plugin.Calibration
}
