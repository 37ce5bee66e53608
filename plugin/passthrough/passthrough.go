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

// Package passthrough provides the trivial Caller and Aligner the core
// ships with: a Caller that emits one empty-sequence Result per chunk, and
// an Aligner that forwards Results unchanged. Both are used directly by the
// unblock-all entry point, and as a minimal fixture in tests of the rest of
// the pipeline.
package passthrough

import (
	"context"

	"github.com/grailbio/readfish/plugin"
)

// Caller is a no-op basecaller: it emits one Result per chunk, each with an
// empty sequence, which the decision engine will treat as Decision.NoSeq.
type Caller struct{}

var _ plugin.Caller = Caller{}

// Basecall implements plugin.Caller.
func (Caller) Basecall(ctx context.Context, chunks []plugin.ChannelChunk, _ plugin.SignalDType, _ map[int]plugin.Calibration) (<-chan plugin.Result, error) {
	out := make(chan plugin.Result, len(chunks))
	for _, c := range chunks {
		select {
		case <-ctx.Done():
			close(out)
			return out, ctx.Err()
		default:
		}
		out <- plugin.NewResult(c.Channel, c.Chunk.ReadNumber, c.Chunk.ReadID)
	}
	close(out)
	return out, nil
}

// Describe implements plugin.Caller.
func (Caller) Describe() string { return "passthrough caller: emits empty-sequence results" }

// Disconnect implements plugin.Caller.
func (Caller) Disconnect() error { return nil }

// Aligner is a no-op aligner: it forwards every Result unchanged, leaving
// Decision at whatever the Caller (or NewResult's default) set it to. This
// is appropriate when the Caller itself has already made the decision, or
// for unblock-all mode where every read is unblocked regardless of
// alignment.
type Aligner struct{}

var _ plugin.Aligner = Aligner{}

// Initialised implements plugin.Aligner. The pass-through aligner has no
// index to load, so it is always ready.
func (Aligner) Initialised() bool { return true }

// MapReads implements plugin.Aligner.
func (Aligner) MapReads(ctx context.Context, results <-chan plugin.Result) (<-chan plugin.Result, error) {
	out := make(chan plugin.Result, cap(results))
	go func() {
		defer close(out)
		for r := range results {
			select {
			case <-ctx.Done():
				return
			case out <- r:
			}
		}
	}()
	return out, nil
}

// Describe implements plugin.Aligner.
func (Aligner) Describe() string { return "passthrough aligner: forwards results unchanged" }

// Disconnect implements plugin.Aligner.
func (Aligner) Disconnect() error { return nil }

// CallerFactory and AlignerFactory are registered under the name "no_op" in
// cmd/readfish's default plugin.Registry, mirroring the original tool's
// built-in no_op caller/mapper plugin pair.
func CallerFactory(map[string]interface{}) (interface{}, error) { return Caller{}, nil }

func AlignerFactory(map[string]interface{}) (interface{}, error) { return Aligner{}, nil }
