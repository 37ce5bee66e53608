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

package plugin

import "context"

// Caller transforms raw signal chunks into basecalled Results.
//
// Implementations MAY drop chunks (e.g. their own internal queues are
// full); a dropped chunk must not appear on the returned channel. Result
// order is unspecified: the decision loop must not assume the order
// chunks were submitted in is preserved. An empty Seq is a legal result,
// and downstream classifies it as Decision.NoSeq.
type Caller interface {
	// Basecall consumes chunks and returns a channel of Results. The
	// returned channel is closed once every chunk has been processed or
	// dropped. ctx cancellation must stop processing promptly.
	Basecall(ctx context.Context, chunks []ChannelChunk, dtype SignalDType, calibration map[int]Calibration) (<-chan Result, error)

	// Describe returns a short human-readable description of the plugin's
	// configuration, used by the `stats` CLI subcommand.
	Describe() string

	// Disconnect releases any resources held by the caller. Called once,
	// after the main loop stops.
	Disconnect() error
}

// Aligner annotates basecalled Results with alignment data and a Decision.
type Aligner interface {
	// Initialised reports whether the aligner currently has a usable
	// index. The main loop spins (without calling MapReads) while this is
	// false.
	Initialised() bool

	// MapReads consumes basecalled Results and returns the same Results
	// with Alignments and Decision populated, following the classification
	// rule documented on Classify. The returned channel is closed once
	// every input Result has been processed.
	MapReads(ctx context.Context, results <-chan Result) (<-chan Result, error)

	// Describe returns a short human-readable description of the aligner's
	// configuration and loaded targets.
	Describe() string

	// Disconnect releases any resources held by the aligner. Called once,
	// after the main loop stops.
	Disconnect() error
}

// Factory builds a named plugin (Caller or Aligner) from a parameter table
// decoded from the TOML configuration file's caller_settings/mapper_settings
// section. This is the statically-typed registry equivalent of the dynamic,
// importlib-based plugin loading of the module this core was distilled
// from: a plugin name maps to exactly one Factory. Loading a configuration
// does not check the name; it is resolved when PluginSettings.Load is
// called (by the run commands, `validate --check-plugins`, and `stats`).
type Factory func(params map[string]interface{}) (interface{}, error)

// Registry maps a plugin name to the Factory that constructs it.
type Registry map[string]Factory
