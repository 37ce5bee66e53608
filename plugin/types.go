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

// Package plugin defines the data model and the two narrow contracts
// (Caller, Aligner) that the decision loop consumes. Concrete caller and
// aligner implementations live outside this module; only a trivial
// pass-through pair ships in the passthrough subpackage.
package plugin

import "fmt"

// Decision classifies a Result after alignment.
type Decision string

const (
	SingleOn       Decision = "single_on"
	SingleOff      Decision = "single_off"
	MultiOn        Decision = "multi_on"
	MultiOff       Decision = "multi_off"
	NoMap          Decision = "no_map"
	NoSeq          Decision = "no_seq"
	AboveMaxChunks Decision = "above_max_chunks"
	BelowMinChunks Decision = "below_min_chunks"
)

// AllDecisions lists the six decisions an Aligner may assign (the remaining
// two, AboveMaxChunks and BelowMinChunks, are synthesised by the decision
// engine, never by an Aligner).
var AllDecisions = []Decision{SingleOn, SingleOff, MultiOn, MultiOff, NoMap, NoSeq}

// Action is the operational command the dispatcher issues for a Result.
type Action string

const (
	Unblock       Action = "unblock"
	StopReceiving Action = "stop_receiving"
	Proceed       Action = "proceed"
)

// Strand is the forward or reverse strand of an alignment.
type Strand int8

const (
	Forward Strand = 1
	Reverse Strand = -1
)

// ParseStrand accepts "+", "-", "1", "-1", or a Strand passed through
// unchanged.
func ParseStrand(v interface{}) (Strand, error) {
	switch t := v.(type) {
	case Strand:
		return t, nil
	case string:
		switch t {
		case "+", "1":
			return Forward, nil
		case "-", "-1":
			return Reverse, nil
		}
	case int:
		if t == 1 {
			return Forward, nil
		}
		if t == -1 {
			return Reverse, nil
		}
	}
	return 0, fmt.Errorf("plugin: unrecognised strand %v", v)
}

func (s Strand) String() string {
	if s == Forward {
		return "+"
	}
	return "-"
}

// Alignment is a single alignment coordinate an Aligner has produced for a
// Result. EndCoord is the reference coordinate check_coord should be called
// with: the alignment's end position on the forward strand, its start
// position on the reverse strand.
type Alignment struct {
	Contig   string
	Strand   Strand
	EndCoord int64
}

// SignalDType describes the numeric encoding of raw signal samples handed
// to a Caller.
type SignalDType int

const (
	Int16 SignalDType = iota
	Float32
)

// Calibration holds the per-channel ADC-to-picoamp scale and offset used to
// digitise raw signal.
type Calibration struct {
	Scale  float64
	Offset float64
}

// RawChunk is one slice of raw electrical signal for a channel, as handed
// to a Caller by the sequencer RPC client.
type RawChunk struct {
	ReadID      string
	ReadNumber  uint64
	Signal      []byte
	StartSample uint64
}

// ChannelChunk pairs a RawChunk with the channel it was read from.
type ChannelChunk struct {
	Channel int
	Chunk   RawChunk
}

// Result is the per-chunk record threaded through the pipeline. It is
// mutated exactly three times: once by the Caller (Seq, Barcode,
// BasecallData), once by the Aligner (Alignments, Decision), and once,
// optionally, by the decision engine (Decision, for chunk-bound overrides).
type Result struct {
	Channel      int
	ReadNumber   uint64
	ReadID       string
	Seq          string
	Decision     Decision
	Barcode      *string
	BasecallData interface{}
	Alignments   []Alignment
}

// NewResult returns a Result with Decision defaulted to NoSeq, as a freshly
// basecalled Result should be before an Aligner has inspected its sequence.
func NewResult(channel int, readNumber uint64, readID string) Result {
	return Result{Channel: channel, ReadNumber: readNumber, ReadID: readID, Decision: NoSeq}
}

// Classify implements the decision-assignment rule of the aligner contract:
// it inspects seq and the alignment list and returns one of SingleOn,
// SingleOff, MultiOn, MultiOff, NoMap, or NoSeq. onTarget is called on each
// alignment in turn, stopping at the first one whose (contig, strand, coord)
// lies within a target interval.
func Classify(seq string, alignments []Alignment, onTarget func(Alignment) bool) Decision {
	if seq == "" {
		return NoSeq
	}
	if len(alignments) == 0 {
		return NoMap
	}
	coordMatch := false
	for _, a := range alignments {
		if onTarget(a) {
			coordMatch = true
			break
		}
	}
	if len(alignments) == 1 {
		if coordMatch {
			return SingleOn
		}
		return SingleOff
	}
	if coordMatch {
		return MultiOn
	}
	return MultiOff
}
