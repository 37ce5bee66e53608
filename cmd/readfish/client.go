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

package main

import (
	"fmt"

	"github.com/grailbio/readfish/rpc"
)

// dialSequencer is the one seam where this binary would connect to a
// running MinKNOW/Read Until instance. The sequencer RPC client is
// explicitly out of scope for this module (it depends on vendor gRPC
// stubs this repository does not carry) -- rpc.SequencerClient is the
// contract a real adapter implements, and runTargets depends only on that
// interface. A deployment wires its own adapter in by replacing this
// function.
func dialSequencer(device, experimentName, host, port string) (rpc.SequencerClient, error) {
	return nil, fmt.Errorf(
		"readfish: no rpc.SequencerClient adapter is linked into this binary "+
			"(device=%s experiment=%s host=%s port=%s); wire a real sequencer "+
			"adapter into cmd/readfish before running targets/barcode-targets",
		device, experimentName, host, port)
}
