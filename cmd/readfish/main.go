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

// Command readfish drives adaptive sampling against a running nanopore
// sequencer: the targets/barcode-targets/unblock-all subcommands run the
// real-time decision loop, validate checks a configuration file without
// running it, and stats summarises a configuration and an optional prior
// run's debug log.
package main

import (
	"v.io/x/lib/cmdline"
)

func main() {
	cmdline.HideGlobalFlagsExcept()
	cmdline.Main(&cmdline.Command{
		Name:     "readfish",
		Short:    "Adaptive sampling controller for nanopore sequencers",
		LookPath: false,
		Children: []*cmdline.Command{
			newCmdTargets(),
			newCmdBarcodeTargets(),
			newCmdUnblockAll(),
			newCmdValidate(),
			newCmdStats(),
		},
	})
}
