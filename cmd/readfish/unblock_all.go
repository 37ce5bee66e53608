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
	"os"

	"github.com/grailbio/base/cmdutil"
	"v.io/x/lib/cmdline"
)

// unblockAllTOML is a whole-flowcell region that unblocks every read
// regardless of decision, paired with the no_op caller/mapper -- the exact
// synthetic configuration the original tool's unblock_all entry point
// writes to a temp file before delegating to the targets runner.
const unblockAllTOML = `
[caller_settings.no_op]
[mapper_settings.no_op]

[[regions]]
name = "unblock all"
min_chunks = 1
max_chunks = 2
targets = []
single_on = "unblock"
single_off = "unblock"
multi_on = "unblock"
multi_off = "unblock"
no_seq = "unblock"
no_map = "unblock"
above_max_chunks = "unblock"
below_min_chunks = "unblock"
`

func newCmdUnblockAll() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:  "unblock-all",
		Short: "Unblock every read, regardless of sequence or alignment",
	}
	f := addCommonFlags(cmd, false)
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		toml, err := os.CreateTemp("", "readfish-unblock-all-*.toml")
		if err != nil {
			return err
		}
		defer os.Remove(toml.Name())
		if _, err := toml.WriteString(unblockAllTOML); err != nil {
			toml.Close()
			return err
		}
		if err := toml.Close(); err != nil {
			return err
		}
		*f.tomlPath = toml.Name()
		return runTargets(env, f)
	})
	return cmd
}
