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
	"github.com/grailbio/base/cmdutil"
	"v.io/x/lib/cmdline"
)

func newCmdTargets() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:  "targets",
		Short: "Run targeted adaptive sampling against region-keyed conditions",
	}
	f := addCommonFlags(cmd, true)
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		return runTargets(env, f)
	})
	return cmd
}

// newCmdBarcodeTargets registers the identical runner as newCmdTargets
// under a second name: the upstream tool exposes "targets" and
// "barcode-targets" as two names for the same entry point, the
// distinction living entirely in whether the supplied TOML's conditions
// are keyed by region or by barcode label (config.Config.GetConditions
// handles both transparently).
func newCmdBarcodeTargets() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:  "barcode-targets",
		Short: "Run targeted adaptive sampling against barcode-keyed conditions",
	}
	f := addCommonFlags(cmd, true)
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		return runTargets(env, f)
	})
	return cmd
}
