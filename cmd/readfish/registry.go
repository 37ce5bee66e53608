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
	"github.com/grailbio/readfish/plugin"
	"github.com/grailbio/readfish/plugin/passthrough"
)

// defaultCallerRegistry and defaultMapperRegistry are the built-in plugin
// tables this binary ships with -- today just "no_op", mirroring the
// original tool's bundled no_op caller/mapper pair. A deployment wiring in
// a real base-caller or aligner plugin registers it here before Run is
// called.
func defaultCallerRegistry() plugin.Registry {
	return plugin.Registry{
		"no_op": passthrough.CallerFactory,
	}
}

func defaultMapperRegistry() plugin.Registry {
	return plugin.Registry{
		"no_op": passthrough.AlignerFactory,
	}
}
