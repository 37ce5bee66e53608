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

package config

import (
	"github.com/grailbio/readfish/plugin"
	"github.com/grailbio/readfish/targets"
)

// Condition is a named policy binding each of the six "real" decisions plus
// the two chunk-bound overrides to an Action, along with the chunk-count
// bounds, control flag, and target set it applies over. Region and Barcode
// are both represented by Condition -- they share every field, and differ
// only in how the decision engine looks one up (by channel vs. by barcode
// label).
type Condition struct {
	Name string

	SingleOn  plugin.Action
	SingleOff plugin.Action
	MultiOn   plugin.Action
	MultiOff  plugin.Action
	NoMap     plugin.Action
	NoSeq     plugin.Action

	BelowMinChunks plugin.Action
	AboveMaxChunks plugin.Action

	Control   bool
	MinChunks int
	MaxChunks int

	Targets *targets.Index
}

// Region is a Condition applied to a contiguous geometric block of channels
// on the flow cell.
type Region = Condition

// Barcode is a Condition applied to reads carrying a particular barcode
// label, as assigned by the caller's demultiplexer.
type Barcode = Condition

// Action returns the Action bound to decision. This is a single table
// lookup -- all defaulting and validation happens once, when the Condition
// is built from a TOML table (see buildCondition), so this hot-path call
// carries no defaulting logic. It panics on a Decision it does not know.
func (c Condition) Action(decision plugin.Decision) plugin.Action {
	switch decision {
	case plugin.SingleOn:
		return c.SingleOn
	case plugin.SingleOff:
		return c.SingleOff
	case plugin.MultiOn:
		return c.MultiOn
	case plugin.MultiOff:
		return c.MultiOff
	case plugin.NoMap:
		return c.NoMap
	case plugin.NoSeq:
		return c.NoSeq
	case plugin.BelowMinChunks:
		return c.BelowMinChunks
	case plugin.AboveMaxChunks:
		return c.AboveMaxChunks
	default:
		panic("config: unknown decision " + string(decision))
	}
}
