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

// Package decision applies condition policy, chunk bounds, and the
// control-channel override to a caller/aligner Result to produce the
// Action the dispatcher will carry out.
package decision

import (
	"sync"

	"github.com/grailbio/readfish/chunktracker"
	"github.com/grailbio/readfish/config"
	"github.com/grailbio/readfish/plugin"
	"github.com/grailbio/readfish/stats"
)

// Engine implements the seven-step decision procedure. It is not safe for
// concurrent calls to Decide for the same channel (the main loop drives it
// from a single decision goroutine, per the concurrency model); the
// internal lock exists only to let Decide and inspection helpers agree on
// the previously-sent-action tracker.
type Engine struct {
	cfg      *config.Config
	tracker  *chunktracker.Tracker
	counters *stats.Counters

	mu         sync.Mutex
	lastAction map[int]plugin.Action
	everSent   map[int]bool
}

// New returns an Engine over cfg, recording chunk counts in tracker and
// folding every decision into counters.
func New(cfg *config.Config, tracker *chunktracker.Tracker, counters *stats.Counters) *Engine {
	return &Engine{
		cfg:        cfg,
		tracker:    tracker,
		counters:   counters,
		lastAction: map[int]plugin.Action{},
		everSent:   map[int]bool{},
	}
}

// Decide runs the seven-step procedure of spec.md §4.7 over result,
// returning the Action to dispatch, the (possibly decision-overridden)
// Result to record, the chunk-tracker seen-count for this read, and the
// name of whichever chunk-bound override fired (empty if none did).
func (e *Engine) Decide(result plugin.Result) (plugin.Action, plugin.Result, int, string, error) {
	isControl, cond, err := e.cfg.GetConditions(result.Channel, result.Barcode)
	if err != nil {
		return "", result, 0, "", err
	}

	n := e.tracker.Seen(result.Channel, result.ReadNumber)
	action := cond.Action(result.Decision)

	overridden := false
	overrideLabel := ""
	if isControl {
		action = plugin.StopReceiving
	} else {
		below := n < cond.MinChunks
		above := n > cond.MaxChunks
		if above && action == plugin.Proceed {
			action = cond.AboveMaxChunks
			result.Decision = plugin.AboveMaxChunks
			overridden = action != plugin.Proceed
			overrideLabel = string(plugin.AboveMaxChunks)
		}
		if below && action != plugin.Proceed {
			action = cond.BelowMinChunks
			result.Decision = plugin.BelowMinChunks
			overridden = action != plugin.Proceed
			overrideLabel = string(plugin.BelowMinChunks)
		}
	}

	e.mu.Lock()
	firstReadSkipped := !e.everSent[result.Channel] && overridden
	e.lastAction[result.Channel] = action
	e.everSent[result.Channel] = true
	e.mu.Unlock()

	e.counters.RecordRead(cond.Name, result.Decision, action, firstReadSkipped)
	return action, result, n, overrideLabel, nil
}

// PreviousAction returns the last Action Decide computed for channel, and
// whether any has ever been recorded for it.
func (e *Engine) PreviousAction(channel int) (plugin.Action, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	a, ok := e.lastAction[channel]
	return a, ok
}
