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

// Package analysis drives the per-iteration decision loop: pull chunks,
// basecall, align, decide, dispatch, record, throttle, repeat -- orchestrating
// every other package under a single serial decision goroutine.
package analysis

import (
	"context"
	"os"
	"time"

	"github.com/grailbio/base/log"

	"github.com/grailbio/readfish/chunktracker"
	"github.com/grailbio/readfish/config"
	"github.com/grailbio/readfish/decision"
	"github.com/grailbio/readfish/dispatch"
	"github.com/grailbio/readfish/plugin"
	"github.com/grailbio/readfish/rpc"
	"github.com/grailbio/readfish/stats"
)

// Clock abstracts time.Now/time.Sleep so tests can run iterations without
// real throttling delays.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

type realClock struct{}

func (realClock) Now() time.Time        { return time.Now() }
func (realClock) Sleep(d time.Duration) { time.Sleep(d) }

// Params configures one Analysis run.
type Params struct {
	Client   rpc.SequencerClient
	Caller   plugin.Caller
	Aligner  plugin.Aligner
	Config   *config.Config
	Counters *stats.Counters
	Debug    *stats.DebugLogger

	Throttle        time.Duration
	BatchSize       int
	UnblockDuration time.Duration

	// DryRun, when true, substitutes StopReceiving for every Unblock action
	// before dispatch -- the CLI's --dry-run flag (spec.md §6), useful for
	// rehearsing a configuration's channel assignment without ejecting any
	// molecule.
	DryRun bool

	// ConfigPath, if non-empty, is stat'd once per iteration; when its
	// mtime advances past the last reload, Config.ReloadFromFile(ConfigPath)
	// is attempted.
	ConfigPath string

	Clock Clock
}

// Analysis orchestrates the main decision loop described in spec.md §4.9.
type Analysis struct {
	p          Params
	tracker    *chunktracker.Tracker
	engine     *decision.Engine
	dispatcher *dispatch.Dispatcher
	clock      Clock

	lastReload      time.Time
	clientIteration int
}

// New builds an Analysis ready to Run. log, if non-nil, receives one entry
// per unblocked read id.
func New(p Params, log *dispatch.Log) *Analysis {
	clock := p.Clock
	if clock == nil {
		clock = realClock{}
	}
	tracker := chunktracker.New(p.Client.ChannelCount())
	engine := decision.New(p.Config, tracker, p.Counters)
	dispatcher := dispatch.New(p.Client, p.UnblockDuration, p.Counters, log)
	return &Analysis{p: p, tracker: tracker, engine: engine, dispatcher: dispatcher, clock: clock}
}

// Run executes the main loop until ctx is cancelled or the sequencer
// reports the run has ended, per spec.md §4.9's termination clause.
func (a *Analysis) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return a.terminate()
		}
		if !a.p.Client.IsRunning() {
			return a.terminate()
		}

		start := a.clock.Now()

		if !a.p.Client.IsSequencingPhase() {
			a.clock.Sleep(a.p.Throttle)
			continue
		}
		if !a.p.Aligner.Initialised() {
			a.clock.Sleep(a.p.Throttle)
			continue
		}

		a.maybeReload()

		n, err := a.runIteration(ctx)
		if err != nil {
			return err
		}

		elapsed := a.clock.Now().Sub(start)
		a.p.Counters.AddBatchPerformance(n, elapsed.Seconds())
		if elapsed < a.p.Throttle {
			a.clock.Sleep(a.p.Throttle - elapsed)
		}
	}
}

// maybeReload implements step 3 of §4.9: reload only if the config file's
// mtime has advanced past the last successful (or attempted) reload.
func (a *Analysis) maybeReload() {
	if a.p.ConfigPath == "" {
		return
	}
	info, err := os.Stat(a.p.ConfigPath)
	if err != nil {
		log.Error.Printf("analysis: couldn't stat config path %s: %v", a.p.ConfigPath, err)
		return
	}
	if !info.ModTime().After(a.lastReload) {
		return
	}
	a.lastReload = info.ModTime()
	if err := a.p.Config.ReloadFromFile(a.p.ConfigPath); err != nil {
		log.Error.Printf("analysis: config reload failed, continuing with previous configuration: %v", err)
	}
}

// runIteration implements steps 4-6 of §4.9: pull one batch of chunks and
// run it through caller -> aligner -> decision -> dispatch. It returns the
// number of chunks pulled.
func (a *Analysis) runIteration(ctx context.Context) (int, error) {
	a.clientIteration++

	chunks, err := a.p.Client.GetReadChunks(ctx, a.p.BatchSize)
	if err != nil {
		return 0, err
	}
	if len(chunks) == 0 {
		return 0, nil
	}

	results, err := a.p.Caller.Basecall(ctx, chunks, plugin.Int16, a.p.Client.Calibration())
	if err != nil {
		return 0, err
	}
	aligned, err := a.p.Aligner.MapReads(ctx, results)
	if err != nil {
		return 0, err
	}

	readInLoop := 0
	for result := range aligned {
		readInLoop++
		a.processResult(result, readInLoop)
	}
	return len(chunks), a.dispatcher.Flush(ctx)
}

// processResult decides and dispatches one Result, recovering from any
// panic raised while doing so (for instance Condition.Action panicking on a
// Decision value an Aligner set that no condition knows), so that one bad
// Result cannot lose the rest of the batch. A panic inside Caller.Basecall
// or Aligner.MapReads themselves is not recovered here; the recovered
// panic is logged and not counted in stats.Counters.
func (a *Analysis) processResult(result plugin.Result, readInLoop int) {
	defer func() {
		if r := recover(); r != nil {
			log.Error.Printf("analysis: recovered from panic processing channel %d: %v", result.Channel, r)
		}
	}()

	previous, _ := a.engine.PreviousAction(result.Channel)
	action, decided, counter, override, err := a.engine.Decide(result)
	if err != nil {
		log.Error.Printf("analysis: couldn't decide channel %d: %v", result.Channel, err)
		return
	}
	if a.p.DryRun && action == plugin.Unblock {
		action = plugin.StopReceiving
	}
	a.dispatcher.Record(action, decided.Channel, decided.ReadNumber, decided.ReadID)

	if a.p.Debug != nil {
		_, cond, _ := a.p.Config.GetConditions(decided.Channel, decided.Barcode)
		barcode := ""
		if decided.Barcode != nil {
			barcode = *decided.Barcode
		}
		_ = a.p.Debug.Log(stats.DebugRecord{
			ClientIteration: a.clientIteration,
			ReadInLoop:      readInLoop,
			ReadID:          decided.ReadID,
			Channel:         decided.Channel,
			ReadNumber:      decided.ReadNumber,
			SeqLen:          len(decided.Seq),
			Counter:         counter,
			Mode:            decided.Decision,
			Decision:        action,
			Condition:       cond.Name,
			Barcode:         barcode,
			PreviousAction:  string(previous),
			ActionOverride:  override,
			Timestamp:       a.clock.Now(),
		})
	}
}

// terminate disconnects both plugins, per spec.md §4.9's termination
// clause. Every iteration has already flushed its dispatch batch, so no
// pending work remains to drain.
func (a *Analysis) terminate() error {
	if err := a.p.Caller.Disconnect(); err != nil {
		log.Error.Printf("analysis: caller disconnect failed: %v", err)
	}
	if err := a.p.Aligner.Disconnect(); err != nil {
		log.Error.Printf("analysis: aligner disconnect failed: %v", err)
	}
	return nil
}
