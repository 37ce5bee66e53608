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
	"context"
	"fmt"
	golog "log"
	"os"
	"os/signal"
	"sort"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/grailbio/base/log"
	"v.io/x/lib/cmdline"

	"github.com/grailbio/readfish/analysis"
	"github.com/grailbio/readfish/circular"
	"github.com/grailbio/readfish/config"
	"github.com/grailbio/readfish/dispatch"
	"github.com/grailbio/readfish/plugin"
	"github.com/grailbio/readfish/rpc"
	"github.com/grailbio/readfish/stats"
)

// commonFlags is the flag set shared by every subcommand that runs a live
// decision loop (targets, barcode-targets, unblock-all), grounded on
// spec.md §6's common-flags list.
type commonFlags struct {
	device               *string
	experimentName       *string
	host                 *string
	port                 *string
	tomlPath             *string
	unblockDuration      *float64
	throttle             *float64
	dryRun               *bool
	maxUnblockReadLenSec *float64
	logFile              *string
	logLevel             *string
	logFormat            *string
	debugLog             *string
	batchSize            *int
}

func addCommonFlags(cmd *cmdline.Command, requireTOML bool) *commonFlags {
	f := &commonFlags{
		device:               cmd.Flags.String("device", "minion", "Flow cell device family: flongle, minion, gridion, or promethion"),
		experimentName:       cmd.Flags.String("experiment-name", "", "Name of the experiment, used for logging and RPC identification"),
		host:                 cmd.Flags.String("host", "127.0.0.1", "Host running the sequencing instrument's RPC server"),
		port:                 cmd.Flags.String("port", "", "Port of the sequencing instrument's RPC server"),
		unblockDuration:      cmd.Flags.Float64("unblock-duration", 0.5, "Seconds of reverse voltage to apply for an unblock"),
		throttle:             cmd.Flags.Float64("throttle", 0.4, "Minimum seconds between two successive decision cycles"),
		dryRun:               cmd.Flags.Bool("dry-run", false, "Replace every unblock action with stop-receiving"),
		maxUnblockReadLenSec: cmd.Flags.Float64("max-unblock-read-length-seconds", 0, "Informational cap on read length eligible for unblock; 0 disables it"),
		logFile:              cmd.Flags.String("log-file", "", "Write logs to this file instead of stderr"),
		logLevel:             cmd.Flags.String("log-level", "info", "Log verbosity: debug, info, warn, or error"),
		logFormat:            cmd.Flags.String("log-format", "text", "Log output format: text or json"),
		debugLog:             cmd.Flags.String("debug-log", "", "Write a per-chunk debug TSV to this path"),
		batchSize:            cmd.Flags.Int("batch-size", 512, "Maximum chunks pulled from the sequencer per iteration"),
	}
	help := "TOML file specifying experimental parameters"
	if requireTOML {
		f.tomlPath = cmd.Flags.String("toml", "", help)
	} else {
		f.tomlPath = cmd.Flags.String("toml", "", help+" (unused; a synthetic configuration is generated)")
	}
	return f
}

// configureLogging applies --log-file/--log-level/--log-format. The level
// and format flags are recorded and logged as accepted, but do not change
// what is logged or how. This binary's logging sink is
// github.com/grailbio/base/log's package-level logger, which every other
// component already writes through and whose default outputter writes
// through the standard library logger. --log-file, when supplied, points
// that standard logger at the file until the returned cleanup runs, which
// restores stderr.
func configureLogging(f *commonFlags) (func(), error) {
	if *f.logFile == "" {
		return func() {}, nil
	}
	file, err := os.OpenFile(*f.logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	golog.SetOutput(file)
	log.Printf("readfish: logging to %s (level=%s format=%s)", *f.logFile, *f.logLevel, *f.logFormat)
	return func() {
		golog.SetOutput(os.Stderr)
		file.Close()
	}, nil
}

// runResources bundles everything buildAnalysis opens so runTargets can
// shut it all down in the right order once Analysis.Run returns.
type runResources struct {
	analysis     *analysis.Analysis
	counters     *stats.Counters
	readLog      *dispatch.Log
	readLogFile  *os.File
	debugLogFile *os.File
}

func (r *runResources) Close() {
	if r.readLog != nil {
		r.readLog.Close()
	}
	if r.readLogFile != nil {
		r.readLogFile.Close()
	}
	if r.debugLogFile != nil {
		r.debugLogFile.Close()
	}
}

// buildAnalysis assembles an Analysis from the common flags, a concrete
// SequencerClient, and the caller/mapper plugins named by cfg's
// caller_settings/mapper_settings tables.
func buildAnalysis(f *commonFlags, cfg *config.Config, client rpc.SequencerClient) (*runResources, error) {
	callerSettings := cfg.CallerSettings()
	callerObj, err := callerSettings.Load(defaultCallerRegistry())
	if err != nil {
		return nil, err
	}
	caller, ok := callerObj.(plugin.Caller)
	if !ok {
		return nil, errNotA("Caller", callerSettings.Name)
	}

	mapperSettings := cfg.MapperSettings()
	mapperObj, err := mapperSettings.Load(defaultMapperRegistry())
	if err != nil {
		return nil, err
	}
	aligner, ok := mapperObj.(plugin.Aligner)
	if !ok {
		return nil, errNotA("Aligner", mapperSettings.Name)
	}

	counters := stats.NewCounters(*f.throttle)

	readLogFile, err := os.Create("unblocked_read_ids.txt")
	if err != nil {
		return nil, err
	}
	// Give the log queue enough headroom to absorb a couple of batches'
	// worth of unblocks without the decision loop blocking on file I/O;
	// rounded up to a power of two, as the queue's ring buffer prefers.
	readLog := dispatch.NewLog(readLogFile, circular.NextExp2(*f.batchSize*2))

	var debugLogger *stats.DebugLogger
	var debugLogFile *os.File
	if *f.debugLog != "" {
		debugLogFile, err = os.Create(*f.debugLog)
		if err != nil {
			readLog.Close()
			readLogFile.Close()
			return nil, err
		}
		debugLogger, err = stats.NewDebugLogger(debugLogFile)
		if err != nil {
			readLog.Close()
			readLogFile.Close()
			debugLogFile.Close()
			return nil, err
		}
	}

	a := analysis.New(analysis.Params{
		Client:          client,
		Caller:          caller,
		Aligner:         aligner,
		Config:          cfg,
		Counters:        counters,
		Debug:           debugLogger,
		Throttle:        time.Duration(*f.throttle * float64(time.Second)),
		BatchSize:       *f.batchSize,
		UnblockDuration: time.Duration(*f.unblockDuration * float64(time.Second)),
		ConfigPath:      *f.tomlPath,
		DryRun:          *f.dryRun,
	}, readLog)

	return &runResources{
		analysis:     a,
		counters:     counters,
		readLog:      readLog,
		readLogFile:  readLogFile,
		debugLogFile: debugLogFile,
	}, nil
}

// channelsFile is the shape of channels.toml, a record of the condition
// each channel was assigned for the run: {conditions: {<region-index>:
// {name, channels}}}, grounded on
// original_source/src/readfish/entry_points/targets.py's channels_out dict.
type channelsFile struct {
	Conditions map[string]channelsFileCondition `toml:"conditions"`
}

type channelsFileCondition struct {
	Name     string `toml:"name"`
	Channels []int  `toml:"channels"`
}

// writeChannelsFile snapshots cfg's region assignment to path, so a run can
// be reproduced or audited after the fact. It is a no-op write (an empty
// conditions table) when the configuration has no regions at all (a
// barcode-only configuration).
func writeChannelsFile(cfg *config.Config, path string) error {
	regions := cfg.Regions()
	channelMap := cfg.ChannelMap()

	byIndex := make(map[int][]int, len(regions))
	for channel, idx := range channelMap {
		byIndex[idx] = append(byIndex[idx], channel)
	}

	out := channelsFile{Conditions: make(map[string]channelsFileCondition, len(regions))}
	for idx, r := range regions {
		channels := byIndex[idx]
		sort.Ints(channels)
		out.Conditions[fmt.Sprint(idx)] = channelsFileCondition{Name: r.Name, Channels: channels}
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.WriteString(
		"# This file is written as a record of the condition each channel is assigned.\n" +
			"# It may be changed or overwritten if you restart readfish.\n"); err != nil {
		return err
	}
	return toml.NewEncoder(f).Encode(out)
}

func errNotA(want, name string) error {
	return &pluginTypeError{want: want, name: name}
}

type pluginTypeError struct {
	want, name string
}

func (e *pluginTypeError) Error() string {
	return "readfish: plugin " + e.name + " does not implement plugin." + e.want
}

// runTargets is the shared runner behind `readfish targets` and `readfish
// barcode-targets` -- in the original tool both subcommands dispatch to
// the identical entry_points/targets.py:Analysis, distinguished only by
// name (a region-keyed vs. barcode-keyed configuration drives different
// behavior through the same code path).
func runTargets(env *cmdline.Env, f *commonFlags) error {
	if *f.experimentName == "" {
		return fmt.Errorf("readfish: --experiment-name is required")
	}
	channels, err := channelCountForDevice(*f.device)
	if err != nil {
		return err
	}
	cleanup, err := configureLogging(f)
	if err != nil {
		return err
	}
	defer cleanup()

	cfg, err := config.FromFile(*f.tomlPath, channels)
	if err != nil {
		return err
	}
	client, err := dialSequencer(*f.device, *f.experimentName, *f.host, *f.port)
	if err != nil {
		return err
	}

	res, err := buildAnalysis(f, cfg, client)
	if err != nil {
		return err
	}
	defer res.Close()

	if err := writeChannelsFile(cfg, "channels.toml"); err != nil {
		log.Error.Printf("readfish: couldn't write channels.toml: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if *f.maxUnblockReadLenSec > 0 {
		log.Printf("readfish: max-unblock-read-length-seconds=%.1f (informational; enforcement belongs to the sequencer RPC adapter)", *f.maxUnblockReadLenSec)
	}
	log.Printf("readfish: starting %s", *f.experimentName)
	if err := res.analysis.Run(ctx); err != nil {
		return err
	}
	log.Printf("readfish: %s", res.counters.GetBatchPerformance())
	return nil
}
