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
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/grailbio/base/cmdutil"
	"github.com/grailbio/base/log"
	"v.io/x/lib/cmdline"

	"github.com/grailbio/readfish/config"
	"github.com/grailbio/readfish/plugin"
)

func newCmdStats() *cmdline.Command {
	cmd := &cmdline.Command{
		Name: "stats",
		Short: "Summarise a readfish configuration and an optional prior run's debug log. " +
			"Post-run FASTQ realignment/demultiplexing is out of scope for this binary.",
	}
	device := cmd.Flags.String("device", "minion", "Flow cell device family: flongle, minion, gridion, or promethion")
	tomlPath := cmd.Flags.String("toml", "", "TOML file used in the readfish experiment")
	debugLog := cmd.Flags.String("debug-log", "", "Path to a debug TSV produced by a prior targets/barcode-targets/unblock-all run")
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		return runStats(*device, *tomlPath, *debugLog)
	})
	return cmd
}

func runStats(device, tomlPath, debugLogPath string) error {
	if tomlPath == "" {
		return fmt.Errorf("stats: --toml is required")
	}
	channels, err := channelCountForDevice(device)
	if err != nil {
		return err
	}
	cfg, err := config.FromFile(tomlPath, channels)
	if err != nil {
		return err
	}
	log.Printf("stats: loaded TOML config without error")

	describePlugin := func(label string, settings config.PluginSettings, reg plugin.Registry, describe func(interface{}) string) {
		obj, err := settings.Load(reg)
		if err != nil {
			log.Error.Printf("stats: %s %q could not be initialised: %v", label, settings.Name, err)
			return
		}
		log.Printf("stats: %s: %s", label, describe(obj))
	}
	describePlugin("caller", cfg.CallerSettings(), defaultCallerRegistry(), func(o interface{}) string {
		return o.(plugin.Caller).Describe()
	})
	describePlugin("mapper", cfg.MapperSettings(), defaultMapperRegistry(), func(o interface{}) string {
		return o.(plugin.Aligner).Describe()
	})

	for _, r := range cfg.Regions() {
		log.Printf("stats: region %q: control=%v min_chunks=%d max_chunks=%d", r.Name, r.Control, r.MinChunks, r.MaxChunks)
	}
	for label, b := range cfg.Barcodes() {
		log.Printf("stats: barcode %q: control=%v min_chunks=%d max_chunks=%d", label, b.Control, b.MinChunks, b.MaxChunks)
	}

	if debugLogPath == "" {
		return nil
	}
	f, err := os.Open(debugLogPath)
	if err != nil {
		return err
	}
	defer f.Close()
	return summariseDebugLog(f)
}

// summariseDebugLog tallies rows of a prior run's debug TSV by
// (condition, decision, action) and prints the counts, largest first.
// It reads back exactly the column layout stats.NewDebugLogger writes.
func summariseDebugLog(r io.Reader) error {
	cr := csv.NewReader(r)
	cr.Comma = '\t'
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return err
	}
	col := map[string]int{}
	for i, name := range header {
		col[name] = i
	}
	for _, want := range []string{"condition", "mode", "decision"} {
		if _, ok := col[want]; !ok {
			return fmt.Errorf("stats: debug log is missing expected column %q", want)
		}
	}

	type key struct{ condition, mode, decision string }
	counts := map[key]int{}
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		k := key{row[col["condition"]], row[col["mode"]], row[col["decision"]]}
		counts[k]++
	}

	keys := make([]key, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return counts[keys[i]] > counts[keys[j]] })
	for _, k := range keys {
		log.Printf("stats: condition=%s mode=%s decision=%s count=%d", k.condition, k.mode, k.decision, counts[k])
	}
	return nil
}
