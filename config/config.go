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

// Package config loads and holds the declarative document that governs a
// run: conditions (Regions and Barcodes), the derived channel->region
// assignment, and the caller/mapper plugin settings. A Config is immutable
// once built; the whole of it may be atomically replaced via ReloadFromFile.
package config

import (
	"os"
	"sync/atomic"

	"github.com/BurntSushi/toml"
	"github.com/grailbio/base/log"
	"github.com/pkg/errors"

	"github.com/grailbio/readfish/flowcell"
	"github.com/grailbio/readfish/targets"
)

const (
	classifiedBarcode   = "classified"
	unclassifiedBarcode = "unclassified"
)

// data is the immutable payload of a Config. ReloadFromFile replaces an
// entire data value atomically; nothing inside it is ever mutated after
// build.
type data struct {
	channels       int
	callerSettings PluginSettings
	mapperSettings PluginSettings
	regions        []Region
	barcodes       map[string]Barcode
	channelMap     map[int]int
}

// Config is the validated, queryable configuration for a run. The zero
// value is not usable; construct one with FromFile.
type Config struct {
	cur atomic.Pointer[data]
}

// CallerSettings returns the caller plugin's name and parameters.
func (c *Config) CallerSettings() PluginSettings { return c.cur.Load().callerSettings }

// MapperSettings returns the mapper plugin's name and parameters.
func (c *Config) MapperSettings() PluginSettings { return c.cur.Load().mapperSettings }

// Regions returns the ordered list of Regions, in declaration order.
func (c *Config) Regions() []Region {
	d := c.cur.Load()
	out := make([]Region, len(d.regions))
	copy(out, d.regions)
	return out
}

// Barcodes returns the barcode-label -> Barcode mapping.
func (c *Config) Barcodes() map[string]Barcode {
	d := c.cur.Load()
	out := make(map[string]Barcode, len(d.barcodes))
	for k, v := range d.barcodes {
		out[k] = v
	}
	return out
}

// ChannelMap returns a copy of the derived channel -> region-index mapping.
func (c *Config) ChannelMap() map[int]int {
	d := c.cur.Load()
	out := make(map[int]int, len(d.channelMap))
	for k, v := range d.channelMap {
		out[k] = v
	}
	return out
}

// GetRegion returns the Region assigned to channel, or ok=false if there
// are no regions configured at all.
func (c *Config) GetRegion(channel int) (Region, bool) {
	d := c.cur.Load()
	if len(d.regions) == 0 {
		return Region{}, false
	}
	idx, ok := d.channelMap[channel]
	if !ok {
		return Region{}, false
	}
	return d.regions[idx], true
}

// GetBarcode returns the Barcode assigned to label. An unrecognised label
// falls back to the "classified" entry, never "unclassified" -- that label
// is reserved for reads the caller itself marked unclassified. Returns
// ok=false only if barcode is nil.
func (c *Config) GetBarcode(barcode *string) (Barcode, bool) {
	if barcode == nil {
		return Barcode{}, false
	}
	d := c.cur.Load()
	if b, ok := d.barcodes[*barcode]; ok {
		return b, true
	}
	return d.barcodes[classifiedBarcode], true
}

// GetConditions resolves the Condition that applies to a (channel, barcode)
// pair, and whether that Condition is a control. When both a Region and a
// Barcode apply, the Barcode's Condition wins and the control flag is the
// OR of both; when only one applies, it supplies both. If neither applies
// (unreachable given a validated Config), an error is returned.
func (c *Config) GetConditions(channel int, barcode *string) (isControl bool, cond Condition, err error) {
	region, hasRegion := c.GetRegion(channel)
	bc, hasBarcode := c.GetBarcode(barcode)

	switch {
	case hasRegion && hasBarcode:
		return region.Control || bc.Control, bc, nil
	case hasRegion:
		return region.Control, region, nil
	case hasBarcode:
		return bc.Control, bc, nil
	default:
		return false, Condition{}, errors.Errorf("config: no region for channel %d and no barcode table for %v; this config is invalid", channel, barcode)
	}
}

// GetTargets returns the Targets of whichever Condition GetConditions
// would select for (channel, barcode).
func (c *Config) GetTargets(channel int, barcode *string) (*targets.Index, error) {
	_, cond, err := c.GetConditions(channel, barcode)
	if err != nil {
		return nil, err
	}
	return cond.Targets, nil
}

// buildData validates a decoded tomlFile and computes its derived
// channelMap, returning an immutable data payload.
func buildData(raw tomlFile, channels int, openBED func(string) (*targets.Index, error)) (*data, error) {
	if len(raw.Regions) == 0 {
		_, hasClassified := raw.Barcodes[classifiedBarcode]
		_, hasUnclassified := raw.Barcodes[unclassifiedBarcode]
		if !hasClassified || !hasUnclassified {
			return nil, errors.Errorf(
				"config: either at least one region, or both 'classified' and 'unclassified' barcode tables, must be present")
		}
	}

	regions := make([]Region, len(raw.Regions))
	for i, r := range raw.Regions {
		cond, err := buildCondition(r, openBED)
		if err != nil {
			return nil, err
		}
		regions[i] = cond
	}

	barcodes := make(map[string]Barcode, len(raw.Barcodes))
	for label, b := range raw.Barcodes {
		cond, err := buildCondition(b, openBED)
		if err != nil {
			return nil, errors.Wrapf(err, "config: barcode %q", label)
		}
		barcodes[label] = cond
	}

	channelMap := map[int]int{}
	if len(regions) > 0 {
		blocks, err := flowcell.GenerateFlowcell(channels, len(regions))
		if err != nil {
			return nil, errors.Wrap(err, "config: couldn't derive channel map")
		}
		for regionIdx, block := range blocks {
			for _, ch := range block {
				channelMap[ch] = regionIdx
			}
		}
	}

	callerSettings, err := buildPluginSettings(raw.CallerSettings)
	if err != nil {
		return nil, errors.Wrap(err, "config: caller_settings")
	}
	mapperSettings, err := buildPluginSettings(raw.MapperSettings)
	if err != nil {
		return nil, errors.Wrap(err, "config: mapper_settings")
	}

	return &data{
		channels:       channels,
		callerSettings: callerSettings,
		mapperSettings: mapperSettings,
		regions:        regions,
		barcodes:       barcodes,
		channelMap:     channelMap,
	}, nil
}

func buildPluginSettings(raw map[string]map[string]interface{}) (PluginSettings, error) {
	if len(raw) == 0 {
		return PluginSettings{}, nil
	}
	if len(raw) != 1 {
		return PluginSettings{}, errors.Errorf("exactly one plugin table expected, found %d", len(raw))
	}
	for name, params := range raw {
		return PluginSettings{Name: name, Parameters: params}, nil
	}
	panic("unreachable")
}

// Validate parses and validates the TOML document at path against the
// invariants of spec.md §3/§4.3/§6, without keeping the result. Plugin
// names are not checked here; PluginSettings.Load resolves them.
func Validate(path string, channels int) error {
	_, err := FromFile(path, channels)
	return err
}

// FromFile loads a Config from a TOML document on disk, validating it
// against the invariants of spec.md §3/§4.3/§6.
func FromFile(path string, channels int) (*Config, error) {
	raw, err := decodeFile(path)
	if err != nil {
		return nil, err
	}
	d, err := buildData(raw, channels, defaultOpenBED)
	if err != nil {
		return nil, err
	}
	c := &Config{}
	c.cur.Store(d)
	return c, nil
}

// ReloadFromFile atomically replaces the Config's contents with a freshly
// parsed and validated document from path. On failure the previous
// contents are left untouched, and the failure is both logged and returned;
// the main loop logs the returned error and carries on with the previous
// contents -- hot-reload failures are not fatal (spec.md §7).
func (c *Config) ReloadFromFile(path string) error {
	raw, err := decodeFile(path)
	if err != nil {
		log.Error.Printf("config: reload of %s failed, keeping previous configuration: %v", path, err)
		return err
	}
	d, err := buildData(raw, c.cur.Load().channels, defaultOpenBED)
	if err != nil {
		log.Error.Printf("config: reload of %s failed, keeping previous configuration: %v", path, err)
		return err
	}
	c.cur.Store(d)
	return nil
}

// WriteFile serialises the Config's regions, barcodes, and plugin settings
// back to TOML at path (channel count and the derived channel map are
// excluded, since they are recomputed on load).
func (c *Config) WriteFile(path string) error {
	d := c.cur.Load()
	out := tomlFile{
		CallerSettings: map[string]map[string]interface{}{d.callerSettings.Name: d.callerSettings.Parameters},
		MapperSettings: map[string]map[string]interface{}{d.mapperSettings.Name: d.mapperSettings.Parameters},
	}
	for _, r := range d.regions {
		out.Regions = append(out.Regions, unbuildCondition(r))
	}
	if len(d.barcodes) > 0 {
		out.Barcodes = make(map[string]tomlCondition, len(d.barcodes))
		for label, b := range d.barcodes {
			out.Barcodes[label] = unbuildCondition(b)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "config: couldn't create %s", path)
	}
	defer f.Close()
	enc := toml.NewEncoder(f)
	return enc.Encode(out)
}

func unbuildCondition(c Condition) tomlCondition {
	minChunks, maxChunks := c.MinChunks, c.MaxChunks
	var targetsValue interface{}
	if !c.Targets.Empty() {
		targetsValue = c.Targets.String()
	}
	return tomlCondition{
		Name:           c.Name,
		Control:        c.Control,
		MinChunks:      &minChunks,
		MaxChunks:      &maxChunks,
		Targets:        targetsValue,
		SingleOn:       string(c.SingleOn),
		SingleOff:      string(c.SingleOff),
		MultiOn:        string(c.MultiOn),
		MultiOff:       string(c.MultiOff),
		NoMap:          string(c.NoMap),
		NoSeq:          string(c.NoSeq),
		BelowMinChunks: string(c.BelowMinChunks),
		AboveMaxChunks: string(c.AboveMaxChunks),
	}
}
