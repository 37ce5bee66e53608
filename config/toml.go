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
	"fmt"
	"io"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"

	"github.com/grailbio/readfish/plugin"
	"github.com/grailbio/readfish/targets"
)

// PluginSettings names a caller or mapper plugin and carries the
// arbitrary key/value parameter table the TOML file supplied for it.
type PluginSettings struct {
	Name       string
	Parameters map[string]interface{}
}

// tomlFile is the raw shape of the declarative configuration document of
// spec.md §6: caller_settings.<plugin>, mapper_settings.<plugin>,
// [[regions]], and [barcodes.<label>].
type tomlFile struct {
	CallerSettings map[string]map[string]interface{} `toml:"caller_settings"`
	MapperSettings map[string]map[string]interface{} `toml:"mapper_settings"`
	Regions        []tomlCondition                   `toml:"regions"`
	Barcodes       map[string]tomlCondition           `toml:"barcodes"`
}

// tomlCondition is the raw TOML shape shared by a [[regions]] entry and a
// [barcodes.<label>] table.
type tomlCondition struct {
	Name      string      `toml:"name"`
	Control   bool        `toml:"control"`
	MinChunks *int        `toml:"min_chunks"`
	MaxChunks *int        `toml:"max_chunks"`
	Targets   interface{} `toml:"targets"`

	SingleOn  string `toml:"single_on"`
	SingleOff string `toml:"single_off"`
	MultiOn   string `toml:"multi_on"`
	MultiOff  string `toml:"multi_off"`
	NoMap     string `toml:"no_map"`
	NoSeq     string `toml:"no_seq"`

	BelowMinChunks string `toml:"below_min_chunks"`
	AboveMaxChunks string `toml:"above_max_chunks"`
}

func parseAction(s string, field string, name string) (plugin.Action, error) {
	switch plugin.Action(s) {
	case plugin.Unblock, plugin.StopReceiving, plugin.Proceed:
		return plugin.Action(s), nil
	default:
		return "", errors.Errorf("config: condition %q has an invalid %s action %q", name, field, s)
	}
}

// buildCondition converts a raw TOML condition table into a validated
// Condition, applying the default action selectors of spec.md §4.2
// (below_min_chunks=proceed, above_max_chunks=unblock) when unspecified,
// and opening target files relative to the working directory.
func buildCondition(raw tomlCondition, openBED func(string) (*targets.Index, error)) (Condition, error) {
	c := Condition{Name: raw.Name, Control: raw.Control}

	minChunks := 1
	if raw.MinChunks != nil {
		minChunks = *raw.MinChunks
	}
	maxChunks := 2
	if raw.MaxChunks != nil {
		maxChunks = *raw.MaxChunks
	}
	if minChunks < 1 {
		return Condition{}, errors.Errorf("config: condition %q has min_chunks %d, must be >= 1", raw.Name, minChunks)
	}
	if maxChunks < minChunks {
		return Condition{}, errors.Errorf("config: condition %q has max_chunks %d < min_chunks %d", raw.Name, maxChunks, minChunks)
	}
	c.MinChunks, c.MaxChunks = minChunks, maxChunks

	fields := []struct {
		field string
		dst   *plugin.Action
		raw   string
	}{
		{"single_on", &c.SingleOn, raw.SingleOn},
		{"single_off", &c.SingleOff, raw.SingleOff},
		{"multi_on", &c.MultiOn, raw.MultiOn},
		{"multi_off", &c.MultiOff, raw.MultiOff},
		{"no_map", &c.NoMap, raw.NoMap},
		{"no_seq", &c.NoSeq, raw.NoSeq},
	}
	for _, f := range fields {
		if f.raw == "" {
			return Condition{}, errors.Errorf("config: condition %q is missing required action selector %q", raw.Name, f.field)
		}
		action, err := parseAction(f.raw, f.field, raw.Name)
		if err != nil {
			return Condition{}, err
		}
		*f.dst = action
	}

	c.BelowMinChunks = plugin.Proceed
	if raw.BelowMinChunks != "" {
		action, err := parseAction(raw.BelowMinChunks, "below_min_chunks", raw.Name)
		if err != nil {
			return Condition{}, err
		}
		c.BelowMinChunks = action
	}
	c.AboveMaxChunks = plugin.Unblock
	if raw.AboveMaxChunks != "" {
		action, err := parseAction(raw.AboveMaxChunks, "above_max_chunks", raw.Name)
		if err != nil {
			return Condition{}, err
		}
		c.AboveMaxChunks = action
	}

	idx, err := buildTargets(raw.Targets, openBED)
	if err != nil {
		return Condition{}, errors.Wrapf(err, "config: condition %q", raw.Name)
	}
	c.Targets = idx
	return c, nil
}

func buildTargets(raw interface{}, openBED func(string) (*targets.Index, error)) (*targets.Index, error) {
	switch t := raw.(type) {
	case nil:
		return &targets.Index{}, nil
	case []interface{}:
		specs := make([]string, 0, len(t))
		for _, v := range t {
			s, ok := v.(string)
			if !ok {
				return nil, fmt.Errorf("targets list must contain only strings, found %T", v)
			}
			specs = append(specs, s)
		}
		return targets.New(specs)
	case string:
		if openBED == nil {
			return nil, fmt.Errorf("targets value %q is a path but no file opener was supplied", t)
		}
		return openBED(t)
	default:
		return nil, fmt.Errorf("targets value must be a list of strings or a file path, got %T", raw)
	}
}

// defaultOpenBED opens path as a (optionally gzipped) BED file from the
// local filesystem.
func defaultOpenBED(path string) (*targets.Index, error) {
	return targets.NewFromBEDPath(path, func(p string) (io.ReadCloser, error) {
		return os.Open(p)
	})
}

func decodeFile(path string) (tomlFile, error) {
	var f tomlFile
	if _, err := toml.DecodeFile(path, &f); err != nil {
		return tomlFile{}, errors.Wrapf(err, "config: couldn't parse %s", path)
	}
	return f, nil
}

// Load resolves the named plugin in reg and constructs it with this
// PluginSettings' parameter table, the statically-typed equivalent of the
// dynamic plugin loading the original tool performed via importlib.
func (p PluginSettings) Load(reg plugin.Registry) (interface{}, error) {
	factory, ok := reg[p.Name]
	if !ok {
		return nil, errors.Errorf("config: unknown plugin %q", p.Name)
	}
	obj, err := factory(p.Parameters)
	if err != nil {
		return nil, errors.Wrapf(err, "config: couldn't initialise plugin %q", p.Name)
	}
	return obj, nil
}
