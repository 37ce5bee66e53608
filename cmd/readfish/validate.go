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
	"fmt"
	"os"

	"github.com/grailbio/base/cmdutil"
	"github.com/grailbio/base/log"
	"v.io/x/lib/cmdline"

	"github.com/grailbio/readfish/config"
	"github.com/grailbio/readfish/plugin"
)

func newCmdValidate() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:     "validate",
		Short:    "Validate an experiment configuration TOML file",
		ArgsName: "toml",
	}
	device := cmd.Flags.String("device", "minion", "Flow cell device family: flongle, minion, gridion, or promethion")
	checkPlugins := cmd.Flags.Bool("check-plugins", false, "If the config loads, attempt to initialise its caller and mapper plugins too")
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		if len(argv) != 1 {
			return fmt.Errorf("validate takes one TOML path argument, got %v", argv)
		}
		n := validate(argv[0], *device, *checkPlugins)
		if n > 0 {
			os.Exit(n)
		}
		return nil
	})
	return cmd
}

// validate loads and validates the configuration at path, optionally
// initialising its plugins too, and returns the number of errors
// encountered -- the exit code spec.md §6 assigns to this subcommand.
func validate(path, device string, checkPlugins bool) int {
	channels, err := channelCountForDevice(device)
	if err != nil {
		log.Error.Printf("validate: %v", err)
		return 1
	}

	cfg, err := config.FromFile(path, channels)
	if err != nil {
		log.Error.Printf("validate: could not load TOML config (%s): %v", path, err)
		return 1
	}
	log.Printf("validate: loaded TOML config without error")

	if !checkPlugins {
		return 0
	}

	errs := 0
	log.Printf("validate: initialising caller")
	callerObj, err := cfg.CallerSettings().Load(defaultCallerRegistry())
	if err != nil {
		log.Error.Printf("validate: caller could not be initialised: %v", err)
		errs++
	} else if _, ok := callerObj.(plugin.Caller); !ok {
		log.Error.Printf("validate: plugin %q does not implement plugin.Caller", cfg.CallerSettings().Name)
		errs++
	} else {
		log.Printf("validate: caller initialised")
	}

	log.Printf("validate: initialising aligner")
	mapperObj, err := cfg.MapperSettings().Load(defaultMapperRegistry())
	if err != nil {
		log.Error.Printf("validate: aligner could not be initialised: %v", err)
		errs++
	} else if _, ok := mapperObj.(plugin.Aligner); !ok {
		log.Error.Printf("validate: plugin %q does not implement plugin.Aligner", cfg.MapperSettings().Name)
		errs++
	} else {
		log.Printf("validate: aligner initialised")
	}

	return errs
}
