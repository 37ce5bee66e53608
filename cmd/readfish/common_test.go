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
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/BurntSushi/toml"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grailbio/readfish/config"
)

const twoRegionChannelsConfig = `
[[regions]]
name = "control"
single_on = "stop_receiving"
single_off = "unblock"
multi_on = "stop_receiving"
multi_off = "unblock"
no_map = "unblock"
no_seq = "proceed"

[[regions]]
name = "experiment"
single_on = "stop_receiving"
single_off = "unblock"
multi_on = "stop_receiving"
multi_off = "unblock"
no_map = "unblock"
no_seq = "proceed"
`

func TestWriteChannelsFileRecordsEveryChannelOnce(t *testing.T) {
	tomlPath := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(tomlPath, []byte(twoRegionChannelsConfig), 0o644))
	cfg, err := config.FromFile(tomlPath, 512)
	require.NoError(t, err)

	outPath := filepath.Join(t.TempDir(), "channels.toml")
	require.NoError(t, writeChannelsFile(cfg, outPath))

	var out channelsFile
	_, err = toml.DecodeFile(outPath, &out)
	require.NoError(t, err)

	require.Len(t, out.Conditions, 2)
	assert.Equal(t, "control", out.Conditions["0"].Name)
	assert.Equal(t, "experiment", out.Conditions["1"].Name)

	seen := make(map[int]bool, 512)
	for _, cond := range out.Conditions {
		for _, channel := range cond.Channels {
			assert.False(t, seen[channel], "channel %d recorded twice", channel)
			seen[channel] = true
		}
	}
	assert.Len(t, seen, 512, "every channel should be recorded exactly once")

	channelMap := cfg.ChannelMap()
	for channel, idx := range channelMap {
		name := "control"
		if idx == 1 {
			name = "experiment"
		}
		key := strconv.Itoa(idx)
		assert.Contains(t, out.Conditions[key].Channels, channel)
		assert.Equal(t, name, out.Conditions[key].Name)
	}
}
