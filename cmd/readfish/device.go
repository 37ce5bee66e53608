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

import "fmt"

// channelCountForDevice maps the --device flag's flow cell family name to
// its channel count, the shape flowcell.GenerateFlowcell needs. --prom on
// the original tool's validate/stats commands plays the same role; here a
// single --device flag covers all three families.
func channelCountForDevice(device string) (int, error) {
	switch device {
	case "flongle":
		return 126, nil
	case "minion", "gridion":
		return 512, nil
	case "promethion":
		return 3000, nil
	default:
		return 0, fmt.Errorf("readfish: unknown --device %q, want one of: flongle, minion, gridion, promethion", device)
	}
}
