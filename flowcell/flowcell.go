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

// Package flowcell derives the physical channel layout of a nanopore flow
// cell and splits it into geometric blocks for region assignment.
package flowcell

import (
	"fmt"
	"sort"
)

// grid describes a flow cell's channel-to-(column,row) layout.
type grid struct {
	cols, rows int
}

// knownGrids maps the channel count of a supported flow cell to its
// physical (columns, rows) layout: 126 for Flongle, 512 for MinION, 3000
// for PromethION.
var knownGrids = map[int]grid{
	126:  {cols: 13, rows: 10},
	512:  {cols: 32, rows: 16},
	3000: {cols: 120, rows: 25},
}

// layout returns the (column, row) coordinate of a 1-based channel number on
// a flow cell with the given total channel count. Channels fill the grid row
// by row, left to right, starting at (0, 0); the 3000-channel grid is instead
// twelve side-by-side blocks of 250 channels, each 10 columns wide and
// filled row by row.
func layout(channel, channelCount int) (col, row int, err error) {
	if channel <= 0 || channel > channelCount {
		return 0, 0, fmt.Errorf("flowcell: channel %d out of range [1, %d]", channel, channelCount)
	}
	g, ok := knownGrids[channelCount]
	if !ok {
		return 0, 0, fmt.Errorf("flowcell: channel count %d is not a recognised flow cell size", channelCount)
	}
	if channelCount == 3000 {
		block := (channel - 1) / 250
		remainder := (channel - 1) % 250
		row = remainder / 10
		col = remainder%10 + block*10
		return col, row, nil
	}
	idx := channel - 1
	row = idx / g.cols
	col = idx % g.cols
	return col, row, nil
}

// divisors returns the positive divisors of n, in increasing order.
func divisors(n int) []int {
	var out []int
	for i := 1; i <= n; i++ {
		if n%i == 0 {
			out = append(out, i)
		}
	}
	sort.Ints(out)
	return out
}

// GenerateFlowcell splits a flow cell of channelCount channels into split
// geometric blocks of channels, laid out along the rows axis (top-to-bottom),
// matching the physical grid of the device. Each returned slice lists the
// channels belonging to that block, in ascending order. Blocks of the 512-
// and 3000-channel grids all have the same length; the 126-channel grid has
// 130 positions, so its last row is four channels short and its final block
// is smaller than the others.
//
// split must evenly divide the number of rows in the flow cell's physical
// grid; otherwise an error naming the valid divisors is returned.
func GenerateFlowcell(channelCount, split int) ([][]int, error) {
	if split <= 0 {
		return nil, fmt.Errorf("flowcell: split must be a positive integer, got %d", split)
	}
	g, ok := knownGrids[channelCount]
	if !ok {
		return nil, fmt.Errorf("flowcell: channel count %d is not a recognised flow cell size (want one of 126, 512, 3000)", channelCount)
	}
	if g.rows%split != 0 {
		return nil, fmt.Errorf("flowcell: cannot split a %d-row flow cell into %d even blocks; valid splits are %v",
			g.rows, split, divisors(g.rows))
	}
	rowsPerBlock := g.rows / split
	blocks := make([][]int, split)
	for ch := 1; ch <= channelCount; ch++ {
		_, row, err := layout(ch, channelCount)
		if err != nil {
			return nil, err
		}
		block := row / rowsPerBlock
		blocks[block] = append(blocks[block], ch)
	}
	for _, b := range blocks {
		sort.Ints(b)
	}
	return blocks, nil
}
