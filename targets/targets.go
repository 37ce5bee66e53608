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

// Package targets parses target region specifications -- either a list of
// strings or a 6-column BED file -- into a per-strand, per-contig index of
// merged coordinate intervals, and answers "is this coordinate on target?"
package targets

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/pkg/errors"

	"github.com/grailbio/readfish/plugin"
)

// Interval is a single closed coordinate interval [Start, End]: CheckCoord
// treats both ends as inside it.
type Interval struct {
	Start, End float64
}

type key struct {
	strand plugin.Strand
	contig string
}

// Index is an immutable, queryable set of target intervals, keyed by
// (strand, contig). After construction, intervals on the same (strand,
// contig) are sorted and merged so that no two overlap.
type Index struct {
	byKey map[key][]Interval
}

// Empty reports whether the index has no target intervals at all. An empty
// target specification conventionally means "no restriction" to callers
// that choose to treat it that way; Index itself makes no such judgement --
// CheckCoord on an empty Index simply always returns false.
func (idx *Index) Empty() bool {
	return idx == nil || len(idx.byKey) == 0
}

// Intervals returns the merged intervals stored for the given (strand,
// contig), or nil if there are none.
func (idx *Index) Intervals(strand plugin.Strand, contig string) []Interval {
	if idx == nil {
		return nil
	}
	return idx.byKey[key{strand, contig}]
}

// CheckCoord reports whether coord lies within any stored interval on the
// given (strand, contig). strand may be "+", "-", "1", "-1", or a
// plugin.Strand value.
func (idx *Index) CheckCoord(contig string, strand interface{}, coord int64) (bool, error) {
	s, err := plugin.ParseStrand(strand)
	if err != nil {
		return false, err
	}
	if idx == nil {
		return false, nil
	}
	for _, iv := range idx.byKey[key{s, contig}] {
		if iv.Start <= float64(coord) && float64(coord) <= iv.End {
			return true, nil
		}
	}
	return false, nil
}

// New builds an Index from the string grammar of §4.1: each element is
// either "CONTIG" (meaning the whole contig, both strands) or
// "CONTIG,START,END,STRAND".
func New(specs []string) (*Index, error) {
	raw := map[key][]Interval{}
	for lineNo, spec := range specs {
		parts := strings.Split(spec, ",")
		switch len(parts) {
		case 1:
			contig := parts[0]
			raw[key{plugin.Forward, contig}] = append(raw[key{plugin.Forward, contig}], Interval{0, math.Inf(1)})
			raw[key{plugin.Reverse, contig}] = append(raw[key{plugin.Reverse, contig}], Interval{0, math.Inf(1)})
		case 4:
			contig := parts[0]
			start, err := strconv.ParseFloat(parts[1], 64)
			if err != nil {
				return nil, errors.Wrapf(err, "targets: malformed start coordinate on entry %d (%q)", lineNo+1, spec)
			}
			end, err := strconv.ParseFloat(parts[2], 64)
			if err != nil {
				return nil, errors.Wrapf(err, "targets: malformed end coordinate on entry %d (%q)", lineNo+1, spec)
			}
			strand, err := plugin.ParseStrand(parts[3])
			if err != nil {
				return nil, errors.Wrapf(err, "targets: unrecognised strand on entry %d (%q)", lineNo+1, spec)
			}
			raw[key{strand, contig}] = append(raw[key{strand, contig}], Interval{start, end})
		default:
			return nil, errors.Errorf("targets: entry %d (%q) must be CONTIG or CONTIG,START,END,STRAND", lineNo+1, spec)
		}
	}
	return &Index{byKey: mergeAll(raw)}, nil
}

// NewFromBED builds an Index from a tab-separated 6-column BED stream
// (name, start, end, name2, score, strand). Any other column count is an
// error naming the offending line.
func NewFromBED(r io.Reader) (*Index, error) {
	raw := map[key][]Interval{}
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		cols := strings.Split(line, "\t")
		if len(cols) != 6 {
			return nil, errors.Errorf("targets: invalid bed record at line %d: want 6 columns, got %d", lineNo, len(cols))
		}
		contig := cols[0]
		start, err := strconv.ParseFloat(cols[1], 64)
		if err != nil {
			return nil, errors.Wrapf(err, "targets: malformed start coordinate at line %d", lineNo)
		}
		end, err := strconv.ParseFloat(cols[2], 64)
		if err != nil {
			return nil, errors.Wrapf(err, "targets: malformed end coordinate at line %d", lineNo)
		}
		strand, err := plugin.ParseStrand(cols[5])
		if err != nil {
			return nil, errors.Wrapf(err, "targets: unrecognised strand at line %d", lineNo)
		}
		raw[key{strand, contig}] = append(raw[key{strand, contig}], Interval{start, end})
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "targets: couldn't read bed data")
	}
	return &Index{byKey: mergeAll(raw)}, nil
}

// NewFromBEDPath is a convenience wrapper around NewFromBED that opens path,
// transparently decompressing it if it has a .gz suffix.
func NewFromBEDPath(path string, open func(string) (io.ReadCloser, error)) (*Index, error) {
	f, err := open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "targets: couldn't open %s", path)
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(strings.ToLower(path), ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, errors.Wrapf(err, "targets: couldn't decompress %s", path)
		}
		defer gz.Close()
		r = gz
	}
	return NewFromBED(r)
}

func mergeAll(raw map[key][]Interval) map[key][]Interval {
	out := make(map[key][]Interval, len(raw))
	for k, intervals := range raw {
		out[k] = mergeIntervals(intervals)
	}
	return out
}

// mergeIntervals sorts intervals and merges any that overlap or touch.
func mergeIntervals(intervals []Interval) []Interval {
	if len(intervals) < 2 {
		return intervals
	}
	sorted := make([]Interval, len(intervals))
	copy(sorted, intervals)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Start != sorted[j].Start {
			return sorted[i].Start < sorted[j].Start
		}
		return sorted[i].End < sorted[j].End
	})
	merged := []Interval{sorted[0]}
	for _, next := range sorted[1:] {
		last := &merged[len(merged)-1]
		if next.Start <= last.End {
			if next.End > last.End {
				last.End = next.End
			}
			continue
		}
		merged = append(merged, next)
	}
	return merged
}

// String renders the index back into the comma-separated string grammar of
// New, sorted for determinism. It is used by config serialisation to
// round-trip a Config through TOML.
func (idx *Index) String() string {
	if idx.Empty() {
		return ""
	}
	var lines []string
	for k, intervals := range idx.byKey {
		for _, iv := range intervals {
			lines = append(lines, fmt.Sprintf("%s,%s,%s,%s",
				k.contig, formatCoord(iv.Start), formatCoord(iv.End), k.strand.String()))
		}
	}
	sort.Strings(lines)
	return strings.Join(lines, "\n")
}

func formatCoord(f float64) string {
	if math.IsInf(f, 1) {
		return "inf"
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}
