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

package stats

import (
	"io"
	"strconv"
	"sync"
	"time"

	"github.com/grailbio/base/tsv"

	"github.com/grailbio/readfish/plugin"
)

// DebugRecord is one per-chunk row of the debug log, matching the
// client_iteration..timestamp columns of spec.md §6.
type DebugRecord struct {
	ClientIteration int
	ReadInLoop      int
	ReadID          string
	Channel         int
	ReadNumber      uint64
	SeqLen          int
	Counter         int
	Mode            plugin.Decision
	Decision        plugin.Action
	Condition       string
	Barcode         string
	PreviousAction  string
	ActionOverride  string
	Timestamp       time.Time
}

// DebugLogger writes one tab-separated row per chunk, grounded on
// pileup/snp/output.go's use of github.com/grailbio/base/tsv.Writer for
// structured tabular output, used here in place of the original's manual
// tab-joined logger output.
type DebugLogger struct {
	mu sync.Mutex
	w  *tsv.Writer
}

// NewDebugLogger wraps w with a header row naming the fourteen columns.
func NewDebugLogger(w io.Writer) (*DebugLogger, error) {
	tw := tsv.NewWriter(w)
	for _, col := range []string{
		"client_iteration", "read_in_loop", "read_id", "channel", "read_number",
		"seq_len", "counter", "mode", "decision", "condition", "barcode",
		"previous_action", "action_override", "timestamp",
	} {
		tw.WriteString(col)
	}
	if err := tw.EndLine(); err != nil {
		return nil, err
	}
	if err := tw.Flush(); err != nil {
		return nil, err
	}
	return &DebugLogger{w: tw}, nil
}

// Log writes one DebugRecord as a row and flushes it immediately, so a
// crash never loses a record that was already handed to the logger.
func (l *DebugLogger) Log(r DebugRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.w.WriteString(strconv.Itoa(r.ClientIteration))
	l.w.WriteString(strconv.Itoa(r.ReadInLoop))
	l.w.WriteString(r.ReadID)
	l.w.WriteString(strconv.Itoa(r.Channel))
	l.w.WriteString(strconv.FormatUint(r.ReadNumber, 10))
	l.w.WriteString(strconv.Itoa(r.SeqLen))
	l.w.WriteString(strconv.Itoa(r.Counter))
	l.w.WriteString(string(r.Mode))
	l.w.WriteString(string(r.Decision))
	l.w.WriteString(r.Condition)
	l.w.WriteString(r.Barcode)
	l.w.WriteString(r.PreviousAction)
	l.w.WriteString(r.ActionOverride)
	l.w.WriteString(r.Timestamp.Format(time.RFC3339Nano))
	if err := l.w.EndLine(); err != nil {
		return err
	}
	return l.w.Flush()
}
