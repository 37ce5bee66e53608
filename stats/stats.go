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

// Package stats collects the thread-safe counters and rolling batch
// performance figures that back the status line printed between
// iterations of the main loop.
package stats

import (
	"fmt"
	"sync"

	"github.com/grailbio/readfish/plugin"
)

// conditionDecisionAction groups one hit against a (condition, decision,
// action) triple, the finest granularity the core tracks.
type conditionDecisionAction struct {
	condition string
	decision  plugin.Decision
	action    plugin.Action
}

// batchStatistics is the rolling view over recent batch timings, mirroring
// the Counter-keyed fields of the original ReadfishStatistics.batch_statistics.
type batchStatistics struct {
	batchCount                int64
	cumulativeBatchSize       int64
	cumulativeBatchTime       float64
	batchSize                 int64
	batchTime                 float64
	cumulativeLaggingBatches  int64
	consecutiveLaggingBatches int64
}

// Counters is a mutex-guarded collection of run statistics, grounded on
// markduplicates/metrics.go's mutex-guarded counters struct. All methods
// are safe for concurrent use, though in practice only the main loop's
// single decision goroutine writes to it.
type Counters struct {
	mu sync.Mutex

	throttle float64

	totalChunks int64

	actions          map[plugin.Action]int64
	decisions        map[plugin.Decision]int64
	conditions       map[string]int64
	actionConditions map[conditionDecisionAction]int64

	firstReadSkipped int64
	readAnalysed     int64

	duplicateActions int64

	batch batchStatistics
}

// NewCounters returns an empty Counters. throttle is the configured
// per-iteration budget, used to classify a batch as "slow" when reporting
// batch performance.
func NewCounters(throttle float64) *Counters {
	return &Counters{
		throttle:         throttle,
		actions:          map[plugin.Action]int64{},
		decisions:        map[plugin.Decision]int64{},
		conditions:       map[string]int64{},
		actionConditions: map[conditionDecisionAction]int64{},
	}
}

// RecordRead records one fully-decided Result: the action that was
// actually dispatched, the decision the aligner (or chunk-bound override)
// assigned, the name of the condition that produced it, and whether it is
// "first read skipped" (spec.md §9): no earlier Result had been decided on
// that channel, and a chunk-bound override fired and left a non-proceed
// action.
func (c *Counters) RecordRead(condition string, decision plugin.Decision, action plugin.Action, firstReadSkipped bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.totalChunks++
	c.actions[action]++
	c.decisions[decision]++
	c.conditions[condition]++
	c.actionConditions[conditionDecisionAction{condition, decision, action}]++
	if firstReadSkipped {
		c.firstReadSkipped++
	} else {
		c.readAnalysed++
	}
}

// RecordDuplicateAction records that a (channel, read number) pair appeared
// more than once within a single dispatch batch. Duplicates are tolerated,
// not deduplicated, but counted per spec.md §4.8.
func (c *Counters) RecordDuplicateAction() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.duplicateActions++
}

// DuplicateActions returns the cumulative count of duplicate batch entries.
func (c *Counters) DuplicateActions() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.duplicateActions
}

// TotalChunks returns the cumulative count of Results recorded.
func (c *Counters) TotalChunks() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.totalChunks
}

// FirstReadSkipped returns the cumulative count of Results that were the
// first decided on their channel and whose action a chunk-bound override
// replaced with a non-proceed action.
func (c *Counters) FirstReadSkipped() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.firstReadSkipped
}

// AddBatchPerformance folds one iteration's batch size and wall time into
// the rolling averages, and updates the slow-batch counters.
func (c *Counters) AddBatchPerformance(numberOfReads int, batchTime float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b := &c.batch
	b.cumulativeBatchSize += int64(numberOfReads)
	b.cumulativeBatchTime += batchTime
	b.batchCount++
	b.batchSize = int64(numberOfReads)
	b.batchTime = batchTime
	if batchTime > c.throttle {
		b.cumulativeLaggingBatches++
		b.consecutiveLaggingBatches++
	} else {
		b.consecutiveLaggingBatches = 0
	}
}

// AverageChunksPerSecond returns cumulative chunks / cumulative time, or 0
// if no batches have been recorded yet.
func (c *Counters) AverageChunksPerSecond() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.batch.batchCount == 0 || c.batch.cumulativeBatchTime == 0 {
		return 0
	}
	return float64(c.batch.cumulativeBatchSize) / c.batch.cumulativeBatchTime
}

// AverageBatchTime returns cumulative time / batch count, or 0 if no
// batches have been recorded yet.
func (c *Counters) AverageBatchTime() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.batch.batchCount == 0 {
		return 0
	}
	return c.batch.cumulativeBatchTime / float64(c.batch.batchCount)
}

// AverageBatchSize returns cumulative size / batch count, or 0 if no
// batches have been recorded yet.
func (c *Counters) AverageBatchSize() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.batch.batchCount == 0 {
		return 0
	}
	return float64(c.batch.cumulativeBatchSize) / float64(c.batch.batchCount)
}

// GetBatchPerformance renders the one-line status summary of spec.md
// §4.10, e.g.
//
//	0010R/0.30s; Avg: 0008R/0.28s; Seq:42; Unb:123; Pro:17; Slow batches (>0.40s): 2/150
func (c *Counters) GetBatchPerformance() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.batch.batchCount == 0 {
		return "No performance data yet"
	}
	avgSize := float64(c.batch.cumulativeBatchSize) / float64(c.batch.batchCount)
	avgTime := c.batch.cumulativeBatchTime / float64(c.batch.batchCount)
	return fmt.Sprintf(
		"%04dR/%.2fs; Avg: %04dR/%.2fs; Seq:%d; Unb:%d; Pro:%d; Slow batches (>%.2fs): %d/%d",
		c.batch.batchSize, c.batch.batchTime,
		int64(avgSize), avgTime,
		c.actions[plugin.StopReceiving], c.actions[plugin.Unblock], c.actions[plugin.Proceed],
		c.throttle, c.batch.cumulativeLaggingBatches, c.batch.batchCount,
	)
}
