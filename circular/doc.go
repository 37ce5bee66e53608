// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package circular provides small sizing helpers for ring-buffer-backed
// queues, such as the power-of-two rounding used to size a bounded
// producer/consumer queue.
package circular
