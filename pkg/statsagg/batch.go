// Copyright (c) 2026 statsagg authors.
// SPDX-License-Identifier: Apache-2.0

package statsagg

import "strconv"

// AccumulateBatch folds a whole slice of stats objects into state in one
// call, the same way a caller driving many sfunc invocations by hand would,
// but without a per-row call boundary. It stops at the first row that fails
// to accumulate and reports which row index failed, since a batch load is
// usually driven from a file or a worker's inbox where the caller wants to
// know exactly where things went wrong rather than just that they did.
func AccumulateBatch(state *StatsState, rows []map[string]interface{}, strict bool) error {
	for i, row := range rows {
		if err := Accumulate(state, row, strict); err != nil {
			return batchRowError(i, err)
		}
	}
	return nil
}

// MergeBatch folds a slice of already-computed stats_agg summaries into
// state, mirroring AccumulateBatch for the roll-up path (spec §4.4).
func MergeBatch(state *StatsState, aggs []map[string]interface{}, strict bool) error {
	for i, agg := range aggs {
		if err := MergeFromJSON(state, agg, strict); err != nil {
			return batchRowError(i, err)
		}
	}
	return nil
}

func batchRowError(i int, err error) error {
	return &rowError{index: i, cause: err}
}

type rowError struct {
	index int
	cause error
}

func (e *rowError) Error() string {
	return "row " + strconv.Itoa(e.index) + ": " + e.cause.Error()
}

func (e *rowError) Unwrap() error { return e.cause }
