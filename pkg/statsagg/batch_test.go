// Copyright (c) 2026 statsagg authors.
// SPDX-License-Identifier: Apache-2.0

package statsagg

import (
	"strings"
	"testing"
)

func TestAccumulateBatch_StopsAtFirstBadRow(t *testing.T) {
	state := NewStatsState()
	rows := []map[string]interface{}{
		{"x": statInt(1)},
		{"x": statNat(-5)},
		{"x": statInt(3)},
	}
	err := AccumulateBatch(state, rows, true)
	if err == nil {
		t.Fatal("expected error from bad row")
	}
	if !strings.Contains(err.Error(), "row 1") {
		t.Errorf("expected error to name row 1, got %q", err.Error())
	}
	if state.Fields["x"].Num.Count != 1 {
		t.Errorf("expected only the first row to have been folded in, count=%d", state.Fields["x"].Num.Count)
	}
}

func TestMergeBatch_FoldsAllAggs(t *testing.T) {
	state := NewStatsState()
	aggs := []map[string]interface{}{
		{"num": numAgg(1, 10, 10, 10, 10, 0)},
		{"num": numAgg(1, 20, 20, 20, 20, 0)},
	}
	if err := MergeBatch(state, aggs, true); err != nil {
		t.Fatalf("merge batch: %v", err)
	}
	if state.Fields["num"].Num.Count != 2 {
		t.Errorf("count: got %d, want 2", state.Fields["num"].Num.Count)
	}
	if state.Fields["num"].Num.Sum != 30 {
		t.Errorf("sum: got %v, want 30", state.Fields["num"].Num.Sum)
	}
}
