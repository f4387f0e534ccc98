// Copyright (c) 2026 statsagg authors.
// SPDX-License-Identifier: Apache-2.0

package statsagg

import (
	"errors"
	"math"
	"testing"
)

func numAgg(count int64, sum, min, max, mean, sumSqDiff float64) map[string]interface{} {
	return map[string]interface{}{
		"type":        string(AggIntAgg),
		"count":       count,
		"sum":         sum,
		"min":         min,
		"max":         max,
		"mean":        mean,
		"sum_sq_diff": sumSqDiff,
	}
}

// E3: merging two already-computed numeric summaries.
func TestMerge_E3_NumericRollup(t *testing.T) {
	state := NewStatsState()
	a := map[string]interface{}{"num": numAgg(2, 200, 50, 150, 100, 5000)}
	b := map[string]interface{}{"num": numAgg(1, 2500, 2500, 2500, 2500, 0)}

	if err := MergeFromJSON(state, a, true); err != nil {
		t.Fatalf("merge a: %v", err)
	}
	if err := MergeFromJSON(state, b, true); err != nil {
		t.Fatalf("merge b: %v", err)
	}

	num := state.Fields["num"].Num
	if num.Count != 3 {
		t.Errorf("count: got %d, want 3", num.Count)
	}
	if num.Sum != 2700 {
		t.Errorf("sum: got %v, want 2700", num.Sum)
	}
	if num.Min != 50 {
		t.Errorf("min: got %v, want 50", num.Min)
	}
	if num.Max != 2500 {
		t.Errorf("max: got %v, want 2500", num.Max)
	}
	if math.Abs(num.Mean-866.67) > 0.01 {
		t.Errorf("mean: got %v, want ~866.67", num.Mean)
	}
	if math.Abs(num.SumSqDiff-3_845_000) > 1 {
		t.Errorf("sum_sq_diff: got %v, want ~3845000", num.SumSqDiff)
	}
}

// E5: merging differently-tagged entries for the same key is a TypeMismatch.
func TestMerge_E5_TypeMismatch(t *testing.T) {
	state := NewStatsState()
	a := map[string]interface{}{"x": numAgg(1, 1, 1, 1, 1, 0)}
	b := map[string]interface{}{"x": map[string]interface{}{
		"type":   string(AggStrAgg),
		"counts": map[string]interface{}{"v": int64(1)},
	}}

	if err := MergeFromJSON(state, a, true); err != nil {
		t.Fatalf("merge a: %v", err)
	}
	err := MergeFromJSON(state, b, true)
	if !errors.Is(err, ErrTypeMismatch) {
		t.Errorf("expected ErrTypeMismatch, got %v", err)
	}
}

// Property 4: merging any state with an empty state yields itself.
func TestCombine_Property4_MergeIdentity(t *testing.T) {
	state := NewStatsState()
	rows := []map[string]interface{}{
		{"num": statInt(10)},
		{"num": statInt(20)},
		{"cat": statStr("x")},
	}
	if err := AccumulateBatch(state, rows, true); err != nil {
		t.Fatalf("accumulate: %v", err)
	}

	before := Finalize(state)

	state2 := NewStatsState()
	if err := AccumulateBatch(state2, rows, true); err != nil {
		t.Fatalf("accumulate (2): %v", err)
	}
	empty := NewStatsState()
	if err := Combine(state2, empty); err != nil {
		t.Fatalf("combine with empty: %v", err)
	}
	after := Finalize(state2)

	assertSameJSON(t, before, after)
}

// Property 1: sequential accumulation equals a binary-tree merge of
// sub-aggregates of the same stream, for mean and sum_sq_diff.
func TestCombine_Property1_WelfordEquivalence(t *testing.T) {
	values := []float64{4, 8, 15, 16, 23, 42, 7, 9, 1, 3, 11, 6}

	sequential := NewStatsState()
	for _, v := range values {
		if err := Accumulate(sequential, map[string]interface{}{"v": map[string]interface{}{"type": "float", "value": v}}, true); err != nil {
			t.Fatalf("sequential accumulate: %v", err)
		}
	}

	// Binary-tree merge: split into leaves of 1, then pairwise combine up.
	leaves := make([]*StatsState, len(values))
	for i, v := range values {
		s := NewStatsState()
		if err := Accumulate(s, map[string]interface{}{"v": map[string]interface{}{"type": "float", "value": v}}, true); err != nil {
			t.Fatalf("leaf accumulate: %v", err)
		}
		leaves[i] = s
	}
	for len(leaves) > 1 {
		var next []*StatsState
		for i := 0; i+1 < len(leaves); i += 2 {
			if err := Combine(leaves[i], leaves[i+1]); err != nil {
				t.Fatalf("combine: %v", err)
			}
			next = append(next, leaves[i])
		}
		if len(leaves)%2 == 1 {
			next = append(next, leaves[len(leaves)-1])
		}
		leaves = next
	}
	merged := leaves[0]

	seqNum := sequential.Fields["v"].Num
	mergedNum := merged.Fields["v"].Num

	if seqNum.Count != mergedNum.Count {
		t.Fatalf("count: sequential=%d merged=%d", seqNum.Count, mergedNum.Count)
	}
	if math.Abs(seqNum.Mean-mergedNum.Mean) > 1e-9 {
		t.Errorf("mean: sequential=%v merged=%v", seqNum.Mean, mergedNum.Mean)
	}
	if math.Abs(seqNum.SumSqDiff-mergedNum.SumSqDiff) > 1e-6 {
		t.Errorf("sum_sq_diff: sequential=%v merged=%v", seqNum.SumSqDiff, mergedNum.SumSqDiff)
	}
}

func assertSameJSON(t *testing.T, a, b map[string]interface{}) {
	t.Helper()
	if len(a) != len(b) {
		t.Fatalf("different key counts: %d vs %d", len(a), len(b))
	}
	for k, av := range a {
		bv, ok := b[k]
		if !ok {
			t.Fatalf("key %q missing from second map", k)
		}
		aChild, aIsMap := av.(map[string]interface{})
		bChild, bIsMap := bv.(map[string]interface{})
		if aIsMap != bIsMap {
			t.Fatalf("key %q: shape mismatch", k)
		}
		if aIsMap {
			assertSameJSON(t, aChild, bChild)
			continue
		}
		if av != bv {
			t.Errorf("key %q: got %v, want %v", k, bv, av)
		}
	}
}
