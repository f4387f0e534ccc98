// Copyright (c) 2026 statsagg authors.
// SPDX-License-Identifier: Apache-2.0

package statsagg

import (
	"errors"
	"testing"
)

func statInt(v int64) map[string]interface{} {
	return map[string]interface{}{"type": "int", "value": v}
}

func statStr(v string) map[string]interface{} {
	return map[string]interface{}{"type": "str", "value": v}
}

func statDate(v string) map[string]interface{} {
	return map[string]interface{}{"type": "date", "value": v}
}

func statNat(v int64) map[string]interface{} {
	return map[string]interface{}{"type": "nat", "value": v}
}

// E1: two int values folded, then finalized.
func TestAccumulate_E1_NumericFinalize(t *testing.T) {
	state := NewStatsState()
	if err := Accumulate(state, map[string]interface{}{"num": statInt(150)}, true); err != nil {
		t.Fatalf("accumulate 150: %v", err)
	}
	if err := Accumulate(state, map[string]interface{}{"num": statInt(50)}, true); err != nil {
		t.Fatalf("accumulate 50: %v", err)
	}

	out := Finalize(state)
	num, ok := out["num"].(map[string]interface{})
	if !ok {
		t.Fatalf("num: not an object: %v", out["num"])
	}

	if num["type"] != string(AggIntAgg) {
		t.Errorf("type: got %v, want int_agg", num["type"])
	}
	if num["count"] != int64(2) {
		t.Errorf("count: got %v, want 2", num["count"])
	}
	if num["sum"] != float64(200) {
		t.Errorf("sum: got %v, want 200", num["sum"])
	}
	if num["min"] != float64(50) {
		t.Errorf("min: got %v, want 50", num["min"])
	}
	if num["max"] != float64(150) {
		t.Errorf("max: got %v, want 150", num["max"])
	}
	assertRounded(t, "mean", num["mean"], "100.00")
	assertRounded(t, "sum_sq_diff", num["sum_sq_diff"], "5000.00")
	assertRounded(t, "variance", num["variance"], "5000.00")
	assertRounded(t, "stddev", num["stddev"], "70.71")
	assertRounded(t, "coefficient_of_variation_pct", num["coefficient_of_variation_pct"], "70.71")
}

// E2: category counts across repeated and distinct values.
func TestAccumulate_E2_CategoryCounts(t *testing.T) {
	state := NewStatsState()
	rows := []map[string]interface{}{
		{"ind": statStr("tech")},
		{"ind": statStr("tech")},
		{"ind": statStr("finance")},
	}
	if err := AccumulateBatch(state, rows, true); err != nil {
		t.Fatalf("accumulate batch: %v", err)
	}

	out := Finalize(state)
	ind := out["ind"].(map[string]interface{})
	if ind["type"] != string(AggStrAgg) {
		t.Errorf("type: got %v, want str_agg", ind["type"])
	}
	counts := ind["counts"].(map[string]interface{})
	if counts["tech"] != int64(2) {
		t.Errorf("tech: got %v, want 2", counts["tech"])
	}
	if counts["finance"] != int64(1) {
		t.Errorf("finance: got %v, want 1", counts["finance"])
	}
}

// E4: date min/max and per-date counts.
func TestAccumulate_E4_DateMinMax(t *testing.T) {
	state := NewStatsState()
	if err := Accumulate(state, map[string]interface{}{"founded": statDate("2024-01-15")}, true); err != nil {
		t.Fatalf("accumulate 2024: %v", err)
	}
	if err := Accumulate(state, map[string]interface{}{"founded": statDate("2023-06-01")}, true); err != nil {
		t.Fatalf("accumulate 2023: %v", err)
	}

	out := Finalize(state)
	founded := out["founded"].(map[string]interface{})
	if founded["min"] != "2023-06-01" {
		t.Errorf("min: got %v, want 2023-06-01", founded["min"])
	}
	if founded["max"] != "2024-01-15" {
		t.Errorf("max: got %v, want 2024-01-15", founded["max"])
	}
	counts := founded["counts"].(map[string]interface{})
	if counts["2024-01-15"] != int64(1) || counts["2023-06-01"] != int64(1) {
		t.Errorf("counts: got %v", counts)
	}
}

// E6: negative nat value is InvalidValue.
func TestAccumulate_E6_NegativeNat(t *testing.T) {
	state := NewStatsState()
	err := Accumulate(state, map[string]interface{}{"headcount": statNat(-1)}, true)
	if err == nil {
		t.Fatal("expected error for negative nat value")
	}
	if !errors.Is(err, ErrInvalidValue) {
		t.Errorf("expected ErrInvalidValue, got %v", err)
	}
}

func TestAccumulate_UnknownStatType(t *testing.T) {
	state := NewStatsState()
	err := Accumulate(state, map[string]interface{}{
		"x": map[string]interface{}{"type": "bogus", "value": 1},
	}, true)
	if !errors.Is(err, ErrUnknownStatType) {
		t.Errorf("expected ErrUnknownStatType, got %v", err)
	}
}

// Spec §7 scopes TypeMismatch to the Merger, not the Accumulator: a stat
// whose type disagrees with a field's first-observed tag is tolerated
// during accumulation (matching jsonb_stats_accum's update_summary, which
// dispatches on the incoming stat type and never validates it against the
// existing entry). The field's tag itself never changes after init.
func TestAccumulate_CrossTypeToleratedDuringAccumulate(t *testing.T) {
	state := NewStatsState()
	if err := Accumulate(state, map[string]interface{}{"x": statInt(1)}, true); err != nil {
		t.Fatalf("first row: %v", err)
	}
	if err := Accumulate(state, map[string]interface{}{"x": statStr("a")}, true); err != nil {
		t.Fatalf("second row: %v", err)
	}

	if state.Fields["x"].Tag != AggIntAgg {
		t.Errorf("tag: got %v, want int_agg (first-observed tag is sticky)", state.Fields["x"].Tag)
	}
	out := Finalize(state)
	x := out["x"].(map[string]interface{})
	if x["type"] != string(AggIntAgg) {
		t.Errorf("finalized type: got %v, want int_agg", x["type"])
	}
}

func TestAccumulate_NilStatsTolerant(t *testing.T) {
	state := NewStatsState()
	if err := Accumulate(state, nil, false); err != nil {
		t.Fatalf("expected nil stats to be tolerated, got %v", err)
	}
	if !state.Empty() {
		t.Error("expected state to remain empty")
	}
}

func TestAccumulate_NilStatsStrict(t *testing.T) {
	state := NewStatsState()
	err := Accumulate(state, nil, true)
	if !errors.Is(err, ErrInvalidValue) {
		t.Errorf("expected ErrInvalidValue in strict mode, got %v", err)
	}
}

// Property 5: single-row variance is null, and the core identity fields
// equal the single observed value.
func TestAccumulate_Property5_SingleRowVariance(t *testing.T) {
	state := NewStatsState()
	if err := Accumulate(state, map[string]interface{}{"x": statInt(42)}, true); err != nil {
		t.Fatalf("accumulate: %v", err)
	}
	out := Finalize(state)
	x := out["x"].(map[string]interface{})

	if x["count"] != int64(1) {
		t.Errorf("count: got %v, want 1", x["count"])
	}
	for _, field := range []string{"min", "max", "sum"} {
		if x[field] != float64(42) {
			t.Errorf("%s: got %v, want 42", field, x[field])
		}
	}
	assertRounded(t, "mean", x["mean"], "42.00")
	assertRounded(t, "sum_sq_diff", x["sum_sq_diff"], "0.00")
	if x["variance"] != nil {
		t.Errorf("variance: got %v, want nil", x["variance"])
	}
	if x["stddev"] != nil {
		t.Errorf("stddev: got %v, want nil", x["stddev"])
	}
	if x["coefficient_of_variation_pct"] != nil {
		t.Errorf("coefficient_of_variation_pct: got %v, want nil", x["coefficient_of_variation_pct"])
	}
}

// Property 2: counts commutativity across permutations of the same stream.
func TestAccumulate_Property2_CountsCommutativity(t *testing.T) {
	values := []string{"a", "b", "a", "c", "b", "a"}
	permutations := [][]string{
		{"a", "b", "a", "c", "b", "a"},
		{"c", "a", "b", "a", "b", "a"},
		{"a", "a", "a", "b", "b", "c"},
	}

	_ = values
	var reference map[string]int64
	for i, perm := range permutations {
		state := NewStatsState()
		for _, v := range perm {
			if err := Accumulate(state, map[string]interface{}{"k": statStr(v)}, true); err != nil {
				t.Fatalf("permutation %d: %v", i, err)
			}
		}
		counts := state.Fields["k"].Counts
		if reference == nil {
			reference = counts
			continue
		}
		if len(counts) != len(reference) {
			t.Fatalf("permutation %d: count map size differs: %v vs %v", i, counts, reference)
		}
		for k, v := range reference {
			if counts[k] != v {
				t.Errorf("permutation %d: key %q got %d, want %d", i, k, counts[k], v)
			}
		}
	}
}
