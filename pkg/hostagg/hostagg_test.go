// Copyright (c) 2026 statsagg authors.
// SPDX-License-Identifier: Apache-2.0

package hostagg

import (
	"errors"
	"testing"

	"github.com/sneller-labs/statsagg/pkg/statsagg"
)

func intStat(v int64) map[string]interface{} {
	return map[string]interface{}{"type": "int", "value": v}
}

func TestSFunc_FoldsRowsAcrossCalls(t *testing.T) {
	var state *statsagg.StatsState
	var err error

	state, err = SFunc(state, map[string]interface{}{"n": intStat(10)}, true)
	if err != nil {
		t.Fatalf("first row: %v", err)
	}
	state, err = SFunc(state, map[string]interface{}{"n": intStat(20)}, true)
	if err != nil {
		t.Fatalf("second row: %v", err)
	}

	out := FinalFunc(state)
	n := out["n"].(map[string]interface{})
	if n["count"] != int64(2) {
		t.Errorf("count: got %v, want 2", n["count"])
	}
}

func TestSFunc_StrictRejectsNonObject(t *testing.T) {
	_, err := SFunc(nil, nil, true)
	if !errors.Is(err, statsagg.ErrInvalidValue) {
		t.Errorf("expected ErrInvalidValue, got %v", err)
	}
}

func TestCombineFunc_MergesWorkerPartials(t *testing.T) {
	a, err := SFunc(nil, map[string]interface{}{"n": intStat(1)}, true)
	if err != nil {
		t.Fatalf("worker a: %v", err)
	}
	b, err := SFunc(nil, map[string]interface{}{"n": intStat(2)}, true)
	if err != nil {
		t.Fatalf("worker b: %v", err)
	}

	combined, err := CombineFunc(a, b)
	if err != nil {
		t.Fatalf("combine: %v", err)
	}
	out := FinalFunc(combined)
	n := out["n"].(map[string]interface{})
	if n["count"] != int64(2) {
		t.Errorf("count: got %v, want 2", n["count"])
	}
	if n["sum"] != float64(3) {
		t.Errorf("sum: got %v, want 3", n["sum"])
	}
}

func TestSerialDeserialRoundTrip(t *testing.T) {
	state, err := SFunc(nil, map[string]interface{}{"n": intStat(7)}, true)
	if err != nil {
		t.Fatalf("sfunc: %v", err)
	}

	data, err := SerialFunc(state)
	if err != nil {
		t.Fatalf("serial: %v", err)
	}
	decoded, err := DeserialFunc(data)
	if err != nil {
		t.Fatalf("deserial: %v", err)
	}

	out := FinalFunc(decoded)
	n := out["n"].(map[string]interface{})
	if n["count"] != int64(1) {
		t.Errorf("count: got %v, want 1", n["count"])
	}
}

func TestMergeSFunc_RollsUpSummaries(t *testing.T) {
	var state *statsagg.StatsState
	agg1 := map[string]interface{}{"n": map[string]interface{}{
		"type": "int_agg", "count": int64(2), "sum": 30.0, "min": 10.0, "max": 20.0, "mean": 15.0, "sum_sq_diff": 50.0,
	}}
	agg2 := map[string]interface{}{"n": map[string]interface{}{
		"type": "int_agg", "count": int64(1), "sum": 5.0, "min": 5.0, "max": 5.0, "mean": 5.0, "sum_sq_diff": 0.0,
	}}

	var err error
	state, err = MergeSFunc(state, agg1, true)
	if err != nil {
		t.Fatalf("merge agg1: %v", err)
	}
	state, err = MergeSFunc(state, agg2, true)
	if err != nil {
		t.Fatalf("merge agg2: %v", err)
	}

	out := FinalFunc(state)
	n := out["n"].(map[string]interface{})
	if n["count"] != int64(3) {
		t.Errorf("count: got %v, want 3", n["count"])
	}
}

func TestCodeValueSFunc_BuildsStatsObject(t *testing.T) {
	var obj map[string]interface{}
	obj = CodeValueSFunc(obj, "region", "us-east")
	obj = CodeValueSFunc(obj, "headcount", int64(12))

	if obj["type"] != "stats" {
		t.Errorf("type: got %v, want stats", obj["type"])
	}
	region := obj["region"].(map[string]interface{})
	if region["type"] != "str" || region["value"] != "us-east" {
		t.Errorf("region: got %v", region)
	}
}

func TestStatAndStatsScalarBindings(t *testing.T) {
	s := Stat(42)
	if s["type"] != "int" {
		t.Errorf("stat: got %v, want int", s["type"])
	}
	stamped := Stats(map[string]interface{}{"region": s})
	if stamped["type"] != "stats" {
		t.Errorf("stats: got %v, want stats", stamped["type"])
	}
}
