// Copyright (c) 2026 statsagg authors.
// SPDX-License-Identifier: Apache-2.0

package statsagg

import (
	"bytes"
	"testing"
)

func buildSampleState(t *testing.T) *StatsState {
	t.Helper()
	state := NewStatsState()
	rows := []map[string]interface{}{
		{"num": statInt(150)},
		{"num": statInt(50)},
		{"ind": statStr("tech")},
		{"ind": statStr("finance")},
		{"founded": statDate("2024-01-15")},
		{"founded": statDate("2023-06-01")},
		{"tags": map[string]interface{}{"type": "arr", "value": []interface{}{"x", "y", "x"}}},
	}
	if err := AccumulateBatch(state, rows, true); err != nil {
		t.Fatalf("build sample state: %v", err)
	}
	return state
}

func TestWire_SerializeDeserializeRoundTrip(t *testing.T) {
	state := buildSampleState(t)
	before := Finalize(state)

	state2 := buildSampleState(t)
	data, err := Serialize(state2)
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}

	decoded, err := Deserialize(data)
	if err != nil {
		t.Fatalf("deserialize: %v", err)
	}
	after := Finalize(decoded)

	assertSameJSON(t, before, after)
}

func TestWire_DeserializeRejectsBadMagic(t *testing.T) {
	_, err := Deserialize([]byte{0, 1, 2, 3})
	if err == nil {
		t.Fatal("expected error for malformed frame")
	}
}

func TestWire_DeserializeRejectsTruncated(t *testing.T) {
	state := buildSampleState(t)
	data, err := Serialize(state)
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}
	_, err = Deserialize(data[:len(data)/2])
	if err == nil {
		t.Fatal("expected error for truncated frame")
	}
}

func TestWire_EmptyStateRoundTrip(t *testing.T) {
	state := NewStatsState()
	data, err := Serialize(state)
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}
	decoded, err := Deserialize(data)
	if err != nil {
		t.Fatalf("deserialize: %v", err)
	}
	if !decoded.Empty() {
		t.Error("expected decoded state to be empty")
	}
}

func TestWire_DistinctStatesProduceDistinctFrames(t *testing.T) {
	a := NewStatsState()
	if err := Accumulate(a, map[string]interface{}{"x": statInt(1)}, true); err != nil {
		t.Fatalf("accumulate a: %v", err)
	}
	b := NewStatsState()
	if err := Accumulate(b, map[string]interface{}{"x": statInt(2)}, true); err != nil {
		t.Fatalf("accumulate b: %v", err)
	}

	da, err := Serialize(a)
	if err != nil {
		t.Fatalf("serialize a: %v", err)
	}
	db, err := Serialize(b)
	if err != nil {
		t.Fatalf("serialize b: %v", err)
	}
	if bytes.Equal(da, db) {
		t.Error("expected distinct states to serialize to distinct frames")
	}
}

// Property 3: finalize -> parse_agg_entry -> finalize is byte-identical
// (here, deep-equal as decoded JSON objects).
func TestFinalize_Property3_RoundTripThroughJSON(t *testing.T) {
	state := buildSampleState(t)
	first := Finalize(state)

	state2 := NewStatsState()
	for key, raw := range first {
		if key == "type" {
			continue
		}
		entry, err := ParseAggEntry(raw.(map[string]interface{}))
		if err != nil {
			t.Fatalf("parse %q: %v", key, err)
		}
		state2.Fields[key] = entry
	}
	second := Finalize(state2)

	assertSameJSON(t, first, second)
}
