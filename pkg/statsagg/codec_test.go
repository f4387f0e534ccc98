// Copyright (c) 2026 statsagg authors.
// SPDX-License-Identifier: Apache-2.0

package statsagg

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestStat_Dec2PreservesDecimalText(t *testing.T) {
	d := decimal.RequireFromString("19.99")
	stat := Stat(d)
	if stat["type"] != string(InputDec2) {
		t.Fatalf("type: got %v, want dec2", stat["type"])
	}
	f, ok := toFloat64(stat["value"])
	if !ok {
		t.Fatalf("value is not numeric: %v", stat["value"])
	}
	if f != 19.99 {
		t.Errorf("value: got %v, want 19.99", f)
	}
}

func TestStat_IntFloatBoolString(t *testing.T) {
	if Stat(42)["type"] != string(InputInt) {
		t.Error("int: wrong type tag")
	}
	if Stat(3.14)["type"] != string(InputFloat) {
		t.Error("float: wrong type tag")
	}
	if Stat(true)["type"] != string(InputBool) {
		t.Error("bool: wrong type tag")
	}
	if Stat("hello")["type"] != string(InputStr) {
		t.Error("string: wrong type tag")
	}
}

func TestStats_StampsTypeMarker(t *testing.T) {
	obj := map[string]interface{}{"region_code": Stat("us-east"), "headcount": StatNat(12)}
	stamped := Stats(obj)
	if stamped["type"] != "stats" {
		t.Errorf("type: got %v, want stats", stamped["type"])
	}
	if _, ok := stamped["region_code"]; !ok {
		t.Error("expected region_code to survive stamping")
	}
	if _, ok := obj["type"]; ok {
		t.Error("Stats must not mutate its input")
	}
}

func TestParseAggEntry_UnknownTag(t *testing.T) {
	_, err := ParseAggEntry(map[string]interface{}{"type": "bogus_agg"})
	if err == nil {
		t.Fatal("expected error for unknown tag")
	}
}

func TestParseAggEntry_MissingType(t *testing.T) {
	_, err := ParseAggEntry(map[string]interface{}{"count": 1})
	if err == nil {
		t.Fatal("expected error for missing type")
	}
}

func TestParseAggEntry_NumericMissingCount(t *testing.T) {
	_, err := ParseAggEntry(map[string]interface{}{"type": string(AggIntAgg), "sum": 1.0})
	if err == nil {
		t.Fatal("expected error for numeric entry missing count")
	}
}
