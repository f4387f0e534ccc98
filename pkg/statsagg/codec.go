// Copyright (c) 2026 statsagg authors.
// SPDX-License-Identifier: Apache-2.0

package statsagg

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// Stat wraps a host scalar value into the {"type": T, "value": V} typed-stat
// shape consumed by Accumulate (spec §4.6). This is the thin per-scalar-type
// wrapper the host calls once per column per row before handing the result
// to jsonb_stats_agg; the canonical mapping is by Go type of v, mirroring
// the host's static column type:
//
//	int, int32, int64         -> "int"
//	float32, float64          -> "float"
//	decimal.Decimal           -> "dec2" (round-trips the original decimal text)
//	bool                      -> "bool"
//	string                    -> "str"
//	time-as-ISO-date string   -> pass a string and use StatDate instead
//
// Any other Go type falls back to tag "str", with the value stringified by
// its String method if it has one, else by its JSON encoding.
func Stat(v interface{}) map[string]interface{} {
	switch val := v.(type) {
	case int:
		return map[string]interface{}{"type": string(InputInt), "value": val}
	case int32:
		return map[string]interface{}{"type": string(InputInt), "value": val}
	case int64:
		return map[string]interface{}{"type": string(InputInt), "value": val}
	case float32:
		return map[string]interface{}{"type": string(InputFloat), "value": val}
	case float64:
		return map[string]interface{}{"type": string(InputFloat), "value": val}
	case decimal.Decimal:
		// Preserve the original decimal text exactly: json.Number carries
		// it through encoding/json verbatim instead of collapsing through
		// a lossy float64 round-trip at this boundary. String() trims
		// trailing fractional zeros, so the value's own scale is used to
		// keep them ("19.990" stays "19.990").
		text := val.String()
		if exp := val.Exponent(); exp < 0 {
			text = val.StringFixed(-exp)
		}
		return map[string]interface{}{"type": string(InputDec2), "value": json.Number(text)}
	case bool:
		return map[string]interface{}{"type": string(InputBool), "value": val}
	case string:
		return map[string]interface{}{"type": string(InputStr), "value": val}
	default:
		return map[string]interface{}{"type": string(InputStr), "value": sprintFallback(v)}
	}
}

// StatNat wraps a non-negative integral host value as a "nat" typed stat.
func StatNat(v int64) map[string]interface{} {
	return map[string]interface{}{"type": string(InputNat), "value": v}
}

// StatDate wraps an ISO-8601 date string as a "date" typed stat.
func StatDate(iso string) map[string]interface{} {
	return map[string]interface{}{"type": string(InputDate), "value": iso}
}

// StatArr wraps a slice of scalars as an "arr" typed stat.
func StatArr(elems []interface{}) map[string]interface{} {
	return map[string]interface{}{"type": string(InputArr), "value": elems}
}

// sprintFallback stringifies an unrecognized scalar type without pulling in
// fmt's full verb-parsing machinery for this one call site.
func sprintFallback(v interface{}) string {
	if s, ok := v.(interface{ String() string }); ok {
		return s.String()
	}
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	var s string
	if json.Unmarshal(b, &s) == nil {
		return s
	}
	return string(b)
}

// Stats stamps the reserved "type":"stats" marker onto a JSON object,
// leaving every other key untouched (spec §6).
func Stats(obj map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(obj)+1)
	for k, v := range obj {
		out[k] = v
	}
	out["type"] = "stats"
	return out
}

// ParseAggEntry decodes one child object of a stats_agg summary (as
// produced by Finalize, or shipped in from another worker/roll-up level)
// into an AggEntry, dispatching on its "type" tag (spec §4.6). Unknown tags
// are rejected with ErrUnknownAggType rather than silently ignored, since a
// merge input is expected to have come from this same family of aggregates.
func ParseAggEntry(raw map[string]interface{}) (*AggEntry, error) {
	typeRaw, ok := raw["type"]
	if !ok {
		return nil, unknownAggType("")
	}
	typeStr, ok := typeRaw.(string)
	if !ok {
		return nil, unknownAggType("")
	}
	tag := AggType(typeStr)
	if !tag.valid() {
		return nil, unknownAggType(typeStr)
	}

	switch {
	case tag.isNumeric():
		num, err := parseNumFields(raw)
		if err != nil {
			return nil, err
		}
		return &AggEntry{Tag: tag, Num: num}, nil

	case tag.isCategory():
		counts, err := parseCounts(raw["counts"])
		if err != nil {
			return nil, err
		}
		return &AggEntry{Tag: tag, Counts: counts}, nil

	case tag == AggArrAgg:
		counts, err := parseCounts(raw["counts"])
		if err != nil {
			return nil, err
		}
		count, _ := toFloat64(raw["count"])
		return &AggEntry{Tag: tag, Counts: counts, Count: int64(count)}, nil

	case tag == AggDateAgg:
		counts, err := parseCounts(raw["counts"])
		if err != nil {
			return nil, err
		}
		entry := &AggEntry{Tag: tag, Counts: counts}
		if s, ok := raw["min"].(string); ok {
			entry.MinDate = s
		}
		if s, ok := raw["max"].(string); ok {
			entry.MaxDate = s
		}
		return entry, nil
	}
	return nil, unknownAggType(typeStr)
}

// parseNumFields decodes the NumFields fields of a numeric AggEntry's JSON
// representation.
func parseNumFields(raw map[string]interface{}) (*NumFields, error) {
	count, ok := toFloat64(raw["count"])
	if !ok {
		return nil, invalidValue("numeric agg entry missing count")
	}
	sum, _ := toFloat64(raw["sum"])
	min, _ := toFloat64(raw["min"])
	max, _ := toFloat64(raw["max"])
	mean, _ := toFloat64(raw["mean"])
	ssd, _ := toFloat64(raw["sum_sq_diff"])
	return &NumFields{
		Count:     int64(count),
		Sum:       sum,
		Min:       min,
		Max:       max,
		Mean:      mean,
		SumSqDiff: ssd,
	}, nil
}

// parseCounts decodes a JSON "counts" object into map[string]int64.
func parseCounts(raw interface{}) (map[string]int64, error) {
	obj, ok := raw.(map[string]interface{})
	if !ok {
		if raw == nil {
			return make(map[string]int64), nil
		}
		return nil, invalidValue("counts must be an object")
	}
	out := make(map[string]int64, len(obj))
	for k, v := range obj {
		f, ok := toFloat64(v)
		if !ok {
			return nil, invalidValue("counts value for " + k + " must be a number")
		}
		out[k] = int64(f)
	}
	return out, nil
}
