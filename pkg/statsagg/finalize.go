// Copyright (c) 2026 statsagg authors.
// SPDX-License-Identifier: Apache-2.0

package statsagg

import (
	"encoding/json"
	"math"
	"strconv"
)

// Finalize consumes state and emits the terminal stats_agg summary JSON
// (spec §4.5). Per the lifecycle in spec §3, state must not be reused
// afterward; Finalize clears it to make that contract explicit rather than
// leaving a half-consumed map around for a caller to accidentally read.
func Finalize(state *StatsState) map[string]interface{} {
	out := make(map[string]interface{}, len(state.Fields)+1)
	out["type"] = "stats_agg"

	for key, entry := range state.Fields {
		out[key] = finalizeEntry(entry)
	}

	state.Fields = nil
	return out
}

func finalizeEntry(entry *AggEntry) map[string]interface{} {
	switch {
	case entry.Tag.isNumeric():
		return finalizeNumeric(entry)
	case entry.Tag.isCategory():
		return map[string]interface{}{
			"type":   string(entry.Tag),
			"counts": countsOut(entry.Counts),
		}
	case entry.Tag == AggArrAgg:
		return map[string]interface{}{
			"type":   string(entry.Tag),
			"count":  entry.Count,
			"counts": countsOut(entry.Counts),
		}
	case entry.Tag == AggDateAgg:
		child := map[string]interface{}{
			"type":   string(entry.Tag),
			"counts": countsOut(entry.Counts),
		}
		if entry.MinDate != "" {
			child["min"] = entry.MinDate
		}
		if entry.MaxDate != "" {
			child["max"] = entry.MaxDate
		}
		return child
	}
	// Unreachable for a well-formed StatsState: every AggEntry is produced
	// by initEntry/ParseAggEntry, which only ever set a valid closed tag.
	return map[string]interface{}{"type": string(entry.Tag)}
}

func finalizeNumeric(entry *AggEntry) map[string]interface{} {
	n := entry.Num
	child := map[string]interface{}{
		"type":        string(entry.Tag),
		"count":       n.Count,
		"sum":         n.Sum,
		"min":         n.Min,
		"max":         n.Max,
		"mean":        round2(n.Mean),
		"sum_sq_diff": round2(n.SumSqDiff),
	}

	if n.Count > 1 {
		variance := n.SumSqDiff / float64(n.Count-1)
		varianceFinite := !math.IsNaN(variance) && !math.IsInf(variance, 0)
		child["variance"] = round2OrNull(variance, varianceFinite)

		if varianceFinite && variance >= 0 {
			child["stddev"] = round2OrNull(math.Sqrt(variance), true)
		} else {
			child["stddev"] = nil
		}

		if varianceFinite && variance >= 0 && n.Mean != 0 {
			cv := math.Sqrt(variance) / n.Mean * 100
			child["coefficient_of_variation_pct"] = round2OrNull(cv, true)
		} else {
			child["coefficient_of_variation_pct"] = nil
		}
	} else {
		child["variance"] = nil
		child["stddev"] = nil
		child["coefficient_of_variation_pct"] = nil
	}

	return child
}

// round2 renders v as a json.Number with exactly two fractional digits
// (spec §4.5's rounding shape: "100.00", never "100" or "100.0"). Using
// json.Number instead of a plain float64 is load-bearing: encoding/json
// marshals float64 through its shortest round-trip representation and
// would happily emit "100" for 100.0, silently breaking the textual
// contract.
func round2(v float64) json.Number {
	return json.Number(strconv.FormatFloat(v, 'f', 2, 64))
}

// round2OrNull is round2 guarded by a finiteness check, used for the
// derived statistics that can go non-finite (e.g. variance of a
// pathological merge producing NaN from floating error).
func round2OrNull(v float64, condition bool) interface{} {
	if !condition || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return round2(v)
}

// countsOut converts the internal map[string]int64 counts representation
// to the map[string]interface{} shape encoding/json expects for a JSON
// object value.
func countsOut(counts map[string]int64) map[string]interface{} {
	out := make(map[string]interface{}, len(counts))
	for k, v := range counts {
		out[k] = v
	}
	return out
}
