// Copyright (c) 2026 statsagg authors.
// SPDX-License-Identifier: Apache-2.0

// Package hostagg implements the aggregate calling convention named in
// spec.md §6 — sfunc/combinefunc/serialfunc/deserialfunc/finalfunc — as
// plain Go functions over pkg/statsagg.StatsState, plus the two aggregate
// bindings and the scalar function exposure that a host would register.
//
// Every function here is a thin wrapper: the accumulation, merge, and
// numeric logic all live in pkg/statsagg. This package only adapts that
// core to the one-call-per-row, state-threading shape a real aggregate
// calling convention expects, and threads the strict/tolerant input mode
// (spec §9 Open Question) from host configuration into the core's calls.
package hostagg

import "github.com/sneller-labs/statsagg/pkg/statsagg"

// SFunc folds one input row's stats object into state. This is the sfunc
// half of jsonb_stats_agg(stats): the host calls it once per input row,
// threading the same *StatsState through the whole group.
func SFunc(state *statsagg.StatsState, stats map[string]interface{}, strict bool) (*statsagg.StatsState, error) {
	if state == nil {
		state = statsagg.NewStatsState()
	}
	if err := statsagg.Accumulate(state, stats, strict); err != nil {
		return state, err
	}
	return state, nil
}

// MergeSFunc folds one already-computed stats_agg summary into state. This
// is the sfunc half of jsonb_stats_merge_agg(stats_agg), used for
// hierarchical roll-up without re-scanning raw rows.
func MergeSFunc(state *statsagg.StatsState, aggJSON map[string]interface{}, strict bool) (*statsagg.StatsState, error) {
	if state == nil {
		state = statsagg.NewStatsState()
	}
	if err := statsagg.MergeFromJSON(state, aggJSON, strict); err != nil {
		return state, err
	}
	return state, nil
}

// CombineFunc merges two partial states, as the host calls it when
// reconciling parallel workers' partial aggregates. Both aggregate
// bindings (jsonb_stats_agg and jsonb_stats_merge_agg) share this same
// combinefunc, since combining is agnostic to how the partials were built.
func CombineFunc(a, b *statsagg.StatsState) (*statsagg.StatsState, error) {
	if a == nil {
		a = statsagg.NewStatsState()
	}
	if b == nil || b.Empty() {
		return a, nil
	}
	if err := statsagg.Combine(a, b); err != nil {
		return a, err
	}
	return a, nil
}

// SerialFunc ships state to bytes for inter-worker transport.
func SerialFunc(state *statsagg.StatsState) ([]byte, error) {
	return statsagg.Serialize(state)
}

// DeserialFunc reconstitutes a state from bytes produced by SerialFunc.
func DeserialFunc(data []byte) (*statsagg.StatsState, error) {
	return statsagg.Deserialize(data)
}

// FinalFunc consumes state and produces the terminal stats_agg summary.
// Both aggregate bindings share this finalfunc.
func FinalFunc(state *statsagg.StatsState) map[string]interface{} {
	if state == nil {
		state = statsagg.NewStatsState()
	}
	return statsagg.Finalize(state)
}

// CodeValueSFunc is the sfunc behind the convenience aggregate
// jsonb_stats_agg(code, value): it builds a stats object one (code, value)
// pair at a time by inserting code -> Stat(value) into a plain JSON object
// and stamping "type":"stats", rather than threading a *StatsState. The
// caller is expected to feed the resulting object into SFunc at the next
// aggregation level (or straight into Accumulate), matching the two-stage
// "build the stats object, then aggregate it" pipeline spec §6 describes.
func CodeValueSFunc(obj map[string]interface{}, code string, value interface{}) map[string]interface{} {
	if obj == nil {
		obj = make(map[string]interface{}, 2)
	}
	obj[code] = statsagg.Stat(value)
	return statsagg.Stats(obj)
}

// Stat exposes the stat(v) scalar function (spec §4.6/§6).
func Stat(v interface{}) map[string]interface{} {
	return statsagg.Stat(v)
}

// Stats exposes the stats(obj) scalar function (spec §6): stamps
// "type":"stats" onto obj, unchanged otherwise.
func Stats(obj map[string]interface{}) map[string]interface{} {
	return statsagg.Stats(obj)
}
