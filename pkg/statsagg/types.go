// Copyright (c) 2026 statsagg authors.
// SPDX-License-Identifier: Apache-2.0

// Package statsagg implements the typed accumulator state machine behind a
// family of user-defined aggregate functions over a self-describing JSON
// encoding of heterogeneous per-row statistics: NumFields (the Welford
// numeric accumulator), AggEntry (the closed per-field tagged summary
// variant), StatsState (the native in-memory carry-state), and the
// Accumulator / Merger / Finalizer operations that fold rows and summaries
// into it.
//
// Everything in this package is a synchronous, pure function of its
// arguments plus the *StatsState it mutates in place: there are no
// goroutines, timers, or suspension points. A StatsState is owned by
// exactly one caller at a time; Combine is the only place two meet, and it
// logically consumes both, leaving only the left-hand side valid.
package statsagg

// InputType is the type tag carried by a single per-row typed stat value
// (the "type" field of a {"type": T, "value": V} object).
type InputType string

const (
	InputInt   InputType = "int"
	InputFloat InputType = "float"
	InputDec2  InputType = "dec2"
	InputNat   InputType = "nat"
	InputStr   InputType = "str"
	InputBool  InputType = "bool"
	InputArr   InputType = "arr"
	InputDate  InputType = "date"
)

// AggType is the type tag carried by a per-field summary entry (AggEntry)
// and by the corresponding child object in a finalized stats_agg summary.
type AggType string

const (
	AggIntAgg   AggType = "int_agg"
	AggFloatAgg AggType = "float_agg"
	AggDec2Agg  AggType = "dec2_agg"
	AggNatAgg   AggType = "nat_agg"
	AggStrAgg   AggType = "str_agg"
	AggBoolAgg  AggType = "bool_agg"
	AggArrAgg   AggType = "arr_agg"
	AggDateAgg  AggType = "date_agg"
)

// aggForInput maps an input stat's type tag to the summary tag it produces.
var aggForInput = map[InputType]AggType{
	InputInt:   AggIntAgg,
	InputFloat: AggFloatAgg,
	InputDec2:  AggDec2Agg,
	InputNat:   AggNatAgg,
	InputStr:   AggStrAgg,
	InputBool:  AggBoolAgg,
	InputArr:   AggArrAgg,
	InputDate:  AggDateAgg,
}

// isNumeric reports whether an AggType shares the NumFields representation.
func (t AggType) isNumeric() bool {
	switch t {
	case AggIntAgg, AggFloatAgg, AggDec2Agg, AggNatAgg:
		return true
	}
	return false
}

// isCategory reports whether an AggType is a plain counts-map variant
// (str_agg/bool_agg); arr_agg and date_agg also carry counts but have their
// own extra fields, so they are handled separately.
func (t AggType) isCategory() bool {
	return t == AggStrAgg || t == AggBoolAgg
}

// valid reports whether t is one of the eight closed AggType variants.
func (t AggType) valid() bool {
	switch t {
	case AggIntAgg, AggFloatAgg, AggDec2Agg, AggNatAgg,
		AggStrAgg, AggBoolAgg, AggArrAgg, AggDateAgg:
		return true
	}
	return false
}

// NumFields is the Welford online accumulator shared by every numeric
// AggEntry variant (int_agg, float_agg, dec2_agg, nat_agg). See numfields.go
// for Init/Update/Merge.
type NumFields struct {
	Count      int64
	Sum        float64
	Min        float64
	Max        float64
	Mean       float64
	SumSqDiff  float64
}

// AggEntry is the closed, tagged per-field summary variant described in
// spec §4.2. Tag selects the field group that Finalize, Serialize and the
// Merger read: Num for the four numeric variants, Counts (+ Count for
// arr_agg, + MinDate/MaxDate for date_agg) for the rest. This is a fixed
// sum type, not an open interface hierarchy on purpose (see DESIGN.md) —
// every dispatch site switches exhaustively on Tag. Merging two entries
// with differing tags is a TypeMismatch error. Accumulate does not check
// the tag: a row whose stat type differs from the field's first-observed
// type updates (or lazily creates) whichever group that stat type uses,
// and Tag keeps its first value, so data in the other group is not
// emitted by Finalize.
type AggEntry struct {
	Tag AggType

	// Numeric variants.
	Num *NumFields

	// Category / arr / date variants: counts keyed by stringified value.
	Counts map[string]int64

	// arr_agg only: number of input rows contributing (not sum of Counts).
	Count int64

	// date_agg only: lexicographic min/max of the ISO date strings seen.
	// Empty string means "no date observed yet".
	MinDate string
	MaxDate string
}

func (e *AggEntry) typeTag() AggType { return e.Tag }

// StatsState is the native in-memory aggregate carry-state: a mapping from
// field name to its running AggEntry. It is the value the host database
// passes between sfunc calls and hands to combinefunc/serialfunc/finalfunc;
// see pkg/hostagg for those bindings.
type StatsState struct {
	Fields map[string]*AggEntry
}

// NewStatsState returns a fresh, empty carry-state (the aggregate's
// initcond).
func NewStatsState() *StatsState {
	return &StatsState{Fields: make(map[string]*AggEntry)}
}

// Empty reports whether the state has accumulated no fields at all.
func (s *StatsState) Empty() bool {
	return s == nil || len(s.Fields) == 0
}
