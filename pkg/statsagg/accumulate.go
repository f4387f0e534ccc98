// Copyright (c) 2026 statsagg authors.
// SPDX-License-Identifier: Apache-2.0

package statsagg

// Accumulate folds one per-row stats object into state (spec §4.3). It is
// the sfunc body of the forward jsonb_stats_agg(stats) aggregate: for every
// key other than the reserved "type", it either initializes a fresh
// AggEntry (first time the key is seen) or updates the existing one.
//
// A non-object stats value at the outer level is tolerated and leaves state
// unchanged when strict is false (the host may pass {} as an initial
// condition); when strict is true it is reported as ErrInvalidValue. This
// threads the §9 Open Question resolution recorded in DESIGN.md.
func Accumulate(state *StatsState, stats map[string]interface{}, strict bool) error {
	if stats == nil {
		if strict {
			return invalidValue("stats input is not an object")
		}
		return nil
	}

	for key, raw := range stats {
		if key == "type" {
			continue
		}
		statObj, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		typeRaw, ok := statObj["type"]
		if !ok {
			continue
		}
		typeStr, ok := typeRaw.(string)
		if !ok {
			continue
		}
		it := InputType(typeStr)
		aggTag, known := aggForInput[it]
		if !known {
			return unknownStatType(typeStr)
		}

		value := statObj["value"]

		existing, has := state.Fields[key]
		if !has {
			entry, err := initEntry(it, aggTag, value)
			if err != nil {
				return err
			}
			state.Fields[key] = entry
			continue
		}
		if err := updateEntry(existing, it, value); err != nil {
			return err
		}
	}
	return nil
}

// initEntry builds the first AggEntry for a field from its first observed
// typed stat value.
func initEntry(it InputType, tag AggType, value interface{}) (*AggEntry, error) {
	switch it {
	case InputInt, InputFloat, InputDec2:
		f, ok := toFloat64(value)
		if !ok {
			return nil, invalidValue(string(it) + ": value must be a number")
		}
		return &AggEntry{Tag: tag, Num: initNumFields(f)}, nil

	case InputNat:
		f, ok := toFloat64(value)
		if !ok {
			return nil, invalidValue("nat: value must be a number")
		}
		if f < 0 {
			return nil, invalidValue("nat: value must be >= 0")
		}
		return &AggEntry{Tag: tag, Num: initNumFields(f)}, nil

	case InputStr, InputBool:
		s, ok := toCategoryString(value)
		if !ok {
			return nil, invalidValue(string(it) + ": missing or invalid value")
		}
		return &AggEntry{Tag: tag, Counts: map[string]int64{s: 1}}, nil

	case InputArr:
		entry := &AggEntry{Tag: tag, Counts: make(map[string]int64), Count: 1}
		addArrElements(entry, value)
		return entry, nil

	case InputDate:
		s, ok := value.(string)
		if !ok {
			return nil, invalidValue("date: value must be a string")
		}
		return &AggEntry{
			Tag:     tag,
			Counts:  map[string]int64{s: 1},
			MinDate: s,
			MaxDate: s,
		}, nil
	}
	return nil, unknownStatType(string(it))
}

// updateEntry folds one more typed stat value into an already-initialized
// AggEntry, dispatching purely on the incoming stat's type the way the
// original sfunc's update_summary does (spec §7 scopes TypeMismatch to the
// Merger, not the Accumulator). entry.Tag itself is left untouched — the
// first-observed type tag for a field sticks for the lifetime of the
// state — so a row whose stat type doesn't match it just updates whichever
// representation (Num or Counts) the incoming type needs, lazily
// initializing it if this is the first time that representation has been
// touched for the field.
func updateEntry(entry *AggEntry, it InputType, value interface{}) error {
	switch it {
	case InputInt, InputFloat, InputDec2:
		f, ok := toFloat64(value)
		if !ok {
			return invalidValue(string(it) + ": value must be a number")
		}
		if entry.Num == nil {
			entry.Num = initNumFields(f)
			return nil
		}
		entry.Num.update(f)
		return nil

	case InputNat:
		f, ok := toFloat64(value)
		if !ok {
			return invalidValue("nat: value must be a number")
		}
		if f < 0 {
			return invalidValue("nat: value must be >= 0")
		}
		if entry.Num == nil {
			entry.Num = initNumFields(f)
			return nil
		}
		entry.Num.update(f)
		return nil

	case InputStr, InputBool:
		s, ok := toCategoryString(value)
		if !ok {
			return invalidValue(string(it) + ": missing or invalid value")
		}
		if entry.Counts == nil {
			entry.Counts = make(map[string]int64)
		}
		entry.Counts[s]++
		return nil

	case InputArr:
		entry.Count++
		if entry.Counts == nil {
			entry.Counts = make(map[string]int64)
		}
		addArrElements(entry, value)
		return nil

	case InputDate:
		s, ok := value.(string)
		if !ok {
			return invalidValue("date: value must be a string")
		}
		if entry.Counts == nil {
			entry.Counts = make(map[string]int64)
		}
		entry.Counts[s]++
		if entry.MinDate == "" || s < entry.MinDate {
			entry.MinDate = s
		}
		if entry.MaxDate == "" || s > entry.MaxDate {
			entry.MaxDate = s
		}
		return nil
	}
	return unknownStatType(string(it))
}

// addArrElements increments entry.Counts for every element of an arr stat
// value, accepting either a decoded JSON array or the brace-delimited text
// form "{a,b,c}" (spec §3/§4.3).
func addArrElements(entry *AggEntry, value interface{}) {
	switch v := value.(type) {
	case []interface{}:
		for _, e := range v {
			if key, ok := arrElementKey(e); ok {
				entry.Counts[key]++
			}
		}
	case string:
		for _, key := range splitBraceArray(v) {
			entry.Counts[key]++
		}
	}
}
