// Copyright (c) 2026 statsagg authors.
// SPDX-License-Identifier: Apache-2.0

package statsagg

// MergeFromJSON folds one already-computed stats_agg summary into state
// (spec §4.4). It is the sfunc body of jsonb_stats_merge_agg(stats_agg),
// used for hierarchical roll-up (company -> region -> global) without
// re-scanning raw rows.
//
// A non-object aggJSON is tolerated (state unchanged) unless strict is
// true, matching Accumulate's handling of the same Open Question.
func MergeFromJSON(state *StatsState, aggJSON map[string]interface{}, strict bool) error {
	if aggJSON == nil {
		if strict {
			return invalidValue("stats_agg input is not an object")
		}
		return nil
	}

	for key, raw := range aggJSON {
		if key == "type" {
			continue
		}
		childObj, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		incoming, err := ParseAggEntry(childObj)
		if err != nil {
			return err
		}
		if err := mergeFieldInto(state, key, incoming); err != nil {
			return err
		}
	}
	return nil
}

// Combine folds b directly into a, one field at a time (spec §4.4's
// combinefunc path: the sole place two StatsState values meet). b is
// logically consumed; the caller must not read from it afterward.
func Combine(a, b *StatsState) error {
	if b.Empty() {
		return nil
	}
	for key, incoming := range b.Fields {
		if err := mergeFieldInto(a, key, incoming); err != nil {
			return err
		}
	}
	return nil
}

// mergeFieldInto merges one incoming AggEntry for `key` into state,
// inserting it directly if state has no prior entry for that key (spec
// §4.4's "merge identity with empty state" property falls out of this: an
// empty state has no keys to collide with, so every incoming entry is just
// inserted).
func mergeFieldInto(state *StatsState, key string, incoming *AggEntry) error {
	existing, has := state.Fields[key]
	if !has {
		state.Fields[key] = incoming
		return nil
	}
	return mergeEntries(existing, incoming, key)
}

// mergeEntries merges incoming into existing in place, dispatching on tag.
// Differing tags for the same field are always a TypeMismatch (spec §4.4),
// whether the entries arrived via JSON merge or a direct worker combine.
func mergeEntries(existing, incoming *AggEntry, key string) error {
	if existing.Tag != incoming.Tag {
		return typeMismatch(key, string(existing.Tag), string(incoming.Tag))
	}

	switch {
	case existing.Tag.isNumeric():
		existing.Num.merge(incoming.Num)
		return nil

	case existing.Tag.isCategory():
		mergeCounts(existing.Counts, incoming.Counts)
		return nil

	case existing.Tag == AggArrAgg:
		existing.Count += incoming.Count
		mergeCounts(existing.Counts, incoming.Counts)
		return nil

	case existing.Tag == AggDateAgg:
		mergeCounts(existing.Counts, incoming.Counts)
		existing.MinDate = minDate(existing.MinDate, incoming.MinDate)
		existing.MaxDate = maxDate(existing.MaxDate, incoming.MaxDate)
		return nil
	}
	return typeMismatch(key, string(existing.Tag), string(incoming.Tag))
}

// mergeCounts adds every key of other into dst in place.
func mergeCounts(dst, other map[string]int64) {
	for k, v := range other {
		dst[k] += v
	}
}

// minDate returns the lexicographically smaller of a, b, treating an empty
// string as "absent -> adopt the other" (spec §4.4).
func minDate(a, b string) string {
	if a == "" {
		return b
	}
	if b == "" {
		return a
	}
	if b < a {
		return b
	}
	return a
}

// maxDate returns the lexicographically larger of a, b, treating an empty
// string as "absent -> adopt the other" (spec §4.4).
func maxDate(a, b string) string {
	if a == "" {
		return b
	}
	if b == "" {
		return a
	}
	if b > a {
		return b
	}
	return a
}
