// Copyright (c) 2026 statsagg authors.
// SPDX-License-Identifier: Apache-2.0

package statsagg

import (
	"bytes"
	"encoding/binary"
	"io"
	"math"
)

// Serialize/Deserialize are the serialfunc/deserialfunc half of the
// parallel-worker protocol (spec §4.6/§5): they ship a StatsState between
// workers and the coordinator without going through JSON, so the wire
// format dominates neither CPU nor allocation on the hot path the way a
// per-row JSON round-trip would (see §9's design note on why the state is
// kept as a native handle between sfunc calls).
//
// The frame is a fixed header in the same spirit as a disk block header
// (magic + version + field count) followed by one record per field: a
// length-prefixed key, a one-byte tag code, and the entry body for that
// tag (six 8-byte NumFields words, or a length-prefixed counts list plus
// the arr count or the date min/max strings).
const (
	wireMagic   uint32 = 0x53544731 // "STG1"
	wireVersion uint8  = 1
)

// tagCode is the fixed (non-versioned) numeric code for each closed
// AggType. The variant set is closed by the spec's own design (§9), so
// this is a plain const table rather than a mutable/extensible schema
// registry — see DESIGN.md for why the teacher's versioned SchemaSet was
// not ported here.
var tagCode = map[AggType]byte{
	AggIntAgg:   1,
	AggFloatAgg: 2,
	AggDec2Agg:  3,
	AggNatAgg:   4,
	AggStrAgg:   5,
	AggBoolAgg:  6,
	AggArrAgg:   7,
	AggDateAgg:  8,
}

var codeTag = func() map[byte]AggType {
	m := make(map[byte]AggType, len(tagCode))
	for t, c := range tagCode {
		m[c] = t
	}
	return m
}()

// Serialize encodes state into a compact binary form for inter-worker
// transport. Any byte format would satisfy the spec's contract (it only
// requires an exact round-trip); this one is chosen to avoid the
// allocation and encode overhead of re-marshaling through JSON on every
// worker handoff.
func Serialize(state *StatsState) ([]byte, error) {
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, wireMagic); err != nil {
		return nil, wrapSerializationFailed(err)
	}
	if err := buf.WriteByte(wireVersion); err != nil {
		return nil, wrapSerializationFailed(err)
	}
	if err := binary.Write(&buf, binary.LittleEndian, uint32(len(state.Fields))); err != nil {
		return nil, wrapSerializationFailed(err)
	}

	for key, entry := range state.Fields {
		code, ok := tagCode[entry.Tag]
		if !ok {
			return nil, wrapSerializationFailed(unknownAggType(string(entry.Tag)))
		}
		if err := writeString(&buf, key); err != nil {
			return nil, wrapSerializationFailed(err)
		}
		if err := buf.WriteByte(code); err != nil {
			return nil, wrapSerializationFailed(err)
		}
		if err := writeEntry(&buf, entry); err != nil {
			return nil, wrapSerializationFailed(err)
		}
	}

	return buf.Bytes(), nil
}

// Deserialize decodes bytes produced by Serialize back into a StatsState.
func Deserialize(data []byte) (*StatsState, error) {
	r := bytes.NewReader(data)

	var magic uint32
	if err := binary.Read(r, binary.LittleEndian, &magic); err != nil {
		return nil, wrapDeserializationFailed(err)
	}
	if magic != wireMagic {
		return nil, wrapDeserializationFailed(errBadMagic)
	}

	version, err := r.ReadByte()
	if err != nil {
		return nil, wrapDeserializationFailed(err)
	}
	if version != wireVersion {
		return nil, wrapDeserializationFailed(errBadVersion)
	}

	var count uint32
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return nil, wrapDeserializationFailed(err)
	}

	state := NewStatsState()
	for i := uint32(0); i < count; i++ {
		key, err := readString(r)
		if err != nil {
			return nil, wrapDeserializationFailed(err)
		}
		code, err := r.ReadByte()
		if err != nil {
			return nil, wrapDeserializationFailed(err)
		}
		tag, ok := codeTag[code]
		if !ok {
			return nil, wrapDeserializationFailed(unknownAggType(""))
		}
		entry, err := readEntry(r, tag)
		if err != nil {
			return nil, wrapDeserializationFailed(err)
		}
		state.Fields[key] = entry
	}

	return state, nil
}

func writeEntry(buf *bytes.Buffer, entry *AggEntry) error {
	switch {
	case entry.Tag.isNumeric():
		return writeNumFields(buf, entry.Num)
	case entry.Tag.isCategory():
		return writeCounts(buf, entry.Counts)
	case entry.Tag == AggArrAgg:
		if err := binary.Write(buf, binary.LittleEndian, entry.Count); err != nil {
			return err
		}
		return writeCounts(buf, entry.Counts)
	case entry.Tag == AggDateAgg:
		if err := writeString(buf, entry.MinDate); err != nil {
			return err
		}
		if err := writeString(buf, entry.MaxDate); err != nil {
			return err
		}
		return writeCounts(buf, entry.Counts)
	}
	return unknownAggType(string(entry.Tag))
}

func readEntry(r *bytes.Reader, tag AggType) (*AggEntry, error) {
	switch {
	case tag.isNumeric():
		n, err := readNumFields(r)
		if err != nil {
			return nil, err
		}
		return &AggEntry{Tag: tag, Num: n}, nil
	case tag.isCategory():
		counts, err := readCounts(r)
		if err != nil {
			return nil, err
		}
		return &AggEntry{Tag: tag, Counts: counts}, nil
	case tag == AggArrAgg:
		var count int64
		if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
			return nil, err
		}
		counts, err := readCounts(r)
		if err != nil {
			return nil, err
		}
		return &AggEntry{Tag: tag, Count: count, Counts: counts}, nil
	case tag == AggDateAgg:
		minDate, err := readString(r)
		if err != nil {
			return nil, err
		}
		maxDate, err := readString(r)
		if err != nil {
			return nil, err
		}
		counts, err := readCounts(r)
		if err != nil {
			return nil, err
		}
		return &AggEntry{Tag: tag, MinDate: minDate, MaxDate: maxDate, Counts: counts}, nil
	}
	return nil, unknownAggType(string(tag))
}

func writeNumFields(buf *bytes.Buffer, n *NumFields) error {
	values := [6]uint64{
		uint64(n.Count),
		math.Float64bits(n.Sum),
		math.Float64bits(n.Min),
		math.Float64bits(n.Max),
		math.Float64bits(n.Mean),
		math.Float64bits(n.SumSqDiff),
	}
	for _, v := range values {
		if err := binary.Write(buf, binary.LittleEndian, v); err != nil {
			return err
		}
	}
	return nil
}

func readNumFields(r *bytes.Reader) (*NumFields, error) {
	var raw [6]uint64
	for i := range raw {
		if err := binary.Read(r, binary.LittleEndian, &raw[i]); err != nil {
			return nil, err
		}
	}
	return &NumFields{
		Count:     int64(raw[0]),
		Sum:       math.Float64frombits(raw[1]),
		Min:       math.Float64frombits(raw[2]),
		Max:       math.Float64frombits(raw[3]),
		Mean:      math.Float64frombits(raw[4]),
		SumSqDiff: math.Float64frombits(raw[5]),
	}, nil
}

func writeCounts(buf *bytes.Buffer, counts map[string]int64) error {
	if err := binary.Write(buf, binary.LittleEndian, uint32(len(counts))); err != nil {
		return err
	}
	for k, v := range counts {
		if err := writeString(buf, k); err != nil {
			return err
		}
		if err := binary.Write(buf, binary.LittleEndian, v); err != nil {
			return err
		}
	}
	return nil
}

func readCounts(r *bytes.Reader) (map[string]int64, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, err
	}
	counts := make(map[string]int64, n)
	for i := uint32(0); i < n; i++ {
		k, err := readString(r)
		if err != nil {
			return nil, err
		}
		var v int64
		if err := binary.Read(r, binary.LittleEndian, &v); err != nil {
			return nil, err
		}
		counts[k] = v
	}
	return counts, nil
}

func writeString(buf *bytes.Buffer, s string) error {
	if err := binary.Write(buf, binary.LittleEndian, uint32(len(s))); err != nil {
		return err
	}
	_, err := buf.WriteString(s)
	return err
}

func readString(r *bytes.Reader) (string, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return "", err
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", err
	}
	return string(b), nil
}

func wrapSerializationFailed(err error) error {
	return &wireError{kind: ErrSerializationFailed, cause: err}
}

func wrapDeserializationFailed(err error) error {
	return &wireError{kind: ErrDeserializationFailed, cause: err}
}

type wireError struct {
	kind  error
	cause error
}

func (e *wireError) Error() string { return e.kind.Error() + ": " + e.cause.Error() }
func (e *wireError) Unwrap() error { return e.kind }

var (
	errBadMagic   = errBadFrame("bad frame magic")
	errBadVersion = errBadFrame("unsupported frame version")
)

type errBadFrame string

func (e errBadFrame) Error() string { return string(e) }
