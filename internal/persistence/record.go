// Package persistence converts downed state to and from the entity save
// document. Helpers are a runtime relationship and are never written.
package persistence

import (
	"errors"
	"fmt"
	"math"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/gqrshy/tacticalrevive/internal/domain/downed"
)

// Namespace is the key of the downed section inside a save document.
const Namespace = "tacticalrevive:bleeding"

var (
	// ErrNoRecord means the document has no downed section.
	ErrNoRecord = errors.New("persistence: no downed record")
	// ErrCorruptRecord means the section exists but cannot be trusted.
	ErrCorruptRecord = errors.New("persistence: corrupt downed record")
)

// Record is the durable part of a downed state.
type Record struct {
	Bleeding       bool    `msgpack:"bleeding"`
	TimeLeft       int32   `msgpack:"timeLeft"`
	DownedTime     int32   `msgpack:"downedTime"`
	ReviveProgress float32 `msgpack:"reviveProgress"`
}

// wireRecord detects missing fields.
type wireRecord struct {
	Bleeding       *bool    `msgpack:"bleeding"`
	TimeLeft       *int32   `msgpack:"timeLeft"`
	DownedTime     *int32   `msgpack:"downedTime"`
	ReviveProgress *float32 `msgpack:"reviveProgress"`
}

// FromState captures the durable fields of st.
func FromState(st *downed.State) Record {
	if st == nil || !st.Bleeding {
		return Record{}
	}
	return Record{
		Bleeding:       true,
		TimeLeft:       clampInt32(st.TimeLeft),
		DownedTime:     clampInt32(st.DownedTime),
		ReviveProgress: st.ReviveProgress,
	}
}

// Apply overwrites st with rec. Helpers and cause always come back empty.
func (rec Record) Apply(st *downed.State) {
	st.Reset()
	if !rec.Bleeding {
		return
	}
	st.Bleeding = true
	st.TimeLeft = int(rec.TimeLeft)
	st.DownedTime = int(rec.DownedTime)
	st.ReviveProgress = rec.ReviveProgress
}

// Validate reports whether rec describes a reachable state.
func (rec Record) Validate() error {
	if !rec.Bleeding {
		if rec.TimeLeft != 0 || rec.DownedTime != 0 || rec.ReviveProgress != 0 {
			return fmt.Errorf("%w: healthy record carries counters", ErrCorruptRecord)
		}
		return nil
	}
	if rec.TimeLeft < 0 || rec.DownedTime < 0 {
		return fmt.Errorf("%w: negative counter", ErrCorruptRecord)
	}
	p := float64(rec.ReviveProgress)
	if math.IsNaN(p) || math.IsInf(p, 0) || p < 0 {
		return fmt.Errorf("%w: progress %v", ErrCorruptRecord, rec.ReviveProgress)
	}
	return nil
}

// EncodeRecord marshals rec on its own.
func EncodeRecord(rec Record) ([]byte, error) {
	return msgpack.Marshal(&rec)
}

// DecodeRecord unmarshals and validates a section. Any failure yields
// ErrCorruptRecord; the caller must fall back to the healthy baseline.
func DecodeRecord(b []byte) (Record, error) {
	var w wireRecord
	if err := msgpack.Unmarshal(b, &w); err != nil {
		return Record{}, fmt.Errorf("%w: %v", ErrCorruptRecord, err)
	}
	if w.Bleeding == nil || w.TimeLeft == nil || w.DownedTime == nil || w.ReviveProgress == nil {
		return Record{}, fmt.Errorf("%w: missing field", ErrCorruptRecord)
	}
	rec := Record{
		Bleeding:       *w.Bleeding,
		TimeLeft:       *w.TimeLeft,
		DownedTime:     *w.DownedTime,
		ReviveProgress: *w.ReviveProgress,
	}
	if err := rec.Validate(); err != nil {
		return Record{}, err
	}
	return rec, nil
}

func clampInt32(v int) int32 {
	if v > math.MaxInt32 {
		return math.MaxInt32
	}
	if v < 0 {
		return 0
	}
	return int32(v)
}
