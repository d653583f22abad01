// Package protocol defines the wire formats between the authoritative server
// and its observers: the binary downed-state update and the JSON command
// envelope.
package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/google/uuid"
)

var (
	ErrShortPacket = errors.New("protocol: short packet")
	ErrBadBool     = errors.New("protocol: invalid boolean byte")
	ErrBadVarint   = errors.New("protocol: malformed varint")
	ErrTrailing    = errors.New("protocol: trailing bytes")
)

// Update is the authoritative downed state of one entity.
type Update struct {
	EntityID       uuid.UUID
	Bleeding       bool
	TimeLeft       uint32
	ReviveProgress float32
}

// MaxUpdateSize bounds an encoded Update.
const MaxUpdateSize = 16 + 1 + binary.MaxVarintLen32 + 4

// AppendUpdate appends the wire form of u to dst:
// 16-byte id, 1-byte bool, uvarint timeLeft, big-endian float32 progress.
func AppendUpdate(dst []byte, u Update) []byte {
	dst = append(dst, u.EntityID[:]...)
	if u.Bleeding {
		dst = append(dst, 1)
	} else {
		dst = append(dst, 0)
	}
	dst = binary.AppendUvarint(dst, uint64(u.TimeLeft))
	return binary.BigEndian.AppendUint32(dst, math.Float32bits(u.ReviveProgress))
}

// EncodeUpdate returns the wire form of u.
func EncodeUpdate(u Update) []byte {
	return AppendUpdate(make([]byte, 0, MaxUpdateSize), u)
}

// DecodeUpdate parses exactly one Update from b.
func DecodeUpdate(b []byte) (Update, error) {
	var u Update
	if len(b) < 16+1+1+4 {
		return u, ErrShortPacket
	}
	copy(u.EntityID[:], b[:16])

	switch b[16] {
	case 0:
	case 1:
		u.Bleeding = true
	default:
		return u, fmt.Errorf("%w: 0x%02x", ErrBadBool, b[16])
	}

	rest := b[17:]
	timeLeft, n := binary.Uvarint(rest)
	if n <= 0 || timeLeft > math.MaxUint32 {
		return u, ErrBadVarint
	}
	u.TimeLeft = uint32(timeLeft)
	rest = rest[n:]

	if len(rest) < 4 {
		return u, ErrShortPacket
	}
	if len(rest) > 4 {
		return u, ErrTrailing
	}
	u.ReviveProgress = math.Float32frombits(binary.BigEndian.Uint32(rest))
	return u, nil
}
