// Package bitvec implements the small fixed-width bitvector used to track
// occupied backward-reference slots (spec.md 4.6 C8): a 32-bit bitvec of
// occupied indices, persisted as 4 big-endian bytes.
package bitvec

import "encoding/binary"

// Width is the number of slots one bitvec tracks.
const Width = 32

// BitVec32 is a 32-bit occupied-slot bitmap.
type BitVec32 uint32

// Decode parses the 4-byte big-endian encoding spec.md 4.6 specifies. An
// absent/empty byte slice decodes to the zero bitvec.
func Decode(b []byte) BitVec32 {
	if len(b) == 0 {
		return 0
	}
	var buf [4]byte
	copy(buf[:], b)
	return BitVec32(binary.BigEndian.Uint32(buf[:]))
}

// Encode renders v as its 4-byte big-endian form.
func (v BitVec32) Encode() []byte {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], uint32(v))
	return buf[:]
}

// IsSet reports whether slot i is occupied.
func (v BitVec32) IsSet(i int) bool {
	if i < 0 || i >= Width {
		return false
	}
	return v&(1<<uint(i)) != 0
}

// Set returns v with slot i marked occupied.
func (v BitVec32) Set(i int) BitVec32 {
	if i < 0 || i >= Width {
		return v
	}
	return v | (1 << uint(i))
}

// Clear returns v with slot i marked free.
func (v BitVec32) Clear(i int) BitVec32 {
	if i < 0 || i >= Width {
		return v
	}
	return v &^ (1 << uint(i))
}

// FirstFree returns the lowest-numbered unoccupied slot, or -1 if every slot
// in Width is occupied (a backward-reference count spec.md never bounds in
// practice, but the fixed-width bitvec caps concurrently tracked slots).
func (v BitVec32) FirstFree() int {
	for i := 0; i < Width; i++ {
		if !v.IsSet(i) {
			return i
		}
	}
	return -1
}

// Occupied returns every currently-set slot index, ascending.
func (v BitVec32) Occupied() []int {
	var out []int
	for i := 0; i < Width; i++ {
		if v.IsSet(i) {
			out = append(out, i)
		}
	}
	return out
}
