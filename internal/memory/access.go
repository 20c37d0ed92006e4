package memory

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// Access is the raw-memory port of the external process.
//
// Reads are synchronous and either return exactly n bytes or an error;
// a failed read is reported immediately and never retried by the caller
// within the same cycle. Implementations must be safe for use from the
// engine goroutine and one deep-scan goroutine at the same time.
type Access interface {
	ReadRange(addr uint32, n int) ([]byte, error)
	WriteRange(addr uint32, b []byte) error
}

// ErrUnmapped is returned for reads or writes outside any backed range.
var ErrUnmapped = errors.New("address not mapped")

// ErrReadOnly is returned by WriteRange on read-only sources.
var ErrReadOnly = errors.New("memory source is read-only")

// ReadU8 reads one byte.
func ReadU8(m Access, addr uint32) (uint8, error) {
	b, err := m.ReadRange(addr, 1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// ReadU32 reads a big-endian 32-bit word.
func ReadU32(m Access, addr uint32) (uint32, error) {
	b, err := m.ReadRange(addr, 4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

// ReadI32 reads a big-endian signed 32-bit word.
func ReadI32(m Access, addr uint32) (int32, error) {
	v, err := ReadU32(m, addr)
	return int32(v), err
}

// ReadF32 reads a big-endian IEEE-754 single. The value is returned as is;
// plausibility checks belong to the caller.
func ReadF32(m Access, addr uint32) (float32, error) {
	v, err := ReadU32(m, addr)
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(v), nil
}

// ReadError annotates a failed read with its address.
type ReadError struct {
	Addr uint32
	Len  int
	Err  error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("read 0x%08X+%d: %v", e.Addr, e.Len, e.Err)
}

func (e *ReadError) Unwrap() error {
	return e.Err
}
