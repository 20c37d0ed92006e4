package model

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind categorizes the local, non-fatal failures of a polling cycle.
//
// Kinds are bit flags so a snapshot can carry several at once (FaultSet).
type ErrorKind uint8

const (
	// KindInvalidPointer: an anchor or indirection failed validation.
	KindInvalidPointer ErrorKind = 1 << iota

	// KindOutOfRange: a decoded value fell outside its plausible band.
	KindOutOfRange

	// KindStaleRead: values held unchanged across more cycles than allowed.
	KindStaleRead

	// KindAmbiguousField: variance sampling has not settled on an offset yet.
	KindAmbiguousField

	// KindWriteRejected: a debug write was refused or failed.
	KindWriteRejected
)

var kindNames = []struct {
	kind ErrorKind
	name string
}{
	{KindInvalidPointer, "INVALID_POINTER"},
	{KindOutOfRange, "OUT_OF_RANGE"},
	{KindStaleRead, "STALE_READ"},
	{KindAmbiguousField, "AMBIGUOUS_FIELD_UNRESOLVED"},
	{KindWriteRejected, "WRITE_REJECTED"},
}

// String returns the stable code for a single kind.
func (k ErrorKind) String() string {
	for _, kn := range kindNames {
		if kn.kind == k {
			return kn.name
		}
	}
	return fmt.Sprintf("ErrorKind(%d)", uint8(k))
}

// ParseErrorKind maps a stable code back to its kind.
func ParseErrorKind(code string) (ErrorKind, bool) {
	for _, kn := range kindNames {
		if kn.name == code {
			return kn.kind, true
		}
	}
	return 0, false
}

// FaultSet is the set of error kinds observed while producing one snapshot.
type FaultSet uint8

// Add returns the set with k included.
func (f FaultSet) Add(k ErrorKind) FaultSet {
	return f | FaultSet(k)
}

// Has reports whether k is in the set.
func (f FaultSet) Has(k ErrorKind) bool {
	return f&FaultSet(k) != 0
}

// Empty reports whether no faults were recorded.
func (f FaultSet) Empty() bool {
	return f == 0
}

// String lists the kinds joined by "|", or "ok".
func (f FaultSet) String() string {
	if f == 0 {
		return "ok"
	}
	var parts []string
	for _, kn := range kindNames {
		if f.Has(kn.kind) {
			parts = append(parts, kn.name)
		}
	}
	return strings.Join(parts, "|")
}

// MarshalText renders the fault set for JSON output.
func (f FaultSet) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

// Error is a structured, locally-handled cycle error.
type Error struct {
	Kind    ErrorKind
	Slot    SlotID
	Field   string
	Addr    uint32
	Message string
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.String())
	b.WriteString(": ")
	b.WriteString(e.Message)
	if e.Slot.Valid() {
		fmt.Fprintf(&b, " (slot=%s", e.Slot)
		if e.Field != "" {
			fmt.Fprintf(&b, ", field=%s", e.Field)
		}
		b.WriteString(")")
	} else if e.Field != "" {
		fmt.Fprintf(&b, " (field=%s)", e.Field)
	}
	if e.Addr != 0 {
		fmt.Fprintf(&b, " @0x%08X", e.Addr)
	}
	return b.String()
}

// NewError builds an *Error not tied to a slot.
func NewError(kind ErrorKind, addr uint32, format string, args ...any) *Error {
	return &Error{
		Kind:    kind,
		Slot:    SlotNone,
		Addr:    addr,
		Message: fmt.Sprintf(format, args...),
	}
}

// IsKind reports whether err (or anything it wraps) is an *Error of kind k.
func IsKind(err error, k ErrorKind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == k
	}
	return false
}
