package memory

import (
	"encoding/binary"
	"math"
	"sort"
	"sync"
)

// Image is a sparse, in-memory guest address space.
//
// Regions are added with Map; reads and writes that fall entirely inside
// one region succeed, anything else returns ErrUnmapped. Image backs the
// test suites, scenario replay and file dumps.
type Image struct {
	mu      sync.RWMutex
	regions []region // sorted by base
}

type region struct {
	base uint32
	data []byte
}

func (r region) end() uint64 {
	return uint64(r.base) + uint64(len(r.data))
}

// NewImage returns an empty image.
func NewImage() *Image {
	return &Image{}
}

// Map backs [base, base+len(data)) with a copy of data. A region that
// overlaps an existing one replaces the overlapping bytes in place when it
// fits inside it, otherwise it is added as a new region.
func (m *Image) Map(base uint32, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if r, ok := m.find(base, len(data)); ok {
		copy(r.data[base-r.base:], data)
		return
	}

	buf := make([]byte, len(data))
	copy(buf, data)
	m.regions = append(m.regions, region{base: base, data: buf})
	sort.Slice(m.regions, func(i, j int) bool { return m.regions[i].base < m.regions[j].base })
}

// Zero maps n zero bytes at base.
func (m *Image) Zero(base uint32, n int) {
	m.Map(base, make([]byte, n))
}

// find returns the region fully containing [addr, addr+n). Caller holds mu.
func (m *Image) find(addr uint32, n int) (region, bool) {
	i := sort.Search(len(m.regions), func(i int) bool { return m.regions[i].base > addr })
	if i == 0 {
		return region{}, false
	}
	r := m.regions[i-1]
	if uint64(addr)+uint64(n) > r.end() {
		return region{}, false
	}
	return r, true
}

// ReadRange implements Access. The returned slice is a copy.
func (m *Image) ReadRange(addr uint32, n int) ([]byte, error) {
	if n < 0 {
		return nil, &ReadError{Addr: addr, Len: n, Err: ErrUnmapped}
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.find(addr, n)
	if !ok {
		return nil, &ReadError{Addr: addr, Len: n, Err: ErrUnmapped}
	}
	out := make([]byte, n)
	copy(out, r.data[addr-r.base:])
	return out, nil
}

// WriteRange implements Access.
func (m *Image) WriteRange(addr uint32, b []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.find(addr, len(b))
	if !ok {
		return &ReadError{Addr: addr, Len: len(b), Err: ErrUnmapped}
	}
	copy(r.data[addr-r.base:], b)
	return nil
}

// PutU8 writes a byte, mapping it if needed.
func (m *Image) PutU8(addr uint32, v uint8) {
	m.put(addr, []byte{v})
}

// PutU32 writes a big-endian word, mapping it if needed.
func (m *Image) PutU32(addr uint32, v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	m.put(addr, b[:])
}

// PutF32 writes a big-endian single, mapping it if needed.
func (m *Image) PutF32(addr uint32, v float32) {
	m.PutU32(addr, math.Float32bits(v))
}

func (m *Image) put(addr uint32, b []byte) {
	if err := m.WriteRange(addr, b); err != nil {
		m.Map(addr, b)
	}
}

// Regions returns the mapped ranges as (base, length) pairs, lowest first.
func (m *Image) Regions() [][2]uint32 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([][2]uint32, len(m.regions))
	for i, r := range m.regions {
		out[i] = [2]uint32{r.base, uint32(len(r.data))}
	}
	return out
}
