package config

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"
)

type pairKey struct {
	move   uint32
	entity uint32
}

// MoveLabels maps move ids to human-readable labels.
//
// Lookup order: the (move, entity) pair first, then the generic label
// for the move, then FLAG_<id>. Flag ids never produce a label.
type MoveLabels struct {
	pairs   map[pairKey]string
	generic map[uint32]string
	flags   map[uint32]struct{}
}

// NewMoveLabels returns an empty label table.
func NewMoveLabels() *MoveLabels {
	return &MoveLabels{
		pairs:   make(map[pairKey]string),
		generic: make(map[uint32]string),
		flags:   make(map[uint32]struct{}),
	}
}

// SetPair records a label specific to one entity type.
func (m *MoveLabels) SetPair(move, entity uint32, label string) {
	m.pairs[pairKey{move, entity}] = norm.NFC.String(strings.TrimSpace(label))
}

// SetGeneric records an entity-agnostic label.
func (m *MoveLabels) SetGeneric(move uint32, label string) {
	m.generic[move] = norm.NFC.String(strings.TrimSpace(label))
}

// MarkFlag excludes id from labelling.
func (m *MoveLabels) MarkFlag(id uint32) {
	m.flags[id] = struct{}{}
}

// IsFlag reports whether id is an excluded flag value.
func (m *MoveLabels) IsFlag(id uint32) bool {
	_, ok := m.flags[id]
	return ok
}

// Lookup returns the label for a move performed by an entity type.
func (m *MoveLabels) Lookup(move, entity uint32) string {
	if m.IsFlag(move) {
		return ""
	}
	if l, ok := m.Label(move, entity); ok {
		return l
	}
	return fmt.Sprintf("FLAG_%d", move)
}

// Label is Lookup without the FLAG_<id> fallback.
func (m *MoveLabels) Label(move, entity uint32) (string, bool) {
	if m.IsFlag(move) {
		return "", false
	}
	if l, ok := m.pairs[pairKey{move, entity}]; ok {
		return l, true
	}
	l, ok := m.generic[move]
	return l, ok
}

// Len returns the number of pair and generic labels.
func (m *MoveLabels) Len() int {
	return len(m.pairs) + len(m.generic)
}

// ReadCSV merges labels from a CSV stream with a header row.
//
// Accepted columns: atk_id_dec or atk_id (required); char_id (optional,
// makes the row a pair label); generic_label or top_label or label.
// Rows with an unparsable id or an empty label are skipped. Returns the
// number of rows merged.
func (m *MoveLabels) ReadCSV(r io.Reader) (int, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return 0, nil
		}
		return 0, fmt.Errorf("read label header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, h := range header {
		col[strings.ToLower(strings.TrimSpace(h))] = i
	}

	get := func(rec []string, names ...string) string {
		for _, n := range names {
			if i, ok := col[n]; ok && i < len(rec) {
				if v := strings.TrimSpace(rec[i]); v != "" {
					return v
				}
			}
		}
		return ""
	}

	merged := 0
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return merged, fmt.Errorf("read label row: %w", err)
		}

		move, err := parseID(get(rec, "atk_id_dec", "atk_id"))
		if err != nil {
			continue
		}
		label := get(rec, "generic_label", "top_label", "label")
		if label == "" {
			continue
		}

		if cid := get(rec, "char_id"); cid != "" {
			entity, err := parseID(cid)
			if err != nil {
				continue
			}
			m.SetPair(move, entity, label)
		} else {
			m.SetGeneric(move, label)
		}
		merged++
	}
	return merged, nil
}

// parseID accepts decimal, 0x-prefixed hex and negative ids (-1 wraps
// to 0xFFFFFFFF).
func parseID(s string) (uint32, error) {
	if s == "" {
		return 0, errors.New("empty id")
	}
	v, err := strconv.ParseInt(s, 0, 64)
	if err != nil {
		return 0, err
	}
	return uint32(v), nil
}
