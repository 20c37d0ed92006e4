// Package movetable extracts per-entity move frame data from a raw
// memory slab.
//
// Entity move tables sit in clusters ending with a recognisable tail
// marker. Within a cluster, move anchors (animation headers, reached
// directly or through command/air prefixes) are paired with the nearest
// data blocks (meter, active frames, damage, attack property, hit
// reaction, stun) to yield startup/active/recovery and stun values.
//
// Extraction is pure: the same slab always yields the same table.
package movetable

import (
	"encoding/binary"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/roach88/framewatch/internal/config"
	"github.com/roach88/framewatch/internal/model"
)

// MoveKind classifies a move anchor.
type MoveKind string

const (
	KindNormal  MoveKind = "normal"
	KindSpecial MoveKind = "special"
	KindSuper   MoveKind = "super"
)

// normalNames names the normal attacks by the low byte of their id.
var normalNames = map[uint32]string{
	0x00: "5A", 0x01: "5B", 0x02: "5C",
	0x03: "2A", 0x04: "2B", 0x05: "2C",
	0x06: "6C", 0x08: "3C",
	0x09: "j.A", 0x0A: "j.B", 0x0B: "j.C",
	0x0E: "6B",
}

// defaultMeter is the meter gain used when no meter block pairs with a
// normal.
var defaultMeter = map[uint32]uint8{
	0x00: 0x32, 0x03: 0x32, 0x09: 0x32,
	0x01: 0x64, 0x04: 0x64, 0x0A: 0x64,
	0x02: 0x96, 0x05: 0x96, 0x0B: 0x96,
	0x06: 0x96, 0x08: 0x96, 0x0E: 0x96,
}

const specialDefaultMeter = 0xC8

// clusterToSlot maps the n-th cluster in memory order to its slot.
var clusterToSlot = [model.SlotCount]model.SlotID{
	model.SlotP1C1, model.SlotP2C1, model.SlotP1C2, model.SlotP2C2,
}

// Move is one extracted move entry.
type Move struct {
	Kind MoveKind            `json:"kind"`
	Addr model.Address       `json:"addr"`
	ID   model.Field[uint32] `json:"id"`
	Name string              `json:"name"`

	Meter          model.Field[uint8]   `json:"meter"`
	ActiveStart    model.Field[int]     `json:"active_start"`
	ActiveEnd      model.Field[int]     `json:"active_end"`
	Active2Start   model.Field[int]     `json:"active2_start"`
	Active2End     model.Field[int]     `json:"active2_end"`
	Damage         model.Field[uint32]  `json:"damage"`
	DamageFlag     model.Field[uint8]   `json:"damage_flag"`
	AttackProperty model.Field[uint8]   `json:"attack_property"`
	HitReaction    model.Field[uint32]  `json:"hit_reaction"`
	Hitstun        model.Field[int]     `json:"hitstun"`
	Blockstun      model.Field[int]     `json:"blockstun"`
	Hitstop        model.Field[int]     `json:"hitstop"`
	HitboxX        model.Field[float64] `json:"hitbox_x"`
	HitboxY        model.Field[float64] `json:"hitbox_y"`

	Recovery int `json:"recovery"`
	AdvHit   int `json:"adv_hit"`
	AdvBlock int `json:"adv_block"`
}

// FrameData converts the move to the shared frame-data shape.
func (m Move) FrameData() config.FrameData {
	fd := config.FrameData{
		MoveID:    m.ID.Value,
		Recovery:  int64(m.Recovery),
		Hitstun:   int64(m.Hitstun.Value),
		Blockstun: int64(m.Blockstun.Value),
	}
	if s, ok := m.ActiveStart.Get(); ok {
		fd.Startup = int64(s)
		if e, ok := m.ActiveEnd.Get(); ok && e >= s {
			fd.Active = int64(e - s + 1)
		}
	}
	return fd
}

// SlotMoves is the move list found for one slot.
type SlotMoves struct {
	Slot   model.SlotID `json:"slot"`
	Entity string       `json:"entity"`
	Moves  []Move       `json:"moves"`
}

// Table is the result of one deep scan.
type Table struct {
	Generation int                        `json:"generation"`
	ScannedAt  time.Time                  `json:"scanned_at"`
	Clusters   int                        `json:"clusters"`
	Slots      [model.SlotCount]SlotMoves `json:"slots"`
}

// FrameData implements the inferencer's runtime frame-data source.
func (t *Table) FrameData(slot model.SlotID, move uint32) (config.FrameData, bool) {
	if t == nil || !slot.Valid() {
		return config.FrameData{}, false
	}
	for _, m := range t.Slots[slot].Moves {
		if id, ok := m.ID.Get(); ok && id == move {
			return m.FrameData(), true
		}
	}
	return config.FrameData{}, false
}

// Len returns the total number of moves across slots.
func (t *Table) Len() int {
	n := 0
	for _, s := range t.Slots {
		n += len(s.Moves)
	}
	return n
}

// Namer supplies display names for scanned moves. It may be nil.
type Namer func(slot model.SlotID, move uint32) (string, bool)

// Extract scans a slab read from guest address base.
func Extract(buf []byte, base uint32, namer Namer) *Table {
	t := &Table{}
	for i := range t.Slots {
		t.Slots[i].Slot = model.SlotID(i)
	}

	clusters := clusterTails(findTails(buf))
	t.Clusters = len(clusters)
	for ci := 0; ci < len(clusters) && ci < model.SlotCount; ci++ {
		start := max(0, clusters[ci][0]-clusterPadBack)
		end := min(len(buf), start+clusterMaxSpan)
		if ci+1 < len(clusters) {
			end = clusters[ci+1][0]
		}
		slot := clusterToSlot[ci]
		t.Slots[slot].Moves = extractCluster(buf[start:end], base+uint32(start), slot, namer)
	}
	return t
}

func extractCluster(buf []byte, base uint32, slot model.SlotID, namer Namer) []Move {
	moves := findAnchors(buf, base)

	meters := collect(buf, base, len(meterHdr), parseMeter)
	actives := collect(buf, base, activeLen, parseActive)
	inlines := collect(buf, base, inlineActiveLen, parseInlineActive)
	damages := collect(buf, base, damageLen, parseDamage)
	props := collect(buf, base, atkPropLen, parseAtkProp)
	reactions := collect(buf, base, len(hitReactionHdr), parseHitReaction)
	stuns := collect(buf, base, stunLen, parseStun)

	for i := range moves {
		mv := &moves[i]
		anchor := mv.Addr.Uint32()
		rel := int(anchor - base)

		if mv.Kind == KindNormal {
			if m, ok := defaultMeter[mv.ID.Value&0xFF]; ok {
				mv.Meter = model.Known(m)
			}
		} else {
			mv.Meter = model.Known[uint8](specialDefaultMeter)
		}
		if b, ok := pickBest(anchor, meters); ok {
			mv.Meter = model.Known(b.data)
		}

		if b, ok := pickBest(anchor, actives); ok {
			mv.ActiveStart = model.Known(b.data.start)
			mv.ActiveEnd = model.Known(b.data.end)
		}

		if off := rel + inlineActiveOff; off >= 0 && off < len(buf)-inlineActiveLen {
			if r, ok := parseInlineActive(buf, off); ok {
				mv.Active2Start, mv.Active2End = model.Known(r.start), model.Known(r.end)
			}
		}
		if !mv.Active2Start.Valid {
			if b, ok := pickBest(anchor, inlines); ok {
				mv.Active2Start, mv.Active2End = model.Known(b.data.start), model.Known(b.data.end)
			}
		}

		if b, ok := pickBest(anchor, damages); ok {
			mv.Damage = model.Known(b.data.value)
			mv.DamageFlag = model.Known(b.data.flag)
		}
		if b, ok := pickBest(anchor, props); ok {
			mv.AttackProperty = model.Known(b.data)
		}
		if b, ok := pickBest(anchor, reactions); ok {
			mv.HitReaction = model.Known(b.data)
		}
		if b, ok := pickBest(anchor, stuns); ok {
			mv.Hitstun = model.Known(b.data.hitstun)
			mv.Blockstun = model.Known(b.data.blockstun)
			mv.Hitstop = model.Known(b.data.hitstop)
		}

		mv.HitboxX = readF32(buf, rel+hitboxOffX)
		mv.HitboxY = readF32(buf, rel+hitboxOffY)

		mv.Recovery = defaultRecovery
		if e, ok := mv.ActiveEnd.Get(); ok && e > 0 {
			mv.Recovery = max(0, defaultTotalFrames-e)
		}
		mv.AdvHit = mv.Hitstun.Value - mv.Recovery
		mv.AdvBlock = mv.Blockstun.Value - mv.Recovery

		mv.Name = moveName(slot, mv.ID, namer)
	}

	sortMoves(moves)
	return moves
}

// findAnchors is the first pass: every move anchor in the cluster.
func findAnchors(buf []byte, base uint32) []Move {
	var moves []Move
	anim := func(p int) Move {
		id, ok := animIDAfter(buf, p)
		kind := KindSpecial
		if ok {
			if _, normal := normalNames[id&0xFF]; normal {
				kind = KindNormal
			}
		}
		mv := Move{Kind: kind, Addr: model.AddressOf(base + uint32(p))}
		if ok {
			mv.ID = model.Known(id)
		}
		return mv
	}
	// follow searches for an animation header within the lookahead and
	// returns the offset just past it, or -1.
	follow := func(from int) int {
		to := min(from+lookahead, len(buf))
		for p := from; p < to; p++ {
			if animHdr.at(buf, p) {
				moves = append(moves, anim(p))
				return p + len(animHdr)
			}
		}
		return -1
	}

	for i := 0; i < len(buf); {
		switch {
		case superEndHdr.at(buf, i):
			moves = append(moves, Move{Kind: KindSuper, Addr: model.AddressOf(base + uint32(i))})
			i += len(superEndHdr)
		case airHdr.at(buf, i):
			i = max(i+len(airHdr), follow(i+len(airHdr)))
		case cmdHdr.at(buf, i):
			i = max(i+len(cmdHdr), follow(i+len(cmdHdr)+3))
		case animHdr.at(buf, i):
			moves = append(moves, anim(i))
			i += len(animHdr)
		case isSpecialFragment(buf, i):
			moves = append(moves, Move{
				Kind: KindSpecial,
				Addr: model.AddressOf(base + uint32(i)),
				ID:   model.Known(0x0100 | uint32(buf[i+1])),
			})
			i += 4
		default:
			i++
		}
	}
	return moves
}

// isSpecialFragment matches 01 XX 01 3C with XX in 0x01..0x1E.
func isSpecialFragment(buf []byte, i int) bool {
	if i+4 > len(buf) {
		return false
	}
	lo := buf[i+1]
	return buf[i] == 0x01 && buf[i+2] == 0x01 && buf[i+3] == 0x3C && lo >= 0x01 && lo <= 0x1E
}

func readF32(buf []byte, off int) model.Field[float64] {
	if off < 0 || off+4 > len(buf) {
		return model.Unknown[float64]()
	}
	f := float64(math.Float32frombits(binary.BigEndian.Uint32(buf[off:])))
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return model.Unknown[float64]()
	}
	return model.Known(f)
}

func moveName(slot model.SlotID, id model.Field[uint32], namer Namer) string {
	v, ok := id.Get()
	if !ok {
		return "anim_--"
	}
	if namer != nil {
		if n, ok := namer(slot, v); ok {
			return n
		}
	}
	if n, ok := normalNames[v&0xFF]; ok {
		return n
	}
	return fmt.Sprintf("anim_%04X", v)
}

// sortMoves orders specials and supers with ids >= 0x100 first, then
// normals, then anchors without an id; address breaks ties.
func sortMoves(moves []Move) {
	rank := func(m Move) (int, uint32) {
		switch {
		case !m.ID.Valid:
			return 2, 0xFFFF
		case m.ID.Value >= 0x0100:
			return 0, m.ID.Value
		default:
			return 1, m.ID.Value
		}
	}
	sort.SliceStable(moves, func(i, j int) bool {
		ri, idi := rank(moves[i])
		rj, idj := rank(moves[j])
		if ri != rj {
			return ri < rj
		}
		if idi != idj {
			return idi < idj
		}
		return moves[i].Addr.Uint32() < moves[j].Addr.Uint32()
	})
}
