package movetable

// block is a parsed data block at an absolute guest address.
type block[T any] struct {
	addr uint32
	data T
}

// collect walks buf and parses a block at every offset where parse
// succeeds, skipping advance bytes after each hit.
func collect[T any](buf []byte, base uint32, advance int, parse func([]byte, int) (T, bool)) []block[T] {
	var out []block[T]
	for p := 0; p < len(buf); {
		if d, ok := parse(buf, p); ok {
			out = append(out, block[T]{addr: base + uint32(p), data: d})
			p += advance
			continue
		}
		p++
	}
	return out
}

// pickBest pairs an anchor with the nearest block within pairRange,
// preferring blocks that follow the anchor.
func pickBest[T any](anchor uint32, blocks []block[T]) (block[T], bool) {
	var (
		best  block[T]
		dist  int64
		found bool
	)
	for _, b := range blocks {
		if b.addr < anchor {
			continue
		}
		d := int64(b.addr - anchor)
		if d <= pairRange && (!found || d < dist) {
			best, dist, found = b, d, true
		}
	}
	if found {
		return best, true
	}
	for _, b := range blocks {
		d := int64(b.addr) - int64(anchor)
		if d < 0 {
			d = -d
		}
		if d <= pairRange && (!found || d < dist) {
			best, dist, found = b, d, true
		}
	}
	return best, found
}

type frameRange struct {
	start, end int
}

type damage struct {
	value uint32
	flag  uint8
}

type stun struct {
	hitstun, blockstun, hitstop int
}

func parseMeter(buf []byte, p int) (uint8, bool) {
	if p+meterLen > len(buf) || !meterHdr.at(buf, p) {
		return 0, false
	}
	return buf[p+len(meterHdr)], true
}

// parseActive reads the 1-based first and last active frames.
func parseActive(buf []byte, p int) (frameRange, bool) {
	if p+activeLen > len(buf) || !activeHdr.at(buf, p) {
		return frameRange{}, false
	}
	return frameRange{start: int(buf[p+8]) + 1, end: int(buf[p+16]) + 1}, true
}

func parseInlineActive(buf []byte, p int) (frameRange, bool) {
	if p+inlineActiveLen > len(buf) || !inlineActiveHdr.at(buf, p) {
		return frameRange{}, false
	}
	s, e := int(buf[p+4]), int(buf[p+16])
	if s == 0 {
		return frameRange{}, false
	}
	if e < s {
		e = s
	}
	return frameRange{start: s, end: e}, true
}

func parseDamage(buf []byte, p int) (damage, bool) {
	if p+damageLen > len(buf) || !damageHdr.at(buf, p) {
		return damage{}, false
	}
	v := uint32(buf[p+5])<<16 | uint32(buf[p+6])<<8 | uint32(buf[p+7])
	return damage{value: v, flag: buf[p+15]}, true
}

func parseAtkProp(buf []byte, p int) (uint8, bool) {
	if p+atkPropLen > len(buf) || !atkPropHdr.at(buf, p) {
		return 0, false
	}
	return buf[p+len(atkPropHdr)], true
}

func parseHitReaction(buf []byte, p int) (uint32, bool) {
	if p+hitReactionLen > len(buf) || !hitReactionHdr.at(buf, p) {
		return 0, false
	}
	c := p + hitReactionCode
	return uint32(buf[c])<<16 | uint32(buf[c+1])<<8 | uint32(buf[c+2]), true
}

func parseStun(buf []byte, p int) (stun, bool) {
	if p+stunLen > len(buf) || !stunHdr.at(buf, p) {
		return stun{}, false
	}
	return stun{
		hitstun:   int(buf[p+15]),
		blockstun: int(buf[p+31]),
		hitstop:   int(buf[p+39]),
	}, true
}
