package movetable

import "bytes"

// wc matches any byte.
const wc = -1

// pattern is a byte signature; negative entries are wildcards.
type pattern []int16

func (p pattern) at(buf []byte, pos int) bool {
	if pos < 0 || pos+len(p) > len(buf) {
		return false
	}
	for i, b := range p {
		if b >= 0 && buf[pos+i] != byte(b) {
			return false
		}
	}
	return true
}

var tailMarker = []byte{0x00, 0x00, 0x00, 0x38, 0x01, 0x33, 0x00, 0x00}

const (
	clusterGap      = 0x4000
	clusterPadBack  = 0x400
	clusterMaxSpan  = 0x8000
	lookahead       = 0x80
	pairRange       = 0x600
	inlineActiveOff = 0xB0
	hitboxOffX      = 0x40
	hitboxOffY      = 0x48

	// defaultTotalFrames is the assumed move length when computing recovery.
	defaultTotalFrames = 0x3C
	defaultRecovery    = 12
)

// Move anchors.
var (
	animHdr = pattern{
		0x04, 0x01, 0x60, 0x00,
		0x00, 0x00, 0x01, 0xE8,
		0x3F, 0x00, 0x00, 0x00,
	}
	cmdHdr = pattern{
		0x04, 0x03, 0x60, 0x00,
		0x00, 0x00, 0x13, 0xCC,
		0x3F, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x08,
		0x01, 0x34, 0x00, 0x00, 0x00,
	}
	airHdr = pattern{
		0x33, 0x33, 0x20, 0x00,
		0x01, 0x34, 0x00, 0x00, 0x00,
	}
	superEndHdr = pattern{
		0x04, 0x01, 0x60, 0x00,
		0x00, 0x00, 0x12, 0x18, 0x3F,
	}
)

// Data blocks paired with anchors by proximity.
var (
	meterHdr = pattern{
		0x34, 0x04, 0x00, 0x20,
		0x00, 0x00, 0x00, 0x03,
		0x00, 0x00, 0x00, 0x00,
		0x36, 0x43, 0x00, 0x20,
		0x00, 0x00, 0x00,
		0x36, 0x43, 0x00, 0x20,
		0x00, 0x00, 0x00,
	}
	activeHdr = pattern{
		0x20, 0x35, 0x01, 0x20,
		0x3F, 0x00, 0x00, 0x00,
	}
	inlineActiveHdr = pattern{
		0x3F, 0x00, 0x00, 0x00,
		wc,
		0x11, 0x16, 0x20, 0x00,
		0x11, 0x22, 0x60, 0x00,
		0x00, 0x00, 0x00,
		wc,
	}

	damageHdr = pattern{0x35, 0x10, 0x20, 0x3F, 0x00}

	atkPropHdr = pattern{
		0x04, 0x01, 0x60, 0x00,
		0x00, 0x00, 0x02, 0x40,
		0x3F, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00,
	}
	hitReactionHdr = pattern{
		0x04, 0x17, 0x60, 0x00,
		0x00, 0x00, 0x02, 0x40,
		0x3F, 0x00, 0x00, 0x00,
		0x80, 0x04, 0x2F, 0x00,
		0x04, 0x15, 0x60, 0x00,
		0x00, 0x00, 0x02, 0x40,
		0x3F, 0x00, 0x00, 0x00,
	}
	stunHdr = pattern{
		0x04, 0x01, 0x60, 0x00, 0x00, 0x00, 0x02, 0x54,
		0x3F, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, wc,
		0x04, 0x01, 0x60, 0x00, 0x00, 0x00, 0x02, 0x58,
		0x3F, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, wc,
		0x33, 0x32, 0x00, 0x20, 0x00, 0x00, 0x00, wc,
		0x04, 0x15, 0x60,
	}
)

const (
	meterLen        = 26 + 5
	activeLen       = 20
	inlineActiveLen = 17
	damageLen       = 16
	atkPropLen      = 17
	hitReactionLen  = 28 + 3 // header plus the 24-bit reaction code
	hitReactionCode = 28
	stunLen         = 43
)

// findTails returns every offset of the tail marker.
func findTails(buf []byte) []int {
	var offs []int
	for p := 0; p < len(buf); {
		i := bytes.Index(buf[p:], tailMarker)
		if i < 0 {
			break
		}
		offs = append(offs, p+i)
		p += i + 1
	}
	return offs
}

// clusterTails groups sorted tail offsets separated by at most clusterGap.
func clusterTails(tails []int) [][]int {
	if len(tails) == 0 {
		return nil
	}
	var clusters [][]int
	cur := []int{tails[0]}
	for _, t := range tails[1:] {
		if t-cur[len(cur)-1] <= clusterGap {
			cur = append(cur, t)
			continue
		}
		clusters = append(clusters, cur)
		cur = []int{t}
	}
	return append(clusters, cur)
}

// animIDAfter looks for the hi/lo/op/fps quad following an animation
// header. fps must be 0x3C, op 1 or 4, and the id within 1..0x500.
func animIDAfter(buf []byte, hdrPos int) (uint32, bool) {
	start := hdrPos + len(animHdr)
	end := min(start+lookahead, len(buf))
	for p := start; p+4 <= end; p++ {
		hi, lo, op, fps := buf[p], buf[p+1], buf[p+2], buf[p+3]
		if fps != 0x3C || (op != 0x01 && op != 0x04) {
			continue
		}
		id := uint32(hi)<<8 | uint32(lo)
		if id >= 1 && id <= 0x0500 {
			return id, true
		}
	}
	return 0, false
}
