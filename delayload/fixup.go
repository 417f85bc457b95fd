package delayload

import "encoding/binary"

var le = binary.LittleEndian

func put32(buf []byte, off int, v uint32) {
	le.PutUint32(buf[off:], v)
}

// arm64Page patches the 21-bit page delta of an ADRP at off so that it
// addresses the 4 KiB page of s from an instruction at p.
func arm64Page(buf []byte, off int, s, p uint32) {
	imm := (int64(s>>12) - int64(p>>12)) & 0x1FFFFF
	insn := le.Uint32(buf[off:])
	const mask = 0x3<<29 | 0x1FFFFC<<3
	insn = insn&^mask | uint32(imm&0x3)<<29 | uint32(imm&0x1FFFFC)<<3
	le.PutUint32(buf[off:], insn)
}

// arm64Lo12 adds the low 12 bits of s to the immediate of an ADD at off.
func arm64Lo12(buf []byte, off int, s uint32) {
	insn := le.Uint32(buf[off:])
	imm := (insn>>10)&0xFFF + s&0xFFF
	insn = insn&^(0xFFF<<10) | (imm&0xFFF)<<10
	le.PutUint32(buf[off:], insn)
}

// arm64Branch26 sets the word displacement of a B or BL at off.
func arm64Branch26(buf []byte, off int, delta int32) {
	insn := le.Uint32(buf[off:])
	insn |= uint32(delta) & 0x0FFFFFFC >> 2
	le.PutUint32(buf[off:], insn)
}

// thumbMov sets the 16-bit immediate of a Thumb-2 MOVW or MOVT at off.
func thumbMov(buf []byte, off int, v uint16) {
	hi := le.Uint16(buf[off:])
	lo := le.Uint16(buf[off+2:])
	hi = hi&0xFBF0 | (v&0x800)>>1 | (v>>12)&0xF
	lo = lo&0x8F00 | (v&0x700)<<4 | v&0xFF
	le.PutUint16(buf[off:], hi)
	le.PutUint16(buf[off+2:], lo)
}

// thumbMov32 loads v through the MOVW/MOVT pair at off.
func thumbMov32(buf []byte, off int, v uint32) {
	thumbMov(buf, off, uint16(v))
	thumbMov(buf, off+4, uint16(v>>16))
}

// thumbBranch24 sets the displacement of a Thumb-2 B.W or BL at off.
func thumbBranch24(buf []byte, off int, v int32) {
	var s uint16
	if v < 0 {
		s = 1
	}
	j1 := uint16(^v>>23)&1 ^ s
	j2 := uint16(^v>>22)&1 ^ s
	hi := le.Uint16(buf[off:])
	lo := le.Uint16(buf[off+2:])
	hi = hi&0xF800 | s<<10 | uint16(v>>12)&0x3FF
	lo = lo&0xD000 | j1<<13 | j2<<11 | uint16(v>>1)&0x7FF
	le.PutUint16(buf[off:], hi)
	le.PutUint16(buf[off+2:], lo)
}
