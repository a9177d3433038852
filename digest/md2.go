package digest

// MD2 per RFC 1319. Neither the standard library nor any library in
// the dependency set used elsewhere in this module provides MD2 (it
// predates the hash.Hash ecosystem and was dropped from most modern
// crypto libraries); this is a direct, self-contained implementation
// rather than an adaptation of an existing package, kept to the same
// Digest trait as every other algorithm in this package.
//
// The source this module's design is based on registered its MD2
// alias against the SHA-512 state machine instead of MD2 — a copy-paste
// typo in its hash table. That bug is not reproduced here: New(MD2)
// always returns an actual MD2 digest.

const md2BlockSize = 16

// md2SBox is RFC 1319's permutation of 0..255, derived from the
// digits of pi.
var md2SBox = [256]byte{
	41, 46, 67, 201, 162, 216, 124, 1, 61, 54, 84, 161, 236, 240, 6, 19,
	98, 167, 5, 243, 192, 199, 115, 140, 152, 147, 43, 217, 188, 76, 130, 202,
	30, 155, 87, 60, 253, 212, 224, 22, 103, 66, 111, 24, 138, 23, 229, 18,
	190, 78, 196, 214, 218, 158, 222, 73, 160, 251, 245, 142, 187, 47, 238, 122,
	169, 104, 121, 145, 21, 178, 7, 63, 148, 194, 16, 137, 11, 34, 95, 33,
	128, 127, 93, 154, 90, 144, 50, 39, 53, 62, 204, 231, 191, 247, 151, 3,
	255, 25, 48, 179, 72, 165, 181, 209, 215, 94, 146, 42, 172, 86, 170, 198,
	79, 184, 56, 210, 150, 164, 125, 182, 118, 252, 107, 226, 156, 116, 4, 241,
	69, 157, 112, 89, 100, 113, 135, 32, 134, 91, 207, 101, 230, 45, 168, 2,
	27, 96, 37, 173, 174, 176, 185, 246, 28, 70, 97, 105, 52, 64, 126, 15,
	85, 71, 163, 35, 221, 81, 175, 58, 195, 92, 249, 206, 186, 197, 234, 38,
	44, 83, 13, 110, 133, 40, 132, 9, 211, 223, 205, 244, 65, 129, 77, 82,
	106, 220, 55, 200, 108, 193, 171, 250, 36, 225, 123, 8, 12, 189, 177, 74,
	120, 136, 149, 139, 227, 99, 232, 109, 233, 203, 213, 254, 59, 0, 29, 57,
	242, 239, 183, 14, 102, 88, 208, 228, 166, 119, 114, 248, 235, 117, 75, 10,
	49, 68, 80, 180, 143, 237, 31, 26, 219, 153, 141, 51, 159, 17, 131, 20,
}

// md2Digest is an RFC 1319 MD2 state machine: a 48-byte checksum
// accumulator, a running 48-byte state, and a 16-byte input buffer
// filled one block at a time.
type md2Digest struct {
	state    [48]byte
	checksum [16]byte
	buf      [md2BlockSize]byte
	buflen   int
}

func newMD2() *md2Digest {
	d := &md2Digest{}
	d.Reset()
	return d
}

func (d *md2Digest) Reset() {
	d.state = [48]byte{}
	d.checksum = [16]byte{}
	d.buf = [md2BlockSize]byte{}
	d.buflen = 0
}

func (d *md2Digest) OutputLen() int { return 16 }

func (d *md2Digest) Update(p []byte) {
	for len(p) > 0 {
		n := copy(d.buf[d.buflen:], p)
		d.buflen += n
		p = p[n:]
		if d.buflen == md2BlockSize {
			d.processBlock()
			d.buflen = 0
		}
	}
}

// Finalize pads per RFC 1319 (each pad byte equals the pad length,
// 1..16), processes the final block, appends the running checksum as
// one more block, and returns the 16-byte state prefix.
func (d *md2Digest) Finalize() []byte {
	padLen := md2BlockSize - d.buflen
	pad := make([]byte, padLen)
	for i := range pad {
		pad[i] = byte(padLen)
	}
	d.Update(pad)

	checksum := d.checksum
	d.checksum = [16]byte{} // processed with processBlockRaw below, so not folded into itself
	d.buf = checksum
	d.buflen = md2BlockSize
	d.processBlockRaw(d.buf[:])
	d.buflen = 0

	out := make([]byte, 16)
	copy(out, d.state[:16])
	return out
}

func (d *md2Digest) processBlock() {
	d.updateChecksum(d.buf[:])
	d.processBlockRaw(d.buf[:])
}

func (d *md2Digest) updateChecksum(block []byte) {
	l := d.checksum[15]
	for i := 0; i < 16; i++ {
		c := block[i] ^ l
		d.checksum[i] ^= md2SBox[c]
		l = d.checksum[i]
	}
}

func (d *md2Digest) processBlockRaw(block []byte) {
	for i := 0; i < 16; i++ {
		d.state[16+i] = block[i]
		d.state[32+i] = d.state[16+i] ^ d.state[i]
	}

	var t byte
	for round := 0; round < 18; round++ {
		for i := 0; i < 48; i++ {
			d.state[i] ^= md2SBox[t]
			t = d.state[i]
		}
		t = t + byte(round)
	}
}
