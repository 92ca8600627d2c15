package tiled

// GID is a global tile identifier as stored in layer data: the low 29 bits
// are a 1-based tile index (0 = empty cell) and the top 3 bits are flip
// flags applied at render time.
type GID uint32

// Flip flag masks.
const (
	FlipHorizontal GID = 0x80000000
	FlipVertical   GID = 0x40000000
	FlipDiagonal   GID = 0x20000000

	flipMask = FlipHorizontal | FlipVertical | FlipDiagonal
)

// Flip flag bits as packed by FlipByte.
const (
	FlipByteHorizontal byte = 1 << 0
	FlipByteVertical   byte = 1 << 1
	FlipByteDiagonal   byte = 1 << 2
)

// TileID returns the tile index with all flip flags stripped.
func (g GID) TileID() uint32 {
	return uint32(g &^ flipMask)
}

// Flips returns the three flip flags.
func (g GID) Flips() (horizontal, vertical, diagonal bool) {
	return g&FlipHorizontal != 0, g&FlipVertical != 0, g&FlipDiagonal != 0
}

// FlipByte packs the three flip flags into the low bits of one byte.
func (g GID) FlipByte() byte {
	var b byte
	if g&FlipHorizontal != 0 {
		b |= FlipByteHorizontal
	}
	if g&FlipVertical != 0 {
		b |= FlipByteVertical
	}
	if g&FlipDiagonal != 0 {
		b |= FlipByteDiagonal
	}
	return b
}

// IsNil returns true if the cell is empty.
func (g GID) IsNil() bool {
	return g.TileID() == 0
}
