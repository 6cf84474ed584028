package batch

import (
	"github.com/Carmen-Shannon/oxy-core/engine/texture"
	"github.com/chewxy/math32"
)

// TextureSlice is a rectangular region of a texture, as packed into an atlas. UVs run from
// the top-left (0,0) to the bottom-right (1,1) of the texture.
type TextureSlice struct {
	Texture texture.Texture

	U, V, U2, V2 float32

	// Rotated marks a region stored rotated by 90 degrees in the atlas. Drawing swaps its U and V
	// axes back.
	Rotated bool

	// OffsetX and OffsetY are the trimmed-away pixels before the region, relative to the
	// original image.
	OffsetX, OffsetY float32

	// PackedWidth and PackedHeight are the region size in the atlas.
	PackedWidth, PackedHeight int

	// OriginalWidth and OriginalHeight are the image size before trimming.
	OriginalWidth, OriginalHeight int
}

// NewTextureSlice returns the slice covering the pixel rectangle x, y, width, height of tex.
//
// Parameters:
//   - tex: the texture
//   - x, y: the top-left pixel of the region
//   - width, height: the region size in pixels
//
// Returns:
//   - TextureSlice: the slice, untrimmed and unrotated
func NewTextureSlice(tex texture.Texture, x, y, width, height int) TextureSlice {
	s := TextureSlice{Texture: tex}
	s.SetRegion(x, y, width, height)
	return s
}

// FullSlice returns the slice covering all of tex.
func FullSlice(tex texture.Texture) TextureSlice {
	return NewTextureSlice(tex, 0, 0, int(tex.Width()), int(tex.Height()))
}

// SetRegion points the slice at a pixel rectangle of its texture and resets the packed and
// original sizes to the rectangle's size.
func (s *TextureSlice) SetRegion(x, y, width, height int) {
	invW := 1 / float32(s.Texture.Width())
	invH := 1 / float32(s.Texture.Height())
	s.U = float32(x) * invW
	s.V = float32(y) * invH
	s.U2 = float32(x+width) * invW
	s.V2 = float32(y+height) * invH
	s.PackedWidth, s.PackedHeight = abs(width), abs(height)
	s.OriginalWidth, s.OriginalHeight = abs(width), abs(height)
}

// Width returns the region width in pixels.
func (s TextureSlice) Width() int {
	return int(math32.Round(math32.Abs(s.U2-s.U) * float32(s.Texture.Width())))
}

// Height returns the region height in pixels.
func (s TextureSlice) Height() int {
	return int(math32.Round(math32.Abs(s.V2-s.V) * float32(s.Texture.Height())))
}

// X returns the left pixel of the region.
func (s TextureSlice) X() int {
	return int(math32.Round(s.U * float32(s.Texture.Width())))
}

// Y returns the top pixel of the region.
func (s TextureSlice) Y() int {
	return int(math32.Round(s.V * float32(s.Texture.Height())))
}

// FlipH mirrors the slice horizontally by swapping U and U2.
func (s *TextureSlice) FlipH() {
	s.U, s.U2 = s.U2, s.U
}

// FlipV mirrors the slice vertically by swapping V and V2.
func (s *TextureSlice) FlipV() {
	s.V, s.V2 = s.V2, s.V
}

// Split cuts the slice into a grid of cellWidth x cellHeight regions, row by row. Partial cells
// at the right and bottom edges are dropped.
//
// Parameters:
//   - cellWidth: the cell width in pixels
//   - cellHeight: the cell height in pixels
//
// Returns:
//   - [][]TextureSlice: the cells indexed by row, then column
func (s TextureSlice) Split(cellWidth, cellHeight int) [][]TextureSlice {
	if cellWidth <= 0 || cellHeight <= 0 {
		return nil
	}
	rows, cols := s.Height()/cellHeight, s.Width()/cellWidth
	x0, y0 := s.X(), s.Y()
	out := make([][]TextureSlice, rows)
	for row := range rows {
		out[row] = make([]TextureSlice, cols)
		for col := range cols {
			out[row][col] = NewTextureSlice(s.Texture, x0+col*cellWidth, y0+row*cellHeight, cellWidth, cellHeight)
		}
	}
	return out
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
