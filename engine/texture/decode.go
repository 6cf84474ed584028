package texture

import (
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"

	"github.com/Carmen-Shannon/oxy-core/common"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// Decode reads a PNG, JPEG, GIF, BMP or WebP image into RGBA8 staging data.
//
// Parameters:
//   - r: the encoded image
//
// Returns:
//   - common.TextureStagingData: the decoded pixels
//   - error: an error if the image could not be decoded
func Decode(r io.Reader) (common.TextureStagingData, error) {
	img, _, err := image.Decode(r)
	if err != nil {
		return common.TextureStagingData{}, fmt.Errorf("failed to decode image: %w", err)
	}
	return FromImage(img), nil
}

// Load opens and decodes an image file.
func Load(path string) (common.TextureStagingData, error) {
	file, err := os.Open(path)
	if err != nil {
		return common.TextureStagingData{}, fmt.Errorf("failed to open texture file %s: %w", path, err)
	}
	defer file.Close()

	data, err := Decode(file)
	if err != nil {
		return common.TextureStagingData{}, fmt.Errorf("%s: %w", path, err)
	}
	return data, nil
}

// FromImage converts any image into RGBA8 staging data.
func FromImage(img image.Image) common.TextureStagingData {
	bounds := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, bounds.Min, draw.Src)
	return common.TextureStagingData{
		Pixels: rgba.Pix,
		Width:  uint32(bounds.Dx()),
		Height: uint32(bounds.Dy()),
	}
}

// FitToCell scales data down so that it fits within a cellW x cellH cell while keeping its
// aspect ratio. Data that already fits is returned unchanged. Texture arrays need every layer
// to fit their fixed cell size.
//
// Parameters:
//   - data: the source pixels
//   - cellW: the maximum width
//   - cellH: the maximum height
//
// Returns:
//   - common.TextureStagingData: pixels no larger than the cell
func FitToCell(data common.TextureStagingData, cellW, cellH uint32) common.TextureStagingData {
	if data.Width <= cellW && data.Height <= cellH {
		return data
	}
	scale := min(float64(cellW)/float64(data.Width), float64(cellH)/float64(data.Height))
	w := max(uint32(float64(data.Width)*scale), 1)
	h := max(uint32(float64(data.Height)*scale), 1)

	src := &image.RGBA{
		Pix:    data.Pixels,
		Stride: int(data.Width) * 4,
		Rect:   image.Rect(0, 0, int(data.Width), int(data.Height)),
	}
	dst := image.NewRGBA(image.Rect(0, 0, int(w), int(h)))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
	return common.TextureStagingData{Pixels: dst.Pix, Width: w, Height: h}
}
