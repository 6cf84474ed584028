package texture

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/Carmen-Shannon/oxy-core/common"
	"github.com/Carmen-Shannon/oxy-core/engine/renderer/renderertest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/bmp"
)

func checker(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			if (x+y)%2 == 0 {
				img.Set(x, y, color.NRGBA{R: 255, A: 255})
			} else {
				img.Set(x, y, color.NRGBA{B: 255, A: 255})
			}
		}
	}
	return img
}

func TestDecodePNGAndBMP(t *testing.T) {
	var pngBuf, bmpBuf bytes.Buffer
	require.NoError(t, png.Encode(&pngBuf, checker(4, 2)))
	require.NoError(t, bmp.Encode(&bmpBuf, checker(4, 2)))

	for _, buf := range []*bytes.Buffer{&pngBuf, &bmpBuf} {
		data, err := Decode(buf)
		require.NoError(t, err)
		assert.Equal(t, uint32(4), data.Width)
		assert.Equal(t, uint32(2), data.Height)
		require.Len(t, data.Pixels, 4*2*4)
		assert.Equal(t, []byte{255, 0, 0, 255}, data.Pixels[0:4])
		assert.Equal(t, []byte{0, 0, 255, 255}, data.Pixels[4:8])
	}

	_, err := Decode(bytes.NewReader([]byte("not an image")))
	assert.Error(t, err)
}

func TestFitToCellKeepsAspect(t *testing.T) {
	data := FromImage(checker(64, 32))

	fitted := FitToCell(data, 16, 16)
	assert.Equal(t, uint32(16), fitted.Width)
	assert.Equal(t, uint32(8), fitted.Height)
	assert.Len(t, fitted.Pixels, 16*8*4)

	same := FitToCell(data, 64, 64)
	assert.Equal(t, data, same)
}

func TestNewTextureCreatesBindGroup(t *testing.T) {
	r := renderertest.NewRenderer()
	a, err := NewTexture(r, FromImage(checker(2, 2)), WithLabel("checker"))
	require.NoError(t, err)
	b, err := Solid(r, common.Color{1, 1, 1, 1})
	require.NoError(t, err)

	assert.NotEqual(t, a.ID(), b.ID())
	assert.Equal(t, "checker", a.Label())
	assert.Equal(t, uint32(1), b.Width())
	assert.Equal(t, []byte{255, 255, 255, 255}, b.Staging().Pixels)
	assert.Equal(t, 2, r.TextureViews)
	assert.Equal(t, 2, r.Samplers)
	assert.Equal(t, 2, r.BindGroupInits)

	assert.NotPanics(t, func() {
		a.Release()
		a.Release()
	})
}

func TestNewTextureRejectsMalformedData(t *testing.T) {
	r := renderertest.NewRenderer()
	_, err := NewTexture(r, common.TextureStagingData{Pixels: make([]byte, 3), Width: 1, Height: 1})
	assert.Error(t, err)
	_, err = NewTexture(r, common.TextureStagingData{})
	assert.Error(t, err)
	assert.Zero(t, r.TextureViews)
}
