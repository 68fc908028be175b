package camera

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"io"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
)

// Image is an encoded frame. The data is never modified after Encode returns.
type Image struct {
	Data        []byte
	Width       int
	Height      int
	ContentType string
}

// Reader returns a fresh reader over the encoded bytes.
func (i Image) Reader() io.Reader {
	return bytes.NewReader(i.Data)
}

// Empty reports whether the image holds no data.
func (i Image) Empty() bool {
	return len(i.Data) == 0
}

// Encode renders a frame as JPEG. Frames wider than maxWidth are downscaled
// first, keeping the aspect ratio. maxWidth <= 0 disables scaling.
func Encode(frame image.Image, quality, maxWidth int) (Image, error) {
	if frame == nil {
		return Image{}, ErrNoFrame
	}
	bounds := frame.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width == 0 || height == 0 {
		return Image{}, ErrNoFrame
	}

	src := frame
	if maxWidth > 0 && width > maxWidth {
		newHeight := int(float64(height) * float64(maxWidth) / float64(width))
		resized := image.NewRGBA(image.Rect(0, 0, maxWidth, newHeight))
		draw.CatmullRom.Scale(resized, resized.Bounds(), frame, bounds, draw.Over, nil)
		src = resized
		width, height = maxWidth, newHeight
	}

	if quality <= 0 || quality > 100 {
		quality = jpeg.DefaultQuality
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, src, &jpeg.Options{Quality: quality}); err != nil {
		return Image{}, fmt.Errorf("failed to encode frame: %w", err)
	}

	return Image{
		Data:        buf.Bytes(),
		Width:       width,
		Height:      height,
		ContentType: "image/jpeg",
	}, nil
}

// Decode parses JPEG, PNG or BMP data into a frame.
func Decode(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return img, nil
}
