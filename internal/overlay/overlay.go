// Package overlay draws the recognition marker onto a captured frame.
//
// The marker is a fixed placeholder region, not a detected face: a box of
// 40%x50% of the frame, centred and lifted by 5% of the frame height, with a
// label panel above it.
//
// The panel is never clipped. When the box is too close to the top of the
// frame the panel moves down to stay inside it and covers the top of the box.
package overlay

import (
	"fmt"
	"image"
	"image/color"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/kozaktomas/face-attendance/internal/camera"
)

const (
	strokeWidth = 4
	labelHeight = 100
	textInset   = 10
)

var (
	// BoxColor is the stroke colour (#10b981).
	BoxColor = color.NRGBA{R: 0x10, G: 0xb9, B: 0x81, A: 0xff}
	// PanelColor fills the label panel at 90% opacity.
	PanelColor = color.NRGBA{R: 0x10, G: 0xb9, B: 0x81, A: 230}
)

// baselines of the four label lines, relative to the panel top
var baselines = [4]int{25, 50, 72, 94}

// Label is the text shown above the box.
type Label struct {
	Name       string
	Identifier string
	Confidence float64 // 0..1
	Status     string
}

// Lines returns the label text in display order.
func (l Label) Lines() []string {
	return []string{
		l.Name,
		l.Identifier,
		fmt.Sprintf("Confidence: %.1f%%", l.Confidence*100),
		"Status: " + l.Status,
	}
}

// Box returns the placeholder face region for a frame with the given bounds.
func Box(bounds image.Rectangle) image.Rectangle {
	w := bounds.Dx() * 40 / 100
	h := bounds.Dy() * 50 / 100
	x := bounds.Min.X + (bounds.Dx()-w)/2
	y := bounds.Min.Y + (bounds.Dy()-h)/2 - bounds.Dy()*5/100
	return image.Rect(x, y, x+w, y+h)
}

// Panel returns the label panel for a box. The panel sits directly above the
// box and is pushed down when it would leave the frame.
func Panel(box, bounds image.Rectangle) image.Rectangle {
	top := max(box.Min.Y-labelHeight, bounds.Min.Y)
	return image.Rect(box.Min.X, top, box.Max.X, top+labelHeight).Intersect(bounds)
}

// Draw returns a copy of frame with the box and label rendered on it. The
// input frame is not modified.
func Draw(frame image.Image, label Label) *image.RGBA {
	bounds := frame.Bounds()
	dst := image.NewRGBA(bounds)
	draw.Draw(dst, bounds, frame, bounds.Min, draw.Src)

	box := Box(bounds)
	stroke(dst, box, BoxColor)

	panel := Panel(box, bounds)
	draw.Draw(dst, panel, image.NewUniform(PanelColor), image.Point{}, draw.Over)

	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(color.White),
		Face: basicfont.Face7x13,
	}
	for i, line := range label.Lines() {
		d.Dot = fixed.P(panel.Min.X+textInset, panel.Min.Y+baselines[i])
		d.DrawString(line)
	}
	return dst
}

// Annotate decodes an encoded frame, draws the marker and re-encodes it as
// JPEG.
func Annotate(img camera.Image, label Label, quality int) (camera.Image, error) {
	frame, err := camera.Decode(img.Data)
	if err != nil {
		return camera.Image{}, fmt.Errorf("could not decode frame: %w", err)
	}
	out, err := camera.Encode(Draw(frame, label), quality, 0)
	if err != nil {
		return camera.Image{}, fmt.Errorf("could not encode annotated frame: %w", err)
	}
	return out, nil
}

// stroke outlines r with a line centred on its edges.
func stroke(dst draw.Image, r image.Rectangle, c color.Color) {
	src := image.NewUniform(c)
	half := strokeWidth / 2
	outer := r.Inset(-half)
	inner := r.Inset(half)
	for _, edge := range []image.Rectangle{
		image.Rect(outer.Min.X, outer.Min.Y, outer.Max.X, inner.Min.Y),
		image.Rect(outer.Min.X, inner.Max.Y, outer.Max.X, outer.Max.Y),
		image.Rect(outer.Min.X, inner.Min.Y, inner.Min.X, inner.Max.Y),
		image.Rect(inner.Max.X, inner.Min.Y, outer.Max.X, inner.Max.Y),
	} {
		draw.Draw(dst, edge.Intersect(dst.Bounds()), src, image.Point{}, draw.Src)
	}
}
