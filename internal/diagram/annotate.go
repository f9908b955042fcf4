package diagram

import (
	"bytes"
	"fmt"
	"image"
	"image/color"

	"github.com/disintegration/imaging"
)

// Marker is one error annotation to overlay on a diagram raster.
type Marker struct {
	Label    string
	Severity string // high, medium, low
}

const (
	badgeSize   = 18
	badgeMargin = 6
	bannerH     = 8
)

func severityColor(severity string) color.NRGBA {
	switch severity {
	case "high":
		return color.NRGBA{R: 220, G: 50, B: 50, A: 255}
	case "medium":
		return color.NRGBA{R: 235, G: 150, B: 30, A: 255}
	default:
		return color.NRGBA{R: 230, G: 210, B: 60, A: 255}
	}
}

// Annotate overlays one severity-colored badge per marker along the right
// edge of the image, plus a banner across the top when anything was found.
// The source bytes are decoded, never mutated; output is always PNG.
func Annotate(src []byte, markers []Marker) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("decode diagram image: %w", err)
	}
	canvas := imaging.Clone(img)

	if len(markers) > 0 {
		banner := imaging.New(canvas.Bounds().Dx(), bannerH, severityColor("high"))
		canvas = imaging.Overlay(canvas, banner, image.Pt(0, 0), 0.7)
	}

	x := canvas.Bounds().Dx() - badgeSize - badgeMargin
	for i, m := range markers {
		y := bannerH + badgeMargin + i*(badgeSize+badgeMargin)
		if y+badgeSize > canvas.Bounds().Dy() {
			break
		}
		badge := imaging.New(badgeSize, badgeSize, severityColor(m.Severity))
		canvas = imaging.Overlay(canvas, badge, image.Pt(x, y), 0.9)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, canvas, imaging.PNG); err != nil {
		return nil, fmt.Errorf("encode annotated image: %w", err)
	}
	return buf.Bytes(), nil
}
