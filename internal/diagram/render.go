package diagram

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"

	"github.com/disintegration/imaging"
)

// Rendering is deliberately schematic: each element becomes a box with a
// kind-colored header bar and one row per member. Layout fidelity is out of
// scope; the output only needs to be a stable, valid raster of the model.
const (
	boxWidth   = 220
	headerH    = 28
	rowH       = 18
	gutter     = 40
	canvasPad  = 40
	minMembers = 1
)

var (
	canvasBG   = color.NRGBA{R: 245, G: 245, B: 245, A: 255}
	boxBG      = color.NRGBA{R: 255, G: 255, B: 255, A: 255}
	boxBorder  = color.NRGBA{R: 60, G: 60, B: 60, A: 255}
	rowDivider = color.NRGBA{R: 210, G: 210, B: 210, A: 255}
)

func headerColor(kind string) color.NRGBA {
	switch kind {
	case "interface":
		return color.NRGBA{R: 170, G: 215, B: 170, A: 255}
	case "enum":
		return color.NRGBA{R: 235, G: 210, B: 160, A: 255}
	default:
		return color.NRGBA{R: 170, G: 200, B: 230, A: 255}
	}
}

// Render draws the model onto a PNG canvas, elements laid out on a grid.
func Render(m *Model) ([]byte, error) {
	if m == nil || len(m.Elements) == 0 {
		return nil, fmt.Errorf("render: empty model")
	}

	cols := int(math.Ceil(math.Sqrt(float64(len(m.Elements)))))
	rows := (len(m.Elements) + cols - 1) / cols

	maxBoxH := 0
	for _, el := range m.Elements {
		if h := boxHeight(el); h > maxBoxH {
			maxBoxH = h
		}
	}

	width := canvasPad*2 + cols*boxWidth + (cols-1)*gutter
	height := canvasPad*2 + rows*maxBoxH + (rows-1)*gutter
	canvas := imaging.New(width, height, canvasBG)

	for i, el := range m.Elements {
		col := i % cols
		row := i / cols
		x := canvasPad + col*(boxWidth+gutter)
		y := canvasPad + row*(maxBoxH+gutter)
		canvas = imaging.Paste(canvas, drawBox(el), image.Pt(x, y))
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, canvas, imaging.PNG); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

func boxHeight(el Element) int {
	members := len(el.Attributes) + len(el.Methods)
	if members < minMembers {
		members = minMembers
	}
	return headerH + members*rowH
}

func drawBox(el Element) *image.NRGBA {
	h := boxHeight(el)
	box := imaging.New(boxWidth, h, boxBG)

	fillRect(box, image.Rect(0, 0, boxWidth, headerH), headerColor(el.Kind))

	// One divider line under each member row.
	members := len(el.Attributes) + len(el.Methods)
	for i := 1; i <= members; i++ {
		y := headerH + i*rowH - 1
		fillRect(box, image.Rect(4, y, boxWidth-4, y+1), rowDivider)
	}

	// Border.
	fillRect(box, image.Rect(0, 0, boxWidth, 2), boxBorder)
	fillRect(box, image.Rect(0, h-2, boxWidth, h), boxBorder)
	fillRect(box, image.Rect(0, 0, 2, h), boxBorder)
	fillRect(box, image.Rect(boxWidth-2, 0, boxWidth, h), boxBorder)

	return box
}

func fillRect(img *image.NRGBA, r image.Rectangle, c color.NRGBA) {
	draw.Draw(img, r, &image.Uniform{C: c}, image.Point{}, draw.Src)
}
