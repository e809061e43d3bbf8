// Package render produces annotated frame artifacts: the source frame with
// a box drawn around each detected vehicle.
package render

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"

	"github.com/vehiclereid/revid/pkg/models"
)

const borderWidth = 3

var boxColor = color.RGBA{R: 0xE5, G: 0x3E, B: 0x3E, A: 0xFF}

// AnnotateJPEG draws the bounding box of each detection onto the frame and
// returns it re-encoded as JPEG. Boxes fully outside the frame are skipped.
func AnnotateJPEG(frame []byte, detections []models.Detection) ([]byte, error) {
	src, _, err := image.Decode(bytes.NewReader(frame))
	if err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}

	dst := image.NewRGBA(src.Bounds())
	draw.Draw(dst, dst.Bounds(), src, src.Bounds().Min, draw.Src)

	for _, det := range detections {
		box := image.Rect(det.BBox[0], det.BBox[1], det.BBox[0]+det.BBox[2], det.BBox[1]+det.BBox[3])
		box = box.Intersect(dst.Bounds())
		if box.Empty() {
			continue
		}
		drawBorder(dst, box)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: 85}); err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	return buf.Bytes(), nil
}

func drawBorder(img *image.RGBA, box image.Rectangle) {
	w := borderWidth
	edges := []image.Rectangle{
		image.Rect(box.Min.X, box.Min.Y, box.Max.X, box.Min.Y+w), // top
		image.Rect(box.Min.X, box.Max.Y-w, box.Max.X, box.Max.Y), // bottom
		image.Rect(box.Min.X, box.Min.Y, box.Min.X+w, box.Max.Y), // left
		image.Rect(box.Max.X-w, box.Min.Y, box.Max.X, box.Max.Y), // right
	}
	for _, edge := range edges {
		draw.Draw(img, edge.Intersect(img.Bounds()), image.NewUniform(boxColor), image.Point{}, draw.Src)
	}
}
