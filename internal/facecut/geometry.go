package facecut

import (
	"errors"
	"image"
	"log/slog"
	"slices"

	"github.com/your-org/facebot/internal/models"
)

var ErrDegeneratePolygon = errors.New("face polygon needs two distinct values on each axis")

// Box is an axis-aligned crop rectangle in pixel coordinates.
type Box struct {
	Left, Top, Right, Bottom int
}

func (b Box) Rect() image.Rectangle {
	return image.Rect(b.Left, b.Top, b.Right, b.Bottom)
}

// Boundaries derives the crop box from a face polygon: the two smallest
// distinct x values give left and right, the two smallest distinct y values
// give top and bottom.
func Boundaries(poly models.Polygon) (Box, error) {
	xs := make([]int, 0, len(poly))
	ys := make([]int, 0, len(poly))
	for _, v := range poly {
		xs = append(xs, v.X)
		ys = append(ys, v.Y)
	}
	xs = distinctSorted(xs)
	ys = distinctSorted(ys)

	if len(xs) < 2 || len(ys) < 2 {
		return Box{}, ErrDegeneratePolygon
	}
	if len(xs) > 2 || len(ys) > 2 {
		slog.Warn("face polygon is not a rectangle, using the two smallest values per axis",
			"distinct_x", len(xs), "distinct_y", len(ys))
	}

	return Box{Left: xs[0], Right: xs[1], Top: ys[0], Bottom: ys[1]}, nil
}

func distinctSorted(v []int) []int {
	slices.Sort(v)
	return slices.Compact(v)
}
