package vision

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"time"

	"gonum.org/v1/gonum/stat"
)

// CenterDepthMeters returns the mean depth of the centre third of a depth
// image whose pixel values are millimetres.
func CenterDepthMeters(img image.Image) (float64, error) {
	b := img.Bounds()
	h, w := b.Dy(), b.Dx()
	r0, r1 := b.Min.Y+h/3, b.Min.Y+2*h/3
	c0, c1 := b.Min.X+w/3, b.Min.X+2*w/3
	if r1 <= r0 || c1 <= c0 {
		return 0, errors.New("depth image too small")
	}

	vals := make([]float64, 0, (r1-r0)*(c1-c0))
	gray, _ := img.(*image.Gray16)
	for y := r0; y < r1; y++ {
		for x := c0; x < c1; x++ {
			var mm uint16
			if gray != nil {
				mm = gray.Gray16At(x, y).Y
			} else {
				mm = color.Gray16Model.Convert(img.At(x, y)).(color.Gray16).Y
			}
			vals = append(vals, float64(mm))
		}
	}
	return stat.Mean(vals, nil) * 0.001, nil
}

// ErrBadDepthFrame marks a depth frame that arrived but cannot be measured.
var ErrBadDepthFrame = errors.New("unusable depth frame")

// DepthMeters decodes the latest depth frame from src and returns its
// centre depth and the frame's receive time. Frame errors from src are
// returned as is; decode and size failures wrap ErrBadDepthFrame.
func DepthMeters(src Source) (float64, time.Time, error) {
	f, err := src.Frame(Depth)
	if err != nil {
		return 0, time.Time{}, err
	}
	img, err := f.Decode()
	if err != nil {
		return 0, f.At, fmt.Errorf("%w: %w", ErrBadDepthFrame, err)
	}
	d, err := CenterDepthMeters(img)
	if err != nil {
		return 0, f.At, fmt.Errorf("%w: %w", ErrBadDepthFrame, err)
	}
	return d, f.At, nil
}
