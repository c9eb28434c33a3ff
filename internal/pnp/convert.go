package pnp

import (
	"gocv.io/x/gocv"
	"gonum.org/v1/gonum/mat"
)

// matToDense3x3 copies a CV_64F 3x3 gocv.Mat into a gonum Dense, the same
// gocv<->gonum bridging pattern norfair-go's camera_motion.go uses for
// homography matrices.
func matToDense3x3(m gocv.Mat) *mat.Dense {
	out := mat.NewDense(3, 3, nil)
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			out.Set(r, c, m.GetDoubleAt(r, c))
		}
	}
	return out
}
