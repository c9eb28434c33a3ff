package geom

import "math"

// Intrinsics holds a pinhole camera's intrinsic parameters.
type Intrinsics struct {
	Fx, Fy, Cx, Cy float64
}

// Matrix returns the 3x3 camera matrix [[fx,0,cx],[0,fy,cy],[0,0,1]] in
// row-major order, the layout gocv's calib3d bindings expect.
func (i Intrinsics) Matrix() [9]float64 {
	return [9]float64{
		i.Fx, 0, i.Cx,
		0, i.Fy, i.Cy,
		0, 0, 1,
	}
}

// StereoCamera is the immutable stereo rig: left & right intrinsics plus the
// rigid transform from the right to the left camera frame.
type StereoCamera struct {
	Left, Right Intrinsics
	TLeftRight  Transform
}

// Baseline returns the stereo baseline, T_left_right's x-translation.
func (s StereoCamera) Baseline() float64 {
	return s.TLeftRight.Translation().X
}

// Project projects a 3D point in camera frame to pixel coordinates.
func Project(cam Intrinsics, p Point3) Point2 {
	return Point2{
		U: cam.Fx*p.X/p.Z + cam.Cx,
		V: cam.Fy*p.Y/p.Z + cam.Cy,
	}
}

// BackProject back-projects a pixel at unit depth into camera frame. project
// ∘ back_project is the identity up to a positive scalar (the arbitrary
// depth chosen here, z=1).
func BackProject(cam Intrinsics, p Point2) Point3 {
	return Point3{
		X: (p.U - cam.Cx) / cam.Fx,
		Y: (p.V - cam.Cy) / cam.Fy,
		Z: 1,
	}
}

// ProjectLandmarks projects a set of object-frame landmark positions into
// pixel coordinates given the camera's object pose.
func ProjectLandmarks(points []Point3, tCamObj Transform, cam Intrinsics) []Point2 {
	out := make([]Point2, len(points))
	for i, p := range points {
		pCam := tCamObj.Apply(p)
		out[i] = Project(cam, pCam)
	}
	return out
}

// TriangulationError describes why stereo triangulation failed.
type TriangulationError struct {
	Reason string
}

func (e *TriangulationError) Error() string { return "geom: triangulation failed: " + e.Reason }

// TriangulateStereo triangulates a 3D point (expressed in the reference
// frame implied by tRefCam, i.e. p_ref) from a matched left/right feature
// pair using the standard stereo disparity equation. It fails with a
// *TriangulationError when the epipolar residual |v_left - v_right| exceeds
// one pixel, when the implied depth is non-positive, or when the resulting
// point falls outside [0.5, maxDist] in depth/range.
func TriangulateStereo(left, right Point2, cam StereoCamera, tRefCam Transform, maxDist float64) (Point3, error) {
	if math.Abs(left.V-right.V) > 1.0 {
		return Point3{}, &TriangulationError{Reason: "epipolar residual exceeds 1px"}
	}
	baseline := cam.Baseline()
	disparity := left.U - right.U
	if disparity == 0 {
		return Point3{}, &TriangulationError{Reason: "zero disparity, singular system"}
	}
	z := cam.Left.Fx * baseline / disparity
	if z <= 0.5 {
		return Point3{}, &TriangulationError{Reason: "depth too small or negative"}
	}
	x := (left.U - cam.Left.Cx) * z / cam.Left.Fx
	y := (left.V - cam.Left.Cy) * z / cam.Left.Fy
	pCam := Point3{X: x, Y: y, Z: z}
	if pCam.Norm() > maxDist {
		return Point3{}, &TriangulationError{Reason: "point beyond max range"}
	}
	pRef := tRefCam.Apply(pCam)
	return pRef, nil
}

// IsInView reports whether at least minLandmarks of the given object-frame
// landmark positions project into the image rectangle with positive depth.
func IsInView(points []Point3, tCamObj Transform, cam Intrinsics, imgW, imgH int, minLandmarks int) bool {
	count := 0
	for _, p := range points {
		pCam := tCamObj.Apply(p)
		if pCam.Z <= 0 {
			continue
		}
		uv := Project(cam, pCam)
		if uv.U >= 0 && uv.U < float64(imgW) && uv.V >= 0 && uv.V < float64(imgH) {
			count++
			if count >= minLandmarks {
				return true
			}
		}
	}
	return count >= minLandmarks
}
