package geom

import (
	"image"
	"image/color"

	"gocv.io/x/gocv"
)

// Mask is a boolean occupancy image of a detection/track's silhouette,
// frame-sized like the detections the core ingests.
type Mask struct {
	Width, Height int
	Pixels        *gocv.Mat // CV_8UC1, 255 = in-mask
}

// Close releases the underlying gocv.Mat. Callers own the Mask's lifetime.
func (m Mask) Close() error {
	if m.Pixels == nil {
		return nil
	}
	return m.Pixels.Close()
}

// NewEmptyMask allocates a zeroed mask of the given frame dimensions.
func NewEmptyMask(width, height int) Mask {
	mat := gocv.NewMatWithSize(height, width, gocv.MatTypeCV8UC1)
	return Mask{Width: width, Height: height, Pixels: &mat}
}

// RasterizeConvexHull rasterizes the convex hull of a set of 2D points into
// a frame-sized mask. This implements the left-mask half of §4.1's
// get_masks_from_landmarks.
func RasterizeConvexHull(points []Point2, width, height int) Mask {
	mask := NewEmptyMask(width, height)
	if len(points) < 3 {
		return mask
	}
	pts := make([]image.Point, len(points))
	for i, p := range points {
		pts[i] = image.Pt(int(p.U), int(p.V))
	}
	hull := gocv.NewMat()
	defer hull.Close()
	gocv.ConvexHull(gocv.NewPointVectorFromPoints(pts), &hull, true, true)
	hullPts := hullMatToPoints(hull)
	pv := gocv.NewPointsVectorFromPoints([][]image.Point{hullPts})
	defer pv.Close()
	gocv.FillPoly(mask.Pixels, pv, color.RGBA{R: 255, G: 255, B: 255, A: 255})
	return mask
}

func hullMatToPoints(hull gocv.Mat) []image.Point {
	rows := hull.Rows()
	out := make([]image.Point, 0, rows)
	for i := 0; i < rows; i++ {
		out = append(out, image.Pt(int(hull.GetIntAt(i, 0)), int(hull.GetIntAt(i, 1))))
	}
	return out
}

// Dilate grows mask by numPixels using a square structuring element, used to
// pad the re-projected right-camera hull by a few pixels of slop before it's
// intersected against the raw right image.
func Dilate(mask Mask, numPixels int) Mask {
	if numPixels <= 0 {
		return mask
	}
	kernel := gocv.GetStructuringElement(gocv.MorphRect, image.Pt(numPixels, numPixels))
	defer kernel.Close()
	out := gocv.NewMatWithSize(mask.Height, mask.Width, gocv.MatTypeCV8UC1)
	gocv.Dilate(*mask.Pixels, &out, kernel)
	return Mask{Width: mask.Width, Height: mask.Height, Pixels: &out}
}

// GetMasksFromLandmarks rasterizes left and right masks from a track's
// object-frame landmark positions: the left mask from the left camera's
// projection, the right mask by re-projecting the same points through
// T_left_right, per §4.1.
func GetMasksFromLandmarks(points []Point3, tCamObj Transform, cam StereoCamera, width, height int) (left, right Mask) {
	leftPts := ProjectLandmarks(points, tCamObj, cam.Left)
	left = RasterizeConvexHull(leftPts, width, height)

	tRightObj := cam.TLeftRight.Inverse().Compose(tCamObj)
	rightPts := ProjectLandmarks(points, tRightObj, cam.Right)
	right = Dilate(RasterizeConvexHull(rightPts, width, height), 5)
	return left, right
}

// ConvexHullPolygonIoU computes the intersection-over-union of the convex
// hulls of two 2D point sets using true polygon AREA ratios
// (intersection.Area()/union.Area()). The original implementation this
// module was distilled from computed
// `polygon.intersection(other).area / polygon.union(other).area` incorrectly
// transcribed as `.intersection(.)/.union(.)` without `.area` on numerator
// and denominator consistently applied to both — this function is the
// corrected version.
func ConvexHullPolygonIoU(a, b []Point2) float64 {
	polyA := convexHullPolygon(a)
	polyB := convexHullPolygon(b)
	areaA := polygonArea(polyA)
	areaB := polygonArea(polyB)
	if areaA == 0 && areaB == 0 {
		return 0
	}
	interArea := polygonIntersectionArea(polyA, polyB)
	unionArea := areaA + areaB - interArea
	if unionArea <= 0 {
		return 0
	}
	return interArea / unionArea
}
