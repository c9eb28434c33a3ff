package feature

import (
	"image"
	"image/color"

	"github.com/bamot-go/bamot/internal/geom"
	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// ORBMatcher is a reference implementation of Matcher backed by gocv's ORB
// detector/descriptor and a brute-force Hamming matcher. It is one concrete
// plug-in among possibly many; the core packages never import it directly
// (see internal/feature.Matcher), only cmd/bamot wires a concrete
// instance in, mirroring how the teacher's trackers are generic over a Blob
// type and never hard-code a single concrete blob.
type ORBMatcher struct {
	orb       gocv.ORB
	matcher   gocv.BFMatcher
	crossRatio float64
}

// NewORBMatcher builds an ORBMatcher. crossRatio is stored but no method
// reads it: matching is pure mutual nearest-neighbor (cross-checked
// brute-force Hamming), with no best/second-best ratio filtering.
func NewORBMatcher(maxFeatures int, crossRatio float64) *ORBMatcher {
	return &ORBMatcher{
		orb:        gocv.NewORBWithParams(maxFeatures, 1.2, 8, 31, 0, 2, gocv.ORBScoreTypeHarris, 31, 20),
		matcher:    gocv.NewBFMatcherWithParams(gocv.NormHamming, true),
		crossRatio: crossRatio,
	}
}

// Close releases the underlying OpenCV resources.
func (m *ORBMatcher) Close() error {
	if err := m.orb.Close(); err != nil {
		return err
	}
	return m.matcher.Close()
}

// Detect runs ORB keypoint detection + descriptor extraction restricted to
// the given mask region.
func (m *ORBMatcher) Detect(img Image, mask Mask, imgID, trackID uint64, side Side) ([]Feature, error) {
	mat, err := imageToMat(img)
	if err != nil {
		return nil, errors.Wrapf(err, "feature: convert image for track %d image %d", trackID, imgID)
	}
	defer mat.Close()
	maskMat := maskToMat(mask)
	defer maskMat.Close()

	kps := gocv.NewMat()
	defer kps.Close()
	descriptors := gocv.NewMat()
	defer descriptors.Close()
	keypoints := m.orb.DetectAndCompute(mat, maskMat, &descriptors)

	out := make([]Feature, 0, len(keypoints))
	for i, kp := range keypoints {
		out = append(out, Feature{
			Point:      geom.Point2{U: kp.X, V: kp.Y},
			Descriptor: rowToFloats(descriptors, i),
		})
	}
	return out, nil
}

// Match runs brute-force Hamming matching between two ORB descriptor lists
// and enforces each index appears at most once per side by discarding any
// duplicate assignment in favor of the closer pair, the symmetry guarantee
// §4.2 requires of a Matcher.
func (m *ORBMatcher) Match(a, b []Feature) ([]Match, error) {
	if len(a) == 0 || len(b) == 0 {
		return nil, nil
	}
	descA := descriptorsToMat(a)
	defer descA.Close()
	descB := descriptorsToMat(b)
	defer descB.Close()

	raw := m.matcher.Match(descA, descB)
	bestForB := make(map[int]gocv.DMatch)
	for _, dm := range raw {
		existing, ok := bestForB[dm.TrainIdx]
		if !ok || dm.Distance < existing.Distance {
			bestForB[dm.TrainIdx] = dm
		}
	}
	out := make([]Match, 0, len(bestForB))
	for trainIdx, dm := range bestForB {
		out = append(out, Match{IndexA: dm.QueryIdx, IndexB: trainIdx})
	}
	return out, nil
}

func imageToMat(img Image) (gocv.Mat, error) {
	if len(img.Data) != img.Width*img.Height {
		return gocv.Mat{}, errors.New("feature: image data size does not match dimensions")
	}
	mat := gocv.NewMatWithSize(img.Height, img.Width, gocv.MatTypeCV8UC1)
	for y := 0; y < img.Height; y++ {
		for x := 0; x < img.Width; x++ {
			mat.SetUCharAt(y, x, img.Data[y*img.Width+x])
		}
	}
	return mat, nil
}

func maskToMat(mask Mask) gocv.Mat {
	mat := gocv.NewMatWithSize(mask.Height, mask.Width, gocv.MatTypeCV8UC1)
	for y := 0; y < mask.Height; y++ {
		for x := 0; x < mask.Width; x++ {
			if mask.Data[y*mask.Width+x] {
				mat.SetUCharAt(y, x, 255)
			}
		}
	}
	return mat
}

func rowToFloats(descriptors gocv.Mat, row int) []float64 {
	cols := descriptors.Cols()
	out := make([]float64, cols)
	for c := 0; c < cols; c++ {
		out[c] = float64(descriptors.GetUCharAt(row, c))
	}
	return out
}

func descriptorsToMat(features []Feature) gocv.Mat {
	if len(features) == 0 {
		return gocv.NewMat()
	}
	cols := len(features[0].Descriptor)
	mat := gocv.NewMatWithSize(len(features), cols, gocv.MatTypeCV8UC1)
	for i, f := range features {
		for c, v := range f.Descriptor {
			mat.SetUCharAt(i, c, byte(v))
		}
	}
	return mat
}

// unused but documents the relationship between a Mask and the
// image.Rectangle a caller might derive from it when rasterizing a hull.
var _ = image.Rectangle{}
var _ = color.RGBA{}
