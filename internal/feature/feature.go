// Package feature implements the §4.2 feature abstraction: an opaque
// descriptor/keypoint type plus a pluggable Matcher capability. The core
// algorithm never assumes a particular matching semantic (Lowe ratio vs.
// mutual nearest neighbor); that choice belongs to the Matcher
// implementation.
package feature

import "github.com/bamot-go/bamot/internal/geom"

// Side identifies which camera of the stereo pair a feature was detected on.
type Side string

const (
	Left  Side = "left"
	Right Side = "right"
)

// Feature is an immutable 2D keypoint plus its descriptor, produced once for
// a given (image, mask) pair.
type Feature struct {
	Point      geom.Point2
	Descriptor []float64
}

// Match pairs a feature index from list A with one from list B. A matcher
// guarantees each index appears at most once per side (mutual assignment).
type Match struct {
	IndexA, IndexB int
}

// Matcher is the pluggable capability described in §4.2: detect features on
// a masked region, and match two feature lists.
type Matcher interface {
	// Detect returns an ordered list of features found within mask on the
	// given image side, tagged with imgID/trackID for implementations that
	// cache per-track detector state.
	Detect(image Image, mask Mask, imgID uint64, trackID uint64, side Side) ([]Feature, error)
	// Match returns symmetric correspondences between two feature lists.
	Match(a, b []Feature) ([]Match, error)
}

// Image is a minimal raw-pixel handle; the concrete representation is
// whatever the upstream producer of §6's stereo image stream supplies.
type Image struct {
	Width, Height int
	Data          []byte
}

// Mask is a boolean occupancy image matching a StereoImage's dimensions.
type Mask struct {
	Width, Height int
	Data          []bool
}
