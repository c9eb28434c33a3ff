package main

import (
	"context"
	"encoding/json"
	"os"

	"github.com/bamot-go/bamot/internal/classparams"
	"github.com/bamot-go/bamot/internal/feature"
	"github.com/bamot-go/bamot/internal/geom"
	"github.com/bamot-go/bamot/internal/mot"
	"github.com/bamot-go/bamot/internal/pipeline"
	"github.com/bamot-go/bamot/internal/track"
	"github.com/bamot-go/bamot/internal/twodtrack"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Manifest is a self-contained, dataset-agnostic description of a run: raw
// grayscale stereo frames, the polygon detections on each, and the full
// ego-pose history, in lieu of the dataset-specific loader §6 treats as an
// external producer outside the MOT core's scope.
type Manifest struct {
	Camera   CameraManifest   `json:"camera"`
	Frames   []FrameManifest  `json:"frames"`
	EgoPoses [][16]float64    `json:"ego_poses"` // row-major 4x4, one per img_id
}

// CameraManifest is the stereo rig calibration: intrinsics (shared by both
// cameras, the common case for a rectified rig) plus the baseline.
type CameraManifest struct {
	Fx       float64 `json:"fx"`
	Fy       float64 `json:"fy"`
	Cx       float64 `json:"cx"`
	Cy       float64 `json:"cy"`
	Baseline float64 `json:"baseline"`
}

// FrameManifest is one frame's raw images and detections.
type FrameManifest struct {
	ImgID         uint64               `json:"img_id"`
	Width         int                  `json:"width"`
	Height        int                  `json:"height"`
	LeftImage     string               `json:"left_image"`  // path to a raw W*H 8-bit grayscale file
	RightImage    string               `json:"right_image"`
	Detections    []DetectionManifest  `json:"detections"`
}

// DetectionManifest is one detection's class and left/right silhouette
// polygons, the manifest's stand-in for §6's `{mask, class, track_id?}`.
type DetectionManifest struct {
	Class         string      `json:"class"`
	LeftPolygon   [][2]float64 `json:"left_polygon"`
	RightPolygon  [][2]float64 `json:"right_polygon"`
	ExternalID    uint64      `json:"external_id"`
	HasExternalID bool        `json:"has_external_id"`
}

// LoadManifest reads and parses a run manifest from path.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "manifest: read %s", path)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, errors.Wrapf(err, "manifest: parse %s", path)
	}
	return &m, nil
}

// StereoCamera builds the rig description mot.Engine needs from the
// manifest's calibration block.
func (m *Manifest) StereoCamera() geom.StereoCamera {
	intr := geom.Intrinsics{Fx: m.Camera.Fx, Fy: m.Camera.Fy, Cx: m.Camera.Cx, Cy: m.Camera.Cy}
	return geom.StereoCamera{
		Left:       intr,
		Right:      intr,
		TLeftRight: geom.NewTransform(identity3x3(), geom.Point3{X: m.Camera.Baseline}),
	}
}

func identity3x3() *mat.Dense {
	d := mat.NewDense(3, 3, nil)
	for i := 0; i < 3; i++ {
		d.Set(i, i, 1)
	}
	return d
}

// loadImage reads a raw W*H 8-bit grayscale frame from disk.
func loadImage(path string, width, height int) (feature.Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return feature.Image{}, errors.Wrapf(err, "manifest: read image %s", path)
	}
	if len(data) != width*height {
		return feature.Image{}, errors.Errorf("manifest: image %s is %d bytes, expected %dx%d=%d", path, len(data), width, height, width*height)
	}
	return feature.Image{Width: width, Height: height, Data: data}, nil
}

// rasterizeMask fills a boolean occupancy mask for polygon using an
// even-odd point-in-polygon test, the manifest's lightweight stand-in for
// internal/geom's gocv-backed RasterizeConvexHull (detections here arrive
// as already-traced polygons, not landmark point clouds needing a hull).
func rasterizeMask(width, height int, polygon [][2]float64) feature.Mask {
	mask := feature.Mask{Width: width, Height: height, Data: make([]bool, width*height)}
	if len(polygon) < 3 {
		return mask
	}
	for y := 0; y < height; y++ {
		py := float64(y) + 0.5
		for x := 0; x < width; x++ {
			px := float64(x) + 0.5
			if pointInPolygon(px, py, polygon) {
				mask.Data[y*width+x] = true
			}
		}
	}
	return mask
}

func pointInPolygon(px, py float64, polygon [][2]float64) bool {
	inside := false
	n := len(polygon)
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		xi, yi := polygon[i][0], polygon[i][1]
		xj, yj := polygon[j][0], polygon[j][1]
		intersects := (yi > py) != (yj > py) &&
			px < (xj-xi)*(py-yi)/(yj-yi)+xi
		if intersects {
			inside = !inside
		}
	}
	return inside
}

// buildFrames extracts features for every manifest detection via matcher
// and streams one pipeline.FrameInput per manifest frame onto a channel,
// closing it once every frame has been sent or ctx is canceled. Detections
// without a manifest-supplied external ID are run through a 2D bounding-box
// tracker (internal/twodtrack) instead, standing in for the upstream 2D
// tracking process Stage B's corroboration assumes exists.
func buildFrames(ctx context.Context, m *Manifest, matcher feature.Matcher) (<-chan pipeline.FrameInput, <-chan error) {
	out := make(chan pipeline.FrameInput, len(m.Frames))
	errs := make(chan error, 1)
	producer := twodtrack.NewProducer()
	go func() {
		defer close(out)
		defer close(errs)
		for _, fm := range m.Frames {
			left, err := loadImage(fm.LeftImage, fm.Width, fm.Height)
			if err != nil {
				errs <- err
				return
			}
			right, err := loadImage(fm.RightImage, fm.Width, fm.Height)
			if err != nil {
				errs <- err
				return
			}

			externalIDs, err := resolveExternalIDs(producer, fm.Detections)
			if err != nil {
				errs <- errors.Wrapf(err, "img %d: resolve external ids", fm.ImgID)
				return
			}

			detections := make([]mot.Detection, 0, len(fm.Detections))
			for i, dm := range fm.Detections {
				leftMask := rasterizeMask(fm.Width, fm.Height, dm.LeftPolygon)
				rightMask := rasterizeMask(fm.Width, fm.Height, dm.RightPolygon)

				leftFeatures, err := matcher.Detect(left, leftMask, fm.ImgID, uint64(externalIDs[i]), feature.Left)
				if err != nil {
					errs <- errors.Wrapf(err, "img %d: detect left features", fm.ImgID)
					return
				}
				rightFeatures, err := matcher.Detect(right, rightMask, fm.ImgID, uint64(externalIDs[i]), feature.Right)
				if err != nil {
					errs <- errors.Wrapf(err, "img %d: detect right features", fm.ImgID)
					return
				}
				stereoMatches, err := matcher.Match(leftFeatures, rightFeatures)
				if err != nil {
					errs <- errors.Wrapf(err, "img %d: match stereo features", fm.ImgID)
					return
				}

				detections = append(detections, mot.Detection{
					Class:         classparams.Class(dm.Class),
					LeftMask:      leftMask,
					RightMask:     rightMask,
					LeftFeatures:  leftFeatures,
					RightFeatures: rightFeatures,
					StereoMatches: stereoMatches,
					ExternalID:    externalIDs[i],
					HasExternalID: externalIDs[i] != 0,
				})
			}

			select {
			case out <- pipeline.FrameInput{
				ImgID:      fm.ImgID,
				Image:      pipeline.StereoImage{Left: left, Right: right},
				Detections: detections,
			}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, errs
}

// resolveExternalIDs returns one track.ID per detection: the manifest's own
// value where supplied (e.g. dataset ground truth), otherwise the id the 2D
// bounding-box tracker assigns from the detection's left-image silhouette.
func resolveExternalIDs(producer *twodtrack.Producer, detections []DetectionManifest) ([]track.ID, error) {
	ids := make([]track.ID, len(detections))
	var trackedIdx []int
	var boxes []twodtrack.Rectangle
	var confidences []float64
	for i, dm := range detections {
		if dm.HasExternalID {
			ids[i] = track.ID(dm.ExternalID)
			continue
		}
		trackedIdx = append(trackedIdx, i)
		boxes = append(boxes, twodtrack.BoundingBox(dm.LeftPolygon))
		confidences = append(confidences, 1.0)
	}
	if len(trackedIdx) == 0 {
		return ids, nil
	}
	assigned, err := producer.Assign(boxes, confidences)
	if err != nil {
		return nil, err
	}
	for j, i := range trackedIdx {
		ids[i] = assigned[j]
	}
	return ids, nil
}

// buildEgoPoses streams one pipeline.EgoPoseBatch per frame, all carrying
// the manifest's full pose list (a manifest knows every pose up front,
// unlike a live SLAM producer that grows the list frame by frame).
func buildEgoPoses(ctx context.Context, m *Manifest, frameCount int) <-chan pipeline.EgoPoseBatch {
	batch := make(pipeline.EgoPoseBatch, len(m.EgoPoses))
	for i, vals := range m.EgoPoses {
		batch[i] = geom.FromRowMajor4x4(vals)
	}
	out := make(chan pipeline.EgoPoseBatch, frameCount)
	go func() {
		defer close(out)
		for i := 0; i < frameCount; i++ {
			select {
			case out <- batch:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}
