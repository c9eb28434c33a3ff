// Package classparams exposes the per-class parameter table used throughout
// the tracker. Object classes ("car", "pedestrian") appear only as lookup
// keys into speed/radius/landmark-count limits; this package is that lookup.
package classparams

import "fmt"

// Class identifies a recognized detection class.
type Class string

const (
	Car        Class = "car"
	Pedestrian Class = "pedestrian"
)

// Valid reports whether cls is a recognized class.
func Valid(cls Class) bool {
	return cls == Car || cls == Pedestrian
}

// Params holds the per-class tunables read from Config.
type Params struct {
	MaxSpeed      float64 // m/s, §4.8
	ClusterRadius float64 // meters, §4.4 outlier pruning
	MinLandmarks  int     // §4.10 robust init
}

// Table maps a Class to its Params.
type Table map[Class]Params

// NewTable builds the lookup table from the closed config option set.
func NewTable(maxSpeedCar, maxSpeedPed, clusterRadiusCar, clusterRadiusPed float64, minLandmarksCar, minLandmarksPed int) Table {
	return Table{
		Car: {
			MaxSpeed:      maxSpeedCar,
			ClusterRadius: clusterRadiusCar,
			MinLandmarks:  minLandmarksCar,
		},
		Pedestrian: {
			MaxSpeed:      maxSpeedPed,
			ClusterRadius: clusterRadiusPed,
			MinLandmarks:  minLandmarksPed,
		},
	}
}

// Lookup returns the Params for cls, or an error if cls isn't recognized.
func (t Table) Lookup(cls Class) (Params, error) {
	p, ok := t[cls]
	if !ok {
		return Params{}, fmt.Errorf("classparams: unrecognized class %q", cls)
	}
	return p, nil
}
