package track

import "github.com/bamot-go/bamot/internal/classparams"

// Registry owns every ObjectTrack the pipeline has ever created, split into
// the active set (still receiving observations) and a graveyard of
// deactivated tracks retained for association-stage corroboration (§4.9
// Stage B needs to recognize a detection that matches a since-deactivated
// track before minting a brand-new identity).
type Registry struct {
	nextID ID
	tracks map[ID]*ObjectTrack

	// remap records track_id_mapping from the original implementation:
	// when Stage B association decides a 2D-tracker-local ID actually
	// belongs to an existing 3D track, new sightings under the old local
	// ID must resolve to the existing track rather than minting a new one.
	remap map[ID]ID
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		tracks: make(map[ID]*ObjectTrack),
		remap:  make(map[ID]ID),
	}
}

// New allocates a fresh ID and a new active ObjectTrack for it.
func (r *Registry) New(cls classparams.Class) *ObjectTrack {
	id := r.Reserve()
	t := New(id, cls)
	r.tracks[id] = t
	return t
}

// Reserve allocates a fresh ID without creating a track for it yet, for
// callers (association) that need to commit to an identity before they
// know the detection's class; pair with NewWithID once the class is known.
func (r *Registry) Reserve() ID {
	r.nextID++
	return r.nextID
}

// NewWithID creates a track for a previously Reserve()'d id. If id already
// has a track, the existing one is returned unchanged.
func (r *Registry) NewWithID(id ID, cls classparams.Class) *ObjectTrack {
	if t, ok := r.tracks[id]; ok {
		return t
	}
	t := New(id, cls)
	r.tracks[id] = t
	return t
}

// Get resolves an ID through the remap table before returning its track.
func (r *Registry) Get(id ID) (*ObjectTrack, bool) {
	id = r.Resolve(id)
	t, ok := r.tracks[id]
	return t, ok
}

// Resolve follows the remap chain to the canonical ID a local/legacy ID
// currently refers to.
func (r *Registry) Resolve(id ID) ID {
	for {
		target, ok := r.remap[id]
		if !ok {
			return id
		}
		id = target
	}
}

// Remap records that sightings reported under oldID should be attributed to
// canonicalID from now on, mirroring
// `track_id_mapping[track_id] = uuid.uuid1().int`'s effect in the original
// Stage B association logic.
func (r *Registry) Remap(oldID, canonicalID ID) {
	if oldID == canonicalID {
		return
	}
	r.remap[oldID] = canonicalID
}

// Active returns every currently active track.
func (r *Registry) Active() []*ObjectTrack {
	out := make([]*ObjectTrack, 0, len(r.tracks))
	for _, t := range r.tracks {
		if t.Active {
			out = append(out, t)
		}
	}
	return out
}

// Graveyard returns every deactivated track, the pool Stage B consults
// before minting a new identity for an ambiguous detection.
func (r *Registry) Graveyard() []*ObjectTrack {
	out := make([]*ObjectTrack, 0)
	for _, t := range r.tracks {
		if !t.Active {
			out = append(out, t)
		}
	}
	return out
}

// All returns every track the registry has ever created, active or not.
func (r *Registry) All() []*ObjectTrack {
	out := make([]*ObjectTrack, 0, len(r.tracks))
	for _, t := range r.tracks {
		out = append(out, t)
	}
	return out
}
