package feature

import (
	"iter"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// Collection is the feature source of a layer. Iteration order is the
// order features were added, which is also the draw order.
type Collection struct {
	features []*Feature
	byID     map[ID]*Feature
}

// NewCollection creates a collection holding the given features.
// A later feature with a duplicate ID replaces the earlier one.
func NewCollection(features ...*Feature) *Collection {
	c := &Collection{byID: make(map[ID]*Feature, len(features))}
	c.Add(features...)
	return c
}

// FromGeoJSON converts a parsed GeoJSON feature collection. Features
// without a geometry are skipped.
func FromGeoJSON(fc *geojson.FeatureCollection) *Collection {
	c := &Collection{byID: make(map[ID]*Feature)}
	if fc == nil {
		return c
	}
	for i, gf := range fc.Features {
		if gf == nil || gf.Geometry == nil {
			continue
		}
		c.Add(fromGeoJSON(gf, i))
	}
	return c
}

// Add appends features to the collection.
func (c *Collection) Add(features ...*Feature) {
	for _, f := range features {
		if f == nil {
			continue
		}
		if old, ok := c.byID[f.ID]; ok {
			for i, existing := range c.features {
				if existing == old {
					c.features[i] = f
					break
				}
			}
		} else {
			c.features = append(c.features, f)
		}
		c.byID[f.ID] = f
	}
}

// Len returns the number of features.
func (c *Collection) Len() int {
	if c == nil {
		return 0
	}
	return len(c.features)
}

// Lookup returns the feature with the given ID.
func (c *Collection) Lookup(id ID) (*Feature, bool) {
	if c == nil {
		return nil, false
	}
	f, ok := c.byID[id]
	return f, ok
}

// Contains reports whether f is a current member of the collection.
// Membership is by identity: a feature from a previous load with the same
// ID is not contained.
func (c *Collection) Contains(f *Feature) bool {
	if c == nil || f == nil {
		return false
	}
	return c.byID[f.ID] == f
}

// All iterates features in draw order.
func (c *Collection) All() iter.Seq[*Feature] {
	return func(yield func(*Feature) bool) {
		if c == nil {
			return
		}
		for _, f := range c.features {
			if !yield(f) {
				return
			}
		}
	}
}

// Features returns a copy of the feature slice.
func (c *Collection) Features() []*Feature {
	if c == nil {
		return nil
	}
	out := make([]*Feature, len(c.features))
	copy(out, c.features)
	return out
}

// Bound returns the union of every feature extent. ok is false for an
// empty collection.
func (c *Collection) Bound() (b orb.Bound, ok bool) {
	for f := range c.All() {
		if f.Geometry == nil {
			continue
		}
		fb := f.Bound()
		if !ok {
			b, ok = fb, true
			continue
		}
		b = b.Union(fb)
	}
	return b, ok
}
