// Package feature holds the vector features a layer renders.
//
// A Feature is identified by pointer within the Collection that produced it.
// After a reload the old pointers are no longer members of the new
// Collection, which is how stale references are detected.
package feature

import (
	"fmt"
	"strconv"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// ID is the stable identifier of a feature within a source.
type ID string

// Feature is a single geometric record with named attributes.
// The core never mutates its geometry or attributes.
type Feature struct {
	ID         ID
	Geometry   orb.Geometry
	Properties geojson.Properties
}

// Get returns the attribute value for name.
func (f *Feature) Get(name string) (any, bool) {
	if f == nil || f.Properties == nil {
		return nil, false
	}
	v, ok := f.Properties[name]
	return v, ok
}

// String returns the attribute value for name formatted for display.
// Missing attributes format as the empty string.
func (f *Feature) String(name string) string {
	v, ok := f.Get(name)
	if !ok || v == nil {
		return ""
	}
	return FormatValue(v)
}

// Bound returns the bounding extent of the feature geometry.
func (f *Feature) Bound() orb.Bound {
	if f == nil || f.Geometry == nil {
		return orb.Bound{}
	}
	return f.Geometry.Bound()
}

// FormatValue renders an attribute value the way it appears in popups and
// classification keys. JSON numbers decode as float64, so integral floats
// print without a fractional part.
func FormatValue(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case bool:
		return strconv.FormatBool(t)
	case nil:
		return ""
	default:
		return fmt.Sprint(t)
	}
}

// fromGeoJSON builds a Feature, falling back to the "id" attribute and then
// to the position in the collection when the GeoJSON feature has no id.
func fromGeoJSON(gf *geojson.Feature, index int) *Feature {
	id := ID("")
	if gf.ID != nil {
		id = ID(FormatValue(gf.ID))
	}
	if id == "" {
		if v, ok := gf.Properties["id"]; ok && v != nil {
			id = ID(FormatValue(v))
		}
	}
	if id == "" {
		id = ID("feature." + strconv.Itoa(index))
	}

	props := make(geojson.Properties, len(gf.Properties))
	for k, v := range gf.Properties {
		props[k] = v
	}

	return &Feature{
		ID:         id,
		Geometry:   gf.Geometry,
		Properties: props,
	}
}
