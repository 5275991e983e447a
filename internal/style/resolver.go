package style

import "github.com/joeblew999/plat-wfs/internal/feature"

// Func styles a feature in a given interaction state.
type Func func(f *feature.Feature, hovered, selected bool) Spec

// Resolve computes the style of f.
//
// Classification replaces the base colors when the feature's class
// attribute has a table entry; a miss keeps the base colors. Selected
// styling wins over hover styling. Empty state colors keep the classified
// colors, so a palette may vary only opacity per state.
func Resolve(f *feature.Feature, hovered, selected bool, p Palette) Spec {
	colors := p.Base.Colors
	if p.ClassField != "" && p.Classes != nil {
		if v, ok := f.Get(p.ClassField); ok {
			if entry, ok := p.Classes.Lookup(v); ok {
				colors = entry.over(colors)
			}
		}
	}

	state := p.Base
	switch {
	case selected:
		state = p.Selected
	case hovered:
		state = p.Hover
	}
	if selected || hovered {
		colors = state.Colors.over(colors)
	}

	return Spec{
		Fill:        colors.Fill,
		Boundary:    colors.Boundary,
		Opacity:     state.Opacity,
		StrokeWidth: p.StrokeWidth,
	}
}

// Resolver closes Resolve over a palette.
type Resolver struct {
	palette Palette
}

// NewResolver creates a resolver for p.
func NewResolver(p Palette) Resolver {
	return Resolver{palette: p}
}

// Resolve styles f with the resolver's palette.
func (r Resolver) Resolve(f *feature.Feature, hovered, selected bool) Spec {
	return Resolve(f, hovered, selected, r.palette)
}

// Base returns the unhovered, unselected style of f.
func (r Resolver) Base(f *feature.Feature) Spec {
	return Resolve(f, false, false, r.palette)
}

// Func returns the resolver as a style function.
func (r Resolver) Func() Func {
	return r.Resolve
}
