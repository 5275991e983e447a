// Package style resolves the visual style of a feature from its attributes
// and its interaction state.
package style

// Colors is a fill/boundary color pair. Colors are CSS color strings.
type Colors struct {
	Fill     string `json:"fill,omitempty" yaml:"fill,omitempty" doc:"Fill color (CSS)" example:"rgba(0, 255, 0, 0.5)"`
	Boundary string `json:"boundary,omitempty" yaml:"boundary,omitempty" doc:"Boundary color (CSS)" example:"green"`
}

// over returns c with empty fields taken from base.
func (c Colors) over(base Colors) Colors {
	if c.Fill == "" {
		c.Fill = base.Fill
	}
	if c.Boundary == "" {
		c.Boundary = base.Boundary
	}
	return c
}

// Spec is the fully resolved style of one feature. It is a plain value and
// compares with ==.
type Spec struct {
	Fill        string  `json:"fill" doc:"Fill color (CSS)"`
	Boundary    string  `json:"boundary" doc:"Boundary color (CSS)"`
	Opacity     float64 `json:"opacity" doc:"Opacity (0-1)"`
	StrokeWidth float64 `json:"strokeWidth" doc:"Boundary width in pixels"`
}

// State is one of the three interaction looks a feature can take.
type State struct {
	Colors  Colors
	Opacity float64
}

// Palette is the per-layer style configuration every resolution closes over.
type Palette struct {
	Base        State
	Hover       State
	Selected    State
	StrokeWidth float64

	// ClassField names the attribute looked up in Classes. Classification
	// applies only when both are set.
	ClassField string
	Classes    *ClassificationTable
}
