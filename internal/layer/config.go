// Package layer wires a WFS feature set, the style resolver and the
// interaction machine onto a rendering engine.
package layer

import (
	"errors"
	"fmt"
	"time"

	"github.com/joeblew999/plat-wfs/internal/popup"
	"github.com/joeblew999/plat-wfs/internal/style"
)

// ErrInvalidConfig is wrapped by every Normalize validation error.
var ErrInvalidConfig = errors.New("invalid layer config")

// Defaults.
const (
	DefaultFill          = "rgba(60, 114, 229, 0.5)"
	DefaultBoundary      = "blue"
	DefaultOpacity       = 0.8
	DefaultWidth         = 2
	DefaultHoverFill     = "rgba(255, 255, 0, 0.5)"
	DefaultHoverBoundary = "yellow"
	DefaultHoverOpacity  = 0.7
	DefaultZoomDuration  = 2000 * time.Millisecond
	DefaultMaxZoom       = 15
	DefaultCursor        = "pointer"
	DefaultClassifyField = "landuse"
)

// Options is the display configuration of a layer. Every field is
// optional; Normalize fills defaults.
type Options struct {
	Name string `json:"name,omitempty" yaml:"name,omitempty" doc:"Layer name" example:"Plots Layer"`

	Fill             string `json:"fill,omitempty" yaml:"fill,omitempty" doc:"Fill color (CSS)" example:"rgba(60, 114, 229, 0.5)"`
	Boundary         string `json:"boundary,omitempty" yaml:"boundary,omitempty" doc:"Boundary color (CSS)" example:"blue"`
	HoverFill        string `json:"hoverFill,omitempty" yaml:"hoverFill,omitempty" doc:"Hover fill color (CSS)"`
	HoverBoundary    string `json:"hoverBoundary,omitempty" yaml:"hoverBoundary,omitempty" doc:"Hover boundary color (CSS)"`
	SelectedFill     string `json:"selectedFill,omitempty" yaml:"selectedFill,omitempty" doc:"Selected fill color (CSS), defaults to the hover fill"`
	SelectedBoundary string `json:"selectedBoundary,omitempty" yaml:"selectedBoundary,omitempty" doc:"Selected boundary color (CSS), defaults to the hover boundary"`

	Opacity         *float64 `json:"opacity,omitempty" yaml:"opacity,omitempty" minimum:"0" maximum:"1" doc:"Opacity (0-1)"`
	HoverOpacity    *float64 `json:"hoverOpacity,omitempty" yaml:"hoverOpacity,omitempty" minimum:"0" maximum:"1" doc:"Hover opacity (0-1)"`
	SelectedOpacity *float64 `json:"selectedOpacity,omitempty" yaml:"selectedOpacity,omitempty" minimum:"0" maximum:"1" doc:"Selected opacity (0-1)"`
	Width           float64  `json:"width,omitempty" yaml:"width,omitempty" minimum:"0" doc:"Boundary width in pixels"`

	ZoomToLayer    bool    `json:"zoomToLayer,omitempty" yaml:"zoomToLayer,omitempty" doc:"Fit the view to the layer once loaded"`
	ZoomDurationMS int     `json:"zoomDurationMs,omitempty" yaml:"zoomDurationMs,omitempty" minimum:"0" doc:"View fit animation duration in milliseconds"`
	ZoomMaxZoom    float64 `json:"zoomMaxZoom,omitempty" yaml:"zoomMaxZoom,omitempty" minimum:"0" doc:"Maximum zoom when fitting the layer"`
	ZoomToFeature  bool    `json:"zoomToFeature,omitempty" yaml:"zoomToFeature,omitempty" doc:"Fit the view to a clicked feature"`
	SelectOnClick  bool    `json:"selectOnClick,omitempty" yaml:"selectOnClick,omitempty" doc:"Highlight clicked features even when the popup trigger is hover"`
	Cursor         string  `json:"cursor,omitempty" yaml:"cursor,omitempty" doc:"Cursor over features" example:"pointer"`

	PopupFields       []string       `json:"popupFields,omitempty" yaml:"popupFields,omitempty" doc:"Attributes shown in the popup"`
	PopupTemplate     popup.Template `json:"-" yaml:"-"`
	PopupTemplateText string         `json:"popupTemplate,omitempty" yaml:"popupTemplate,omitempty" doc:"html/template body for popup content"`
	PopupTrigger      popup.Trigger  `json:"popupTrigger,omitempty" yaml:"popupTrigger,omitempty" enum:"hover,click" doc:"Event that shows the popup"`

	ClassifyField string                  `json:"classifyField,omitempty" yaml:"classifyField,omitempty" doc:"Attribute used for classification" example:"landuse"`
	Classify      map[string]style.Colors `json:"classify,omitempty" yaml:"classify,omitempty" doc:"Colors per classification value"`
}

// Config is the validated, immutable form of Options.
type Config struct {
	Name          string
	Palette       style.Palette
	Popup         popup.Config
	Cursor        string
	ZoomToLayer   bool
	ZoomDuration  time.Duration
	MaxZoom       float64
	ZoomToFeature bool
	SelectOnClick bool
}

// Normalize validates o and applies defaults. The popup template is built
// last, from the normalised field list.
func (o Options) Normalize() (Config, error) {
	opacity, err := unit("opacity", o.Opacity, DefaultOpacity)
	if err != nil {
		return Config{}, err
	}
	hoverOpacity, err := unit("hoverOpacity", o.HoverOpacity, DefaultHoverOpacity)
	if err != nil {
		return Config{}, err
	}
	selectedOpacity, err := unit("selectedOpacity", o.SelectedOpacity, hoverOpacity)
	if err != nil {
		return Config{}, err
	}
	if o.Width < 0 {
		return Config{}, fmt.Errorf("%w: width %v < 0", ErrInvalidConfig, o.Width)
	}
	if o.ZoomDurationMS < 0 {
		return Config{}, fmt.Errorf("%w: zoomDurationMs %d < 0", ErrInvalidConfig, o.ZoomDurationMS)
	}

	width := o.Width
	if width == 0 {
		width = DefaultWidth
	}
	hover := style.Colors{
		Fill:     or(o.HoverFill, DefaultHoverFill),
		Boundary: or(o.HoverBoundary, DefaultHoverBoundary),
	}

	palette := style.Palette{
		Base: style.State{
			Colors:  style.Colors{Fill: or(o.Fill, DefaultFill), Boundary: or(o.Boundary, DefaultBoundary)},
			Opacity: opacity,
		},
		Hover: style.State{Colors: hover, Opacity: hoverOpacity},
		Selected: style.State{
			Colors:  style.Colors{Fill: or(o.SelectedFill, hover.Fill), Boundary: or(o.SelectedBoundary, hover.Boundary)},
			Opacity: selectedOpacity,
		},
		StrokeWidth: width,
	}
	if len(o.Classify) > 0 {
		palette.ClassField = or(o.ClassifyField, DefaultClassifyField)
		palette.Classes = style.NewClassificationTable(o.Classify)
	}

	pc, err := popup.NewConfig(popup.Options{
		Fields:       o.PopupFields,
		Template:     o.PopupTemplate,
		TemplateText: o.PopupTemplateText,
		Trigger:      o.PopupTrigger,
	})
	if err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	duration := DefaultZoomDuration
	if o.ZoomDurationMS > 0 {
		duration = time.Duration(o.ZoomDurationMS) * time.Millisecond
	}
	maxZoom := o.ZoomMaxZoom
	if maxZoom == 0 {
		maxZoom = DefaultMaxZoom
	}

	return Config{
		Name:          o.Name,
		Palette:       palette,
		Popup:         pc,
		Cursor:        or(o.Cursor, DefaultCursor),
		ZoomToLayer:   o.ZoomToLayer,
		ZoomDuration:  duration,
		MaxZoom:       maxZoom,
		ZoomToFeature: o.ZoomToFeature,
		SelectOnClick: o.SelectOnClick,
	}, nil
}

func unit(name string, v *float64, def float64) (float64, error) {
	if v == nil {
		return def, nil
	}
	if *v < 0 || *v > 1 {
		return 0, fmt.Errorf("%w: %s %v outside [0, 1]", ErrInvalidConfig, name, *v)
	}
	return *v, nil
}

func or(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
