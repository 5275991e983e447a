// Package service contains the business logic of the plat-wfs platform.
package service

import (
	"errors"
	"fmt"

	"github.com/joeblew999/plat-wfs/internal/layer"
	"github.com/joeblew999/plat-wfs/internal/wfs"
)

// ErrInvalidLayer is wrapped by LayerConfig validation errors.
var ErrInvalidLayer = errors.New("invalid layer definition")

// LayerConfig is a persisted layer definition: where its features come
// from and how it is displayed. Huma reads the tags for OpenAPI and
// validation.
type LayerConfig struct {
	ID      string        `json:"id,omitempty" yaml:"id,omitempty" doc:"Unique layer identifier" example:"plots"`
	Name    string        `json:"name" yaml:"name" required:"true" minLength:"1" maxLength:"100" doc:"Display name" example:"Plots Layer"`
	WFS     *wfs.Request  `json:"wfs,omitempty" yaml:"wfs,omitempty" doc:"WFS request the features are fetched with"`
	Source  string        `json:"source,omitempty" yaml:"source,omitempty" doc:"Local GeoJSON source file, instead of a WFS request" example:"plots.geojson"`
	Display layer.Options `json:"display,omitempty" yaml:"display,omitempty" doc:"Styling, popup and zoom options"`
}

// Validate checks that exactly one feature origin is set and that the
// display options normalise.
func (c LayerConfig) Validate() error {
	switch {
	case c.WFS == nil && c.Source == "":
		return fmt.Errorf("%w: one of wfs or source is required", ErrInvalidLayer)
	case c.WFS != nil && c.Source != "":
		return fmt.Errorf("%w: wfs and source are mutually exclusive", ErrInvalidLayer)
	case c.WFS != nil && c.WFS.URL == "":
		return fmt.Errorf("%w: wfs url is required", ErrInvalidLayer)
	}
	if _, err := c.LayerOptions().Normalize(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidLayer, err)
	}
	return nil
}

// LayerOptions returns the display options, named after the layer unless
// they carry their own name.
func (c LayerConfig) LayerOptions() layer.Options {
	opts := c.Display
	if opts.Name == "" {
		opts.Name = c.Name
	}
	return opts
}

// Request returns the WFS request with defaults applied, or the zero
// request for source layers.
func (c LayerConfig) Request() wfs.Request {
	if c.WFS == nil {
		return wfs.Request{}
	}
	return c.WFS.WithDefaults()
}

// SourceFile represents a local source data file.
type SourceFile struct {
	Name     string `json:"name" doc:"File name" example:"plots.geojson"`
	Size     string `json:"size" doc:"Human-readable file size" example:"1.2 MB"`
	FileType string `json:"fileType" doc:"File type" example:"GeoJSON"`
}
