// Package popup builds the content and anchor of the feature popup.
package popup

import (
	"bytes"
	"errors"
	"fmt"
	"html/template"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/joeblew999/plat-wfs/internal/feature"
)

// Trigger selects which pointer event shows the popup.
type Trigger string

const (
	TriggerHover Trigger = "hover"
	TriggerClick Trigger = "click"
)

// ErrUnknownTrigger is returned for a trigger other than hover or click.
var ErrUnknownTrigger = errors.New("popup: unknown trigger")

// Offset is the pixel distance between the pointer and the popup corner.
const Offset = 15

// Point is a screen position in pixels.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Template renders popup content for a feature. It may read any attribute.
type Template func(f *feature.Feature) string

// Options is the raw popup configuration. Zero values take defaults.
type Options struct {
	Fields []string
	// Template takes precedence over TemplateText.
	Template Template
	// TemplateText is an html/template body executed with the feature
	// attributes as data, e.g. `<b>{{.name}}</b>`.
	TemplateText string
	Trigger      Trigger
}

// Config is the normalised, immutable popup configuration.
type Config struct {
	fields   []string
	template Template
	trigger  Trigger
}

// NewConfig validates opts and builds the template closure from the
// normalised field list.
func NewConfig(opts Options) (Config, error) {
	trigger := opts.Trigger
	switch trigger {
	case "":
		trigger = TriggerHover
	case TriggerHover, TriggerClick:
	default:
		return Config{}, fmt.Errorf("%w %q", ErrUnknownTrigger, trigger)
	}

	var fields []string
	for _, f := range opts.Fields {
		if f = strings.TrimSpace(f); f != "" {
			fields = append(fields, f)
		}
	}

	tmpl := opts.Template
	if tmpl == nil && opts.TemplateText != "" {
		var err error
		if tmpl, err = ParseTemplate(opts.TemplateText); err != nil {
			return Config{}, err
		}
	}
	if tmpl == nil {
		tmpl = FieldTemplate(fields)
	}

	return Config{fields: fields, template: tmpl, trigger: trigger}, nil
}

// Fields returns a copy of the configured field list.
func (c Config) Fields() []string {
	return append([]string(nil), c.fields...)
}

// Trigger returns the configured trigger.
func (c Config) Trigger() Trigger {
	if c.trigger == "" {
		return TriggerHover
	}
	return c.trigger
}

// Content is a visible popup.
type Content struct {
	HTML   string `json:"html" doc:"Popup HTML content"`
	Anchor Point  `json:"anchor" doc:"Popup top-left corner in pixels"`
}

// Present renders the popup for f at pixel. ok is false when the popup
// must be hidden: no feature, or no fields configured.
func Present(f *feature.Feature, cfg Config, pixel Point) (c Content, ok bool) {
	if f == nil || len(cfg.fields) == 0 {
		return Content{}, false
	}
	tmpl := cfg.template
	if tmpl == nil {
		tmpl = FieldTemplate(cfg.fields)
	}
	return Content{
		HTML:   tmpl(f),
		Anchor: Point{X: pixel.X + Offset, Y: pixel.Y + Offset},
	}, true
}

// Label formats a field name for display: the first letter of each word is
// upper-cased and the rest is kept as written.
func Label(field string) string {
	return cases.Title(language.Und, cases.NoLower).String(field)
}

// FieldTemplate renders one labelled paragraph per field, in order.
func FieldTemplate(fields []string) Template {
	fields = append([]string(nil), fields...)
	return func(f *feature.Feature) string {
		var b strings.Builder
		for _, field := range fields {
			b.WriteString("<p><strong>")
			b.WriteString(template.HTMLEscapeString(Label(field)))
			b.WriteString(":</strong> ")
			b.WriteString(template.HTMLEscapeString(f.String(field)))
			b.WriteString("</p>")
		}
		return b.String()
	}
}

// ParseTemplate compiles an html/template body into a Template. Execution
// errors render as empty content.
func ParseTemplate(text string) (Template, error) {
	t, err := template.New("popup").Option("missingkey=zero").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("parsing popup template: %w", err)
	}
	return func(f *feature.Feature) string {
		var buf bytes.Buffer
		if err := t.Execute(&buf, map[string]any(f.Properties)); err != nil {
			return ""
		}
		return buf.String()
	}, nil
}
