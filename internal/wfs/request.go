// Package wfs fetches GeoJSON feature collections from a Web Feature
// Service.
package wfs

import (
	"maps"
	"net/url"
	"slices"
)

// Method is how parameters reach the service.
type Method string

const (
	// MethodGet sends an OGC key-value query string.
	MethodGet Method = "GET"
	// MethodPost sends the parameters as a JSON object, as expected by
	// WFS proxy endpoints.
	MethodPost Method = "POST"
)

// Request describes one GetFeature call. Parameters are passed through
// unmodified.
type Request struct {
	URL          string            `json:"url" yaml:"url" required:"true" doc:"WFS endpoint URL" example:"http://localhost:8080/geoserver/CBD/ows"`
	Method       Method            `json:"method,omitempty" yaml:"method,omitempty" enum:"GET,POST" default:"GET" doc:"HTTP method"`
	Service      string            `json:"service,omitempty" yaml:"service,omitempty" default:"WFS" doc:"OGC service"`
	Version      string            `json:"version,omitempty" yaml:"version,omitempty" default:"1.0.0" doc:"WFS version"`
	Request      string            `json:"request,omitempty" yaml:"request,omitempty" default:"GetFeature" doc:"WFS request"`
	TypeName     string            `json:"typeName" yaml:"typeName" doc:"Feature type name" example:"CBD:plots"`
	OutputFormat string            `json:"outputFormat,omitempty" yaml:"outputFormat,omitempty" default:"application/json" doc:"Output format"`
	AuthKey      string            `json:"authKey,omitempty" yaml:"authKey,omitempty" doc:"Authentication token"`
	Extra        map[string]string `json:"extra,omitempty" yaml:"extra,omitempty" doc:"Additional request parameters"`
}

// WithDefaults fills unset OGC parameters.
func (r Request) WithDefaults() Request {
	if r.Method == "" {
		r.Method = MethodGet
	}
	if r.Service == "" {
		r.Service = "WFS"
	}
	if r.Version == "" {
		r.Version = "1.0.0"
	}
	if r.Request == "" {
		r.Request = "GetFeature"
	}
	if r.OutputFormat == "" {
		r.OutputFormat = "application/json"
	}
	return r
}

// Params returns the request parameters by name.
func (r Request) Params() map[string]string {
	p := make(map[string]string, 6+len(r.Extra))
	maps.Copy(p, r.Extra)
	set := func(k, v string) {
		if v != "" {
			p[k] = v
		}
	}
	set("service", r.Service)
	set("version", r.Version)
	set("request", r.Request)
	set("typeName", r.TypeName)
	set("outputFormat", r.OutputFormat)
	set("authkey", r.AuthKey)
	return p
}

// Query encodes the parameters as a query string in sorted key order.
func (r Request) Query() string {
	p := r.Params()
	v := url.Values{}
	for _, k := range slices.Sorted(maps.Keys(p)) {
		v.Set(k, p[k])
	}
	return v.Encode()
}
