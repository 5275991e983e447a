package main

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/joeblew999/plat-wfs/internal/feature"
	"github.com/joeblew999/plat-wfs/internal/layer"
	"github.com/joeblew999/plat-wfs/internal/service"
	"github.com/joeblew999/plat-wfs/internal/wfs"
)

// inspectReport summarises one load of a layer.
type inspectReport struct {
	Layer        string         `yaml:"layer"`
	Features     int            `yaml:"features"`
	Extent       []float64      `yaml:"extent,omitempty,flow"`
	ClassField   string         `yaml:"classField,omitempty"`
	Classes      map[string]int `yaml:"classes,omitempty"`
	Unclassified int            `yaml:"unclassified,omitempty"`
}

func readLayerFile(path string) (service.LayerConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return service.LayerConfig{}, err
	}
	var def service.LayerConfig
	if err := yaml.Unmarshal(data, &def); err != nil {
		return service.LayerConfig{}, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := def.Validate(); err != nil {
		return service.LayerConfig{}, fmt.Errorf("%s: %w", path, err)
	}
	return def, nil
}

func runInspect(ctx context.Context, path, dataDir string, log *zap.Logger) (inspectReport, error) {
	def, err := readLayerFile(path)
	if err != nil {
		return inspectReport{}, err
	}
	var fetcher layer.Fetcher = wfs.NewClient(wfs.WithLogger(log))
	if def.Source != "" {
		fetcher = service.NewSourceService(dataDir).Fetcher(def.Source)
	}
	return inspect(ctx, def, fetcher)
}

func inspect(ctx context.Context, def service.LayerConfig, fetcher layer.Fetcher) (inspectReport, error) {
	cfg, err := def.LayerOptions().Normalize()
	if err != nil {
		return inspectReport{}, err
	}
	fc, err := fetcher.Fetch(ctx, def.Request())
	if err != nil {
		return inspectReport{}, err
	}
	src := feature.FromGeoJSON(fc)

	report := inspectReport{Layer: cfg.Name, Features: src.Len()}
	if b, ok := src.Bound(); ok {
		report.Extent = []float64{b.Min[0], b.Min[1], b.Max[0], b.Max[1]}
	}

	classes := cfg.Palette.Classes
	if classes == nil {
		return report, nil
	}
	report.ClassField = cfg.Palette.ClassField
	report.Classes = map[string]int{}
	for _, key := range classes.Keys() {
		report.Classes[key] = 0
	}
	for f := range src.All() {
		v, _ := f.Get(report.ClassField)
		if _, ok := classes.Lookup(v); ok {
			report.Classes[feature.FormatValue(v)]++
		} else {
			report.Unclassified++
		}
	}
	return report, nil
}
