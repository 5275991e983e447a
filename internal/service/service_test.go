package service

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeblew999/plat-wfs/internal/layer"
	"github.com/joeblew999/plat-wfs/internal/wfs"
)

func wfsLayer(name string) LayerConfig {
	return LayerConfig{
		Name: name,
		WFS:  &wfs.Request{URL: "http://wfs.test/ows", TypeName: "CBD:plots"},
	}
}

func TestLayerServicePersists(t *testing.T) {
	dir := t.TempDir()
	s := NewLayerService(dir)

	created, err := s.Create(wfsLayer("Plots Layer"))
	require.NoError(t, err)
	assert.Equal(t, "plots_layer", created.ID)

	_, err = s.Create(wfsLayer("Plots Layer"))
	assert.ErrorIs(t, err, ErrExists)

	_, err = s.Create(wfsLayer("Acacia"))
	require.NoError(t, err)
	sorted := s.Sorted()
	require.Len(t, sorted, 2)
	assert.Equal(t, "acacia", sorted[0].ID)
	assert.Equal(t, "plots_layer", sorted[1].ID)
	require.NoError(t, s.Delete("acacia"))

	reopened := NewLayerService(dir)
	got, ok := reopened.Get("plots_layer")
	require.True(t, ok)
	assert.Equal(t, "CBD:plots", got.WFS.TypeName)

	updated := wfsLayer("Plots")
	updated.Display.Boundary = "red"
	got, err = reopened.Update("plots_layer", updated)
	require.NoError(t, err)
	assert.Equal(t, "plots_layer", got.ID)
	assert.Equal(t, "red", got.Display.Boundary)

	_, err = reopened.Update("missing", updated)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, reopened.Delete("plots_layer"))
	assert.ErrorIs(t, reopened.Delete("plots_layer"), ErrNotFound)
	assert.Empty(t, NewLayerService(dir).List())
}

func TestLayerConfigValidate(t *testing.T) {
	bad := -1.0
	tests := []struct {
		name string
		cfg  LayerConfig
	}{
		{"no origin", LayerConfig{Name: "x"}},
		{"both origins", LayerConfig{Name: "x", Source: "a.geojson", WFS: &wfs.Request{URL: "http://wfs.test"}}},
		{"empty url", LayerConfig{Name: "x", WFS: &wfs.Request{}}},
		{"bad display", LayerConfig{Name: "x", Source: "a.geojson", Display: layer.Options{Opacity: &bad}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.cfg.Validate(), ErrInvalidLayer)
		})
	}
	assert.NoError(t, wfsLayer("ok").Validate())
}

func TestLayerConfigDefaults(t *testing.T) {
	cfg := wfsLayer("Plots Layer")
	assert.Equal(t, "Plots Layer", cfg.LayerOptions().Name)
	req := cfg.Request()
	assert.Equal(t, wfs.MethodGet, req.Method)
	assert.Equal(t, "application/json", req.OutputFormat)
	assert.Equal(t, wfs.Request{}, LayerConfig{Source: "a.geojson"}.Request())
}

func TestGenerateID(t *testing.T) {
	assert.Equal(t, "plots_layer_2", generateID("Plots Layer 2"))
	assert.Equal(t, "cbd_plots", generateID("CBD:plots"))
	assert.Equal(t, "land_use", generateID("  Land--Use  "))
	assert.Empty(t, generateID("***"))
}

const twoPlots = `{"type":"FeatureCollection","features":[
{"type":"Feature","id":"1","properties":{"landuse":"RESIDENTIAL"},"geometry":{"type":"Point","coordinates":[1,2]}},
{"type":"Feature","id":"2","properties":{"landuse":"COMMERCIAL"},"geometry":{"type":"Point","coordinates":[3,4]}}]}`

func TestSourceService(t *testing.T) {
	dir := t.TempDir()
	s := NewSourceService(dir)

	files, err := s.List()
	require.NoError(t, err)
	assert.Empty(t, files)

	require.NoError(t, os.MkdirAll(s.SourcesDir(), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(s.SourcesDir(), "plots.geojson"), []byte(twoPlots), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(s.SourcesDir(), "notes.txt"), []byte("x"), 0o644))

	files, err = s.List()
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "plots.geojson", files[0].Name)
	assert.Equal(t, "GeoJSON", files[0].FileType)

	fc, err := s.Fetcher("plots.geojson").Fetch(context.Background(), wfs.Request{})
	require.NoError(t, err)
	assert.Len(t, fc.Features, 2)

	for _, name := range []string{"", "../layers.json", "sub/plots.geojson", "notes.txt"} {
		_, err := s.Load(name)
		assert.ErrorIs(t, err, ErrInvalidSource, name)
	}
	_, err = s.Load("missing.geojson")
	assert.Error(t, err)
}

func TestSourceServiceSaveDelete(t *testing.T) {
	s := NewSourceService(t.TempDir())

	require.NoError(t, s.Save("upload.geojson", strings.NewReader(twoPlots)))
	fc, err := s.Load("upload.geojson")
	require.NoError(t, err)
	assert.Len(t, fc.Features, 2)

	assert.ErrorIs(t, s.Save("bad.geojson", strings.NewReader("not json")), ErrInvalidSource)
	assert.ErrorIs(t, s.Save("../escape.geojson", strings.NewReader(twoPlots)), ErrInvalidSource)

	require.NoError(t, s.Delete("upload.geojson"))
	assert.ErrorIs(t, s.Delete("upload.geojson"), ErrNotFound)
}

func TestFormatSize(t *testing.T) {
	assert.Equal(t, "512 B", formatSize(512))
	assert.Equal(t, "1.5 KB", formatSize(1536))
	assert.Equal(t, "2.0 MB", formatSize(2<<20))
}

func TestEventBusFilters(t *testing.T) {
	b := NewEventBus()
	all := b.Subscribe(nil)
	one := b.Subscribe(ForResource("sessions", "abc"))
	assert.Equal(t, 2, b.Len())

	b.Publish(Event{Resource: "sessions", Action: "changed", ID: "xyz"})
	b.Publish(Event{Resource: "sessions", Action: "changed", ID: "abc", Data: 1})

	assert.Equal(t, "xyz", (<-all).ID)
	assert.Equal(t, "abc", (<-all).ID)
	got := <-one
	assert.Equal(t, "abc", got.ID)
	assert.Equal(t, 1, got.Data)
	assert.Empty(t, one)

	b.Unsubscribe(one)
	_, open := <-one
	assert.False(t, open)
	assert.Equal(t, 1, b.Len())
}
