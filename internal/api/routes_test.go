package api

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/humatest"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeblew999/plat-wfs/internal/humastar"
	"github.com/joeblew999/plat-wfs/internal/layer"
	"github.com/joeblew999/plat-wfs/internal/service"
	"github.com/joeblew999/plat-wfs/internal/session"
	"github.com/joeblew999/plat-wfs/internal/wfs"
)

func plots() *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	f := geojson.NewFeature(orb.Polygon{orb.Ring{{0, 0}, {1, 0}, {1, 1}, {0, 1}, {0, 0}}})
	f.ID = "1"
	f.Properties["landuse"] = "RESIDENTIAL"
	fc.Append(f)
	return fc
}

func newTestAPI(t *testing.T, fetch layer.FetcherFunc) humatest.TestAPI {
	t.Helper()
	cfg := huma.DefaultConfig("test", Version)
	cfg.Transformers = append(cfg.Transformers, LinkTransformer())
	_, api := humatest.New(t, cfg)

	RegisterRoutes(api, &Services{
		Layer:    service.NewLayerService(t.TempDir()),
		Sessions: session.NewRegistry(fetch),
	})
	return api
}

func okFetch(context.Context, wfs.Request) (*geojson.FeatureCollection, error) {
	return plots(), nil
}

var plotsLayer = map[string]any{
	"name": "Plots Layer",
	"wfs":  map[string]any{"url": "http://wfs.test/ows", "typeName": "CBD:plots"},
	"display": map[string]any{
		"popupFields":  []string{"landuse"},
		"popupTrigger": "click",
		"zoomToLayer":  true,
	},
}

func decode[T any](t *testing.T, body []byte) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(body, &v))
	return v
}

func TestLayerCRUD(t *testing.T) {
	api := newTestAPI(t, okFetch)

	resp := api.Post("/api/v1/layers", plotsLayer)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	created := decode[CreatedLayerBody](t, resp.Body.Bytes())
	assert.Equal(t, "plots_layer", created.ID)

	resp = api.Get("/api/v1/layers/plots_layer")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Header().Values("Link"), `</api/v1/layers>; rel="collection"`)

	resp = api.Post("/api/v1/layers", plotsLayer)
	assert.Equal(t, http.StatusConflict, resp.Code)

	resp = api.Post("/api/v1/layers", map[string]any{"name": "No Origin"})
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	resp = api.Delete("/api/v1/layers/plots_layer")
	assert.Equal(t, http.StatusOK, resp.Code)
	resp = api.Delete("/api/v1/layers/plots_layer")
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestSessionFlow(t *testing.T) {
	api := newTestAPI(t, okFetch)
	require.Equal(t, http.StatusOK, api.Post("/api/v1/layers", plotsLayer).Code)

	resp := api.Post("/api/v1/layers/plots_layer/sessions")
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	frame := decode[session.Frame](t, resp.Body.Bytes())
	sid := frame.Snapshot.ID
	assert.Equal(t, "ready", frame.Snapshot.Status)
	require.Len(t, frame.Changes.Fits, 1)

	resp = api.Post("/api/v1/sessions/"+sid+"/events", map[string]any{
		"kind":       "singleclick",
		"pixel":      map[string]any{"x": 10, "y": 20},
		"coordinate": []float64{0.5, 0.5},
	})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	frame = decode[session.Frame](t, resp.Body.Bytes())
	assert.Equal(t, "selected", frame.Snapshot.State)
	require.NotNil(t, frame.Snapshot.Popup)
	assert.Equal(t, "<p><strong>Landuse:</strong> RESIDENTIAL</p>", frame.Snapshot.Popup.HTML)
	assert.Contains(t, resp.Header().Values("Link"),
		`</api/v1/sessions/`+sid+`/reload>; rel="reload"; method="POST"; title="Reload features"`)

	resp = api.Get("/api/v1/sessions/" + sid + "/styles")
	require.Equal(t, http.StatusOK, resp.Code)
	styles := decode[map[string]map[string]any](t, resp.Body.Bytes())
	assert.Equal(t, layer.DefaultHoverBoundary, styles["1"]["boundary"])

	resp = api.Get("/api/v1/sessions?limit=10")
	require.Equal(t, http.StatusOK, resp.Code)
	page := decode[humastar.PageBody[session.Snapshot]](t, resp.Body.Bytes())
	assert.Equal(t, 1, page.Total)
	assert.Contains(t, resp.Header().Values("Link"), `</api/v1/sessions?offset=0&limit=10>; rel="first"`)

	resp = api.Post("/api/v1/sessions/"+sid+"/events", map[string]any{"kind": "dblclick"})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.Code, "enum rejects unknown kinds")

	resp = api.Post("/api/v1/sessions/"+sid+"/features", map[string]any{
		"type": "FeatureCollection",
		"features": []any{map[string]any{
			"type":       "Feature",
			"id":         "2",
			"geometry":   map[string]any{"type": "Point", "coordinates": []float64{5, 5}},
			"properties": map[string]any{"landuse": "COMMERCIAL"},
		}},
	})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	frame = decode[session.Frame](t, resp.Body.Bytes())
	assert.Equal(t, 2, frame.Snapshot.Features)
	assert.Equal(t, "selected", frame.Snapshot.State, "appending keeps the selection")
	assert.Empty(t, frame.Changes.Fits, "appending does not refit")

	resp = api.Post("/api/v1/sessions/"+sid+"/features", map[string]any{"type": "Point"})
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	assert.Equal(t, http.StatusOK, api.Post("/api/v1/sessions/"+sid+"/reload").Code)
	assert.Equal(t, http.StatusOK, api.Delete("/api/v1/sessions/"+sid).Code)
	assert.Equal(t, http.StatusNotFound, api.Get("/api/v1/sessions/"+sid).Code)
}

func TestSessionFetchFailureIsBadGateway(t *testing.T) {
	api := newTestAPI(t, func(context.Context, wfs.Request) (*geojson.FeatureCollection, error) {
		return nil, &wfs.FetchError{URL: "http://wfs.test/ows", Payload: "unknown typeName"}
	})

	resp := api.Post("/api/v1/sessions", plotsLayer)
	assert.Equal(t, http.StatusBadGateway, resp.Code)
	assert.Contains(t, resp.Body.String(), "unknown typeName")
}

func TestEventBodyMapEvent(t *testing.T) {
	ev, err := EventBody{Kind: "hover", Coordinate: [2]float64{1, 2}, Outside: true}.MapEvent()
	require.NoError(t, err)
	assert.Equal(t, orb.Point{1, 2}, ev.Coordinate)
	assert.True(t, ev.Outside)

	_, err = EventBody{Kind: "drag"}.MapEvent()
	assert.Error(t, err)
}

func TestStatusError(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{&wfs.FetchError{URL: "u", Status: 500}, http.StatusBadGateway},
		{session.ErrNotFound, http.StatusNotFound},
		{service.ErrNotFound, http.StatusNotFound},
		{layer.ErrInvalidConfig, http.StatusBadRequest},
		{service.ErrInvalidSource, http.StatusBadRequest},
		{layer.ErrSuperseded, http.StatusConflict},
		{service.ErrExists, http.StatusConflict},
		{layer.ErrNotLoaded, http.StatusConflict},
		{assert.AnError, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		var se huma.StatusError
		require.ErrorAs(t, statusError(tt.err), &se)
		assert.Equal(t, tt.want, se.GetStatus(), tt.err.Error())
	}
}

func TestReadOnlyQuery(t *testing.T) {
	assert.True(t, readOnly("SELECT * FROM features"))
	assert.True(t, readOnly("  with x as (select 1) select * from x;"))
	assert.True(t, readOnly("SHOW TABLES"))
	assert.False(t, readOnly("DELETE FROM features"))
	assert.False(t, readOnly("SELECT 1; DROP TABLE features"))
	assert.False(t, readOnly("   "))
}
