package store

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeblew999/plat-wfs/internal/db"
	"github.com/joeblew999/plat-wfs/internal/feature"
)

func newStore(t *testing.T) (*FeatureStore, *sql.DB) {
	t.Helper()
	conn, err := db.Open(db.Config{})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	s, err := New(context.Background(), conn)
	require.NoError(t, err)
	s.now = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }
	return s, conn
}

func collection(ids ...string) *feature.Collection {
	fc := geojson.NewFeatureCollection()
	for i, id := range ids {
		f := geojson.NewFeature(orb.Point{float64(i), float64(i) + 0.5})
		f.ID = id
		f.Properties["landuse"] = "RESIDENTIAL"
		fc.Append(f)
	}
	return feature.FromGeoJSON(fc)
}

func TestSaveReplacesLayer(t *testing.T) {
	ctx := context.Background()
	s, conn := newStore(t)

	require.NoError(t, s.SaveFeatures(ctx, "plots", collection("1", "2", "3")))
	require.NoError(t, s.SaveFeatures(ctx, "roads", collection("a")))
	require.NoError(t, s.SaveFeatures(ctx, "plots", collection("1", "2")))

	layers, err := s.Layers(ctx)
	require.NoError(t, err)
	require.Len(t, layers, 2)
	assert.Equal(t, "plots", layers[0].LayerID)
	assert.Equal(t, 2, layers[0].Features)
	assert.Equal(t, "roads", layers[1].LayerID)
	assert.True(t, layers[0].LoadedAt.Equal(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)))

	var maxY float64
	require.NoError(t, conn.QueryRow(`SELECT max_y FROM features WHERE layer_id = 'plots' AND feature_id = '2'`).Scan(&maxY))
	assert.Equal(t, 1.5, maxY)
}

func TestFeatureRoundTrip(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t)
	require.NoError(t, s.SaveFeatures(ctx, "plots", collection("1", "2")))

	f, err := s.Feature(ctx, "plots", "2")
	require.NoError(t, err)
	assert.Equal(t, "RESIDENTIAL", f.Properties["landuse"])
	assert.Equal(t, orb.Point{1, 1.5}, f.Geometry)

	_, err = s.Feature(ctx, "plots", "9")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}
