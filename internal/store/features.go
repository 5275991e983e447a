// Package store caches loaded feature sets in DuckDB so they can be
// inspected with SQL.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/paulmach/orb/geojson"

	"github.com/joeblew999/plat-wfs/internal/feature"
)

const schema = `CREATE TABLE IF NOT EXISTS features (
	layer_id   VARCHAR NOT NULL,
	feature_id VARCHAR NOT NULL,
	properties VARCHAR,
	geometry   VARCHAR,
	min_x      DOUBLE,
	min_y      DOUBLE,
	max_x      DOUBLE,
	max_y      DOUBLE,
	loaded_at  TIMESTAMP NOT NULL
)`

// FeatureStore keeps the most recent feature set of each layer.
type FeatureStore struct {
	db  *sql.DB
	now func() time.Time
}

// New creates the features table if needed.
func New(ctx context.Context, db *sql.DB) (*FeatureStore, error) {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("create features table: %w", err)
	}
	return &FeatureStore{db: db, now: time.Now}, nil
}

// SaveFeatures replaces the stored features of a layer with src.
func (s *FeatureStore) SaveFeatures(ctx context.Context, layerID string, src *feature.Collection) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM features WHERE layer_id = ?`, layerID); err != nil {
		return fmt.Errorf("clear layer %q: %w", layerID, err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO features
		(layer_id, feature_id, properties, geometry, min_x, min_y, max_x, max_y, loaded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	loaded := s.now().UTC()
	for f := range src.All() {
		props, err := json.Marshal(f.Properties)
		if err != nil {
			return fmt.Errorf("feature %s properties: %w", f.ID, err)
		}
		var geom []byte
		if f.Geometry != nil {
			if geom, err = geojson.NewGeometry(f.Geometry).MarshalJSON(); err != nil {
				return fmt.Errorf("feature %s geometry: %w", f.ID, err)
			}
		}
		b := f.Bound()
		if _, err := stmt.ExecContext(ctx, layerID, string(f.ID), string(props), nullable(geom),
			b.Min[0], b.Min[1], b.Max[0], b.Max[1], loaded); err != nil {
			return fmt.Errorf("insert feature %s: %w", f.ID, err)
		}
	}
	return tx.Commit()
}

func nullable(b []byte) any {
	if b == nil {
		return nil
	}
	return string(b)
}

// LayerSummary describes one cached layer.
type LayerSummary struct {
	LayerID  string    `json:"layerId" doc:"Layer ID"`
	Features int       `json:"features" doc:"Number of cached features"`
	LoadedAt time.Time `json:"loadedAt" doc:"When the features were loaded"`
}

// Layers summarises the cached layers ordered by ID.
func (s *FeatureStore) Layers(ctx context.Context) ([]LayerSummary, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT layer_id, count(*), max(loaded_at)
		FROM features GROUP BY layer_id ORDER BY layer_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	layers := []LayerSummary{}
	for rows.Next() {
		var l LayerSummary
		if err := rows.Scan(&l.LayerID, &l.Features, &l.LoadedAt); err != nil {
			return nil, err
		}
		layers = append(layers, l)
	}
	return layers, rows.Err()
}

// Feature loads one cached feature.
func (s *FeatureStore) Feature(ctx context.Context, layerID string, id feature.ID) (*geojson.Feature, error) {
	var props string
	var geom sql.NullString
	err := s.db.QueryRowContext(ctx, `SELECT properties, geometry FROM features
		WHERE layer_id = ? AND feature_id = ?`, layerID, string(id)).Scan(&props, &geom)
	if err != nil {
		return nil, err
	}

	f := &geojson.Feature{Type: "Feature", ID: string(id), Properties: geojson.Properties{}}
	if err := json.Unmarshal([]byte(props), &f.Properties); err != nil {
		return nil, fmt.Errorf("feature %s properties: %w", id, err)
	}
	if geom.Valid {
		g, err := geojson.UnmarshalGeometry([]byte(geom.String))
		if err != nil {
			return nil, fmt.Errorf("feature %s geometry: %w", id, err)
		}
		f.Geometry = g.Geometry()
	}
	return f, nil
}
