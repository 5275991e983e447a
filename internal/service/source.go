package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/paulmach/orb/geojson"

	"github.com/joeblew999/plat-wfs/internal/layer"
	"github.com/joeblew999/plat-wfs/internal/wfs"
)

// ErrInvalidSource is returned for source names that are not a plain
// GeoJSON file name.
var ErrInvalidSource = errors.New("invalid source name")

// SourceService manages local GeoJSON source files.
type SourceService struct {
	sourcesDir string
}

// NewSourceService creates a new source service.
func NewSourceService(dataDir string) *SourceService {
	return &SourceService{
		sourcesDir: filepath.Join(dataDir, "sources"),
	}
}

// Supported source file extensions and their types.
var extToType = map[string]string{
	".geojson": "GeoJSON",
	".json":    "GeoJSON",
}

// List returns all available source files.
func (s *SourceService) List() ([]SourceFile, error) {
	entries, err := os.ReadDir(s.sourcesDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []SourceFile{}, nil
		}
		return nil, err
	}

	files := []SourceFile{}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		ext := strings.ToLower(filepath.Ext(entry.Name()))
		fileType, ok := extToType[ext]
		if !ok {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}

		files = append(files, SourceFile{
			Name:     entry.Name(),
			Size:     formatSize(info.Size()),
			FileType: fileType,
		})
	}

	return files, nil
}

func checkName(name string) error {
	if name == "" || name != filepath.Base(name) || strings.Contains(name, "..") {
		return fmt.Errorf("%w: %q", ErrInvalidSource, name)
	}
	if _, ok := extToType[strings.ToLower(filepath.Ext(name))]; !ok {
		return fmt.Errorf("%w: %q is not GeoJSON", ErrInvalidSource, name)
	}
	return nil
}

// Load reads and parses a source file.
func (s *SourceService) Load(name string) (*geojson.FeatureCollection, error) {
	if err := checkName(name); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(filepath.Join(s.sourcesDir, name))
	if err != nil {
		return nil, fmt.Errorf("read source %q: %w", name, err)
	}
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("parse source %q: %w", name, err)
	}
	return fc, nil
}

// Save stores an uploaded source after checking that it parses as a
// GeoJSON feature collection.
func (s *SourceService) Save(name string, r io.Reader) error {
	if err := checkName(name); err != nil {
		return err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("read upload %q: %w", name, err)
	}
	if _, err := geojson.UnmarshalFeatureCollection(data); err != nil {
		return fmt.Errorf("%w: %q: %w", ErrInvalidSource, name, err)
	}
	if err := os.MkdirAll(s.sourcesDir, 0755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(s.sourcesDir, name), data, 0644)
}

// Delete removes a source file.
func (s *SourceService) Delete(name string) error {
	if err := checkName(name); err != nil {
		return err
	}
	if err := os.Remove(filepath.Join(s.sourcesDir, name)); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("source %q: %w", name, ErrNotFound)
		}
		return err
	}
	return nil
}

// Fetcher returns a layer.Fetcher that loads the named source, ignoring
// the WFS request.
func (s *SourceService) Fetcher(name string) layer.Fetcher {
	return layer.FetcherFunc(func(ctx context.Context, _ wfs.Request) (*geojson.FeatureCollection, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return s.Load(name)
	})
}

// SourcesDir returns the path to the sources directory.
func (s *SourceService) SourcesDir() string {
	return s.sourcesDir
}

// formatSize returns a human-readable file size.
func formatSize(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
