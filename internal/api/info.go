package api

import (
	"context"

	"github.com/danielgtaylor/huma/v2"
)

// Version is the service version reported by /api/v1/info.
const Version = "0.1.0"

type InfoHandler struct {
	dataDir  string
	dbOK     bool
	sessions func() int
}

// NewInfoHandler creates the info handler. sessions reports the number of
// open viewer sessions and may be nil.
func NewInfoHandler(dataDir string, dbOK bool, sessions func() int) *InfoHandler {
	return &InfoHandler{dataDir: dataDir, dbOK: dbOK, sessions: sessions}
}

func (h *InfoHandler) RegisterRoutes(api huma.API) {
	huma.Get(api, "/api/v1/info", h.GetInfo, huma.OperationTags("health"))
}

type InfoBody struct {
	Name     string   `json:"name" doc:"Service name"`
	Version  string   `json:"version" doc:"Service version"`
	DataDir  string   `json:"data_dir" doc:"Data directory path"`
	DB       bool     `json:"db" doc:"Whether the feature cache is available"`
	Sessions int      `json:"sessions" doc:"Open viewer sessions"`
	Features []string `json:"features" doc:"Available features"`
}

func (h *InfoHandler) GetInfo(ctx context.Context, input *struct{}) (*struct{ Body InfoBody }, error) {
	features := []string{"wfs", "geojson-sources", "sessions"}
	if h.dbOK {
		features = append(features, "duckdb")
	}
	body := InfoBody{
		Name:     "plat-wfs",
		Version:  Version,
		DataDir:  h.dataDir,
		DB:       h.dbOK,
		Features: features,
	}
	if h.sessions != nil {
		body.Sessions = h.sessions()
	}
	return &struct{ Body InfoBody }{Body: body}, nil
}
