// Package api defines the Huma API routes and handlers.
package api

import (
	"context"
	"database/sql"
	"errors"

	"github.com/danielgtaylor/huma/v2"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/joeblew999/plat-wfs/internal/feature"
	"github.com/joeblew999/plat-wfs/internal/humastar"
	"github.com/joeblew999/plat-wfs/internal/interaction"
	"github.com/joeblew999/plat-wfs/internal/layer"
	"github.com/joeblew999/plat-wfs/internal/popup"
	"github.com/joeblew999/plat-wfs/internal/service"
	"github.com/joeblew999/plat-wfs/internal/session"
	"github.com/joeblew999/plat-wfs/internal/store"
	"github.com/joeblew999/plat-wfs/internal/style"
	"github.com/joeblew999/plat-wfs/internal/wfs"
)

// Services holds the service dependencies for API handlers.
type Services struct {
	Layer    *service.LayerService
	Source   *service.SourceService
	Sessions *session.Registry
	Store    *store.FeatureStore
}

// RegisterRoutes registers every REST route of the service.
func RegisterRoutes(api huma.API, svc *Services) {
	huma.AutoRegister(api, NewAPIHandler(svc))
}

// Types

type IDInput struct {
	ID string `path:"id" doc:"Layer ID" example:"plots"`
}

type SessionIDInput struct {
	SID string `path:"sid" doc:"Session ID" format:"uuid"`
}

type LayerOutput struct {
	Body service.LayerConfig
}

type LayersOutput struct {
	Body map[string]service.LayerConfig
}

type FrameOutput struct {
	Body session.Frame
}

type SnapshotOutput struct {
	Body session.Snapshot
}

type MessageBody struct {
	Message string `json:"message" doc:"Result message"`
}

type CreatedLayerBody struct {
	ID      string              `json:"id" doc:"Generated layer ID"`
	Layer   service.LayerConfig `json:"layer" doc:"Created layer configuration"`
	Message string              `json:"message" doc:"Result message"`
}

type HealthBody struct {
	Status  string `json:"status" doc:"Health status" example:"ok"`
	Version string `json:"version" doc:"API version" example:"1.0.0"`
}

// EventBody is a pointer event forwarded by a viewer.
type EventBody struct {
	Kind       string      `json:"kind" enum:"pointermove,singleclick,hover,click" doc:"Event kind" example:"singleclick"`
	Pixel      popup.Point `json:"pixel" doc:"Pointer position in pixels"`
	Coordinate [2]float64  `json:"coordinate" doc:"Pointer position in map coordinates: lon, lat"`
	Outside    bool        `json:"outside,omitempty" doc:"The pointer left the map"`
}

// MapEvent converts the body into an engine event.
func (b EventBody) MapEvent() (layer.MapEvent, error) {
	kind, err := interaction.ParseKind(b.Kind)
	if err != nil {
		return layer.MapEvent{}, err
	}
	return layer.MapEvent{
		Kind:       kind,
		Pixel:      b.Pixel,
		Coordinate: orb.Point(b.Coordinate),
		Outside:    b.Outside,
	}, nil
}

// APIHandler holds all REST API handlers. Methods named Register* are
// auto-discovered by huma.AutoRegister.
type APIHandler struct {
	svc *Services
}

func NewAPIHandler(svc *Services) *APIHandler {
	return &APIHandler{svc: svc}
}

// RegisterHealth registers health check routes.
func (h *APIHandler) RegisterHealth(api huma.API) {
	huma.Get(api, "/health", h.GetHealth, huma.OperationTags("health"))
}

// RegisterLayers registers layer CRUD routes.
func (h *APIHandler) RegisterLayers(api huma.API) {
	huma.Get(api, "/api/v1/layers", h.GetLayers, huma.OperationTags("layers"))
	huma.Post(api, "/api/v1/layers", h.CreateLayer, huma.OperationTags("layers"))
	huma.Get(api, "/api/v1/layers/{id}", h.GetLayer, huma.OperationTags("layers"))
	huma.Put(api, "/api/v1/layers/{id}", h.PutLayer, huma.OperationTags("layers"))
	huma.Delete(api, "/api/v1/layers/{id}", h.DeleteLayer, huma.OperationTags("layers"))
}

// RegisterSources registers source listing routes.
func (h *APIHandler) RegisterSources(api huma.API) {
	huma.Get(api, "/api/v1/sources", h.GetSources, huma.OperationTags("sources"))
}

// RegisterSessions registers viewer session routes.
func (h *APIHandler) RegisterSessions(api huma.API) {
	huma.Post(api, "/api/v1/layers/{id}/sessions", h.CreateLayerSession, huma.OperationTags("sessions"))
	huma.Post(api, "/api/v1/sessions", h.CreateSession, huma.OperationTags("sessions"))
	huma.Get(api, "/api/v1/sessions", h.GetSessions, huma.OperationTags("sessions"))
	huma.Get(api, "/api/v1/sessions/{sid}", h.GetSession, huma.OperationTags("sessions"))
	huma.Get(api, "/api/v1/sessions/{sid}/styles", h.GetSessionStyles, huma.OperationTags("sessions"))
	huma.Post(api, "/api/v1/sessions/{sid}/events", h.PostSessionEvent, huma.OperationTags("sessions"))
	huma.Post(api, "/api/v1/sessions/{sid}/reload", h.ReloadSession, huma.OperationTags("sessions"))
	huma.Post(api, "/api/v1/sessions/{sid}/features", h.AppendSessionFeatures, huma.OperationTags("sessions"))
	huma.Delete(api, "/api/v1/sessions/{sid}", h.DeleteSession, huma.OperationTags("sessions"))
}

// RegisterCache registers feature cache routes.
func (h *APIHandler) RegisterCache(api huma.API) {
	huma.Get(api, "/api/v1/cache/layers", h.GetCachedLayers, huma.OperationTags("cache"))
	huma.Get(api, "/api/v1/cache/layers/{id}/features/{fid}", h.GetCachedFeature, huma.OperationTags("cache"))
}

// Handlers

func (h *APIHandler) GetHealth(ctx context.Context, input *struct{}) (*struct{ Body HealthBody }, error) {
	return &struct{ Body HealthBody }{Body: HealthBody{Status: "ok", Version: Version}}, nil
}

func (h *APIHandler) GetLayers(ctx context.Context, input *struct{}) (*LayersOutput, error) {
	if h.svc == nil || h.svc.Layer == nil {
		return &LayersOutput{Body: map[string]service.LayerConfig{}}, nil
	}
	return &LayersOutput{Body: h.svc.Layer.List()}, nil
}

func (h *APIHandler) CreateLayer(ctx context.Context, input *struct{ Body service.LayerConfig }) (*struct{ Body CreatedLayerBody }, error) {
	if h.svc == nil || h.svc.Layer == nil {
		return nil, huma.Error400BadRequest("service not available")
	}
	created, err := h.svc.Layer.Create(input.Body)
	if err != nil {
		return nil, statusError(err)
	}
	return &struct{ Body CreatedLayerBody }{Body: CreatedLayerBody{
		ID: created.ID, Layer: created, Message: "Layer created",
	}}, nil
}

func (h *APIHandler) GetLayer(ctx context.Context, input *IDInput) (*LayerOutput, error) {
	def, err := h.layer(input.ID)
	if err != nil {
		return nil, err
	}
	return &LayerOutput{Body: def}, nil
}

func (h *APIHandler) PutLayer(ctx context.Context, input *struct {
	IDInput
	Body service.LayerConfig
}) (*LayerOutput, error) {
	if h.svc == nil || h.svc.Layer == nil {
		return nil, huma.Error400BadRequest("service not available")
	}
	updated, err := h.svc.Layer.Update(input.ID, input.Body)
	if err != nil {
		return nil, statusError(err)
	}
	return &LayerOutput{Body: updated}, nil
}

func (h *APIHandler) DeleteLayer(ctx context.Context, input *IDInput) (*struct{ Body MessageBody }, error) {
	if h.svc == nil || h.svc.Layer == nil {
		return nil, huma.Error400BadRequest("service not available")
	}
	if err := h.svc.Layer.Delete(input.ID); err != nil {
		return nil, statusError(err)
	}
	return &struct{ Body MessageBody }{Body: MessageBody{Message: "Layer deleted"}}, nil
}

func (h *APIHandler) GetSources(ctx context.Context, input *struct{}) (*struct{ Body []service.SourceFile }, error) {
	if h.svc == nil || h.svc.Source == nil {
		return &struct{ Body []service.SourceFile }{Body: []service.SourceFile{}}, nil
	}
	sources, err := h.svc.Source.List()
	if err != nil {
		return &struct{ Body []service.SourceFile }{Body: []service.SourceFile{}}, nil
	}
	return &struct{ Body []service.SourceFile }{Body: sources}, nil
}

func (h *APIHandler) CreateLayerSession(ctx context.Context, input *IDInput) (*FrameOutput, error) {
	def, err := h.layer(input.ID)
	if err != nil {
		return nil, err
	}
	return h.createSession(ctx, def)
}

func (h *APIHandler) CreateSession(ctx context.Context, input *struct{ Body service.LayerConfig }) (*FrameOutput, error) {
	if err := input.Body.Validate(); err != nil {
		return nil, huma.Error400BadRequest(err.Error())
	}
	return h.createSession(ctx, input.Body)
}

func (h *APIHandler) createSession(ctx context.Context, def service.LayerConfig) (*FrameOutput, error) {
	if h.svc == nil || h.svc.Sessions == nil {
		return nil, huma.Error503ServiceUnavailable("sessions not available")
	}
	_, frame, err := h.svc.Sessions.Create(ctx, def)
	if err != nil {
		return nil, statusError(err)
	}
	return &FrameOutput{Body: frame}, nil
}

func (h *APIHandler) GetSessions(ctx context.Context, input *humastar.PageInput) (*struct {
	Body humastar.PageBody[session.Snapshot]
}, error) {
	snaps := []session.Snapshot{}
	if h.svc != nil && h.svc.Sessions != nil {
		snaps = h.svc.Sessions.List()
	}
	return &struct {
		Body humastar.PageBody[session.Snapshot]
	}{Body: humastar.Paginate(snaps, *input)}, nil
}

func (h *APIHandler) GetSession(ctx context.Context, input *SessionIDInput) (*SnapshotOutput, error) {
	s, err := h.session(input.SID)
	if err != nil {
		return nil, err
	}
	return &SnapshotOutput{Body: s.Snapshot()}, nil
}

func (h *APIHandler) GetSessionStyles(ctx context.Context, input *SessionIDInput) (*struct{ Body map[feature.ID]style.Spec }, error) {
	s, err := h.session(input.SID)
	if err != nil {
		return nil, err
	}
	return &struct{ Body map[feature.ID]style.Spec }{Body: s.Styles()}, nil
}

func (h *APIHandler) PostSessionEvent(ctx context.Context, input *struct {
	SessionIDInput
	Body EventBody
}) (*FrameOutput, error) {
	ev, err := input.Body.MapEvent()
	if err != nil {
		return nil, huma.Error400BadRequest(err.Error())
	}
	if h.svc == nil || h.svc.Sessions == nil {
		return nil, huma.Error503ServiceUnavailable("sessions not available")
	}
	frame, err := h.svc.Sessions.Dispatch(input.SID, ev)
	if err != nil {
		return nil, statusError(err)
	}
	return &FrameOutput{Body: frame}, nil
}

func (h *APIHandler) ReloadSession(ctx context.Context, input *SessionIDInput) (*FrameOutput, error) {
	if h.svc == nil || h.svc.Sessions == nil {
		return nil, huma.Error503ServiceUnavailable("sessions not available")
	}
	frame, err := h.svc.Sessions.Reload(ctx, input.SID)
	if err != nil {
		return nil, statusError(err)
	}
	return &FrameOutput{Body: frame}, nil
}

// AppendFeaturesInput carries a GeoJSON FeatureCollection.
type AppendFeaturesInput struct {
	SessionIDInput
	RawBody []byte
}

func (h *APIHandler) AppendSessionFeatures(ctx context.Context, input *AppendFeaturesInput) (*FrameOutput, error) {
	if h.svc == nil || h.svc.Sessions == nil {
		return nil, huma.Error503ServiceUnavailable("sessions not available")
	}
	fc, err := geojson.UnmarshalFeatureCollection(input.RawBody)
	if err != nil {
		return nil, huma.Error400BadRequest("invalid FeatureCollection: " + err.Error())
	}
	frame, err := h.svc.Sessions.Append(ctx, input.SID, fc)
	if err != nil {
		return nil, statusError(err)
	}
	return &FrameOutput{Body: frame}, nil
}

func (h *APIHandler) DeleteSession(ctx context.Context, input *SessionIDInput) (*struct{ Body MessageBody }, error) {
	if h.svc == nil || h.svc.Sessions == nil {
		return nil, huma.Error503ServiceUnavailable("sessions not available")
	}
	if err := h.svc.Sessions.Delete(input.SID); err != nil {
		return nil, statusError(err)
	}
	return &struct{ Body MessageBody }{Body: MessageBody{Message: "Session deleted"}}, nil
}

func (h *APIHandler) GetCachedLayers(ctx context.Context, input *struct{}) (*struct{ Body []store.LayerSummary }, error) {
	if h.svc == nil || h.svc.Store == nil {
		return nil, huma.Error503ServiceUnavailable("Database not available")
	}
	layers, err := h.svc.Store.Layers(ctx)
	if err != nil {
		return nil, huma.Error500InternalServerError("Failed to list cached layers", err)
	}
	return &struct{ Body []store.LayerSummary }{Body: layers}, nil
}

func (h *APIHandler) GetCachedFeature(ctx context.Context, input *struct {
	IDInput
	FID string `path:"fid" doc:"Feature ID" example:"1"`
}) (*struct{ Body *geojson.Feature }, error) {
	if h.svc == nil || h.svc.Store == nil {
		return nil, huma.Error503ServiceUnavailable("Database not available")
	}
	f, err := h.svc.Store.Feature(ctx, input.ID, feature.ID(input.FID))
	if err != nil {
		return nil, statusError(err)
	}
	return &struct{ Body *geojson.Feature }{Body: f}, nil
}

func (h *APIHandler) layer(id string) (service.LayerConfig, error) {
	if h.svc == nil || h.svc.Layer == nil {
		return service.LayerConfig{}, huma.Error404NotFound("service not available")
	}
	def, ok := h.svc.Layer.Get(id)
	if !ok {
		return service.LayerConfig{}, huma.Error404NotFound("layer not found")
	}
	return def, nil
}

func (h *APIHandler) session(sid string) (*session.Session, error) {
	if h.svc == nil || h.svc.Sessions == nil {
		return nil, huma.Error503ServiceUnavailable("sessions not available")
	}
	s, err := h.svc.Sessions.Get(sid)
	if err != nil {
		return nil, statusError(err)
	}
	return s, nil
}

// statusError maps domain errors to HTTP errors.
func statusError(err error) error {
	var fetchErr *wfs.FetchError
	switch {
	case errors.As(err, &fetchErr):
		return huma.Error502BadGateway(err.Error())
	case errors.Is(err, session.ErrNotFound),
		errors.Is(err, service.ErrNotFound),
		errors.Is(err, sql.ErrNoRows):
		return huma.Error404NotFound(err.Error())
	case errors.Is(err, layer.ErrInvalidConfig),
		errors.Is(err, service.ErrInvalidLayer),
		errors.Is(err, service.ErrInvalidSource):
		return huma.Error400BadRequest(err.Error())
	case errors.Is(err, layer.ErrSuperseded),
		errors.Is(err, layer.ErrNotLoaded),
		errors.Is(err, service.ErrExists):
		return huma.Error409Conflict(err.Error())
	default:
		return huma.Error500InternalServerError(err.Error())
	}
}
