// Package editor contains the Datastar SSE handlers of the editor and
// viewer pages.
package editor

import (
	"context"
	"fmt"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/plat-wfs/internal/humastar"
	"github.com/joeblew999/plat-wfs/internal/layer"
	"github.com/joeblew999/plat-wfs/internal/popup"
	"github.com/joeblew999/plat-wfs/internal/service"
	"github.com/joeblew999/plat-wfs/internal/session"
	"github.com/joeblew999/plat-wfs/internal/templates"
	"github.com/joeblew999/plat-wfs/internal/wfs"
)

type LayerHandler struct {
	humastar.Handler
	layerService *service.LayerService
	sessions     *session.Registry
	bus          *service.EventBus
}

func NewLayerHandler(layerService *service.LayerService, sessions *session.Registry, bus *service.EventBus, renderer *templates.Renderer) *LayerHandler {
	return &LayerHandler{
		Handler:      humastar.Handler{Renderer: renderer},
		layerService: layerService,
		sessions:     sessions,
		bus:          bus,
	}
}

func (h *LayerHandler) RegisterRoutes(api huma.API) {
	huma.Get(api, "/api/v1/editor/layers", h.ListLayers, huma.OperationTags("editor"))
	huma.Post(api, "/api/v1/editor/layers", h.CreateLayer, huma.OperationTags("editor"))
	huma.Delete(api, "/api/v1/editor/layers/{id}", h.DeleteLayer, huma.OperationTags("editor"))
	huma.Post(api, "/api/v1/editor/layers/{id}/sessions", h.OpenSession, huma.OperationTags("editor"))
}

func (h *LayerHandler) ListLayers(ctx context.Context, input *humastar.EmptyInput) (*huma.StreamResponse, error) {
	return h.Stream(func(sse humastar.SSE) {
		sse.Patch(h.renderLayerList(), "#layer-list")
	}), nil
}

func (h *LayerHandler) CreateLayer(ctx context.Context, input *humastar.SignalsInput) (*huma.StreamResponse, error) {
	signals, err := input.Signals()
	if err != nil {
		return nil, err
	}
	config := parseLayerSignals(signals)
	if config.Name == "" {
		return nil, huma.Error400BadRequest("Layer name is required")
	}
	if err := config.Validate(); err != nil {
		return nil, huma.Error400BadRequest(err.Error())
	}

	return h.Stream(func(sse humastar.SSE) {
		created, err := h.layerService.Create(config)
		if err != nil {
			sse.Error(err.Error())
			return
		}
		h.publish("created", created.ID)

		sse.Signals(map[string]any{
			"success":       fmt.Sprintf("Layer '%s' created", created.Name),
			"_editingLayer": false,
		})
		sse.Patch(h.renderLayerList(), "#layer-list")
	}), nil
}

type LayerIDInput struct {
	ID string `path:"id" doc:"Layer ID"`
}

func (h *LayerHandler) DeleteLayer(ctx context.Context, input *LayerIDInput) (*huma.StreamResponse, error) {
	return h.Stream(func(sse humastar.SSE) {
		if err := h.layerService.Delete(input.ID); err != nil {
			sse.Error(err.Error())
			return
		}
		h.publish("deleted", input.ID)

		sse.RemoveElementByID("layer-" + input.ID)
		sse.Success("Layer deleted")
	}), nil
}

// OpenSession loads a layer into a new viewer session and sends its
// initial styles and view.
func (h *LayerHandler) OpenSession(ctx context.Context, input *LayerIDInput) (*huma.StreamResponse, error) {
	def, ok := h.layerService.Get(input.ID)
	if !ok {
		return nil, huma.Error404NotFound("layer not found")
	}

	return h.Stream(func(sse humastar.SSE) {
		s, frame, err := h.sessions.Create(sse.Context(), def)
		if err != nil {
			sse.Error(err.Error())
			return
		}
		signals := frameSignals(frame)
		signals["session"] = s.ID
		signals["styles"] = s.Styles()
		sse.Signals(signals)
		sse.Patch(h.renderStatus(frame.Snapshot), "#session-status")
	}), nil
}

func (h *LayerHandler) publish(action, id string) {
	if h.bus != nil {
		h.bus.Publish(service.Event{Resource: "layers", Action: action, ID: id})
	}
}

type LayerCardData struct {
	ID     string
	Name   string
	Origin string
}

func (h *LayerHandler) renderLayerList() string {
	layers := h.layerService.Sorted()
	items := make([]any, 0, len(layers))
	for _, l := range layers {
		origin := "source: " + l.Source
		if l.WFS != nil {
			origin = "wfs: " + l.WFS.TypeName
		}
		items = append(items, LayerCardData{ID: l.ID, Name: l.Name, Origin: origin})
	}
	return h.RenderList("layer-card", items, "No layers configured", "Add a layer to get started")
}

func (h *LayerHandler) renderStatus(snap session.Snapshot) string {
	html, err := h.Renderer.Render("session-status", snap)
	if err != nil {
		return ""
	}
	return html
}

// parseLayerSignals reads a layer definition from the editor form
// signals. Signal names are lowercase due to data-bind behavior.
func parseLayerSignals(s humastar.Signals) service.LayerConfig {
	cfg := service.LayerConfig{
		ID:     s.String("id"),
		Name:   strings.TrimSpace(s.String("name")),
		Source: s.String("source"),
		Display: layer.Options{
			Fill:          s.String("fill"),
			Boundary:      s.String("boundary"),
			HoverFill:     s.String("hoverfill"),
			HoverBoundary: s.String("hoverboundary"),
			Width:         s.Float("width"),
			ZoomToLayer:   s.Bool("zoomtolayer"),
			ZoomToFeature: s.Bool("zoomtofeature"),
			SelectOnClick: s.Bool("selectonclick"),
			PopupTrigger:  popup.Trigger(s.String("popuptrigger")),
			ClassifyField: s.String("classifyfield"),
			Opacity:       s.FloatPtr("opacity"),
			PopupFields:   s.List("popupfields"),
		},
	}
	if url := s.String("url"); url != "" {
		cfg.WFS = &wfs.Request{
			URL:      url,
			Method:   wfs.Method(strings.ToUpper(s.String("method"))),
			TypeName: s.String("typename"),
			AuthKey:  s.String("authkey"),
		}
	}
	return cfg
}
