package editor

import (
	"context"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/plat-wfs/internal/humastar"
	"github.com/joeblew999/plat-wfs/internal/service"
	"github.com/joeblew999/plat-wfs/internal/session"
)

// EventHandler streams layer, source and session change events to
// Datastar pages.
type EventHandler struct {
	layers  *LayerHandler
	sources *SourceHandler
	viewer  *ViewerHandler
	bus     *service.EventBus
}

func NewEventHandler(layers *LayerHandler, sources *SourceHandler, viewer *ViewerHandler, bus *service.EventBus) *EventHandler {
	return &EventHandler{layers: layers, sources: sources, viewer: viewer, bus: bus}
}

func (h *EventHandler) RegisterRoutes(api huma.API) {
	huma.Get(api, "/api/v1/editor/events", h.Events, huma.OperationTags("editor"))
}

type EventsInput struct {
	Session string `query:"session" doc:"Only stream changes of this session; layer and source changes are always streamed"`
}

func (h *EventHandler) Events(ctx context.Context, input *EventsInput) (*huma.StreamResponse, error) {
	filter := func(e service.Event) bool {
		return e.Resource != "sessions" || input.Session == "" || e.ID == input.Session
	}

	return h.layers.Stream(func(sse humastar.SSE) {
		ch := h.bus.Subscribe(filter)
		defer h.bus.Unsubscribe(ch)

		done := sse.Context().Done()
		for {
			select {
			case <-done:
				return
			case ev := <-ch:
				switch ev.Resource {
				case "layers":
					sse.Patch(h.layers.renderLayerList(), "#layer-list")
				case "sources":
					h.sources.patchSources(sse)
				case "sessions":
					if frame, ok := ev.Data.(session.Frame); ok && input.Session != "" {
						h.viewer.send(sse, frame)
					}
				}
				sse.DispatchCustomEvent("resource-changed", map[string]any{
					"resource": ev.Resource,
					"action":   ev.Action,
					"id":       ev.ID,
				})
			}
		}
	}), nil
}
