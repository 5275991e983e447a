package editor

import (
	"context"

	"github.com/danielgtaylor/huma/v2"
	"github.com/paulmach/orb"

	"github.com/joeblew999/plat-wfs/internal/humastar"
	"github.com/joeblew999/plat-wfs/internal/interaction"
	"github.com/joeblew999/plat-wfs/internal/layer"
	"github.com/joeblew999/plat-wfs/internal/popup"
	"github.com/joeblew999/plat-wfs/internal/session"
	"github.com/joeblew999/plat-wfs/internal/templates"
)

// ViewerHandler forwards map pointer events from the viewer page to its
// session and streams back the style, popup and cursor changes.
type ViewerHandler struct {
	humastar.Handler
	sessions *session.Registry
}

func NewViewerHandler(sessions *session.Registry, renderer *templates.Renderer) *ViewerHandler {
	return &ViewerHandler{
		Handler:  humastar.Handler{Renderer: renderer},
		sessions: sessions,
	}
}

func (h *ViewerHandler) RegisterRoutes(api huma.API) {
	huma.Post(api, "/api/v1/editor/sessions/{sid}/events", h.Event, huma.OperationTags("editor"))
	huma.Post(api, "/api/v1/editor/sessions/{sid}/reload", h.Reload, huma.OperationTags("editor"))
}

type SessionEventInput struct {
	SID     string `path:"sid" doc:"Session ID"`
	RawBody []byte
}

// Event dispatches the pointer event carried by the signals kind, x, y,
// lon and lat. A pointermove with outside set means the pointer left the
// map.
func (h *ViewerHandler) Event(ctx context.Context, input *SessionEventInput) (*huma.StreamResponse, error) {
	signals, err := humastar.ParseSignals(input.RawBody)
	if err != nil {
		return nil, huma.Error400BadRequest("Invalid request data: " + err.Error())
	}
	kind, err := interaction.ParseKind(signals.String("kind"))
	if err != nil {
		return nil, huma.Error400BadRequest(err.Error())
	}
	ev := layer.MapEvent{
		Kind:       kind,
		Pixel:      popup.Point{X: signals.Float("x"), Y: signals.Float("y")},
		Coordinate: orb.Point{signals.Float("lon"), signals.Float("lat")},
		Outside:    signals.Bool("outside"),
	}

	return h.Stream(func(sse humastar.SSE) {
		frame, err := h.sessions.Dispatch(input.SID, ev)
		if err != nil {
			sse.Error(err.Error())
			return
		}
		h.send(sse, frame)
	}), nil
}

type SessionIDInput struct {
	SID string `path:"sid" doc:"Session ID"`
}

func (h *ViewerHandler) Reload(ctx context.Context, input *SessionIDInput) (*huma.StreamResponse, error) {
	return h.Stream(func(sse humastar.SSE) {
		frame, err := h.sessions.Reload(sse.Context(), input.SID)
		if err != nil {
			sse.Error(err.Error())
			return
		}
		h.send(sse, frame)
		if s, err := h.sessions.Get(input.SID); err == nil {
			sse.Signals(map[string]any{"styles": s.Styles()})
		}
	}), nil
}

func (h *ViewerHandler) send(sse humastar.SSE, frame session.Frame) {
	if frame.Changes.PopupChanged {
		sse.Patch(h.renderPopup(frame.Snapshot.Popup), "#popup")
	}
	sse.Signals(frameSignals(frame))
}

func (h *ViewerHandler) renderPopup(c *popup.Content) string {
	if c == nil {
		return ""
	}
	html, err := h.Renderer.Render("popup", c)
	if err != nil {
		return ""
	}
	return html
}

// frameSignals maps a frame to the signals the viewer map script reads.
func frameSignals(frame session.Frame) map[string]any {
	snap := frame.Snapshot
	signals := map[string]any{
		"status":   snap.Status,
		"state":    snap.State,
		"cursor":   snap.Cursor,
		"hovered":  string(snap.Hovered),
		"selected": string(snap.Selected),
		"popup":    snap.Popup != nil,
	}
	if len(frame.Changes.Styles) > 0 {
		signals["changed"] = frame.Changes.Styles
	}
	if n := len(frame.Changes.Fits); n > 0 {
		signals["fit"] = frame.Changes.Fits[n-1]
	}
	if snap.Error != "" {
		signals["error"] = snap.Error
	}
	return signals
}
