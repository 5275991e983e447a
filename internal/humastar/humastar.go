// Package humastar bridges Huma operations with Datastar server-sent events.
//
// Editor handlers embed [Handler], read the browser's signals through
// [SignalsInput] or [ParseSignals] and answer with a stream built by
// [Handler.Stream]:
//
//	func (h *ViewerHandler) Reload(ctx context.Context, in *Input) (*huma.StreamResponse, error) {
//	    return h.Stream(func(sse humastar.SSE) {
//	        sse.Patch(h.RenderList("layer-card", items, "No layers", "Add one"), "#layer-list")
//	    }), nil
//	}
package humastar

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"
	"github.com/starfederation/datastar-go/datastar"

	"github.com/joeblew999/plat-wfs/internal/templates"
)

// Handler is embedded by the editor and viewer handlers.
type Handler struct {
	Renderer *templates.Renderer
}

func (h *Handler) Stream(fn func(sse SSE)) *huma.StreamResponse {
	return &huma.StreamResponse{
		Body: func(ctx huma.Context) {
			fn(NewSSE(ctx))
		},
	}
}

// RenderList renders each item with tmpl, or the empty-state fragment when
// there are none.
func (h *Handler) RenderList(tmpl string, items []any, emptyTitle, emptyMsg string) string {
	var buf bytes.Buffer
	if len(items) == 0 {
		h.Renderer.RenderToBuffer(&buf, "empty-state", map[string]string{
			"Title": emptyTitle, "Message": emptyMsg,
		})
		return buf.String()
	}
	for _, item := range items {
		h.Renderer.RenderToBuffer(&buf, tmpl, item)
	}
	return buf.String()
}

// SelectOptionData is the data of the select-option fragment.
type SelectOptionData struct {
	Value string
	Label string
}

// RenderSelect renders a placeholder option followed by options.
func (h *Handler) RenderSelect(placeholder string, options []SelectOptionData) string {
	var buf bytes.Buffer
	h.Renderer.RenderToBuffer(&buf, "select-option", SelectOptionData{Label: placeholder})
	for _, opt := range options {
		h.Renderer.RenderToBuffer(&buf, "select-option", opt)
	}
	return buf.String()
}

// SSE is a Datastar event generator bound to one streamed response.
type SSE struct {
	*datastar.ServerSentEventGenerator
}

func NewSSE(ctx huma.Context) SSE {
	r, w := humago.Unwrap(ctx)
	return SSE{datastar.NewSSE(w, r)}
}

// Patch replaces the inner HTML of the elements matching selector.
func (s SSE) Patch(html, selector string) {
	s.PatchElements(html,
		datastar.WithSelector(selector),
		datastar.WithModeInner(),
		datastar.WithViewTransitions(),
	)
}

func (s SSE) Error(msg string) {
	s.MarshalAndPatchSignals(map[string]any{"error": msg})
}

func (s SSE) Success(msg string) {
	s.MarshalAndPatchSignals(map[string]any{"success": msg, "error": ""})
}

func (s SSE) Signals(signals map[string]any) {
	s.MarshalAndPatchSignals(signals)
}

// Signals is the flat JSON object Datastar posts with every action.
type Signals map[string]any

// ParseSignals decodes a request body. An empty body yields no signals.
func ParseSignals(body []byte) (Signals, error) {
	signals := Signals{}
	if len(bytes.TrimSpace(body)) == 0 {
		return signals, nil
	}
	if err := json.Unmarshal(body, &signals); err != nil {
		return nil, err
	}
	return signals, nil
}

func (s Signals) String(key string) string {
	str, _ := s[key].(string)
	return str
}

func (s Signals) Float(key string) float64 {
	f, _ := s[key].(float64)
	return f
}

func (s Signals) Bool(key string) bool {
	b, _ := s[key].(bool)
	return b
}

// FloatPtr returns nil unless key holds a number.
func (s Signals) FloatPtr(key string) *float64 {
	f, ok := s[key].(float64)
	if !ok {
		return nil
	}
	return &f
}

// List splits a comma-separated signal into its trimmed, non-empty parts.
func (s Signals) List(key string) []string {
	var out []string
	for part := range strings.SplitSeq(s.String(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// EmptyInput is the input of operations without parameters.
type EmptyInput struct{}

// SignalsInput receives the raw Datastar signal body.
type SignalsInput struct {
	RawBody []byte
}

// Signals decodes the body, reporting malformed JSON as a 400.
func (i *SignalsInput) Signals() (Signals, error) {
	signals, err := ParseSignals(i.RawBody)
	if err != nil {
		return nil, huma.Error400BadRequest("Invalid request data: " + err.Error())
	}
	return signals, nil
}
