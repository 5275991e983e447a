package editor

import (
	"context"
	"fmt"
	"mime/multipart"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/plat-wfs/internal/humastar"
	"github.com/joeblew999/plat-wfs/internal/service"
	"github.com/joeblew999/plat-wfs/internal/templates"
)

// SourceHandler manages the local GeoJSON sources a layer can be backed by.
type SourceHandler struct {
	humastar.Handler
	sourceService *service.SourceService
	layerService  *service.LayerService
	bus           *service.EventBus
}

func NewSourceHandler(sourceService *service.SourceService, layerService *service.LayerService, bus *service.EventBus, renderer *templates.Renderer) *SourceHandler {
	return &SourceHandler{
		Handler:       humastar.Handler{Renderer: renderer},
		sourceService: sourceService,
		layerService:  layerService,
		bus:           bus,
	}
}

func (h *SourceHandler) RegisterRoutes(api huma.API) {
	huma.Get(api, "/api/v1/editor/sources", h.ListSources, huma.OperationTags("editor"))
	huma.Get(api, "/api/v1/editor/sources/select", h.ListSourcesSelect, huma.OperationTags("editor"))
	huma.Post(api, "/api/v1/editor/sources/upload", h.Upload, huma.OperationTags("editor"))
	huma.Delete(api, "/api/v1/editor/sources/{filename}", h.Delete, huma.OperationTags("editor"))
}

type SourceUploadInput struct {
	RawBody multipart.Form
}

func (h *SourceHandler) Upload(ctx context.Context, input *SourceUploadInput) (*huma.StreamResponse, error) {
	return h.Stream(func(sse humastar.SSE) {
		files := input.RawBody.File["file"]
		if len(files) == 0 {
			sse.Error("No file provided")
			return
		}

		fileHeader := files[0]
		file, err := fileHeader.Open()
		if err != nil {
			sse.Error("Failed to open uploaded file")
			return
		}
		defer file.Close()

		name := fileHeader.Filename
		if err := h.sourceService.Save(name, file); err != nil {
			sse.Error(err.Error())
			return
		}
		msg := "File uploaded: " + name
		if fc, err := h.sourceService.Load(name); err == nil {
			msg = fmt.Sprintf("File uploaded: %s (%d features)", name, len(fc.Features))
		}
		h.publish("created", name)

		sse.Success(msg)
		h.patchSources(sse)
	}), nil
}

type SourceDeleteInput struct {
	Filename string `path:"filename" doc:"Source filename to delete"`
}

// Delete removes a source file unless a layer still reads from it.
func (h *SourceHandler) Delete(ctx context.Context, input *SourceDeleteInput) (*huma.StreamResponse, error) {
	if id := h.usedBy(input.Filename); id != "" {
		return nil, huma.Error409Conflict(fmt.Sprintf("source %q is used by layer %q", input.Filename, id))
	}

	return h.Stream(func(sse humastar.SSE) {
		if err := h.sourceService.Delete(input.Filename); err != nil {
			sse.Error(err.Error())
			return
		}
		h.publish("deleted", input.Filename)

		sse.Success("Deleted: " + input.Filename)
		h.patchSources(sse)
	}), nil
}

func (h *SourceHandler) ListSources(ctx context.Context, input *humastar.EmptyInput) (*huma.StreamResponse, error) {
	return h.Stream(h.patchSources), nil
}

func (h *SourceHandler) ListSourcesSelect(ctx context.Context, input *humastar.EmptyInput) (*huma.StreamResponse, error) {
	return h.Stream(func(sse humastar.SSE) {
		sources, err := h.sourceService.List()
		if err != nil {
			sse.Error("Failed to list sources: " + err.Error())
			return
		}
		sse.Patch(h.renderSourceSelect(sources), "#source-select")
	}), nil
}

func (h *SourceHandler) patchSources(sse humastar.SSE) {
	sources, err := h.sourceService.List()
	if err != nil {
		sse.Error("Failed to list sources: " + err.Error())
		return
	}
	items := make([]any, len(sources))
	for i, s := range sources {
		items[i] = s
	}
	sse.Patch(h.RenderList("source-card", items, "No Source Files", "Upload GeoJSON files using the form above."), "#source-list")
	sse.Patch(h.renderSourceSelect(sources), "#source-select")
}

func (h *SourceHandler) renderSourceSelect(sources []service.SourceFile) string {
	options := make([]humastar.SelectOptionData, len(sources))
	for i, s := range sources {
		options[i] = humastar.SelectOptionData{Value: s.Name, Label: s.Name + " (" + s.Size + ")"}
	}
	return h.RenderSelect("-- Select a source file --", options)
}

func (h *SourceHandler) usedBy(name string) string {
	if h.layerService == nil {
		return ""
	}
	for _, l := range h.layerService.Sorted() {
		if l.Source == name {
			return l.ID
		}
	}
	return ""
}

func (h *SourceHandler) publish(action, name string) {
	if h.bus != nil {
		h.bus.Publish(service.Event{Resource: "sources", Action: action, ID: name})
	}
}
