package api

import (
	"fmt"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/plat-wfs/internal/humastar"
)

// links maps operation paths to their RFC 8288 Link header values.
// Enables restish hypermedia navigation via `restish links <url>`.
var links = map[string][]string{
	"/health": {
		`</api/v1/info>; rel="info"`,
		`</api/v1/layers>; rel="layers"`,
		`</api/v1/sessions>; rel="sessions"`,
	},
	"/api/v1/info": {
		`</health>; rel="health"`,
		`</api/v1/layers>; rel="layers"`,
	},
	"/api/v1/layers": {
		`</api/v1/sources>; rel="sources"`,
		`</api/v1/sessions>; rel="sessions"`,
	},
	"/api/v1/layers/{id}": {
		`</api/v1/layers>; rel="collection"`,
	},
	"/api/v1/sources": {
		`</api/v1/layers>; rel="layers"`,
	},
	"/api/v1/sessions": {
		`</api/v1/layers>; rel="layers"`,
	},
	"/api/v1/sessions/{sid}": {
		`</api/v1/sessions>; rel="collection"`,
	},
	"/api/v1/cache/layers": {
		`</api/v1/tables>; rel="tables"`,
	},
	"/api/v1/tables": {
		`</api/v1/query>; rel="query"`,
		`</api/v1/cache/layers>; rel="cache"`,
	},
}

// sessionActions are advertised on every response about one session.
var sessionActions = []humastar.ActionDef{
	{Rel: "styles", Pattern: "/api/v1/sessions/%s/styles", Method: "GET", Title: "Current feature styles"},
	{Rel: "events", Pattern: "/api/v1/sessions/%s/events", Method: "POST", Title: "Dispatch a pointer event"},
	{Rel: "reload", Pattern: "/api/v1/sessions/%s/reload", Method: "POST", Title: "Reload features"},
	{Rel: "append", Pattern: "/api/v1/sessions/%s/features", Method: "POST", Title: "Add features"},
	{Rel: "delete", Pattern: "/api/v1/sessions/%s", Method: "DELETE", Title: "Close the session"},
}

// LinkTransformer returns a Huma Transformer that injects RFC 8288 Link headers.
func LinkTransformer() huma.Transformer {
	return func(ctx huma.Context, status string, v any) (any, error) {
		op := ctx.Operation()
		if op == nil {
			return v, nil
		}

		for _, link := range links[op.Path] {
			ctx.AppendHeader("Link", link)
		}

		// Item endpoints get a self link
		if strings.Contains(op.Path, "{") {
			ctx.AppendHeader("Link", fmt.Sprintf(`<%s>; rel="self"`, ctx.URL().Path))
		}

		if sid, ok := sessionID(ctx.URL().Path); ok {
			for _, a := range humastar.ActionsFor(sid, sessionActions) {
				ctx.AppendHeader("Link", a.LinkHeader())
			}
		}

		if p, ok := v.(humastar.Pager); ok {
			for _, link := range p.PaginationLinks(ctx.URL().Path) {
				ctx.AppendHeader("Link", link)
			}
		}

		return v, nil
	}
}

// sessionID extracts {sid} from /api/v1/sessions/{sid} and the paths
// below it.
func sessionID(path string) (string, bool) {
	rest, ok := strings.CutPrefix(path, "/api/v1/sessions/")
	if !ok || rest == "" {
		return "", false
	}
	sid, _, _ := strings.Cut(rest, "/")
	return sid, true
}
