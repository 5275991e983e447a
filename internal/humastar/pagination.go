package humastar

import "fmt"

// Pager is implemented by response bodies that page through a collection.
// The API's link transformer turns the returned values into Link headers.
type Pager interface {
	PaginationLinks(basePath string) []string
}

// PageInput holds the offset/limit query parameters of a paginated list.
type PageInput struct {
	Offset int `query:"offset" minimum:"0" default:"0" doc:"Index of the first item"`
	Limit  int `query:"limit" minimum:"1" maximum:"500" default:"50" doc:"Page size"`
}

// PageBody is a generic paginated response envelope.
type PageBody[T any] struct {
	Total  int `json:"total" doc:"Total number of items"`
	Offset int `json:"offset" doc:"Current offset"`
	Limit  int `json:"limit" doc:"Page size"`
	Data   []T `json:"data" doc:"Items"`
}

// Paginate returns the page of items selected by in.
func Paginate[T any](items []T, in PageInput) PageBody[T] {
	limit := in.Limit
	if limit <= 0 {
		limit = 50
	}
	start := min(max(in.Offset, 0), len(items))
	end := min(start+limit, len(items))
	data := make([]T, end-start)
	copy(data, items[start:end])
	return PageBody[T]{Total: len(items), Offset: start, Limit: limit, Data: data}
}

// PaginationLinks returns the first, prev, next and last Link header
// values that apply to this page.
func (p PageBody[T]) PaginationLinks(basePath string) []string {
	link := func(offset int, rel string) string {
		return fmt.Sprintf(`<%s?offset=%d&limit=%d>; rel="%s"`, basePath, offset, p.Limit, rel)
	}
	links := []string{link(0, "first")}
	if p.Offset > 0 {
		links = append(links, link(max(p.Offset-p.Limit, 0), "prev"))
	}
	if p.Offset+p.Limit < p.Total {
		links = append(links, link(p.Offset+p.Limit, "next"))
	}
	return append(links, link(max((p.Total-1)/p.Limit*p.Limit, 0), "last"))
}
