package domain

import (
	"strconv"
	"strings"
)

// Pagination is an offset window over a result ordering.
type Pagination struct {
	Skip  int `json:"skip"`
	Limit int `json:"limit"`
}

// Edge pairs a node with its cursor.
type Edge struct {
	Cursor string    `json:"cursor"`
	Node   Aggregate `json:"node"`
}

// PageInfo mirrors a relay style connection.
type PageInfo struct {
	HasPreviousPage bool    `json:"hasPreviousPage"`
	HasNextPage     bool    `json:"hasNextPage"`
	StartCursor     *string `json:"startCursor,omitempty"`
	EndCursor       *string `json:"endCursor,omitempty"`
}

// Page is one window of search results.
type Page struct {
	Edges    []Edge   `json:"edges"`
	PageInfo PageInfo `json:"pageInfo"`
}

// Nodes returns the aggregates of the page in order.
func (p Page) Nodes() []Aggregate {
	nodes := make([]Aggregate, len(p.Edges))
	for i, edge := range p.Edges {
		nodes[i] = edge.Node
	}
	return nodes
}

// NewPage numbers nodes from pagination.Skip. Cursors increase monotonically.
func NewPage(nodes []Aggregate, pagination Pagination, hasNext bool) Page {
	page := Page{
		Edges: make([]Edge, len(nodes)),
		PageInfo: PageInfo{
			HasPreviousPage: pagination.Skip > 0,
			HasNextPage:     hasNext,
		},
	}
	for i, node := range nodes {
		page.Edges[i] = Edge{Cursor: FormatCursor(pagination.Skip + i), Node: node}
	}
	if len(page.Edges) > 0 {
		start := page.Edges[0].Cursor
		end := page.Edges[len(page.Edges)-1].Cursor
		page.PageInfo.StartCursor = &start
		page.PageInfo.EndCursor = &end
	}
	return page
}

// FormatCursor encodes a row offset.
func FormatCursor(offset int) string {
	return strconv.Itoa(offset)
}

// ParseCursor decodes a row offset; empty means zero.
func ParseCursor(cursor string) (int, error) {
	cursor = strings.TrimSpace(cursor)
	if cursor == "" {
		return 0, nil
	}
	offset, err := strconv.Atoi(cursor)
	if err != nil || offset < 0 {
		return 0, Validationf("invalid cursor %q", cursor)
	}
	return offset, nil
}
