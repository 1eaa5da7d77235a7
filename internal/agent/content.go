// Package agent runs the tool-use conversation loop: it builds calls
// from the registry's schemas, sends them, dispatches requested tools,
// and feeds results back until the model stops asking.
package agent

import "context"

// ContentRepository is the CMS content store the builtin tools operate
// on. The CRUD implementation lives outside this runtime; the agent
// only needs these three operations.
type ContentRepository interface {
	GetContent(ctx context.Context, websiteID, contentID string) (map[string]any, error)
	ListContent(ctx context.Context, websiteID, contentType string) ([]map[string]any, error)
	UpdateContent(ctx context.Context, websiteID, contentID string, fields map[string]any) error
}
