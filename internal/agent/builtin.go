package agent

import (
	"context"
	"fmt"

	"riviera/internal/batch"
	"riviera/internal/tool"
)

// BuiltinTools returns the CMS toolset registered into every agent's
// registry at construction. Handlers are thin delegations to the
// content repository; listing is cached since the model tends to call
// it repeatedly within one conversation.
func BuiltinTools(repo ContentRepository) []tool.Registration {
	listHandler := tool.CachedHandler("list_content", func(ctx context.Context, input map[string]any, tc tool.Context) (any, error) {
		contentType, _ := input["content_type"].(string)
		return repo.ListContent(ctx, tc.WebsiteID, contentType)
	}, tool.DefaultCacheConfig())

	return []tool.Registration{
		{
			Definition: tool.Definition{
				Name:        "get_content",
				Description: "Fetch one content document by id",
				InputSchema: tool.InputSchema{
					Type: "object",
					Properties: map[string]tool.Property{
						"content_id": {Type: "string", Description: "Content document id"},
					},
					Required: []string{"content_id"},
				},
			},
			Handler: func(ctx context.Context, input map[string]any, tc tool.Context) (any, error) {
				contentID, ok := input["content_id"].(string)
				if !ok || contentID == "" {
					return nil, fmt.Errorf("content_id is required")
				}
				return repo.GetContent(ctx, tc.WebsiteID, contentID)
			},
		},
		{
			Definition: tool.Definition{
				Name:        "list_content",
				Description: "List content documents of one type for the current website",
				InputSchema: tool.InputSchema{
					Type: "object",
					Properties: map[string]tool.Property{
						"content_type": {
							Type:        "string",
							Description: "Collection to list",
							Enum: []any{
								batch.CollectionRestaurants,
								batch.CollectionAccommodations,
								batch.CollectionPOIs,
								batch.CollectionEvents,
								batch.CollectionTransportation,
								batch.CollectionWeather,
							},
						},
					},
					Required: []string{"content_type"},
				},
			},
			Handler: listHandler,
		},
		{
			Definition: tool.Definition{
				Name:        "update_content",
				Description: "Update fields of one content document",
				InputSchema: tool.InputSchema{
					Type: "object",
					Properties: map[string]tool.Property{
						"content_id": {Type: "string", Description: "Content document id"},
						"fields":     {Type: "object", Description: "Field values to set"},
					},
					Required: []string{"content_id", "fields"},
				},
			},
			Handler: func(ctx context.Context, input map[string]any, tc tool.Context) (any, error) {
				contentID, ok := input["content_id"].(string)
				if !ok || contentID == "" {
					return nil, fmt.Errorf("content_id is required")
				}
				fields, ok := input["fields"].(map[string]any)
				if !ok || len(fields) == 0 {
					return nil, fmt.Errorf("fields is required")
				}
				if err := repo.UpdateContent(ctx, tc.WebsiteID, contentID, fields); err != nil {
					return nil, err
				}
				return map[string]any{"updated": contentID}, nil
			},
		},
		{
			Definition: tool.Definition{
				Name:        "list_villages",
				Description: "List the villages this site covers",
				InputSchema: tool.InputSchema{Type: "object", Properties: map[string]tool.Property{}},
			},
			Handler: func(ctx context.Context, input map[string]any, tc tool.Context) (any, error) {
				return batch.Villages, nil
			},
		},
	}
}
