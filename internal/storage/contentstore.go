package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// FileContentStore keeps content documents as JSON files under
// <root>/<websiteID>/content/<contentID>.json. It satisfies the agent's
// ContentRepository; deployments backed by a real CMS replace it.
type FileContentStore struct {
	root string
	mu   sync.RWMutex
}

func NewFileContentStore(root string) *FileContentStore {
	return &FileContentStore{root: root}
}

func (s *FileContentStore) dir(websiteID string) string {
	return filepath.Join(s.root, websiteID, "content")
}

func (s *FileContentStore) path(websiteID, contentID string) string {
	return filepath.Join(s.dir(websiteID), contentID+".json")
}

func (s *FileContentStore) GetContent(ctx context.Context, websiteID, contentID string) (map[string]any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(s.path(websiteID, contentID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("content not found: %s", contentID)
		}
		return nil, fmt.Errorf("read content %s: %w", contentID, err)
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode content %s: %w", contentID, err)
	}
	return doc, nil
}

// ListContent returns the documents whose "type" field matches
// contentType; an empty contentType returns everything.
func (s *FileContentStore) ListContent(ctx context.Context, websiteID, contentType string) ([]map[string]any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := os.ReadDir(s.dir(websiteID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list content: %w", err)
	}

	var docs []map[string]any
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.dir(websiteID), name))
		if err != nil {
			continue
		}
		var doc map[string]any
		if err := json.Unmarshal(data, &doc); err != nil {
			continue
		}
		if contentType != "" {
			if docType, _ := doc["type"].(string); docType != contentType {
				continue
			}
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func (s *FileContentStore) UpdateContent(ctx context.Context, websiteID, contentID string, fields map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.path(websiteID, contentID)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("content not found: %s", contentID)
		}
		return fmt.Errorf("read content %s: %w", contentID, err)
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("decode content %s: %w", contentID, err)
	}
	for key, value := range fields {
		doc[key] = value
	}
	updated, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal content %s: %w", contentID, err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, updated, 0o644); err != nil {
		return fmt.Errorf("write content %s: %w", contentID, err)
	}
	return os.Rename(tmp, path)
}

// PutContent seeds a document, creating the tenant directory as needed.
// Used by tooling and tests; the agent itself only reads and updates.
func (s *FileContentStore) PutContent(ctx context.Context, websiteID, contentID string, doc map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.dir(websiteID), 0o755); err != nil {
		return fmt.Errorf("create content dir: %w", err)
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal content %s: %w", contentID, err)
	}
	return os.WriteFile(s.path(websiteID, contentID), data, 0o644)
}
