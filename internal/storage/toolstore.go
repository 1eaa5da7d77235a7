package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"riviera/internal/tool"
)

// Per-tenant tool configuration lives under <root>/<websiteID>/ as two
// YAML documents. Secrets are kept in a separate file so the config
// file can be shared or checked in without them.
const (
	toolsFileName   = "tools.yaml"
	secretsFileName = "secrets.yaml"
)

type toolConfigFile struct {
	Tools []toolConfigEntry `yaml:"tools"`
}

type toolConfigEntry struct {
	ID          string         `yaml:"id"`
	Name        string         `yaml:"name"`
	Type        string         `yaml:"type"`
	DisplayName string         `yaml:"display_name,omitempty"`
	Description string         `yaml:"description,omitempty"`
	InputSchema *schemaEntry   `yaml:"input_schema,omitempty"`
	Settings    map[string]any `yaml:"settings,omitempty"`
}

type schemaEntry struct {
	Type       string                   `yaml:"type"`
	Properties map[string]propertyEntry `yaml:"properties,omitempty"`
	Required   []string                 `yaml:"required,omitempty"`
}

type propertyEntry struct {
	Type        string         `yaml:"type"`
	Description string         `yaml:"description,omitempty"`
	Enum        []string       `yaml:"enum,omitempty"`
	Items       *propertyEntry `yaml:"items,omitempty"`
}

type secretsFile struct {
	// Keyed by tool config id, then secret name.
	Secrets map[string]map[string]string `yaml:"secrets"`
}

// FileToolConfigStore reads per-tenant external tool configs from YAML.
// It satisfies tool.ConfigRepository.
type FileToolConfigStore struct {
	root string
}

func NewFileToolConfigStore(root string) *FileToolConfigStore {
	return &FileToolConfigStore{root: root}
}

// ListByWebsite returns the tenant's configured tools. A tenant with no
// config file simply has no external tools.
func (s *FileToolConfigStore) ListByWebsite(ctx context.Context, websiteID string) ([]tool.Config, error) {
	path := filepath.Join(s.root, websiteID, toolsFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read tool config for %s: %w", websiteID, err)
	}

	var file toolConfigFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("decode tool config for %s: %w", websiteID, err)
	}

	configs := make([]tool.Config, 0, len(file.Tools))
	for _, entry := range file.Tools {
		configs = append(configs, tool.Config{
			ID:          entry.ID,
			Name:        entry.Name,
			Type:        entry.Type,
			DisplayName: entry.DisplayName,
			Description: entry.Description,
			InputSchema: convertSchema(entry.InputSchema),
			Settings:    entry.Settings,
		})
	}
	return configs, nil
}

func convertSchema(entry *schemaEntry) *tool.InputSchema {
	if entry == nil {
		return nil
	}
	schema := &tool.InputSchema{
		Type:     entry.Type,
		Required: entry.Required,
	}
	if schema.Type == "" {
		schema.Type = "object"
	}
	if len(entry.Properties) > 0 {
		schema.Properties = make(map[string]tool.Property, len(entry.Properties))
		for name, prop := range entry.Properties {
			schema.Properties[name] = convertProperty(prop)
		}
	}
	return schema
}

func convertProperty(entry propertyEntry) tool.Property {
	prop := tool.Property{
		Type:        entry.Type,
		Description: entry.Description,
	}
	if len(entry.Enum) > 0 {
		prop.Enum = make([]any, len(entry.Enum))
		for i, v := range entry.Enum {
			prop.Enum[i] = v
		}
	}
	if entry.Items != nil {
		items := convertProperty(*entry.Items)
		prop.Items = &items
	}
	return prop
}

// FileSecretStore reads per-tenant tool secrets from YAML. It satisfies
// tool.SecretRepository.
type FileSecretStore struct {
	root string
}

func NewFileSecretStore(root string) *FileSecretStore {
	return &FileSecretStore{root: root}
}

// SecretsFor returns the secrets of one tool config. Missing files and
// missing tool entries both mean "no secrets", not an error.
func (s *FileSecretStore) SecretsFor(ctx context.Context, websiteID, toolConfigID string) (map[string]string, error) {
	path := filepath.Join(s.root, websiteID, secretsFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read secrets for %s: %w", websiteID, err)
	}

	var file secretsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("decode secrets for %s: %w", websiteID, err)
	}
	return file.Secrets[toolConfigID], nil
}
