package rules

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// FileProvider reads rules from a YAML or JSON file on every Get.
// Wrap it in a CachedProvider to avoid re-reading.
type FileProvider struct {
	path string
}

// NewFileProvider creates a provider for path.
func NewFileProvider(path string) *FileProvider {
	return &FileProvider{path: path}
}

// Get reads and parses the file.
func (p *FileProvider) Get(ctx context.Context) (Rules, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p.path)
	if err != nil {
		return nil, fmt.Errorf("read rules file: %w", err)
	}
	return Parse(data, filepath.Ext(p.path))
}

// Parse decodes rules. ext selects JSON for ".json"; anything else is YAML,
// which also accepts JSON documents.
func Parse(data []byte, ext string) (Rules, error) {
	var r Rules
	if strings.EqualFold(ext, ".json") {
		if err := json.Unmarshal(data, &r); err != nil {
			return nil, fmt.Errorf("parse rules json: %w", err)
		}
	} else if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parse rules yaml: %w", err)
	}
	if len(r) == 0 {
		return nil, fmt.Errorf("rules document is empty")
	}
	return r, nil
}
