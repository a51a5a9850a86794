package metadata

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kirillkom/crop-advisor/internal/core/domain"
)

//go:embed crops.yaml
var defaultCatalog []byte

type document struct {
	Crops map[string]domain.CropInfo `yaml:"crops"`
}

// Catalog maps crop labels to descriptive metadata. It is read-only after Load.
type Catalog struct {
	crops map[string]domain.CropInfo
}

// Load parses the built-in catalog and, when overridePath is set, replaces or
// adds the entries found in that file.
func Load(overridePath string) (*Catalog, error) {
	crops, err := parse(defaultCatalog)
	if err != nil {
		return nil, fmt.Errorf("parse built-in crop catalog: %w", err)
	}

	if path := strings.TrimSpace(overridePath); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read crop catalog %s: %w", path, err)
		}
		overrides, err := parse(data)
		if err != nil {
			return nil, fmt.Errorf("parse crop catalog %s: %w", path, err)
		}
		for label, info := range overrides {
			crops[label] = info
		}
	}

	return &Catalog{crops: crops}, nil
}

func parse(data []byte) (map[string]domain.CropInfo, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	out := make(map[string]domain.CropInfo, len(doc.Crops))
	for label, info := range doc.Crops {
		key := normalizeLabel(label)
		if key == "" {
			return nil, fmt.Errorf("crop entry with empty label")
		}
		if _, dup := out[key]; dup {
			return nil, fmt.Errorf("crop %q is listed twice", key)
		}
		info.Known = true
		out[key] = info
	}
	return out, nil
}

// Lookup matches labels case-insensitively.
func (c *Catalog) Lookup(label string) (domain.CropInfo, bool) {
	info, ok := c.crops[normalizeLabel(label)]
	return info, ok
}

func (c *Catalog) Labels() []string {
	out := make([]string, 0, len(c.crops))
	for label := range c.crops {
		out = append(out, label)
	}
	sort.Strings(out)
	return out
}

// Missing returns the labels that have no catalog entry.
func (c *Catalog) Missing(labels []string) []string {
	var out []string
	for _, label := range labels {
		if _, ok := c.Lookup(label); !ok {
			out = append(out, label)
		}
	}
	return out
}

func normalizeLabel(label string) string {
	return strings.ToLower(strings.TrimSpace(label))
}
