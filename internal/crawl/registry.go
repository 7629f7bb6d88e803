package crawl

import (
	"embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/david/funding-monitor/internal/models"
)

//go:embed config/sources.yaml
var sourcesYAML embed.FS

// Registry holds the default crawl sources.
type Registry struct {
	Sources []SeedSource `yaml:"sources"`
	// Feeds is the older name of the list; both are read.
	Feeds []SeedSource `yaml:"feeds"`
}

// SeedSource is one entry of sources.yaml.
type SeedSource struct {
	Name        string `yaml:"name"`
	URL         string `yaml:"url"`
	Type        string `yaml:"type,omitempty"`
	Description string `yaml:"description,omitempty"`
	Active      *bool  `yaml:"active,omitempty"`
}

// LoadRegistry reads the registry from path, or the embedded sources.yaml
// when path is empty.
func LoadRegistry(path string) (*Registry, error) {
	var (
		data []byte
		err  error
	)
	if path == "" {
		data, err = sourcesYAML.ReadFile("config/sources.yaml")
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, err
	}
	return ParseRegistry(data)
}

// ParseRegistry expands ${VARS} and decodes the YAML.
func ParseRegistry(data []byte) (*Registry, error) {
	expanded := os.ExpandEnv(string(data))

	var reg Registry
	if err := yaml.Unmarshal([]byte(expanded), &reg); err != nil {
		return nil, fmt.Errorf("parse sources registry: %w", err)
	}
	return &reg, nil
}

// Inserts returns the registry as store inserts. Entries without a name or
// URL (for example an unset ${VAR}) and entries with an unknown type are
// skipped.
func (r *Registry) Inserts() []models.SourceInsert {
	all := append(append([]SeedSource{}, r.Sources...), r.Feeds...)

	out := make([]models.SourceInsert, 0, len(all))
	for _, s := range all {
		name := strings.TrimSpace(s.Name)
		u := strings.TrimSpace(s.URL)
		if name == "" || u == "" {
			continue
		}
		sourceType := strings.ToLower(strings.TrimSpace(s.Type))
		if sourceType == "" {
			sourceType = TypeWebsite
		}
		if sourceType != TypeWebsite && sourceType != TypeRSS {
			continue
		}

		in := models.SourceInsert{
			Name:       name,
			URL:        u,
			SourceType: &sourceType,
			IsActive:   s.Active,
		}
		if d := strings.TrimSpace(s.Description); d != "" {
			in.Description = &d
		}
		out = append(out, in)
	}
	return out
}
