package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Catalog lists the cities contributions can be filed under and the categories offered
// by the form.
type Catalog struct {
	Cities     []City     `yaml:"cities" json:"cities"`
	Categories []Category `yaml:"categories" json:"categories"`
}

type City struct {
	ID      string   `yaml:"id" json:"id"`
	Name    string   `yaml:"name" json:"name"`
	Aliases []string `yaml:"aliases,omitempty" json:"aliases,omitempty"`
}

type Category struct {
	ID    string `yaml:"id" json:"id"`
	Label string `yaml:"label" json:"label"`
}

func LoadCatalog(path string) (Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Catalog{}, fmt.Errorf("read catalog: %w", err)
	}
	return ParseCatalog(raw)
}

func ParseCatalog(raw []byte) (Catalog, error) {
	var catalog Catalog
	if err := yaml.Unmarshal(raw, &catalog); err != nil {
		return Catalog{}, fmt.Errorf("decode catalog: %w", err)
	}
	seen := make(map[string]struct{}, len(catalog.Cities))
	for i, city := range catalog.Cities {
		id := strings.TrimSpace(city.ID)
		if id == "" {
			return Catalog{}, fmt.Errorf("catalog city #%d has no id", i+1)
		}
		if _, dup := seen[id]; dup {
			return Catalog{}, fmt.Errorf("catalog city %q is declared twice", id)
		}
		seen[id] = struct{}{}
		catalog.Cities[i].ID = id
	}
	return catalog, nil
}
