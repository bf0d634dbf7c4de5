package catalog

import (
	"net"
	"strings"

	"github.com/civicatlas/contribution-wizard/internal/config"
)

// Resolver maps a city slug, alias or request host to a catalog city id.
type Resolver struct {
	catalog config.Catalog
	index   map[string]string
}

func NewResolver(catalog config.Catalog) *Resolver {
	index := make(map[string]string)
	for _, city := range catalog.Cities {
		index[normalize(city.ID)] = city.ID
		for _, alias := range city.Aliases {
			index[normalize(alias)] = city.ID
		}
	}
	return &Resolver{catalog: catalog, index: index}
}

func (r *Resolver) ResolveCity(hint string) (string, bool) {
	key := normalize(hint)
	if key == "" {
		return "", false
	}
	if id, ok := r.index[key]; ok {
		return id, true
	}
	// "lyon.civicatlas.org" resolves through its first label.
	if label, _, found := strings.Cut(key, "."); found {
		if id, ok := r.index[label]; ok {
			return id, true
		}
	}
	return "", false
}

func (r *Resolver) Catalog() config.Catalog {
	return r.catalog
}

func normalize(hint string) string {
	hint = strings.ToLower(strings.TrimSpace(hint))
	if host, _, err := net.SplitHostPort(hint); err == nil {
		hint = host
	}
	return hint
}
