package catalog

import (
	"testing"

	"github.com/civicatlas/contribution-wizard/internal/config"
)

func TestResolveCity(t *testing.T) {
	r := NewResolver(config.Catalog{Cities: []config.City{
		{ID: "lyon", Name: "Lyon", Aliases: []string{"grand-lyon"}},
		{ID: "grenoble", Name: "Grenoble"},
	}})

	cases := map[string]string{
		"lyon":                     "lyon",
		" Grand-Lyon ":             "lyon",
		"grenoble.civicatlas.org":  "grenoble",
		"lyon.civicatlas.org:8443": "lyon",
	}
	for hint, want := range cases {
		got, ok := r.ResolveCity(hint)
		if !ok || got != want {
			t.Fatalf("ResolveCity(%q) = %q, %v; want %q", hint, got, ok, want)
		}
	}

	if _, ok := r.ResolveCity("paris"); ok {
		t.Fatalf("unknown cities must not resolve")
	}
	if _, ok := r.ResolveCity(""); ok {
		t.Fatalf("empty hint must not resolve")
	}
}
