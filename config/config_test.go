package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFilter(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
		t.Fatalf("failed to write filter file: %v", err)
	}
}

func TestLoadFilters(t *testing.T) {
	dir := t.TempDir()
	writeFilter(t, dir, "bmw.yaml", `
name: bmw
url: "https://example.com/bmw"
brand: BMW
min_year: 2012
max_mileage: 125000
priority: true
`)
	writeFilter(t, dir, "audi.yaml", `
name: audi
url: "https://example.com/audi"
brand: Audi
min_year: 2012
max_mileage: 125000
relaxed: true
`)
	writeFilter(t, dir, "notes.txt", "ignored")

	cfg := &Config{Filters: make(map[string]*FilterConfig)}
	if err := cfg.loadFilters(dir); err != nil {
		t.Fatalf("loadFilters failed: %v", err)
	}

	if len(cfg.Filters) != 2 {
		t.Fatalf("expected 2 filters, got %d", len(cfg.Filters))
	}

	bmw := cfg.Filters["bmw"]
	if bmw == nil {
		t.Fatalf("missing bmw filter")
	}
	if bmw.Brand != "BMW" || bmw.MinYear != 2012 || bmw.MaxMileage != 125000 {
		t.Fatalf("unexpected bmw filter: %+v", bmw)
	}
	if !bmw.Priority {
		t.Fatalf("bmw should be a priority filter")
	}
	if !cfg.Filters["audi"].Relaxed {
		t.Fatalf("audi should be relaxed")
	}
}

func TestLoadFiltersRejectsIncomplete(t *testing.T) {
	dir := t.TempDir()
	writeFilter(t, dir, "broken.yaml", "brand: BMW\n")

	cfg := &Config{Filters: make(map[string]*FilterConfig)}
	if err := cfg.loadFilters(dir); err == nil {
		t.Fatalf("expected error for filter without name/url")
	}
}

func TestFilterNamesPriorityFirst(t *testing.T) {
	cfg := &Config{Filters: map[string]*FilterConfig{
		"mercedes": {Name: "mercedes"},
		"bmw":      {Name: "bmw", Priority: true},
		"audi":     {Name: "audi"},
	}}

	names := cfg.FilterNames()
	want := []string{"bmw", "audi", "mercedes"}
	if len(names) != len(want) {
		t.Fatalf("expected %d names, got %d", len(want), len(names))
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("expected order %v, got %v", want, names)
		}
	}
}
