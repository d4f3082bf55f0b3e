package main

import "testing"

func TestFilterTests(t *testing.T) {
	registry := buildTestRegistry()

	tests := []struct {
		name     string
		all      bool
		category string
		test     string
		want     int
	}{
		{"all", true, "", "", len(registry)},
		{"by number", false, "", "2.1", 1},
		{"number is not a prefix of 2.10", false, "", "2", 0},
		{"by category", false, "jump threshold", "", 4},
		{"lifecycle", false, "Handler", "", 4},
		{"no match", false, "", "9.9", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := filterTests(registry, tt.all, tt.category, tt.test)
			if len(got) != tt.want {
				t.Errorf("filterTests() returned %d scenarios, want %d", len(got), tt.want)
			}
		})
	}
}

func TestRegistryNamesUnique(t *testing.T) {
	seen := make(map[string]bool)
	for _, tc := range buildTestRegistry() {
		if seen[tc.Name()] {
			t.Errorf("duplicate scenario name %q", tc.Name())
		}
		seen[tc.Name()] = true
		if tc.Category() == "" || tc.Description() == "" {
			t.Errorf("scenario %q missing category or description", tc.Name())
		}
	}
}
