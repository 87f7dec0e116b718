// SPDX-License-Identifier: Apache-2.0

package jsonmerger_test

import (
	"embed"
	"errors"
	"path"
	"strings"
	"testing"

	"github.com/goccy/go-yaml"
	"github.com/google/go-cmp/cmp"

	jsonmerger "github.com/rikirenz/json-merger"
)

//go:embed testfiles/scenarios/*.yaml
var scenarioFiles embed.FS

// recordOptions configures the record schema the scenarios are written in.
var recordOptions = jsonmerger.Options{
	Comparators: map[string]jsonmerger.Comparator{
		"authors":              jsonmerger.DistanceComparator{Field: "full_name", MaxDistance: 2},
		"authors.affiliations": jsonmerger.PrimaryKey("value"),
		"titles":               jsonmerger.PrimaryKey("source"),
	},
}

type scenario struct {
	Description string             `yaml:"description"`
	Root        any                `yaml:"root"`
	Head        any                `yaml:"head"`
	Update      any                `yaml:"update"`
	Expected    any                `yaml:"expected"`
	Conflicts   []expectedConflict `yaml:"conflicts"`
}

type expectedConflict struct {
	Type string `yaml:"type"`
	Path string `yaml:"path"`
	Body any    `yaml:"body"`
}

func loadScenario(t *testing.T, name string) scenario {
	t.Helper()
	raw, err := scenarioFiles.ReadFile(path.Join("testfiles/scenarios", name))
	if err != nil {
		t.Fatal(err)
	}
	var s scenario
	if err := yaml.Unmarshal(raw, &s); err != nil {
		t.Fatalf("%s: %v", name, err)
	}
	return s
}

func TestAcceptanceScenarios(t *testing.T) {
	entries, err := scenarioFiles.ReadDir("testfiles/scenarios")
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) == 0 {
		t.Fatal("no scenarios found")
	}

	for _, entry := range entries {
		name := strings.TrimSuffix(entry.Name(), ".yaml")
		t.Run(name, func(t *testing.T) {
			s := loadScenario(t, entry.Name())

			m, err := jsonmerger.NewUpdateMerger(s.Root, s.Head, s.Update, recordOptions)
			if err != nil {
				t.Fatal(err)
			}
			err = m.Merge()

			// On conflict the merged root is tentative and still compared.
			if !jsonmerger.Equal(s.Expected, m.MergedRoot()) {
				t.Errorf("%s: merged mismatch (-want +got):\n%s",
					s.Description, cmp.Diff(s.Expected, m.MergedRoot()))
			}

			if len(s.Conflicts) == 0 {
				if err != nil {
					t.Fatalf("%s: unexpected error: %v", s.Description, err)
				}
				return
			}

			if !errors.Is(err, jsonmerger.ErrConflict) {
				t.Fatalf("%s: expected conflict error, got %v", s.Description, err)
			}
			got := m.Conflicts()
			if len(got) != len(s.Conflicts) {
				t.Fatalf("expected %d conflicts, got %d: %v", len(s.Conflicts), len(got), got)
			}
			for _, want := range s.Conflicts {
				if !containsConflict(got, want) {
					t.Errorf("missing conflict %s at %s with body %v; got %v",
						want.Type, want.Path, want.Body, got)
				}
			}
		})
	}
}

func containsConflict(cs jsonmerger.Conflicts, want expectedConflict) bool {
	for _, c := range cs {
		if c.Type.String() == want.Type && c.Path.String() == want.Path && jsonmerger.Equal(c.Body, want.Body) {
			return true
		}
	}
	return false
}

// The merge must not depend on which format the documents were read from.
func TestAcceptanceScenarios_JSONRoundTrip(t *testing.T) {
	s := loadScenario(t, "author_affiliation_addition.yaml")

	docs := make([][]byte, 3)
	for i, v := range []any{s.Root, s.Head, s.Update} {
		data, err := yaml.MarshalWithOptions(v, yaml.JSON())
		if err != nil {
			t.Fatal(err)
		}
		docs[i] = data
	}

	out, err := jsonmerger.MergeMarshal(recordOptions, yaml.Unmarshal, yaml.Marshal, docs[0], docs[1], docs[2])
	if err != nil {
		t.Fatal(err)
	}
	var got any
	if err := yaml.Unmarshal(out, &got); err != nil {
		t.Fatal(err)
	}
	if !jsonmerger.Equal(s.Expected, got) {
		t.Fatalf("merged mismatch (-want +got):\n%s", cmp.Diff(s.Expected, got))
	}
}
