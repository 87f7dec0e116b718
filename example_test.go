// SPDX-License-Identifier: Apache-2.0

package jsonmerger_test

import (
	"errors"
	"fmt"
	"log"

	"github.com/goccy/go-yaml"

	jsonmerger "github.com/rikirenz/json-merger"
)

// Example merging a curated record with an automated update.
func ExampleMergeMarshal() {
	opts := jsonmerger.Options{
		Comparators: map[string]jsonmerger.Comparator{
			"authors": jsonmerger.DistanceComparator{Field: "full_name", MaxDistance: 2},
			"titles":  jsonmerger.PrimaryKey("source"),
		},
	}

	root := []byte(`
authors:
  - full_name: John Smiht
titles:
  - source: arXiv
    title: A study
`)
	// The curator fixed the author's name.
	head := []byte(`
authors:
  - full_name: John Smith
titles:
  - source: arXiv
    title: A study
`)
	// The update added a publisher title.
	update := []byte(`
authors:
  - full_name: John Smiht
titles:
  - source: arXiv
    title: A study
  - source: publisher
    title: A Study
`)

	result, err := jsonmerger.MergeMarshal(opts, yaml.Unmarshal, yaml.Marshal, root, head, update)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Print(string(result))

	// Output:
	// authors:
	// - full_name: John Smith
	// titles:
	// - source: arXiv
	//   title: A study
	// - source: publisher
	//   title: A Study
}

// Example inspecting conflicts.
func ExampleMergeError() {
	root := map[string]any{"title": "A stduy"}
	head := map[string]any{"title": "A study"}
	update := map[string]any{"title": "A Study"}

	_, err := jsonmerger.Merge(jsonmerger.Options{}, root, head, update)

	var me *jsonmerger.MergeError
	if errors.As(err, &me) {
		for _, c := range me.Conflicts {
			fmt.Println(c.Type, c.Path, c.Body)
		}
	}

	// Output:
	// SET_FIELD title [A stduy A study A Study]
}

// Example using TypedMerger with jm struct tags.
func ExampleTypedMerger() {
	type Affiliation struct {
		Value string `yaml:"value" jm:"primary"`
	}
	type Author struct {
		FullName     string        `yaml:"full_name" jm:"primary"`
		Affiliations []Affiliation `yaml:"affiliations"`
	}
	type Record struct {
		Authors []Author `yaml:"authors" jm:"strategy=keep-both-update-first"`
	}

	merger, err := jsonmerger.NewTypedMerger[Record](jsonmerger.Options{})
	if err != nil {
		log.Fatal(err)
	}

	root := Record{Authors: []Author{
		{FullName: "John Smith", Affiliations: []Affiliation{{Value: "CERN"}}},
	}}
	head := Record{Authors: []Author{
		{FullName: "John Smith", Affiliations: []Affiliation{{Value: "CERN"}, {Value: "DESY"}}},
		{FullName: "Marie Curie"},
	}}
	update := Record{Authors: []Author{
		{FullName: "John Smith", Affiliations: []Affiliation{{Value: "CERN"}, {Value: "MIT"}}},
		{FullName: "Jane Doe"},
	}}

	merged, err := merger.MergeValues(root, head, update)
	if err != nil {
		log.Fatal(err)
	}
	for _, a := range merged.Authors {
		var affs []string
		for _, aff := range a.Affiliations {
			affs = append(affs, aff.Value)
		}
		fmt.Println(a.FullName, affs)
	}

	// Output:
	// John Smith [CERN DESY MIT]
	// Jane Doe []
	// Marie Curie []
}
