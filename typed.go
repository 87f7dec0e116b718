// SPDX-License-Identifier: Apache-2.0

package jsonmerger

import (
	"errors"
	"fmt"
	"maps"
	"reflect"
	"strings"

	"github.com/goccy/go-yaml"
)

// ErrInvalidTag indicates a jm struct tag could not be parsed.
var ErrInvalidTag = errors.New("invalid jm tag")

// TagKind identifies which jm struct tag directive had an error.
type TagKind int

const (
	// UnknownTag indicates an unknown or unsupported jm tag directive.
	UnknownTag TagKind = iota
	// PrimaryTag indicates an error with jm:"primary" directive.
	PrimaryTag
	// StrategyTag indicates an error with jm:"strategy=..." directive.
	StrategyTag
	// FieldTag indicates an error with jm:"field=..." directive.
	FieldTag
)

func (k TagKind) String() string {
	switch k {
	case UnknownTag:
		return "unknown"
	case PrimaryTag:
		return "primary"
	case StrategyTag:
		return "strategy"
	case FieldTag:
		return "field"
	default:
		return fmt.Sprintf("TagKind(%d)", k)
	}
}

// InvalidTagError is returned when a jm struct tag contains an invalid directive or value.
type InvalidTagError struct {
	// Kind indicates which jm tag directive had the error.
	Kind TagKind
	// FieldName is the struct field name where the error occurred.
	FieldName string
	// Value is the invalid value (e.g., the invalid strategy string).
	Value string
	// Message provides details about what went wrong.
	Message string
}

func (e *InvalidTagError) Error() string {
	if e.Value != "" {
		return fmt.Sprintf("field %s: invalid %s tag: %s (value: %q)",
			e.FieldName, e.Kind.String(), e.Message, e.Value)
	}
	return fmt.Sprintf("field %s: invalid %s tag: %s",
		e.FieldName, e.Kind.String(), e.Message)
}

func (e *InvalidTagError) Is(target error) bool {
	return target == ErrInvalidTag
}

// TypedMerger merges values of a struct type T. It derives comparators and
// list strategies from T's struct tags.
//
// It embeds a [Merger] and inherits all its methods.
//
// Struct tag format:
//   - jm:"primary" - marks a field of a list element struct as part of its
//     identity; list elements are matched with a [PrimaryKeyComparator] over
//     all such fields, in declaration order
//   - jm:"strategy=<name>" - sets the [ListStrategy] of a list field, using
//     the names of [ListStrategyNames]
//   - jm:"field=name" - overrides field name detection
//
// Field names are detected from yaml, json and toml struct tags. Tag-derived
// settings take precedence over entries for the same path in the Options.
//
// Example:
//
//	type Record struct {
//		Authors []Author `yaml:"authors"`
//		Titles  []Title  `yaml:"titles" jm:"strategy=keep-both-head-first"`
//	}
//
//	type Title struct {
//		Source string `yaml:"source" jm:"primary"`
//		Title  string `yaml:"title"`
//	}
//
//	merger, _ := NewTypedMerger[Record](Options{})
//	merged, _ := merger.MergeValues(root, head, update)
type TypedMerger[T any] struct {
	*Merger
}

// NewTypedMerger creates a new [TypedMerger] with settings extracted from
// type T's struct tags layered over opts.
func NewTypedMerger[T any](opts Options) (*TypedMerger[T], error) {
	derived := tagSettings{
		comparators: make(map[string]Comparator),
		strategies:  make(map[string]ListStrategy),
	}
	if err := derived.collect(reflect.TypeOf((*T)(nil)).Elem(), "", 0); err != nil {
		return nil, err
	}

	opts.Comparators = layer(opts.Comparators, derived.comparators)
	opts.ListStrategies = layer(opts.ListStrategies, derived.strategies)

	merger, err := NewMerger(opts)
	if err != nil {
		return nil, err
	}
	return &TypedMerger[T]{Merger: merger}, nil
}

func layer[V any](base, over map[string]V) map[string]V {
	out := make(map[string]V, len(base)+len(over))
	maps.Copy(out, base)
	maps.Copy(out, over)
	return out
}

// MergeValues merges typed values. They are converted to trees through YAML,
// so the yaml struct tags of T govern field names.
func (m *TypedMerger[T]) MergeValues(root, head, update T) (T, error) {
	var zero T
	var docs [3][]byte
	for i, v := range [3]T{root, head, update} {
		data, err := yaml.Marshal(v)
		if err != nil {
			return zero, &MarshalError{Err: err, Doc: Document(i)}
		}
		docs[i] = data
	}

	merged, err := m.MergeMarshal(yaml.Unmarshal, yaml.Marshal, docs[DocRoot], docs[DocHead], docs[DocUpdate])
	if err != nil {
		return zero, err
	}

	var out T
	if err := yaml.Unmarshal(merged, &out); err != nil {
		return zero, &MarshalError{Err: err, Result: true}
	}
	return out, nil
}

// maxTagDepth stops the walk of recursive types.
const maxTagDepth = 32

// tagSettings accumulates comparators and strategies by dotted path.
type tagSettings struct {
	comparators map[string]Comparator
	strategies  map[string]ListStrategy
}

// collect walks struct type t whose fields live under dotted path prefix.
func (s *tagSettings) collect(t reflect.Type, prefix string, depth int) error {
	t = deref(t)
	if t.Kind() != reflect.Struct || depth > maxTagDepth {
		return nil
	}

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)

		// Skip unexported fields
		if !field.IsExported() {
			continue
		}

		fieldName, err := getFieldName(field)
		if err != nil {
			return err
		}
		path := fieldName
		if prefix != "" {
			path = prefix + "." + fieldName
		}

		directives, err := parseJMTag(field.Tag.Get("jm"), field.Name)
		if err != nil {
			return err
		}

		fieldType := deref(field.Type)
		if fieldType.Kind() == reflect.Slice || fieldType.Kind() == reflect.Array {
			elem := deref(fieldType.Elem())
			if directives.strategy != nil {
				s.strategies[path] = *directives.strategy
			}
			if elem.Kind() == reflect.Struct {
				keys, err := primaryKeys(elem)
				if err != nil {
					return fmt.Errorf("field %s: %w", field.Name, err)
				}
				if len(keys) > 0 {
					s.comparators[path] = PrimaryKey(keys...)
				}
			}
			if err := s.collect(elem, path, depth+1); err != nil {
				return fmt.Errorf("field %s: %w", field.Name, err)
			}
			continue
		}

		if directives.strategy != nil {
			return &InvalidTagError{
				Kind:      StrategyTag,
				FieldName: field.Name,
				Message:   fmt.Sprintf("strategy applies to list fields only, got %s", field.Type),
			}
		}
		if err := s.collect(fieldType, path, depth+1); err != nil {
			return fmt.Errorf("field %s: %w", field.Name, err)
		}
	}
	return nil
}

// primaryKeys returns the serialized names of the fields of struct t marked
// jm:"primary", in declaration order.
func primaryKeys(t reflect.Type) ([]string, error) {
	var keys []string
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}
		directives, err := parseJMTag(field.Tag.Get("jm"), field.Name)
		if err != nil {
			return nil, err
		}
		if !directives.primary {
			continue
		}
		// Validate that primary key fields are comparable types
		if !field.Type.Comparable() {
			return nil, &InvalidTagError{
				Kind:      PrimaryTag,
				FieldName: field.Name,
				Message:   fmt.Sprintf("primary key field must be comparable type, got %s", field.Type.String()),
			}
		}
		name, err := getFieldName(field)
		if err != nil {
			return nil, err
		}
		keys = append(keys, name)
	}
	return keys, nil
}

func deref(t reflect.Type) reflect.Type {
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t
}

// getFieldName extracts the serialized field name from struct tags.
// Priority: jm:field override > yaml > json > toml > struct field name.
func getFieldName(field reflect.StructField) (string, error) {
	// Check jm tag for explicit field name override
	if jmTag := field.Tag.Get("jm"); jmTag != "" {
		fieldName, err := extractFieldDirective(jmTag, field.Name)
		if err != nil {
			return "", err
		}
		if fieldName != "" {
			return fieldName, nil
		}
	}

	// Check common serialization tags
	for _, tagName := range []string{"yaml", "json", "toml"} {
		if tag := field.Tag.Get(tagName); tag != "" && tag != "-" {
			// Handle "name,omitempty,inline" format - take first part
			if idx := strings.Index(tag, ","); idx != -1 {
				if idx > 0 {
					return tag[:idx], nil
				}
				continue
			}
			return tag, nil
		}
	}

	// Fall back to struct field name
	return field.Name, nil
}

// extractFieldDirective extracts the field=name directive from a jm tag.
func extractFieldDirective(jmTag, structField string) (string, error) {
	for _, part := range strings.Split(jmTag, ",") {
		part = strings.TrimSpace(part)
		if strings.HasPrefix(part, "field=") {
			fieldName := strings.TrimPrefix(part, "field=")
			if fieldName == "" {
				return "", &InvalidTagError{
					Kind:      FieldTag,
					FieldName: structField,
					Value:     part,
					Message:   "field name cannot be empty",
				}
			}
			return fieldName, nil
		}
	}
	return "", nil
}

type jmDirectives struct {
	primary  bool
	strategy *ListStrategy
}

// parseJMTag parses the jm struct tag of the struct field named structField.
func parseJMTag(tag, structField string) (jmDirectives, error) {
	var d jmDirectives
	if tag == "" {
		return d, nil
	}
	for _, part := range strings.Split(tag, ",") {
		part = strings.TrimSpace(part)

		switch {
		case part == "primary":
			d.primary = true
		case strings.HasPrefix(part, "strategy="):
			name := strings.TrimPrefix(part, "strategy=")
			strategy, err := ParseListStrategy(name)
			if err != nil {
				return d, &InvalidTagError{
					Kind:      StrategyTag,
					FieldName: structField,
					Value:     name,
					Message:   fmt.Sprintf("valid: %s", strings.Join(ListStrategyNames(), ", ")),
				}
			}
			d.strategy = &strategy
		case strings.HasPrefix(part, "field="):
			// handled in getFieldName
		default:
			return d, &InvalidTagError{
				Kind:      UnknownTag,
				FieldName: structField,
				Value:     part,
				Message:   "unknown jm tag directive",
			}
		}
	}
	return d, nil
}
