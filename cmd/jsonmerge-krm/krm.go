// SPDX-License-Identifier: Apache-2.0

package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"slices"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/goccy/go-yaml"
	"github.com/hashicorp/go-multierror"
	"github.com/samber/lo"

	jsonmerger "github.com/rikirenz/json-merger"
)

// KRM annotation constants.
const (
	// AnnotationBase is the base prefix for all jsonmerger annotations.
	AnnotationBase = "config.jsonmerger.io/"

	// AnnotationID groups the root, head and update ConfigMaps of one merge.
	AnnotationID = AnnotationBase + "id"

	// AnnotationRole tells which document a ConfigMap holds: root, head or update.
	AnnotationRole = AnnotationBase + "role"

	// AnnotationKeys gives primary key fields per list path, read from the
	// head ConfigMap. Example: "titles=source;authors.ids=schema,value".
	AnnotationKeys = AnnotationBase + "keys"

	// AnnotationStrategies gives list strategies per list path, read from
	// the head ConfigMap. Example: "titles=keep-head".
	AnnotationStrategies = AnnotationBase + "strategies"

	// AnnotationDefaultStrategy sets the strategy of lists without one.
	AnnotationDefaultStrategy = AnnotationBase + "default-strategy"
)

// TypeMeta describes an individual object in a ResourceList.
type TypeMeta struct {
	APIVersion string `yaml:"apiVersion" json:"apiVersion"`
	Kind       string `yaml:"kind" json:"kind"`
}

// ObjectMeta is metadata that all persisted resources must have.
type ObjectMeta struct {
	Name        string            `yaml:"name,omitempty" json:"name,omitempty"`
	Namespace   string            `yaml:"namespace,omitempty" json:"namespace,omitempty"`
	Labels      map[string]string `yaml:"labels,omitempty" json:"labels,omitempty"`
	Annotations map[string]string `yaml:"annotations,omitempty" json:"annotations,omitempty"`
}

// ConfigMap represents a Kubernetes ConfigMap resource.
type ConfigMap struct {
	TypeMeta   `yaml:",inline" json:",inline"`
	ObjectMeta `yaml:"metadata,omitempty" json:"metadata,omitempty"`
	Data       map[string]string `yaml:"data,omitempty" json:"data,omitempty"`
}

// ResourceList is the input/output format for KRM functions.
// See: https://github.com/kubernetes-sigs/kustomize/blob/master/cmd/config/docs/api-conventions/functions-spec.md
type ResourceList struct {
	APIVersion string           `yaml:"apiVersion" json:"apiVersion"`
	Kind       string           `yaml:"kind" json:"kind"`
	Items      []map[string]any `yaml:"items" json:"items"`
}

// mergeGroup holds the three ConfigMaps sharing an id.
type mergeGroup struct {
	id   string
	docs [3]*ConfigMap // indexed by jsonmerger.Document
}

// Run executes the KRM function, reading a ResourceList from in and writing
// the result to out. Each group is replaced by its merged head ConfigMap.
func Run(in io.Reader, out io.Writer) error {
	rl, err := readResourceList(in)
	if err != nil {
		return fmt.Errorf("failed to read ResourceList: %w", err)
	}

	groups, passthrough, err := groupConfigMaps(rl)
	if err != nil {
		return fmt.Errorf("failed to group ConfigMaps: %w", err)
	}

	merged := make([]map[string]any, 0, len(groups))
	for _, group := range groups {
		item, err := mergeConfigMapGroup(group)
		if err != nil {
			return fmt.Errorf("failed to merge ConfigMap group %q: %w", group.id, err)
		}
		merged = append(merged, item)
	}

	outputRL := ResourceList{
		APIVersion: "config.kubernetes.io/v1",
		Kind:       "ResourceList",
		Items:      append(passthrough, merged...),
	}
	if err := writeResourceList(out, outputRL); err != nil {
		return fmt.Errorf("failed to write ResourceList: %w", err)
	}
	return nil
}

func readResourceList(r io.Reader) (*ResourceList, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read input: %w", err)
	}

	var rl ResourceList
	if err := yaml.Unmarshal(data, &rl); err != nil {
		return nil, fmt.Errorf("failed to unmarshal ResourceList: %w", err)
	}
	return &rl, nil
}

func writeResourceList(w io.Writer, rl ResourceList) error {
	data, err := yaml.Marshal(rl)
	if err != nil {
		return fmt.Errorf("failed to marshal ResourceList: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

// groupConfigMaps separates annotated ConfigMaps from passthrough resources.
// Groups are returned in order of first appearance.
func groupConfigMaps(rl *ResourceList) ([]*mergeGroup, []map[string]any, error) {
	var groups []*mergeGroup
	byID := make(map[string]*mergeGroup)
	var passthrough []map[string]any

	for _, item := range rl.Items {
		cm, isConfigMap, err := parseConfigMap(item)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to parse resource: %w", err)
		}
		id := cm.Annotations[AnnotationID]
		if !isConfigMap || id == "" {
			passthrough = append(passthrough, item)
			continue
		}

		doc, err := parseRole(cm.Annotations[AnnotationRole])
		if err != nil {
			return nil, nil, fmt.Errorf("ConfigMap %q: %w", cm.Name, err)
		}

		group, ok := byID[id]
		if !ok {
			group = &mergeGroup{id: id}
			byID[id] = group
			groups = append(groups, group)
		}
		if prev := group.docs[doc]; prev != nil {
			return nil, nil, fmt.Errorf("ConfigMap group %q: ConfigMaps %q and %q both have role %s",
				id, prev.Name, cm.Name, doc)
		}
		group.docs[doc] = &cm
	}

	for _, group := range groups {
		for doc, cm := range group.docs {
			if cm == nil {
				return nil, nil, fmt.Errorf("ConfigMap group %q: no ConfigMap with role %s",
					group.id, jsonmerger.Document(doc))
			}
		}
	}
	return groups, passthrough, nil
}

func parseRole(role string) (jsonmerger.Document, error) {
	switch strings.ToLower(strings.TrimSpace(role)) {
	case "root":
		return jsonmerger.DocRoot, nil
	case "head":
		return jsonmerger.DocHead, nil
	case "update":
		return jsonmerger.DocUpdate, nil
	case "":
		return 0, fmt.Errorf("missing required annotation %q", AnnotationRole)
	default:
		return 0, fmt.Errorf("invalid %q annotation %q (must be root, head or update)", AnnotationRole, role)
	}
}

// parseConfigMap attempts to parse a resource item as a ConfigMap.
func parseConfigMap(item map[string]any) (ConfigMap, bool, error) {
	apiVersion, _ := item["apiVersion"].(string)
	kind, _ := item["kind"].(string)
	if kind != "ConfigMap" {
		return ConfigMap{}, false, nil
	}

	// Marshal and unmarshal to convert map to ConfigMap struct
	data, err := yaml.Marshal(item)
	if err != nil {
		return ConfigMap{}, false, fmt.Errorf("failed to marshal item: %w", err)
	}
	var cm ConfigMap
	if err := yaml.Unmarshal(data, &cm); err != nil {
		return ConfigMap{}, false, fmt.Errorf("failed to unmarshal ConfigMap: %w", err)
	}

	if cm.APIVersion == "" {
		cm.APIVersion = apiVersion
	}
	if cm.Kind == "" {
		cm.Kind = kind
	}
	return cm, true, nil
}

// parseMergeOptions reads merge options from the head ConfigMap's annotations.
func parseMergeOptions(annotations map[string]string) (jsonmerger.Options, error) {
	opts := jsonmerger.Options{
		Comparators:    make(map[string]jsonmerger.Comparator),
		ListStrategies: make(map[string]jsonmerger.ListStrategy),
	}
	var errs *multierror.Error

	for _, rule := range splitRules(annotations[AnnotationKeys]) {
		path, fields, ok := strings.Cut(rule, "=")
		keys := lo.Compact(lo.Map(strings.Split(fields, ","), func(f string, _ int) string {
			return strings.TrimSpace(f)
		}))
		path = strings.TrimSpace(path)
		if !ok || path == "" || len(keys) == 0 {
			errs = multierror.Append(errs, fmt.Errorf("invalid %q entry %q (want path=field1,field2)", AnnotationKeys, rule))
			continue
		}
		opts.Comparators[path] = jsonmerger.PrimaryKey(keys...)
	}

	for _, rule := range splitRules(annotations[AnnotationStrategies]) {
		path, name, ok := strings.Cut(rule, "=")
		path = strings.TrimSpace(path)
		if !ok || path == "" {
			errs = multierror.Append(errs, fmt.Errorf("invalid %q entry %q (want path=strategy)", AnnotationStrategies, rule))
			continue
		}
		s, err := jsonmerger.ParseListStrategy(strings.TrimSpace(name))
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("%q entry %q: %w", AnnotationStrategies, rule, err))
			continue
		}
		opts.ListStrategies[path] = s
	}

	if name := strings.TrimSpace(annotations[AnnotationDefaultStrategy]); name != "" {
		s, err := jsonmerger.ParseListStrategy(name)
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("%q: %w", AnnotationDefaultStrategy, err))
		}
		opts.DefaultListStrategy = s
	}

	return opts, errs.ErrorOrNil()
}

// splitRules splits a semicolon separated annotation value, dropping blanks.
func splitRules(value string) []string {
	return lo.Filter(strings.Split(value, ";"), func(s string, _ int) bool {
		return strings.TrimSpace(s) != ""
	})
}

// mergeConfigMapGroup merges the data of a group into a copy of its head
// ConfigMap. Every conflict of every data key fails the merge.
func mergeConfigMapGroup(group *mergeGroup) (map[string]any, error) {
	head := group.docs[jsonmerger.DocHead]
	opts, err := parseMergeOptions(head.Annotations)
	if err != nil {
		return nil, fmt.Errorf("ConfigMap %q: %w", head.Name, err)
	}
	merger, err := jsonmerger.NewMerger(opts)
	if err != nil {
		return nil, fmt.Errorf("ConfigMap %q: %w", head.Name, err)
	}

	allKeys := make(map[string]struct{})
	for _, cm := range group.docs {
		for key := range cm.Data {
			allKeys[key] = struct{}{}
		}
	}
	keysToMerge := make([]string, 0, len(allKeys))
	for key := range allKeys {
		keysToMerge = append(keysToMerge, key)
	}
	slices.Sort(keysToMerge)

	mergedData := make(map[string]string)
	var conflicts jsonmerger.Conflicts
	for _, dataKey := range keysToMerge {
		value, keep, err := mergeDataKey(merger, group, dataKey)
		var me *jsonmerger.MergeError
		if errors.As(err, &me) {
			conflicts = append(conflicts, me.Conflicts...)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to merge data key %q: %w", dataKey, err)
		}
		if keep {
			mergedData[dataKey] = value
		}
	}
	if len(conflicts) > 0 {
		conflicts.Sort()
		return nil, &jsonmerger.MergeError{Conflicts: conflicts}
	}

	result := ConfigMap{
		TypeMeta: head.TypeMeta,
		ObjectMeta: ObjectMeta{
			Name:        head.Name,
			Namespace:   head.Namespace,
			Labels:      head.Labels,
			Annotations: filterJSONMergerAnnotations(head.Annotations),
		},
		Data: mergedData,
	}

	// Convert to map[string]any for ResourceList
	data, err := yaml.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal merged ConfigMap: %w", err)
	}
	var resultMap map[string]any
	if err := yaml.Unmarshal(data, &resultMap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal merged ConfigMap: %w", err)
	}
	return resultMap, nil
}

// mergeDataKey merges one data key of the group. The key itself is merged
// like a mapping key: one side adding or deleting it wins unless the other
// side changed it. Conflict paths start with the data key.
func mergeDataKey(merger *jsonmerger.Merger, group *mergeGroup, dataKey string) (string, bool, error) {
	f, err := detectFormatFromKey(dataKey)
	if err != nil {
		return "", false, fmt.Errorf("data key %q: %w", dataKey, err)
	}

	var trees [3]any
	var present [3]bool
	for i, cm := range group.docs {
		raw, ok := cm.Data[dataKey]
		if !ok {
			continue
		}
		var doc any
		if err := f.unmarshal([]byte(raw), &doc); err != nil {
			return "", false, fmt.Errorf("ConfigMap %q (format: %s): %w", cm.Name, f.name, err)
		}
		trees[i], present[i] = jsonmerger.Normalize(doc), true
	}
	root, head, update := trees[jsonmerger.DocRoot], trees[jsonmerger.DocHead], trees[jsonmerger.DocUpdate]
	hasRoot, hasHead, hasUpdate := present[jsonmerger.DocRoot], present[jsonmerger.DocHead], present[jsonmerger.DocUpdate]

	switch {
	case hasHead && hasUpdate:
		merged, err := merger.Merge(root, head, update)
		if err != nil {
			var me *jsonmerger.MergeError
			if errors.As(err, &me) {
				return "", false, prefixConflicts(me, dataKey)
			}
			return "", false, err
		}
		return encode(f, merged, group.docs[jsonmerger.DocHead].Data[dataKey], jsonmerger.Equal(merged, head))

	case hasHead:
		// update deleted the key, or head added it
		if hasRoot && jsonmerger.Equal(root, head) {
			return "", false, nil
		}
		if hasRoot {
			return "", false, removeConflict(dataKey, root, head, nil)
		}
		return group.docs[jsonmerger.DocHead].Data[dataKey], true, nil

	case hasUpdate:
		// head deleted the key, or update added it
		if hasRoot && !jsonmerger.Equal(root, update) {
			return "", false, removeConflict(dataKey, root, nil, update)
		}
		if hasRoot {
			return "", false, nil
		}
		return encode(f, update, group.docs[jsonmerger.DocUpdate].Data[dataKey], true)

	default:
		return "", false, nil
	}
}

// encode renders a merged tree. Unchanged head data is kept verbatim.
func encode(f dataFormat, tree any, raw string, unchanged bool) (string, bool, error) {
	if unchanged {
		return raw, true, nil
	}
	data, err := f.marshal(tree)
	if err != nil {
		return "", false, fmt.Errorf("failed to marshal merged %s: %w", f.name, err)
	}
	return string(data), true, nil
}

func removeConflict(dataKey string, root, head, update any) error {
	return &jsonmerger.MergeError{Conflicts: jsonmerger.Conflicts{{
		Type: jsonmerger.ConflictRemoveField,
		Path: jsonmerger.Path{jsonmerger.Field(dataKey)},
		Body: []any{root, head, update},
	}}}
}

func prefixConflicts(me *jsonmerger.MergeError, dataKey string) error {
	out := make(jsonmerger.Conflicts, len(me.Conflicts))
	for i, c := range me.Conflicts {
		c.Path = append(jsonmerger.Path{jsonmerger.Field(dataKey)}, c.Path...)
		out[i] = c
	}
	return &jsonmerger.MergeError{Conflicts: out}
}

type dataFormat struct {
	name      string
	unmarshal func([]byte, any) error
	marshal   func(any) ([]byte, error)
}

func marshalJSON(v any) ([]byte, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(out, '\n'), nil
}

// detectFormatFromKey detects the format based on the data key name (e.g., "config.yaml" → YAML).
func detectFormatFromKey(dataKey string) (dataFormat, error) {
	ext := strings.ToLower(filepath.Ext(dataKey))

	switch ext {
	case ".yaml", ".yml":
		return dataFormat{"yaml", yaml.Unmarshal, yaml.Marshal}, nil
	case ".json":
		return dataFormat{"json", json.Unmarshal, marshalJSON}, nil
	case ".toml":
		return dataFormat{"toml", toml.Unmarshal, toml.Marshal}, nil
	default:
		// Default to YAML for keys without extension (common in Kubernetes)
		return dataFormat{"yaml (default)", yaml.Unmarshal, yaml.Marshal}, nil
	}
}

// filterJSONMergerAnnotations removes config.jsonmerger.io annotations from a map.
func filterJSONMergerAnnotations(annotations map[string]string) map[string]string {
	filtered := lo.OmitBy(annotations, func(key, _ string) bool {
		return strings.HasPrefix(key, AnnotationBase)
	})
	if len(filtered) == 0 {
		return nil
	}
	return filtered
}
