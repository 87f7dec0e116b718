// SPDX-License-Identifier: Apache-2.0

package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/goccy/go-yaml"
	"github.com/samber/lo"
	"github.com/spf13/pflag"

	jsonmerger "github.com/rikirenz/json-merger"
)

var (
	_ pflag.Value = (*keyRules)(nil)
	_ pflag.Value = (*strategyRules)(nil)
	_ pflag.Value = (*strategyName)(nil)
	_ pflag.Value = (*emitMode)(nil)
	_ pflag.Value = (*format)(nil)
)

// splitRule splits a path=value flag argument.
func splitRule(flag, value string) (string, string, error) {
	path, rest, ok := strings.Cut(value, "=")
	path, rest = strings.TrimSpace(path), strings.TrimSpace(rest)
	if !ok || path == "" || rest == "" {
		return "", "", fmt.Errorf("%s %q must have the form path=value", flag, value)
	}
	return path, rest, nil
}

type keyRule struct {
	path   string
	fields []string
}

// keyRules collects repeated --keys path=field1,field2 flags.
type keyRules []keyRule

func (k *keyRules) String() string {
	parts := lo.Map(*k, func(r keyRule, _ int) string {
		return r.path + "=" + strings.Join(r.fields, ",")
	})
	return strings.Join(parts, ";")
}

func (k *keyRules) Set(value string) error {
	path, rest, err := splitRule("keys", value)
	if err != nil {
		return err
	}
	fields := lo.Compact(lo.Map(strings.Split(rest, ","), func(f string, _ int) string {
		return strings.TrimSpace(f)
	}))
	if len(fields) == 0 {
		return fmt.Errorf("keys %q names no fields", value)
	}
	*k = append(*k, keyRule{path: path, fields: fields})
	return nil
}

func (k *keyRules) Type() string {
	return "path=fields"
}

func (k keyRules) has(path string) bool {
	return lo.ContainsBy(k, func(r keyRule) bool { return r.path == path })
}

type strategyRule struct {
	path string
	name string
}

// strategyRules collects repeated --strategy path=name flags.
type strategyRules []strategyRule

func (s *strategyRules) String() string {
	parts := lo.Map(*s, func(r strategyRule, _ int) string { return r.path + "=" + r.name })
	return strings.Join(parts, ";")
}

func (s *strategyRules) Set(value string) error {
	path, name, err := splitRule("strategy", value)
	if err != nil {
		return err
	}
	if _, err := jsonmerger.ParseListStrategy(name); err != nil {
		return err
	}
	*s = append(*s, strategyRule{path: path, name: name})
	return nil
}

func (s *strategyRules) Type() string {
	return "path=strategy"
}

// lookup returns the last strategy given for path, or "".
func (s strategyRules) lookup(path string) string {
	name := ""
	for _, r := range s {
		if r.path == path {
			name = r.name
		}
	}
	return name
}

// strategyName is a validated list strategy name.
type strategyName string

func (s *strategyName) String() string {
	return string(*s)
}

func (s *strategyName) Set(value string) error {
	if _, err := jsonmerger.ParseListStrategy(value); err != nil {
		return err
	}
	*s = strategyName(value)
	return nil
}

func (s *strategyName) Type() string {
	return "strategy"
}

func joinNames() string {
	return strings.Join(jsonmerger.ListStrategyNames(), ", ")
}

type emitMode string

const (
	emitMerged emitMode = "merged"
	emitPatch  emitMode = "patch"
)

func (e *emitMode) String() string {
	if *e == "" {
		return string(emitMerged)
	}
	return string(*e)
}

func (e *emitMode) Set(value string) error {
	switch mode := emitMode(strings.ToLower(value)); mode {
	case emitMerged, emitPatch:
		*e = mode
		return nil
	default:
		return fmt.Errorf("emit mode %q is invalid", value)
	}
}

func (e *emitMode) Type() string {
	return "mode"
}

type format string

var validFormats = map[string]format{
	"":     format(""),
	"json": format("json"),
	"yaml": format("yaml"),
	"toml": format("toml"),
}

func (f *format) String() string {
	return string(*f)
}

func (f *format) Set(value string) error {
	value = strings.ToLower(value)
	format, ok := validFormats[value]
	if !ok {
		return fmt.Errorf("invalid format %q", value)
	}
	*f = format
	return nil
}

func (f *format) Type() string {
	return "format"
}

func (f *format) Marshal(doc any) ([]byte, error) {
	switch *f {
	case "json":
		out, err := json.MarshalIndent(doc, "", "  ")
		if err != nil {
			return nil, err
		}
		return append(out, '\n'), nil
	case "yaml":
		return yaml.Marshal(doc)
	case "toml":
		if _, ok := doc.(map[string]any); !ok {
			return nil, fmt.Errorf("toml documents must be tables, not %s", jsonmerger.KindOf(doc))
		}
		return toml.Marshal(doc)
	default:
		return nil, fmt.Errorf("invalid format %q", *f)
	}
}
