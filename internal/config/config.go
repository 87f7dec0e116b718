// SPDX-License-Identifier: Apache-2.0

// Package config loads merge rules files for the jsonmerge commands.
//
// A rules file assigns comparators and list strategies to dotted list paths:
//
//	default_strategy: keep-both-head-first
//	lists:
//	  - path: authors
//	    comparator: {type: distance, field: full_name, max_distance: 2}
//	  - path: titles
//	    comparator: {type: primary-key, fields: [source]}
//	    strategy: keep-head
//
// YAML, JSON and TOML files are accepted. The JSONMERGE_DEFAULT_STRATEGY
// environment variable overrides default_strategy.
package config

import (
	"fmt"
	"io"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/samber/lo"
	"github.com/spf13/viper"

	jsonmerger "github.com/rikirenz/json-merger"
)

const envPrefix = "JSONMERGE"

// Comparator types accepted in a rules file.
const (
	ComparatorPrimaryKey = "primary-key"
	ComparatorEqual      = "equal"
	ComparatorDistance   = "distance"
	ComparatorExpr       = "expr"
)

// File is a decoded rules file.
type File struct {
	DefaultStrategy string     `mapstructure:"default_strategy"`
	Lists           []ListRule `mapstructure:"lists"`
}

// ListRule configures one list path.
type ListRule struct {
	Path       string          `mapstructure:"path"`
	Comparator *ComparatorSpec `mapstructure:"comparator"`
	Strategy   string          `mapstructure:"strategy"`
}

// ComparatorSpec describes a comparator. Which fields apply depends on Type.
type ComparatorSpec struct {
	Type string `mapstructure:"type"`

	// primary-key
	Fields []string `mapstructure:"fields"`

	// distance
	Field       string `mapstructure:"field"`
	MaxDistance int    `mapstructure:"max_distance"`
	IgnoreCase  bool   `mapstructure:"ignore_case"`

	// expr
	Expression string `mapstructure:"expression"`
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	_ = v.BindEnv("default_strategy")
	return v
}

// Load reads the rules file at path. The format follows the file extension.
func Load(path string) (*File, error) {
	v := newViper()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read rules %s: %w", path, err)
	}
	return decode(v)
}

// Parse reads rules in the given format ("yaml", "json" or "toml") from r.
func Parse(r io.Reader, format string) (*File, error) {
	v := newViper()
	v.SetConfigType(format)
	if err := v.ReadConfig(r); err != nil {
		return nil, fmt.Errorf("read rules: %w", err)
	}
	return decode(v)
}

// FromEnv returns the rules given by the environment alone.
func FromEnv() (*File, error) {
	return decode(newViper())
}

func decode(v *viper.Viper) (*File, error) {
	var f File
	if err := v.Unmarshal(&f); err != nil {
		return nil, fmt.Errorf("decode rules: %w", err)
	}
	return &f, nil
}

// Options converts the rules into merge options. Every invalid rule is
// reported in the returned error.
func (f *File) Options() (jsonmerger.Options, error) {
	opts := jsonmerger.Options{
		Comparators:    make(map[string]jsonmerger.Comparator),
		ListStrategies: make(map[string]jsonmerger.ListStrategy),
	}
	var errs *multierror.Error

	if f.DefaultStrategy != "" {
		s, err := jsonmerger.ParseListStrategy(f.DefaultStrategy)
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("default_strategy: %w", err))
		}
		opts.DefaultListStrategy = s
	}

	seen := make(map[string]int)
	for i, rule := range f.Lists {
		where := fmt.Sprintf("lists[%d]", i)
		if rule.Path == "" {
			errs = multierror.Append(errs, fmt.Errorf("%s: path is required", where))
			continue
		}
		where = fmt.Sprintf("%s (%s)", where, rule.Path)
		if prev, ok := seen[rule.Path]; ok {
			errs = multierror.Append(errs, fmt.Errorf("%s: path already configured by lists[%d]", where, prev))
			continue
		}
		seen[rule.Path] = i

		if rule.Comparator != nil {
			cmp, err := rule.Comparator.build()
			if err != nil {
				errs = multierror.Append(errs, fmt.Errorf("%s: %w", where, err))
			} else {
				opts.Comparators[rule.Path] = cmp
			}
		}
		if rule.Strategy != "" {
			s, err := jsonmerger.ParseListStrategy(rule.Strategy)
			if err != nil {
				errs = multierror.Append(errs, fmt.Errorf("%s: %w", where, err))
			} else {
				opts.ListStrategies[rule.Path] = s
			}
		}
	}

	if err := errs.ErrorOrNil(); err != nil {
		return jsonmerger.Options{}, err
	}
	return opts, nil
}

// Merge layers o over f: o's default strategy wins when set, and o's list
// rules replace f's rules for the same path.
func (f *File) Merge(o *File) *File {
	out := &File{DefaultStrategy: f.DefaultStrategy}
	if o.DefaultStrategy != "" {
		out.DefaultStrategy = o.DefaultStrategy
	}
	overridden := lo.SliceToMap(o.Lists, func(r ListRule) (string, bool) { return r.Path, true })
	out.Lists = lo.Filter(f.Lists, func(r ListRule, _ int) bool { return !overridden[r.Path] })
	out.Lists = append(out.Lists, o.Lists...)
	return out
}

func (c *ComparatorSpec) build() (jsonmerger.Comparator, error) {
	switch strings.ToLower(c.Type) {
	case ComparatorPrimaryKey:
		if len(c.Fields) == 0 {
			return nil, fmt.Errorf("%s comparator needs fields", ComparatorPrimaryKey)
		}
		return jsonmerger.PrimaryKey(c.Fields...), nil
	case ComparatorEqual:
		return jsonmerger.EqualComparator{}, nil
	case ComparatorDistance:
		if c.Field == "" {
			return nil, fmt.Errorf("%s comparator needs a field", ComparatorDistance)
		}
		if c.MaxDistance < 0 {
			return nil, fmt.Errorf("%s comparator: max_distance must not be negative", ComparatorDistance)
		}
		return jsonmerger.DistanceComparator{
			Field:       c.Field,
			MaxDistance: c.MaxDistance,
			IgnoreCase:  c.IgnoreCase,
		}, nil
	case ComparatorExpr:
		if c.Expression == "" {
			return nil, fmt.Errorf("%s comparator needs an expression", ComparatorExpr)
		}
		cmp, err := jsonmerger.NewExprComparator(c.Expression)
		if err != nil {
			return nil, err
		}
		return cmp, nil
	default:
		return nil, fmt.Errorf("unknown comparator type %q (valid: %s)", c.Type,
			strings.Join([]string{ComparatorPrimaryKey, ComparatorEqual, ComparatorDistance, ComparatorExpr}, ", "))
	}
}
