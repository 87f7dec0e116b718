// SPDX-License-Identifier: Apache-2.0

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	jsonpatch "github.com/evanphx/json-patch/v5"
	"github.com/goccy/go-yaml"
	"go.uber.org/zap"

	jsonmerger "github.com/rikirenz/json-merger"
	"github.com/rikirenz/json-merger/internal/config"
)

type runOptions struct {
	configPath      string
	keys            keyRules
	strategies      strategyRules
	defaultStrategy strategyName
	outputFormat    format
	emit            emitMode
	logger          *zap.Logger
}

// Run merges the three files and returns the encoded result. A conflicting
// merge returns an error wrapping a [*jsonmerger.MergeError].
func Run(opts runOptions, rootFile, headFile, updateFile string) ([]byte, error) {
	mergeOpts, err := opts.mergeOptions()
	if err != nil {
		return nil, err
	}

	var docs [3]any
	var headFormat format
	for i, file := range []string{rootFile, headFile, updateFile} {
		fileFormat, err := unmarshalFile(file, &docs[i])
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", file, err)
		}
		if jsonmerger.Document(i) == jsonmerger.DocHead {
			headFormat = fileFormat
		}
	}
	outputFormat := opts.outputFormat
	if outputFormat == "" {
		outputFormat = headFormat
	}

	merged, err := jsonmerger.Merge(mergeOpts, docs[jsonmerger.DocRoot], docs[jsonmerger.DocHead], docs[jsonmerger.DocUpdate])
	if err != nil {
		return nil, fmt.Errorf("merge of %s failed: %w", headFile, err)
	}

	if opts.emit == emitPatch {
		patch, err := mergePatch(docs[jsonmerger.DocHead], merged)
		if err != nil {
			return nil, err
		}
		merged = patch
	}

	marshaled, err := outputFormat.Marshal(merged)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result as %s: %w", outputFormat, err)
	}
	return marshaled, nil
}

// mergeOptions layers the command line rules over the rules file.
func (o runOptions) mergeOptions() (jsonmerger.Options, error) {
	var rules *config.File
	var err error
	if o.configPath != "" {
		rules, err = config.Load(o.configPath)
	} else {
		rules, err = config.FromEnv()
	}
	if err != nil {
		return jsonmerger.Options{}, err
	}

	// A flag replaces only the part of a file rule it names.
	fileRule := func(path string) config.ListRule {
		rule := config.ListRule{Path: path}
		for _, r := range rules.Lists {
			if r.Path == path {
				rule = r
			}
		}
		return rule
	}
	flagRules := &config.File{DefaultStrategy: string(o.defaultStrategy)}
	for _, k := range o.keys {
		rule := fileRule(k.path)
		rule.Comparator = &config.ComparatorSpec{Type: config.ComparatorPrimaryKey, Fields: k.fields}
		if name := o.strategies.lookup(k.path); name != "" {
			rule.Strategy = name
		}
		flagRules.Lists = append(flagRules.Lists, rule)
	}
	seen := make(map[string]bool)
	for _, s := range o.strategies {
		if o.keys.has(s.path) || seen[s.path] {
			continue
		}
		seen[s.path] = true
		rule := fileRule(s.path)
		rule.Strategy = o.strategies.lookup(s.path)
		flagRules.Lists = append(flagRules.Lists, rule)
	}

	opts, err := rules.Merge(flagRules).Options()
	if err != nil {
		return jsonmerger.Options{}, fmt.Errorf("invalid merge rules: %w", err)
	}
	opts.Logger = o.logger
	return opts, nil
}

// mergePatch returns the RFC 7386 merge patch that turns head into merged.
func mergePatch(head, merged any) (any, error) {
	original, err := json.Marshal(head)
	if err != nil {
		return nil, fmt.Errorf("failed to encode head: %w", err)
	}
	modified, err := json.Marshal(merged)
	if err != nil {
		return nil, fmt.Errorf("failed to encode merged document: %w", err)
	}
	raw, err := jsonpatch.CreateMergePatch(original, modified)
	if err != nil {
		return nil, fmt.Errorf("failed to create merge patch: %w", err)
	}
	var patch any
	if err := json.Unmarshal(raw, &patch); err != nil {
		return nil, err
	}
	return patch, nil
}

func unmarshalFile(file string, out *any) (format, error) {
	var f format

	contents, err := os.ReadFile(file)
	if err != nil {
		return f, err
	}

	extension := strings.ToLower(filepath.Ext(file))
	var unmarshal func([]byte, any) error
	switch extension {
	case ".yaml", ".yml":
		f = validFormats["yaml"]
		unmarshal = yaml.Unmarshal
	case ".json":
		f = validFormats["json"]
		unmarshal = json.Unmarshal
	case ".toml":
		f = validFormats["toml"]
		unmarshal = toml.Unmarshal
	}
	if unmarshal == nil {
		return f, fmt.Errorf("unsupported file format: %s", extension)
	}

	var doc any
	if err := unmarshal(contents, &doc); err != nil {
		return f, err
	}
	*out = jsonmerger.Normalize(doc)
	return f, nil
}
