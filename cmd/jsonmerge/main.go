// SPDX-License-Identifier: Apache-2.0

// Command jsonmerge merges a curated record (HEAD) with an automated update
// (UPDATE) against their common ancestor (ROOT).
package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	jsonmerger "github.com/rikirenz/json-merger"
)

var version = "dev"

func main() {
	cmd := newRootCmd(os.Stdout, os.Stderr)
	if err := cmd.Execute(); err != nil {
		// conflicts were already reported
		if !errors.Is(err, jsonmerger.ErrConflict) {
			_, _ = fmt.Fprintln(os.Stderr, err)
			_, _ = fmt.Fprintln(os.Stderr, cmd.UseLine())
		}
		os.Exit(1)
	}
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	var opts runOptions
	var outputPath string
	var verbose bool

	cmd := &cobra.Command{
		Use:     "jsonmerge [flags] ROOT HEAD UPDATE",
		Version: version,
		Short:   "Three-way merge of YAML, JSON or TOML records",
		Long: `jsonmerge reconciles a curated record (HEAD) with an automated update
(UPDATE), both derived from a common ancestor (ROOT).

List elements are matched by identity: primary key fields, an edit distance
on a field, or an expression, configured per list path. Every change that
cannot be reconciled is reported as a conflict and nothing is written.`,
		Example: `  # merge with primary keys for two lists
  jsonmerge --keys titles=source --keys authors.affiliations=value root.yaml head.yaml update.yaml

  # use a rules file and write a merge patch against HEAD
  jsonmerge --config rules.yaml --emit patch --out patch.json root.json head.json update.json`,
		Args:          cobra.ExactArgs(3),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger(verbose, stderr)
			defer func() { _ = logger.Sync() }()
			opts.logger = logger

			out, err := Run(opts, args[0], args[1], args[2])
			if err != nil {
				var me *jsonmerger.MergeError
				if errors.As(err, &me) {
					writeReport(stderr, me.Conflicts)
				}
				return err
			}
			return writeOutput(outputPath, stdout, out)
		},
	}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SetVersionTemplate("{{.Version}}\n")

	flags := cmd.Flags()
	flags.StringVar(&opts.configPath, "config", "", "merge rules file (YAML, JSON or TOML)")
	flags.Var(&opts.keys, "keys", "primary key fields of a list, as path=field1,field2 (repeatable)")
	flags.Var(&opts.strategies, "strategy", "list strategy of a list, as path=name (repeatable)")
	flags.Var(&opts.defaultStrategy, "default-strategy", "strategy for lists without one ("+joinNames()+")")
	flags.StringVar(&outputPath, "out", "", "output file path (defaults to stdout)")
	flags.Var(&opts.outputFormat, "format", "output format [json, yaml, toml] (defaults to HEAD's format)")
	flags.Var(&opts.emit, "emit", "what to write [merged, patch]")
	flags.BoolVarP(&verbose, "verbose", "v", false, "log list alignment and conflicts to stderr")
	return cmd
}

func writeOutput(path string, stdout io.Writer, data []byte) error {
	if path == "" {
		_, err := stdout.Write(data)
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

// newLogger logs to w at debug level when verbose, warnings only otherwise.
func newLogger(verbose bool, w io.Writer) *zap.Logger {
	level := zapcore.WarnLevel
	if verbose {
		level = zapcore.DebugLevel
	}
	encoder := zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
	return zap.New(zapcore.NewCore(encoder, zapcore.AddSync(w), level))
}
