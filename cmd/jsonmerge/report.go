// SPDX-License-Identifier: Apache-2.0

package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/fatih/color"

	jsonmerger "github.com/rikirenz/json-merger"
)

var (
	errorColor = color.New(color.FgRed, color.Bold)
	typeColor  = color.New(color.FgYellow, color.Bold)
	pathColor  = color.New(color.FgCyan)
	bodyColor  = color.New(color.FgHiBlack)
)

// writeReport prints one line per conflict: type, path and body as JSON.
func writeReport(w io.Writer, conflicts jsonmerger.Conflicts) {
	noun := "conflicts"
	if len(conflicts) == 1 {
		noun = "conflict"
	}
	_, _ = errorColor.Fprintf(w, "✗ %d merge %s\n", len(conflicts), noun)
	for _, c := range conflicts {
		body, err := json.Marshal(c.Body)
		if err != nil {
			body = []byte(fmt.Sprintf("%v", c.Body))
		}
		_, _ = fmt.Fprintf(w, "  %s %s %s\n",
			typeColor.Sprintf("%-16s", c.Type),
			pathColor.Sprint(c.Path),
			bodyColor.Sprint(string(body)))
	}
}
