package pkgmanager

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/craftpad/runbox/language"
)

// parsePackages normalizes a list command's raw stdout into package
// names per the language's declared output format
func parsePackages(ops *language.PackageOps, stdout string) ([]string, error) {
	switch ops.ListFormat {
	case language.ListFormatJSONDeps:
		return parseJSONDeps(stdout)
	case language.ListFormatJSONArray:
		return parseJSONArray(stdout)
	case language.ListFormatLines:
		return parseLines(ops, stdout), nil
	default:
		return nil, fmt.Errorf("%w: unknown list format %q", ErrUnparseableOutput, ops.ListFormat)
	}
}

// parseJSONDeps handles output shaped like npm's: a JSON object with a
// "dependencies" map keyed by package name
func parseJSONDeps(stdout string) ([]string, error) {
	var doc struct {
		Dependencies map[string]json.RawMessage `json:"dependencies"`
	}
	if err := json.Unmarshal([]byte(stdout), &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnparseableOutput, err)
	}

	names := make([]string, 0, len(doc.Dependencies))
	for name := range doc.Dependencies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// parseJSONArray handles output shaped like pip's: a JSON array of
// records carrying a "name" field
func parseJSONArray(stdout string) ([]string, error) {
	var records []struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal([]byte(stdout), &records); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnparseableOutput, err)
	}

	names := make([]string, 0, len(records))
	for _, r := range records {
		if r.Name != "" {
			names = append(names, r.Name)
		}
	}
	return names, nil
}

// parseLines handles line-oriented output (module path listings): one
// package per line, first whitespace-delimited token is the name. Known
// non-package log lines and a configured number of leading rows (tool
// banner, the root module itself) are dropped. Noise is filtered before
// the leading rows are counted, so a stray log line at the top cannot
// shield the root-module row from the skip.
func parseLines(ops *language.PackageOps, stdout string) []string {
	skipped := 0
	var names []string
	for _, line := range strings.Split(stdout, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || isNoise(ops, line) {
			continue
		}
		if skipped < ops.SkipLines {
			skipped++
			continue
		}
		names = append(names, strings.Fields(line)[0])
	}
	return names
}

func isNoise(ops *language.PackageOps, line string) bool {
	for _, prefix := range ops.NoisePrefixes {
		if strings.HasPrefix(line, prefix) {
			return true
		}
	}
	return false
}
