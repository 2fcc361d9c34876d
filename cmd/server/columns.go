package main

import (
	"fmt"
	"strings"

	"github.com/unclebandit/bulk-dispatcher/internal/model"
)

// parseColumns turns "nome,valor" into a mapping whose parameter names are the
// column names. Every column must exist in headers.
func parseColumns(raw string, headers []string) (model.ColumnMapping, error) {
	known := make(map[string]bool, len(headers))
	for _, h := range headers {
		known[h] = true
	}

	var mapping model.ColumnMapping
	seen := map[string]bool{}
	for _, c := range strings.Split(raw, ",") {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		if !known[c] {
			return nil, fmt.Errorf("column %q not found in csv header", c)
		}
		if seen[c] {
			return nil, fmt.Errorf("column %q listed twice", c)
		}
		seen[c] = true
		mapping = append(mapping, model.ColumnPair{Column: c, Variable: c})
	}
	if len(mapping) == 0 {
		return nil, fmt.Errorf("no columns given")
	}
	return mapping, nil
}
