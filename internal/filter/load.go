package filter

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/afero"
	"github.com/tidwall/jsonc"
)

// LoadPatterns reads a JSONC array of exclude patterns, e.g.
//
//	[
//	  // build output
//	  "*/node_modules",
//	  "*.log",
//	]
//
// Blank entries are dropped.
func LoadPatterns(fsys afero.Fs, path string) ([]string, error) {
	data, err := afero.ReadFile(fsys, path)
	if err != nil {
		return nil, fmt.Errorf("reading patterns file %q: %w", path, err)
	}

	var raw []string
	if err := json.Unmarshal(jsonc.ToJSONInPlace(data), &raw); err != nil {
		return nil, fmt.Errorf("parsing patterns file %q: %w", path, err)
	}

	patterns := make([]string, 0, len(raw))

	for _, p := range raw {
		if strings.TrimSpace(p) == "" {
			continue
		}

		patterns = append(patterns, p)
	}

	return patterns, nil
}
