package actions

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/signalpilot/signalpilot/internal/action"
)

// LoadMetadataDir reads metadata overrides from every .yaml or .yml file
// in dir. Each file maps action names to metadata:
//
//	PlanningAction:
//	  description: Plans the analysis of the recording.
//	  examples: PlanningAction(query="plot the speed")
//
// A missing directory yields no overrides. An action overridden by two
// files is an error.
func LoadMetadataDir(dir string) (map[string]action.Metadata, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read metadata dir: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	out := make(map[string]action.Metadata)
	from := make(map[string]string)
	for _, e := range entries {
		ext := filepath.Ext(e.Name())
		if e.IsDir() || ext != ".yaml" && ext != ".yml" {
			continue
		}
		path := filepath.Join(dir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		var file map[string]action.Metadata
		if err := yaml.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		for name, m := range file {
			if prev, dup := from[name]; dup {
				return nil, fmt.Errorf("%s: metadata for %s already set in %s", path, name, prev)
			}
			from[name] = path
			out[name] = m
		}
	}
	return out, nil
}
