package rule

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/sreerevanth/behaviorlens/pkg/infra/logger"
)

// LoadDir reads every *.yaml / *.yml file in dir and inserts the rules
// into store. Each file holds one rule. A file that fails to parse or
// compile aborts the load so a typo cannot silently disable a rule.
//
// A missing directory is not an error; the engine then starts with
// whatever rules arrive over the API.
func LoadDir(ctx context.Context, dir string, store Store) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Warn(ctx, "rules directory does not exist, starting empty", "dir", dir)
			return 0, nil
		}
		return 0, fmt.Errorf("read rules directory %s: %w", dir, err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if ext == ".yaml" || ext == ".yml" {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)

	loaded := 0
	for _, name := range files {
		path := filepath.Join(dir, name)
		r, err := LoadFile(path)
		if err != nil {
			return loaded, err
		}
		if err := store.Create(ctx, r); err != nil {
			return loaded, fmt.Errorf("load rule from %s: %w", path, err)
		}
		logger.Info(ctx, "loaded rule",
			"rule", r.Name,
			"event_type", r.EventType,
			"enabled", r.Enabled,
			"file", name)
		loaded++
	}

	return loaded, nil
}

// LoadFile parses a single rule file. The rule is compiled so callers
// get parse errors here, not at evaluation time.
func LoadFile(path string) (*Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rule file %s: %w", path, err)
	}

	var r Rule
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parse rule file %s: %w", path, err)
	}

	if err := r.Compile(); err != nil {
		return nil, fmt.Errorf("rule file %s: %w", path, err)
	}
	return &r, nil
}
