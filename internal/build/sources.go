package build

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ExpandSources resolves source patterns relative to baseDir into a sorted
// list of distinct file paths. Directories are skipped. A literal path
// that does not exist is an ErrSourceNotFound error; a glob may match
// nothing.
func ExpandSources(baseDir string, patterns []string) ([]string, error) {
	set := make(map[string]struct{})
	for _, pattern := range patterns {
		matches, err := expandPattern(baseDir, pattern)
		if err != nil {
			return nil, err
		}
		for _, m := range matches {
			set[m] = struct{}{}
		}
	}

	paths := make([]string, 0, len(set))
	for p := range set {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths, nil
}

func expandPattern(baseDir, pattern string) ([]string, error) {
	full := resolvePath(baseDir, pattern)

	if !hasGlobChar(pattern) {
		info, err := os.Stat(full)
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrSourceNotFound, pattern)
		}
		if err != nil {
			return nil, fmt.Errorf("stat %q: %w", full, err)
		}
		if info.IsDir() {
			return nil, nil
		}
		return []string{filepath.ToSlash(full)}, nil
	}

	matches, err := filepath.Glob(full)
	if err != nil {
		return nil, fmt.Errorf("invalid glob pattern %q: %w", pattern, err)
	}
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		info, err := os.Stat(m)
		if err != nil {
			return nil, fmt.Errorf("stat %q: %w", m, err)
		}
		if info.IsDir() {
			continue
		}
		out = append(out, filepath.ToSlash(m))
	}
	return out, nil
}

func resolvePath(baseDir, p string) string {
	if filepath.IsAbs(p) || baseDir == "" {
		return filepath.Clean(p)
	}
	return filepath.Join(baseDir, p)
}

func hasGlobChar(pattern string) bool {
	return strings.ContainsAny(pattern, "*?[")
}
