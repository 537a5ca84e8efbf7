package composer

import (
	"os"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/facette/natsort"

	"github.com/ajitpratap0/stageflow/pkg/errors"
)

// DefaultFilePattern selects staged files when an object lists none.
const DefaultFilePattern = "*.csv"

// MatchFiles returns the regular files in dir that match any pattern, in
// natural order and without duplicates. Patterns are relative to dir and
// may use ** and {a,b} alternatives.
func MatchFiles(dir string, patterns []string) ([]string, error) {
	if len(patterns) == 0 {
		patterns = []string{DefaultFilePattern}
	}

	fsys := os.DirFS(dir)
	seen := make(map[string]struct{})
	var out []string
	for _, pattern := range patterns {
		if !doublestar.ValidatePattern(pattern) {
			return nil, errors.Newf(errors.ErrorTypeConfig, "invalid file name pattern %q", pattern).
				WithDetail("key", "data_objects_spec.object_spec.file_names")
		}
		matches, err := doublestar.Glob(fsys, pattern, doublestar.WithFilesOnly())
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to list files").WithDetail("dir", dir)
		}
		for _, m := range matches {
			if _, dup := seen[m]; dup {
				continue
			}
			seen[m] = struct{}{}
			out = append(out, m)
		}
	}

	natsort.Sort(out)
	for i, m := range out {
		out[i] = filepath.Join(dir, filepath.FromSlash(m))
	}
	return out, nil
}

// MatchNames filters slash separated names, such as object storage keys
// relative to a prefix, with the pattern rules of MatchFiles. An empty
// pattern list keeps every name.
func MatchNames(names []string, patterns []string) ([]string, error) {
	for _, pattern := range patterns {
		if !doublestar.ValidatePattern(pattern) {
			return nil, errors.Newf(errors.ErrorTypeConfig, "invalid file name pattern %q", pattern).
				WithDetail("key", "data_objects_spec.object_spec.file_names")
		}
	}

	out := make([]string, 0, len(names))
	seen := make(map[string]struct{}, len(names))
	for _, name := range names {
		if _, dup := seen[name]; dup || name == "" {
			continue
		}
		keep := len(patterns) == 0
		for _, pattern := range patterns {
			if doublestar.MatchUnvalidated(pattern, name) {
				keep = true
				break
			}
		}
		if keep {
			seen[name] = struct{}{}
			out = append(out, name)
		}
	}
	natsort.Sort(out)
	return out, nil
}

// HasFiles reports whether dir exists and holds at least one regular file.
func HasFiles(dir string) (bool, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	for _, e := range entries {
		if e.Type().IsRegular() {
			return true, nil
		}
	}
	return false, nil
}

// ResetDir removes dir with everything inside it and recreates it empty.
func ResetDir(dir string) error {
	if err := os.RemoveAll(dir); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to clean directory").WithDetail("dir", dir)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to create directory").WithDetail("dir", dir)
	}
	return nil
}
