// Package filter implements the file-filter utility (C9): the single
// should_process predicate the scanner and watcher both consult before a
// file is handed to the parser registry.
package filter

import (
	"os"
	"path/filepath"
	"strings"
)

// ShouldProcess reports whether path should be parsed and indexed.
//
// The file must: resolve within projectRoot; have a base name matching at
// least one include glob; have its project-relative path match none of the
// exclude globs (directory patterns ending in "/" match at any nested
// depth, not just as a prefix); and, if it currently exists on disk, be no
// larger than maxSize bytes.
func ShouldProcess(path, projectRoot string, includes, excludes []string, maxSize int64) (bool, error) {
	absRoot, err := filepath.Abs(projectRoot)
	if err != nil {
		return false, err
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return false, err
	}
	rel, err := filepath.Rel(absRoot, absPath)
	if err != nil || strings.HasPrefix(rel, "..") {
		return false, nil
	}

	base := filepath.Base(absPath)
	if !matchesAny(base, rel, includes) {
		return false, nil
	}
	if matchesAnyExclude(rel, excludes) {
		return false, nil
	}

	info, statErr := os.Stat(absPath)
	if statErr == nil && info.Size() > maxSize {
		return false, nil
	}
	return true, nil
}

func matchesAny(base, rel string, patterns []string) bool {
	if len(patterns) == 0 {
		return true
	}
	relSlash := filepath.ToSlash(rel)
	for _, pattern := range patterns {
		if matched, _ := filepath.Match(pattern, base); matched {
			return true
		}
		if matched, _ := filepath.Match(pattern, relSlash); matched {
			return true
		}
	}
	return false
}

func matchesAnyExclude(rel string, patterns []string) bool {
	relSlash := filepath.ToSlash(rel)
	parts := strings.Split(relSlash, "/")
	for _, pattern := range patterns {
		if isDirPattern(pattern) {
			dir := strings.TrimSuffix(pattern, "/")
			for _, part := range parts {
				if part == dir {
					return true
				}
			}
			if matched, _ := filepath.Match(dir, relSlash); matched {
				return true
			}
			continue
		}
		if matched, _ := filepath.Match(pattern, relSlash); matched {
			return true
		}
		if matched, _ := filepath.Match(pattern, filepath.Base(relSlash)); matched {
			return true
		}
	}
	return false
}

func isDirPattern(pattern string) bool {
	return strings.HasSuffix(pattern, "/")
}
