package model

import "strings"

// ExternalFileExtensions are file extensions that are allowed to appear as
// the target of a relation without a matching Entity ever existing in the
// index — they represent references to plain data/asset files, not code
// modules, so they never count as orphans.
var ExternalFileExtensions = map[string]struct{}{
	"json": {}, "csv": {}, "yaml": {}, "yml": {}, "xml": {}, "txt": {},
	"log": {}, "md": {}, "pdf": {}, "xlsx": {}, "xls": {}, "png": {},
	"jpg": {}, "jpeg": {}, "gif": {}, "svg": {}, "ini": {}, "conf": {},
	"cfg": {}, "toml": {}, "pickle": {}, "pkl": {}, "db": {}, "sqlite": {},
	"html": {}, "zip": {}, "tar": {}, "gz": {},
}

// IsExternalFileReference reports whether name looks like a path to a
// recognized non-code data/asset file (by extension), exempting it from
// orphan-relation cleanup.
func IsExternalFileReference(name string) bool {
	idx := strings.LastIndexByte(name, '.')
	if idx < 0 || idx == len(name)-1 {
		return false
	}
	ext := strings.ToLower(name[idx+1:])
	_, ok := ExternalFileExtensions[ext]
	return ok
}

// ResolveModuleName reports whether dottedName (as it appears on an imports
// relation, e.g. "..pkg.mod", "pkg.sub.mod", or "requests") resolves against
// one of the known entity names already present in the index, following the
// three resolution rules:
//
//   - relative dotted name (leading "."s): strip the leading dots, replace
//     remaining dots with path separators, and look for a known name ending
//     in "/<path>.py" (or matching exactly, for same-directory imports).
//   - absolute dotted name: every dot-separated component must appear,
//     in order, within the candidate name, with the last component also
//     appearing as a trailing path token.
//   - bare package name (no dots): match a known name containing
//     "/<name>/" or ending in "/<name>".
func ResolveModuleName(dottedName string, knownNames map[string]struct{}) bool {
	if dottedName == "" {
		return false
	}
	if strings.HasPrefix(dottedName, ".") {
		return resolveRelative(dottedName, knownNames)
	}
	if strings.Contains(dottedName, ".") {
		return resolveAbsolute(dottedName, knownNames)
	}
	return resolveBare(dottedName, knownNames)
}

func resolveRelative(dottedName string, knownNames map[string]struct{}) bool {
	trimmed := strings.TrimLeft(dottedName, ".")
	if trimmed == "" {
		return false
	}
	path := strings.ReplaceAll(trimmed, ".", "/")
	suffix := "/" + path + ".py"
	for name := range knownNames {
		if strings.HasSuffix(name, suffix) || name == path+".py" {
			return true
		}
	}
	return false
}

func resolveAbsolute(dottedName string, knownNames map[string]struct{}) bool {
	parts := strings.Split(dottedName, ".")
	if len(parts) == 0 {
		return false
	}
	last := parts[len(parts)-1]
	for name := range knownNames {
		if !allComponentsPresent(name, parts) {
			continue
		}
		if hasTerminalToken(name, last) {
			return true
		}
	}
	return false
}

func allComponentsPresent(name string, parts []string) bool {
	cursor := 0
	for _, part := range parts {
		idx := strings.Index(name[cursor:], part)
		if idx < 0 {
			return false
		}
		cursor += idx + len(part)
	}
	return true
}

func hasTerminalToken(name, token string) bool {
	if strings.HasSuffix(name, "/"+token) || name == token {
		return true
	}
	return strings.HasSuffix(name, token)
}

func resolveBare(name string, knownNames map[string]struct{}) bool {
	contains := "/" + name + "/"
	for candidate := range knownNames {
		if strings.Contains(candidate, contains) || strings.HasSuffix(candidate, "/"+name) || candidate == name {
			return true
		}
	}
	return false
}
