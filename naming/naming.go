// Package naming implements the filename conventions for uploaded and
// processed images: intake normalization, case-insensitive uniqueness with
// "(n)" counter suffixes, and the atomic ".dw.png" processed-image suffix.
package naming

import (
	"fmt"
	"path"
	"strconv"
	"strings"
)

const dwSuffix = ".dw.png"

var imageExts = map[string]struct{}{
	".png":  {},
	".jpg":  {},
	".jpeg": {},
}

// IsDwName reports whether name carries the processed-image suffix.
func IsDwName(name string) bool {
	return strings.HasSuffix(strings.ToLower(name), dwSuffix)
}

// Ext returns the extension of name, treating the ".dw.png" double
// extension as a single atomic suffix.
func Ext(name string) string {
	if IsDwName(name) {
		return name[len(name)-len(dwSuffix):]
	}
	return path.Ext(name)
}

// UploadName normalizes a client-supplied filename for intake. Directory
// components (either separator) are stripped; blank names fall back to
// "image".
func UploadName(original string) string {
	name := strings.ReplaceAll(original, "\\", "/")
	name = strings.TrimSpace(path.Base(name))
	if name == "" || name == "." || name == "/" {
		return "image"
	}
	return name
}

// DwName converts name to the processed-image convention by swapping its
// extension for ".dw.png". Names already carrying the suffix are returned
// unchanged.
func DwName(name string) string {
	if IsDwName(name) {
		return name
	}
	ext := path.Ext(name)
	return name[:len(name)-len(ext)] + dwSuffix
}

// Rebase applies a proposed rename to current while preserving current's
// semantic extension: a recognized image extension typed on the proposed
// name is dropped, anything else stays part of the stem.
func Rebase(current, proposed string) string {
	stem := proposed
	if IsDwName(proposed) {
		stem = proposed[:len(proposed)-len(dwSuffix)]
	} else if ext := path.Ext(proposed); ext != "" {
		if _, ok := imageExts[strings.ToLower(ext)]; ok {
			stem = proposed[:len(proposed)-len(ext)]
		}
	}
	return stem + Ext(current)
}

// EnsureUnique returns candidate when no entry of used matches it
// case-insensitively, otherwise the first free "base(n)ext" variant. A
// counter already present on the candidate resumes at max(2, n+1). The
// returned name is registered in used under its lowercase form.
func EnsureUnique(candidate string, used map[string]struct{}) string {
	key := strings.ToLower(candidate)
	if _, taken := used[key]; !taken {
		used[key] = struct{}{}
		return candidate
	}

	ext := Ext(candidate)
	stem := candidate[:len(candidate)-len(ext)]
	base, n, hasCounter := splitCounter(stem)
	start := 2
	if hasCounter && n+1 > start {
		start = n + 1
	}
	for i := start; ; i++ {
		name := fmt.Sprintf("%s(%d)%s", base, i, ext)
		key := strings.ToLower(name)
		if _, taken := used[key]; !taken {
			used[key] = struct{}{}
			return name
		}
	}
}

// splitCounter parses a trailing "(n)" suffix off a filename stem.
func splitCounter(stem string) (base string, n int, ok bool) {
	if !strings.HasSuffix(stem, ")") {
		return stem, 0, false
	}
	open := strings.LastIndex(stem, "(")
	if open < 0 {
		return stem, 0, false
	}
	digits := stem[open+1 : len(stem)-1]
	if digits == "" {
		return stem, 0, false
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return stem, 0, false
		}
	}
	v, err := strconv.Atoi(digits)
	if err != nil {
		return stem, 0, false
	}
	return stem[:open], v, true
}
