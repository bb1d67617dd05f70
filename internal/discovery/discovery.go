// Package discovery finds input files below a root using include and exclude
// patterns for file names and folders.
package discovery

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar"
)

// ErrNoFiles is returned when nothing matched.
var ErrNoFiles = errors.New("no matching files found")

// Filter holds the discovery patterns. Patterns are matched case-insensitively
// against both the base name and the absolute path. Empty include lists match
// everything.
type Filter struct {
	IncludeFiles   []string
	ExcludeFiles   []string
	IncludeFolders []string
	ExcludeFolders []string
}

// normalize lower-cases patterns and drops empty ones.
func (f Filter) normalize() Filter {
	return Filter{
		IncludeFiles:   normalizePatterns(f.IncludeFiles),
		ExcludeFiles:   normalizePatterns(f.ExcludeFiles),
		IncludeFolders: normalizePatterns(f.IncludeFolders),
		ExcludeFolders: normalizePatterns(f.ExcludeFolders),
	}
}

func normalizePatterns(patterns []string) []string {
	out := make([]string, 0, len(patterns))
	for _, p := range patterns {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			out = append(out, filepath.ToSlash(p))
		}
	}
	return out
}

// SplitPatterns splits a comma-separated pattern list.
func SplitPatterns(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return normalizePatterns(strings.Split(s, ","))
}

// matchAny reports whether the base name or the absolute path of p matches
// one of patterns.
func matchAny(p string, patterns []string) bool {
	full := strings.ToLower(filepath.ToSlash(p))
	base := strings.ToLower(filepath.Base(p))
	for _, pat := range patterns {
		if ok, _ := doublestar.Match(pat, base); ok {
			return true
		}
		if ok, _ := doublestar.Match(pat, full); ok {
			return true
		}
	}
	return false
}

func (f Filter) folderAllowed(dir string) bool {
	if len(f.ExcludeFolders) > 0 && matchAny(dir, f.ExcludeFolders) {
		return false
	}
	if len(f.IncludeFolders) > 0 && !matchAny(dir, f.IncludeFolders) {
		return false
	}
	return true
}

func (f Filter) fileAllowed(path string) bool {
	if len(f.ExcludeFiles) > 0 && matchAny(path, f.ExcludeFiles) {
		return false
	}
	if len(f.IncludeFiles) > 0 && !matchAny(path, f.IncludeFiles) {
		return false
	}
	return true
}

// Find returns the absolute paths of matching files below root, naturally
// sorted. root may be a single file. A root that does not exist but whose
// parent does is treated as a name prefix inside the parent, so
// "/media/clip" finds "/media/clip01.mov". Finding nothing is ErrNoFiles.
func Find(root string, filter Filter) ([]string, error) {
	f := filter.normalize()

	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", root, err)
	}

	info, err := os.Stat(abs)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("stat %s: %w", root, err)
		}
		parent := filepath.Dir(abs)
		if _, perr := os.Stat(parent); perr != nil {
			return nil, fmt.Errorf("path not found: %s", root)
		}
		prefix := strings.ToLower(filepath.Base(abs)) + "*"
		if !contains(f.IncludeFiles, prefix) {
			f.IncludeFiles = append(f.IncludeFiles, prefix)
		}
		abs = parent
		if info, err = os.Stat(abs); err != nil {
			return nil, fmt.Errorf("stat %s: %w", parent, err)
		}
	}

	if !info.IsDir() {
		if f.folderAllowed(filepath.Dir(abs)) && f.fileAllowed(abs) {
			return []string{abs}, nil
		}
		return nil, fmt.Errorf("%w: %s", ErrNoFiles, root)
	}

	var files []string
	err = filepath.WalkDir(abs, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			if path != abs && len(f.ExcludeFolders) > 0 && matchAny(path, f.ExcludeFolders) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if !f.folderAllowed(filepath.Dir(path)) || !f.fileAllowed(path) {
			return nil
		}
		files = append(files, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", abs, err)
	}

	if len(files) == 0 {
		return nil, fmt.Errorf("%w below %s", ErrNoFiles, abs)
	}
	SortNatural(files)
	return files, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// SortNatural sorts strings case-insensitively with digit runs compared by
// numeric value, so "clip2" sorts before "clip10".
func SortNatural(s []string) {
	sort.SliceStable(s, func(i, j int) bool { return naturalLess(s[i], s[j]) })
}

func naturalLess(a, b string) bool {
	ka, kb := naturalKey(a), naturalKey(b)
	for i := 0; i < len(ka) && i < len(kb); i++ {
		x, y := ka[i], kb[i]
		if x.isNum && y.isNum {
			if c := compareDigits(x.text, y.text); c != 0 {
				return c < 0
			}
			continue
		}
		if x.isNum != y.isNum {
			// Numbers order before text, like the digit runs they are.
			return x.isNum
		}
		if x.text != y.text {
			return x.text < y.text
		}
	}
	return len(ka) < len(kb)
}

type chunk struct {
	text  string
	isNum bool
}

func naturalKey(s string) []chunk {
	s = strings.ToLower(s)
	var chunks []chunk
	for len(s) > 0 {
		num := isDigit(s[0])
		i := 1
		for i < len(s) && isDigit(s[i]) == num {
			i++
		}
		chunks = append(chunks, chunk{text: s[:i], isNum: num})
		s = s[i:]
	}
	return chunks
}

func isDigit(b byte) bool {
	return b >= '0' && b <= '9'
}

// compareDigits compares two digit strings by value without overflow.
func compareDigits(a, b string) int {
	a = strings.TrimLeft(a, "0")
	b = strings.TrimLeft(b, "0")
	if len(a) != len(b) {
		if len(a) < len(b) {
			return -1
		}
		return 1
	}
	return strings.Compare(a, b)
}
