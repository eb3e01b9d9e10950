package fsutil

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/mattn/go-zglob"
)

// Glob returns the regular files matching pattern, sorted by path, or nil
// if there is no matching file. Patterns may use "**" to match across
// directories. This method uses the implementation in github.com/mattn/go-zglob.
func Glob(pattern string) ([]File, error) {
	matches, err := zglob.Glob(pattern)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	sort.Strings(matches)

	root := globRoot(pattern)
	var files []File
	for _, path := range matches {
		finfo, err := os.Stat(path)
		if err != nil || !finfo.Mode().IsRegular() {
			continue
		}
		absPath, err := filepath.Abs(path)
		if err != nil {
			return nil, err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			rel = path
		}
		files = append(files, File{
			Rel:          rel,
			Abs:          absPath,
			Size:         finfo.Size(),
			LastModified: finfo.ModTime(),
		})
	}
	return files, nil
}

// globRoot returns the longest leading part of pattern without wildcards.
func globRoot(pattern string) string {
	i := strings.IndexAny(pattern, "*?[{")
	if i < 0 {
		return filepath.Dir(pattern)
	}
	return filepath.Dir(pattern[:i+1])
}
