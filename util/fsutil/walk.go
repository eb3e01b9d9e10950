package fsutil

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// File describes a regular file found by ListFiles or Glob.
type File struct {
	// The path relative to the directory or pattern root.
	Rel string
	// The absolute path of the file on the host.
	Abs string
	// Size in bytes.
	Size int64
	// LastModified time
	LastModified time.Time
}

// ListFiles returns the regular files directly inside dir, sorted by name.
// Subdirectories are not descended into.
func ListFiles(dir string) ([]File, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []File
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			// removed between ReadDir and Info
			continue
		}
		abs, err := filepath.Abs(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		files = append(files, File{
			Rel:          e.Name(),
			Abs:          abs,
			Size:         info.Size(),
			LastModified: info.ModTime(),
		})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Rel < files[j].Rel })
	return files, nil
}

// WalkDirs walks the tree rooted at root in lexical order, calling fn for
// every directory, root included. rel is the path of the directory relative
// to root, with a leading separator ("" for root itself). Unreadable
// subdirectories are skipped.
func WalkDirs(root string, fn func(path, rel string) error) error {
	if dinfo, err := os.Stat(root); err != nil || !dinfo.IsDir() {
		return fmt.Errorf("%s does not exist or is not a directory", root)
	}
	root = filepath.Clean(root)

	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p != root && d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		return fn(p, p[len(root):])
	})
}

// FileSize returns the file size in bytes, or return 0 if there's an error calling os.Stat().
func FileSize(path string) int64 {
	st, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return st.Size()
}
