package fsutil

import (
	"fmt"
	"os"
)

// DirMode is applied to every output directory so that jobs running under a
// different account can write into it.
const DirMode os.FileMode = 0777

// EnsureDir creates path and its parents if needed, then sets DirMode on it.
func EnsureDir(path string) error {
	if err := os.MkdirAll(path, DirMode); err != nil {
		return fmt.Errorf("creating directory %s: %w", path, err)
	}
	// MkdirAll is subject to umask
	if err := os.Chmod(path, DirMode); err != nil {
		return fmt.Errorf("setting permissions on %s: %w", path, err)
	}
	return nil
}

// Exists reports whether something exists at path.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// IsDir reports whether path is an existing directory.
func IsDir(path string) bool {
	st, err := os.Stat(path)
	return err == nil && st.IsDir()
}

// Touch creates an empty file at path, or leaves an existing file untouched.
func Touch(path string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0666)
	if err != nil {
		return err
	}
	return f.Close()
}

// WriteFile writes data to path and sets perm on it regardless of umask.
func WriteFile(path string, data []byte, perm os.FileMode) error {
	if err := os.WriteFile(path, data, perm); err != nil {
		return err
	}
	return os.Chmod(path, perm)
}
