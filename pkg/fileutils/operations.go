package fileutils

import (
	"io"
	"os"

	"github.com/pkg/errors"
)

// CopyFile copies a file from source to destination, preserving permissions.
// The destination is truncated if it already exists.
func CopyFile(src, dst string) error {
	sourceFile, err := os.Open(src)
	if err != nil {
		return errors.WithStack(err)
	}
	defer sourceFile.Close()

	destFile, err := os.Create(dst)
	if err != nil {
		return errors.WithStack(err)
	}
	defer destFile.Close()

	_, err = io.Copy(destFile, sourceFile)
	if err != nil {
		return errors.WithStack(err)
	}

	// Copy file permissions
	sourceInfo, err := sourceFile.Stat()
	if err != nil {
		return errors.WithStack(err)
	}

	err = destFile.Chmod(sourceInfo.Mode())
	if err != nil {
		return errors.WithStack(err)
	}

	return nil
}

// BackupFile copies path to path+suffix, unconditionally overwriting any
// previous backup. A missing source is a no-op so callers can back up files
// that may not exist yet.
func BackupFile(path, suffix string) error {
	if !Exists(path) {
		return nil
	}
	return CopyFile(path, path+suffix)
}

// Exists reports whether the given path exists.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// ListFiles returns the names of the regular files in dir. os.ReadDir sorts
// by filename, which is the display and packing order for publication
// images.
func ListFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		names = append(names, entry.Name())
	}

	return names, nil
}

// DirIsEmpty reports whether dir exists and contains no entries. A crash
// between creating a publication directory and decoding its attachments
// leaves exactly this state behind.
func DirIsEmpty(dir string) (bool, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false, errors.WithStack(err)
	}
	return len(entries) == 0, nil
}
