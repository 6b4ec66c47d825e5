// Package afero holds the filesystem helpers shared by the planner. All file
// access goes through spf13/afero so tests can run against MemMapFs.
package afero

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/otiai10/copy"
	"github.com/spf13/afero"

	"github.com/sgl-project/ome-mtl/pkg/logging"
)

// AtomicFileUpdate writes data to destDir/destFile through a temp file and a
// rename. When the file already holds data only its mode is refreshed.
func AtomicFileUpdate(
	fs afero.Fs,
	destDir string,
	destFile string,
	data []byte,
	fileMode os.FileMode,
	log logging.Interface,
) error {
	destPath := filepath.Join(destDir, destFile)
	oldContents, err := afero.ReadFile(fs, destPath)
	if err == nil && bytes.Equal(oldContents, data) {
		return fs.Chmod(destPath, fileMode)
	}

	log.WithField("destPath", destPath).Debug("Writing file")

	if isRenameBugged(fs) {
		if err := afero.WriteFile(fs, destPath, data, fileMode); err != nil {
			return fmt.Errorf("error writing %s: %w", destPath, err)
		}
		return nil
	}

	tmp, err := afero.TempFile(fs, destDir, "."+destFile+"~")
	if err != nil {
		return fmt.Errorf("creating tmp file for atomic write: %w", err)
	}
	defer func() { _ = tmp.Close() }()
	defer func() { _ = fs.Remove(tmp.Name()) }()

	if err := afero.WriteFile(fs, tmp.Name(), data, fileMode); err != nil {
		return fmt.Errorf("error writing into a temp file: %w", err)
	}
	return fs.Rename(tmp.Name(), destPath)
}

// MemMapFs renames leave stale entries behind; write in place instead.
func isRenameBugged(fs afero.Fs) bool {
	_, ok := fs.(*afero.MemMapFs)
	return ok
}

// Exists reports whether path exists.
func Exists(fs afero.Fs, path string) (bool, error) {
	return afero.Exists(fs, path)
}

// IsDir reports whether path exists and is a directory.
func IsDir(fs afero.Fs, path string) bool {
	ok, err := afero.IsDir(fs, path)
	return err == nil && ok
}

// IsOsFs reports whether fs is backed by the real filesystem, which is a
// precondition for handing paths to libraries that bypass afero.
func IsOsFs(fs afero.Fs) bool {
	_, ok := fs.(*afero.OsFs)
	return ok
}

// CopyTree copies the file or directory at src to dst inside fs.
func CopyTree(fs afero.Fs, src, dst string) error {
	if IsOsFs(fs) {
		return copy.Copy(src, dst)
	}

	info, err := fs.Stat(src)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return copyFile(fs, src, dst, info.Mode())
	}

	return afero.Walk(fs, src, func(path string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if fi.IsDir() {
			return fs.MkdirAll(target, 0o755)
		}
		return copyFile(fs, path, target, fi.Mode())
	})
}

func copyFile(fs afero.Fs, src, dst string, mode os.FileMode) error {
	data, err := afero.ReadFile(fs, src)
	if err != nil {
		return err
	}
	if err := fs.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	return afero.WriteFile(fs, dst, data, mode.Perm())
}
