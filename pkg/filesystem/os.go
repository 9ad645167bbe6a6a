package filesystem

import (
	"io/fs"
	"os"
	"path/filepath"

	"github.com/arthur-debert/elevlink/pkg/errors"
)

// osFS implements FS using the OS filesystem
type osFS struct{}

// NewOS creates a new OS filesystem implementation
func NewOS() FS {
	return &osFS{}
}

func (o *osFS) Lstat(name string) (fs.FileInfo, error) {
	return os.Lstat(name)
}

func (o *osFS) MkdirAll(path string, perm fs.FileMode) error {
	return os.MkdirAll(path, perm)
}

func (o *osFS) Symlink(oldname, newname string) error {
	return os.Symlink(oldname, newname)
}

func (o *osFS) Readlink(name string) (string, error) {
	return os.Readlink(name)
}

func (o *osFS) Remove(name string) error {
	return os.Remove(name)
}

// IsSymlink reports whether name exists and is a symlink
func IsSymlink(fsys FS, name string) bool {
	info, err := fsys.Lstat(name)
	if err != nil {
		return false
	}
	return info.Mode()&fs.ModeSymlink != 0
}

// ReplaceSymlink points linkPath at target, creating parent directories
// and replacing a symlink already at linkPath. Any other existing entry is
// left alone and reported as an error.
func ReplaceSymlink(fsys FS, target, linkPath string) error {
	if err := fsys.MkdirAll(filepath.Dir(linkPath), 0755); err != nil {
		return errors.Wrapf(err, errors.ErrSymlinkCreate, "failed to create parent of %s", linkPath)
	}

	if info, err := fsys.Lstat(linkPath); err == nil {
		if info.Mode()&fs.ModeSymlink == 0 {
			return errors.Newf(errors.ErrSymlinkCreate, "%s exists and is not a symlink", linkPath).
				WithDetail("path", linkPath)
		}
		if err := fsys.Remove(linkPath); err != nil {
			return errors.Wrapf(err, errors.ErrSymlinkCreate, "failed to replace link %s", linkPath)
		}
	}

	if err := fsys.Symlink(target, linkPath); err != nil {
		return errors.Wrapf(err, errors.ErrSymlinkCreate, "failed to link %s -> %s", linkPath, target)
	}
	return nil
}

// RemoveSymlink removes linkPath if it is a symlink. A missing path is not
// an error; a path that is not a symlink is.
func RemoveSymlink(fsys FS, linkPath string) error {
	info, err := fsys.Lstat(linkPath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return errors.Wrapf(err, errors.ErrSymlinkRemove, "failed to stat %s", linkPath)
	}
	if info.Mode()&fs.ModeSymlink == 0 {
		return errors.Newf(errors.ErrSymlinkRemove, "%s is not a symlink", linkPath).
			WithDetail("path", linkPath)
	}
	if err := fsys.Remove(linkPath); err != nil {
		return errors.Wrapf(err, errors.ErrSymlinkRemove, "failed to remove link %s", linkPath)
	}
	return nil
}
