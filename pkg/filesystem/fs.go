package filesystem

import (
	"io/fs"
)

// FS is the subset of filesystem operations used for link management
type FS interface {
	// Lstat does not follow a final symlink
	Lstat(name string) (fs.FileInfo, error)
	MkdirAll(path string, perm fs.FileMode) error

	// Symlink operations
	Symlink(oldname, newname string) error
	Readlink(name string) (string, error)

	Remove(name string) error
}
