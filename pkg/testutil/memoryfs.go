package testutil

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryFS implements filesystem.FS with in-memory storage. Paths are
// cleaned but otherwise taken literally; there is no working directory.
type MemoryFS struct {
	mu    sync.RWMutex
	nodes map[string]*fileNode

	// Error injection
	errorPaths map[string]error
}

type fileNode struct {
	mode     os.FileMode
	modTime  time.Time
	content  []byte
	linkDest string
}

func (n *fileNode) isDir() bool  { return n.mode.IsDir() }
func (n *fileNode) isLink() bool { return n.mode&os.ModeSymlink != 0 }

// NewMemoryFS creates an empty filesystem holding only "/"
func NewMemoryFS() *MemoryFS {
	return &MemoryFS{
		nodes: map[string]*fileNode{
			"/": {mode: 0755 | os.ModeDir, modTime: time.Now()},
		},
		errorPaths: make(map[string]error),
	}
}

// SetError makes every operation on path fail with err
func (m *MemoryFS) SetError(path string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorPaths[filepath.Clean(path)] = err
}

// WriteFile creates a regular file, including missing parents
func (m *MemoryFS) WriteFile(name string, data []byte, perm fs.FileMode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	name = filepath.Clean(name)
	if err := m.mkdirAll(filepath.Dir(name), 0755); err != nil {
		return err
	}
	m.nodes[name] = &fileNode{mode: perm, modTime: time.Now(), content: append([]byte(nil), data...)}
	return nil
}

func (m *MemoryFS) Lstat(name string) (fs.FileInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	node, err := m.getNode("lstat", name)
	if err != nil {
		return nil, err
	}
	return &fileInfo{node: node, name: filepath.Base(name)}, nil
}

func (m *MemoryFS) MkdirAll(path string, perm fs.FileMode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mkdirAll(filepath.Clean(path), perm)
}

func (m *MemoryFS) mkdirAll(path string, perm fs.FileMode) error {
	if err, ok := m.errorPaths[path]; ok {
		return err
	}
	if node, ok := m.nodes[path]; ok {
		if !node.isDir() {
			return &fs.PathError{Op: "mkdir", Path: path, Err: errors.New("not a directory")}
		}
		return nil
	}
	if err := m.mkdirAll(filepath.Dir(path), perm); err != nil {
		return err
	}
	m.nodes[path] = &fileNode{mode: perm | os.ModeDir, modTime: time.Now()}
	return nil
}

// Symlink creates a symbolic link. The parent directory must exist.
func (m *MemoryFS) Symlink(target, link string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	link = filepath.Clean(link)

	if err, ok := m.errorPaths[link]; ok {
		return err
	}
	if _, ok := m.nodes[link]; ok {
		return &fs.PathError{Op: "symlink", Path: link, Err: os.ErrExist}
	}
	parent, ok := m.nodes[filepath.Dir(link)]
	if !ok || !parent.isDir() {
		return &fs.PathError{Op: "symlink", Path: link, Err: fs.ErrNotExist}
	}
	m.nodes[link] = &fileNode{mode: 0777 | os.ModeSymlink, modTime: time.Now(), linkDest: target}
	return nil
}

// Readlink returns the destination of a symbolic link
func (m *MemoryFS) Readlink(name string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	node, err := m.getNode("readlink", name)
	if err != nil {
		return "", err
	}
	if !node.isLink() {
		return "", &fs.PathError{Op: "readlink", Path: name, Err: errors.New("not a symbolic link")}
	}
	return node.linkDest, nil
}

// Remove deletes a file, link or empty directory
func (m *MemoryFS) Remove(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	node, err := m.getNode("remove", name)
	if err != nil {
		return err
	}
	name = filepath.Clean(name)
	if node.isDir() && len(m.children(name)) > 0 {
		return &fs.PathError{Op: "remove", Path: name, Err: errors.New("directory not empty")}
	}
	delete(m.nodes, name)
	return nil
}

// Paths lists every path below root, sorted
func (m *MemoryFS) Paths() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.nodes))
	for p := range m.nodes {
		if p != "/" {
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out
}

// Walk visits every entry below root in lexical order, reporting symlinks
// without following them
func (m *MemoryFS) Walk(root string, fn func(path string, isSymlink bool) error) error {
	root = filepath.Clean(root)
	m.mu.RLock()
	if _, ok := m.nodes[root]; !ok {
		m.mu.RUnlock()
		return &fs.PathError{Op: "walk", Path: root, Err: fs.ErrNotExist}
	}
	type entry struct {
		path string
		link bool
	}
	var entries []entry
	prefix := strings.TrimSuffix(root, "/") + "/"
	for p, n := range m.nodes {
		if strings.HasPrefix(p, prefix) {
			entries = append(entries, entry{p, n.isLink()})
		}
	}
	m.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool { return entries[i].path < entries[j].path })
	for _, e := range entries {
		if err := fn(e.path, e.link); err != nil {
			return err
		}
	}
	return nil
}

func (m *MemoryFS) getNode(op, name string) (*fileNode, error) {
	name = filepath.Clean(name)
	if err, ok := m.errorPaths[name]; ok {
		return nil, err
	}
	node, ok := m.nodes[name]
	if !ok {
		return nil, &fs.PathError{Op: op, Path: name, Err: fs.ErrNotExist}
	}
	return node, nil
}

func (m *MemoryFS) children(dir string) []string {
	prefix := strings.TrimSuffix(dir, "/") + "/"
	var out []string
	for p := range m.nodes {
		if strings.HasPrefix(p, prefix) {
			out = append(out, p)
		}
	}
	return out
}

// fileInfo implements fs.FileInfo
type fileInfo struct {
	node *fileNode
	name string
}

func (fi *fileInfo) Name() string       { return fi.name }
func (fi *fileInfo) Size() int64        { return int64(len(fi.node.content)) }
func (fi *fileInfo) Mode() fs.FileMode  { return fi.node.mode }
func (fi *fileInfo) ModTime() time.Time { return fi.node.modTime }
func (fi *fileInfo) IsDir() bool        { return fi.node.isDir() }
func (fi *fileInfo) Sys() interface{}   { return nil }
