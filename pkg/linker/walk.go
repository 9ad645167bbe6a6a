package linker

import (
	"io/fs"
	"os"
	"sync"

	"github.com/charlievieth/fastwalk"
)

// Walker enumerates every entry below root. fn is never called
// concurrently. Symlinks are reported, not followed.
type Walker interface {
	Walk(root string, fn func(path string, isSymlink bool) error) error
}

// FastWalker walks directories in parallel with fastwalk
type FastWalker struct{}

func (FastWalker) Walk(root string, fn func(path string, isSymlink bool) error) error {
	var mu sync.Mutex
	conf := fastwalk.Config{Follow: false}
	return fastwalk.Walk(&conf, root, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			if p == root {
				return err
			}
			// unreadable subtree
			return nil
		}
		if p == root {
			return nil
		}
		mu.Lock()
		defer mu.Unlock()
		return fn(p, d.Type()&fs.ModeSymlink != 0)
	})
}
