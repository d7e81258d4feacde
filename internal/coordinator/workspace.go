package coordinator

import (
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/go-enry/go-enry/v2"

	perrors "github.com/dusk-indust/polyparse/internal/errors"
	"github.com/dusk-indust/polyparse/internal/graph"
	"github.com/dusk-indust/polyparse/internal/linker"
)

// workspaceHinter adapts a Resolver to file paths that may be absolute or
// relative to the process rather than to the workspace root.
type workspaceHinter struct {
	root string
	r    *graph.Resolver
}

func (h workspaceHinter) ResolveSpecifier(lang graph.Language, fromFile, spec string) (string, bool) {
	if rel, err := filepath.Rel(h.root, fromFile); err == nil && !strings.HasPrefix(rel, "..") {
		fromFile = rel
	}
	return h.r.ResolveSpecifier(lang, filepath.ToSlash(fromFile), spec)
}

// hinter returns the resolver for root, walking the workspace the first
// time root is seen. Callers for other roots are not held up by the walk.
func (c *Coordinator) hinter(root string) (linker.Hinter, error) {
	if h, ok := c.registered(root); ok {
		return h, nil
	}
	v, err, _ := c.scans.Do(root, func() (any, error) {
		if h, ok := c.registered(root); ok {
			return h, nil
		}
		files, err := c.scan(root)
		if err != nil {
			return nil, perrors.Wrap(err, perrors.InputReadFailure, "scan workspace").WithContext("root", root)
		}
		c.mu.Lock()
		defer c.mu.Unlock()
		// A resolver registered by UseWorkspace during the walk wins.
		if h, ok := c.resolvers[root]; ok {
			return h, nil
		}
		h := workspaceHinter{root: root, r: graph.NewResolver(root, files)}
		c.resolvers[root] = h
		c.log.WithField("root", root).WithField("files", len(files)).Debug("workspace indexed for linking")
		return h, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(linker.Hinter), nil
}

func (c *Coordinator) registered(root string) (linker.Hinter, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	h, ok := c.resolvers[root]
	return h, ok
}

// WorkspaceFiles lists the files under root as slash-separated relative
// paths. Hidden entries and vendored directories are skipped.
func WorkspaceFiles(root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, p)
		if err != nil || rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if d.IsDir() {
			if strings.HasPrefix(d.Name(), ".") || enry.IsVendor(rel+"/") {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") || !d.Type().IsRegular() {
			return nil
		}
		files = append(files, rel)
		return nil
	})
	return files, err
}
