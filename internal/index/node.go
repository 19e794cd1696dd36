// Package index builds and publishes immutable snapshots of the served
// directory tree.
package index

import (
	"time"

	"github.com/dustin/go-humanize"

	"github.com/kennedydane/static-server/internal/checksum"
)

// Node is one file or directory in a snapshot. Paths are rooted at "/"
// relative to the served directory.
type Node struct {
	Name        string           `json:"name"`
	Path        string           `json:"path"`
	Size        int64            `json:"size"`
	HumanSize   string           `json:"human_size"`
	ModTime     time.Time        `json:"mtime"`
	IsDir       bool             `json:"is_dir"`
	Checksums   checksum.Digests `json:"checksums,omitempty"`
	Description string           `json:"description,omitempty"`
	Children    []*Node          `json:"children,omitempty"`
}

// Snapshot is one fully built, immutable tree. It is never mutated after
// Build returns; readers share it freely.
type Snapshot struct {
	Root    *Node     `json:"root"`
	BuiltAt time.Time `json:"built_at"`
	Files   int       `json:"files"`
	Dirs    int       `json:"dirs"`
	// Skipped lists entries that could not be read this scan. They are
	// retried on the next scan.
	Skipped []string `json:"skipped,omitempty"`
}

// FindByPath resolves a "/"-rooted path in the tree (recursive).
func FindByPath(root *Node, path string) *Node {
	if root == nil {
		return nil
	}
	if root.Path == path {
		return root
	}
	for _, child := range root.Children {
		if found := FindByPath(child, path); found != nil {
			return found
		}
	}
	return nil
}

// Flatten returns every file node keyed by path. Directories are excluded;
// this is the shape of the flat checksum listing endpoint.
func (s *Snapshot) Flatten() map[string]*Node {
	out := make(map[string]*Node, s.Files)
	flattenFiles(s.Root, out)
	return out
}

func flattenFiles(n *Node, out map[string]*Node) {
	if n == nil {
		return
	}
	if !n.IsDir {
		out[n.Path] = n
		return
	}
	for _, child := range n.Children {
		flattenFiles(child, out)
	}
}

// childPath constructs a child path from parent + name.
func childPath(parent, name string) string {
	if parent == "/" {
		return "/" + name
	}
	return parent + "/" + name
}

func humanSize(size int64) string {
	return humanize.Bytes(uint64(size))
}
