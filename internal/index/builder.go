package index

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/kennedydane/static-server/internal/cache"
	"github.com/kennedydane/static-server/internal/checksum"
	"github.com/kennedydane/static-server/internal/logging"
	"github.com/kennedydane/static-server/internal/metrics"
)

// maxDepth bounds recursion even though served trees are assumed shallow.
const maxDepth = 128

// Hasher computes content digests for a file on disk.
type Hasher interface {
	SumFile(ctx context.Context, path string) (checksum.Digests, error)
}

// Builder walks the served directory and produces snapshots. It holds no
// state between builds beyond the injected checksum cache.
type Builder struct {
	root   string
	marker string
	hasher Hasher
	cache  *cache.Cache
}

// NewBuilder creates a builder for root. marker is the reserved description
// filename; it is read for directory descriptions and excluded from listings.
func NewBuilder(root, marker string, hasher Hasher, c *cache.Cache) *Builder {
	return &Builder{root: root, marker: marker, hasher: hasher, cache: c}
}

// Build walks the tree and returns a new immutable snapshot. Only an
// unreadable root is an error; individual unreadable entries are skipped and
// recorded in Snapshot.Skipped. After the walk, cache records for paths no
// longer on disk are evicted.
func (b *Builder) Build(ctx context.Context) (*Snapshot, error) {
	info, err := os.Stat(b.root)
	if err != nil {
		return nil, fmt.Errorf("stat root %s: %w", b.root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root %s is not a directory", b.root)
	}

	snap := &Snapshot{
		Root: &Node{Name: "/", Path: "/", IsDir: true, ModTime: info.ModTime()},
	}
	live := make(map[string]struct{})
	visited := make(map[string]struct{})
	if resolved, err := filepath.EvalSymlinks(b.root); err == nil {
		visited[resolved] = struct{}{}
	}

	b.walkDir(ctx, snap, b.root, snap.Root, live, visited, 0)
	// A cancelled walk yields a truncated tree; it must never be published
	// as current, and its live set must not drive cache eviction.
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	snap.BuiltAt = time.Now()

	if evicted := b.cache.Sweep(live); evicted > 0 {
		logging.L().Debug("evicted stale cache records", zap.Int("count", evicted))
	}
	return snap, nil
}

func (b *Builder) walkDir(ctx context.Context, snap *Snapshot, dir string, node *Node, live, visited map[string]struct{}, depth int) {
	if ctx.Err() != nil {
		return
	}
	if depth > maxDepth {
		b.skip(snap, node.Path, fmt.Errorf("max depth %d exceeded", maxDepth))
		return
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		b.skip(snap, node.Path, err)
		return
	}

	// os.ReadDir returns entries sorted by name, which fixes child order.
	for _, entry := range entries {
		name := entry.Name()
		if name == b.marker {
			node.Description = b.readDescription(filepath.Join(dir, name))
			continue
		}
		if strings.HasPrefix(name, ".") {
			continue
		}

		abs := filepath.Join(dir, name)
		rel := childPath(node.Path, name)

		fi, err := entry.Info()
		if err != nil {
			b.skip(snap, rel, err)
			continue
		}

		if fi.Mode()&os.ModeSymlink != 0 {
			resolved, target, err := resolveSymlink(abs)
			if err != nil {
				b.skip(snap, rel, err)
				continue
			}
			if target.IsDir() {
				// Never follow symlinked directories; this is the
				// cycle guard.
				continue
			}
			if _, seen := visited[resolved]; seen {
				continue
			}
			fi = target
		}

		if fi.IsDir() {
			if resolved, err := filepath.EvalSymlinks(abs); err == nil {
				if _, seen := visited[resolved]; seen {
					b.skip(snap, rel, fmt.Errorf("directory cycle at %s", rel))
					continue
				}
				visited[resolved] = struct{}{}
			}
			child := &Node{Name: name, Path: rel, IsDir: true, ModTime: fi.ModTime()}
			node.Children = append(node.Children, child)
			snap.Dirs++
			b.walkDir(ctx, snap, abs, child, live, visited, depth+1)
			continue
		}

		if !fi.Mode().IsRegular() {
			continue
		}

		digests, err := b.resolveDigests(ctx, abs, rel, fi.Size(), fi.ModTime())
		if err != nil {
			b.skip(snap, rel, err)
			continue
		}

		node.Children = append(node.Children, &Node{
			Name:      name,
			Path:      rel,
			Size:      fi.Size(),
			HumanSize: humanSize(fi.Size()),
			ModTime:   fi.ModTime(),
			Checksums: digests,
		})
		live[rel] = struct{}{}
		snap.Files++
	}
}

// resolveDigests returns cached digests when the live size+mtime match the
// record exactly, and rehashes otherwise.
func (b *Builder) resolveDigests(ctx context.Context, abs, rel string, size int64, modTime time.Time) (checksum.Digests, error) {
	if digests, ok := b.cache.Valid(rel, size, modTime); ok {
		metrics.RecordCacheHit()
		return digests, nil
	}

	digests, err := b.hasher.SumFile(ctx, abs)
	if errors.Is(err, checksum.ErrTooLarge) {
		// List the file without checksums. The nil-digest record keeps
		// later scans from re-reading it until size or mtime changes.
		b.cache.Store(rel, size, modTime, nil)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	metrics.RecordFileHashed()
	b.cache.Store(rel, size, modTime, digests)
	return digests, nil
}

// readDescription returns the marker file's text, or "" when the file is
// unreadable or not valid UTF-8.
func (b *Builder) readDescription(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		logging.L().Warn("unreadable description marker", zap.String("path", path), zap.Error(err))
		return ""
	}
	if !utf8.Valid(data) {
		logging.L().Warn("description marker is not valid UTF-8", zap.String("path", path))
		return ""
	}
	return strings.TrimSpace(string(data))
}

func (b *Builder) skip(snap *Snapshot, path string, err error) {
	snap.Skipped = append(snap.Skipped, fmt.Sprintf("%s: %v", path, err))
	logging.L().Warn("skipping unreadable entry", zap.String("path", path), zap.Error(err))
}

func resolveSymlink(path string) (string, os.FileInfo, error) {
	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		return "", nil, err
	}
	fi, err := os.Stat(resolved)
	if err != nil {
		return "", nil, err
	}
	return resolved, fi, nil
}
