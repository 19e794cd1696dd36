// Package checksum computes streaming content checksums for served files.
package checksum

import (
	"context"
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"os"
)

// ErrTooLarge is returned when the content exceeds Options.MaxSize. Callers
// can distinguish it from I/O failures: the file exists and is readable, it
// is just not worth hashing.
var ErrTooLarge = errors.New("content exceeds maximum hashable size")

// Algorithm identifies a supported hashing algorithm.
type Algorithm string

const (
	// MD5 is fast and fine for content comparison of static files.
	MD5 Algorithm = "md5"
	// SHA256 is the stronger default.
	SHA256 Algorithm = "sha256"
)

// IsSupported reports whether algo is a known algorithm.
func IsSupported(algo Algorithm) bool {
	switch algo {
	case MD5, SHA256:
		return true
	}
	return false
}

// Digests maps algorithm name to hex-encoded digest.
type Digests map[Algorithm]string

// Options configures the calculator.
type Options struct {
	// Algorithms to compute. Defaults to MD5+SHA256.
	Algorithms []Algorithm

	// MaxSize: files larger than this are not hashed (0 = unlimited).
	MaxSize int64

	// BufferSize for streaming reads. Default 32KB.
	BufferSize int
}

// DefaultOptions returns the recommended defaults.
func DefaultOptions() Options {
	return Options{
		Algorithms: []Algorithm{MD5, SHA256},
		BufferSize: 32 * 1024,
	}
}

// Calculator computes file checksums without loading whole files in memory.
type Calculator struct {
	opts Options
}

// New creates a calculator with the given options.
func New(opts Options) (*Calculator, error) {
	if len(opts.Algorithms) == 0 {
		opts.Algorithms = []Algorithm{MD5, SHA256}
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = 32 * 1024
	}
	for _, algo := range opts.Algorithms {
		if !IsSupported(algo) {
			return nil, fmt.Errorf("unsupported algorithm: %s", algo)
		}
	}
	return &Calculator{opts: opts}, nil
}

// Sum computes all configured digests from r in a single streaming pass.
func (c *Calculator) Sum(ctx context.Context, r io.Reader) (Digests, error) {
	hashers := make([]hash.Hash, len(c.opts.Algorithms))
	writers := make([]io.Writer, len(c.opts.Algorithms))
	for i, algo := range c.opts.Algorithms {
		switch algo {
		case MD5:
			hashers[i] = md5.New()
		case SHA256:
			hashers[i] = sha256.New()
		default:
			return nil, fmt.Errorf("unsupported algorithm: %s", algo)
		}
		writers[i] = hashers[i]
	}
	multi := io.MultiWriter(writers...)

	buf := make([]byte, c.opts.BufferSize)
	var total int64
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		n, err := r.Read(buf)
		if n > 0 {
			total += int64(n)
			if c.opts.MaxSize > 0 && total > c.opts.MaxSize {
				return nil, fmt.Errorf("%w (%d bytes)", ErrTooLarge, c.opts.MaxSize)
			}
			if _, werr := multi.Write(buf[:n]); werr != nil {
				return nil, fmt.Errorf("hash write error: %w", werr)
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read error: %w", err)
		}
	}

	out := make(Digests, len(hashers))
	for i, h := range hashers {
		out[c.opts.Algorithms[i]] = hex.EncodeToString(h.Sum(nil))
	}
	return out, nil
}

// SumFile opens path and computes its digests. Apart from ErrTooLarge, the
// caller treats any error as "skip this entry for this scan"; the file may
// vanish mid-read.
func (c *Calculator) SumFile(ctx context.Context, path string) (Digests, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return c.Sum(ctx, f)
}
