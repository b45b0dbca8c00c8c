package pipeline

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"

	"mergeflow/internal/diff3"
)

var (
	// ErrMissingInput is returned when detection runs without all inputs loaded.
	ErrMissingInput = errors.New("missing input")
	// ErrInputTooLarge is returned when an input exceeds the configured size limit.
	ErrInputTooLarge = errors.New("input too large")
)

// Source is one input document. Loaded distinguishes an empty file from one
// that was never provided.
type Source struct {
	Path    string
	Content string
	Loaded  bool
}

// LoadSource reads a regular file of at most maxBytes bytes. maxBytes <= 0
// disables the limit.
func LoadSource(path string, maxBytes int64) (Source, error) {
	src := Source{Path: path}
	if path == "" {
		return src, ErrMissingInput
	}
	f, err := os.Open(path)
	if err != nil {
		return src, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return src, fmt.Errorf("stat %s: %w", path, err)
	}
	if !info.Mode().IsRegular() {
		return src, fmt.Errorf("%s is not a regular file", path)
	}
	if maxBytes > 0 && info.Size() > maxBytes {
		return src, fmt.Errorf("%s is %d bytes, limit %d: %w", path, info.Size(), maxBytes, ErrInputTooLarge)
	}

	r := io.Reader(f)
	if maxBytes > 0 {
		// The file may grow between Stat and Read.
		r = io.LimitReader(f, maxBytes+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return src, fmt.Errorf("read %s: %w", path, err)
	}
	if maxBytes > 0 && int64(len(data)) > maxBytes {
		return src, fmt.Errorf("%s exceeds %d bytes: %w", path, maxBytes, ErrInputTooLarge)
	}

	src.Content = string(data)
	src.Loaded = true
	return src, nil
}

// Lines splits the content the way every merge input must be split.
func (s Source) Lines() []string {
	return diff3.SplitLines(s.Content)
}

func (s Source) SHA256() string {
	if !s.Loaded {
		return ""
	}
	sum := sha256.Sum256([]byte(s.Content))
	return hex.EncodeToString(sum[:])
}
