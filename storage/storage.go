package storage

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/serisow/craftvid/script_type"
)

// Storage stores media files under relative paths.
type Storage interface {
	// Abs resolves a relative path to a local filesystem path.
	Abs(rel string) string
	Exists(rel string) bool
	Stat(rel string) (fs.FileInfo, error)
	Open(rel string) (io.ReadCloser, error)
	// Create opens rel for writing, creating parent directories.
	Create(rel string) (io.WriteCloser, error)
	MakeDirs(rel string) error
	Remove(rel string) error
	Rename(from, to string) error
}

// Local stores files below a root directory.
type Local struct {
	root string
}

func NewLocal(root string) (*Local, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("invalid media root %q: %w", root, err)
	}
	if err := os.MkdirAll(abs, 0755); err != nil {
		return nil, fmt.Errorf("failed to create media root: %w", err)
	}
	return &Local{root: abs}, nil
}

func (l *Local) Root() string { return l.root }

// Abs joins rel onto the root. Absolute paths already under the root are
// returned unchanged.
func (l *Local) Abs(rel string) string {
	if filepath.IsAbs(rel) {
		if clean := filepath.Clean(rel); clean == l.root || strings.HasPrefix(clean, l.root+string(filepath.Separator)) {
			return clean
		}
	}
	return filepath.Join(l.root, filepath.Clean("/"+rel))
}

func (l *Local) Exists(rel string) bool {
	_, err := os.Stat(l.Abs(rel))
	return err == nil
}

func (l *Local) Stat(rel string) (fs.FileInfo, error) {
	return os.Stat(l.Abs(rel))
}

func (l *Local) Open(rel string) (io.ReadCloser, error) {
	return os.Open(l.Abs(rel))
}

func (l *Local) Create(rel string) (io.WriteCloser, error) {
	path := l.Abs(rel)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}
	return os.Create(path)
}

func (l *Local) MakeDirs(rel string) error {
	return os.MkdirAll(l.Abs(rel), 0755)
}

// Remove deletes rel. A missing file is not an error.
func (l *Local) Remove(rel string) error {
	if err := os.Remove(l.Abs(rel)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func (l *Local) Rename(from, to string) error {
	dst := l.Abs(to)
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	return os.Rename(l.Abs(from), dst)
}

// Write copies r into rel and returns the number of bytes written. A
// partial file is removed when the copy fails.
func Write(s Storage, rel string, r io.Reader) (int64, error) {
	w, err := s.Create(rel)
	if err != nil {
		return 0, fmt.Errorf("failed to create %s: %w", rel, err)
	}
	n, err := io.Copy(w, r)
	if cerr := w.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		s.Remove(rel)
		return 0, fmt.Errorf("failed to write %s: %w", rel, err)
	}
	return n, nil
}

// Release removes the file behind a superseded asset.
func Release(s Storage, ref *script_type.AssetRef) error {
	if ref == nil || ref.Path == "" {
		return nil
	}
	return s.Remove(ref.Path)
}

// AssetPath returns a fresh relative path for a generated asset, grouped by
// kind and script.
func AssetPath(kind script_type.AssetKind, scriptID, sceneID, ext string) string {
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	name := fmt.Sprintf("%s-%s%s", sceneID, uuid.New().String(), ext)
	return filepath.Join(string(kind), scriptID, name)
}

// CompiledPath returns a fresh relative path for a compiled video.
func CompiledPath(scriptID, id string) string {
	return filepath.Join("compiled", scriptID, id+".mp4")
}
