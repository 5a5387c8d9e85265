// Package store owns the downloads directory: it names stored media files,
// lists them for retention and deletes them idempotently.
package store

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"postfetch/internal/httputil"
	"postfetch/internal/media"
)

// Store is a view over a single downloads directory.
type Store struct {
	dir string
}

// New resolves dir to an absolute path and creates it if needed.
func New(dir string) (*Store, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolving downloads directory: %w", err)
	}
	if err := os.MkdirAll(absDir, 0755); err != nil {
		return nil, fmt.Errorf("creating downloads directory: %w", err)
	}
	return &Store{dir: absDir}, nil
}

// Dir returns the absolute downloads directory.
func (s *Store) Dir() string { return s.dir }

// PathFor returns the path a new file for this request is written to:
// <dir>/<platform>_<userId>_<unixMillis>.<ext>
func (s *Store) PathFor(p media.Platform, userID string, kind media.Kind, at time.Time) (string, error) {
	name := fmt.Sprintf("%s_%s_%d.%s", p, httputil.SanitizeFilename(userID), at.UnixMilli(), kind.Ext())
	return httputil.SafeDownloadPath(s.dir, name)
}

// Remove deletes a stored file. Removing a file that is already gone is not
// an error; paths outside the directory are refused.
func (s *Store) Remove(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolving path: %w", err)
	}
	if !httputil.Contained(s.dir, abs) {
		return fmt.Errorf("refusing to remove %q outside %q", abs, s.dir)
	}
	if err := os.Remove(abs); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("removing %s: %w", abs, err)
	}
	return nil
}

// List returns every regular file in the directory.
func (s *Store) List() ([]media.File, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("reading downloads directory: %w", err)
	}

	files := make([]media.File, 0, len(entries))
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			// Deleted between ReadDir and Info.
			continue
		}
		files = append(files, media.File{
			Path:      filepath.Join(s.dir, e.Name()),
			Size:      info.Size(),
			CreatedAt: info.ModTime(),
		})
	}
	return files, nil
}

// Stats summarises the directory contents.
type Stats struct {
	Files      int
	TotalBytes int64
}

// Stats counts stored files and their total size.
func (s *Store) Stats() (Stats, error) {
	files, err := s.List()
	if err != nil {
		return Stats{}, err
	}
	var st Stats
	for _, f := range files {
		st.Files++
		st.TotalBytes += f.Size
	}
	return st, nil
}
