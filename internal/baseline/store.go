// Package baseline stores accepted screenshots, one directory per
// generated test file.
package baseline

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ErrReadOnly is returned by Write when the store is not in update mode.
var ErrReadOnly = errors.New("baseline store is read-only; rerun with -update to accept new screenshots")

// MissingError reports a baseline that has never been recorded.
type MissingError struct {
	Name string
	Dir  string
}

func (e *MissingError) Error() string {
	return fmt.Sprintf("baseline %s does not exist in %s; rerun with -update to record it", e.Name, e.Dir)
}

// Store maps baseline names to PNG files in a directory.
type Store struct {
	dir    string
	update bool
}

// DirFor returns the baseline directory for a generated test file:
// testdata/<file name>-snapshots next to it.
func DirFor(testFile string) string {
	return filepath.Join(filepath.Dir(testFile), "testdata", filepath.Base(testFile)+"-snapshots")
}

// Open returns a store rooted at dir. Writes are allowed only when update
// is set.
func Open(dir string, update bool) *Store {
	return &Store{dir: dir, update: update}
}

// Dir returns the store directory.
func (s *Store) Dir() string { return s.dir }

// Updating reports whether the store accepts writes.
func (s *Store) Updating() bool { return s.update }

// Path returns the file path for name.
func (s *Store) Path(name string) string {
	return filepath.Join(s.dir, name)
}

// Read returns the baseline bytes, or a *MissingError.
func (s *Store) Read(name string) ([]byte, error) {
	if err := validName(name); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.Path(name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, &MissingError{Name: name, Dir: s.dir}
	}
	if err != nil {
		return nil, fmt.Errorf("read baseline %s: %w", name, err)
	}
	return data, nil
}

// Write records a new baseline. It fails with ErrReadOnly outside update
// mode.
func (s *Store) Write(name string, png []byte) error {
	if !s.update {
		return ErrReadOnly
	}
	if err := validName(name); err != nil {
		return err
	}
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("create baseline dir: %w", err)
	}
	tmp, err := os.CreateTemp(s.dir, ".baseline-*")
	if err != nil {
		return fmt.Errorf("write baseline %s: %w", name, err)
	}
	if _, err := tmp.Write(png); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write baseline %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("write baseline %s: %w", name, err)
	}
	if err := os.Rename(tmp.Name(), s.Path(name)); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("write baseline %s: %w", name, err)
	}
	return nil
}

// List returns the baseline names in the store, sorted.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".png") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

func validName(name string) error {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return fmt.Errorf("invalid baseline name %q", name)
	}
	return nil
}
