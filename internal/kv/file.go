package kv

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// ErrInsecureDir is returned by private stores whose directory other users
// could read or write.
var ErrInsecureDir = errors.New("directory is not private")

// FileStore is a durable tier persisted as a single JSON object on disk.
// Every call re-reads the file so that writes from other processes are
// picked up; the last writer wins.
type FileStore struct {
	mu      sync.Mutex
	path    string
	private bool // refuse a directory not owned by us or open to others
}

// NewFileStore returns a store backed by the JSON file at path. The file and
// its parent directory are created on first write.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// NewPrivateFileStore is NewFileStore for files holding secrets: reads and
// writes fail with ErrInsecureDir unless the parent directory is a real
// directory owned by the current user with no group or other access.
func NewPrivateFileStore(path string) *FileStore {
	return &FileStore{path: path, private: true}
}

// CheckPrivateDir verifies that dir is a directory (not a symlink) owned by
// the current user and closed to group and other.
func CheckPrivateDir(dir string) error {
	info, err := os.Lstat(dir)
	if err != nil {
		return err
	}
	if info.Mode()&fs.ModeSymlink != 0 || !info.IsDir() {
		return fmt.Errorf("%w: %s is not a directory", ErrInsecureDir, dir)
	}
	return checkOwnerAndMode(dir, info)
}

// Path returns the backing file.
func (s *FileStore) Path() string {
	return s.path
}

func (s *FileStore) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	values, err := s.loadUnsafe()
	if err != nil {
		return err
	}
	values[key] = value
	return s.saveUnsafe(values)
}

func (s *FileStore) Get(key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	values, err := s.loadUnsafe()
	if err != nil {
		return "", err
	}
	val, ok := values[key]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return val, nil
}

func (s *FileStore) List() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	values, err := s.loadUnsafe()
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *FileStore) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	values, err := s.loadUnsafe()
	if err != nil {
		return err
	}
	if _, ok := values[key]; !ok {
		return nil
	}
	delete(values, key)
	return s.saveUnsafe(values)
}

func (s *FileStore) GetMultiple(keys []string) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	values, err := s.loadUnsafe()
	if err != nil {
		return nil, err
	}
	result := make(map[string]string, len(keys))
	for _, key := range keys {
		if val, ok := values[key]; ok {
			result[key] = val
		}
	}
	return result, nil
}

// loadUnsafe reads without locking; caller must hold s.mu.
func (s *FileStore) loadUnsafe() (map[string]string, error) {
	values := make(map[string]string)
	if s.private {
		if err := CheckPrivateDir(filepath.Dir(s.path)); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return values, nil
			}
			return nil, err
		}
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return values, nil
		}
		return nil, fmt.Errorf("reading %s: %w", s.path, err)
	}
	if len(data) == 0 {
		return values, nil
	}
	if err := json.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", s.path, err)
	}
	return values, nil
}

func (s *FileStore) saveUnsafe(values map[string]string) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return err
	}
	if s.private {
		if err := CheckPrivateDir(dir); err != nil {
			return err
		}
	}
	data, err := json.MarshalIndent(values, "", "  ")
	if err != nil {
		return err
	}

	// CreateTemp picks an unused name with O_EXCL and mode 0600, so a
	// planted file or symlink is never written through.
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}
