// Package cache is a small persistent key/value store on the local disk.
//
// Each key lives in its own file under the cache directory. Writes take a
// per-key file lock and replace the file atomically, so a reader never sees
// a half-written value and entries survive a restart.
package cache

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gofrs/flock"
)

const fileExt = ".json"

// Store keeps values in one directory
type Store struct {
	dir string
}

// Open creates the cache directory if needed
func Open(dir string) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("cache directory is required")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the cache directory
func (s *Store) Dir() string {
	return s.dir
}

// Get returns the value stored under key. A missing key is not an error.
func (s *Store) Get(key string) ([]byte, bool, error) {
	data, err := os.ReadFile(s.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read cache entry %s: %w", key, err)
	}
	return data, true, nil
}

// Set stores value under key, replacing any previous value
func (s *Store) Set(key string, value []byte) error {
	unlock, err := s.lock(key)
	if err != nil {
		return err
	}
	defer unlock()

	tmp, err := os.CreateTemp(s.dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to write cache entry %s: %w", key, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(value); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write cache entry %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to write cache entry %s: %w", key, err)
	}
	if err := os.Rename(tmpName, s.path(key)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to write cache entry %s: %w", key, err)
	}
	return nil
}

// Remove deletes key. Removing a missing key is not an error.
func (s *Store) Remove(key string) error {
	unlock, err := s.lock(key)
	if err != nil {
		return err
	}
	defer unlock()

	if err := os.Remove(s.path(key)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove cache entry %s: %w", key, err)
	}
	return nil
}

// Keys lists stored keys with the given prefix
func (s *Store) Keys(prefix string) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list cache: %w", err)
	}
	var keys []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, fileExt) {
			continue
		}
		key := decodeKey(strings.TrimSuffix(name, fileExt))
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

func (s *Store) lock(key string) (func(), error) {
	fl := flock.New(s.path(key) + ".lock")
	if err := fl.Lock(); err != nil {
		return nil, fmt.Errorf("failed to lock cache entry %s: %w", key, err)
	}
	return func() { fl.Unlock() }, nil
}

func (s *Store) path(key string) string {
	return filepath.Join(s.dir, EncodeKey(key)+fileExt)
}

// EncodeKey maps a key to a safe file name. Characters outside
// [A-Za-z0-9-_.] are written as %XX so the mapping stays reversible.
func EncodeKey(key string) string {
	var b strings.Builder
	for i := 0; i < len(key); i++ {
		c := key[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9',
			c == '-', c == '_':
			b.WriteByte(c)
		case c == '.' && i > 0:
			b.WriteByte(c)
		default:
			fmt.Fprintf(&b, "%%%02X", c)
		}
	}
	return b.String()
}

func decodeKey(name string) string {
	var b strings.Builder
	for i := 0; i < len(name); i++ {
		if name[i] == '%' && i+2 < len(name) {
			if c, err := strconv.ParseUint(name[i+1:i+3], 16, 8); err == nil {
				b.WriteByte(byte(c))
				i += 2
				continue
			}
		}
		b.WriteByte(name[i])
	}
	return b.String()
}
