// Package prebuilt locates, downloads and caches the prebuilt injector
// libraries that fripack patches.
package prebuilt

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/zeebo/xxh3"
)

// EnvCacheDir overrides the default cache directory.
const EnvCacheDir = "FRIPACK_CACHE_DIR"

const (
	cachePrefix = "fripack-inject-"
	cacheExt    = ".so"
	digestExt   = ".xxh3"
)

var (
	ErrChecksum    = errors.New("cached file checksum mismatch")
	ErrInvalidName = errors.New("invalid cache key")
)

// DefaultDir returns $FRIPACK_CACHE_DIR, or ~/.fripack.
func DefaultDir() string {
	if dir := os.Getenv(EnvCacheDir); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".fripack"
	}
	return filepath.Join(home, ".fripack")
}

// Cache is a directory of downloaded injector libraries keyed by platform and
// frida version. Each library has an xxh3 sidecar written alongside it.
type Cache struct {
	Dir string
}

// Entry describes one cached library.
type Entry struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
	Path string `json:"path"`
}

// Stats summarizes the cache contents.
type Stats struct {
	Dir       string  `json:"dir"`
	FileCount int     `json:"file_count"`
	TotalSize int64   `json:"total_size"`
	Files     []Entry `json:"files"`
}

// Path returns the file a library for platform and version is cached at.
func (c *Cache) Path(platform, version string) (string, error) {
	for _, part := range []string{platform, version} {
		if part == "" || part == "." || part == ".." || strings.ContainsAny(part, `/\`) {
			return "", fmt.Errorf("%w: %q", ErrInvalidName, part)
		}
	}
	return filepath.Join(c.Dir, cachePrefix+platform+"-"+version+cacheExt), nil
}

// Load returns the cached library for platform and version. A missing file
// yields an error matching fs.ErrNotExist; a sidecar mismatch yields ErrChecksum.
func (c *Cache) Load(platform, version string) ([]byte, error) {
	path, err := c.Path(platform, version)
	if err != nil {
		return nil, err
	}
	data, err := ReadBinary(path)
	if err != nil {
		return nil, err
	}
	want, err := readDigest(path + digestExt)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return data, nil
	case err != nil:
		return nil, err
	}
	if got := xxh3.Hash(data); got != want {
		return nil, fmt.Errorf("%w: %s has %016x, sidecar records %016x", ErrChecksum, path, got, want)
	}
	return data, nil
}

// Save stores data for platform and version and returns the file path.
func (c *Cache) Save(platform, version string, data []byte) (string, error) {
	path, err := c.Path(platform, version)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(c.Dir, 0o755); err != nil {
		return "", fmt.Errorf("create cache directory: %w", err)
	}
	if err := writeAtomic(path, data); err != nil {
		return "", err
	}
	digest := fmt.Sprintf("%016x\n", xxh3.Hash(data))
	if err := writeAtomic(path+digestExt, []byte(digest)); err != nil {
		return "", err
	}
	return path, nil
}

// List returns the cached libraries sorted by name. A missing cache directory
// is an empty cache.
func (c *Cache) List() ([]Entry, error) {
	dirents, err := os.ReadDir(c.Dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var entries []Entry
	for _, de := range dirents {
		if !de.Type().IsRegular() || filepath.Ext(de.Name()) != cacheExt {
			continue
		}
		info, err := de.Info()
		if err != nil {
			return nil, err
		}
		entries = append(entries, Entry{
			Name: de.Name(),
			Size: info.Size(),
			Path: filepath.Join(c.Dir, de.Name()),
		})
	}
	slices.SortFunc(entries, func(a, b Entry) int { return strings.Compare(a.Name, b.Name) })
	return entries, nil
}

// Clear removes every cached library and its sidecar and returns how many
// libraries were removed.
func (c *Cache) Clear() (int, error) {
	entries, err := c.List()
	if err != nil {
		return 0, err
	}
	n := 0
	for _, e := range entries {
		if err := os.Remove(e.Path); err != nil {
			return n, err
		}
		n++
		if err := os.Remove(e.Path + digestExt); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return n, err
		}
	}
	return n, nil
}

// Stats reports the number and total size of cached libraries.
func (c *Cache) Stats() (Stats, error) {
	entries, err := c.List()
	if err != nil {
		return Stats{}, err
	}
	st := Stats{Dir: c.Dir, FileCount: len(entries), Files: entries}
	if st.Files == nil {
		st.Files = []Entry{}
	}
	for _, e := range entries {
		st.TotalSize += e.Size
	}
	return st, nil
}

func readDigest(path string) (uint64, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseUint(strings.TrimSpace(string(raw)), 16, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: sidecar %s: %v", ErrChecksum, path, err)
	}
	return v, nil
}

func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-"+filepath.Base(path)+"-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}
