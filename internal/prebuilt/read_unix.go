//go:build unix

package prebuilt

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// ReadBinary returns the contents of path. Regular files are mapped read-only
// and copied out so the result never aliases the mapping; when mmap is
// unavailable the file is read normally.
func ReadBinary(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	st, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if !st.Mode().IsRegular() {
		return nil, fmt.Errorf("%s: not a regular file", path)
	}
	size := st.Size()
	if size == 0 {
		return []byte{}, nil
	}
	if size > int64(int(^uint(0)>>1)) {
		return nil, fmt.Errorf("%s: %d bytes cannot be addressed", path, size)
	}

	mapped, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return os.ReadFile(path)
	}
	out := make([]byte, len(mapped))
	copy(out, mapped)
	if err := unix.Munmap(mapped); err != nil {
		return nil, fmt.Errorf("munmap %s: %w", path, err)
	}
	return out, nil
}
