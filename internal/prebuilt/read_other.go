//go:build !unix

package prebuilt

import "os"

// ReadBinary returns the contents of path.
func ReadBinary(path string) ([]byte, error) {
	return os.ReadFile(path)
}
