//go:build !darwin

package kv

// NewSystemStore returns a FileStore at fallbackPath on non-darwin platforms.
// The macOS Keychain is not available outside of macOS.
func NewSystemStore(fallbackPath string) Store {
	return NewFileStore(fallbackPath)
}
