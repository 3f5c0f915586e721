//go:build unix

package kv

import (
	"fmt"
	"io/fs"
	"os"
	"syscall"
)

func checkOwnerAndMode(dir string, info fs.FileInfo) error {
	if perm := info.Mode().Perm(); perm&0o077 != 0 {
		return fmt.Errorf("%w: %s has mode %o, want 0700", ErrInsecureDir, dir, perm)
	}
	st, ok := info.Sys().(*syscall.Stat_t)
	if !ok || int(st.Uid) != os.Getuid() {
		return fmt.Errorf("%w: %s is owned by another user", ErrInsecureDir, dir)
	}
	return nil
}
