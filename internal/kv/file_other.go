//go:build !unix

package kv

import "io/fs"

// Unix permission bits and owners are not meaningful here; access is
// governed by the profile directory's ACL.
func checkOwnerAndMode(string, fs.FileInfo) error {
	return nil
}
