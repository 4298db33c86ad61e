//go:build !windows

package staging

import (
	"fmt"
	"os"
	"os/user"
	"strconv"
)

// Ownership does not propagate to new files, so each staged file is granted
// individually.
const grantInherits = false

// grantFullControl hands ownership of path to principal's user and primary
// group and gives the owner read/write (and search on directories).
func grantFullControl(path, principal string) error {
	u, err := user.Lookup(principal)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", principal, err)
	}
	uid, err := strconv.Atoi(u.Uid)
	if err != nil {
		return fmt.Errorf("uid %q: %w", u.Uid, err)
	}
	gid, err := strconv.Atoi(u.Gid)
	if err != nil {
		return fmt.Errorf("gid %q: %w", u.Gid, err)
	}
	if err := os.Chown(path, uid, gid); err != nil {
		return err
	}

	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	mode := info.Mode().Perm() | 0o600
	if info.IsDir() {
		mode |= 0o100
	}
	return os.Chmod(path, mode)
}
