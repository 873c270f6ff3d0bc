package scan

import (
	"os"
	"syscall"
)

// statIdentity extracts (dev, ino) from a directory's os.FileInfo, used to
// detect a scan root being replaced by a different directory between
// scans: disappearance or a type change moves the task to invalid.
func statIdentity(info os.FileInfo) (dev, ino uint64) {
	st, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return 0, 0
	}
	return uint64(st.Dev), st.Ino
}

// statOwner extracts (uid, gid) from a directory's os.FileInfo.
func statOwner(info os.FileInfo) (uid, gid uint32, ok bool) {
	st, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return 0, 0, false
	}
	return st.Uid, st.Gid, true
}
