package copydispatch

import (
	"os"
	"syscall"

	"github.com/tsdfx/tsdfx/internal/creds"
)

// ownerCreds extracts the source path's owning uid/gid for the copy task's
// dropped-privilege credentials, falling back to the numeric uid/gid when
// the passwd entry is missing (creds.FromOwner already does that
// fallback).
func ownerCreds(info os.FileInfo) creds.Credentials {
	st, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return creds.Credentials{}
	}
	return creds.FromOwner(st.Uid, st.Gid)
}
