package supervisor

import (
	"fmt"
	"os"
	"syscall"

	"github.com/tsdfx/tsdfx/internal/creds"
)

// dirOwner resolves a map entry's source directory owner to drop-privilege
// credentials for its scan task.
func dirOwner(dir string) (creds.Credentials, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return creds.Credentials{}, fmt.Errorf("supervisor: stat %s: %w", dir, err)
	}
	st, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return creds.Credentials{}, fmt.Errorf("supervisor: cannot resolve owner of %s", dir)
	}
	return creds.FromOwner(st.Uid, st.Gid), nil
}
