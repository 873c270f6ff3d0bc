// Package creds resolves the uid/gid/supplementary-group credentials a
// task's child process drops to before running its entry point: uid,
// primary gid, a supplementary gid list capped at 32 entries, and an
// optional user name.
package creds

import (
	"fmt"
	"os/exec"
	"os/user"
	"strconv"
	"syscall"
)

// MaxGroups caps the supplementary gid list.
const MaxGroups = 32

// Credentials is the resolved identity a task's child process will run as.
type Credentials struct {
	Username string // empty when resolved from a raw uid/gid pair
	UID      uint32
	GID      uint32   // primary gid
	Groups   []uint32 // supplementary gids, not including GID, len <= MaxGroups-1
}

// FromUsername resolves credentials by user name: uid, primary gid, and
// supplementary groups via the system passwd/group database.
func FromUsername(name string) (Credentials, error) {
	u, err := user.Lookup(name)
	if err != nil {
		return Credentials{}, fmt.Errorf("creds: lookup user %q: %w", name, err)
	}

	uid, err := parseID(u.Uid)
	if err != nil {
		return Credentials{}, fmt.Errorf("creds: user %q has malformed uid %q: %w", name, u.Uid, err)
	}
	gid, err := parseID(u.Gid)
	if err != nil {
		return Credentials{}, fmt.Errorf("creds: user %q has malformed gid %q: %w", name, u.Gid, err)
	}

	groupIDs, err := u.GroupIds()
	if err != nil {
		return Credentials{}, fmt.Errorf("creds: list groups for %q: %w", name, err)
	}

	groups := make([]uint32, 0, len(groupIDs))
	for _, g := range groupIDs {
		id, err := parseID(g)
		if err != nil {
			continue
		}
		if id == gid {
			continue // primary gid is carried separately
		}
		groups = append(groups, id)
		if len(groups) == MaxGroups-1 {
			break
		}
	}

	return Credentials{Username: name, UID: uid, GID: gid, Groups: groups}, nil
}

// FromExplicit builds credentials from a uid and an explicit gid list, the
// first of which is the primary gid.
func FromExplicit(uid uint32, gids []uint32) (Credentials, error) {
	if len(gids) == 0 {
		return Credentials{}, fmt.Errorf("creds: at least one gid (the primary) is required")
	}
	if len(gids) > MaxGroups {
		return Credentials{}, fmt.Errorf("creds: %d gids exceeds the %d-gid limit", len(gids), MaxGroups)
	}

	supplementary := make([]uint32, len(gids)-1)
	copy(supplementary, gids[1:])

	return Credentials{UID: uid, GID: gids[0], Groups: supplementary}, nil
}

// FromOwner resolves credentials for a file's numeric owning uid/gid,
// falling back to the bare numeric pair (no supplementary groups) when the
// passwd entry is missing — the copy dispatcher's documented fallback for
// drop-zone files owned by uids with no local account.
func FromOwner(uid, gid uint32) Credentials {
	u, err := user.LookupId(strconv.FormatUint(uint64(uid), 10))
	if err != nil {
		return Credentials{UID: uid, GID: gid}
	}

	creds, err := FromUsername(u.Username)
	if err != nil {
		return Credentials{UID: uid, GID: gid}
	}

	// The file's owning gid may differ from the account's primary gid
	// (e.g. a shared drop-zone group); honor the file's gid as primary.
	creds.GID = gid
	return creds
}

func parseID(s string) (uint32, error) {
	n, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, err
	}
	return uint32(n), nil
}

// Apply sets cmd.SysProcAttr.Credential. The forked child sets the
// supplementary groups and the primary gid before it drops the uid, and
// only then execs the worker.
func (c Credentials) Apply(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Credential = &syscall.Credential{
		Uid:    c.UID,
		Gid:    c.GID,
		Groups: c.Groups,
	}
}
