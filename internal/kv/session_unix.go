//go:build unix

package kv

import (
	"os"
	"strconv"

	"golang.org/x/sys/unix"
)

// platformSessionID uses the POSIX session id, shared by every process
// started from the same terminal, suffixed with the session leader's start
// time so a recycled pid does not inherit an old session's file.
func platformSessionID() string {
	sid, err := unix.Getsid(0)
	if err != nil {
		return "ppid-" + strconv.Itoa(os.Getppid())
	}
	if start := leaderStart(sid); start != "" {
		return strconv.Itoa(sid) + "-" + start
	}
	return strconv.Itoa(sid)
}

func sessionAlive(sid int, start string) bool {
	current := leaderStart(sid)
	return current != "" && current == start
}
