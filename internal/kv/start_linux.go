package kv

import (
	"bytes"
	"fmt"
	"os"
)

// leaderStart returns the start time of pid in clock ticks since boot, or
// "" when the process does not exist.
func leaderStart(pid int) string {
	data, err := os.ReadFile(fmt.Sprintf("/proc/%d/stat", pid))
	if err != nil {
		return ""
	}
	// comm may contain spaces and parentheses; fields resume after the last ')'.
	i := bytes.LastIndexByte(data, ')')
	if i < 0 {
		return ""
	}
	fields := bytes.Fields(data[i+1:])
	// starttime is field 22 of stat(5); fields here begin at field 3.
	if len(fields) < 20 {
		return ""
	}
	return string(fields[19])
}
