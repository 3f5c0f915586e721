//go:build unix && !linux && !darwin

package kv

func leaderStart(int) string {
	return ""
}
