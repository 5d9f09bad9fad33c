//go:build !windows

package logging

// enableColors is a no-op: non-Windows terminals interpret ANSI sequences natively.
func enableColors() {}
