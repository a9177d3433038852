//go:build linux

package httpserver

import "golang.org/x/sys/unix"

// sendfile transfers up to count bytes from inFD to outFD starting at
// *offset, advancing it, via the kernel's zero-copy sendfile(2).
func sendfile(outFD, inFD int, offset *int64, count int) (int, error) {
	return unix.Sendfile(outFD, inFD, offset, count)
}
