//go:build !linux

package httpserver

import "golang.org/x/sys/unix"

// sendfile falls back to a pread+write copy on platforms where
// x/sys/unix does not expose a sendfile(2) wrapper (Darwin's syscall
// has an incompatible signature involving a header/trailer struct).
// Still counts down FileRemaining identically to the Linux zero-copy
// path; the only difference is an extra userspace copy.
func sendfile(outFD, inFD int, offset *int64, count int) (int, error) {
	if count > 1<<16 {
		count = 1 << 16
	}
	buf := make([]byte, count)
	n, err := unix.Pread(inFD, buf, *offset)
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, nil
	}
	w, err := unix.Write(outFD, buf[:n])
	if w > 0 {
		*offset += int64(w)
	}
	return w, err
}
