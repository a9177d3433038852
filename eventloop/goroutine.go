package eventloop

import (
	"bytes"
	"runtime"
	"strconv"
)

// currentGoroutineID parses the calling goroutine's id out of a
// runtime.Stack trace. It exists only to support Run's reentrancy
// check (ErrReentrantRun) and carries no meaning outside that
// assertion; nothing here is on a hot path.
func currentGoroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	b := buf[:n]

	b = bytes.TrimPrefix(b, []byte("goroutine "))
	if i := bytes.IndexByte(b, ' '); i >= 0 {
		b = b[:i]
	}

	id, err := strconv.ParseUint(string(b), 10, 64)
	if err != nil {
		return 0
	}
	return id
}
