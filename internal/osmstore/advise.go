package osmstore

import (
	"golang.org/x/sys/unix"
)

// advise issues the WILLNEED|SEQUENTIAL readahead hints from a detached
// goroutine so the opening thread never blocks on them.
func advise(b []byte) {
	go func() {
		if len(b) == 0 {
			return
		}
		// best-effort; a refused hint costs nothing
		_ = unix.Madvise(b, unix.MADV_WILLNEED)
		_ = unix.Madvise(b, unix.MADV_SEQUENTIAL)
	}()
}
