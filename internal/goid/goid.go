// Package goid extracts the calling goroutine's runtime ID, used by looper to
// enforce thread affinity without any cooperation from the caller. Go exposes
// no supported API for this; parsing the "goroutine N [...]" header that
// runtime.Stack always writes first is the standard workaround.
package goid

import "runtime"

// Get returns the current goroutine's runtime-assigned ID.
func Get() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	var id uint64
	for i := len("goroutine "); i < n; i++ {
		if buf[i] >= '0' && buf[i] <= '9' {
			id = id*10 + uint64(buf[i]-'0')
		} else {
			break
		}
	}
	return id
}
