package session

import (
	"sync/atomic"
	"time"
)

var lastMillis int64

// nextMillis returns the current epoch millis, nudged forward when two
// calls land in the same millisecond so created/createdAt values order
// deterministically.
func nextMillis() int64 {
	for {
		now := time.Now().UnixMilli()
		last := atomic.LoadInt64(&lastMillis)
		if now <= last {
			now = last + 1
		}
		if atomic.CompareAndSwapInt64(&lastMillis, last, now) {
			return now
		}
	}
}
