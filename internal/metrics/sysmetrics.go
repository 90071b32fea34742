package metrics

import (
	"runtime"
	"sync"
	"syscall"
	"time"
)

// cpuTracker computes process CPU usage from getrusage deltas between calls.
type cpuTracker struct {
	mu       sync.Mutex
	lastWall time.Time
	lastUser time.Duration
	lastSys  time.Duration
	lastPct  float64
}

func newCPUTracker() *cpuTracker {
	user, sys := getrusageTimes()
	return &cpuTracker{
		lastWall: time.Now(),
		lastUser: user,
		lastSys:  sys,
	}
}

// Percent returns the process CPU usage as a percentage (0-100+) since the
// previous call. Multi-core processes can exceed 100%.
func (c *cpuTracker) Percent() float64 {
	now := time.Now()
	user, sys := getrusageTimes()

	c.mu.Lock()
	defer c.mu.Unlock()

	wall := now.Sub(c.lastWall)
	if wall <= 0 {
		return c.lastPct
	}

	cpuDelta := (user - c.lastUser) + (sys - c.lastSys)
	pct := float64(cpuDelta) / float64(wall) * 100.0

	c.lastWall = now
	c.lastUser = user
	c.lastSys = sys
	c.lastPct = pct

	return pct
}

// memoryInuse returns the memory actively in use by the Go runtime, in
// bytes: HeapInuse (live heap spans) plus StackInuse (goroutine stacks).
func memoryInuse() int64 {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return int64(m.HeapInuse + m.StackInuse)
}

func getrusageTimes() (user, sys time.Duration) {
	var rusage syscall.Rusage
	if err := syscall.Getrusage(syscall.RUSAGE_SELF, &rusage); err != nil {
		return 0, 0
	}
	user = time.Duration(rusage.Utime.Nano())
	sys = time.Duration(rusage.Stime.Nano())
	return user, sys
}
