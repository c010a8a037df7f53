package server

import (
	"sync"
	"time"
)

// requestRateLimit allows one request per caller every 1/reqPerSecond.
type requestRateLimit struct {
	sync.Mutex
	lastRequest map[string]time.Time
	now         func() time.Time
}

func newRequestRateLimit() *requestRateLimit {
	return &requestRateLimit{lastRequest: make(map[string]time.Time), now: time.Now}
}

func (rlimit *requestRateLimit) CheckAndUpdate(id string, reqPerSecond float64) bool {
	if reqPerSecond <= 0 {
		return true
	}

	rlimit.Lock()
	defer rlimit.Unlock()

	now := rlimit.now()
	minInterval := time.Duration(float64(time.Second) / reqPerSecond)

	if t, ok := rlimit.lastRequest[id]; ok && now.Sub(t) < minInterval {
		return false
	}

	rlimit.lastRequest[id] = now
	rlimit.evict(now, minInterval)
	return true
}

// evict drops callers idle for long enough that they could not be limited anymore.
func (rlimit *requestRateLimit) evict(now time.Time, minInterval time.Duration) {
	if len(rlimit.lastRequest) < 1024 {
		return
	}
	for id, t := range rlimit.lastRequest {
		if now.Sub(t) >= minInterval {
			delete(rlimit.lastRequest, id)
		}
	}
}
