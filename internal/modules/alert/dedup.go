package alert

import (
	"sync"
	"time"
)

// dedupWindow remembers keys for ttl. A zero ttl disables it.
type dedupWindow struct {
	mu      sync.Mutex
	ttl     time.Duration
	seen    map[string]time.Time
	inserts int
	now     func() time.Time
}

func newDedupWindow(ttl time.Duration) *dedupWindow {
	return &dedupWindow{ttl: ttl, seen: make(map[string]time.Time), now: time.Now}
}

// observe records key and reports whether it was already present and unexpired.
func (d *dedupWindow) observe(key string) bool {
	if d.ttl <= 0 {
		return false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	now := d.now()
	if at, ok := d.seen[key]; ok && now.Sub(at) < d.ttl {
		return true
	}
	d.seen[key] = now
	d.inserts++
	if d.inserts%256 == 0 {
		for k, at := range d.seen {
			if now.Sub(at) >= d.ttl {
				delete(d.seen, k)
			}
		}
	}
	return false
}

func (d *dedupWindow) size() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}
