// Package abuse implements the coarse, IP-level flood gate that runs before
// per-caller rate limiting. It keeps a sliding-window request count per
// source IP and places an IP on a temporary blocklist once the count exceeds
// a configured threshold within one window.
//
// The response is deliberately binary (blocked or not): the detector's job is
// to stop floods, including single-IP abuse spread across many forged caller
// identifiers; shaping normal traffic is the ratelimit package's job.
package abuse

import (
	"math"
	"sync"
	"time"
)

// ipRecord is the per-IP sliding-window state. All access happens under the
// detector mutex.
type ipRecord struct {
	count        int
	windowStart  time.Time
	blocked      bool
	blockedUntil time.Time
	lastSeen     time.Time
}

// Detector is a sliding-window abuse detector keyed by source IP.
//
// This type is safe for concurrent use.
type Detector struct {
	mu      sync.Mutex
	records map[string]*ipRecord

	threshold     int
	window        time.Duration
	blockDuration time.Duration

	// now is a seam for tests; defaults to time.Now.
	now func() time.Time

	done      chan struct{}
	closeOnce sync.Once
}

// New constructs a Detector that blocks an IP for blockDuration once it makes
// more than threshold requests within one window.
func New(threshold int, window, blockDuration time.Duration) *Detector {
	return &Detector{
		records:       make(map[string]*ipRecord),
		threshold:     threshold,
		window:        window,
		blockDuration: blockDuration,
		now:           time.Now,
		done:          make(chan struct{}),
	}
}

// IsAbusive records one request from ip and reports whether the IP is
// currently blocked.
//
// Behavior per call:
//   - unseen IP: create a record with count 1, report false.
//   - blocked IP whose block expired: unblock, reset the window, report false.
//     A record is treated as unblocked the moment now reaches blockedUntil,
//     before any physical cleanup.
//   - blocked IP still within the block: report true without counting.
//   - expired window: reset count to 1, report false.
//   - otherwise: increment; when the count exceeds the threshold, block the
//     IP until now + blockDuration and report true.
func (d *Detector) IsAbusive(ip string) bool {
	now := d.now()

	d.mu.Lock()
	defer d.mu.Unlock()

	rec, ok := d.records[ip]
	if !ok {
		d.records[ip] = &ipRecord{count: 1, windowStart: now, lastSeen: now}
		return false
	}
	rec.lastSeen = now

	if rec.blocked {
		if now.Before(rec.blockedUntil) {
			return true
		}
		// Block expired: start a fresh window.
		rec.blocked = false
		rec.blockedUntil = time.Time{}
		rec.count = 1
		rec.windowStart = now
		return false
	}

	if now.Sub(rec.windowStart) > d.window {
		rec.count = 1
		rec.windowStart = now
		return false
	}

	rec.count++
	if rec.count > d.threshold {
		rec.blocked = true
		rec.blockedUntil = now.Add(d.blockDuration)
		return true
	}
	return false
}

// RetryAfter returns the whole seconds until ip is unblocked, rounded up.
// It returns 0 when the IP is not currently blocked. The HTTP layer uses
// this to derive the Retry-After header on 429 responses.
func (d *Detector) RetryAfter(ip string) int {
	now := d.now()

	d.mu.Lock()
	defer d.mu.Unlock()

	rec, ok := d.records[ip]
	if !ok || !rec.blocked || !now.Before(rec.blockedUntil) {
		return 0
	}
	return int(math.Ceil(rec.blockedUntil.Sub(now).Seconds()))
}

// Len reports the number of tracked IPs. Intended for tests and metrics.
func (d *Detector) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.records)
}

// StartSweeper launches a background goroutine that drops records untouched
// for idleTTL or longer, every interval. The goroutine exits when Close is
// called and does not keep the process alive on its own.
func (d *Detector) StartSweeper(interval, idleTTL time.Duration) {
	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				d.sweep(idleTTL)
			case <-d.done:
				return
			}
		}
	}()
}

// sweep removes records idle for ttl or longer. Blocked records whose block
// has not expired are kept regardless of idleness.
func (d *Detector) sweep(ttl time.Duration) {
	now := d.now()
	d.mu.Lock()
	for ip, rec := range d.records {
		if rec.blocked && now.Before(rec.blockedUntil) {
			continue
		}
		if now.Sub(rec.lastSeen) >= ttl {
			delete(d.records, ip)
		}
	}
	d.mu.Unlock()
}

// Close stops the sweeper goroutine. Safe to call more than once.
func (d *Detector) Close() {
	d.closeOnce.Do(func() { close(d.done) })
}
