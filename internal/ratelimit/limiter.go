// Package ratelimit tracks per-platform publish quotas with a sliding
// window. State is process-local and rebuilt from recent publish records
// on startup so a restart never over-permits.
package ratelimit

import (
	"sync"
	"time"

	"github.com/sophiahq/sophia/internal/domain/draft"
	"github.com/sophiahq/sophia/internal/log"
)

// Quota is one platform's window and limit.
type Quota struct {
	Window time.Duration
	Limit  int
}

// DefaultQuotas are the platform API budgets.
var DefaultQuotas = map[draft.Platform]Quota{
	draft.PlatformFacebook:  {Window: time.Hour, Limit: 200},
	draft.PlatformInstagram: {Window: 24 * time.Hour, Limit: 25},
}

// platformWindow is one platform's recorded dispatch timestamps, guarded
// by its own mutex so platforms never contend with each other.
type platformWindow struct {
	mu    sync.Mutex
	quota Quota
	times []time.Time
}

// Limiter answers "may we publish on this platform right now".
type Limiter struct {
	windows map[draft.Platform]*platformWindow
	now     func() time.Time
}

// New creates a limiter with the given quotas (nil means DefaultQuotas).
func New(quotas map[draft.Platform]Quota) *Limiter {
	if quotas == nil {
		quotas = DefaultQuotas
	}
	l := &Limiter{
		windows: make(map[draft.Platform]*platformWindow, len(quotas)),
		now:     time.Now,
	}
	for p, q := range quotas {
		l.windows[p] = &platformWindow{quota: q}
	}
	return l
}

// NewWithClock creates a limiter with an injectable clock. Tests use this
// to step through window boundaries deterministically.
func NewWithClock(quotas map[draft.Platform]Quota, now func() time.Time) *Limiter {
	l := New(quotas)
	l.now = now
	return l
}

// prune drops timestamps older than the window. Caller holds w.mu.
func (w *platformWindow) prune(now time.Time) {
	cutoff := now.Add(-w.quota.Window)
	i := 0
	for i < len(w.times) && !w.times[i].After(cutoff) {
		i++
	}
	if i > 0 {
		w.times = append(w.times[:0], w.times[i:]...)
	}
}

// CanPublish reports whether the platform's window admits one more call.
// Unknown platforms are unconstrained.
func (l *Limiter) CanPublish(platform draft.Platform) bool {
	w, ok := l.windows[platform]
	if !ok {
		return true
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.prune(l.now())
	return len(w.times) < w.quota.Limit
}

// NextAvailable returns the earliest future instant at which the window
// would admit one more call. If the window already admits one, it returns
// the current time.
func (l *Limiter) NextAvailable(platform draft.Platform) time.Time {
	w, ok := l.windows[platform]
	if !ok {
		return l.now()
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	now := l.now()
	w.prune(now)
	if len(w.times) < w.quota.Limit {
		return now
	}
	// The oldest in-window timestamp ages out first; one slot opens the
	// moment it leaves the window.
	return w.times[len(w.times)-w.quota.Limit].Add(w.quota.Window)
}

// Record notes one successful dispatch at the current time.
func (l *Limiter) Record(platform draft.Platform) {
	l.RecordAt(platform, l.now())
}

// RecordAt notes one successful dispatch at the given time. Timestamps
// must be recorded in non-decreasing order.
func (l *Limiter) RecordAt(platform draft.Platform, at time.Time) {
	w, ok := l.windows[platform]
	if !ok {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.times = append(w.times, at)
	w.prune(l.now())
}

// Recorded returns how many dispatches are currently inside the window.
func (l *Limiter) Recorded(platform draft.Platform) int {
	w, ok := l.windows[platform]
	if !ok {
		return 0
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.prune(l.now())
	return len(w.times)
}

// PublishTimeSource yields recent publish timestamps for a platform. The
// store implements this over queue_entries.published_at.
type PublishTimeSource interface {
	RecentPublishTimes(platform draft.Platform, since time.Time) ([]time.Time, error)
}

// Rebuild reloads each platform's window from persisted publish records.
// Called once at process start, before the scheduler begins firing.
func (l *Limiter) Rebuild(src PublishTimeSource) error {
	now := l.now()
	for platform, w := range l.windows {
		times, err := src.RecentPublishTimes(platform, now.Add(-w.quota.Window))
		if err != nil {
			return err
		}
		w.mu.Lock()
		w.times = times
		w.prune(now)
		count := len(w.times)
		w.mu.Unlock()
		log.Info(log.CatRateLimit, "Rebuilt window", "platform", platform, "recorded", count)
	}
	return nil
}
