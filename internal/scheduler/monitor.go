package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/sophiahq/sophia/internal/clients"
	"github.com/sophiahq/sophia/internal/events"
	"github.com/sophiahq/sophia/internal/log"
	"github.com/sophiahq/sophia/internal/pubsub"
	"github.com/sophiahq/sophia/internal/store"
)

const (
	// DefaultStaleScanInterval is how often the monitor sweeps the review
	// queue.
	DefaultStaleScanInterval = 30 * time.Minute

	// DefaultStaleThreshold is how long a draft may sit in review before
	// it counts as stale.
	DefaultStaleThreshold = 4 * time.Hour

	// renotifyAfter spaces out repeat alerts for a draft that stays
	// stale.
	renotifyAfter = 24 * time.Hour
)

// StaleMonitor flags drafts that have waited too long in review. It
// only observes and announces; it never mutates a draft.
type StaleMonitor struct {
	store   *store.Store
	clients clients.Repository
	bus     *pubsub.Broker[events.Event]

	scanInterval time.Duration
	threshold    time.Duration
	now          func() time.Time

	mu       sync.Mutex
	notified map[string]time.Time
}

// NewStaleMonitor creates the monitor. A non-positive threshold falls
// back to DefaultStaleThreshold.
func NewStaleMonitor(st *store.Store, cl clients.Repository, bus *pubsub.Broker[events.Event], threshold time.Duration) *StaleMonitor {
	if threshold <= 0 {
		threshold = DefaultStaleThreshold
	}
	return &StaleMonitor{
		store:        st,
		clients:      cl,
		bus:          bus,
		scanInterval: DefaultStaleScanInterval,
		threshold:    threshold,
		now:          time.Now,
		notified:     make(map[string]time.Time),
	}
}

// Run sweeps until ctx is cancelled. The first sweep happens immediately
// so a restart re-surfaces anything already stale.
func (m *StaleMonitor) Run(ctx context.Context) {
	m.sweep()
	ticker := time.NewTicker(m.scanInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.sweep()
		}
	}
}

func (m *StaleMonitor) sweep() {
	now := m.now().UTC()
	stale, err := m.store.ListDrafts(store.DraftFilter{
		InReviewBefore: now.Add(-m.threshold),
	})
	if err != nil {
		log.ErrorErr(log.CatSched, "Stale sweep failed", err)
		return
	}

	for _, d := range stale {
		if !m.shouldNotify(d.ID, now) {
			continue
		}
		clientName := d.ClientID
		if c, err := m.clients.Get(d.ClientID); err == nil {
			clientName = c.Name
		}
		hours := now.Sub(d.UpdatedAt).Hours()
		m.bus.Publish(events.New(events.ContentStale, events.ContentStalePayload{
			DraftID:    d.ID,
			ClientID:   d.ClientID,
			ClientName: clientName,
			HoursStale: hours,
		}))
		log.Warn(log.CatSched, "Draft stale in review", "draft", d.ID,
			"client", d.ClientID, "hours", hours)
	}
}

func (m *StaleMonitor) shouldNotify(draftID string, now time.Time) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if last, ok := m.notified[draftID]; ok && now.Sub(last) < renotifyAfter {
		return false
	}
	m.notified[draftID] = now
	return true
}
