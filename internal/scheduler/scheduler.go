// Package scheduler owns the publish queue's execution: it registers
// fire times for queue entries, scans for due fires, and dispatches them
// through a fixed worker pool. Fire state is mirrored in a bbolt file and
// rebuilt from the content database on startup, so a crash never loses a
// scheduled publish.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/sophiahq/sophia/internal/approval"
	"github.com/sophiahq/sophia/internal/clients"
	"github.com/sophiahq/sophia/internal/domain/draft"
	"github.com/sophiahq/sophia/internal/events"
	"github.com/sophiahq/sophia/internal/log"
	"github.com/sophiahq/sophia/internal/platform"
	"github.com/sophiahq/sophia/internal/pubsub"
	"github.com/sophiahq/sophia/internal/ratelimit"
	"github.com/sophiahq/sophia/internal/store"
)

const (
	// DefaultWorkers is the dispatch pool size.
	DefaultWorkers = 8

	// DefaultScanInterval is how often the loop checks for due fires.
	DefaultScanInterval = 15 * time.Second

	// pauseRetryDelay is how far a fire is pushed when the global pause
	// switch is on. The retry count is not consumed.
	pauseRetryDelay = time.Minute
)

// Config carries the scheduler's knobs.
type Config struct {
	// DBPath is the bbolt fire-store file.
	DBPath string

	Workers      int
	ScanInterval time.Duration

	// DispatchTimeout bounds each platform publish call. Zero falls back
	// to platform.DefaultTimeout.
	DispatchTimeout time.Duration

	// ImageBaseURL is the externally reachable base of the HTTP API;
	// platforms fetch draft images from it.
	ImageBaseURL string
}

// Scheduler runs the publish queue.
type Scheduler struct {
	store    *store.Store
	clients  clients.Repository
	bus      *pubsub.Broker[events.Event]
	limiter  *ratelimit.Limiter
	adapters platform.Registry
	approval *approval.Service
	planner  *CadencePlanner
	fires    *fireStore

	cfg Config
	now func() time.Time

	mu      sync.Mutex
	pending map[string]time.Time

	jobs chan string
	wg   sync.WaitGroup
}

// New creates the scheduler and wires it into the approval service as
// its planner and fire registrar.
func New(cfg Config, st *store.Store, cl clients.Repository, bus *pubsub.Broker[events.Event],
	limiter *ratelimit.Limiter, adapters platform.Registry, ap *approval.Service) (*Scheduler, error) {

	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.ScanInterval <= 0 {
		cfg.ScanInterval = DefaultScanInterval
	}
	if cfg.DispatchTimeout <= 0 {
		cfg.DispatchTimeout = platform.DefaultTimeout
	}

	fires, err := openFireStore(cfg.DBPath)
	if err != nil {
		return nil, err
	}

	s := &Scheduler{
		store:    st,
		clients:  cl,
		bus:      bus,
		limiter:  limiter,
		adapters: adapters,
		approval: ap,
		planner:  NewCadencePlanner(st, cl),
		fires:    fires,
		cfg:      cfg,
		now:      time.Now,
		pending:  make(map[string]time.Time),
		jobs:     make(chan string, cfg.Workers*8),
	}
	ap.AttachScheduler(s.planner, s)
	return s, nil
}

// PlanPublishTime delegates to the cadence planner.
func (s *Scheduler) PlanPublishTime(clientID string, p draft.Platform, requested time.Time) (time.Time, error) {
	return s.planner.PlanPublishTime(clientID, p, requested)
}

// RegisterFire records that entryID should execute at fireAt.
func (s *Scheduler) RegisterFire(entryID string, fireAt time.Time) {
	s.mu.Lock()
	s.pending[entryID] = fireAt.UTC()
	s.mu.Unlock()
	if err := s.fires.put(entryID, fireAt); err != nil {
		// The sqlite queue still holds the entry; rehydration will
		// re-register on restart.
		log.ErrorErr(log.CatSched, "Persist fire failed", err, "entry", entryID)
	}
	log.Debug(log.CatSched, "Fire registered", "entry", entryID, "at", fireAt)
}

// CancelFire forgets a registered fire.
func (s *Scheduler) CancelFire(entryID string) {
	s.mu.Lock()
	delete(s.pending, entryID)
	s.mu.Unlock()
	if err := s.fires.delete(entryID); err != nil {
		log.ErrorErr(log.CatSched, "Delete fire failed", err, "entry", entryID)
	}
}

// Start rehydrates state and launches the workers and the scan loop.
// It returns once startup is complete; Stop shuts everything down.
func (s *Scheduler) Start(ctx context.Context) error {
	if err := s.rehydrate(); err != nil {
		return err
	}
	if err := s.limiter.Rebuild(s.store); err != nil {
		return err
	}

	for i := 0; i < s.cfg.Workers; i++ {
		s.wg.Add(1)
		log.SafeGo("scheduler-worker", func() {
			defer s.wg.Done()
			s.worker(ctx)
		})
	}

	s.wg.Add(1)
	log.SafeGo("scheduler-scan", func() {
		defer s.wg.Done()
		s.scanLoop(ctx)
	})

	log.Info(log.CatSched, "Scheduler started",
		"workers", s.cfg.Workers, "pending", s.pendingCount())
	return nil
}

// Stop waits for in-flight dispatches and closes the fire store. The
// context passed to Start must already be cancelled.
func (s *Scheduler) Stop() {
	s.wg.Wait()
	if err := s.fires.close(); err != nil {
		log.ErrorErr(log.CatSched, "Close fire store failed", err)
	}
}

// rehydrate rebuilds the fire set from the content database and
// reconciles the bbolt mirror. Entries stuck in publishing from a crash
// go back to queued for an immediate retry.
func (s *Scheduler) rehydrate() error {
	stuck, err := s.store.ListQueueEntries(store.QueueFilter{
		Statuses: []draft.QueueStatus{draft.QueuePublishing},
	})
	if err != nil {
		return err
	}
	for _, e := range stuck {
		_, err := s.store.UpdateQueueEntryAtomic(e.ID, store.QueueMutation{
			ExpectStatus: []draft.QueueStatus{draft.QueuePublishing},
			Actor:        draft.ActorPublisher,
			Action:       "requeue_after_restart",
			Apply: func(entry *draft.QueueEntry) error {
				entry.Status = draft.QueueQueued
				return nil
			},
		})
		if err != nil {
			log.ErrorErr(log.CatSched, "Requeue stuck entry failed", err, "entry", e.ID)
		}
	}

	queued, err := s.store.ListQueueEntries(store.QueueFilter{
		Statuses: []draft.QueueStatus{draft.QueueQueued},
	})
	if err != nil {
		return err
	}

	live := make(map[string]struct{}, len(queued))
	s.mu.Lock()
	for _, e := range queued {
		s.pending[e.ID] = e.ScheduledAt.UTC()
		live[e.ID] = struct{}{}
	}
	s.mu.Unlock()

	for _, e := range queued {
		if err := s.fires.put(e.ID, e.ScheduledAt); err != nil {
			return err
		}
	}

	// Drop bbolt records whose entries are gone or no longer queued.
	persisted, err := s.fires.all()
	if err != nil {
		return err
	}
	for id := range persisted {
		if _, ok := live[id]; !ok {
			if err := s.fires.delete(id); err != nil {
				return err
			}
		}
	}

	log.Info(log.CatSched, "Rehydrated queue", "entries", len(queued), "requeued", len(stuck))
	return nil
}

func (s *Scheduler) scanLoop(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.ScanInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.dispatchDue(ctx)
		}
	}
}

// dispatchDue hands every due fire to the worker pool. A fire that can't
// be queued this tick stays registered for the next one.
func (s *Scheduler) dispatchDue(ctx context.Context) {
	now := s.now().UTC()

	s.mu.Lock()
	var due []string
	for id, at := range s.pending {
		if !at.After(now) {
			due = append(due, id)
		}
	}
	s.mu.Unlock()

	for _, id := range due {
		select {
		case s.jobs <- id:
			s.mu.Lock()
			delete(s.pending, id)
			s.mu.Unlock()
		case <-ctx.Done():
			return
		default:
			// Pool saturated; try again next scan.
			return
		}
	}
}

func (s *Scheduler) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case entryID := <-s.jobs:
			s.execute(ctx, entryID)
		}
	}
}

func (s *Scheduler) pendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// PausePublishing flips the persistent global pause switch. Fires keep
// registering and coming due; the executor defers them while paused.
func (s *Scheduler) PausePublishing(by draft.Actor) (*draft.PublishState, error) {
	state, err := s.store.SetPublishState(true, by)
	if err != nil {
		return nil, err
	}
	log.Info(log.CatSched, "Publishing paused", "by", by)
	return state, nil
}

// ResumePublishing clears the global pause switch.
func (s *Scheduler) ResumePublishing(by draft.Actor) (*draft.PublishState, error) {
	state, err := s.store.SetPublishState(false, by)
	if err != nil {
		return nil, err
	}
	log.Info(log.CatSched, "Publishing resumed", "by", by)
	return state, nil
}

// PublishState reads the global pause switch.
func (s *Scheduler) PublishState() (*draft.PublishState, error) {
	return s.store.GetPublishState()
}
