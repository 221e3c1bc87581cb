// Package scheduler runs bot-produced work items with bounded parallelism.
// Two items run at the same time only when their pairwise concurrency
// predicates allow it, which gives sequential semantics per pull request,
// per mailing list and per repository while keeping cross-entity work
// parallel.
package scheduler

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// WorkItem is one unit of bot work.
type WorkItem interface {
	// ID names the item for logging.
	ID() string

	// ConcurrentWith reports whether the item may run at the same time as
	// other. The scheduler checks the predicate in both directions.
	ConcurrentWith(other WorkItem) bool

	// Run executes the item with a private scratch directory and returns
	// follow-up items to run ahead of the next periodic cycle.
	Run(ctx context.Context, scratch string) ([]WorkItem, error)

	// HandleError is invoked on an uncaught failure. The item stays
	// eligible for the next cycle.
	HandleError(err error)
}

// Bot produces periodic work items.
type Bot interface {
	Name() string
	ProducePeriodicItems(ctx context.Context) ([]WorkItem, error)
}

// Config sizes the scheduler.
type Config struct {
	Workers     int
	Period      time.Duration
	ScratchRoot string
}

// Scheduler drives a set of bots.
type Scheduler struct {
	cfg  Config
	bots []Bot
	log  *logrus.Logger

	mu      sync.Mutex
	cond    *sync.Cond
	queue   []WorkItem
	running []WorkItem
	stopped bool
}

// New constructs a scheduler.
func New(cfg Config, log *logrus.Logger, bots ...Bot) *Scheduler {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.Period <= 0 {
		cfg.Period = time.Minute
	}
	s := &Scheduler{cfg: cfg, bots: bots, log: log}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Run produces and executes items until ctx is cancelled. In-flight items
// run to completion before Run returns.
func (s *Scheduler) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for i := 0; i < s.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.worker(ctx)
		}()
	}

	s.produce(ctx)
	ticker := time.NewTicker(s.cfg.Period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.mu.Lock()
			s.stopped = true
			s.queue = nil
			s.mu.Unlock()
			s.cond.Broadcast()
			wg.Wait()
			return ctx.Err()
		case <-ticker.C:
			s.produce(ctx)
		}
	}
}

func (s *Scheduler) produce(ctx context.Context) {
	for _, bot := range s.bots {
		items, err := bot.ProducePeriodicItems(ctx)
		if err != nil {
			s.log.WithField("bot", bot.Name()).WithError(err).Warn("bot declined to produce items")
			continue
		}
		s.enqueue(items, false)
	}
}

func (s *Scheduler) enqueue(items []WorkItem, front bool) {
	if len(items) == 0 {
		return
	}
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	if front {
		s.queue = append(append([]WorkItem{}, items...), s.queue...)
	} else {
		s.queue = append(s.queue, items...)
	}
	s.mu.Unlock()
	s.cond.Broadcast()
}

func (s *Scheduler) worker(ctx context.Context) {
	for {
		item := s.next()
		if item == nil {
			return
		}
		s.runOne(ctx, item)
	}
}

// next blocks until an admissible item is available, claims it, and returns
// it. It returns nil once the scheduler stops.
func (s *Scheduler) next() WorkItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	for {
		if s.stopped {
			return nil
		}
		for i, item := range s.queue {
			if s.admissible(item) {
				s.queue = append(s.queue[:i], s.queue[i+1:]...)
				s.running = append(s.running, item)
				return item
			}
		}
		s.cond.Wait()
	}
}

func (s *Scheduler) admissible(item WorkItem) bool {
	for _, other := range s.running {
		if !item.ConcurrentWith(other) || !other.ConcurrentWith(item) {
			return false
		}
	}
	return true
}

func (s *Scheduler) runOne(ctx context.Context, item WorkItem) {
	defer s.release(item)

	scratch := filepath.Join(s.cfg.ScratchRoot, uuid.NewString())
	if err := os.MkdirAll(scratch, 0o755); err != nil {
		item.HandleError(fmt.Errorf("scratch dir: %w", err))
		return
	}
	defer os.RemoveAll(scratch)

	followUps, err := item.Run(ctx, scratch)
	if err != nil {
		s.log.WithField("workitem", item.ID()).WithError(err).Error("work item failed")
		item.HandleError(err)
		return
	}
	s.enqueue(followUps, true)
}

func (s *Scheduler) release(item WorkItem) {
	s.mu.Lock()
	for i, other := range s.running {
		if other == item {
			s.running = append(s.running[:i], s.running[i+1:]...)
			break
		}
	}
	s.mu.Unlock()
	s.cond.Broadcast()
}
