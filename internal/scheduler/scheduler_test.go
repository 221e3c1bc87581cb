package scheduler_test

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bkyoung/review-bridge/internal/scheduler"
)

type testItem struct {
	id   string
	key  string
	run  func(ctx context.Context, scratch string) ([]scheduler.WorkItem, error)
	errs []error
	mu   sync.Mutex
}

func (i *testItem) ID() string { return i.id }

func (i *testItem) ConcurrentWith(other scheduler.WorkItem) bool {
	o, ok := other.(*testItem)
	if !ok {
		return true
	}
	return i.key != o.key
}

func (i *testItem) Run(ctx context.Context, scratch string) ([]scheduler.WorkItem, error) {
	if i.run == nil {
		return nil, nil
	}
	return i.run(ctx, scratch)
}

func (i *testItem) HandleError(err error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.errs = append(i.errs, err)
}

type onceBot struct {
	name  string
	items []scheduler.WorkItem
	done  atomic.Bool
}

func (b *onceBot) Name() string { return b.name }

func (b *onceBot) ProducePeriodicItems(ctx context.Context) ([]scheduler.WorkItem, error) {
	if b.done.Swap(true) {
		return nil, nil
	}
	return b.items, nil
}

func runScheduler(t *testing.T, bots ...scheduler.Bot) {
	t.Helper()
	log := logrus.New()
	log.SetOutput(os.Stderr)
	s := scheduler.New(scheduler.Config{
		Workers:     4,
		Period:      time.Hour,
		ScratchRoot: t.TempDir(),
	}, log, bots...)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := s.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func TestMutualExclusionPerKey(t *testing.T) {
	var active, maxActive int32
	var total atomic.Int32
	done := make(chan struct{})

	run := func(ctx context.Context, scratch string) ([]scheduler.WorkItem, error) {
		n := atomic.AddInt32(&active, 1)
		for {
			m := atomic.LoadInt32(&maxActive)
			if n <= m || atomic.CompareAndSwapInt32(&maxActive, m, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		atomic.AddInt32(&active, -1)
		if total.Add(1) == 4 {
			close(done)
		}
		return nil, nil
	}

	bot := &onceBot{name: "test", items: []scheduler.WorkItem{
		&testItem{id: "a1", key: "pr-1", run: run},
		&testItem{id: "a2", key: "pr-1", run: run},
		&testItem{id: "a3", key: "pr-1", run: run},
		&testItem{id: "a4", key: "pr-1", run: run},
	}}

	ctx, cancel := context.WithCancel(context.Background())
	log := logrus.New()
	s := scheduler.New(scheduler.Config{Workers: 4, Period: time.Hour, ScratchRoot: t.TempDir()}, log, bot)
	go func() {
		<-done
		cancel()
	}()
	err := s.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)

	assert.Equal(t, int32(1), atomic.LoadInt32(&maxActive),
		"items sharing a key must never overlap")
	assert.Equal(t, int32(4), total.Load())
}

func TestFollowUpItemsRun(t *testing.T) {
	var followRan atomic.Bool
	done := make(chan struct{})

	follow := &testItem{id: "follow", key: "b", run: func(ctx context.Context, scratch string) ([]scheduler.WorkItem, error) {
		followRan.Store(true)
		close(done)
		return nil, nil
	}}
	first := &testItem{id: "first", key: "a", run: func(ctx context.Context, scratch string) ([]scheduler.WorkItem, error) {
		return []scheduler.WorkItem{follow}, nil
	}}

	bot := &onceBot{name: "test", items: []scheduler.WorkItem{first}}
	ctx, cancel := context.WithCancel(context.Background())
	s := scheduler.New(scheduler.Config{Workers: 2, Period: time.Hour, ScratchRoot: t.TempDir()}, logrus.New(), bot)
	go func() {
		<-done
		cancel()
	}()
	err := s.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.True(t, followRan.Load())
}

func TestFailureInvokesHandlerAndDoesNotPoison(t *testing.T) {
	boom := errors.New("boom")
	done := make(chan struct{})

	failing := &testItem{id: "fail", key: "a", run: func(ctx context.Context, scratch string) ([]scheduler.WorkItem, error) {
		return nil, boom
	}}
	ok := &testItem{id: "ok", key: "b", run: func(ctx context.Context, scratch string) ([]scheduler.WorkItem, error) {
		close(done)
		return nil, nil
	}}

	bot := &onceBot{name: "test", items: []scheduler.WorkItem{failing, ok}}
	ctx, cancel := context.WithCancel(context.Background())
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	s := scheduler.New(scheduler.Config{Workers: 1, Period: time.Hour, ScratchRoot: t.TempDir()}, log, bot)
	go func() {
		<-done
		cancel()
	}()
	err := s.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)

	failing.mu.Lock()
	defer failing.mu.Unlock()
	require.Len(t, failing.errs, 1)
	assert.ErrorIs(t, failing.errs[0], boom)
}

func TestScratchDirIsPrivateAndRemoved(t *testing.T) {
	root := t.TempDir()
	var scratchPath string
	done := make(chan struct{})

	item := &testItem{id: "scratch", key: "a", run: func(ctx context.Context, scratch string) ([]scheduler.WorkItem, error) {
		scratchPath = scratch
		info, err := os.Stat(scratch)
		require.NoError(t, err)
		require.True(t, info.IsDir())
		close(done)
		return nil, nil
	}}

	bot := &onceBot{name: "test", items: []scheduler.WorkItem{item}}
	ctx, cancel := context.WithCancel(context.Background())
	s := scheduler.New(scheduler.Config{Workers: 1, Period: time.Hour, ScratchRoot: root}, logrus.New(), bot)
	go func() {
		<-done
		cancel()
	}()
	err := s.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)

	_, statErr := os.Stat(scratchPath)
	assert.True(t, os.IsNotExist(statErr), "scratch dir should be removed after the run")
}
