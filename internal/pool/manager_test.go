package pool

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/stock-monitor/internal/stock"
)

type recordingBuilder struct {
	mu        sync.Mutex
	events    []string
	factories []*fakeFactory
	adapter   stock.Adapter
	fail      error
}

func (b *recordingBuilder) build(context.Context) (*Pool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.fail != nil {
		return nil, b.fail
	}
	b.events = append(b.events, "launch")
	factory := &fakeFactory{}
	factory.onClose = func() {
		b.mu.Lock()
		b.events = append(b.events, "close")
		b.mu.Unlock()
	}
	b.factories = append(b.factories, factory)
	return New(Config{Concurrency: 1, TaskTimeout: time.Second}, factory, fakeSelector{adapter: b.adapter})
}

func (b *recordingBuilder) snapshot() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.events...)
}

func okAdapter() *fakeAdapter {
	return &fakeAdapter{fn: func(context.Context, stock.Target) (stock.Result, error) {
		return stock.Result{Title: "ok"}, nil
	}}
}

func TestManagerSubmitBeforeStart(t *testing.T) {
	t.Parallel()

	m := NewManager((&recordingBuilder{adapter: okAdapter()}).build, zap.NewNop())
	_, err := m.Submit(context.Background(), testTarget)
	require.ErrorIs(t, err, ErrPoolUnavailable)
	require.Equal(t, stock.KindPoolSubmission, stock.KindOf(err))
	require.False(t, m.Active())
}

func TestManagerRecycleClosesBeforeLaunch(t *testing.T) {
	t.Parallel()

	builder := &recordingBuilder{adapter: okAdapter()}
	m := NewManager(builder.build, zap.NewNop())
	require.NoError(t, m.Start(context.Background()))
	require.NoError(t, m.Start(context.Background()))
	require.True(t, m.Active())
	require.Equal(t, int64(1), m.Generation())

	result, err := m.Submit(context.Background(), testTarget)
	require.NoError(t, err)
	require.Equal(t, "ok", result.Title)

	require.NoError(t, m.Recycle(context.Background(), 10*time.Millisecond))
	require.Equal(t, []string{"launch", "close", "launch"}, builder.snapshot())
	require.Equal(t, int64(2), m.Generation())
	require.True(t, m.Active())

	_, err = m.Submit(context.Background(), testTarget)
	require.NoError(t, err)

	require.NoError(t, m.Close())
	require.False(t, m.Active())
	_, err = m.Submit(context.Background(), testTarget)
	require.ErrorIs(t, err, ErrPoolClosed)
	require.ErrorIs(t, m.Recycle(context.Background(), 0), ErrPoolClosed)
}

func TestManagerRecycleLaunchFailureLeavesNoPool(t *testing.T) {
	t.Parallel()

	builder := &recordingBuilder{adapter: okAdapter()}
	m := NewManager(builder.build, zap.NewNop())
	require.NoError(t, m.Start(context.Background()))

	builder.mu.Lock()
	builder.fail = errors.New("chrome not found")
	builder.mu.Unlock()

	require.Error(t, m.Recycle(context.Background(), 0))
	require.False(t, m.Active())
	_, err := m.Submit(context.Background(), testTarget)
	require.ErrorIs(t, err, ErrPoolUnavailable)
}

func TestManagerRecycleGraceHonorsContext(t *testing.T) {
	t.Parallel()

	m := NewManager((&recordingBuilder{adapter: okAdapter()}).build, zap.NewNop())
	require.NoError(t, m.Start(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := m.Recycle(ctx, time.Hour)
	require.ErrorIs(t, err, context.Canceled)
	require.False(t, m.Active())
}

func TestManagerSubmissionsDuringRecycleUseNewPool(t *testing.T) {
	t.Parallel()

	builder := &recordingBuilder{adapter: okAdapter()}
	m := NewManager(builder.build, zap.NewNop())
	require.NoError(t, m.Start(context.Background()))

	recycled := make(chan error, 1)
	go func() { recycled <- m.Recycle(context.Background(), 50*time.Millisecond) }()
	require.Eventually(t, func() bool { return !m.Active() }, time.Second, time.Millisecond)

	_, err := m.Submit(context.Background(), testTarget)
	require.NoError(t, err)
	require.NoError(t, <-recycled)

	builder.mu.Lock()
	defer builder.mu.Unlock()
	require.Len(t, builder.factories, 2)
	opened, _, _ := builder.factories[1].counts()
	require.Equal(t, 1, opened)
}

func TestManagerSubmissionOnSwappedPoolMovesToReplacement(t *testing.T) {
	t.Parallel()

	builder := &recordingBuilder{adapter: okAdapter()}
	m := NewManager(builder.build, zap.NewNop())
	require.NoError(t, m.Start(context.Background()))

	m.mu.RLock()
	stale := m.current
	m.mu.RUnlock()
	require.NoError(t, m.Recycle(context.Background(), 0))

	result, err := m.submitOn(context.Background(), stale, testTarget)
	require.NoError(t, err)
	require.Equal(t, "ok", result.Title)

	builder.mu.Lock()
	defer builder.mu.Unlock()
	require.Len(t, builder.factories, 2)
	staleOpened, _, _ := builder.factories[0].counts()
	require.Zero(t, staleOpened)
	opened, _, _ := builder.factories[1].counts()
	require.Equal(t, 1, opened)
}

func TestManagerSubmissionOnClosedManagerIsRejected(t *testing.T) {
	t.Parallel()

	builder := &recordingBuilder{adapter: okAdapter()}
	m := NewManager(builder.build, zap.NewNop())
	require.NoError(t, m.Start(context.Background()))

	m.mu.RLock()
	stale := m.current
	m.mu.RUnlock()
	require.NoError(t, m.Close())

	_, err := m.submitOn(context.Background(), stale, testTarget)
	require.ErrorIs(t, err, ErrPoolClosed)
	require.Equal(t, stock.KindPoolSubmission, stock.KindOf(err))
}
