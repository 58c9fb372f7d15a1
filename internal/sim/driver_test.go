package sim

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"railsim/internal/domain"
)

type recordingStore struct {
	mu      sync.Mutex
	updates int
	risks   []domain.RiskView
}

func (s *recordingStore) Update(trains []*domain.TrainView) []domain.TrainDelta {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates++
	deltas := make([]domain.TrainDelta, 0, len(trains))
	for _, t := range trains {
		deltas = append(deltas, domain.TrainDelta{Type: domain.DeltaUpdate, Train: t, TileID: t.TileID})
	}
	return deltas
}

func (s *recordingStore) SetRisks(risks []domain.RiskView) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.risks = risks
}

type recordingBroadcaster struct {
	mu     sync.Mutex
	deltas int
	clocks []domain.ClockView
}

func (b *recordingBroadcaster) Broadcast(deltas []domain.TrainDelta) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.deltas += len(deltas)
}

func (b *recordingBroadcaster) BroadcastRisks([]domain.RiskView) {}

func (b *recordingBroadcaster) BroadcastClock(clock domain.ClockView) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.clocks = append(b.clocks, clock)
}

type recordingPublisher struct {
	mu   sync.Mutex
	seqs []uint64
}

func (p *recordingPublisher) Publish(_ context.Context, tick Tick) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seqs = append(p.seqs, tick.Seq)
}

func TestDriverStep(t *testing.T) {
	e := testEngine(t, epoch.Add(9*time.Hour), EngineOptions{},
		runTrain("101", "X", "Y", 9*time.Hour-3*time.Minute),
		runTrain("202", "Z", "Y", 9*time.Hour-3*time.Minute),
	)
	st := &recordingStore{}
	bc := &recordingBroadcaster{}
	pub := &recordingPublisher{}

	d := NewDriver(e, st, bc, time.Second, testLogger())
	d.SetPublisher(pub)
	assert.False(t, d.IsReady())

	d.step(context.Background())
	d.step(context.Background())

	assert.True(t, d.IsReady())
	assert.Equal(t, 2, st.updates)
	assert.Equal(t, 4, bc.deltas)
	require.Len(t, bc.clocks, 2)
	assert.Equal(t, uint64(2), bc.clocks[1].Ticks)
	assert.Equal(t, []uint64{1, 2}, pub.seqs)
}

func TestDriverRunStopsOnCancel(t *testing.T) {
	e := testEngine(t, epoch.Add(9*time.Hour), EngineOptions{},
		runTrain("101", "X", "Y", 9*time.Hour-3*time.Minute),
	)
	d := NewDriver(e, &recordingStore{}, nil, 10*time.Millisecond, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		d.Run(ctx)
		close(done)
	}()

	require.Eventually(t, d.IsReady, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("driver did not stop")
	}
	assert.GreaterOrEqual(t, e.State().Clock.Ticks(), uint64(1))
}
