package strategy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corewright/systest/scheduler"
)

func ops(ids ...uint64) []*scheduler.Operation {
	out := make([]*scheduler.Operation, len(ids))
	for i, id := range ids {
		out[i] = scheduler.NewOperation(id, "op")
	}
	return out
}

func TestRandom_DeterministicGivenSeed(t *testing.T) {
	s1 := NewRandom(42, 0)
	s2 := NewRandom(42, 0)
	set := ops(0, 1, 2, 3, 4)

	for i := 0; i < 50; i++ {
		a, okA := s1.NextOperation(set, nil, false)
		b, okB := s2.NextOperation(set, nil, false)
		require.True(t, okA)
		require.True(t, okB)
		assert.Equal(t, a.ID, b.ID)
	}
}

func TestRandom_EmptyOperationsReturnsNoDecision(t *testing.T) {
	s := NewRandom(1, 0)
	_, ok := s.NextOperation(nil, nil, false)
	assert.False(t, ok)
}

func TestRandom_IsFair(t *testing.T) {
	assert.True(t, NewRandom(1, 0).IsFair())
}

func TestProbabilistic_DeterministicGivenSeed(t *testing.T) {
	s1 := NewProbabilistic(7, 3, 0)
	s2 := NewProbabilistic(7, 3, 0)
	set := ops(0, 1, 2)
	for i := 0; i < 30; i++ {
		a, _ := s1.NextOperation(set, nil, false)
		b, _ := s2.NextOperation(set, nil, false)
		assert.Equal(t, a.ID, b.ID)
	}
}

func TestPCT_UnfairByDefault(t *testing.T) {
	p := NewPCT(1, 2, 100)
	assert.False(t, p.IsFair())
}

func TestFairPCT_IsFair(t *testing.T) {
	p := NewFairPCT(1, 2, 100)
	assert.True(t, p.IsFair())
}

func TestPCT_DeterministicGivenSeed(t *testing.T) {
	set := ops(0, 1, 2, 3)
	p1 := NewPCT(99, 3, 50)
	p2 := NewPCT(99, 3, 50)
	for i := 0; i < 40; i++ {
		a, _ := p1.NextOperation(set, nil, false)
		b, _ := p2.NextOperation(set, nil, false)
		assert.Equal(t, a.ID, b.ID)
	}
}

func TestDFS_BacktracksThroughEveryBranch(t *testing.T) {
	d := NewDFS(0)
	set := ops(0, 1)

	// First iteration always takes branch 0 at every choice point.
	op, ok := d.NextOperation(set, nil, false)
	require.True(t, ok)
	assert.Equal(t, uint64(0), op.ID)

	more := d.PrepareNextIteration()
	require.True(t, more)

	// Having replayed the single recorded choice and advanced it, the
	// next iteration must pick the other branch.
	op, ok = d.NextOperation(set, nil, false)
	require.True(t, ok)
	assert.Equal(t, uint64(1), op.ID)

	more = d.PrepareNextIteration()
	assert.False(t, more, "both branches of a single binary choice are now exhausted")
	assert.True(t, d.Done())
}

func TestDFS_IsUnfair(t *testing.T) {
	assert.False(t, NewDFS(0).IsFair())
}

type fakeChecker struct {
	message string
	stuck   bool
}

func (f *fakeChecker) CheckTemperatures(int) (string, bool) { return f.message, f.stuck }

func TestLiveness_FiresOnceWhenCheckerReportsStuck(t *testing.T) {
	inner := NewRandom(1, 0)
	checker := &fakeChecker{message: "monitor M stuck in hot state Working", stuck: true}
	var fired []string
	l := NewLiveness(inner, checker, 200)
	l.OnLivenessFailure = func(msg string) { fired = append(fired, msg) }

	set := ops(0, 1)
	_, _ = l.NextOperation(set, nil, false)
	_, _ = l.NextOperation(set, nil, false)

	require.Len(t, fired, 1, "liveness failure should be reported exactly once per iteration")
	assert.Contains(t, fired[0], "Working")
}

func TestLiveness_ResetsOnNextIteration(t *testing.T) {
	inner := NewRandom(1, 0)
	checker := &fakeChecker{stuck: true}
	count := 0
	l := NewLiveness(inner, checker, 200)
	l.OnLivenessFailure = func(string) { count++ }

	set := ops(0)
	_, _ = l.NextOperation(set, nil, false)
	l.PrepareNextIteration()
	_, _ = l.NextOperation(set, nil, false)

	assert.Equal(t, 2, count)
}

func TestPortfolio_StopsSiblingsOnFirstBug(t *testing.T) {
	p := &Portfolio{Members: []PortfolioMember{
		{Label: "random-1"},
		{Label: "random-2"},
		{Label: "random-3"},
	}}

	results, err := p.Run(context.Background(), func(ctx context.Context, m PortfolioMember) (string, error) {
		if m.Label == "random-2" {
			return "assertion failure: final value = 1", nil
		}
		<-ctx.Done()
		return "", nil
	})
	require.NoError(t, err)

	var bugs int
	for _, r := range results {
		if r.Bug != "" {
			bugs++
		}
	}
	assert.Equal(t, 1, bugs)
}
