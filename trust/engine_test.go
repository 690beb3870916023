package trust

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestCompute_EmptyHistoryIsBaseline(t *testing.T) {
	assert.Equal(t, 50, Compute(History{}))
}

func TestCompute_Examples(t *testing.T) {
	cases := []struct {
		name string
		h    History
		want int
	}{
		{"steady renter", History{CompletedBookings: 4}, 70},
		{"one late return", History{CompletedBookings: 2, LateReturns: 1}, 50},
		{"major damage", History{CompletedBookings: 1, MajorDamageDisputes: 2}, 25},
		{"capped high", History{CompletedBookings: 30}, 100},
		{"floored low", History{LateReturns: 4, MajorDamageDisputes: 3}, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Compute(tc.h))
		})
	}
}

func TestCompute_AlwaysBounded(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		h := History{
			CompletedBookings:   rapid.IntRange(0, 1000).Draw(t, "completed"),
			LateReturns:         rapid.IntRange(0, 1000).Draw(t, "late"),
			MajorDamageDisputes: rapid.IntRange(0, 1000).Draw(t, "major"),
		}
		score := Compute(h)
		if score < 0 || score > 100 {
			t.Fatalf("score %d out of [0,100] for %+v", score, h)
		}
	})
}

func TestEngine_RecomputePersists(t *testing.T) {
	repo := &fakeTrustRepo{history: History{CompletedBookings: 3, LateReturns: 1}}
	engine := NewEngine(repo)

	score, err := engine.Recompute(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, 55, score)
	assert.Equal(t, 55, repo.saved["user-1"])
}

type fakeTrustRepo struct {
	history History
	saved   map[string]int
}

func (f *fakeTrustRepo) LoadHistory(_ context.Context, _ string) (History, error) {
	return f.history, nil
}

func (f *fakeTrustRepo) SaveScore(_ context.Context, userID string, score int) error {
	if f.saved == nil {
		f.saved = make(map[string]int)
	}
	f.saved[userID] = score
	return nil
}

func (f *fakeTrustRepo) GetScore(_ context.Context, userID string) (int, error) {
	return f.saved[userID], nil
}
