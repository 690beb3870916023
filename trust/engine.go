// Package trust derives a bounded [0,100] reputation score from a user's
// booking outcomes. The score is a persisted projection: it is recomputed
// from the full history after each completion, dispute, or review event, not
// maintained incrementally.
package trust

import "context"

// Scoring weights. A fresh user with no history starts at the baseline.
const (
	Baseline          = 50
	CompletedWeight   = 5
	LateReturnWeight  = 10
	MajorDamageWeight = 15
)

// History aggregates the outcome counts a score is computed from. Major
// damage is counted from the structured RETURN condition assessment only;
// free-text notes are never inspected.
type History struct {
	CompletedBookings   int
	LateReturns         int
	MajorDamageDisputes int
}

// Compute folds a history into a score, clamped to [0,100]. Pure; safe to
// call concurrently.
func Compute(h History) int {
	score := Baseline +
		h.CompletedBookings*CompletedWeight -
		h.LateReturns*LateReturnWeight -
		h.MajorDamageDisputes*MajorDamageWeight
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

// Repository defines the history load and score persistence the engine needs.
type Repository interface {
	LoadHistory(ctx context.Context, userID string) (History, error)
	SaveScore(ctx context.Context, userID string, score int) error
	GetScore(ctx context.Context, userID string) (int, error)
}

// Engine recomputes and persists trust scores.
type Engine struct {
	repo Repository
}

func NewEngine(repo Repository) *Engine {
	return &Engine{repo: repo}
}

// Recompute rebuilds the user's score from their booking history and persists
// it, returning the new value.
func (e *Engine) Recompute(ctx context.Context, userID string) (int, error) {
	history, err := e.repo.LoadHistory(ctx, userID)
	if err != nil {
		return 0, err
	}
	score := Compute(history)
	if err := e.repo.SaveScore(ctx, userID, score); err != nil {
		return 0, err
	}
	return score, nil
}

// GetScore reads the persisted score without recomputation.
func (e *Engine) GetScore(ctx context.Context, userID string) (int, error) {
	return e.repo.GetScore(ctx, userID)
}
