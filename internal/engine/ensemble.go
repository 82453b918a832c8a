package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/the-alphabet-cartel/ash-nlp/internal/domain"
	"github.com/the-alphabet-cartel/ash-nlp/internal/logger"
)

// Member is one configured ensemble classifier with its aggregation weight.
type Member struct {
	Classifier Classifier
	Weight     float64
}

// VoteOutcome is the result of one ensemble fan-out. Failed members are
// excluded from Votes and recorded in Failures; they are never counted as
// zero scores.
type VoteOutcome struct {
	Votes    []domain.ModelVote
	Failures []domain.ModelFailure
	Degraded bool
	Warnings []string
}

// Ensemble invokes every configured classifier concurrently and normalizes
// their raw outputs into votes.
type Ensemble struct {
	members []Member
	log     logger.Logger
}

// NewEnsemble creates an ensemble over the given members.
func NewEnsemble(members []Member, log logger.Logger) *Ensemble {
	if log == nil {
		log = logger.Nop()
	}
	return &Ensemble{members: members, log: log}
}

// Size returns the number of configured members.
func (e *Ensemble) Size() int { return len(e.members) }

// Member returns the classifier with the given id, if configured.
func (e *Ensemble) Member(id string) (Classifier, bool) {
	for _, m := range e.members {
		if m.Classifier.ModelID() == id {
			return m.Classifier, true
		}
	}
	return nil, false
}

// First returns the first configured classifier.
func (e *Ensemble) First() Classifier {
	if len(e.members) == 0 {
		return nil
	}
	return e.members[0].Classifier
}

// Vote fans out to every member in parallel, applying the per-invocation
// timeout uniformly. A timed-out or failed member is excluded, not zeroed.
// Fewer successes than minQuorum (0 means a majority of configured members)
// marks the outcome degraded; the analysis still completes.
func (e *Ensemble) Vote(ctx context.Context, text string, labels []string, timeout time.Duration, minQuorum int) VoteOutcome {
	results := make([]memberResult, len(e.members))
	var wg sync.WaitGroup
	for i, member := range e.members {
		wg.Add(1)
		go func(idx int, m Member) {
			defer wg.Done()
			callCtx := ctx
			if timeout > 0 {
				var cancel context.CancelFunc
				callCtx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}
			results[idx] = e.invoke(callCtx, m, text, labels)
		}(i, member)
	}
	wg.Wait()

	outcome := VoteOutcome{}
	for _, r := range results {
		if r.vote != nil {
			outcome.Votes = append(outcome.Votes, *r.vote)
		}
		if r.failure != nil {
			outcome.Failures = append(outcome.Failures, *r.failure)
		}
		if r.warning != "" {
			outcome.Warnings = append(outcome.Warnings, r.warning)
		}
	}

	quorum := minQuorum
	if quorum <= 0 {
		quorum = len(e.members)/2 + 1
	}
	outcome.Degraded = len(outcome.Votes) < quorum
	if outcome.Degraded {
		e.log.Warn("ensemble below quorum",
			logger.Int("succeeded", len(outcome.Votes)),
			logger.Int("quorum", quorum),
			logger.Int("configured", len(e.members)))
	}
	return outcome
}

type memberResult struct {
	vote    *domain.ModelVote
	failure *domain.ModelFailure
	warning string
}

func (e *Ensemble) invoke(ctx context.Context, m Member, text string, labels []string) (res memberResult) {
	modelID := m.Classifier.ModelID()

	scores, err := m.Classifier.Classify(ctx, text, labels)
	if err != nil {
		reason := failureReason(err)
		e.log.Warn("classifier excluded from vote",
			logger.String("model_id", modelID),
			logger.String("reason", reason),
			logger.Error(err))
		res.failure = &domain.ModelFailure{ModelID: modelID, Reason: reason}
		return res
	}

	label, score, ok := topLabel(scores)
	if !ok {
		e.log.Warn("classifier returned no labels", logger.String("model_id", modelID))
		res.failure = &domain.ModelFailure{ModelID: modelID, Reason: "invalid_response"}
		return res
	}

	// Out-of-range scores are clamped, warned about, and kept: a malformed
	// magnitude is recoverable, a missing vote is not.
	if score < 0 || score > 1 {
		res.warning = fmt.Sprintf("model %s returned score %.3f outside [0,1], clamped", modelID, score)
		score = clamp01(score)
	}

	res.vote = &domain.ModelVote{
		ModelID: modelID,
		Label:   label,
		Score:   score,
		Weight:  m.Weight,
	}
	return res
}

// failureReason maps a classifier error onto the diagnostics taxonomy.
func failureReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrClassifierTimeout), errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, domain.ErrClassifierInvalidResponse):
		return "invalid_response"
	default:
		return "unavailable"
	}
}

// topLabel picks the highest-scoring label deterministically, breaking score
// ties lexicographically.
func topLabel(scores map[string]float64) (string, float64, bool) {
	var (
		best      string
		bestScore float64
		found     bool
	)
	for label, score := range scores {
		if !found || score > bestScore || (score == bestScore && label < best) {
			best, bestScore, found = label, score, true
		}
	}
	return best, bestScore, found
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
