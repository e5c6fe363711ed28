// Package assign selects the responsible member(s) for an occurrence.
//
// Fixed mode returns the configured member list verbatim. Random mode makes
// one weighted draw from the eligible pool, biased toward members with fewer
// historical successful assignments. Fairness is statistical over many
// occurrences, not strict round-robin, so short-run variance is expected.
package assign

import (
	"math/rand"
	"sync"
	"time"

	"taskrota/internal/core"
)

// DefaultWindow is the trailing number of execution records considered for
// fairness weighting.
const DefaultWindow = 50

type Resolver struct {
	mu     sync.Mutex
	rng    *rand.Rand
	window int
}

type Option func(*Resolver)

// WithRand injects a deterministic source; used by tests and simulations.
func WithRand(rng *rand.Rand) Option {
	return func(r *Resolver) { r.rng = rng }
}

// WithWindow overrides the trailing history window (records, not days).
func WithWindow(n int) Option {
	return func(r *Resolver) {
		if n > 0 {
			r.window = n
		}
	}
}

func New(opts ...Option) *Resolver {
	r := &Resolver{
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
		window: DefaultWindow,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Window returns the configured trailing history window.
func (r *Resolver) Window() int { return r.window }

// Assign picks the responsible member ids for one occurrence of st.
//
// members is the group's current active membership; history is the
// schedule's execution history, most recent first (a longer slice than the
// window is fine, extra records are ignored).
//
// Returns core.ErrNoEligibleMembers when the candidate pool is empty.
func (r *Resolver) Assign(st *core.ScheduledTask, members []core.Member, history []core.ExecutionRecord) ([]string, error) {
	switch st.AssignmentMode {
	case core.AssignFixed:
		if len(st.FixedMembers) == 0 {
			return nil, core.ErrNoEligibleMembers
		}
		return append([]string(nil), st.FixedMembers...), nil

	case core.AssignRandom:
		pool := eligible(members, st.ExcludedMembers)
		if len(pool) == 0 {
			return nil, core.ErrNoEligibleMembers
		}
		picked := r.draw(pool, successCounts(history, r.window))
		return []string{picked}, nil

	default:
		return nil, core.ErrNoEligibleMembers
	}
}

func eligible(members []core.Member, excluded []string) []string {
	skip := make(map[string]bool, len(excluded))
	for _, id := range excluded {
		skip[id] = true
	}
	out := make([]string, 0, len(members))
	for _, m := range members {
		if m.IsActive && !skip[m.ID] {
			out = append(out, m.ID)
		}
	}
	return out
}

// successCounts tallies successful assignments per member over the trailing
// window of records.
func successCounts(history []core.ExecutionRecord, window int) map[string]int {
	if window > 0 && len(history) > window {
		history = history[:window]
	}
	counts := make(map[string]int)
	for _, rec := range history {
		if rec.Status == core.ExecutionSuccess && rec.AssignedMemberID != "" {
			counts[rec.AssignedMemberID]++
		}
	}
	return counts
}

// draw makes a single weighted random pick. Each candidate's weight is
// 1/(1+successes), so never-assigned members carry maximal weight.
func (r *Resolver) draw(pool []string, counts map[string]int) string {
	weights := make([]float64, len(pool))
	total := 0.0
	for i, id := range pool {
		w := 1.0 / float64(1+counts[id])
		weights[i] = w
		total += w
	}

	r.mu.Lock()
	x := r.rng.Float64() * total
	r.mu.Unlock()

	for i, w := range weights {
		x -= w
		if x < 0 {
			return pool[i]
		}
	}
	// Float rounding can leave x at exactly 0 after the loop.
	return pool[len(pool)-1]
}
