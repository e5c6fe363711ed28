package assign

import (
	"errors"
	"math/rand"
	"testing"

	"taskrota/internal/core"
)

func members(ids ...string) []core.Member {
	out := make([]core.Member, 0, len(ids))
	for _, id := range ids {
		out = append(out, core.Member{ID: id, GroupID: "g1", IsActive: true})
	}
	return out
}

func successes(memberID string, n int) []core.ExecutionRecord {
	out := make([]core.ExecutionRecord, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, core.ExecutionRecord{
			Status:           core.ExecutionSuccess,
			AssignedMemberID: memberID,
		})
	}
	return out
}

func TestFixedModeReturnsListVerbatim(t *testing.T) {
	t.Parallel()
	r := New(WithRand(rand.New(rand.NewSource(1))))
	st := &core.ScheduledTask{
		AssignmentMode: core.AssignFixed,
		FixedMembers:   []string{"alice", "bob"},
	}
	got, err := r.Assign(st, members("alice", "bob", "carol"), nil)
	if err != nil {
		t.Fatalf("Assign: %v", err)
	}
	if len(got) != 2 || got[0] != "alice" || got[1] != "bob" {
		t.Fatalf("got %v, want [alice bob]", got)
	}

	// The returned slice is a copy; mutating it must not touch the schedule.
	got[0] = "mallory"
	if st.FixedMembers[0] != "alice" {
		t.Fatal("Assign aliased FixedMembers")
	}
}

func TestFixedModeEmptyList(t *testing.T) {
	t.Parallel()
	r := New()
	st := &core.ScheduledTask{AssignmentMode: core.AssignFixed}
	if _, err := r.Assign(st, members("alice"), nil); !errors.Is(err, core.ErrNoEligibleMembers) {
		t.Fatalf("err = %v, want ErrNoEligibleMembers", err)
	}
}

func TestRandomModeEmptyPool(t *testing.T) {
	t.Parallel()
	r := New()
	st := &core.ScheduledTask{AssignmentMode: core.AssignRandom}

	if _, err := r.Assign(st, nil, nil); !errors.Is(err, core.ErrNoEligibleMembers) {
		t.Fatalf("no members: err = %v, want ErrNoEligibleMembers", err)
	}

	// All members excluded.
	st.ExcludedMembers = []string{"alice", "bob"}
	if _, err := r.Assign(st, members("alice", "bob"), nil); !errors.Is(err, core.ErrNoEligibleMembers) {
		t.Fatalf("all excluded: err = %v, want ErrNoEligibleMembers", err)
	}

	// Inactive members don't count either.
	ms := members("alice")
	ms[0].IsActive = false
	st.ExcludedMembers = nil
	if _, err := r.Assign(st, ms, nil); !errors.Is(err, core.ErrNoEligibleMembers) {
		t.Fatalf("inactive only: err = %v, want ErrNoEligibleMembers", err)
	}
}

func TestRandomModeExcludesListedMembers(t *testing.T) {
	t.Parallel()
	r := New(WithRand(rand.New(rand.NewSource(7))))
	st := &core.ScheduledTask{
		AssignmentMode:  core.AssignRandom,
		ExcludedMembers: []string{"bob"},
	}
	for i := 0; i < 200; i++ {
		got, err := r.Assign(st, members("alice", "bob"), nil)
		if err != nil {
			t.Fatalf("Assign: %v", err)
		}
		if got[0] == "bob" {
			t.Fatal("excluded member was drawn")
		}
	}
}

func TestWeightingFavorsLessAssigned(t *testing.T) {
	t.Parallel()
	r := New(WithRand(rand.New(rand.NewSource(42))))
	st := &core.ScheduledTask{AssignmentMode: core.AssignRandom}
	// alice carries 10 successes, bob none: bob's weight is 11x alice's.
	history := successes("alice", 10)

	const draws = 1000
	bobWins := 0
	for i := 0; i < draws; i++ {
		got, err := r.Assign(st, members("alice", "bob"), history)
		if err != nil {
			t.Fatalf("Assign: %v", err)
		}
		if got[0] == "bob" {
			bobWins++
		}
	}
	// Expected share is 11/12 (~0.917); anything under 0.8 indicates the
	// weighting is broken rather than unlucky.
	if float64(bobWins)/draws < 0.8 {
		t.Fatalf("bob drawn %d/%d times; weighting not applied", bobWins, draws)
	}
}

func TestWeightingStaysStochastic(t *testing.T) {
	t.Parallel()
	r := New(WithRand(rand.New(rand.NewSource(99))))
	st := &core.ScheduledTask{AssignmentMode: core.AssignRandom}
	history := successes("alice", 3)

	wins := map[string]int{}
	const draws = 1000
	for i := 0; i < draws; i++ {
		got, err := r.Assign(st, members("alice", "bob", "carol"), history)
		if err != nil {
			t.Fatalf("Assign: %v", err)
		}
		wins[got[0]]++
	}
	// Weighted draw, not deterministic rotation: everyone must win sometimes,
	// and the loaded member must not dominate.
	for _, id := range []string{"alice", "bob", "carol"} {
		if wins[id] == 0 {
			t.Fatalf("%s never drawn in %d draws", id, draws)
		}
	}
	if float64(wins["alice"])/draws > 0.45 {
		t.Fatalf("alice drawn %d/%d times despite carrying history", wins["alice"], draws)
	}
}

func TestHistoryWindowBoundsCounting(t *testing.T) {
	t.Parallel()
	// Window of 5: alice's older pile of successes falls outside and both
	// members end up evenly weighted.
	r := New(WithRand(rand.New(rand.NewSource(5))), WithWindow(5))
	_ = &core.ScheduledTask{AssignmentMode: core.AssignRandom}

	// Most recent first: five bob successes, then fifty alice successes.
	history := append(successes("bob", 5), successes("alice", 50)...)

	counts := successCounts(history, r.Window())
	if counts["alice"] != 0 {
		t.Fatalf("alice counted %d times outside window", counts["alice"])
	}
	if counts["bob"] != 5 {
		t.Fatalf("bob counted %d times, want 5", counts["bob"])
	}
}

func TestSuccessCountsIgnoresSkipsAndFailures(t *testing.T) {
	t.Parallel()
	history := []core.ExecutionRecord{
		{Status: core.ExecutionSuccess, AssignedMemberID: "alice"},
		{Status: core.ExecutionSkipped, AssignedMemberID: "alice"},
		{Status: core.ExecutionFailed, AssignedMemberID: "alice"},
		{Status: core.ExecutionSuccess}, // holiday-skip rows carry no member
	}
	counts := successCounts(history, DefaultWindow)
	if counts["alice"] != 1 {
		t.Fatalf("alice counted %d times, want 1", counts["alice"])
	}
}
