package brackets

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dosada05/bracket-automation/models"
)

func pos(branch models.Branch, round, number int) models.MatchPosition {
	return models.MatchPosition{Branch: branch, Round: round, MatchNumber: number}
}

func TestTopologyFor_RejectsInvalidCounts(t *testing.T) {
	_, err := TopologyFor(models.BracketSingleElimination, 6)
	assert.Error(t, err)

	_, err = TopologyFor(models.BracketDoubleElimination, 8)
	assert.Error(t, err)

	_, err = TopologyFor("swiss", 8)
	assert.Error(t, err)
}

func TestSingleElimination_Shape(t *testing.T) {
	tests := []struct {
		size    int
		matches int
		final   models.MatchPosition
	}{
		{4, 3, pos(models.BranchWinner, 2, 1)},
		{8, 7, pos(models.BranchWinner, 3, 1)},
		{16, 15, pos(models.BranchWinner, 4, 1)},
		{32, 31, pos(models.BranchWinner, 5, 1)},
	}

	for _, tt := range tests {
		topo, err := TopologyFor(models.BracketSingleElimination, tt.size)
		require.NoError(t, err)
		assert.Len(t, topo.Positions(), tt.matches, "size %d", tt.size)
		assert.Equal(t, tt.final, topo.Final(), "size %d", tt.size)

		e, ok := topo.EdgesFrom(topo.Final())
		require.True(t, ok)
		assert.Nil(t, e.Winner)
		assert.Nil(t, e.Loser)
	}
}

func TestSingleElimination_WinnerArithmetic(t *testing.T) {
	topo, err := TopologyFor(models.BracketSingleElimination, 8)
	require.NoError(t, err)

	e, ok := topo.EdgesFrom(pos(models.BranchWinner, 1, 3))
	require.True(t, ok)
	require.NotNil(t, e.Winner)
	assert.Equal(t, pos(models.BranchWinner, 2, 2), e.Winner.Position)
	assert.Equal(t, models.SlotA, e.Winner.Slot)
	assert.Nil(t, e.Loser, "single elimination has no loser edges")

	e, _ = topo.EdgesFrom(pos(models.BranchWinner, 1, 4))
	assert.Equal(t, pos(models.BranchWinner, 2, 2), e.Winner.Position)
	assert.Equal(t, models.SlotB, e.Winner.Slot)
}

func TestDoubleElimination16_Shape(t *testing.T) {
	topo, err := TopologyFor(models.BracketDoubleElimination, 16)
	require.NoError(t, err)

	count := map[models.Branch]int{}
	for _, p := range topo.Positions() {
		count[p.Branch]++
	}
	assert.Equal(t, 15, count[models.BranchWinner])
	assert.Equal(t, 14, count[models.BranchLoser])
	assert.Equal(t, 1, count[models.BranchGrandFinal])
	assert.Equal(t, pos(models.BranchGrandFinal, 1, 1), topo.Final())

	again, err := TopologyFor(models.BracketDoubleElimination, 16)
	require.NoError(t, err)
	assert.Same(t, topo, again, "table is built once")
}

func TestDoubleElimination16_EverySlotFedOnce(t *testing.T) {
	topo, err := TopologyFor(models.BracketDoubleElimination, 16)
	require.NoError(t, err)

	fed := map[SlotRef]int{}
	for _, p := range topo.Positions() {
		e, ok := topo.EdgesFrom(p)
		require.True(t, ok)
		for _, ref := range []*SlotRef{e.Winner, e.Loser} {
			if ref == nil {
				continue
			}
			require.True(t, topo.Contains(ref.Position), "%s points outside the bracket: %s", p, ref.Position)
			fed[*ref]++
		}
	}

	for _, p := range topo.Positions() {
		if p.Branch == models.BranchWinner && p.Round == 1 {
			continue
		}
		for _, slot := range []models.Slot{models.SlotA, models.SlotB} {
			assert.Equal(t, 1, fed[SlotRef{Position: p, Slot: slot}], "%s slot %s", p, slot)
		}
	}
}

func TestDoubleElimination16_LoserEdges(t *testing.T) {
	topo, err := TopologyFor(models.BracketDoubleElimination, 16)
	require.NoError(t, err)

	tests := []struct {
		from models.MatchPosition
		to   SlotRef
	}{
		{pos(models.BranchWinner, 1, 1), SlotRef{pos(models.BranchLoser, 1, 1), models.SlotA}},
		{pos(models.BranchWinner, 1, 2), SlotRef{pos(models.BranchLoser, 1, 1), models.SlotB}},
		{pos(models.BranchWinner, 1, 8), SlotRef{pos(models.BranchLoser, 1, 4), models.SlotB}},
		{pos(models.BranchWinner, 2, 3), SlotRef{pos(models.BranchLoser, 2, 3), models.SlotB}},
		{pos(models.BranchWinner, 3, 2), SlotRef{pos(models.BranchLoser, 4, 2), models.SlotB}},
		{pos(models.BranchWinner, 4, 1), SlotRef{pos(models.BranchLoser, 6, 1), models.SlotB}},
	}
	for _, tt := range tests {
		e, ok := topo.EdgesFrom(tt.from)
		require.True(t, ok)
		require.NotNil(t, e.Loser, "%s", tt.from)
		assert.Equal(t, tt.to, *e.Loser, "%s", tt.from)
	}

	for _, p := range topo.Positions() {
		if p.Branch == models.BranchWinner {
			continue
		}
		e, _ := topo.EdgesFrom(p)
		assert.Nil(t, e.Loser, "a second loss eliminates (%s)", p)
	}

	wbFinal, _ := topo.EdgesFrom(pos(models.BranchWinner, 4, 1))
	assert.Equal(t, SlotRef{pos(models.BranchGrandFinal, 1, 1), models.SlotA}, *wbFinal.Winner)
	lbFinal, _ := topo.EdgesFrom(pos(models.BranchLoser, 6, 1))
	assert.Equal(t, SlotRef{pos(models.BranchGrandFinal, 1, 1), models.SlotB}, *lbFinal.Winner)
}

func TestGenerateBracket_SeedsFirstRound(t *testing.T) {
	tournament := &models.Tournament{ID: 1, BracketType: models.BracketSingleElimination, ParticipantCount: 4}
	gen, err := GeneratorFor(tournament.BracketType)
	require.NoError(t, err)

	matches, err := gen.GenerateBracket(context.Background(), GenerateBracketParams{
		Tournament: tournament,
		Seeds:      []int{10, 20, 30, 40},
	})
	require.NoError(t, err)
	require.Len(t, matches, 3)

	assert.Equal(t, "WR1M1", matches[0].UID)
	assert.Equal(t, 10, *matches[0].Participant1ID)
	assert.Equal(t, 20, *matches[0].Participant2ID)
	assert.Equal(t, 30, *matches[1].Participant1ID)
	assert.Equal(t, 40, *matches[1].Participant2ID)
	assert.Nil(t, matches[2].Participant1ID)
	assert.Nil(t, matches[2].Participant2ID)
}

func TestGenerateBracket_RejectsBadSeeds(t *testing.T) {
	tournament := &models.Tournament{ID: 1, BracketType: models.BracketSingleElimination, ParticipantCount: 4}
	gen := NewSingleEliminationGenerator()

	_, err := gen.GenerateBracket(context.Background(), GenerateBracketParams{Tournament: tournament, Seeds: []int{1, 2, 3}})
	assert.ErrorIs(t, err, ErrSeedCountMismatch)

	_, err = gen.GenerateBracket(context.Background(), GenerateBracketParams{Tournament: tournament, Seeds: []int{1, 2, 3, 1}})
	assert.ErrorIs(t, err, ErrDuplicateSeed)
}
