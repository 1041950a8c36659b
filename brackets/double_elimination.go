package brackets

import (
	"context"

	"github.com/Dosada05/bracket-automation/models"
)

const doubleEliminationSize = 16

type DoubleEliminationGenerator struct{}

func NewDoubleEliminationGenerator() BracketGenerator {
	return &DoubleEliminationGenerator{}
}

func (g *DoubleEliminationGenerator) GetName() string {
	return "DoubleElimination"
}

func (g *DoubleEliminationGenerator) GenerateBracket(ctx context.Context, params GenerateBracketParams) ([]*BracketMatch, error) {
	return layoutBracket(ctx, params)
}

// losersRound describes one losers-bracket round: how many matches it has, and
// whether slot B is fed by players dropping from a winners round (0 when the
// round only merges losers-bracket winners).
type losersRound struct {
	matches        int
	dropFromWinner int
}

// 16 players: winners rounds 8-4-2-1, losers rounds 4-4-2-2-1-1, one grand final.
// Even losers rounds receive drop-downs in slot B; odd rounds after the first halve.
var losersRounds16 = []losersRound{
	{matches: 4},
	{matches: 4, dropFromWinner: 2},
	{matches: 2},
	{matches: 2, dropFromWinner: 3},
	{matches: 1},
	{matches: 1, dropFromWinner: 4},
}

func buildDoubleElimination16() *Topology {
	t := newTopology(models.BracketDoubleElimination, doubleEliminationSize)
	winnerRounds := roundsFor(doubleEliminationSize)
	grandFinal := models.MatchPosition{Branch: models.BranchGrandFinal, Round: 1, MatchNumber: 1}

	// Where each winners round sends its losers.
	dropTarget := make(map[int]int, len(losersRounds16))
	for i, lr := range losersRounds16 {
		if lr.dropFromWinner > 0 {
			dropTarget[lr.dropFromWinner] = i + 1
		}
	}

	matchesInRound := doubleEliminationSize / 2
	for r := 1; r <= winnerRounds; r++ {
		for m := 1; m <= matchesInRound; m++ {
			pos := models.MatchPosition{Branch: models.BranchWinner, Round: r, MatchNumber: m}
			var e Edges
			if r < winnerRounds {
				e.Winner = advanceInBranch(pos)
			} else {
				e.Winner = &SlotRef{Position: grandFinal, Slot: models.SlotA}
			}

			if r == 1 {
				// First-round losers pair up among themselves.
				first := advanceInBranch(models.MatchPosition{Branch: models.BranchLoser, Round: 0, MatchNumber: m})
				e.Loser = first
			} else {
				e.Loser = &SlotRef{
					Position: models.MatchPosition{Branch: models.BranchLoser, Round: dropTarget[r], MatchNumber: m},
					Slot:     models.SlotB,
				}
			}
			t.add(pos, e)
		}
		matchesInRound /= 2
	}

	lastLosers := len(losersRounds16)
	for i, lr := range losersRounds16 {
		r := i + 1
		for m := 1; m <= lr.matches; m++ {
			pos := models.MatchPosition{Branch: models.BranchLoser, Round: r, MatchNumber: m}
			var e Edges
			switch {
			case r == lastLosers:
				e.Winner = &SlotRef{Position: grandFinal, Slot: models.SlotB}
			case losersRounds16[r].dropFromWinner > 0:
				// Next round takes drop-downs in slot B, so winners keep their position in slot A.
				e.Winner = &SlotRef{
					Position: models.MatchPosition{Branch: models.BranchLoser, Round: r + 1, MatchNumber: m},
					Slot:     models.SlotA,
				}
			default:
				e.Winner = advanceInBranch(pos)
			}
			t.add(pos, e)
		}
	}

	t.add(grandFinal, Edges{})
	t.final = grandFinal
	return t
}
