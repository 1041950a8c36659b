package brackets

import (
	"context"

	"github.com/Dosada05/bracket-automation/models"
)

type SingleEliminationGenerator struct{}

func NewSingleEliminationGenerator() BracketGenerator {
	return &SingleEliminationGenerator{}
}

func (g *SingleEliminationGenerator) GetName() string {
	return "SingleElimination"
}

func (g *SingleEliminationGenerator) GenerateBracket(ctx context.Context, params GenerateBracketParams) ([]*BracketMatch, error) {
	return layoutBracket(ctx, params)
}

// buildSingleElimination lays out log2(size) winners rounds. Every match except
// the last one feeds the next round by the halving arithmetic.
func buildSingleElimination(size int) *Topology {
	t := newTopology(models.BracketSingleElimination, size)
	rounds := roundsFor(size)

	matchesInRound := size / 2
	for r := 1; r <= rounds; r++ {
		for m := 1; m <= matchesInRound; m++ {
			pos := models.MatchPosition{Branch: models.BranchWinner, Round: r, MatchNumber: m}
			var e Edges
			if r < rounds {
				e.Winner = advanceInBranch(pos)
			}
			t.add(pos, e)
		}
		matchesInRound /= 2
	}

	t.final = models.MatchPosition{Branch: models.BranchWinner, Round: rounds, MatchNumber: 1}
	return t
}
