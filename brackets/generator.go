package brackets

import (
	"context"
	"errors"
	"fmt"

	"github.com/Dosada05/bracket-automation/models"
)

var (
	ErrSeedCountMismatch = errors.New("seed count does not match participant count")
	ErrDuplicateSeed     = errors.New("seed list contains a duplicate player")
)

// GenerateBracketParams carries an already ordered seed list. Seeds are paired
// (1,2), (3,4), ... into the first round of the winners bracket.
type GenerateBracketParams struct {
	Tournament *models.Tournament
	Seeds      []int
}

// BracketMatch is one match of a freshly generated bracket skeleton.
type BracketMatch struct {
	UID            string
	Position       models.MatchPosition
	Participant1ID *int
	Participant2ID *int
}

type BracketGenerator interface {
	GenerateBracket(ctx context.Context, params GenerateBracketParams) ([]*BracketMatch, error)

	GetName() string
}

// GeneratorFor picks the generator for a bracket type.
func GeneratorFor(bracketType models.BracketType) (BracketGenerator, error) {
	switch bracketType {
	case models.BracketSingleElimination:
		return NewSingleEliminationGenerator(), nil
	case models.BracketDoubleElimination:
		return NewDoubleEliminationGenerator(), nil
	}
	return nil, fmt.Errorf("no bracket generator for %q", bracketType)
}

// layoutBracket turns a topology into match skeletons and seeds the first winners round.
func layoutBracket(ctx context.Context, params GenerateBracketParams) ([]*BracketMatch, error) {
	if params.Tournament == nil {
		return nil, errors.New("tournament is required to generate a bracket")
	}
	t := params.Tournament
	if len(params.Seeds) != t.ParticipantCount {
		return nil, fmt.Errorf("%w: expected %d, got %d", ErrSeedCountMismatch, t.ParticipantCount, len(params.Seeds))
	}
	seen := make(map[int]struct{}, len(params.Seeds))
	for _, id := range params.Seeds {
		if _, dup := seen[id]; dup {
			return nil, fmt.Errorf("%w: %d", ErrDuplicateSeed, id)
		}
		seen[id] = struct{}{}
	}

	topology, err := TopologyFor(t.BracketType, t.ParticipantCount)
	if err != nil {
		return nil, err
	}

	positions := topology.Positions()
	out := make([]*BracketMatch, 0, len(positions))
	for _, pos := range positions {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		bm := &BracketMatch{UID: pos.String(), Position: pos}
		if pos.Branch == models.BranchWinner && pos.Round == 1 {
			i := (pos.MatchNumber - 1) * 2
			bm.Participant1ID = models.IntPtr(params.Seeds[i])
			bm.Participant2ID = models.IntPtr(params.Seeds[i+1])
		}
		out = append(out, bm)
	}
	return out, nil
}
