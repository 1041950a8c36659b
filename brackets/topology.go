package brackets

import (
	"fmt"
	"sync"

	"github.com/Dosada05/bracket-automation/models"
)

// SlotRef points at one player slot of a downstream match.
type SlotRef struct {
	Position models.MatchPosition `json:"position"`
	Slot     models.Slot          `json:"slot"`
}

// Edges are the advancement edges leaving a match. Loser is nil unless the
// loser of the match continues in the losers bracket.
type Edges struct {
	Winner *SlotRef
	Loser  *SlotRef
}

// Topology describes the fixed shape of one bracket: which positions exist and
// where the winner and loser of each position go.
type Topology struct {
	bracketType models.BracketType
	size        int
	positions   []models.MatchPosition
	index       map[models.MatchPosition]int
	edges       map[models.MatchPosition]Edges
	final       models.MatchPosition
}

var (
	singleTopologies sync.Map // participant count -> *Topology

	doubleElimination16     *Topology
	doubleElimination16Once sync.Once
)

// TopologyFor returns the bracket shape for a bracket type and participant count.
// Topologies are built once and shared; callers must not mutate them.
func TopologyFor(bracketType models.BracketType, participants int) (*Topology, error) {
	if err := models.ValidateParticipantCount(bracketType, participants); err != nil {
		return nil, err
	}

	switch bracketType {
	case models.BracketSingleElimination:
		if t, ok := singleTopologies.Load(participants); ok {
			return t.(*Topology), nil
		}
		t, _ := singleTopologies.LoadOrStore(participants, buildSingleElimination(participants))
		return t.(*Topology), nil
	case models.BracketDoubleElimination:
		doubleElimination16Once.Do(func() {
			doubleElimination16 = buildDoubleElimination16()
		})
		return doubleElimination16, nil
	}
	return nil, fmt.Errorf("unsupported bracket type %q", bracketType)
}

func (t *Topology) BracketType() models.BracketType { return t.bracketType }

func (t *Topology) Size() int { return t.size }

// Final is the match whose winner is the tournament champion.
func (t *Topology) Final() models.MatchPosition { return t.final }

func (t *Topology) IsFinal(pos models.MatchPosition) bool { return pos == t.final }

func (t *Topology) Contains(pos models.MatchPosition) bool {
	_, ok := t.index[pos]
	return ok
}

// Positions lists every match of the bracket: winners rounds, then losers rounds, then the grand final.
func (t *Topology) Positions() []models.MatchPosition {
	out := make([]models.MatchPosition, len(t.positions))
	copy(out, t.positions)
	return out
}

// EdgesFrom returns the advancement edges of pos. ok is false for positions outside the bracket.
func (t *Topology) EdgesFrom(pos models.MatchPosition) (Edges, bool) {
	if !t.Contains(pos) {
		return Edges{}, false
	}
	return t.edges[pos], true
}

// advanceInBranch is the round/position arithmetic shared by every halving round:
// round+1, position ceil(n/2), slot A for odd n and slot B for even n.
func advanceInBranch(pos models.MatchPosition) *SlotRef {
	slot := models.SlotA
	if pos.MatchNumber%2 == 0 {
		slot = models.SlotB
	}
	return &SlotRef{
		Position: models.MatchPosition{
			Branch:      pos.Branch,
			Round:       pos.Round + 1,
			MatchNumber: (pos.MatchNumber + 1) / 2,
		},
		Slot: slot,
	}
}

func (t *Topology) add(pos models.MatchPosition, e Edges) {
	t.index[pos] = len(t.positions)
	t.positions = append(t.positions, pos)
	t.edges[pos] = e
}

func newTopology(bracketType models.BracketType, size int) *Topology {
	return &Topology{
		bracketType: bracketType,
		size:        size,
		index:       make(map[models.MatchPosition]int),
		edges:       make(map[models.MatchPosition]Edges),
	}
}

func roundsFor(size int) int {
	rounds := 0
	for n := size; n > 1; n /= 2 {
		rounds++
	}
	return rounds
}
