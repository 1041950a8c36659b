package models

import (
	"fmt"
	"time"
)

type MatchStatus string

const (
	MatchStatusPending   MatchStatus = "pending"
	MatchStatusReady     MatchStatus = "ready"
	MatchStatusOngoing   MatchStatus = "ongoing"
	MatchStatusCompleted MatchStatus = "completed"
)

// Branch is the sub-bracket a match belongs to. Single elimination uses BranchWinner only.
type Branch string

const (
	BranchWinner     Branch = "winner"
	BranchLoser      Branch = "loser"
	BranchGrandFinal Branch = "grand_final"
)

// Rank orders branches inside a round when processing drift.
func (b Branch) Rank() int {
	switch b {
	case BranchWinner:
		return 0
	case BranchLoser:
		return 1
	case BranchGrandFinal:
		return 2
	}
	return 3
}

type Slot string

const (
	SlotA Slot = "A"
	SlotB Slot = "B"
)

func (s Slot) Valid() bool {
	return s == SlotA || s == SlotB
}

// Column is the matches table column backing the slot.
func (s Slot) Column() string {
	if s == SlotB {
		return "player2_id"
	}
	return "player1_id"
}

// MatchPosition addresses a match inside its tournament bracket.
type MatchPosition struct {
	Branch      Branch `json:"branch"`
	Round       int    `json:"round"`
	MatchNumber int    `json:"match_number"`
}

func (p MatchPosition) String() string {
	prefix := "W"
	switch p.Branch {
	case BranchLoser:
		prefix = "L"
	case BranchGrandFinal:
		prefix = "GF"
	}
	return fmt.Sprintf("%sR%dM%d", prefix, p.Round, p.MatchNumber)
}

type Match struct {
	ID           int         `json:"id" db:"id"`
	TournamentID int         `json:"tournament_id" db:"tournament_id"`
	Round        int         `json:"round" db:"round"`
	MatchNumber  int         `json:"match_number" db:"match_number"`
	Branch       Branch      `json:"branch" db:"branch"`
	Player1ID    *int        `json:"player1_id" db:"player1_id"`
	Player2ID    *int        `json:"player2_id" db:"player2_id"`
	WinnerID     *int        `json:"winner_id" db:"winner_id"`
	Status       MatchStatus `json:"status" db:"status"`
	Score        *string     `json:"score,omitempty" db:"score"`
	CreatedAt    time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at" db:"updated_at"`
}

func (m *Match) Position() MatchPosition {
	return MatchPosition{Branch: m.Branch, Round: m.Round, MatchNumber: m.MatchNumber}
}

func (m *Match) PlayerIn(slot Slot) *int {
	if slot == SlotB {
		return m.Player2ID
	}
	return m.Player1ID
}

func (m *Match) SetPlayer(slot Slot, playerID *int) {
	if slot == SlotB {
		m.Player2ID = playerID
		return
	}
	m.Player1ID = playerID
}

// HasResult reports whether the match is completed with a recorded winner.
func (m *Match) HasResult() bool {
	return m.Status == MatchStatusCompleted && m.WinnerID != nil
}

// LoserID returns the player that did not win, or nil when undecided.
func (m *Match) LoserID() *int {
	if m.WinnerID == nil || m.Player1ID == nil || m.Player2ID == nil {
		return nil
	}
	if *m.Player1ID == *m.WinnerID {
		return m.Player2ID
	}
	if *m.Player2ID == *m.WinnerID {
		return m.Player1ID
	}
	return nil
}

func (m *Match) HasPlayer(playerID int) bool {
	return (m.Player1ID != nil && *m.Player1ID == playerID) || (m.Player2ID != nil && *m.Player2ID == playerID)
}

func (m *Match) Clone() *Match {
	c := *m
	c.Player1ID = cloneInt(m.Player1ID)
	c.Player2ID = cloneInt(m.Player2ID)
	c.WinnerID = cloneInt(m.WinnerID)
	if m.Score != nil {
		s := *m.Score
		c.Score = &s
	}
	return &c
}

// MatchUpdate is a change-feed event carrying the row before and after the write.
// Old is nil for inserts.
type MatchUpdate struct {
	TournamentID int    `json:"tournament_id"`
	Old          *Match `json:"old"`
	New          *Match `json:"new"`
}

// BecameCompleted reports a first transition to completed with a winner.
func (u MatchUpdate) BecameCompleted() bool {
	if u.New == nil || !u.New.HasResult() {
		return false
	}
	return u.Old == nil || u.Old.Status != MatchStatusCompleted
}

func cloneInt(v *int) *int {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func IntPtr(v int) *int {
	return &v
}
