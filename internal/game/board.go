package game

import (
	"errors"
	"fmt"
)

// Size is the edge length of the square board.
const Size = 5

// Side identifies who owns a cell. Empty is the "no owner" sentinel.
type Side int

const (
	Empty Side = iota
	Human
	AI
)

var (
	ErrIllegalMove  = errors.New("move is not legal for side")
	ErrCascadeLimit = errors.New("cascade did not stabilize")
	ErrInvariant    = errors.New("board invariant violated")
)

// Opponent returns the other playing side. Empty has no opponent.
func (s Side) Opponent() Side {
	switch s {
	case Human:
		return AI
	case AI:
		return Human
	default:
		return Empty
	}
}

func (s Side) String() string {
	switch s {
	case Human:
		return "human"
	case AI:
		return "ai"
	default:
		return "empty"
	}
}

func (s Side) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Side) UnmarshalText(text []byte) error {
	switch string(text) {
	case "human":
		*s = Human
	case "ai":
		*s = AI
	case "empty", "":
		*s = Empty
	default:
		return fmt.Errorf("unknown side %q", text)
	}
	return nil
}

type Cell struct {
	Owner    Side `json:"owner"`
	Count    int  `json:"count"`
	Capacity int  `json:"capacity"`
	Blocked  bool `json:"blocked,omitempty"`
}

// Critical reports whether the cell must explode in the next batch.
func (c Cell) Critical() bool {
	return !c.Blocked && c.Count > 0 && c.Count >= c.Capacity
}

// NearCritical reports whether one more orb would make the cell explode.
func (c Cell) NearCritical() bool {
	return !c.Blocked && c.Count > 0 && c.Count == c.Capacity-1
}

// Board is a value type; assigning it copies every cell, so a Board handed
// out of the engine is a snapshot nobody else can mutate.
type Board [Size][Size]Cell

type Move struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

func (m Move) InBounds() bool {
	return m.Row >= 0 && m.Row < Size && m.Col >= 0 && m.Col < Size
}

func (m Move) String() string {
	return fmt.Sprintf("(%d,%d)", m.Row, m.Col)
}

// Stats summarizes orb and cell ownership on a board.
type Stats struct {
	HumanOrbs  int `json:"humanOrbs"`
	AIOrbs     int `json:"aiOrbs"`
	HumanCells int `json:"humanCells"`
	AICells    int `json:"aiCells"`
}

func (s Stats) Orbs(side Side) int {
	switch side {
	case Human:
		return s.HumanOrbs
	case AI:
		return s.AIOrbs
	}
	return 0
}

func (s Stats) Cells(side Side) int {
	switch side {
	case Human:
		return s.HumanCells
	case AI:
		return s.AICells
	}
	return 0
}

func (s Stats) TotalOrbs() int {
	return s.HumanOrbs + s.AIOrbs
}

// NewBoard returns an empty board where every cell has the given capacity.
func NewBoard(capacity int) Board {
	var b Board
	for r := 0; r < Size; r++ {
		for c := 0; c < Size; c++ {
			b[r][c].Capacity = capacity
		}
	}
	return b
}

func (b Board) At(m Move) Cell {
	return b[m.Row][m.Col]
}

func (b *Board) cell(m Move) *Cell {
	return &b[m.Row][m.Col]
}

func (b Board) Stats() Stats {
	var s Stats
	for r := 0; r < Size; r++ {
		for c := 0; c < Size; c++ {
			cell := b[r][c]
			switch cell.Owner {
			case Human:
				s.HumanOrbs += cell.Count
				s.HumanCells++
			case AI:
				s.AIOrbs += cell.Count
				s.AICells++
			}
		}
	}
	return s
}

// Unstable lists every cell that belongs to the next explosion batch.
func (b Board) Unstable() []Move {
	var res []Move
	for r := 0; r < Size; r++ {
		for c := 0; c < Size; c++ {
			if b[r][c].Critical() {
				res = append(res, Move{Row: r, Col: c})
			}
		}
	}
	return res
}

// Validate checks the per-cell invariants of a stable board.
func (b Board) Validate() error {
	for r := 0; r < Size; r++ {
		for c := 0; c < Size; c++ {
			cell := b[r][c]
			at := Move{Row: r, Col: c}
			switch {
			case cell.Capacity < 1:
				return fmt.Errorf("%w: capacity %d at %s", ErrInvariant, cell.Capacity, at)
			case cell.Blocked && (cell.Count != 0 || cell.Owner != Empty):
				return fmt.Errorf("%w: blocked cell %s holds orbs", ErrInvariant, at)
			case cell.Blocked:
				continue
			case cell.Count < 0:
				return fmt.Errorf("%w: negative count at %s", ErrInvariant, at)
			case cell.Count >= cell.Capacity:
				return fmt.Errorf("%w: unstable cell %s", ErrInvariant, at)
			case (cell.Owner == Empty) != (cell.Count == 0):
				return fmt.Errorf("%w: owner %s with count %d at %s", ErrInvariant, cell.Owner, cell.Count, at)
			}
		}
	}
	return nil
}
