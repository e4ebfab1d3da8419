package game

import "fmt"

// MaxCascadePasses bounds the number of explosion batches one move may
// trigger. Hitting it means the capacities allow orbs to be created.
const MaxCascadePasses = 100

// FirstMovePolicy decides how many orbs a side's very first placement puts
// into its cell.
type FirstMovePolicy int

const (
	// PlaceSingle adds exactly one orb, like every later placement.
	PlaceSingle FirstMovePolicy = iota
	// PlacePreloaded fills the opening cell to one below its capacity.
	PlacePreloaded
)

func (p FirstMovePolicy) String() string {
	if p == PlacePreloaded {
		return "preloaded"
	}
	return "single"
}

// ParseFirstMovePolicy accepts the names produced by String.
func ParseFirstMovePolicy(name string) (FirstMovePolicy, error) {
	switch name {
	case "", "single":
		return PlaceSingle, nil
	case "preloaded":
		return PlacePreloaded, nil
	}
	return PlaceSingle, fmt.Errorf("unknown first move policy %q", name)
}

// CascadeStep is one simultaneous explosion batch and the board it produced.
type CascadeStep struct {
	Exploded []Move `json:"exploded"`
	Board    Board  `json:"board"`
}

type MoveResult struct {
	Board  Board         `json:"board"`
	Steps  []CascadeStep `json:"steps"`
	Winner Side          `json:"winner"`
}

type Rules struct {
	FirstMove FirstMovePolicy
}

// DefaultRules places a single orb per move.
var DefaultRules = Rules{FirstMove: PlaceSingle}

// ApplyMove applies m for side with the default rules.
func ApplyMove(b Board, m Move, side Side) (MoveResult, error) {
	return DefaultRules.Apply(b, m, side)
}

// Apply places an orb for side at m and resolves every chain reaction.
// Callers must only pass moves from LegalMoves; anything else is rejected
// with ErrIllegalMove. The input board is never modified.
func (r Rules) Apply(b Board, m Move, side Side) (MoveResult, error) {
	placed, err := r.place(b, m, side)
	if err != nil {
		return MoveResult{}, err
	}
	final, steps, err := resolve(placed, true)
	if err != nil {
		return MoveResult{}, err
	}
	return MoveResult{Board: final, Steps: steps, Winner: Winner(final)}, nil
}

// settle is Apply without the per-batch snapshots, for search.
func (r Rules) settle(b Board, m Move, side Side) (Board, error) {
	placed, err := r.place(b, m, side)
	if err != nil {
		return b, err
	}
	final, _, err := resolve(placed, false)
	return final, err
}

func (r Rules) place(b Board, m Move, side Side) (Board, error) {
	if !IsLegal(b, m, side) {
		return b, fmt.Errorf("%w: %s at %s", ErrIllegalMove, side, m)
	}
	opening := !owns(b, side)
	cell := b.cell(m)
	cell.Owner = side
	cell.Count++
	if opening && r.FirstMove == PlacePreloaded && cell.Count < cell.Capacity-1 {
		cell.Count = cell.Capacity - 1
	}
	return b, nil
}

// LegalMoves lists the cells side may place into, in row-major order.
// A side without any cell may claim any unblocked empty cell; otherwise it
// may only reinforce cells it already owns.
func LegalMoves(b Board, side Side) []Move {
	if side == Empty {
		return nil
	}
	opening := !owns(b, side)
	var moves []Move
	for r := 0; r < Size; r++ {
		for c := 0; c < Size; c++ {
			cell := b[r][c]
			if cell.Blocked {
				continue
			}
			if (opening && cell.Owner == Empty) || (!opening && cell.Owner == side) {
				moves = append(moves, Move{Row: r, Col: c})
			}
		}
	}
	return moves
}

func IsLegal(b Board, m Move, side Side) bool {
	if side == Empty || !m.InBounds() {
		return false
	}
	cell := b.At(m)
	if cell.Blocked {
		return false
	}
	if owns(b, side) {
		return cell.Owner == side
	}
	return cell.Owner == Empty
}

func owns(b Board, side Side) bool {
	for r := 0; r < Size; r++ {
		for c := 0; c < Size; c++ {
			if b[r][c].Owner == side {
				return true
			}
		}
	}
	return false
}

// Step resolves one explosion batch. It returns false when b is already
// stable. Every unstable cell explodes against the pre-batch board: all
// members are emptied first, then each spreads its remembered owner. A cell
// reached by explosions of both sides ends up with the owner of the last
// exploding neighbour in row-major order.
func Step(b Board) (Board, []Move, bool) {
	batch := b.Unstable()
	if len(batch) == 0 {
		return b, nil, false
	}
	owners := make([]Side, len(batch))
	next := b
	for i, m := range batch {
		owners[i] = b.At(m).Owner
		exploding := next.cell(m)
		exploding.Count = 0
		exploding.Owner = Empty
	}
	for i, m := range batch {
		for _, n := range Neighbors(m) {
			target := next.cell(n)
			if target.Blocked {
				continue
			}
			target.Count++
			target.Owner = owners[i]
		}
	}
	return next, batch, true
}

// Resolve runs Step until the board is stable and returns every batch.
func Resolve(b Board) (Board, []CascadeStep, error) {
	return resolve(b, true)
}

func resolve(b Board, record bool) (Board, []CascadeStep, error) {
	var steps []CascadeStep
	for pass := 0; ; pass++ {
		next, exploded, ok := Step(b)
		if !ok {
			return b, steps, nil
		}
		if pass >= MaxCascadePasses {
			return b, steps, fmt.Errorf("%w after %d passes", ErrCascadeLimit, pass)
		}
		b = next
		if record {
			steps = append(steps, CascadeStep{Exploded: exploded, Board: b})
		}
	}
}

// Winner returns the side that still has orbs once its opponent has none.
// Boards with fewer than two orbs in total are never decided.
func Winner(b Board) Side {
	s := b.Stats()
	if s.TotalOrbs() < 2 {
		return Empty
	}
	switch {
	case s.HumanOrbs == 0 && s.AIOrbs > 0:
		return AI
	case s.AIOrbs == 0 && s.HumanOrbs > 0:
		return Human
	}
	return Empty
}
