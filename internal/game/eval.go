package game

// WinScore is returned by Evaluate for a decided board.
const WinScore = 1000.0

type Weights struct {
	Orbs         float64
	Cells        float64
	Position     float64
	NearCritical float64
}

var DefaultWeights = Weights{
	Orbs:         1.0,
	Cells:        0.5,
	Position:     0.5,
	NearCritical: 2.0,
}

// PositionWeight favours cells with fewer neighbours: they are harder for
// the opponent to capture.
func PositionWeight(m Move) float64 {
	switch {
	case isCorner(m):
		return 3
	case isEdge(m):
		return 2
	}
	return 1
}

// Evaluate scores b from side's point of view with the default weights.
func Evaluate(b Board, side Side) float64 {
	return DefaultWeights.Evaluate(b, side)
}

// Evaluate returns WinScore as soon as the opponent holds no orbs while side
// holds some, and -WinScore for the reverse. Unlike Winner it applies no
// opening guard, so a lone first orb already scores as a win.
func (w Weights) Evaluate(b Board, side Side) float64 {
	opp := side.Opponent()
	st := b.Stats()
	own, theirs := st.HumanOrbs, st.AIOrbs
	if side == AI {
		own, theirs = theirs, own
	}
	switch {
	case theirs == 0 && own > 0:
		return WinScore
	case own == 0 && theirs > 0:
		return -WinScore
	}

	var orbs, cells, position, critical float64
	for r := 0; r < Size; r++ {
		for c := 0; c < Size; c++ {
			cell := b[r][c]
			sign := 0.0
			switch cell.Owner {
			case side:
				sign = 1
			case opp:
				sign = -1
			default:
				continue
			}
			orbs += sign * float64(cell.Count)
			cells += sign
			position += sign * PositionWeight(Move{Row: r, Col: c})
			if cell.NearCritical() {
				critical += sign
			}
		}
	}
	return w.Orbs*orbs + w.Cells*cells + w.Position*position + w.NearCritical*critical
}
