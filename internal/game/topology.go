package game

var directions = [4][2]int{{-1, 0}, {1, 0}, {0, -1}, {0, 1}}

var neighborTable = buildNeighbors()

func buildNeighbors() [Size][Size][]Move {
	var table [Size][Size][]Move
	for r := 0; r < Size; r++ {
		for c := 0; c < Size; c++ {
			res := make([]Move, 0, 4)
			for _, d := range directions {
				n := Move{Row: r + d[0], Col: c + d[1]}
				if n.InBounds() {
					res = append(res, n)
				}
			}
			table[r][c] = res
		}
	}
	return table
}

// Neighbors returns the in-bounds orthogonal neighbours of m. The returned
// slice is shared and must not be modified.
func Neighbors(m Move) []Move {
	return neighborTable[m.Row][m.Col]
}

func isCorner(m Move) bool {
	return (m.Row == 0 || m.Row == Size-1) && (m.Col == 0 || m.Col == Size-1)
}

func isEdge(m Move) bool {
	return m.Row == 0 || m.Row == Size-1 || m.Col == 0 || m.Col == Size-1
}

// ring returns 0 for the outer ring, increasing towards the centre.
func ring(m Move) int {
	return min(m.Row, m.Col, Size-1-m.Row, Size-1-m.Col)
}
