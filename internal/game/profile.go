package game

import (
	"errors"
	"fmt"
	"time"

	"github.com/zyedidia/generic/mapset"
)

// Difficulty names one of the built-in profiles.
type Difficulty string

const (
	Gentle   Difficulty = "gentle"
	Balanced Difficulty = "balanced"
	Severe   Difficulty = "severe"
)

var ErrUnknownDifficulty = errors.New("unknown difficulty")

// Source is the randomness the board factory and the AI draw from.
// *rand.Rand satisfies it; tests pass a seeded one.
type Source interface {
	Float64() float64
	Intn(n int) int
}

// CapacityRule assigns the critical mass of each cell of a new board.
type CapacityRule interface {
	CapacityAt(m Move, rng Source) int
	String() string
}

// UniformCapacity gives every cell the same capacity.
type UniformCapacity int

func (u UniformCapacity) CapacityAt(Move, Source) int { return int(u) }

func (u UniformCapacity) String() string { return fmt.Sprintf("uniform(%d)", int(u)) }

// BandedCapacity distinguishes the outer ring, the inner ring and the centre.
type BandedCapacity struct {
	Outer  int
	Inner  int
	Center int
}

func (b BandedCapacity) CapacityAt(m Move, _ Source) int {
	switch ring(m) {
	case 0:
		return b.Outer
	case 1:
		return b.Inner
	default:
		return b.Center
	}
}

func (b BandedCapacity) String() string {
	return fmt.Sprintf("banded(%d/%d/%d)", b.Outer, b.Inner, b.Center)
}

type WeightedCapacity struct {
	Capacity int
	Weight   float64
}

// RandomCapacity draws each cell's capacity independently. Draws are raised
// to the cell's neighbour count, and corners to one above it, so an explosion
// never creates orbs and the board always has somewhere to lose them.
type RandomCapacity struct {
	Choices []WeightedCapacity
}

func (rc RandomCapacity) CapacityAt(m Move, rng Source) int {
	total := 0.0
	for _, ch := range rc.Choices {
		total += ch.Weight
	}
	drawn := 0
	pick := rng.Float64() * total
	for _, ch := range rc.Choices {
		drawn = ch.Capacity
		if pick < ch.Weight {
			break
		}
		pick -= ch.Weight
	}
	floor := len(Neighbors(m))
	if isCorner(m) {
		floor++
	}
	return max(drawn, floor)
}

func (rc RandomCapacity) String() string {
	s := "random("
	for i, ch := range rc.Choices {
		if i > 0 {
			s += ","
		}
		s += fmt.Sprintf("%d:%.0f%%", ch.Capacity, ch.Weight*100)
	}
	return s + ")"
}

// Profile fixes board shape and AI behaviour for one session.
type Profile struct {
	Name      Difficulty
	Capacity  CapacityRule
	Obstacles int
	// Strength selects the AI search, 1 (weakest) to 3.
	Strength int
	// ThinkingTime is a presentation delay for the turn scheduler only.
	ThinkingTime time.Duration
	FirstMove    FirstMovePolicy
}

func (p Profile) Rules() Rules {
	return Rules{FirstMove: p.FirstMove}
}

var builtinProfiles = []Profile{
	{
		Name:         Gentle,
		Capacity:     UniformCapacity(4),
		Strength:     1,
		ThinkingTime: 1000 * time.Millisecond,
	},
	{
		Name:         Balanced,
		Capacity:     BandedCapacity{Outer: 3, Inner: 4, Center: 5},
		Strength:     2,
		ThinkingTime: 800 * time.Millisecond,
	},
	{
		Name: Severe,
		Capacity: RandomCapacity{Choices: []WeightedCapacity{
			{Capacity: 2, Weight: 0.2},
			{Capacity: 3, Weight: 0.3},
			{Capacity: 4, Weight: 0.5},
		}},
		Obstacles:    2,
		Strength:     3,
		ThinkingTime: 600 * time.Millisecond,
	},
}

// Profiles returns the built-in profiles from gentlest to hardest.
func Profiles() []Profile {
	res := make([]Profile, len(builtinProfiles))
	copy(res, builtinProfiles)
	return res
}

func ProfileFor(name string) (Profile, error) {
	for _, p := range builtinProfiles {
		if string(p.Name) == name {
			return p, nil
		}
	}
	return Profile{}, fmt.Errorf("%w: %q", ErrUnknownDifficulty, name)
}

// Obstacles are only ever placed on these cells: never the centre, never a
// corner, never the outer edge.
var obstacleSpots = []Move{
	{Row: 1, Col: 1}, {Row: 1, Col: 3}, {Row: 3, Col: 1}, {Row: 3, Col: 3},
	{Row: 2, Col: 1}, {Row: 2, Col: 3}, {Row: 1, Col: 2}, {Row: 3, Col: 2},
}

// InitialBoard builds the empty starting board for p.
func InitialBoard(p Profile, rng Source) Board {
	var b Board
	for r := 0; r < Size; r++ {
		for c := 0; c < Size; c++ {
			b[r][c].Capacity = p.Capacity.CapacityAt(Move{Row: r, Col: c}, rng)
		}
	}
	placeObstacles(&b, p.Obstacles, rng)
	return b
}

func placeObstacles(b *Board, count int, rng Source) {
	if count <= 0 {
		return
	}
	spots := make([]Move, len(obstacleSpots))
	copy(spots, obstacleSpots)
	for i := len(spots) - 1; i > 0; i-- {
		j := rng.Intn(i + 1)
		spots[i], spots[j] = spots[j], spots[i]
	}

	placed := mapset.New[Move]()
	for _, m := range spots {
		if placed.Size() == count {
			return
		}
		b.cell(m).Blocked = true
		if !connected(*b) {
			b.cell(m).Blocked = false
			continue
		}
		placed.Put(m)
	}
}

// connected reports whether every unblocked cell can reach every other one.
func connected(b Board) bool {
	var start Move
	open := 0
	for r := 0; r < Size; r++ {
		for c := 0; c < Size; c++ {
			if !b[r][c].Blocked {
				if open == 0 {
					start = Move{Row: r, Col: c}
				}
				open++
			}
		}
	}
	if open == 0 {
		return true
	}
	visited := mapset.New[Move]()
	visited.Put(start)
	queue := []Move{start}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, n := range Neighbors(cur) {
			if b.At(n).Blocked || visited.Has(n) {
				continue
			}
			visited.Put(n)
			queue = append(queue, n)
		}
	}
	return visited.Size() == open
}
