package game

import (
	"fmt"
	"math"
	"sort"
)

// SearchDepth is the number of plies the strongest bot looks ahead,
// counting its own candidate move.
const SearchDepth = 3

// Bot picks moves for one side. Its strength comes from the session's
// profile; every random decision is drawn from the injected Source.
type Bot struct {
	Side     Side
	Strength int
	rules    Rules
	rng      Source
}

type ScoredMove struct {
	Move  Move    `json:"move"`
	Score float64 `json:"score"`
}

func NewBot(side Side, profile Profile, rng Source) *Bot {
	return &Bot{
		Side:     side,
		Strength: min(max(profile.Strength, 1), 3),
		rules:    profile.Rules(),
		rng:      rng,
	}
}

// SelectAIMove chooses one of moves for the AI side. It returns false only
// when moves is empty, which happens once the game is over.
func SelectAIMove(b Board, moves []Move, profile Profile, rng Source) (Move, bool) {
	return NewBot(AI, profile, rng).ChooseMove(b, moves)
}

func (bot *Bot) ChooseMove(b Board, moves []Move) (Move, bool) {
	if len(moves) == 0 {
		return Move{}, false
	}
	ranked := bot.Rank(b, moves)
	return bot.pick(ranked).Move, true
}

// Rank scores every candidate for the bot's strength, best first.
func (bot *Bot) Rank(b Board, moves []Move) []ScoredMove {
	ranked := make([]ScoredMove, 0, len(moves))
	for _, m := range moves {
		after := bot.simulate(b, m, bot.Side)
		var score float64
		switch bot.Strength {
		case 1:
			score = bot.scoreWeak(after)
		case 2:
			score = bot.scoreShallow(b, m, after)
		default:
			score = bot.scoreDeep(after)
		}
		ranked = append(ranked, ScoredMove{Move: m, Score: score})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})
	return ranked
}

func (bot *Bot) pick(ranked []ScoredMove) ScoredMove {
	if len(ranked) == 1 {
		return ranked[0]
	}
	switch bot.Strength {
	case 1:
		// Mostly ignore the best move.
		if bot.rng.Float64() < 0.7 {
			return ranked[1+bot.rng.Intn(len(ranked)-1)]
		}
	case 2:
		if bot.rng.Float64() < 0.2 {
			return ranked[1]
		}
	default:
		if bot.rng.Float64() < 0.04 {
			return ranked[1]
		}
	}
	return ranked[0]
}

// noise returns a uniform value in [-spread, spread).
func (bot *Bot) noise(spread float64) float64 {
	return (bot.rng.Float64()*2 - 1) * spread
}

func (bot *Bot) scoreWeak(after Board) float64 {
	return Evaluate(after, bot.Side)*0.3 + bot.noise(10)
}

func (bot *Bot) scoreShallow(before Board, m Move, after Board) float64 {
	score := Evaluate(after, bot.Side)
	score += PositionWeight(m)
	if before.At(m).Owner == Empty {
		score++
	}
	score -= 3 * float64(exposed(after, bot.Side))
	return score + bot.noise(2)
}

func (bot *Bot) scoreDeep(after Board) float64 {
	score := bot.alphaBeta(after, SearchDepth-1, math.Inf(-1), math.Inf(1), bot.Side.Opponent())
	score += 1.5 * float64(primed(after, bot.Side))
	score -= 2 * float64(exposed(after, bot.Side))
	return score + bot.noise(0.25)
}

type child struct {
	board  Board
	static float64
}

func (bot *Bot) alphaBeta(b Board, depth int, alpha, beta float64, toMove Side) float64 {
	if winner := Winner(b); winner != Empty {
		// Prefer quick wins and slow losses.
		score := WinScore + float64(depth)
		if winner != bot.Side {
			return -score
		}
		return score
	}
	if depth == 0 {
		return Evaluate(b, bot.Side)
	}
	moves := LegalMoves(b, toMove)
	if len(moves) == 0 {
		return Evaluate(b, bot.Side)
	}

	maximizing := toMove == bot.Side
	children := make([]child, 0, len(moves))
	for _, m := range moves {
		next := bot.simulate(b, m, toMove)
		children = append(children, child{board: next, static: Evaluate(next, bot.Side)})
	}
	sort.SliceStable(children, func(i, j int) bool {
		if maximizing {
			return children[i].static > children[j].static
		}
		return children[i].static < children[j].static
	})

	if maximizing {
		best := math.Inf(-1)
		for _, ch := range children {
			v := bot.alphaBeta(ch.board, depth-1, alpha, beta, toMove.Opponent())
			best = math.Max(best, v)
			alpha = math.Max(alpha, v)
			if alpha >= beta {
				break
			}
		}
		return best
	}
	best := math.Inf(1)
	for _, ch := range children {
		v := bot.alphaBeta(ch.board, depth-1, alpha, beta, toMove.Opponent())
		best = math.Min(best, v)
		beta = math.Min(beta, v)
		if alpha >= beta {
			break
		}
	}
	return best
}

// simulate panics when the cascade limit is hit: the candidate came from
// LegalMoves, so the only way to fail is a broken capacity layout.
func (bot *Bot) simulate(b Board, m Move, side Side) Board {
	next, err := bot.rules.settle(b, m, side)
	if err != nil {
		panic(fmt.Errorf("simulating %s for %s: %w", m, side, err))
	}
	return next
}

// exposed counts side's cells next to an opponent cell that is one orb from
// exploding: the opponent's next placement there captures them.
func exposed(b Board, side Side) int {
	return countAdjacent(b, side, side.Opponent())
}

// primed counts opponent cells that one of side's near-critical cells would
// capture on its next explosion.
func primed(b Board, side Side) int {
	return countAdjacent(b, side.Opponent(), side)
}

// countAdjacent counts cells owned by victim that neighbour a near-critical
// cell owned by attacker.
func countAdjacent(b Board, victim, attacker Side) int {
	count := 0
	for r := 0; r < Size; r++ {
		for c := 0; c < Size; c++ {
			m := Move{Row: r, Col: c}
			if b.At(m).Owner != victim {
				continue
			}
			for _, n := range Neighbors(m) {
				cell := b.At(n)
				if cell.Owner == attacker && cell.NearCritical() {
					count++
					break
				}
			}
		}
	}
	return count
}
