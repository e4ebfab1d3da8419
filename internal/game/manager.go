package game

import (
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	StatusActive   = "active"
	StatusFinished = "finished"
)

var (
	ErrInvalidTurn  = errors.New("not your turn")
	ErrGameFinished = errors.New("game already finished")
	ErrGameNotFound = errors.New("game not found")
	ErrNotOwner     = errors.New("game belongs to another player")
	ErrNoLegalMoves = errors.New("no legal moves at a live position")
)

// GameState is one human-versus-AI session. Values returned by the Manager
// are copies; the Manager owns the live state.
type GameState struct {
	ID         string    `json:"id"`
	Username   string    `json:"username"`
	Difficulty string    `json:"difficulty"`
	Board      Board     `json:"board"`
	Status     string    `json:"status"`
	Turn       Side      `json:"turn"`
	Winner     Side      `json:"winner"`
	Moves      int       `json:"moves"`
	Stats      Stats     `json:"stats"`
	StartedAt  time.Time `json:"startedAt"`
	LastMoveAt time.Time `json:"lastMoveAt"`
	EndedAt    time.Time `json:"endedAt,omitempty"`

	profile     Profile
	bot         *Bot
	rng         Source
	connections int
}

func (g *GameState) Profile() Profile {
	return g.profile
}

type PlayerMove struct {
	Username string
	GameID   string
	Move     Move
}

// Option customizes a Manager.
type Option func(*Manager)

// WithRandSource replaces the per-session RNG factory.
func WithRandSource(newSource func() Source) Option {
	return func(m *Manager) { m.newSource = newSource }
}

// WithProfileTuner adjusts every profile before a session starts.
func WithProfileTuner(tune func(Profile) Profile) Option {
	return func(m *Manager) { m.tune = tune }
}

func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

type Manager struct {
	mu             sync.RWMutex
	games          map[string]*GameState
	userToGame     map[string]string
	reconnectAfter time.Duration
	onFinish       func(GameState)
	newSource      func() Source
	tune           func(Profile) Profile
	logger         *slog.Logger
}

func NewManager(reconnectWindow time.Duration, onFinish func(GameState), opts ...Option) *Manager {
	m := &Manager{
		games:          make(map[string]*GameState),
		userToGame:     make(map[string]string),
		reconnectAfter: reconnectWindow,
		onFinish:       onFinish,
		newSource: func() Source {
			return rand.New(rand.NewSource(time.Now().UnixNano()))
		},
		tune:   func(p Profile) Profile { return p },
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Tune reports p the way new sessions will see it.
func (m *Manager) Tune(p Profile) Profile {
	return m.tune(p)
}

// StartGame opens a new session for username, or returns the one still in
// progress.
func (m *Manager) StartGame(username, difficulty string) (GameState, error) {
	profile, err := ProfileFor(difficulty)
	if err != nil {
		return GameState{}, err
	}
	profile = m.tune(profile)

	m.mu.Lock()
	defer m.mu.Unlock()

	if gid, ok := m.userToGame[username]; ok {
		if g, exists := m.games[gid]; exists && g.Status != StatusFinished {
			return *g, nil
		}
	}

	rng := m.newSource()
	now := time.Now()
	g := &GameState{
		ID:         uuid.NewString(),
		Username:   username,
		Difficulty: string(profile.Name),
		Board:      InitialBoard(profile, rng),
		Status:     StatusActive,
		Turn:       Human,
		StartedAt:  now,
		LastMoveAt: now,
		profile:    profile,
		bot:        NewBot(AI, profile, rng),
		rng:        rng,
	}
	m.games[g.ID] = g
	m.userToGame[username] = g.ID
	m.logger.Info("game started", "game", g.ID, "user", username, "difficulty", g.Difficulty)
	return *g, nil
}

// Restart replaces a session with a fresh one of the same difficulty for
// the same player. The new session gets its own ID so its result is stored
// separately from the one it replaces.
func (m *Manager) Restart(gameID, username string) (GameState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	g, ok := m.games[gameID]
	if !ok {
		return GameState{}, ErrGameNotFound
	}
	if g.Username != username {
		return GameState{}, ErrNotOwner
	}
	now := time.Now()
	delete(m.games, g.ID)
	g.ID = uuid.NewString()
	g.Board = InitialBoard(g.profile, g.rng)
	g.Status = StatusActive
	g.Turn = Human
	g.Winner = Empty
	g.Moves = 0
	g.Stats = Stats{}
	g.StartedAt = now
	g.LastMoveAt = now
	g.EndedAt = time.Time{}
	m.games[g.ID] = g
	m.userToGame[g.Username] = g.ID
	m.logger.Info("game restarted", "game", g.ID, "previous", gameID, "user", username)
	return *g, nil
}

func (m *Manager) HandleMove(move PlayerMove) (MoveResult, GameState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	g, ok := m.games[move.GameID]
	if !ok {
		return MoveResult{}, GameState{}, ErrGameNotFound
	}
	if g.Status == StatusFinished {
		return MoveResult{}, *g, ErrGameFinished
	}
	if g.Username != move.Username || g.Turn != Human {
		return MoveResult{}, *g, ErrInvalidTurn
	}
	res, err := m.apply(g, move.Move, Human)
	if err != nil {
		return MoveResult{}, *g, err
	}
	return res, *g, nil
}

// PlayBotTurn lets the AI move in a session waiting on it.
func (m *Manager) PlayBotTurn(gameID string) (Move, MoveResult, GameState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	g, ok := m.games[gameID]
	if !ok {
		return Move{}, MoveResult{}, GameState{}, ErrGameNotFound
	}
	if g.Status == StatusFinished {
		return Move{}, MoveResult{}, *g, ErrGameFinished
	}
	if g.Turn != AI {
		return Move{}, MoveResult{}, *g, ErrInvalidTurn
	}
	choice, ok := g.bot.ChooseMove(g.Board, LegalMoves(g.Board, AI))
	if !ok {
		return Move{}, MoveResult{}, *g, fmt.Errorf("%w: game %s", ErrNoLegalMoves, g.ID)
	}
	res, err := m.apply(g, choice, AI)
	if err != nil {
		return Move{}, MoveResult{}, *g, err
	}
	return choice, res, *g, nil
}

// apply runs a move on a live session; m.mu must be held.
func (m *Manager) apply(g *GameState, move Move, side Side) (MoveResult, error) {
	res, err := g.profile.Rules().Apply(g.Board, move, side)
	if err != nil {
		if errors.Is(err, ErrCascadeLimit) {
			m.logger.Error("cascade limit hit", "game", g.ID, "move", move.String(), "err", err)
		}
		return MoveResult{}, err
	}
	now := time.Now()
	g.Board = res.Board
	g.Stats = res.Board.Stats()
	g.Moves++
	g.LastMoveAt = now
	if res.Winner != Empty {
		g.finish(res.Winner, now)
		m.notifyFinish(g)
	} else {
		g.Turn = side.Opponent()
	}
	return res, nil
}

func (g *GameState) finish(winner Side, at time.Time) {
	g.Status = StatusFinished
	g.Winner = winner
	g.Turn = Empty
	g.EndedAt = at
}

func (m *Manager) notifyFinish(g *GameState) {
	m.logger.Info("game finished", "game", g.ID, "winner", g.Winner.String(), "moves", g.Moves)
	if m.onFinish != nil {
		go m.onFinish(*g)
	}
}

func (m *Manager) GetGame(gameID string) (GameState, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	g, ok := m.games[gameID]
	if !ok {
		return GameState{}, false
	}
	return *g, true
}

// GetGameByUser retrieves the session last started by username.
func (m *Manager) GetGameByUser(username string) (GameState, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if id, ok := m.userToGame[username]; ok {
		if g, exists := m.games[id]; exists {
			return *g, true
		}
	}
	return GameState{}, false
}

func (m *Manager) Abandon(username string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.userToGame, username)
}

// MarkConnected records a live socket on the game. Connected games are never
// forfeited by the sweeper.
func (m *Manager) MarkConnected(gameID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if g, ok := m.games[gameID]; ok {
		g.connections++
	}
}

// MarkDisconnected updates last seen time so the sweeper can forfeit the
// session after the reconnect window.
func (m *Manager) MarkDisconnected(gameID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if g, ok := m.games[gameID]; ok {
		g.connections = max(g.connections-1, 0)
		g.LastMoveAt = time.Now()
	}
}

// SweepDisconnects forfeits idle sessions without a live socket to the AI
// and drops finished ones nobody has touched for a reconnect window.
func (m *Manager) SweepDisconnects() {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	for id, g := range m.games {
		idle := now.Sub(g.LastMoveAt) > m.reconnectAfter
		switch {
		case g.Status != StatusFinished && g.connections == 0 && idle:
			g.finish(AI, now)
			m.notifyFinish(g)
			m.logger.Warn("game forfeited due to timeout", "game", id)
		case g.Status == StatusFinished && g.connections == 0 && now.Sub(g.EndedAt) > m.reconnectAfter:
			delete(m.games, id)
			if m.userToGame[g.Username] == id {
				delete(m.userToGame, g.Username)
			}
		}
	}
}
