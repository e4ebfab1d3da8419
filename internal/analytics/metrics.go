package analytics

import (
	"log/slog"
	"sort"
	"sync"
	"time"
)

// DifficultySummary aggregates finished games of one difficulty.
type DifficultySummary struct {
	Games     int
	HumanWins int
	Moves     int
	Duration  float64
}

func (d DifficultySummary) HumanWinRate() float64 {
	if d.Games == 0 {
		return 0
	}
	return float64(d.HumanWins) / float64(d.Games)
}

func (d DifficultySummary) AverageMoves() float64 {
	if d.Games == 0 {
		return 0
	}
	return float64(d.Moves) / float64(d.Games)
}

// Metrics folds the event stream into running totals.
type Metrics struct {
	mu             sync.Mutex
	byDifficulty   map[string]*DifficultySummary
	gamesPerDay    map[string]int
	userGames      map[string]int
	userWins       map[string]int
	longestCascade int
	explosions     int
	movesSeen      int
	totalGames     int
}

func NewMetrics() *Metrics {
	return &Metrics{
		byDifficulty: make(map[string]*DifficultySummary),
		gamesPerDay:  make(map[string]int),
		userGames:    make(map[string]int),
		userWins:     make(map[string]int),
	}
}

// Record applies one decoded event.
func (m *Metrics) Record(e Event) {
	switch e.Event {
	case EventMovePlayed:
		m.recordMove(e.Payload)
	case EventGameFinished:
		m.recordFinished(e.Payload, e.Timestamp)
	}
}

func (m *Metrics) recordMove(payload map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.movesSeen++
	if passes, ok := number(payload["passes"]); ok && int(passes) > m.longestCascade {
		m.longestCascade = int(passes)
	}
	if n, ok := number(payload["explosions"]); ok {
		m.explosions += int(n)
	}
}

func (m *Metrics) recordFinished(payload map[string]any, timestamp time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.totalGames++
	difficulty, _ := payload["difficulty"].(string)
	summary, ok := m.byDifficulty[difficulty]
	if !ok {
		summary = &DifficultySummary{}
		m.byDifficulty[difficulty] = summary
	}
	summary.Games++

	username, _ := payload["username"].(string)
	if username != "" {
		m.userGames[username]++
	}
	if winner, _ := payload["winner"].(string); winner == "human" {
		summary.HumanWins++
		if username != "" {
			m.userWins[username]++
		}
	}
	if moves, ok := number(payload["moves"]); ok {
		summary.Moves += int(moves)
	}
	if duration, ok := number(payload["duration"]); ok {
		summary.Duration += duration
	}
	m.gamesPerDay[timestamp.Format("2006-01-02")]++
}

// number accepts both JSON-decoded float64 and in-process ints.
func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	}
	return 0, false
}

func (m *Metrics) Difficulty(name string) DifficultySummary {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.byDifficulty[name]; ok {
		return *s
	}
	return DifficultySummary{}
}

func (m *Metrics) LongestCascade() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.longestCascade
}

func (m *Metrics) TotalGames() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.totalGames
}

func (m *Metrics) Log(logger *slog.Logger) {
	m.mu.Lock()
	defer m.mu.Unlock()

	logger.Info("analytics summary",
		"games", m.totalGames,
		"moves", m.movesSeen,
		"explosions", m.explosions,
		"longestCascade", m.longestCascade,
		"gamesPerDay", m.gamesPerDay,
	)
	names := make([]string, 0, len(m.byDifficulty))
	for name := range m.byDifficulty {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		s := m.byDifficulty[name]
		avgDuration := 0.0
		if s.Games > 0 {
			avgDuration = s.Duration / float64(s.Games)
		}
		logger.Info("difficulty",
			"name", name,
			"games", s.Games,
			"humanWinRate", s.HumanWinRate(),
			"avgMoves", s.AverageMoves(),
			"avgDurationSec", avgDuration,
		)
	}
	logger.Info("users", "games", m.userGames, "wins", m.userWins)
}
