package storage

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore keeps results for the lifetime of the process. It backs the
// leaderboard when no database is configured.
type MemoryStore struct {
	mu    sync.Mutex
	games map[string]CompletedGame
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{games: make(map[string]CompletedGame)}
}

func (m *MemoryStore) SaveGame(_ context.Context, game CompletedGame) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.games[game.ID]; !exists {
		m.games[game.ID] = game
	}
	return nil
}

func (m *MemoryStore) GetLeaderboard(_ context.Context, difficulty string, limit int) ([]LeaderboardRow, error) {
	m.mu.Lock()
	wins := make(map[string]int)
	for _, g := range m.games {
		if g.Winner != HumanWinner {
			continue
		}
		if difficulty != "" && g.Difficulty != difficulty {
			continue
		}
		wins[g.Username]++
	}
	m.mu.Unlock()

	res := make([]LeaderboardRow, 0, len(wins))
	for name, n := range wins {
		res = append(res, LeaderboardRow{Username: name, Wins: n})
	}
	sort.Slice(res, func(i, j int) bool {
		if res[i].Wins != res[j].Wins {
			return res[i].Wins > res[j].Wins
		}
		return res[i].Username < res[j].Username
	})
	if limit > 0 && len(res) > limit {
		res = res[:limit]
	}
	return res, nil
}
