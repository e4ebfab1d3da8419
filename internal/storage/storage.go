package storage

import (
	"context"
	"time"
)

// CompletedGame is the result row written when a session ends. Live board
// state is never persisted.
type CompletedGame struct {
	ID         string    `json:"id"`
	Username   string    `json:"username"`
	Difficulty string    `json:"difficulty"`
	Winner     string    `json:"winner"`
	Moves      int       `json:"moves"`
	HumanOrbs  int       `json:"humanOrbs"`
	AIOrbs     int       `json:"aiOrbs"`
	StartedAt  time.Time `json:"startedAt"`
	EndedAt    time.Time `json:"endedAt"`
}

type LeaderboardRow struct {
	Username string `json:"username"`
	Wins     int    `json:"wins"`
}

type Store interface {
	SaveGame(ctx context.Context, game CompletedGame) error
	// GetLeaderboard ranks users by wins against the AI. An empty difficulty
	// counts every difficulty.
	GetLeaderboard(ctx context.Context, difficulty string, limit int) ([]LeaderboardRow, error)
}
