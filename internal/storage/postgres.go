package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// HumanWinner is the winner value stored for games the player won.
const HumanWinner = "human"

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, url string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

func (p *PostgresStore) Close() {
	if p.pool != nil {
		p.pool.Close()
	}
}

func (p *PostgresStore) EnsureTables(ctx context.Context) error {
	_, err := p.pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS games (
	id TEXT PRIMARY KEY,
	username TEXT NOT NULL,
	difficulty TEXT NOT NULL,
	winner TEXT,
	moves INTEGER NOT NULL DEFAULT 0,
	human_orbs INTEGER NOT NULL DEFAULT 0,
	ai_orbs INTEGER NOT NULL DEFAULT 0,
	started_at TIMESTAMP,
	ended_at TIMESTAMP
);
CREATE INDEX IF NOT EXISTS games_difficulty_winner ON games (difficulty, winner);
`)
	return err
}

func (p *PostgresStore) SaveGame(ctx context.Context, game CompletedGame) error {
	if p == nil || p.pool == nil {
		return nil
	}
	_, err := p.pool.Exec(ctx, `INSERT INTO games
	(id, username, difficulty, winner, moves, human_orbs, ai_orbs, started_at, ended_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9) ON CONFLICT (id) DO NOTHING`,
		game.ID, game.Username, game.Difficulty, game.Winner, game.Moves,
		game.HumanOrbs, game.AIOrbs, game.StartedAt, game.EndedAt)
	if err != nil {
		return fmt.Errorf("save game %s: %w", game.ID, err)
	}
	return nil
}

func (p *PostgresStore) GetLeaderboard(ctx context.Context, difficulty string, limit int) ([]LeaderboardRow, error) {
	rows, err := p.pool.Query(ctx, `
SELECT username, COUNT(*) AS wins
FROM games
WHERE winner = $1 AND ($2::text = '' OR difficulty = $2)
GROUP BY username
ORDER BY wins DESC, username
LIMIT $3`, HumanWinner, difficulty, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []LeaderboardRow
	for rows.Next() {
		var row LeaderboardRow
		if err := rows.Scan(&row.Username, &row.Wins); err != nil {
			return nil, err
		}
		res = append(res, row)
	}
	return res, rows.Err()
}
