package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"chainreaction/internal/analytics"
	"chainreaction/internal/game"
	"chainreaction/internal/storage"

	"github.com/gin-gonic/gin"
)

type Server struct {
	router          *gin.Engine
	manager         *game.Manager
	store           storage.Store
	analytics       *analytics.Producer
	logger          *slog.Logger
	connections     map[string]*wsClient
	connMu          sync.RWMutex
	stepDelay       time.Duration
	reconnectWindow time.Duration
}

type Config struct {
	ReconnectWindow time.Duration
	StepDelay       time.Duration
	Store           storage.Store
	Analytics       *analytics.Producer
	Logger          *slog.Logger
	ManagerOptions  []game.Option
}

func New(cfg Config) *Server {
	gin.SetMode(gin.ReleaseMode)
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Store == nil {
		cfg.Store = storage.NewMemoryStore()
	}
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(cfg.Logger))

	s := &Server{
		router:          router,
		store:           cfg.Store,
		analytics:       cfg.Analytics,
		logger:          cfg.Logger,
		connections:     make(map[string]*wsClient),
		stepDelay:       cfg.StepDelay,
		reconnectWindow: cfg.ReconnectWindow,
	}
	opts := append([]game.Option{game.WithLogger(cfg.Logger)}, cfg.ManagerOptions...)
	s.manager = game.NewManager(cfg.ReconnectWindow, s.onFinish, opts...)

	router.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	router.GET("/profiles", s.handleProfiles)
	router.GET("/leaderboard", s.handleLeaderboard)
	router.POST("/games", s.handleStartGame)
	router.GET("/games/:id", s.handleGetGame)
	router.POST("/games/:id/moves", s.handleMove)
	router.POST("/games/:id/restart", s.handleRestart)
	router.GET("/ws", s.handleWS)
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Run(addr string) error {
	go s.sweeper()
	return s.router.Run(addr)
}

func (s *Server) sweeper() {
	ticker := time.NewTicker(5 * time.Second)
	for range ticker.C {
		s.manager.SweepDisconnects()
	}
}

// requestLogger logs method, path, status and duration of every request.
func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("http",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"bytes", c.Writer.Size(),
			"dur", time.Since(start).Round(time.Millisecond),
		)
	}
}

type profileView struct {
	Name           string `json:"name"`
	Capacity       string `json:"capacity"`
	Obstacles      int    `json:"obstacles"`
	Strength       int    `json:"strength"`
	ThinkingTimeMs int64  `json:"thinkingTimeMs"`
	FirstMove      string `json:"firstMove"`
}

func newProfileView(p game.Profile) profileView {
	return profileView{
		Name:           string(p.Name),
		Capacity:       p.Capacity.String(),
		Obstacles:      p.Obstacles,
		Strength:       p.Strength,
		ThinkingTimeMs: p.ThinkingTime.Milliseconds(),
		FirstMove:      p.FirstMove.String(),
	}
}

// stateView is a session snapshot plus what the renderer needs to offer the
// next human input.
type stateView struct {
	game.GameState
	LegalMoves     []game.Move `json:"legalMoves"`
	ThinkingTimeMs int64       `json:"thinkingTimeMs"`
}

func newStateView(g game.GameState) stateView {
	v := stateView{GameState: g, LegalMoves: []game.Move{}, ThinkingTimeMs: g.Profile().ThinkingTime.Milliseconds()}
	if g.Status == game.StatusActive && g.Turn == game.Human {
		v.LegalMoves = append(v.LegalMoves, game.LegalMoves(g.Board, game.Human)...)
	}
	return v
}

type botReply struct {
	Move   game.Move       `json:"move"`
	Result game.MoveResult `json:"result"`
}

func (s *Server) handleProfiles(c *gin.Context) {
	profiles := game.Profiles()
	res := make([]profileView, 0, len(profiles))
	for _, p := range profiles {
		res = append(res, newProfileView(s.manager.Tune(p)))
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) handleLeaderboard(c *gin.Context) {
	limit := 10
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 100 {
			limit = n
		}
	}
	rows, err := s.store.GetLeaderboard(c.Request.Context(), c.Query("difficulty"), limit)
	if err != nil {
		s.logger.Error("leaderboard query failed", "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "leaderboard unavailable"})
		return
	}
	if rows == nil {
		rows = []storage.LeaderboardRow{}
	}
	c.JSON(http.StatusOK, rows)
}

type startRequest struct {
	Username   string `json:"username" binding:"required"`
	Difficulty string `json:"difficulty"`
}

func (s *Server) handleStartGame(c *gin.Context) {
	var req startRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username required"})
		return
	}
	g, err := s.startGame(req.Username, req.Difficulty)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, newStateView(g))
}

func (s *Server) startGame(username, difficulty string) (game.GameState, error) {
	if difficulty == "" {
		difficulty = string(game.Balanced)
	}
	g, err := s.manager.StartGame(username, difficulty)
	if err != nil {
		return g, err
	}
	s.publishStarted(g)
	return g, nil
}

func (s *Server) restartGame(username, gameID string) (game.GameState, error) {
	g, err := s.manager.Restart(gameID, username)
	if err != nil {
		return g, err
	}
	s.publishStarted(g)
	return g, nil
}

func (s *Server) publishStarted(g game.GameState) {
	s.analytics.Publish(context.Background(), analytics.EventGameStarted, map[string]any{
		"gameId":     g.ID,
		"username":   g.Username,
		"difficulty": g.Difficulty,
	})
}

func (s *Server) handleGetGame(c *gin.Context) {
	g, ok := s.manager.GetGame(c.Param("id"))
	if !ok {
		s.writeError(c, game.ErrGameNotFound)
		return
	}
	c.JSON(http.StatusOK, newStateView(g))
}

type moveRequest struct {
	Username string `json:"username" binding:"required"`
	Row      *int   `json:"row" binding:"required"`
	Col      *int   `json:"col" binding:"required"`
}

// handleMove applies the human move and, if the game goes on, the AI reply.
// Thinking time is left to the client, which gets it in the response.
func (s *Server) handleMove(c *gin.Context) {
	var req moveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username, row and col required"})
		return
	}
	res, g, err := s.playHuman(req.Username, c.Param("id"), game.Move{Row: *req.Row, Col: *req.Col})
	if err != nil {
		s.writeError(c, err)
		return
	}
	resp := gin.H{"human": res}
	if g.Status == game.StatusActive && g.Turn == game.AI {
		move, botRes, next, err := s.playBot(g.ID)
		if err != nil {
			s.writeError(c, err)
			return
		}
		resp["bot"] = botReply{Move: move, Result: botRes}
		g = next
	}
	resp["game"] = newStateView(g)
	c.JSON(http.StatusOK, resp)
}

type restartRequest struct {
	Username string `json:"username" binding:"required"`
}

func (s *Server) handleRestart(c *gin.Context) {
	var req restartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username required"})
		return
	}
	g, err := s.restartGame(req.Username, c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newStateView(g))
}

func (s *Server) playHuman(username, gameID string, move game.Move) (game.MoveResult, game.GameState, error) {
	res, g, err := s.manager.HandleMove(game.PlayerMove{Username: username, GameID: gameID, Move: move})
	if err != nil {
		return res, g, err
	}
	s.publishMove(g, game.Human, move, res)
	return res, g, nil
}

// playBot converts a panic from the search (a broken capacity layout) into
// an error so one bad session cannot take the process down.
func (s *Server) playBot(gameID string) (move game.Move, res game.MoveResult, g game.GameState, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("bot turn aborted", "game", gameID, "panic", r)
			err = errBotFailed
		}
	}()
	move, res, g, err = s.manager.PlayBotTurn(gameID)
	if err != nil {
		return move, res, g, err
	}
	s.publishMove(g, game.AI, move, res)
	return move, res, g, nil
}

var errBotFailed = errors.New("bot failed to move")

func (s *Server) publishMove(g game.GameState, side game.Side, move game.Move, res game.MoveResult) {
	explosions := 0
	for _, step := range res.Steps {
		explosions += len(step.Exploded)
	}
	s.analytics.Publish(context.Background(), analytics.EventMovePlayed, map[string]any{
		"gameId":     g.ID,
		"difficulty": g.Difficulty,
		"side":       side.String(),
		"row":        move.Row,
		"col":        move.Col,
		"passes":     len(res.Steps),
		"explosions": explosions,
		"status":     g.Status,
	})
}

func (s *Server) onFinish(g game.GameState) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.store.SaveGame(ctx, storage.CompletedGame{
		ID:         g.ID,
		Username:   g.Username,
		Difficulty: g.Difficulty,
		Winner:     g.Winner.String(),
		Moves:      g.Moves,
		HumanOrbs:  g.Stats.HumanOrbs,
		AIOrbs:     g.Stats.AIOrbs,
		StartedAt:  g.StartedAt,
		EndedAt:    g.EndedAt,
	}); err != nil {
		s.logger.Error("failed to save game", "game", g.ID, "err", err)
	}
	s.analytics.Publish(ctx, analytics.EventGameFinished, map[string]any{
		"gameId":     g.ID,
		"username":   g.Username,
		"difficulty": g.Difficulty,
		"winner":     g.Winner.String(),
		"moves":      g.Moves,
		"duration":   g.EndedAt.Sub(g.StartedAt).Seconds(),
		"startedAt":  g.StartedAt,
		"endedAt":    g.EndedAt,
	})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, game.ErrGameNotFound):
		return http.StatusNotFound
	case errors.Is(err, game.ErrUnknownDifficulty):
		return http.StatusBadRequest
	case errors.Is(err, game.ErrIllegalMove):
		return http.StatusUnprocessableEntity
	case errors.Is(err, game.ErrInvalidTurn), errors.Is(err, game.ErrGameFinished):
		return http.StatusConflict
	case errors.Is(err, game.ErrNotOwner):
		return http.StatusForbidden
	}
	return http.StatusInternalServerError
}

func (s *Server) writeError(c *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "path", c.FullPath(), "err", err)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
