package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chainreaction/internal/game"
	"chainreaction/internal/storage"
)

type gameView struct {
	ID             string      `json:"id"`
	Username       string      `json:"username"`
	Difficulty     string      `json:"difficulty"`
	Board          game.Board  `json:"board"`
	Status         string      `json:"status"`
	Turn           game.Side   `json:"turn"`
	Winner         game.Side   `json:"winner"`
	Moves          int         `json:"moves"`
	LegalMoves     []game.Move `json:"legalMoves"`
	ThinkingTimeMs int64       `json:"thinkingTimeMs"`
}

func newTestServer(t *testing.T) (*Server, *storage.MemoryStore) {
	t.Helper()
	store := storage.NewMemoryStore()
	srv := New(Config{
		ReconnectWindow: time.Minute,
		Store:           store,
		Logger:          slog.New(slog.NewTextHandler(io.Discard, nil)),
		ManagerOptions: []game.Option{game.WithProfileTuner(func(p game.Profile) game.Profile {
			p.ThinkingTime = 0
			return p
		})},
	})
	return srv, store
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func startGame(t *testing.T, h http.Handler, username, difficulty string) gameView {
	t.Helper()
	rec := doJSON(t, h, http.MethodPost, "/games", map[string]string{"username": username, "difficulty": difficulty})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var g gameView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &g))
	return g
}

func TestHealthAndProfiles(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Handler()

	rec := doJSON(t, h, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/profiles", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var profiles []profileView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &profiles))
	require.Len(t, profiles, 3)
	assert.Equal(t, "gentle", profiles[0].Name)
	assert.Equal(t, "uniform(4)", profiles[0].Capacity)
	assert.Equal(t, "banded(3/4/5)", profiles[1].Capacity)
	assert.Equal(t, 2, profiles[2].Obstacles)
	assert.Zero(t, profiles[2].ThinkingTimeMs, "profiles are reported tuned")
}

func TestStartGameEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Handler()

	g := startGame(t, h, "ann", "gentle")
	assert.NotEmpty(t, g.ID)
	assert.Equal(t, game.Human, g.Turn)
	assert.Equal(t, "active", g.Status)
	assert.Len(t, g.LegalMoves, game.Size*game.Size)

	def := startGame(t, h, "ben", "")
	assert.Equal(t, "balanced", def.Difficulty)

	rec := doJSON(t, h, http.MethodPost, "/games", map[string]string{"username": "cat", "difficulty": "insane"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, h, http.MethodPost, "/games", map[string]string{"difficulty": "gentle"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/games/"+g.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/games/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMoveEndpointPlaysBotReply(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Handler()
	g := startGame(t, h, "ann", "gentle")

	rec := doJSON(t, h, http.MethodPost, "/games/"+g.ID+"/moves", map[string]any{"username": "ann", "row": 2, "col": 2})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Human game.MoveResult `json:"human"`
		Bot   *botReply       `json:"bot"`
		Game  gameView        `json:"game"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, game.Human, resp.Human.Board[2][2].Owner)
	require.NotNil(t, resp.Bot)
	assert.Equal(t, game.AI, resp.Game.Board[resp.Bot.Move.Row][resp.Bot.Move.Col].Owner)
	assert.Equal(t, game.Human, resp.Game.Turn)
	assert.Equal(t, 2, resp.Game.Moves)
	assert.Equal(t, []game.Move{{Row: 2, Col: 2}}, resp.Game.LegalMoves)
}

func TestMoveEndpointErrors(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Handler()
	g := startGame(t, h, "ann", "gentle")
	path := "/games/" + g.ID + "/moves"

	rec := doJSON(t, h, http.MethodPost, path, map[string]any{"username": "ann", "row": 9, "col": 0})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = doJSON(t, h, http.MethodPost, path, map[string]any{"username": "eve", "row": 0, "col": 0})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = doJSON(t, h, http.MethodPost, path, map[string]any{"username": "ann"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, h, http.MethodPost, "/games/missing/moves", map[string]any{"username": "ann", "row": 0, "col": 0})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRestartEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Handler()
	g := startGame(t, h, "ann", "gentle")
	rec := doJSON(t, h, http.MethodPost, "/games/"+g.ID+"/moves", map[string]any{"username": "ann", "row": 0, "col": 0})
	require.Equal(t, http.StatusOK, rec.Code)

	path := "/games/" + g.ID + "/restart"
	rec = doJSON(t, h, http.MethodPost, path, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, h, http.MethodPost, path, map[string]string{"username": "eve"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = doJSON(t, h, http.MethodPost, path, map[string]string{"username": "ann"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var restarted gameView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &restarted))
	assert.NotEqual(t, g.ID, restarted.ID)
	assert.Zero(t, restarted.Moves)
	assert.Equal(t, game.NewBoard(4), restarted.Board)

	rec = doJSON(t, h, http.MethodGet, "/games/"+g.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestLeaderboardEndpoint(t *testing.T) {
	srv, store := newTestServer(t)
	h := srv.Handler()

	rec := doJSON(t, h, http.MethodGet, "/leaderboard", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	srv.onFinish(game.GameState{ID: "g1", Username: "ann", Difficulty: "severe", Winner: game.Human})
	srv.onFinish(game.GameState{ID: "g2", Username: "ben", Difficulty: "gentle", Winner: game.AI})

	rec = doJSON(t, h, http.MethodGet, "/leaderboard?difficulty=severe", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[{"username":"ann","wins":1}]`, rec.Body.String())

	rows, err := store.GetLeaderboard(context.Background(), "gentle", 10)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, statusFor(game.ErrGameNotFound))
	assert.Equal(t, http.StatusUnprocessableEntity, statusFor(game.ErrIllegalMove))
	assert.Equal(t, http.StatusConflict, statusFor(game.ErrGameFinished))
	assert.Equal(t, http.StatusForbidden, statusFor(game.ErrNotOwner))
	assert.Equal(t, http.StatusInternalServerError, statusFor(game.ErrCascadeLimit))
}

func readMessage(t *testing.T, conn *websocket.Conn) (string, json.RawMessage) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var msg wsMessage
	require.NoError(t, conn.ReadJSON(&msg))
	return msg.Type, msg.Payload
}

func TestWebsocketGame(t *testing.T) {
	srv, _ := newTestServer(t)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws?username=ann&difficulty=gentle"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	kind, payload := readMessage(t, conn)
	require.Equal(t, "init", kind)
	var g gameView
	require.NoError(t, json.Unmarshal(payload, &g))
	assert.Equal(t, "ann", g.Username)
	assert.Equal(t, game.Human, g.Turn)

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "move", "row": 0, "col": 0}))

	kind, payload = readMessage(t, conn)
	require.Equal(t, "state", kind)
	var human struct {
		gameView
		LastSide game.Side `json:"lastSide"`
	}
	require.NoError(t, json.Unmarshal(payload, &human))
	assert.Equal(t, game.Human, human.LastSide)
	assert.Equal(t, game.AI, human.Turn)

	kind, payload = readMessage(t, conn)
	require.Equal(t, "state", kind)
	var bot struct {
		gameView
		LastMove *game.Move `json:"lastMove"`
		LastSide game.Side  `json:"lastSide"`
	}
	require.NoError(t, json.Unmarshal(payload, &bot))
	assert.Equal(t, game.AI, bot.LastSide)
	require.NotNil(t, bot.LastMove)
	assert.Equal(t, game.AI, bot.Board[bot.LastMove.Row][bot.LastMove.Col].Owner)
	assert.Equal(t, game.Human, bot.Turn)

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "move", "row": 4, "col": 4}))
	kind, _ = readMessage(t, conn)
	assert.Equal(t, "error", kind)
}

func TestWebsocketReconnectReplacesOldSocket(t *testing.T) {
	srv, _ := newTestServer(t)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws?username=ann&difficulty=gentle"

	first, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer first.Close()
	_, payload := readMessage(t, first)
	var g1 gameView
	require.NoError(t, json.Unmarshal(payload, &g1))

	second, _, err := websocket.DefaultDialer.Dial(url+"&gameId="+g1.ID, nil)
	require.NoError(t, err)
	defer second.Close()
	kind, payload := readMessage(t, second)
	require.Equal(t, "init", kind)
	var g2 gameView
	require.NoError(t, json.Unmarshal(payload, &g2))
	assert.Equal(t, g1.ID, g2.ID, "session is resumed")

	require.NoError(t, first.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, _, err = first.ReadMessage()
	assert.Error(t, err, "old socket is closed")
}
