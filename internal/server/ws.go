package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"chainreaction/internal/game"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const wsIdlePingInterval = 30 * time.Second

type wsMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// clientMessage is what the browser sends: {"type":"move","row":1,"col":2},
// {"type":"restart"} or {"type":"leave"}.
type clientMessage struct {
	Type string `json:"type"`
	Row  *int   `json:"row"`
	Col  *int   `json:"col"`
}

type stepPayload struct {
	GameID   string      `json:"gameId"`
	Side     game.Side   `json:"side"`
	Move     game.Move   `json:"move"`
	Pass     int         `json:"pass"`
	Passes   int         `json:"passes"`
	Exploded []game.Move `json:"exploded"`
	Board    game.Board  `json:"board"`
}

type statePayload struct {
	stateView
	LastMove *game.Move `json:"lastMove,omitempty"`
	LastSide game.Side  `json:"lastSide"`
}

type wsClient struct {
	username   string
	difficulty string
	gameID     string
	conn       *websocket.Conn
	send       chan []byte
	jobs       chan func()
	done       chan struct{}
	server     *Server
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

func (s *Server) handleWS(c *gin.Context) {
	username := c.Query("username")
	if username == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username required"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	client := &wsClient{
		username:   username,
		difficulty: c.Query("difficulty"),
		gameID:     c.Query("gameId"),
		conn:       conn,
		send:       make(chan []byte, 64),
		jobs:       make(chan func(), 8),
		done:       make(chan struct{}),
		server:     s,
	}
	s.register(client)

	go client.writePump()
	go client.animator()
	go client.readPump()
}

// register makes c the user's socket. An older socket for the same user is
// closed; its read pump then unregisters it.
func (s *Server) register(c *wsClient) {
	s.connMu.Lock()
	old := s.connections[c.username]
	s.connections[c.username] = c
	s.connMu.Unlock()
	if old != nil {
		old.conn.Close()
	}
}

// unregister drops c unless the user has already reconnected on a new
// socket.
func (s *Server) unregister(c *wsClient) {
	s.connMu.Lock()
	if s.connections[c.username] == c {
		delete(s.connections, c.username)
	}
	s.connMu.Unlock()
	close(c.done)
	c.conn.Close()
}

// writePump sends queued frames and pings an idle connection so proxies
// keep it open.
func (c *wsClient) writePump() {
	ticker := time.NewTicker(wsIdlePingInterval)
	defer ticker.Stop()
	lastWrite := time.Now()
	ping, _ := json.Marshal(wsMessage{Type: "ping"})

	for {
		select {
		case <-c.done:
			return
		case msg := <-c.send:
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
			lastWrite = time.Now()
		case <-ticker.C:
			if time.Since(lastWrite) < wsIdlePingInterval {
				continue
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, ping); err != nil {
				return
			}
			lastWrite = time.Now()
		}
	}
}

func (c *wsClient) readPump() {
	defer c.server.unregister(c)
	s := c.server

	g, err := c.attach()
	if err != nil {
		c.sendError(err)
		return
	}
	c.gameID = g.ID
	s.manager.MarkConnected(c.gameID)
	// A restart moves the session to a new ID, so read gameID on exit.
	defer func() { s.manager.MarkDisconnected(c.gameID) }()
	c.sendJSON("init", newStateView(g))
	if g.Status == game.StatusActive && g.Turn == game.AI {
		c.enqueue(func() { c.botTurn(g) })
	}

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		switch msg.Type {
		case "move":
			if msg.Row == nil || msg.Col == nil {
				c.sendError(errors.New("row and col required"))
				continue
			}
			move := game.Move{Row: *msg.Row, Col: *msg.Col}
			res, g, err := s.playHuman(c.username, c.gameID, move)
			if err != nil {
				c.sendError(err)
				continue
			}
			c.enqueue(func() { c.animate(g, game.Human, move, res) })
		case "restart":
			g, err := s.restartGame(c.username, c.gameID)
			if err != nil {
				c.sendError(err)
				continue
			}
			c.gameID = g.ID
			c.enqueue(func() { c.sendJSON("init", newStateView(g)) })
		case "leave":
			s.manager.Abandon(c.username)
			return
		}
	}
}

// attach resumes the requested game, then the user's unfinished one, and
// only then starts a fresh session.
func (c *wsClient) attach() (game.GameState, error) {
	s := c.server
	if c.gameID != "" {
		if g, ok := s.manager.GetGame(c.gameID); ok && g.Username == c.username {
			return g, nil
		}
	}
	if g, ok := s.manager.GetGameByUser(c.username); ok && g.Status == game.StatusActive {
		return g, nil
	}
	return s.startGame(c.username, c.difficulty)
}

// animator runs queued jobs one at a time until the socket closes, so the
// cascades of consecutive moves never interleave on the socket.
func (c *wsClient) animator() {
	for {
		select {
		case <-c.done:
			return
		case job := <-c.jobs:
			job()
		}
	}
}

func (c *wsClient) enqueue(job func()) {
	select {
	case c.jobs <- job:
	case <-c.done:
	}
}

// animate streams each cascade pass StepDelay apart, then the settled
// state, and hands the turn to the bot when it is due.
func (c *wsClient) animate(g game.GameState, side game.Side, move game.Move, res game.MoveResult) {
	for i, step := range res.Steps {
		if i > 0 && !c.wait(c.server.stepDelay) {
			return
		}
		c.sendJSON("step", stepPayload{
			GameID:   g.ID,
			Side:     side,
			Move:     move,
			Pass:     i + 1,
			Passes:   len(res.Steps),
			Exploded: step.Exploded,
			Board:    step.Board,
		})
	}
	if len(res.Steps) > 0 && !c.wait(c.server.stepDelay) {
		return
	}
	c.sendJSON("state", statePayload{stateView: newStateView(g), LastMove: &move, LastSide: side})
	if side == game.Human && g.Status == game.StatusActive && g.Turn == game.AI {
		c.botTurn(g)
	}
}

func (c *wsClient) botTurn(g game.GameState) {
	if !c.wait(g.Profile().ThinkingTime) {
		return
	}
	move, res, next, err := c.server.playBot(g.ID)
	if err != nil {
		if !errors.Is(err, game.ErrInvalidTurn) && !errors.Is(err, game.ErrGameFinished) && !errors.Is(err, game.ErrGameNotFound) {
			c.sendError(err)
		}
		return
	}
	c.animate(next, game.AI, move, res)
}

// wait sleeps for d and reports false if the socket closed meanwhile.
func (c *wsClient) wait(d time.Duration) bool {
	if d <= 0 {
		select {
		case <-c.done:
			return false
		default:
			return true
		}
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-c.done:
		return false
	case <-t.C:
		return true
	}
}

func (c *wsClient) sendJSON(kind string, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		c.server.logger.Error("encode ws payload", "type", kind, "err", err)
		return
	}
	data, _ := json.Marshal(wsMessage{Type: kind, Payload: body})
	select {
	case c.send <- data:
	case <-c.done:
	default:
		c.server.logger.Warn("ws send buffer full", "user", c.username, "type", kind)
	}
}

func (c *wsClient) sendError(err error) {
	c.sendJSON("error", gin.H{"message": err.Error(), "status": statusFor(err)})
}
